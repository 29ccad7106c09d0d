package server

import (
	"github.com/fxamacker/cbor/v2"
)

// cborCodec lets Connect carry the plain Go message structs as CBOR, so
// the service needs no generated protobuf types.
type cborCodec struct{}

const cborCodecName = "cbor"

func (cborCodec) Name() string { return cborCodecName }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return cbor.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
