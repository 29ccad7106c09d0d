package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// CBOR save and restore
// ---------------------------------------------------------------------------

// setTag marks an encoded set.
const setTag = 258

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes o as CBOR. Null, numbers, strings, mems, arrays, structs
// and sets are supported; structs lose their super. Cyclic data fails.
func (vm *VM) Marshal(o Object) ([]byte, error) {
	v, err := vm.toWire(o, map[Object]bool{})
	if err != nil {
		return nil, err
	}
	b, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vm: marshal: %w", err)
	}
	return b, nil
}

func (vm *VM) toWire(o Object, seen map[Object]bool) (any, error) {
	switch x := o.(type) {
	case *NullObj:
		return nil, nil
	case *Int:
		return x.V, nil
	case *Float:
		return x.V, nil
	case *String:
		return x.S, nil
	case *Mem:
		return x.B, nil
	}
	if seen[o] {
		return nil, fmt.Errorf("attempt to save cyclic %s", TypeName(o))
	}
	seen[o] = true
	defer delete(seen, o)

	switch x := o.(type) {
	case *Array:
		out := make([]any, x.Len())
		for i := range out {
			v, err := vm.toWire(x.At(i), seen)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Map:
		out := make(map[any]any, x.Len())
		var err error
		x.Each(func(k, v Object) {
			if err != nil {
				return
			}
			var wk, wv any
			if wk, err = vm.toWire(k, seen); err != nil {
				return
			}
			switch wk.(type) {
			case []any, []byte, map[any]any, cbor.Tag:
				err = fmt.Errorf("attempt to save a struct keyed by %s", TypeName(k))
				return
			}
			if wv, err = vm.toWire(v, seen); err == nil {
				out[wk] = wv
			}
		})
		return out, err
	case *Set:
		members := x.Members()
		out := make([]any, len(members))
		for i, m := range members {
			v, err := vm.toWire(m, seen)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return cbor.Tag{Number: setTag, Content: out}, nil
	}
	return nil, fmt.Errorf("attempt to save %s", TypeName(o))
}

// Unmarshal decodes CBOR produced by Marshal. The result carries a new
// reference.
func (vm *VM) Unmarshal(data []byte) (Object, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vm: unmarshal: %w", err)
	}
	var held []Object
	defer func() {
		for _, o := range held {
			o.Head().Decref()
		}
	}()
	o, err := vm.fromWire(v, &held)
	if err != nil {
		return nil, err
	}
	o.Head().Incref()
	return o, nil
}

// fromWire rebuilds a value. Everything it creates stays in held until the
// whole graph is linked.
func (vm *VM) fromWire(v any, held *[]Object) (Object, error) {
	keep := func(o Object) Object {
		*held = append(*held, o)
		return o
	}
	switch x := v.(type) {
	case nil:
		return Null, nil
	case bool:
		return keep(vm.Bool(x)), nil
	case uint64:
		return keep(vm.NewInt(int64(x))), nil
	case int64:
		return keep(vm.NewInt(x)), nil
	case float64:
		return keep(vm.NewFloat(x)), nil
	case float32:
		return keep(vm.NewFloat(float64(x))), nil
	case string:
		return keep(vm.NewString(x)), nil
	case []byte:
		m := vm.NewMem(len(x))
		copy(m.B, x)
		return keep(m), nil
	case []any:
		a := vm.NewArray(len(x))
		keep(a)
		for _, e := range x {
			o, err := vm.fromWire(e, held)
			if err != nil {
				return nil, err
			}
			a.Push(o)
		}
		return a, nil
	case map[any]any:
		m := vm.NewMap()
		keep(m)
		for wk, wv := range x {
			k, err := vm.fromWire(wk, held)
			if err != nil {
				return nil, err
			}
			val, err := vm.fromWire(wv, held)
			if err != nil {
				return nil, err
			}
			if err := vm.mapAssignBase(m, k, val); err != nil {
				return nil, err
			}
		}
		return m, nil
	case cbor.Tag:
		members, ok := x.Content.([]any)
		if x.Number != setTag || !ok {
			return nil, fmt.Errorf("vm: unmarshal: unexpected tag %d", x.Number)
		}
		s := vm.NewSet()
		keep(s)
		for _, e := range members {
			o, err := vm.fromWire(e, held)
			if err != nil {
				return nil, err
			}
			s.Add(o)
		}
		return s, nil
	}
	return nil, fmt.Errorf("vm: unmarshal: unsupported %T", v)
}
