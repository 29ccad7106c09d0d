package server

// ---------------------------------------------------------------------------
// Wire messages for the evaluation service. They travel as CBOR maps keyed
// by the snake_case names in the tags.
// ---------------------------------------------------------------------------

// EvaluateRequest asks for source to be evaluated. Without a session the
// source runs in a fresh module scope. Context names a handle to a struct
// to use as the scope instead.
type EvaluateRequest struct {
	Source    string `cbor:"source"`
	SessionID string `cbor:"session_id,omitempty"`
	Context   string `cbor:"context,omitempty"`
}

// EvaluateResponse carries the value of the evaluation or its error.
type EvaluateResponse struct {
	Success bool   `cbor:"success"`
	Result  string `cbor:"result,omitempty"`
	Kind    string `cbor:"kind,omitempty"`
	Handle  string `cbor:"handle,omitempty"`
	Output  string `cbor:"output,omitempty"`
	Error   string `cbor:"error,omitempty"`
	File    string `cbor:"file,omitempty"`
	Line    int    `cbor:"line,omitempty"`
}

// CheckSyntaxRequest asks for source to be compiled without running it.
type CheckSyntaxRequest struct {
	Source string `cbor:"source"`
	Name   string `cbor:"name,omitempty"`
}

// CheckSyntaxResponse lists the syntax problems found.
type CheckSyntaxResponse struct {
	Valid       bool         `cbor:"valid"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

// Diagnostic is one syntax problem.
type Diagnostic struct {
	Line       int    `cbor:"line"`
	Message    string `cbor:"message"`
	Incomplete bool   `cbor:"incomplete,omitempty"`
}

type CreateSessionRequest struct {
	Name string `cbor:"name,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `cbor:"session_id"`
}

type DestroySessionRequest struct {
	SessionID string `cbor:"session_id"`
}

type DestroySessionResponse struct{}

type ReleaseHandleRequest struct {
	Handle string `cbor:"handle"`
}

type ReleaseHandleResponse struct {
	Released bool `cbor:"released"`
}

// CompleteRequest asks for names visible in a session starting with Prefix.
type CompleteRequest struct {
	Prefix    string `cbor:"prefix"`
	SessionID string `cbor:"session_id,omitempty"`
}

type CompleteResponse struct {
	Items []CompletionItem `cbor:"items,omitempty"`
}

// CompletionItem is one candidate name and the kind of its value.
type CompletionItem struct {
	Label string `cbor:"label"`
	Kind  string `cbor:"kind"`
}
