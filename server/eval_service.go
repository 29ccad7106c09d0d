package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

// EvalService evaluates ICI source on the shared VM.
type EvalService struct {
	worker   *VMWorker
	handles  *HandleStore
	sessions *SessionStore
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *VMWorker, handles *HandleStore, sessions *SessionStore) *EvalService {
	return &EvalService{
		worker:   worker,
		handles:  handles,
		sessions: sessions,
	}
}

// Evaluate compiles and runs source. The source is tried as an expression
// first; if it does not parse as one it runs as a sequence of statements
// and the result is NULL.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	if req.Msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.evaluate(v, req.Msg)
	})
	if err != nil {
		return connect.NewResponse(&EvaluateResponse{
			Success: false,
			Error:   err.Error(),
		}), nil
	}
	if err, ok := result.(error); ok {
		return nil, err
	}
	return connect.NewResponse(result.(*EvaluateResponse)), nil
}

// scopeFor picks the scope a request runs in and returns it with a new
// reference. Must be called on the worker.
func (s *EvalService) scopeFor(v *vm.VM, req *EvaluateRequest) (*vm.Map, error) {
	if req.Context != "" {
		obj, ok := s.handles.Lookup(req.Context)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", req.Context))
		}
		m, ok := obj.(*vm.Map)
		if !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				fmt.Errorf("handle %q is a %s, not a struct", req.Context, vm.TypeName(obj)))
		}
		m.Incref()
		return m, nil
	}
	if req.SessionID != "" {
		session, ok := s.sessions.Get(req.SessionID)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.SessionID))
		}
		session.Scope.Incref()
		return session.Scope, nil
	}
	return v.NewModuleScope(), nil
}

// evaluate runs on the worker. It returns an *EvaluateResponse, or an
// error for requests that name a missing or unusable scope.
func (s *EvalService) evaluate(v *vm.VM, req *EvaluateRequest) interface{} {
	scope, err := s.scopeFor(v, req)
	if err != nil {
		return err
	}
	defer scope.Decref()

	var out bytes.Buffer
	old := v.SetStdout(&out)
	defer v.SetStdout(old)

	result, err := compiler.Eval(v, req.Source, scope)
	if _, ok := compiler.AsSyntaxError(err); ok {
		f := v.StringFile("eval", req.Source)
		err = v.ParseFile(f, scope)
		f.Decref()
		if err == nil {
			result = vm.Null
			result.Head().Incref()
		}
	}
	if err != nil {
		resp := &EvaluateResponse{Error: vm.ErrorMessage(err), Output: out.String()}
		var e *vm.Error
		if errors.As(err, &e) {
			resp.File, resp.Line = e.File, e.Line
		}
		log.Debugf("evaluate failed: %s", err)
		return resp
	}
	defer result.Head().Decref()

	display := describe(v, result)
	kind := vm.TypeName(result)
	return &EvaluateResponse{
		Success: true,
		Result:  display,
		Kind:    kind,
		Handle:  s.handles.Create(result, kind, display, req.SessionID),
		Output:  out.String(),
	}
}

// describe renders a value for a client. Aggregates show their size.
func describe(v *vm.VM, o vm.Object) string {
	switch x := o.(type) {
	case *vm.Array:
		return fmt.Sprintf("array(%d)", x.Len())
	case *vm.Map:
		return fmt.Sprintf("struct(%d)", x.Len())
	case *vm.Set:
		return fmt.Sprintf("set(%d)", x.Len())
	}
	return v.ObjName(o)
}

// CheckSyntax compiles source without running it and reports the first
// syntax error.
func (s *EvalService) CheckSyntax(
	ctx context.Context,
	req *connect.Request[CheckSyntaxRequest],
) (*connect.Response[CheckSyntaxResponse], error) {
	name := req.Msg.Name
	if name == "" {
		name = "check"
	}
	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return compiler.Check(v, name, req.Msg.Source)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &CheckSyntaxResponse{Valid: true}
	if se := result.(*compiler.SyntaxError); se != nil {
		resp.Valid = false
		resp.Diagnostics = []Diagnostic{{
			Line:       se.Line,
			Message:    se.Msg,
			Incomplete: se.Incomplete,
		}}
	}
	return connect.NewResponse(resp), nil
}
