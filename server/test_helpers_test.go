package server

import (
	"context"
	"os"
	"testing"

	"connectrpc.com/connect"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// One VM is created in TestMain and shared. Tests that need a clean
// externs scope create their own environment with newIsolatedEnv.
// ---------------------------------------------------------------------------

var (
	testVM       *vm.VM
	testWorker   *VMWorker
	testHandles  *HandleStore
	testSessions *SessionStore
)

func TestMain(m *testing.M) {
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		panic(err)
	}
	compiler.Install(v)
	testVM = v

	testWorker = NewVMWorker(testVM)
	testHandles = NewHandleStore()
	testSessions = NewSessionStore(testHandles)

	code := m.Run()

	testWorker.Stop()
	testVM.Close()
	os.Exit(code)
}

// newTestEvalService creates an EvalService backed by the shared VM.
func newTestEvalService() *EvalService {
	return NewEvalService(testWorker, testHandles, testSessions)
}

// newTestSessionService creates a SessionService backed by the shared VM.
func newTestSessionService() *SessionService {
	return NewSessionService(testWorker, testSessions, testHandles)
}

// ---------------------------------------------------------------------------
// Isolated VM helpers
// ---------------------------------------------------------------------------

// testEnv bundles a fresh, isolated VM with its worker and stores.
type testEnv struct {
	VM       *vm.VM
	Worker   *VMWorker
	Handles  *HandleStore
	Sessions *SessionStore
}

// newIsolatedEnv creates a brand-new VM, worker and stores, stopped and
// closed when the test ends.
func newIsolatedEnv(t *testing.T) *testEnv {
	t.Helper()
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	compiler.Install(v)
	w := NewVMWorker(v)
	h := NewHandleStore()
	env := &testEnv{VM: v, Worker: w, Handles: h, Sessions: NewSessionStore(h)}
	t.Cleanup(env.Stop)
	return env
}

func (e *testEnv) Stop() {
	e.Worker.Stop()
	e.VM.Close()
}

// evaluate runs source through a fresh EvalService on the env.
func (e *testEnv) evaluate(t *testing.T, req *EvaluateRequest) *EvaluateResponse {
	t.Helper()
	svc := NewEvalService(e.Worker, e.Handles, e.Sessions)
	resp, err := svc.Evaluate(bg(), connectReq(req))
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", req.Source, err)
	}
	return resp.Msg
}

// ---------------------------------------------------------------------------
// Request builder helpers
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
