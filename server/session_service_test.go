package server

import (
	"testing"

	"connectrpc.com/connect"

	"github.com/ici-language/ici-sub000/vm"
)

func TestSession_VariablesPersist(t *testing.T) {
	sessions := newTestSessionService()
	eval := newTestEvalService()

	created, err := sessions.CreateSession(bg(), connectReq(&CreateSessionRequest{Name: "persist"}))
	if err != nil {
		t.Fatal(err)
	}
	id := created.Msg.SessionID
	defer sessions.DestroySession(bg(), connectReq(&DestroySessionRequest{SessionID: id}))

	steps := []struct {
		source string
		result string
	}{
		{"base = 40;", "NULL"},
		{"static twice(n) { return n * 2; }", "NULL"},
		{"base + 2", "42"},
		{"twice(base)", "80"},
	}
	for _, step := range steps {
		resp, err := eval.Evaluate(bg(), connectReq(&EvaluateRequest{Source: step.source, SessionID: id}))
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", step.source, err)
		}
		if !resp.Msg.Success || resp.Msg.Result != step.result {
			t.Errorf("Evaluate(%q) = %q (%s), want %q", step.source, resp.Msg.Result, resp.Msg.Error, step.result)
		}
	}
}

func TestSession_Isolation(t *testing.T) {
	sessions := newTestSessionService()
	eval := newTestEvalService()

	var ids []string
	for _, name := range []string{"one", "two"} {
		resp, err := sessions.CreateSession(bg(), connectReq(&CreateSessionRequest{Name: name}))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.Msg.SessionID)
	}
	if ids[0] == ids[1] {
		t.Fatalf("sessions share id %s", ids[0])
	}

	if _, err := eval.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "mine = 1;", SessionID: ids[0]})); err != nil {
		t.Fatal(err)
	}
	resp, err := eval.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "mine", SessionID: ids[1]}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Success {
		t.Error("a variable from one session is visible in another")
	}

	for _, id := range ids {
		if _, err := sessions.DestroySession(bg(), connectReq(&DestroySessionRequest{SessionID: id})); err != nil {
			t.Errorf("DestroySession(%s): %v", id, err)
		}
	}
}

func TestSession_DestroyReleasesHandles(t *testing.T) {
	env := newIsolatedEnv(t)
	svc := NewSessionService(env.Worker, env.Sessions, env.Handles)

	created, err := svc.CreateSession(bg(), connectReq(&CreateSessionRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	id := created.Msg.SessionID
	for _, src := range []string{"[array 1]", "[struct x = 2]", `"kept"`} {
		if resp := env.evaluate(t, &EvaluateRequest{Source: src, SessionID: id}); !resp.Success {
			t.Fatalf("Evaluate(%q): %s", src, resp.Error)
		}
	}
	outside := env.evaluate(t, &EvaluateRequest{Source: "[array 2]"})
	if env.Handles.Len() != 4 {
		t.Fatalf("handles = %d, want 4", env.Handles.Len())
	}

	if _, err := svc.DestroySession(bg(), connectReq(&DestroySessionRequest{SessionID: id})); err != nil {
		t.Fatal(err)
	}
	if env.Handles.Len() != 1 {
		t.Errorf("handles after destroy = %d, want 1", env.Handles.Len())
	}
	if _, ok := env.Handles.Lookup(outside.Handle); !ok {
		t.Error("a handle outside the session was released")
	}
}

func TestSession_DestroyErrors(t *testing.T) {
	svc := newTestSessionService()
	_, err := svc.DestroySession(bg(), connectReq(&DestroySessionRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("empty id: error = %v, want invalid argument", err)
	}
	_, err = svc.DestroySession(bg(), connectReq(&DestroySessionRequest{SessionID: "s-missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing session: error = %v, want not found", err)
	}
}

func TestReleaseHandle(t *testing.T) {
	svc := newTestSessionService()
	eval := newTestEvalService()

	resp, err := eval.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "[array 9]"}))
	if err != nil {
		t.Fatal(err)
	}
	first, err := svc.ReleaseHandle(bg(), connectReq(&ReleaseHandleRequest{Handle: resp.Msg.Handle}))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ReleaseHandle(bg(), connectReq(&ReleaseHandleRequest{Handle: resp.Msg.Handle}))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Msg.Released || second.Msg.Released {
		t.Errorf("released = %v then %v, want true then false", first.Msg.Released, second.Msg.Released)
	}
}

func TestComplete(t *testing.T) {
	svc := newTestSessionService()
	eval := newTestEvalService()

	created, err := svc.CreateSession(bg(), connectReq(&CreateSessionRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	id := created.Msg.SessionID
	defer svc.DestroySession(bg(), connectReq(&DestroySessionRequest{SessionID: id}))
	if _, err := eval.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "sprocket = 1; spring = [array 1];", SessionID: id})); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Complete(bg(), connectReq(&CompleteRequest{Prefix: "spr", SessionID: id}))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, item := range resp.Msg.Items {
		got[item.Label] = item.Kind
	}
	want := map[string]string{"sprocket": "int", "spring": "array", "sprintf": "cfunc"}
	for name, kind := range want {
		if got[name] != kind {
			t.Errorf("completion %s = %q, want %q (all: %v)", name, got[name], kind, got)
		}
	}

	resp, err = svc.Complete(bg(), connectReq(&CompleteRequest{Prefix: "wh"}))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Msg.Items) == 0 || resp.Msg.Items[0].Label != "while" || resp.Msg.Items[0].Kind != "keyword" {
		t.Errorf("completions for wh = %v, want the while keyword first", resp.Msg.Items)
	}

	_, err = svc.Complete(bg(), connectReq(&CompleteRequest{Prefix: "x", SessionID: "s-missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing session: error = %v, want not found", err)
	}
}

func TestCompletionsInnerHidesOuter(t *testing.T) {
	r, err := testWorker.Do(func(v *vm.VM) interface{} {
		scope := v.NewModuleScope()
		defer scope.Decref()
		if err := v.Set(scope, "printf", v.Str("shadow")); err != nil {
			return err
		}
		return completions(v, scope, "printf")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err, ok := r.(error); ok {
		t.Fatal(err)
	}
	items := r.([]CompletionItem)
	if len(items) != 1 || items[0].Kind != "string" {
		t.Errorf("completions = %v, want one string binding", items)
	}
}
