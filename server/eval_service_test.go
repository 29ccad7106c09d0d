package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Evaluate
// ---------------------------------------------------------------------------

func TestEvaluate_Values(t *testing.T) {
	svc := newTestEvalService()
	tests := []struct {
		source string
		result string
		kind   string
	}{
		{"42", "42", "int"},
		{"3 + 4 * 2", "11", "int"},
		{"1.5 * 2.0", "3", "float"},
		{`"hello"`, `"hello"`, "string"},
		{`"ab" + "cd"`, `"abcd"`, "string"},
		{"[array 1, 2, 3]", "array(3)", "array"},
		{"[struct a = 1, b = 2]", "struct(2)", "struct"},
		{"[set 1, 2]", "set(2)", "set"},
		{"NULL", "NULL", "NULL"},
	}
	for _, tc := range tests {
		resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: tc.source}))
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tc.source, err)
		}
		if !resp.Msg.Success {
			t.Errorf("Evaluate(%q) failed: %s", tc.source, resp.Msg.Error)
			continue
		}
		if resp.Msg.Result != tc.result || resp.Msg.Kind != tc.kind {
			t.Errorf("Evaluate(%q) = %s %s, want %s %s", tc.source,
				resp.Msg.Kind, resp.Msg.Result, tc.kind, tc.result)
		}
		if resp.Msg.Handle == "" {
			t.Errorf("Evaluate(%q) returned no handle", tc.source)
		}
	}
}

func TestEvaluate_EmptySource(t *testing.T) {
	svc := newTestEvalService()
	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("error = %v, want invalid argument", err)
	}
}

func TestEvaluate_Statements(t *testing.T) {
	svc := newTestEvalService()
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		Source: `x = 6; printf("%d\n", x * 7);`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Msg.Success {
		t.Fatalf("failed: %s", resp.Msg.Error)
	}
	if resp.Msg.Kind != "NULL" {
		t.Errorf("statements produced %s, want NULL", resp.Msg.Kind)
	}
	if resp.Msg.Output != "42\n" {
		t.Errorf("output = %q, want %q", resp.Msg.Output, "42\n")
	}
}

func TestEvaluate_RuntimeError(t *testing.T) {
	svc := newTestEvalService()
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "1 / 0"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Success {
		t.Fatal("division by zero succeeded")
	}
	if resp.Msg.Error != "division by 0" {
		t.Errorf("error = %q", resp.Msg.Error)
	}
}

func TestEvaluate_OutputBeforeError(t *testing.T) {
	svc := newTestEvalService()
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		Source: "printf(\"before\\n\");\nfail(\"stop here\");\n",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Success || resp.Msg.Error != "stop here" {
		t.Errorf("response = %+v, want the failure message", resp.Msg)
	}
	if resp.Msg.Output != "before\n" {
		t.Errorf("output = %q", resp.Msg.Output)
	}
	if resp.Msg.Line != 2 {
		t.Errorf("line = %d, want 2", resp.Msg.Line)
	}
}

func TestEvaluate_SyntaxError(t *testing.T) {
	svc := newTestEvalService()
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "x = ;"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Success || resp.Msg.Error == "" {
		t.Errorf("response = %+v, want a syntax error", resp.Msg)
	}
}

func TestEvaluate_FreshScopePerRequest(t *testing.T) {
	svc := newTestEvalService()
	if _, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "only_here = 1;"})); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "only_here"}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Success || !strings.Contains(resp.Msg.Error, "undefined") {
		t.Errorf("response = %+v, want the name undefined", resp.Msg)
	}
}

func TestEvaluate_InContext(t *testing.T) {
	svc := newTestEvalService()
	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "[struct a = 10, b = 32]"}))
	if err != nil || !resp.Msg.Success {
		t.Fatalf("creating context: %v %+v", err, resp)
	}

	resp, err = svc.Evaluate(bg(), connectReq(&EvaluateRequest{
		Source:  "a + b",
		Context: resp.Msg.Handle,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Result != "42" {
		t.Errorf("a + b in context = %q (%s), want 42", resp.Msg.Result, resp.Msg.Error)
	}
}

func TestEvaluate_ContextErrors(t *testing.T) {
	svc := newTestEvalService()
	_, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "1", Context: "h-nope"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing handle: error = %v, want not found", err)
	}

	resp, err := svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "7"}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "1", Context: resp.Msg.Handle}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("int context: error = %v, want invalid argument", err)
	}

	_, err = svc.Evaluate(bg(), connectReq(&EvaluateRequest{Source: "1", SessionID: "s-nope"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing session: error = %v, want not found", err)
	}
}

func TestEvaluate_HandleKeepsValueAlive(t *testing.T) {
	env := newIsolatedEnv(t)
	resp := env.evaluate(t, &EvaluateRequest{Source: "[array 1, 2, 3, 4]"})
	if !resp.Success {
		t.Fatal(resp.Error)
	}

	obj, ok := env.Handles.Lookup(resp.Handle)
	if !ok {
		t.Fatal("handle vanished")
	}
	n, err := env.Worker.Do(func(v *vm.VM) interface{} {
		v.ForceCollect()
		return obj.(*vm.Array).Len()
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("array length after collection = %v, want 4", n)
	}

	released, _ := env.Worker.Do(func(*vm.VM) interface{} {
		return env.Handles.Release(resp.Handle)
	})
	if released != true {
		t.Error("Release reported the handle missing")
	}
	if _, ok := env.Handles.Lookup(resp.Handle); ok {
		t.Error("handle still present after Release")
	}
}

// ---------------------------------------------------------------------------
// CheckSyntax
// ---------------------------------------------------------------------------

func TestCheckSyntax(t *testing.T) {
	svc := newTestEvalService()
	tests := []struct {
		source     string
		valid      bool
		line       int
		incomplete bool
	}{
		{"x = 1;", true, 0, false},
		{"", true, 0, false},
		{"x = 1;\ny = ;\n", false, 2, false},
		{"static f() {", false, 1, true},
	}
	for _, tc := range tests {
		resp, err := svc.CheckSyntax(bg(), connectReq(&CheckSyntaxRequest{Source: tc.source}))
		if err != nil {
			t.Fatalf("CheckSyntax(%q): %v", tc.source, err)
		}
		if resp.Msg.Valid != tc.valid {
			t.Errorf("CheckSyntax(%q) valid = %v, want %v", tc.source, resp.Msg.Valid, tc.valid)
			continue
		}
		if tc.valid {
			continue
		}
		if len(resp.Msg.Diagnostics) != 1 {
			t.Fatalf("CheckSyntax(%q) diagnostics = %v", tc.source, resp.Msg.Diagnostics)
		}
		d := resp.Msg.Diagnostics[0]
		if d.Line != tc.line || d.Incomplete != tc.incomplete {
			t.Errorf("CheckSyntax(%q) = line %d incomplete %v, want %d %v",
				tc.source, d.Line, d.Incomplete, tc.line, tc.incomplete)
		}
	}
}

// ---------------------------------------------------------------------------
// Over HTTP
// ---------------------------------------------------------------------------

func TestServerOverHTTP(t *testing.T) {
	env := newIsolatedEnv(t)
	srv := &Server{worker: env.Worker, handles: env.Handles, sessions: env.Sessions, mux: http.NewServeMux()}
	srv.routes()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.Client(), ts.URL)

	session, err := client.CreateSession(bg(), &CreateSessionRequest{Name: "http"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := client.Evaluate(bg(), &EvaluateRequest{Source: "total = 0;", SessionID: session.SessionID}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Requests from many goroutines are serialized on the worker.
	var g errgroup.Group
	for i := 1; i <= 20; i++ {
		i := i
		g.Go(func() error {
			resp, err := client.Evaluate(bg(), &EvaluateRequest{
				Source:    fmt.Sprintf("total += %d", i),
				SessionID: session.SessionID,
			})
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Error)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	resp, err := client.Evaluate(bg(), &EvaluateRequest{Source: "total", SessionID: session.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "210" {
		t.Errorf("total = %s, want 210", resp.Result)
	}

	check, err := client.CheckSyntax(bg(), &CheckSyntaxRequest{Source: "if ("})
	if err != nil {
		t.Fatal(err)
	}
	if check.Valid {
		t.Error("CheckSyntax accepted a truncated statement")
	}

	if _, err := client.DestroySession(bg(), &DestroySessionRequest{SessionID: session.SessionID}); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	_, err = client.Evaluate(bg(), &EvaluateRequest{Source: "total", SessionID: session.SessionID})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("evaluate in destroyed session: error = %v, want not found", err)
	}
}

func TestServerIdleCollection(t *testing.T) {
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	compiler.Install(v)

	srv := New(v, WithIdleCollection(10*time.Millisecond))
	deadline := time.Now().Add(2 * time.Second)
	for srv.IdleCollections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	n := srv.IdleCollections()
	srv.Stop()
	if n == 0 {
		t.Error("no collection ran while the server was idle")
	}
}
