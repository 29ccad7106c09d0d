package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		line uint32
		char uint32
		want string
	}{
		{"simple word", "x = spri", 0, 8, "spri"},
		{"at start", "whi", 0, 3, "whi"},
		{"empty line", "", 0, 0, ""},
		{"multi line", "first line\nsecond line\nfor", 2, 3, "for"},
		{"after operator", "n = a.cou", 0, 9, "cou"},
		{"cursor at beginning", "hello", 0, 0, ""},
		{"line beyond document", "single line", 5, 0, ""},
		{"cursor past end of line", "abc", 0, 40, "abc"},
	}
	for _, tc := range tests {
		got := extractPrefix(tc.text, protocol.Position{Line: tc.line, Character: tc.char})
		if got != tc.want {
			t.Errorf("%s: extractPrefix = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		line uint32
		char uint32
		want string
	}{
		{"simple word", "hello world", 0, 3, "hello"},
		// Character 5 is the space; the word before it is found.
		{"at end", "hello world", 0, 5, "hello"},
		{"second word", "hello world", 0, 8, "world"},
		{"empty line", "", 0, 0, ""},
		{"multi line", "first\nprintf(x);", 1, 3, "printf"},
		{"underscore", "my_var", 0, 3, "my_var"},
		{"line beyond document", "single line", 5, 0, ""},
		{"between operators", "a + b", 0, 2, ""},
	}
	for _, tc := range tests {
		got := extractWord(tc.text, protocol.Position{Line: tc.line, Character: tc.char})
		if got != tc.want {
			t.Errorf("%s: extractWord = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Errorf("boolPtr(true) = %v", p)
	}
	if p := boolPtr(false); p == nil || *p {
		t.Errorf("boolPtr(false) = %v", p)
	}
}

// ---------------------------------------------------------------------------
// VM-backed logic
// ---------------------------------------------------------------------------

func newTestLSP() *LspServer {
	return &LspServer{
		worker: testWorker,
		docs:   make(map[string]string),
	}
}

func TestLSP_Complete(t *testing.T) {
	lsp := newTestLSP()
	result, err := testWorker.Do(func(v *vm.VM) interface{} {
		return lsp.complete(v, "sp")
	})
	if err != nil {
		t.Fatal(err)
	}
	items := result.([]protocol.CompletionItem)

	found := false
	for _, item := range items {
		if !strings.HasPrefix(item.Label, "sp") {
			t.Errorf("completion %q does not match the prefix", item.Label)
		}
		if item.Label == "sprintf" {
			found = true
			if item.Kind == nil || *item.Kind != protocol.CompletionItemKindFunction {
				t.Errorf("sprintf kind = %v, want function", item.Kind)
			}
		}
	}
	if !found {
		t.Error("sprintf missing from completions")
	}
}

func TestLSP_CompleteKeyword(t *testing.T) {
	lsp := newTestLSP()
	result, _ := testWorker.Do(func(v *vm.VM) interface{} {
		return lsp.complete(v, "onerr")
	})
	items := result.([]protocol.CompletionItem)
	if len(items) != 1 || items[0].Label != "onerror" {
		t.Fatalf("completions = %v, want onerror", items)
	}
	if *items[0].Kind != protocol.CompletionItemKindKeyword {
		t.Errorf("kind = %v, want keyword", *items[0].Kind)
	}
}

func TestLSP_Hover(t *testing.T) {
	lsp := newTestLSP()
	tests := []struct {
		word string
		want string // substring of the hover text, empty for no hover
	}{
		{"printf", "`cfunc`"},
		{"while", "**while** statement"},
		{"version", `"ici-go`},
		{"no_such_name", ""},
	}
	for _, tc := range tests {
		result, err := testWorker.Do(func(v *vm.VM) interface{} {
			return lsp.hover(v, tc.word)
		})
		if err != nil {
			t.Fatal(err)
		}
		hover := result.(*protocol.Hover)
		if tc.want == "" {
			if hover != nil {
				t.Errorf("hover(%s) = %v, want none", tc.word, hover.Contents)
			}
			continue
		}
		if hover == nil {
			t.Errorf("hover(%s) = nil", tc.word)
			continue
		}
		text := hover.Contents.(protocol.MarkupContent).Value
		if !strings.Contains(text, tc.want) {
			t.Errorf("hover(%s) = %q, want it to contain %q", tc.word, text, tc.want)
		}
	}
}

func TestLSP_Diagnostics(t *testing.T) {
	tests := []struct {
		text string
		line uint32
		ok   bool
	}{
		{"x = 1;\n", 0, true},
		{"x = 1;\n\ny = ;\n", 2, false},
		{"static f() {", 0, false},
	}
	for _, tc := range tests {
		result, err := testWorker.Do(func(v *vm.VM) interface{} {
			return diagnose(v, "file:///t.ici", tc.text)
		})
		if err != nil {
			t.Fatal(err)
		}
		diags := result.([]protocol.Diagnostic)
		if tc.ok {
			if len(diags) != 0 {
				t.Errorf("diagnose(%q) = %v, want none", tc.text, diags)
			}
			continue
		}
		if len(diags) != 1 {
			t.Fatalf("diagnose(%q) = %v, want one", tc.text, diags)
		}
		if diags[0].Range.Start.Line != tc.line {
			t.Errorf("diagnose(%q) line = %d, want %d", tc.text, diags[0].Range.Start.Line, tc.line)
		}
		if *diags[0].Source != lspName {
			t.Errorf("source = %q", *diags[0].Source)
		}
	}
}

// ---------------------------------------------------------------------------
// Document-local navigation
// ---------------------------------------------------------------------------

const navDoc = `extern counter;
static limit = 10, step;

bump(n)
{
    auto scratch;
    counter = counter + step;
    return counter < limit;
}
`

func TestLSP_Definition(t *testing.T) {
	uri := protocol.DocumentUri("file:///nav.ici")
	tests := []struct {
		word string
		line uint32
		char uint32
	}{
		{"counter", 0, 7},
		{"limit", 1, 7},
		{"step", 1, 19},
		{"bump", 3, 0},
		{"scratch", 5, 9},
	}
	for _, tc := range tests {
		locs := definition(uri, navDoc, tc.word)
		if len(locs) != 1 {
			t.Errorf("definition(%s) = %v, want one location", tc.word, locs)
			continue
		}
		start := locs[0].Range.Start
		if start.Line != tc.line || start.Character != tc.char {
			t.Errorf("definition(%s) at %d:%d, want %d:%d", tc.word, start.Line, start.Character, tc.line, tc.char)
		}
	}
	if locs := definition(uri, navDoc, "nothing"); len(locs) != 0 {
		t.Errorf("definition(nothing) = %v", locs)
	}
}

func TestLSP_References(t *testing.T) {
	uri := protocol.DocumentUri("file:///nav.ici")
	locs := references(uri, navDoc, "counter")
	if len(locs) != 4 {
		t.Fatalf("references(counter) = %d, want 4", len(locs))
	}
	for _, loc := range locs {
		if loc.Range.End.Character-loc.Range.Start.Character != uint32(len("counter")) {
			t.Errorf("range %v does not span the name", loc.Range)
		}
	}
	// "step" must not match inside another identifier.
	if locs := references(uri, "steps = step + 1;", "step"); len(locs) != 1 {
		t.Errorf("references(step) = %v, want only the whole word", locs)
	}
}

// ---------------------------------------------------------------------------
// LSP document synchronization state
// ---------------------------------------------------------------------------

func TestLSP_DocumentStore(t *testing.T) {
	lsp := newTestLSP()

	lsp.mu.Lock()
	lsp.docs["file:///test.ici"] = "x = 1;"
	lsp.mu.Unlock()

	lsp.mu.Lock()
	text, ok := lsp.docs["file:///test.ici"]
	lsp.mu.Unlock()
	if !ok || text != "x = 1;" {
		t.Errorf("document = %q, %v after open", text, ok)
	}

	lsp.mu.Lock()
	delete(lsp.docs, "file:///test.ici")
	lsp.mu.Unlock()

	lsp.mu.Lock()
	_, ok = lsp.docs["file:///test.ici"]
	lsp.mu.Unlock()
	if ok {
		t.Error("document should be removed after close")
	}
}
