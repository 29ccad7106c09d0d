package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "ici-lsp"

// LspServer bridges LSP editor features to the ICI VM via VMWorker.
type LspServer struct {
	worker     *VMWorker
	ownsWorker bool

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given VM, which must have
// a compiler installed. The calling goroutine gives up the VM to the
// server's worker until Stop.
func NewLSP(v *vm.VM) *LspServer {
	return newLSP(NewVMWorker(v), true)
}

// LSP returns a language server sharing the evaluation server's worker.
func (s *Server) LSP() *LspServer {
	return newLSP(s.worker, false)
}

func newLSP(worker *VMWorker, ownsWorker bool) *LspServer {
	s := &LspServer{
		worker:     worker,
		ownsWorker: ownsWorker,
		docs:       make(map[string]string),
		version:    vm.Version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("ICI LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.Stop()
	return nil
}

// Stop stops the worker if this server created it, handing the VM back to
// the calling goroutine. It is safe to call more than once.
func (s *LspServer) Stop() {
	if s.ownsWorker {
		s.worker.Stop()
	}
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.complete(v, prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.hover(v, word)
	})
	if err != nil {
		return nil, nil
	}
	if result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	if locs := definition(uri, text, word); len(locs) > 0 {
		return locs, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(uri, text, word), nil
}

// --- VM-backed logic (called on worker goroutine) ---

func (s *LspServer) complete(v *vm.VM, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	for _, c := range completions(v, v.Externs, prefix) {
		kind := protocol.CompletionItemKindVariable
		switch c.Kind {
		case "keyword":
			kind = protocol.CompletionItemKindKeyword
		case "func", "cfunc":
			kind = protocol.CompletionItemKindFunction
		case "struct":
			kind = protocol.CompletionItemKindModule
		}
		detail := c.Kind
		label := c.Label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(v *vm.VM, word string) *protocol.Hover {
	for _, kw := range compiler.Keywords() {
		if kw == word {
			return markdown(fmt.Sprintf("**%s** statement", word))
		}
	}

	name := v.NewString(word)
	defer name.Decref()
	val, err := v.Fetch(v.Externs, name)
	if err != nil || val == vm.Object(vm.Null) {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s`\n\n", word, vm.TypeName(val))
	b.WriteString(describe(v, val))
	return markdown(b.String())
}

func markdown(text string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

// --- Document-local navigation ---

// definition finds declarations of word in the document: a name after
// auto, static or extern, or a name followed by an opening parenthesis at
// the start of a line.
func definition(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locations []protocol.Location
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		for _, storage := range []string{"auto", "static", "extern"} {
			if rest, ok := strings.CutPrefix(trimmed, storage); ok && declares(rest, word) {
				col := strings.Index(line, word)
				locations = append(locations, location(uri, n, col, len(word)))
			}
		}
		if strings.HasPrefix(trimmed, word+"(") && len(trimmed) == len(line) {
			locations = append(locations, location(uri, n, 0, len(word)))
		}
	}
	return locations
}

// declares reports whether a declaration list (the text after the storage
// class) names word.
func declares(rest, word string) bool {
	if rest == "" || !unicode.IsSpace(rune(rest[0])) {
		return false
	}
	for _, part := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ';' }) {
		f := strings.FieldsFunc(part, func(r rune) bool { return !isIdentRune(r) })
		if len(f) > 0 && f[0] == word {
			return true
		}
	}
	return false
}

// references finds every whole-identifier occurrence of word.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locations []protocol.Location
	for n, line := range strings.Split(text, "\n") {
		for off := 0; ; {
			i := strings.Index(line[off:], word)
			if i < 0 {
				break
			}
			start, end := off+i, off+i+len(word)
			if (start == 0 || !isIdentRune(rune(line[start-1]))) &&
				(end == len(line) || !isIdentRune(rune(line[end]))) {
				locations = append(locations, location(uri, n, start, len(word)))
			}
			off = end
		}
	}
	return locations
}

func location(uri protocol.DocumentUri, line, col, width int) protocol.Location {
	return protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + width)},
		},
	}
}

// --- Diagnostics ---

// diagnose compiles text without running it. Runs on the worker.
func diagnose(v *vm.VM, name, text string) []protocol.Diagnostic {
	se := compiler.Check(v, name, text)
	if se == nil {
		return []protocol.Diagnostic{}
	}
	line := se.Line - 1
	if line < 0 {
		line = 0
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	width := 0
	if lines := strings.Split(text, "\n"); line < len(lines) {
		width = len(lines[line])
	}
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(width)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  se.Msg,
	}}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return diagnose(v, string(uri), text)
	})
	if err != nil {
		log.Warningf("diagnostics for %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isIdentRune(ch) {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isIdentRune(ch) {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if isIdentRune(ch) {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
