package compiler

import (
	"fmt"

	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Parser state
// ---------------------------------------------------------------------------

// parser compiles one source file. It is also the file's vm.ParseSource:
// each Next call parses and compiles one top-level statement.
type parser struct {
	v     *vm.VM
	lex   *Lexer
	file  *vm.String
	check bool

	// held keeps every object made for the current statement reachable
	// until the statement's code is handed to the engine.
	held []vm.Object

	statics *vm.Map
	externs *vm.Map
	fn      *funcState

	// noColon suppresses method-call parsing of ':' in contexts where the
	// colon belongs to the enclosing construct.
	noColon int
}

// funcState is the compile-time context of a function body.
type funcState struct {
	autos *vm.Map
	outer *funcState
}

func newParser(v *vm.VM, f *vm.File, check bool) *parser {
	p := &parser{v: v, lex: NewLexer(f), check: check}
	p.file = f.Name
	p.file.Incref()
	return p
}

// Next implements vm.ParseSource.
func (p *parser) Next(v *vm.VM) (code *vm.Array, err error) {
	defer p.release()
	p.bindScopes(v.Scope())

	tok := p.next()
	if tok.Type == TokenEOF {
		p.close()
		return nil, nil
	}
	p.lex.Unread(tok)

	code = p.newCode()
	if err := p.statement(code); err != nil {
		log.Debugf("%s", err)
		return nil, p.wrap(err)
	}
	code.Incref()
	return code, nil
}

// close drops the file name once input is exhausted.
func (p *parser) close() {
	if p.file != nil {
		p.file.Decref()
		p.file = nil
	}
}

// bindScopes records the statics and externs of the scope being compiled
// into.
func (p *parser) bindScopes(scope *vm.Map) {
	p.statics = scope
	if s, ok := scope.Super().(*vm.Map); ok {
		p.statics = s
	}
	p.externs = p.v.Externs
	if e, ok := p.statics.Super().(*vm.Map); ok {
		p.externs = e
	}
}

// ---------------------------------------------------------------------------
// Object lifetime
// ---------------------------------------------------------------------------

// hold records o, which carries a reference owned by the parser.
func (p *parser) hold(o vm.Object) vm.Object {
	p.held = append(p.held, o)
	return o
}

func (p *parser) release() {
	for _, o := range p.held {
		o.Head().Decref()
	}
	p.held = p.held[:0]
}

func (p *parser) newCode() *vm.Array {
	a := p.v.NewArray(8)
	p.hold(a)
	return a
}

func (p *parser) intConst(i int) *vm.Int {
	n := p.v.NewInt(int64(i))
	p.hold(n)
	return n
}

func (p *parser) stringConst(s string) *vm.String {
	str := p.v.NewString(s)
	p.hold(str)
	return str
}

func (p *parser) op(ecode vm.Opcode) *vm.Op {
	return p.v.Op(ecode, 0)
}

// ---------------------------------------------------------------------------
// Tokens and errors
// ---------------------------------------------------------------------------

func (p *parser) next() Token {
	return p.lex.Next()
}

func (p *parser) peek() Token {
	tok := p.lex.Next()
	p.lex.Unread(tok)
	return tok
}

// accept consumes the next token when it has type t.
func (p *parser) accept(t TokenType) bool {
	tok := p.next()
	if tok.Type == t {
		return true
	}
	p.lex.Unread(tok)
	return false
}

// acceptName consumes the next token when it is the name s.
func (p *parser) acceptName(s string) bool {
	tok := p.next()
	if tok.Type == TokenName && tok.Text == s {
		return true
	}
	p.lex.Unread(tok)
	return false
}

func (p *parser) expect(t TokenType, what string) error {
	tok := p.next()
	if tok.Type != t {
		return p.errorf(tok, "%s expected, but found %s", what, tok)
	}
	return nil
}

// errorf builds a syntax error at tok. Running out of input makes the
// error incomplete.
func (p *parser) errorf(tok Token, format string, args ...any) *SyntaxError {
	if tok.Type == TokenError {
		if se := p.lex.Err(); se != nil {
			return se
		}
	}
	return &SyntaxError{
		Msg:        fmt.Sprintf(format, args...),
		Line:       tok.Line,
		Incomplete: tok.Type == TokenEOF,
	}
}

// wrap turns a parse failure into the error returned to the engine.
func (p *parser) wrap(err error) error {
	se, ok := err.(*SyntaxError)
	if !ok {
		return err
	}
	if se.File == "" && p.file != nil {
		se.File = p.file.S
	}
	return wrap(se)
}

func isKeyword(s string) bool {
	for _, k := range keywords {
		if k == s {
			return true
		}
	}
	return false
}
