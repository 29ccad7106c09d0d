package compiler

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/ici-language/ici-sub000/vm"
)

var log = commonlog.GetLogger("ici.compiler")

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// SyntaxError is a compile-time failure. Incomplete is set when the input
// ended inside a construct, so more input could complete it.
type SyntaxError struct {
	Msg        string
	File       string
	Line       int
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// AsSyntaxError extracts a SyntaxError from err.
func AsSyntaxError(err error) (*SyntaxError, bool) {
	var se *SyntaxError
	ok := errors.As(err, &se)
	return se, ok
}

// wrap presents a syntax error as a located VM error.
func wrap(se *SyntaxError) error {
	return &vm.Error{Msg: se.Msg, File: se.File, Line: se.Line, Err: se}
}

// ---------------------------------------------------------------------------
// Compiler hook
// ---------------------------------------------------------------------------

// Compiler is the vm.Compiler for ICI source.
type Compiler struct{}

var _ vm.Compiler = Compiler{}

// Source returns a statement source that compiles f one top-level
// statement at a time.
func (Compiler) Source(v *vm.VM, f *vm.File) vm.ParseSource {
	return newParser(v, f, false)
}

// Expr compiles f as a single expression.
func (Compiler) Expr(v *vm.VM, f *vm.File) (*vm.Array, error) {
	p := newParser(v, f, false)
	defer p.close()
	defer p.release()
	p.bindScopes(v.Scope())
	e, err := p.parseComma()
	if err != nil {
		return nil, p.wrap(err)
	}
	if tok := p.next(); tok.Type != TokenEOF {
		return nil, p.wrap(p.errorf(tok, "unexpected %s after expression", tok))
	}
	code := p.newCode()
	if err := p.compile(code, e, forValue); err != nil {
		return nil, p.wrap(err)
	}
	code.Incref()
	return code, nil
}

// Install makes v compile ICI source.
func Install(v *vm.VM) {
	v.UseCompiler(Compiler{})
}

// Run compiles and executes src as a module in a fresh scope, which is
// returned with a new reference.
func Run(v *vm.VM, name, src string) (*vm.Map, error) {
	f := v.StringFile(name, src)
	defer f.Decref()
	return RunFile(v, f)
}

// RunFile is Run for an open file.
func RunFile(v *vm.VM, f *vm.File) (*vm.Map, error) {
	scope := v.NewModuleScope()
	if err := v.ParseFile(f, scope); err != nil {
		scope.Decref()
		return nil, err
	}
	return scope, nil
}

// Eval evaluates src as an expression in scope. The result carries a new
// reference.
func Eval(v *vm.VM, src string, scope *vm.Map) (vm.Object, error) {
	return v.EvalString(src, scope)
}

// Check compiles src without running it and returns the first syntax
// error, or nil. Initialisers that would run at compile time are skipped.
func Check(v *vm.VM, name, src string) *SyntaxError {
	f := v.StringFile(name, src)
	defer f.Decref()
	scope := v.NewModuleScope()
	defer scope.Decref()

	p := newParser(v, f, true)
	defer p.close()
	v.PushScope(scope)
	defer v.PopScope()
	for {
		code, err := p.Next(v)
		if err != nil {
			if se, ok := AsSyntaxError(err); ok {
				return se
			}
			return &SyntaxError{Msg: vm.ErrorMessage(err), File: name, Line: p.lex.Line()}
		}
		if code == nil {
			return nil
		}
		code.Decref()
	}
}
