package compiler

import (
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Code generation for expressions
// ---------------------------------------------------------------------------

// Compile modes say what the surrounding code needs from an expression.
const (
	forEffect = iota // nothing left on the operand stack
	forValue         // one value
	forTemp          // one value, possibly a scratch number
	forLvalue        // an aggregate and a key
)

// emit appends o to code. Strings and ops would be executed rather than
// pushed, so literal ones are quoted.
func (p *parser) emitConst(code *vm.Array, o vm.Object) {
	switch o.(type) {
	case *vm.String, *vm.Op:
		code.Push(p.op(vm.OpQuote))
	}
	code.Push(o)
}

// popIfEffect drops the value an expression left when only its side
// effects were wanted.
func (p *parser) popIfEffect(code *vm.Array, mode int) {
	if mode == forEffect {
		code.Push(p.op(vm.OpPop))
	}
}

func (p *parser) compile(code *vm.Array, e *expr, mode int) error {
	if mode == forLvalue && !e.isLvalue() {
		return &SyntaxError{Msg: "non-lvalue where lvalue required", Line: e.line}
	}
	valueMode := func(m int) int {
		if m == forEffect {
			return forEffect
		}
		return forValue
	}

	switch e.kind {
	case exprConst:
		if mode != forEffect {
			p.emitConst(code, e.obj)
		}

	case exprName:
		if mode == forLvalue {
			code.Push(p.op(vm.OpNameLvalue))
			code.Push(e.name)
			return nil
		}
		code.Push(e.name)
		p.popIfEffect(code, mode)

	case exprBinop:
		if err := p.compile(code, e.left, forTemp); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forTemp); err != nil {
			return err
		}
		if mode == forTemp {
			code.Push(p.v.Op(vm.OpBinopForTemp, e.code))
		} else {
			code.Push(p.v.Op(vm.OpBinop, e.code))
		}
		p.popIfEffect(code, mode)

	case exprAndAnd, exprOrOr:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		right := p.newCode()
		if err := p.compile(right, e.right, forValue); err != nil {
			return err
		}
		right.Push(p.op(vm.OpBool))
		if e.kind == exprAndAnd {
			code.Push(p.op(vm.OpAndAnd))
		} else {
			code.Push(p.op(vm.OpOrOr))
		}
		code.Push(right)
		p.popIfEffect(code, mode)

	case exprQuestion:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		then, els := p.newCode(), p.newCode()
		if err := p.compile(then, e.right, valueMode(mode)); err != nil {
			return err
		}
		if err := p.compile(els, e.third, valueMode(mode)); err != nil {
			return err
		}
		code.Push(p.op(vm.OpIfElse))
		code.Push(then)
		code.Push(els)

	case exprAssign:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forValue); err != nil {
			return err
		}
		if mode == forEffect {
			code.Push(p.op(vm.OpAssign))
		} else {
			code.Push(p.op(vm.OpAssignForValue))
		}

	case exprAssignLocal:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forValue); err != nil {
			return err
		}
		if mode == forEffect {
			code.Push(p.op(vm.OpAssignLocal))
		} else {
			code.Push(p.op(vm.OpAssignLocalValue))
		}

	case exprOpAssign:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		code.Push(p.op(vm.OpDotKeep))
		if err := p.compile(code, e.right, forValue); err != nil {
			return err
		}
		code.Push(p.v.Op(vm.OpBinop, e.code))
		p.emitAssign(code, mode)

	case exprSwap:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forLvalue); err != nil {
			return err
		}
		if mode == forEffect {
			code.Push(p.op(vm.OpSwap))
		} else {
			code.Push(p.op(vm.OpSwapForValue))
		}

	case exprPreIncr, exprPostIncr:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		if e.kind == exprPostIncr && mode != forEffect {
			// leaves the old value under the assignment
			code.Push(p.op(vm.OpDotRKeep))
			code.Push(p.intConst(1))
			code.Push(p.v.Op(vm.OpBinop, e.code))
			code.Push(p.op(vm.OpAssign))
			return nil
		}
		code.Push(p.op(vm.OpDotKeep))
		code.Push(p.intConst(1))
		code.Push(p.v.Op(vm.OpBinop, e.code))
		p.emitAssign(code, mode)

	case exprUnary:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		code.Push(p.op(vm.Opcode(e.code)))
		p.popIfEffect(code, mode)

	case exprDeref:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		if mode == forLvalue {
			code.Push(p.op(vm.OpOpenPtr))
			return nil
		}
		code.Push(p.op(vm.OpUnptr))
		p.popIfEffect(code, mode)

	case exprAddr:
		if err := p.compile(code, e.left, forLvalue); err != nil {
			return err
		}
		code.Push(p.op(vm.OpMkptr))
		p.popIfEffect(code, mode)

	case exprCall:
		for _, a := range e.args {
			if err := p.compile(code, a, forValue); err != nil {
				return err
			}
		}
		code.Push(p.intConst(len(e.args)))
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		code.Push(p.op(vm.OpCall))
		p.popIfEffect(code, mode)

	case exprIndex:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forValue); err != nil {
			return err
		}
		if mode == forLvalue {
			return nil
		}
		code.Push(p.op(vm.OpDot))
		p.popIfEffect(code, mode)

	case exprMethod:
		if err := p.compile(code, e.left, forValue); err != nil {
			return err
		}
		if err := p.compile(code, e.right, forValue); err != nil {
			return err
		}
		code.Push(p.op(vm.OpColon))
		p.popIfEffect(code, mode)

	case exprComma:
		if err := p.compile(code, e.left, forEffect); err != nil {
			return err
		}
		return p.compile(code, e.right, mode)
	}
	return nil
}

func (p *parser) emitAssign(code *vm.Array, mode int) {
	if mode == forEffect {
		code.Push(p.op(vm.OpAssign))
	} else {
		code.Push(p.op(vm.OpAssignForValue))
	}
}
