package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// evaluate runs code on the current context until the catch frame it
// pushes is reached again. nops operands already on the operand stack
// belong to this evaluation. The result carries a new reference.
func (vm *VM) evaluate(code Object, nops int) (Object, error) {
	st := vm.stk
	x := vm.cur
	xsBase := st.xs.top
	st.xs.push(vm.newCatch(nil, st.os.top-nops, st.vs.top, catchEvalBase))
	vm.pushCode(code)

	for {
		if x.budget--; x.budget <= 0 {
			x.budget = vm.cfg.CheckInterval
			if err := vm.checkStacks(); err != nil {
				if err = vm.fail(err, xsBase); err != nil {
					return nil, err
				}
				continue
			}
			if x.checks++; x.checks >= vm.cfg.YieldEvery {
				x.checks = 0
				vm.yield()
			}
		}

		var o Object
		var pc *PC
		if top := st.xs.buf[st.xs.top-1]; top.Head().tag == TagPC {
			pc = top.(*PC)
			if pc.Next >= pc.Code.Len() {
				st.xs.pop()
				continue
			}
			o = pc.Code.At(pc.Next)
			pc.Next++
		} else {
			o = st.xs.pop()
		}

		var err error
		switch o.Head().tag {
		case TagSrc:
			x.src = o.(*Src)

		case TagString:
			err = vm.lookupName(o.(*String))

		case TagOp:
			err = vm.execOp(o.(*Op), pc)

		case TagCatch:
			c := o.(*Catch)
			if c.Flags&catchEvalBase != 0 {
				var result Object = Null
				if st.os.top > c.ODepth {
					result = st.os.peek(0)
				}
				result.Head().Incref()
				st.os.truncate(c.ODepth)
				st.vs.truncate(c.VDepth)
				return result, nil
			}
			vm.endCatch(c)

		case TagParse:
			err = vm.stepParse(o.(*Parse))

		case TagForall:
			st.xs.push(o)
			fa := o.(*Forall)
			var more bool
			if more, err = vm.forallStep(fa); err == nil {
				if more {
					vm.pushPC(fa.Body, 0)
				} else {
					st.xs.pop()
				}
			}

		default:
			st.os.push(o)
		}

		if err != nil {
			if err = vm.fail(err, xsBase); err != nil {
				return nil, err
			}
		}
	}
}

// endCatch handles a catch frame reached by normal execution.
func (vm *VM) endCatch(c *Catch) {
	if c.Flags&catchCritsect != 0 {
		vm.cur.critsect--
	}
	if c.Flags&catchFunc != 0 {
		st := vm.stk
		st.os.truncate(c.ODepth)
		st.os.push(Null)
		st.vs.truncate(c.VDepth)
	}
}

// fail unwinds the exec stack to the nearest error catcher above xsBase.
// It returns nil when a handler took over, or the located error when the
// unwind reached the evaluate sentinel.
func (vm *VM) fail(err error, xsBase int) error {
	st := vm.stk
	x := vm.cur
	err = vm.locate(err)
	var exit *ExitError
	catchable := !errors.As(err, &exit)
	for st.xs.top > xsBase {
		c, ok := st.xs.pop().(*Catch)
		if !ok {
			continue
		}
		if c.Flags&catchCritsect != 0 {
			x.critsect--
		}
		if c.Flags&catchEvalBase != 0 {
			st.os.truncate(c.ODepth)
			st.vs.truncate(c.VDepth)
			return err
		}
		if c.Handler == nil || !catchable {
			continue
		}
		st.os.truncate(c.ODepth)
		st.vs.truncate(c.VDepth)
		msg := vm.NewString(ErrorMessage(err))
		aerr := vm.Assign(vm.Scope(), vm.sError, msg)
		msg.Decref()
		if aerr != nil {
			err = vm.locate(aerr)
			continue
		}
		vm.pushPC(c.Handler, 0)
		return nil
	}
	return err
}

// lookupName pushes the value of a variable, trying the lookaside cache,
// then the scope chain, then the load hook.
func (vm *VM) lookupName(name *String) error {
	st := vm.stk
	scope := st.vs.buf[st.vs.top-1].(*Map)
	if s := vm.cached(scope, name); s != nil {
		st.os.push(s.val)
		return nil
	}
	val, ok, err := vm.fetchChain(scope, name, scope)
	if err != nil {
		return err
	}
	if !ok {
		if val, ok, err = vm.autoload(scope, name); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%q undefined", name.S)
		}
	}
	st.os.push(val)
	return nil
}

// autoload calls the load hook visible from scope with name, then retries
// the lookup.
func (vm *VM) autoload(scope *Map, name *String) (Object, bool, error) {
	if name == vm.sLoad {
		return nil, false, nil
	}
	load, ok, err := vm.fetchChain(scope, vm.sLoad, scope)
	if err != nil || !ok || TypeOf(load).Call == nil {
		return nil, false, err
	}
	r, err := vm.Call(load, name)
	if err != nil {
		return nil, false, err
	}
	r.Head().Decref()
	return vm.fetchChain(scope, name, scope)
}

// stepParse compiles and schedules the next statement of a module.
func (vm *VM) stepParse(p *Parse) error {
	st := vm.stk
	st.xs.push(p)
	code, err := p.Src.Next(vm)
	if err != nil {
		return err
	}
	if code == nil {
		st.xs.pop()
		return nil
	}
	vm.pushPC(code, 0)
	code.Decref()
	return nil
}

// ---------------------------------------------------------------------------
// Structured control
// ---------------------------------------------------------------------------

// popFrames pops the exec stack down to depth n, closing any critical
// sections crossed.
func (vm *VM) popFrames(n int) {
	st := vm.stk
	for st.xs.top > n {
		if c, ok := st.xs.pop().(*Catch); ok && c.Flags&catchCritsect != 0 {
			vm.cur.critsect--
		}
	}
}

func (vm *VM) doBreak() error {
	st := vm.stk
	for i := st.xs.top - 1; i >= 0; i-- {
		switch o := st.xs.buf[i].(type) {
		case *Op:
			if o.Ecode == OpLooper || o.Ecode == OpSwitcher {
				vm.popFrames(i)
				return nil
			}
		case *Forall:
			vm.popFrames(i)
			return nil
		case *Catch:
			if o.Flags&(catchFunc|catchEvalBase) != 0 {
				return errors.New("break not within loop or switch")
			}
		}
	}
	return errors.New("break not within loop or switch")
}

func (vm *VM) doContinue() error {
	st := vm.stk
	for i := st.xs.top - 1; i >= 0; i-- {
		switch o := st.xs.buf[i].(type) {
		case *Op:
			if o.Ecode == OpLooper {
				vm.popFrames(i + 2)
				st.xs.buf[i+1].(*PC).Next = 0
				return nil
			}
		case *Forall:
			vm.popFrames(i + 1)
			return nil
		case *Catch:
			if o.Flags&(catchFunc|catchEvalBase) != 0 {
				return errors.New("continue not within loop")
			}
		}
	}
	return errors.New("continue not within loop")
}

func (vm *VM) doReturn() error {
	st := vm.stk
	val := st.os.peek(0)
	for i := st.xs.top - 1; i >= 0; i-- {
		c, ok := st.xs.buf[i].(*Catch)
		if !ok {
			continue
		}
		if c.Flags&catchFunc != 0 {
			vm.popFrames(i)
			st.os.truncate(c.ODepth)
			st.os.push(val)
			st.vs.truncate(c.VDepth)
			return nil
		}
		if c.Flags&catchEvalBase != 0 {
			break
		}
	}
	return errors.New("return not within a function")
}

// ---------------------------------------------------------------------------
// Operator table
// ---------------------------------------------------------------------------

// next reads the operand element following the current instruction.
func next(pc *PC) Object {
	o := pc.Code.At(pc.Next)
	pc.Next++
	return o
}

// replace pops n operands and pushes r in their place.
func (st *Stacks) replace(n int, r Object) {
	os := st.os
	os.truncate(os.top - n)
	os.push(r)
}

func (vm *VM) execOp(op *Op, pc *PC) error {
	st := vm.stk
	os := st.os
	switch op.Ecode {
	case OpNop, OpLooper, OpSwitcher, OpDefault:

	case OpQuote:
		os.push(next(pc))

	case OpNameLvalue:
		os.push(st.vs.buf[st.vs.top-1])
		os.push(next(pc))

	case OpDot:
		v, err := vm.Fetch(os.peek(1), os.peek(0))
		if err != nil {
			return err
		}
		st.replace(2, v)

	case OpDotKeep:
		v, err := vm.Fetch(os.peek(1), os.peek(0))
		if err != nil {
			return err
		}
		os.push(v)

	case OpDotRKeep:
		aggr, key := os.peek(1), os.peek(0)
		v, err := vm.Fetch(aggr, key)
		if err != nil {
			return err
		}
		os.truncate(os.top - 2)
		os.push(v)
		os.push(aggr)
		os.push(key)
		os.push(v)

	case OpAssign, OpAssignForValue, OpAssignLocal, OpAssignLocalValue:
		aggr, key, val := os.peek(2), os.peek(1), os.peek(0)
		var err error
		if op.Ecode == OpAssignLocal || op.Ecode == OpAssignLocalValue {
			err = vm.AssignBase(aggr, key, val)
		} else {
			err = vm.Assign(aggr, key, val)
		}
		if err != nil {
			return err
		}
		os.truncate(os.top - 3)
		if op.Ecode == OpAssignForValue || op.Ecode == OpAssignLocalValue {
			os.push(val)
		}

	case OpSwap, OpSwapForValue:
		a1, k1, a2, k2 := os.peek(3), os.peek(2), os.peek(1), os.peek(0)
		v1, err := vm.Fetch(a1, k1)
		if err != nil {
			return err
		}
		v2, err := vm.Fetch(a2, k2)
		if err != nil {
			return err
		}
		os.push(v1)
		os.push(v2)
		if err := vm.Assign(a1, k1, v2); err != nil {
			return err
		}
		if err := vm.Assign(a2, k2, v1); err != nil {
			return err
		}
		os.truncate(os.top - 6)
		if op.Ecode == OpSwapForValue {
			os.push(v2)
		}

	case OpCall:
		return vm.callObject(os.peek(0), nil)

	case OpColon:
		subject, key := os.peek(1), os.peek(0)
		t := TypeOf(subject)
		var f Object
		var err error
		if t.FetchMethod != nil {
			f, err = t.FetchMethod(vm, subject, key)
		} else {
			f, err = t.Fetch(vm, subject, key)
		}
		if err != nil {
			return err
		}
		if f == Object(Null) {
			return fmt.Errorf("%s has no method %s", vm.ObjName(subject), vm.ObjName(key))
		}
		os.push(f)
		m := vm.NewMethod(subject, f)
		st.replace(3, m)
		m.Decref()

	case OpBinop:
		return vm.binop(op.Code, false)

	case OpBinopForTemp:
		return vm.binop(op.Code, true)

	case OpMinus, OpPlus, OpNot, OpBitNot, OpAt:
		return vm.unop(op.Ecode)

	case OpMkptr:
		p := vm.NewPtr(os.peek(1), os.peek(0))
		st.replace(2, p)
		p.Decref()

	case OpOpenPtr:
		p, ok := os.peek(0).(*Ptr)
		if !ok {
			return fmt.Errorf("pointer required, but %s given", vm.ObjName(os.peek(0)))
		}
		os.buf[os.top-1] = p.Aggr
		os.push(p.Key)

	case OpUnptr:
		p, ok := os.peek(0).(*Ptr)
		if !ok {
			return fmt.Errorf("pointer required, but %s given", vm.ObjName(os.peek(0)))
		}
		v, err := vm.Fetch(p.Aggr, p.Key)
		if err != nil {
			return err
		}
		st.replace(1, v)

	case OpPop:
		os.pop()

	case OpBool:
		st.replace(1, vm.small[boolIndex(!IsFalse(os.peek(0)))])

	case OpAndAnd, OpOrOr:
		right := next(pc).(*Array)
		v := IsFalse(os.peek(0))
		if v == (op.Ecode == OpAndAnd) {
			st.replace(1, vm.small[boolIndex(!v)])
			return nil
		}
		os.pop()
		vm.pushPC(right, 0)

	case OpIf:
		then := next(pc).(*Array)
		if !IsFalse(os.pop()) {
			vm.pushPC(then, 0)
		}

	case OpIfElse:
		then, els := next(pc).(*Array), next(pc).(*Array)
		if !IsFalse(os.pop()) {
			vm.pushPC(then, 0)
		} else {
			vm.pushPC(els, 0)
		}

	case OpIfBreak:
		if IsFalse(os.pop()) {
			return vm.doBreak()
		}

	case OpBreak:
		return vm.doBreak()

	case OpContinue:
		return vm.doContinue()

	case OpLoop:
		body, entry := next(pc).(*Array), next(pc).(*Int)
		st.xs.push(vm.opLooper)
		vm.pushPC(body, int(entry.V))

	case OpRewind:
		pc.Next = 0

	case OpSwitch:
		cases, body := next(pc).(*Map), next(pc).(*Array)
		s := cases.find(os.pop())
		if s.key == nil {
			s = cases.find(vm.opDefault)
		}
		if s.key != nil {
			st.xs.push(vm.opSwitch)
			vm.pushPC(body, int(s.val.(*Int).V))
		}

	case OpForall:
		body := next(pc).(*Array)
		fa := &Forall{Header: Header{tag: TagForall}, Index: -1, Aggr: os.peek(0), Body: body}
		if os.peek(4) != Object(Null) {
			fa.VAggr, fa.VKey = os.peek(4), os.peek(3)
		}
		if os.peek(2) != Object(Null) {
			fa.KAggr, fa.KKey = os.peek(2), os.peek(1)
		}
		vm.rego(fa, 72)
		os.truncate(os.top - 5)
		st.xs.push(fa)
		fa.Decref()

	case OpReturn:
		return vm.doReturn()

	case OpOnerror:
		try, handler := next(pc).(*Array), next(pc).(*Array)
		st.xs.push(vm.newCatch(handler, os.top, st.vs.top, 0))
		vm.pushPC(try, 0)

	case OpCritsect:
		code := next(pc).(*Array)
		st.xs.push(vm.newCatch(nil, os.top, st.vs.top, catchCritsect))
		vm.cur.critsect++
		vm.pushPC(code, 0)

	case OpWaitfor:
		vm.waitfor(os.pop())

	default:
		return fmt.Errorf("unknown operator %s", op.Ecode)
	}
	return nil
}

func boolIndex(b bool) int {
	if b {
		return 1 - smallIntMin
	}
	return -smallIntMin
}
