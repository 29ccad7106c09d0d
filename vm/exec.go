package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Execution context
// ---------------------------------------------------------------------------

// Stacks holds the three engine stacks of one context together with the
// pc closet and the scratch number cells, both indexed by stack depth.
type Stacks struct {
	xs *Array // control frames, pcs, catch frames, loop markers
	os *Array // operands
	vs *Array // scopes; the top is the current scope

	pcs    []*PC
	ints   []*Int
	floats []*Float
}

// ExecStatus is the lifecycle state of a context.
type ExecStatus int

const (
	ExecActive ExecStatus = iota
	ExecFinished
	ExecFailed
)

func (s ExecStatus) String() string {
	switch s {
	case ExecActive:
		return "active"
	case ExecFinished:
		return "finished"
	case ExecFailed:
		return "failed"
	}
	return "unknown"
}

// Exec is an execution context: a green thread with its own stacks.
type Exec struct {
	Header
	ID     uuid.UUID
	stk    *Stacks
	status ExecStatus
	result Object
	errMsg string

	waitfor  Object
	critsect int
	src      *Src
	budget   int
	checks   int

	fn   Object
	args []Object
}

var execType = &Type{
	Name: "exec",
	Mark: func(vm *VM, o Object) int {
		x := o.(*Exec)
		if st := x.stk; st != nil {
			vm.Mark(st.xs)
			vm.Mark(st.os)
			vm.Mark(st.vs)
			for _, pc := range st.pcs {
				if pc != nil {
					vm.Mark(pc)
				}
			}
			for _, t := range st.ints {
				if t != nil {
					vm.Mark(t)
				}
			}
			for _, t := range st.floats {
				if t != nil {
					vm.Mark(t)
				}
			}
		}
		if x.result != nil {
			vm.Mark(x.result)
		}
		if x.waitfor != nil {
			vm.Mark(x.waitfor)
		}
		if x.src != nil {
			vm.Mark(x.src)
		}
		if x.fn != nil {
			vm.Mark(x.fn)
		}
		for _, a := range x.args {
			vm.Mark(a)
		}
		return 128
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		x := o.(*Exec)
		s, ok := k.(*String)
		if !ok {
			return Null, nil
		}
		switch s.S {
		case "status":
			return vm.Str(x.status.String()), nil
		case "result":
			if x.result == nil {
				return Null, nil
			}
			return x.result, nil
		case "error":
			if x.status != ExecFailed {
				return Null, nil
			}
			return vm.Str(x.errMsg), nil
		case "id":
			return vm.Str(x.ID.String()), nil
		}
		return Null, nil
	},
	ObjName: func(vm *VM, o Object) string {
		return fmt.Sprintf("exec %s", o.(*Exec).ID.String()[:8])
	},
}

// newExec builds a context with empty stacks whose scope stack starts at
// scope.
func (vm *VM) newExec(scope *Map) *Exec {
	st := &Stacks{
		xs: vm.NewArray(80),
		os: vm.NewArray(80),
		vs: vm.NewArray(80),
	}
	x := &Exec{Header: Header{tag: TagExec}, ID: uuid.New(), stk: st, budget: vm.cfg.CheckInterval}
	vm.rego(x, 128)
	st.xs.Decref()
	st.os.Decref()
	st.vs.Decref()
	if scope != nil {
		st.vs.push(scope)
	}
	return x
}

// Status reports the context's state.
func (x *Exec) Status() ExecStatus { return x.status }

// Result returns the value a finished thread returned.
func (x *Exec) Result() Object { return x.result }

// Err returns the message of a failed thread.
func (x *Exec) Err() string { return x.errMsg }

// WaitingOn returns the token the context is blocked on, or nil.
func (x *Exec) WaitingOn() Object { return x.waitfor }

// Critsect returns the critical section depth.
func (x *Exec) Critsect() int { return x.critsect }

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

// Scope returns the current scope.
func (vm *VM) Scope() *Map {
	return vm.stk.vs.Top().(*Map)
}

// PushScope makes m the current scope until PopScope.
func (vm *VM) PushScope(m *Map) {
	vm.stk.vs.push(m)
}

// PopScope restores the previous scope.
func (vm *VM) PopScope() {
	vm.stk.vs.pop()
}

// pushPC pushes the pooled cursor for the current exec stack depth,
// positioned at element next of code.
func (vm *VM) pushPC(code *Array, next int) {
	st := vm.stk
	d := st.xs.top
	for d >= len(st.pcs) {
		st.pcs = append(st.pcs, nil)
	}
	pc := st.pcs[d]
	if pc == nil {
		pc = &PC{Header: Header{tag: TagPC}}
		vm.rego(pc, 32)
		pc.nrefs = 0
		st.pcs[d] = pc
	}
	pc.Code = code
	pc.Next = next
	st.xs.push(pc)
}

// pushCode arranges for code to be executed next.
func (vm *VM) pushCode(code Object) {
	if a, ok := code.(*Array); ok {
		vm.pushPC(a, 0)
		return
	}
	vm.stk.xs.push(code)
}

// checkStacks makes sure every stack has room for a burst of pushes
// without further checks.
func (vm *VM) checkStacks() error {
	st := vm.stk
	const headroom = 64
	st.xs.reserve(headroom)
	st.os.reserve(headroom)
	st.vs.reserve(headroom)
	if st.xs.top > vm.cfg.MaxDepth {
		return fmt.Errorf("excessive recursion")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Forall iteration state
// ---------------------------------------------------------------------------

// Forall steps through the members of an aggregate, assigning each value
// and key before running the body.
type Forall struct {
	Header
	Index int
	Aggr  Object
	VAggr Object
	VKey  Object
	KAggr Object
	KKey  Object
	Body  *Array
}

var forallType = &Type{
	Name: "forall",
	Mark: func(vm *VM, o Object) int {
		fa := o.(*Forall)
		for _, m := range []Object{fa.Aggr, fa.VAggr, fa.VKey, fa.KAggr, fa.KKey} {
			if m != nil {
				vm.Mark(m)
			}
		}
		vm.Mark(fa.Body)
		return 72
	},
}

// step advances to the next member. It reports false when the aggregate
// is exhausted.
func (vm *VM) forallStep(fa *Forall) (bool, error) {
	var val, key Object
	fa.Index++
	switch a := fa.Aggr.(type) {
	case *NullObj:
		return false, nil
	case *Array:
		if fa.Index >= a.Len() {
			return false, nil
		}
		val = a.At(fa.Index)
		if fa.KAggr != nil {
			key = vm.NewInt(int64(fa.Index))
			defer key.Head().Decref()
		}
	case *Map:
		for fa.Index < len(a.slots) && a.slots[fa.Index].key == nil {
			fa.Index++
		}
		if fa.Index >= len(a.slots) {
			return false, nil
		}
		key, val = a.slots[fa.Index].key, a.slots[fa.Index].val
	case *Set:
		for fa.Index < len(a.slots) && a.slots[fa.Index] == nil {
			fa.Index++
		}
		if fa.Index >= len(a.slots) {
			return false, nil
		}
		val = a.slots[fa.Index]
		key = val
	case *String:
		if fa.Index >= len(a.S) {
			return false, nil
		}
		val = vm.NewString(a.S[fa.Index : fa.Index+1])
		defer val.Head().Decref()
		if fa.KAggr != nil {
			key = vm.NewInt(int64(fa.Index))
			defer key.Head().Decref()
		}
	default:
		return false, fmt.Errorf("attempt to forall over %s", vm.ObjName(fa.Aggr))
	}
	if fa.VAggr != nil {
		if err := vm.Assign(fa.VAggr, fa.VKey, val); err != nil {
			return false, err
		}
	}
	if fa.KAggr != nil {
		if err := vm.Assign(fa.KAggr, fa.KKey, key); err != nil {
			return false, err
		}
	}
	return true, nil
}
