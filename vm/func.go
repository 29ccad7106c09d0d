package vm

import "fmt"

// ---------------------------------------------------------------------------
// Func: compiled function
// ---------------------------------------------------------------------------

// Func is a compiled function. Autos is the prototype local scope; each
// call runs in a copy of it with the arguments assigned.
type Func struct {
	Header
	Code  *Array
	Args  *Array
	Autos *Map
	Name  *String
}

var funcType = &Type{
	Name: "func",
	Mark: func(vm *VM, o Object) int {
		f := o.(*Func)
		vm.Mark(f.Code)
		vm.Mark(f.Args)
		vm.Mark(f.Autos)
		if f.Name != nil {
			vm.Mark(f.Name)
		}
		return 56
	},
	Hash: func(o Object) uint32 {
		f := o.(*Func)
		return identityHash(f.Code)*31 + identityHash(f.Autos)
	},
	Equal: func(a, b Object) bool {
		x, y := a.(*Func), b.(*Func)
		return x.Code == y.Code && x.Args == y.Args && x.Autos == y.Autos && x.Name == y.Name
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		f := o.(*Func)
		s, ok := k.(*String)
		if !ok {
			return Null, nil
		}
		switch s.S {
		case "name":
			if f.Name == nil {
				return Null, nil
			}
			return f.Name, nil
		case "args":
			return f.Args, nil
		case "autos":
			return f.Autos, nil
		}
		return Null, nil
	},
	ObjName: func(vm *VM, o Object) string {
		if f := o.(*Func); f.Name != nil {
			return "func " + f.Name.S + "()"
		}
		return "func"
	},
	Call: funcCall,
}

// NewFunc returns a function over code. The parts are reached through the
// function when marking, so callers may drop their references afterwards.
func (vm *VM) NewFunc(code, args *Array, autos *Map, name *String) *Func {
	f := &Func{Header: Header{tag: TagFunc}, Code: code, Args: args, Autos: autos, Name: name}
	vm.rego(f, 56)
	return f
}

// funcCall sets up a new activation: a catch frame marking the call, a
// copy of the prototype scope holding the arguments, and a pc at the top of
// the code. The return op unwinds to the catch frame.
func funcCall(vm *VM, o, subject Object) error {
	f := o.(*Func)
	st := vm.stk
	nargs := int(st.os.peek(1).(*Int).V)
	base := st.os.top - 2 - nargs

	scope := vm.CopyMap(f.Autos)
	params := f.Args.Len()
	var vargs *Array
	for i := 0; i < nargs; i++ {
		arg := st.os.buf[base+i]
		if i < params {
			if err := vm.mapAssignBase(scope, f.Args.At(i), arg); err != nil {
				scope.Decref()
				return err
			}
			continue
		}
		if vargs == nil {
			vargs = vm.NewArray(nargs - params)
			vm.mapAssignBase(scope, vm.sVargs, vargs)
			vargs.Decref()
		}
		vargs.Push(arg)
	}
	if subject != nil {
		vm.mapAssignBase(scope, vm.sThis, subject)
	}
	st.os.truncate(base)

	c := vm.newCatch(nil, base, st.vs.top, catchFunc)
	st.xs.push(c)
	st.vs.push(scope)
	scope.Decref()
	if st.xs.top > vm.cfg.MaxDepth {
		return fmt.Errorf("excessive recursion")
	}
	vm.pushPC(f.Code, 0)
	return nil
}

// ---------------------------------------------------------------------------
// CFunc: native function
// ---------------------------------------------------------------------------

// NativeFunc is the Go implementation of a native function. args views the
// operand stack and is only valid until the function returns. It must end
// with Ret, RetNew or Stage; returning without one yields null.
type NativeFunc func(vm *VM, args []Object) error

// CFunc wraps a NativeFunc with its script name and optional bound values.
type CFunc struct {
	Header
	Name string
	Fn   NativeFunc
	Arg1 any
	Arg2 any
}

var cfuncType = &Type{
	Name: "cfunc",
	ObjName: func(vm *VM, o Object) string {
		return o.(*CFunc).Name + "()"
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		if s, ok := k.(*String); ok && s.S == "name" {
			return vm.Str(o.(*CFunc).Name), nil
		}
		return Null, nil
	},
	Call: cfuncCall,
}

// NewCFunc wraps fn.
func (vm *VM) NewCFunc(name string, fn NativeFunc) *CFunc {
	c := &CFunc{Header: Header{tag: TagCFunc}, Name: name, Fn: fn}
	vm.rego(c, 48)
	return c
}

// callState describes the native call in progress.
type callState struct {
	base    int
	fn      *CFunc
	subject Object
	done    bool
}

func cfuncCall(vm *VM, o, subject Object) error {
	c := o.(*CFunc)
	st := vm.stk
	nargs := int(st.os.peek(1).(*Int).V)
	base := st.os.top - 2 - nargs
	args := st.os.buf[base : base+nargs : base+nargs]

	saved := vm.call
	vm.call = callState{base: base, fn: c, subject: subject}
	err := c.Fn(vm, args)
	done := vm.call.done
	vm.call = saved
	if err != nil {
		return err
	}
	if !done {
		st := vm.stk
		st.os.truncate(base)
		st.os.push(Null)
	}
	return nil
}

// Ret replaces the native's arguments with o, which the caller keeps
// ownership of.
func (vm *VM) Ret(o Object) error {
	st := vm.stk
	st.os.truncate(vm.call.base)
	st.os.push(o)
	vm.call.done = true
	return nil
}

// RetNew is Ret for a freshly constructed object; it drops the
// constructor's reference.
func (vm *VM) RetNew(o Object) error {
	vm.Ret(o)
	o.Head().Decref()
	return nil
}

// Stage replaces the native's arguments with a call of callee and lets the
// dispatch loop perform it once the native returns.
func (vm *VM) Stage(callee Object, args ...Object) error {
	st := vm.stk
	st.os.truncate(vm.call.base)
	st.os.reserve(len(args) + 2)
	for _, a := range args {
		st.os.push(a)
	}
	n := vm.NewInt(int64(len(args)))
	st.os.push(n)
	n.Decref()
	st.os.push(callee)
	st.xs.push(vm.opCall)
	vm.call.done = true
	return nil
}

// Native returns the native function currently running.
func (vm *VM) Native() *CFunc { return vm.call.fn }

// Subject returns the object a native was invoked on as a method, or nil.
func (vm *VM) Subject() Object { return vm.call.subject }

// ---------------------------------------------------------------------------
// Method: bound subject and callable
// ---------------------------------------------------------------------------

// Method binds a callable to the object it was fetched from.
type Method struct {
	Header
	Subject  Object
	Callable Object
}

var methodType = &Type{
	Name: "method",
	Mark: func(vm *VM, o Object) int {
		m := o.(*Method)
		vm.Mark(m.Subject)
		vm.Mark(m.Callable)
		return 40
	},
	Call: func(vm *VM, o, subject Object) error {
		m := o.(*Method)
		return vm.callObject(m.Callable, m.Subject)
	},
}

// NewMethod binds callable to subject.
func (vm *VM) NewMethod(subject, callable Object) *Method {
	m := &Method{Header: Header{tag: TagMethod}, Subject: subject, Callable: callable}
	vm.rego(m, 40)
	return m
}

// callObject dispatches through the callee's call operation.
func (vm *VM) callObject(callee, subject Object) error {
	t := types[callee.Head().tag]
	if t.Call == nil {
		return fmt.Errorf("attempt to call %s", vm.ObjName(callee))
	}
	return t.Call(vm, callee, subject)
}
