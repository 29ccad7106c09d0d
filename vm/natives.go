package vm

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// NativeDef describes one native function for Install.
type NativeDef struct {
	Name string
	Fn   NativeFunc
	Arg1 any
	Arg2 any
}

// Install binds each native in defs into scope under its name.
func (vm *VM) Install(scope *Map, defs []NativeDef) error {
	for _, d := range defs {
		c := vm.NewCFunc(d.Name, d.Fn)
		c.Arg1, c.Arg2 = d.Arg1, d.Arg2
		err := vm.Set(scope, d.Name, c)
		c.Decref()
		if err != nil {
			return err
		}
	}
	return nil
}

var coreNatives = []NativeDef{
	{Name: "typeof", Fn: fnTypeof},
	{Name: "nels", Fn: fnNels},
	{Name: "copy", Fn: fnCopy},
	{Name: "super", Fn: fnSuper},
	{Name: "del", Fn: fnDel},
	{Name: "eq", Fn: fnEq},
	{Name: "array", Fn: fnArray},
	{Name: "set", Fn: fnSet},
	{Name: "struct", Fn: fnStruct},
	{Name: "push", Fn: fnPush, Arg1: false},
	{Name: "rpush", Fn: fnPush, Arg1: true},
	{Name: "pop", Fn: fnPop, Arg1: false},
	{Name: "rpop", Fn: fnPop, Arg1: true},
	{Name: "top", Fn: fnTop},
	{Name: "keys", Fn: fnKeys},
	{Name: "int", Fn: fnInt},
	{Name: "float", Fn: fnFloat},
	{Name: "string", Fn: fnString},
	{Name: "fail", Fn: fnFail},
	{Name: "call", Fn: fnCall},
	{Name: "thread", Fn: fnThread},
	{Name: "wakeup", Fn: fnWakeup},
	{Name: "sleep", Fn: fnSleep},
	{Name: "sort", Fn: fnSort},
	{Name: "regexp", Fn: fnRegexp, Arg1: false},
	{Name: "regexpi", Fn: fnRegexp, Arg1: true},
	{Name: "sprintf", Fn: fnSprintf},
	{Name: "printf", Fn: fnPrintf},
	{Name: "parse", Fn: fnParse},
	{Name: "eval", Fn: fnEval},
	{Name: "gc", Fn: fnGC},
	{Name: "alloc", Fn: fnAlloc},
	{Name: "save", Fn: fnSave},
	{Name: "restore", Fn: fnRestore},
	{Name: "exit", Fn: fnExit},
	{Name: "fetch", Fn: fnFetch},
	{Name: "assign", Fn: fnAssign},
	{Name: "interval", Fn: fnInterval},
}

func (vm *VM) installCoreNatives() error {
	if err := vm.Install(vm.Externs, coreNatives); err != nil {
		return err
	}
	if err := vm.Set(vm.Externs, "NULL", Null); err != nil {
		return err
	}
	v := vm.NewString(Version)
	defer v.Decref()
	return vm.Set(vm.Externs, "version", v)
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func fnTypeof(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	return vm.RetNew(vm.NewString(TypeName(o)))
}

func fnNels(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	n := 1
	switch x := o.(type) {
	case *Array:
		n = x.Len()
	case *Map:
		n = x.Len()
	case *Set:
		n = x.Len()
	case *String:
		n = len(x.S)
	case *Mem:
		n = len(x.B)
	case *NullObj:
		n = 0
	}
	return vm.RetNew(vm.NewInt(int64(n)))
}

func fnCopy(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	c, err := vm.Copy(o)
	if err != nil {
		return err
	}
	return vm.RetNew(c)
}

func fnSuper(vm *VM, args []Object) error {
	var m *Map
	var super Object
	if err := vm.Args(args, "d*o", &m, &super); err != nil {
		return err
	}
	old := m.Super()
	if super != nil {
		if super == Object(Null) {
			super = nil
		}
		if err := vm.SetSuper(m, super); err != nil {
			return err
		}
	}
	if old == nil {
		return vm.Ret(Null)
	}
	return vm.Ret(old)
}

func fnDel(vm *VM, args []Object) error {
	var aggr, key Object
	if err := vm.Args(args, "oo", &aggr, &key); err != nil {
		return err
	}
	switch x := aggr.(type) {
	case *Map:
		return vm.Unassign(x, key)
	case *Set:
		if x.flags&FlagAtom != 0 {
			return fmt.Errorf("attempt to modify an atomic set")
		}
		x.Remove(key)
		return nil
	}
	return vm.ArgError(0, aggr)
}

func fnEq(vm *VM, args []Object) error {
	var a, b Object
	if err := vm.Args(args, "oo", &a, &b); err != nil {
		return err
	}
	return vm.Ret(vm.small[boolIndex(a == b)])
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func fnArray(vm *VM, args []Object) error {
	return vm.RetNew(vm.NewArrayOf(args...))
}

func fnSet(vm *VM, args []Object) error {
	s := vm.NewSet()
	for _, a := range args {
		s.Add(a)
	}
	return vm.RetNew(s)
}

func fnStruct(vm *VM, args []Object) error {
	if len(args)%2 != 0 {
		return fmt.Errorf("odd number of arguments to %s", vm.nativeName())
	}
	m := vm.NewMap()
	for i := 0; i < len(args); i += 2 {
		if err := vm.mapAssignBase(m, args[i], args[i+1]); err != nil {
			m.Decref()
			return err
		}
	}
	return vm.RetNew(m)
}

// ---------------------------------------------------------------------------
// Arrays as stacks and queues
// ---------------------------------------------------------------------------

func mutableArray(vm *VM, a *Array) error {
	if a.flags&FlagAtom != 0 {
		return fmt.Errorf("attempt to modify an atomic array")
	}
	return nil
}

func fnPush(vm *VM, args []Object) error {
	var a *Array
	var o Object
	if err := vm.Args(args, "ao", &a, &o); err != nil {
		return err
	}
	if err := mutableArray(vm, a); err != nil {
		return err
	}
	if vm.Native().Arg1.(bool) {
		a.RPush(o)
	} else {
		a.Push(o)
	}
	return vm.Ret(o)
}

func fnPop(vm *VM, args []Object) error {
	var a *Array
	if err := vm.Args(args, "a", &a); err != nil {
		return err
	}
	if err := mutableArray(vm, a); err != nil {
		return err
	}
	if a.Len() == 0 {
		return vm.Ret(Null)
	}
	var o Object
	if vm.Native().Arg1.(bool) {
		o = a.RPop()
	} else {
		o = a.Pop()
	}
	return vm.Ret(o)
}

func fnTop(vm *VM, args []Object) error {
	var a *Array
	var k int64
	if err := vm.Args(args, "a*i", &a, &k); err != nil {
		return err
	}
	i := int64(a.Len()) - 1 + k
	if i < 0 || i >= int64(a.Len()) {
		return vm.Ret(Null)
	}
	return vm.Ret(a.At(int(i)))
}

func fnKeys(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	switch x := o.(type) {
	case *Map:
		return vm.RetNew(vm.NewArrayOf(x.Keys()...))
	case *Set:
		return vm.RetNew(vm.NewArrayOf(x.Members()...))
	}
	return vm.ArgError(0, o)
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func fnInt(vm *VM, args []Object) error {
	var o Object
	var base int64
	if err := vm.Args(args, "o*i", &o, &base); err != nil {
		return err
	}
	var v int64
	switch x := o.(type) {
	case *Int:
		return vm.Ret(x)
	case *Float:
		v = int64(x.V)
	case *String:
		s := strings.TrimSpace(x.S)
		if n, err := strconv.ParseInt(s, int(base), 64); err == nil {
			v = n
		} else if f, err := strconv.ParseFloat(s, 64); err == nil && base == 0 {
			v = int64(f)
		}
	}
	return vm.RetNew(vm.NewInt(v))
}

func fnFloat(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	var v float64
	switch x := o.(type) {
	case *Float:
		return vm.Ret(x)
	case *Int:
		v = float64(x.V)
	case *String:
		v, _ = strconv.ParseFloat(strings.TrimSpace(x.S), 64)
	}
	return vm.RetNew(vm.NewFloat(v))
}

func fnString(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	switch x := o.(type) {
	case *String:
		return vm.Ret(x)
	case *Int, *Float, *NullObj, *Mem, *Regexp:
		return vm.RetNew(vm.NewString(vm.StringOf(o)))
	}
	return vm.RetNew(vm.NewString(vm.ObjName(o)))
}

// ---------------------------------------------------------------------------
// Control
// ---------------------------------------------------------------------------

func fnFail(vm *VM, args []Object) error {
	var msg string
	if err := vm.Args(args, "s", &msg); err != nil {
		return err
	}
	return errors.New(msg)
}

// fnCall calls its first argument with the remaining ones, the last of
// which is an array of further arguments (or NULL).
func fnCall(vm *VM, args []Object) error {
	if len(args) < 2 {
		return vm.ArgCountError(len(args), 2)
	}
	callee := args[0]
	last := args[len(args)-1]
	call := append([]Object(nil), args[1:len(args)-1]...)
	switch x := last.(type) {
	case *Array:
		call = append(call, x.Slice()...)
	case *NullObj:
	default:
		return vm.ArgError(len(args)-1, last)
	}
	return vm.Stage(callee, call...)
}

func fnExit(vm *VM, args []Object) error {
	var code int64
	if err := vm.Args(args, "*i", &code); err != nil {
		return err
	}
	return &ExitError{Code: int(code)}
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

func fnThread(vm *VM, args []Object) error {
	if len(args) < 1 {
		return vm.ArgCountError(0, 1)
	}
	if TypeOf(args[0]).Call == nil {
		return vm.ArgError(0, args[0])
	}
	return vm.RetNew(vm.Spawn(args[0], args[1:]))
}

func fnWakeup(vm *VM, args []Object) error {
	var token Object
	if err := vm.Args(args, "o", &token); err != nil {
		return err
	}
	vm.Wakeup(token)
	return vm.Ret(token)
}

func fnSleep(vm *VM, args []Object) error {
	var secs float64
	if err := vm.Args(args, "n", &secs); err != nil {
		return err
	}
	x := vm.Leave()
	time.Sleep(time.Duration(secs * float64(time.Second)))
	vm.Enter(x)
	return nil
}

// ---------------------------------------------------------------------------
// Sorting
// ---------------------------------------------------------------------------

// fnSort heap sorts an array in place, comparing with an optional script
// function returning a negative, zero or positive int. The array is only
// ever permuted, even when the comparison is inconsistent.
func fnSort(vm *VM, args []Object) error {
	var a *Array
	var cmp Object
	if err := vm.Args(args, "a*o", &a, &cmp); err != nil {
		return err
	}
	if err := mutableArray(vm, a); err != nil {
		return err
	}
	a.Normalize()
	less := func(i, j int) (bool, error) {
		if a.bot != 0 || i >= a.top || j >= a.top {
			return false, nil
		}
		x, y := a.buf[i], a.buf[j]
		if cmp == nil {
			c, err := vm.compare(x, y)
			return c < 0, err
		}
		r, err := vm.Call(cmp, x, y)
		if err != nil {
			return false, err
		}
		defer r.Head().Decref()
		n, ok := r.(*Int)
		if !ok {
			return false, fmt.Errorf("comparison function returned %s", TypeName(r))
		}
		return n.V < 0, nil
	}
	siftDown := func(root, end int) error {
		for {
			child := 2*root + 1
			if child >= end {
				return nil
			}
			if child+1 < end {
				lt, err := less(child, child+1)
				if err != nil {
					return err
				}
				if lt {
					child++
				}
			}
			lt, err := less(root, child)
			if err != nil {
				return err
			}
			if !lt {
				return nil
			}
			a.swap(root, child)
			root = child
		}
	}
	n := a.Len()
	for i := n/2 - 1; i >= 0; i-- {
		if err := siftDown(i, n); err != nil {
			return err
		}
	}
	for end := n - 1; end > 0; end-- {
		a.swap(0, end)
		if err := siftDown(0, end); err != nil {
			return err
		}
	}
	return vm.Ret(a)
}

// swap exchanges two elements. The array length may have changed under a
// comparison callback, so out of range indexes are ignored.
func (a *Array) swap(i, j int) {
	if a.bot != 0 || i >= a.top || j >= a.top {
		return
	}
	a.buf[i], a.buf[j] = a.buf[j], a.buf[i]
}

// compare orders numbers numerically and strings lexically.
func (vm *VM) compare(x, y Object) (int, error) {
	switch a := x.(type) {
	case *Int:
		switch b := y.(type) {
		case *Int:
			return cmp3(a.V < b.V, a.V > b.V), nil
		case *Float:
			return cmp3(float64(a.V) < b.V, float64(a.V) > b.V), nil
		}
	case *Float:
		switch b := y.(type) {
		case *Float:
			return cmp3(a.V < b.V, a.V > b.V), nil
		case *Int:
			return cmp3(a.V < float64(b.V), a.V > float64(b.V)), nil
		}
	case *String:
		if b, ok := y.(*String); ok {
			return strings.Compare(a.S, b.S), nil
		}
	}
	return 0, fmt.Errorf("attempt to compare %s with %s", TypeName(x), TypeName(y))
}

func cmp3(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

func fnRegexp(vm *VM, args []Object) error {
	var src string
	if err := vm.Args(args, "s", &src); err != nil {
		return err
	}
	re, err := vm.NewRegexp(src, vm.Native().Arg1.(bool))
	if err != nil {
		return err
	}
	return vm.RetNew(re)
}

func fnSprintf(vm *VM, args []Object) error {
	var format string
	if len(args) < 1 {
		return vm.ArgCountError(0, 1)
	}
	if err := vm.Args(args[:1], "s", &format); err != nil {
		return err
	}
	s, err := vm.Sprintf(format, args[1:])
	if err != nil {
		return err
	}
	return vm.RetNew(vm.NewString(s))
}

func fnPrintf(vm *VM, args []Object) error {
	var w io.Writer = vm.cfg.Stdout
	if len(args) > 0 {
		if f, ok := args[0].(*File); ok {
			w = fileWriter{f}
			args = args[1:]
		}
	}
	if len(args) < 1 {
		return vm.ArgCountError(0, 1)
	}
	s, ok := args[0].(*String)
	if !ok {
		return vm.ArgError(0, args[0])
	}
	out, err := vm.Sprintf(s.S, args[1:])
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

type fileWriter struct{ f *File }

func (w fileWriter) Write(p []byte) (int, error) {
	if err := w.f.WriteString(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// fnParse compiles and runs source, a string or file, in scope or a fresh
// module scope, and returns the scope.
func fnParse(vm *VM, args []Object) error {
	var src Object
	var scope *Map
	if err := vm.Args(args, "o*d", &src, &scope); err != nil {
		return err
	}
	var f *File
	switch x := src.(type) {
	case *String:
		f = vm.StringFile("parse", x.S)
		defer f.Decref()
	case *File:
		f = x
	default:
		return vm.ArgError(0, src)
	}
	m := scope
	if m != nil {
		m.Incref()
	} else {
		m = vm.NewModuleScope()
	}
	if err := vm.ParseFile(f, m); err != nil {
		m.Decref()
		return err
	}
	return vm.RetNew(m)
}

// fnEval evaluates a string as an expression in scope, or the current
// scope. Other values evaluate to themselves.
func fnEval(vm *VM, args []Object) error {
	var o Object
	var scope *Map
	if err := vm.Args(args, "o*d", &o, &scope); err != nil {
		return err
	}
	s, ok := o.(*String)
	if !ok {
		return vm.Ret(o)
	}
	m := scope
	if m == nil {
		m = vm.Scope()
	}
	r, err := vm.EvalString(s.S, m)
	if err != nil {
		return err
	}
	return vm.RetNew(r)
}

// ---------------------------------------------------------------------------
// Memory and persistence
// ---------------------------------------------------------------------------

func fnGC(vm *VM, args []Object) error {
	stats := vm.collect()
	return vm.RetNew(vm.NewInt(int64(stats.Live)))
}

func fnAlloc(vm *VM, args []Object) error {
	var n int64
	if err := vm.Args(args, "i", &n); err != nil {
		return err
	}
	if n < 0 {
		return vm.ArgError(0, args[0])
	}
	return vm.RetNew(vm.NewMem(int(n)))
}

func fnSave(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	b, err := vm.Marshal(o)
	if err != nil {
		return err
	}
	return vm.RetNew(vm.NewString(string(b)))
}

func fnRestore(vm *VM, args []Object) error {
	var o Object
	if err := vm.Args(args, "o", &o); err != nil {
		return err
	}
	var b []byte
	switch x := o.(type) {
	case *String:
		b = []byte(x.S)
	case *Mem:
		b = x.B
	default:
		return vm.ArgError(0, o)
	}
	r, err := vm.Unmarshal(b)
	if err != nil {
		return err
	}
	return vm.RetNew(r)
}

// ---------------------------------------------------------------------------
// Generic access
// ---------------------------------------------------------------------------

func fnFetch(vm *VM, args []Object) error {
	var aggr, key Object
	if err := vm.Args(args, "oo", &aggr, &key); err != nil {
		return err
	}
	v, err := vm.Fetch(aggr, key)
	if err != nil {
		return err
	}
	return vm.Ret(v)
}

func fnAssign(vm *VM, args []Object) error {
	var aggr, key, val Object
	if err := vm.Args(args, "oo*o", &aggr, &key, &val); err != nil {
		return err
	}
	if val == nil {
		val = Null
	}
	if err := vm.Assign(aggr, key, val); err != nil {
		return err
	}
	return vm.Ret(val)
}

// fnInterval returns the part of a string or array starting at start and
// running for length elements, or to the end.
func fnInterval(vm *VM, args []Object) error {
	var o Object
	var start, length int64 = 0, -1
	if err := vm.Args(args, "oi*i", &o, &start, &length); err != nil {
		return err
	}
	clip := func(n int) (int, int) {
		s, l := int(start), int(length)
		if s < 0 {
			s += n
		}
		s = max(0, min(s, n))
		if l < 0 || s+l > n {
			l = n - s
		}
		return s, l
	}
	switch x := o.(type) {
	case *String:
		s, l := clip(len(x.S))
		return vm.RetNew(vm.NewString(x.S[s : s+l]))
	case *Array:
		s, l := clip(x.Len())
		r := vm.NewArray(l)
		for i := 0; i < l; i++ {
			r.Push(x.At(s + i))
		}
		return vm.RetNew(r)
	}
	return vm.ArgError(0, o)
}
