package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Handle: opaque native value
// ---------------------------------------------------------------------------

// Handle carries a Go value into scripts. Fetches and assignments go to the
// delegation parent, which is usually a class struct of methods.
type Handle struct {
	Header
	Ptr   any
	Name  *String
	super Object
}

var handleType = &Type{
	Name: "handle",
	Mark: func(vm *VM, o Object) int {
		h := o.(*Handle)
		if h.Name != nil {
			vm.Mark(h.Name)
		}
		if h.super != nil {
			vm.Mark(h.super)
		}
		return 48
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		h := o.(*Handle)
		val, ok, err := vm.fetchChain(h.super, k, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return Null, nil
		}
		return val, nil
	},
	Assign: func(vm *VM, o, k, val Object) error {
		h := o.(*Handle)
		ok, err := vm.assignChain(h.super, k, val, h)
		if err != nil {
			return err
		}
		if !ok {
			return assignFail(vm, o, k, val)
		}
		return nil
	},
	Super: func(o Object) Object { return o.(*Handle).super },
	FetchSuper: func(vm *VM, o, k, start Object) (Object, bool, error) {
		return nil, false, nil
	},
	AssignSuper: func(vm *VM, o, k, val, start Object) (bool, error) {
		return false, nil
	},
	ObjName: func(vm *VM, o Object) string {
		if h := o.(*Handle); h.Name != nil {
			return h.Name.S
		}
		return "handle"
	},
}

// NewHandle wraps ptr under the type name name with an optional parent.
func (vm *VM) NewHandle(ptr any, name string, super Object) *Handle {
	n := vm.NewString(name)
	h := &Handle{Header: Header{tag: TagHandle}, Ptr: ptr, Name: n, super: super}
	vm.rego(h, 48)
	n.Decref()
	return h
}

// ---------------------------------------------------------------------------
// Mem: raw byte block
// ---------------------------------------------------------------------------

// Mem is a fixed-size mutable block of bytes.
type Mem struct {
	Header
	B []byte
}

var memType = &Type{
	Name: "mem",
	Mark: func(vm *VM, o Object) int { return 32 + len(o.(*Mem).B) },
	Free: func(vm *VM, o Object) { o.(*Mem).B = nil },
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		m := o.(*Mem)
		i, ok := k.(*Int)
		if !ok {
			return fetchFail(vm, o, k)
		}
		if i.V < 0 || i.V >= int64(len(m.B)) {
			return Null, nil
		}
		n := vm.NewInt(int64(m.B[i.V]))
		n.Decref()
		return n, nil
	},
	Assign: func(vm *VM, o, k, val Object) error {
		m := o.(*Mem)
		i, ok := k.(*Int)
		b, ok2 := val.(*Int)
		if !ok || !ok2 || i.V < 0 || i.V >= int64(len(m.B)) {
			return assignFail(vm, o, k, val)
		}
		m.B[i.V] = byte(b.V)
		return nil
	},
}

// NewMem allocates a zeroed block of n bytes.
func (vm *VM) NewMem(n int) *Mem {
	m := &Mem{Header: Header{tag: TagMem}, B: make([]byte, n)}
	vm.rego(m, 32+n)
	return m
}

// ---------------------------------------------------------------------------
// Regexp
// ---------------------------------------------------------------------------

// Regexp is a compiled regular expression. Regexps are atoms keyed by
// their source and case folding.
type Regexp struct {
	Header
	Re     Matcher
	Source *String
	Fold   bool
}

// Matcher is the matching engine behind a Regexp. It reports submatch
// offsets in the form of regexp.Regexp.FindStringSubmatchIndex.
type Matcher interface {
	FindStringSubmatchIndex(s string) []int
	NumSubexp() int
}

var regexpType = &Type{
	Name: "regexp",
	Mark: func(vm *VM, o Object) int {
		vm.Mark(o.(*Regexp).Source)
		return 64
	},
	Hash: func(o Object) uint32 {
		r := o.(*Regexp)
		h := r.Source.hash
		if r.Fold {
			h = ^h
		}
		return h
	},
	Equal: func(a, b Object) bool {
		x, y := a.(*Regexp), b.(*Regexp)
		return x.Source == y.Source && x.Fold == y.Fold
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		r := o.(*Regexp)
		if s, ok := k.(*String); ok {
			switch s.S {
			case "pattern":
				return r.Source, nil
			case "subexp":
				n := vm.NewInt(int64(r.Re.NumSubexp()))
				n.Decref()
				return n, nil
			}
		}
		return Null, nil
	},
	ObjName: func(vm *VM, o Object) string {
		return "#" + o.(*Regexp).Source.S + "#"
	},
}

// NewRegexp returns the regexp atom for src, compiling it if needed.
func (vm *VM) NewRegexp(src string, fold bool) (*Regexp, error) {
	s := vm.NewString(src)
	defer s.Decref()
	probe := Regexp{Header: Header{tag: TagRegexp}, Source: s, Fold: fold}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Regexp), nil
	}
	pattern := src
	if fold && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := vm.compileRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s in regular expression %q", err, src)
	}
	r := &Regexp{Header: Header{tag: TagRegexp}, Re: re, Source: s, Fold: fold}
	vm.rego(r, 64+len(src))
	return vm.Atom(r, true).(*Regexp), nil
}

// Captures matches s and returns the captured substrings, or nil when r
// does not match. Element 0 is the whole match.
func (r *Regexp) Captures(s string) []string {
	idx := r.Re.FindStringSubmatchIndex(s)
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx)/2)
	for i := range out {
		if a, b := idx[2*i], idx[2*i+1]; a >= 0 {
			out[i] = s[a:b]
		}
	}
	return out
}
