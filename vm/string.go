package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// LookupCache remembers where a name was last found. It is valid while
// vers equals the VM's scope version and the lookup starts at start.
type LookupCache struct {
	start *Map
	slot  *mapSlot
	vers  uint32
}

// String is an immutable byte string. Strings created by the VM are atoms;
// an atom string used as a variable name carries a lookup cache.
type String struct {
	Header
	S    string
	hash uint32
	look LookupCache
}

var stringType = &Type{
	Name: "string",
	Mark: func(vm *VM, o Object) int { return 32 + len(o.(*String).S) },
	Hash: func(o Object) uint32 { return o.(*String).hash },
	Equal: func(a, b Object) bool {
		return a.(*String).S == b.(*String).S
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		s := o.(*String)
		i, ok := k.(*Int)
		if !ok {
			return fetchFail(vm, o, k)
		}
		if i.V < 0 || i.V >= int64(len(s.S)) {
			return Null, nil
		}
		return vm.Str(s.S[i.V : i.V+1]), nil
	},
	ObjName: func(vm *VM, o Object) string {
		s := o.(*String).S
		if len(s) > 24 {
			return strconv.Quote(s[:20]) + "..."
		}
		return strconv.Quote(s)
	},
}

func hashString(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// NewString returns the string atom for s with a new reference.
func (vm *VM) NewString(s string) *String {
	probe := String{Header: Header{tag: TagString}, S: s, hash: hashString(s)}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*String)
	}
	o := &String{Header: Header{tag: TagString}, S: s, hash: probe.hash}
	vm.rego(o, 32+len(s))
	return vm.Atom(o, true).(*String)
}

// Str is NewString without the new reference, for strings immediately
// stored somewhere the collector can see before the next allocation.
func (vm *VM) Str(s string) *String {
	o := vm.NewString(s)
	o.Decref()
	return o
}

// StringOf renders o the way the string() native does.
func (vm *VM) StringOf(o Object) string {
	switch x := o.(type) {
	case *String:
		return x.S
	case *Int:
		return strconv.FormatInt(x.V, 10)
	case *Float:
		return strconv.FormatFloat(x.V, 'g', -1, 64)
	case *NullObj:
		return "NULL"
	case *Regexp:
		return x.Source.S
	case *Mem:
		return string(x.B)
	}
	return fmt.Sprintf("<%s>", TypeName(o))
}
