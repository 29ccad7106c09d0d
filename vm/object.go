package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Object header
// ---------------------------------------------------------------------------

// Header flag bits.
const (
	FlagAtom uint8 = 1 << iota // member of the atom pool
	FlagMark                   // reached during the current collection
	FlagTemp                   // scratch number owned by an operand stack slot
)

// Header is embedded at the start of every value kind. The tag never
// changes once the object exists.
type Header struct {
	tag   uint8
	flags uint8
	nrefs int32  // references held outside the object graph
	leafz int32  // cost of an object that references nothing, else 0
	id    uint32 // registration serial, the identity hash
}

// Head returns the header. Embedding Header is enough to satisfy Object.
func (h *Header) Head() *Header { return h }

// Tag returns the index of the object's type in the type table.
func (h *Header) Tag() uint8 { return h.tag }

// IsAtom reports whether the object is the canonical member of the atom pool.
func (h *Header) IsAtom() bool { return h.flags&FlagAtom != 0 }

// IsTemp reports whether the object is a scratch number.
func (h *Header) IsTemp() bool { return h.flags&FlagTemp != 0 }

// Refs returns the extra-owner count.
func (h *Header) Refs() int { return int(h.nrefs) }

// Incref records an owner the collector cannot see.
func (h *Header) Incref() { h.nrefs++ }

// Decref drops an owner recorded by Incref or by a constructor.
func (h *Header) Decref() {
	if h.nrefs > 0 {
		h.nrefs--
	}
}

// Object is any value the interpreter manages.
type Object interface {
	Head() *Header
}

// ---------------------------------------------------------------------------
// Type table
// ---------------------------------------------------------------------------

// MaxTypes bounds the number of registered types.
const MaxTypes = 64

// Type is the bundle of polymorphic operations behind a tag. Mark, Free,
// Hash, Equal, Copy, Fetch and Assign are always present after
// registration; RegisterType fills missing ones with defaults. The others
// are optional capabilities.
type Type struct {
	Name string

	// Mark marks the children of o with vm.Mark and returns the cost of o.
	Mark func(vm *VM, o Object) int
	// Free releases backing storage. It never frees referenced objects.
	Free func(vm *VM, o Object)
	// Hash and Equal define atom pool identity. Equal is only called for
	// objects with the same tag.
	Hash  func(o Object) uint32
	Equal func(a, b Object) bool
	Copy  func(vm *VM, o Object) (Object, error)

	Fetch  func(vm *VM, o, k Object) (Object, error)
	Assign func(vm *VM, o, k, val Object) error

	// ObjName gives a short human-readable description used in messages.
	ObjName func(vm *VM, o Object) string
	// Call invokes o with the operand stack laid out as args, nargs, o.
	Call func(vm *VM, o, subject Object) error

	// Super returns the delegation parent of o or nil.
	Super func(o Object) Object
	// FetchSuper looks k up in o alone on behalf of a lookup that began at
	// start. It reports whether k was found and must not record anything
	// when it was not.
	FetchSuper func(vm *VM, o, k, start Object) (Object, bool, error)
	// AssignSuper assigns val to k in o only if k is already present.
	AssignSuper func(vm *VM, o, k, val, start Object) (bool, error)
	FetchBase   func(vm *VM, o, k Object) (Object, error)
	AssignBase  func(vm *VM, o, k, val Object) error
	FetchMethod func(vm *VM, o, k Object) (Object, error)
}

var (
	types  [MaxTypes]*Type
	ntypes int
)

// ErrTooManyTypes is returned when the type table is full.
var ErrTooManyTypes = errors.New("too many object types")

// RegisterType adds t to the type table and returns its tag.
func RegisterType(t *Type) (uint8, error) {
	if ntypes >= MaxTypes {
		return 0, ErrTooManyTypes
	}
	if t.Mark == nil {
		t.Mark = markLeaf
	}
	if t.Free == nil {
		t.Free = freeSimple
	}
	if t.Hash == nil {
		t.Hash = hashUnique
	}
	if t.Equal == nil {
		t.Equal = equalUnique
	}
	if t.Copy == nil {
		t.Copy = copySimple
	}
	if t.Fetch == nil {
		t.Fetch = fetchFail
	}
	if t.Assign == nil {
		t.Assign = assignFail
	}
	tag := uint8(ntypes)
	types[tag] = t
	ntypes++
	return tag, nil
}

func mustRegister(t *Type) uint8 {
	tag, err := RegisterType(t)
	if err != nil {
		panic(err)
	}
	return tag
}

// TypeOf returns the type of o.
func TypeOf(o Object) *Type {
	return types[o.Head().tag]
}

// TypeName returns the registered name of o's type.
func TypeName(o Object) string {
	return types[o.Head().tag].Name
}

// Core tags. init registers the core types in exactly this order.
const (
	TagNull uint8 = iota
	TagInt
	TagFloat
	TagString
	TagArray
	TagStruct
	TagSet
	TagPtr
	TagFunc
	TagCFunc
	TagMethod
	TagFile
	TagHandle
	TagMem
	TagRegexp
	TagExec
	TagOp
	TagPC
	TagSrc
	TagCatch
	TagParse
	TagForall
)

func init() {
	core := []*Type{
		nullType, intType, floatType, stringType, arrayType, structType,
		setType, ptrType, funcType, cfuncType, methodType, fileType,
		handleType, memType, regexpType, execType, opType, pcType,
		srcType, catchType, parseType, forallType,
	}
	for i, t := range core {
		if tag := mustRegister(t); tag != uint8(i) {
			panic(fmt.Sprintf("core type %s registered as tag %d", t.Name, tag))
		}
	}
}

// ---------------------------------------------------------------------------
// Default operations
// ---------------------------------------------------------------------------

func markLeaf(vm *VM, o Object) int { return 16 }

func freeSimple(vm *VM, o Object) {}

// hashUnique hashes by identity.
func hashUnique(o Object) uint32 {
	return identityHash(o)
}

func equalUnique(a, b Object) bool { return a == b }

// copySimple returns o itself, for kinds whose values cannot change.
func copySimple(vm *VM, o Object) (Object, error) {
	o.Head().Incref()
	return o, nil
}

func fetchFail(vm *VM, o, k Object) (Object, error) {
	return nil, fmt.Errorf("attempt to read %s keyed by %s", vm.ObjName(o), vm.ObjName(k))
}

func assignFail(vm *VM, o, k, val Object) error {
	return fmt.Errorf("attempt to set %s keyed by %s to %s", vm.ObjName(o), vm.ObjName(k), vm.ObjName(val))
}

func identityHash(o Object) uint32 {
	h := o.Head().id * 2654435761
	return h ^ h>>15
}

// ---------------------------------------------------------------------------
// Generic dispatch
// ---------------------------------------------------------------------------

// Fetch returns o[k].
func (vm *VM) Fetch(o, k Object) (Object, error) {
	return types[o.Head().tag].Fetch(vm, o, k)
}

// Assign sets o[k] = val.
func (vm *VM) Assign(o, k, val Object) error {
	return types[o.Head().tag].Assign(vm, o, k, val)
}

// FetchBase fetches without consulting delegation parents.
func (vm *VM) FetchBase(o, k Object) (Object, error) {
	t := types[o.Head().tag]
	if t.FetchBase != nil {
		return t.FetchBase(vm, o, k)
	}
	return t.Fetch(vm, o, k)
}

// AssignBase assigns into o itself, never into a delegation parent.
func (vm *VM) AssignBase(o, k, val Object) error {
	t := types[o.Head().tag]
	if t.AssignBase != nil {
		return t.AssignBase(vm, o, k, val)
	}
	return t.Assign(vm, o, k, val)
}

// Copy returns a new reference to a copy of o.
func (vm *VM) Copy(o Object) (Object, error) {
	return types[o.Head().tag].Copy(vm, o)
}

// Hash returns the atom pool hash of o.
func Hash(o Object) uint32 {
	return types[o.Head().tag].Hash(o)
}

// Equal reports tag-and-value equality as the atom pool sees it.
func Equal(a, b Object) bool {
	if a == b {
		return true
	}
	if a.Head().tag != b.Head().tag {
		return false
	}
	return types[a.Head().tag].Equal(a, b)
}

// SuperOf returns the delegation parent of o, or nil.
func SuperOf(o Object) Object {
	t := types[o.Head().tag]
	if t.Super == nil {
		return nil
	}
	return t.Super(o)
}

// fetchChain looks k up in o and then along its delegation chain.
func (vm *VM) fetchChain(o, k, start Object) (Object, bool, error) {
	for o != nil {
		t := types[o.Head().tag]
		if t.FetchSuper == nil {
			val, err := t.Fetch(vm, o, k)
			return val, err == nil, err
		}
		val, ok, err := t.FetchSuper(vm, o, k, start)
		if err != nil || ok {
			return val, ok, err
		}
		o = t.Super(o)
	}
	return nil, false, nil
}

// assignChain assigns to the first object on the chain from o that
// already holds k. It reports whether such an object was found.
func (vm *VM) assignChain(o, k, val, start Object) (bool, error) {
	for o != nil {
		t := types[o.Head().tag]
		if t.AssignSuper == nil {
			return false, nil
		}
		ok, err := t.AssignSuper(vm, o, k, val, start)
		if err != nil || ok {
			return ok, err
		}
		o = t.Super(o)
	}
	return false, nil
}

// Lookup resolves k through o's delegation chain and reports whether it
// was found anywhere.
func (vm *VM) Lookup(o, k Object) (Object, bool, error) {
	return vm.fetchChain(o, k, o)
}

// ObjName returns a short description of o for diagnostics.
func (vm *VM) ObjName(o Object) string {
	if o == nil {
		return "nil"
	}
	t := types[o.Head().tag]
	if t.ObjName != nil {
		return t.ObjName(vm, o)
	}
	return t.Name
}

// IsFalse reports whether o counts as false in a condition: null, 0 and 0.0.
func IsFalse(o Object) bool {
	switch x := o.(type) {
	case *NullObj:
		return true
	case *Int:
		return x.V == 0
	case *Float:
		return x.V == 0
	}
	return false
}
