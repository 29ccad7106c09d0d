package vm

import "fmt"

// ---------------------------------------------------------------------------
// Ptr: aggregate and key pair
// ---------------------------------------------------------------------------

// Ptr refers to the element Key of Aggr. Ptrs are atoms, so two pointers to
// the same place are the same object.
type Ptr struct {
	Header
	Aggr Object
	Key  Object
}

var ptrType = &Type{
	Name: "ptr",
	Mark: func(vm *VM, o Object) int {
		p := o.(*Ptr)
		vm.Mark(p.Aggr)
		vm.Mark(p.Key)
		return 40
	},
	Hash: func(o Object) uint32 {
		p := o.(*Ptr)
		return identityHash(p.Aggr)*31 + identityHash(p.Key)
	},
	Equal: func(a, b Object) bool {
		x, y := a.(*Ptr), b.(*Ptr)
		return x.Aggr == y.Aggr && x.Key == y.Key
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		p := o.(*Ptr)
		key, err := vm.ptrIndex(p, k)
		if err != nil {
			return nil, err
		}
		defer key.Head().Decref()
		return vm.Fetch(p.Aggr, key)
	},
	Assign: func(vm *VM, o, k, val Object) error {
		p := o.(*Ptr)
		key, err := vm.ptrIndex(p, k)
		if err != nil {
			return err
		}
		defer key.Head().Decref()
		return vm.Assign(p.Aggr, key, val)
	},
	Call: func(vm *VM, o, subject Object) error {
		p := o.(*Ptr)
		f, err := vm.Fetch(p.Aggr, p.Key)
		if err != nil {
			return err
		}
		return vm.callObject(f, p.Aggr)
	},
}

// ptrIndex resolves p[k]: an int k offsets an int key, and zero means the
// pointer's own key.
func (vm *VM) ptrIndex(p *Ptr, k Object) (Object, error) {
	i, ok := k.(*Int)
	if !ok {
		return nil, fmt.Errorf("attempt to index %s by %s", vm.ObjName(p), vm.ObjName(k))
	}
	if i.V == 0 {
		p.Key.Head().Incref()
		return p.Key, nil
	}
	base, ok := p.Key.(*Int)
	if !ok {
		return nil, fmt.Errorf("attempt to index a pointer with a non-integer key")
	}
	return vm.NewInt(base.V + i.V), nil
}

// NewPtr returns the pointer atom for aggr[key] with a new reference.
func (vm *VM) NewPtr(aggr, key Object) *Ptr {
	probe := Ptr{Header: Header{tag: TagPtr}, Aggr: aggr, Key: key}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Ptr)
	}
	p := &Ptr{Header: Header{tag: TagPtr}, Aggr: aggr, Key: key}
	vm.rego(p, 40)
	return vm.Atom(p, true).(*Ptr)
}
