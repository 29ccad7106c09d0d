package vm

// ---------------------------------------------------------------------------
// Atom pool: value interning
// ---------------------------------------------------------------------------

// atomTable is an open-addressed set of canonical objects shared by every
// internable kind. Lookups start at the hash slot and scan downwards.
type atomTable struct {
	slots []Object
	n     int
}

func newAtomTable(size int) atomTable {
	return atomTable{slots: make([]Object, size)}
}

// find returns the slot index holding an object equal to o, or the empty
// slot where it would be inserted.
func (t *atomTable) find(o Object, h uint32) (int, bool) {
	mask := len(t.slots) - 1
	tag := o.Head().tag
	eq := types[tag].Equal
	for i := int(h) & mask; ; i = (i - 1) & mask {
		s := t.slots[i]
		if s == nil {
			return i, false
		}
		if s == o || (s.Head().tag == tag && eq(s, o)) {
			return i, true
		}
	}
}

// findIdentity returns the slot holding exactly o.
func (t *atomTable) findIdentity(o Object) (int, bool) {
	mask := len(t.slots) - 1
	for i := int(Hash(o)) & mask; ; i = (i - 1) & mask {
		s := t.slots[i]
		if s == nil {
			return i, false
		}
		if s == o {
			return i, true
		}
	}
}

func (t *atomTable) insertAt(i int, o Object) {
	t.slots[i] = o
	t.n++
}

// remove deletes slot i and shifts later entries of the probe run back so
// that no lookup stops early at the hole.
func (t *atomTable) remove(i int) {
	mask := len(t.slots) - 1
	t.slots[i] = nil
	t.n--
	j := i
	for {
		j = (j - 1) & mask
		s := t.slots[j]
		if s == nil {
			return
		}
		home := int(Hash(s)) & mask
		if (home-i)&mask < (home-j)&mask {
			t.slots[i] = s
			t.slots[j] = nil
			i = j
		}
	}
}

// grow doubles the table and reinserts every atom.
func (vm *VM) growAtoms() {
	vm.suppressGC++
	old := vm.atoms.slots
	vm.atoms = newAtomTable(len(old) * 2)
	for _, o := range old {
		if o != nil {
			i, _ := vm.atoms.find(o, Hash(o))
			vm.atoms.insertAt(i, o)
		}
	}
	vm.suppressGC--
}

// Probe returns the atom equal to o, if there is one. It does not add a
// reference.
func (vm *VM) Probe(o Object) (Object, bool) {
	if o.Head().flags&FlagAtom != 0 {
		return o, true
	}
	i, ok := vm.atoms.find(o, Hash(o))
	if !ok {
		return nil, false
	}
	return vm.atoms.slots[i], true
}

// Atom returns the canonical object equal to o, adding o to the pool if no
// such object exists yet. lone says the caller holds the only reference to
// o, so o itself may become the atom; otherwise a copy is interned. The
// result carries a new reference and the caller's reference to o is
// released.
func (vm *VM) Atom(o Object, lone bool) Object {
	h := o.Head()
	if h.flags&FlagAtom != 0 {
		return o
	}
	hash := Hash(o)
	if i, ok := vm.atoms.find(o, hash); ok {
		a := vm.atoms.slots[i]
		a.Head().Incref()
		h.Decref()
		return a
	}
	if !lone {
		c, err := vm.Copy(o)
		if err != nil {
			return o
		}
		h.Decref()
		o = c
		h = o.Head()
	}
	h.flags |= FlagAtom
	if (vm.atoms.n+1)*2 > len(vm.atoms.slots) {
		vm.growAtoms()
	}
	i, _ := vm.atoms.find(o, hash)
	vm.atoms.insertAt(i, o)
	return o
}

// AtomCount returns the number of interned objects.
func (vm *VM) AtomCount() int {
	return vm.atoms.n
}

// unatom removes a dying atom from the pool.
func (vm *VM) unatom(o Object) {
	if i, ok := vm.atoms.findIdentity(o); ok {
		vm.atoms.remove(i)
	}
	o.Head().flags &^= FlagAtom
}

// rebuildAtoms replaces the pool with one holding only atoms that survived
// the mark phase.
func (vm *VM) rebuildAtoms(live int) {
	size := 64
	for size < live*4 {
		size *= 2
	}
	old := vm.atoms.slots
	vm.atoms = newAtomTable(size)
	for _, o := range old {
		if o == nil || o.Head().flags&FlagMark == 0 {
			continue
		}
		i, _ := vm.atoms.find(o, Hash(o))
		vm.atoms.insertAt(i, o)
	}
}
