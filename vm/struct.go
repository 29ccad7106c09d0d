package vm

import "fmt"

// ---------------------------------------------------------------------------
// Map: delegating associative table ("struct")
// ---------------------------------------------------------------------------

type mapSlot struct {
	key Object
	val Object
}

// Map is an open-addressed hash table keyed by object identity, with an
// optional delegation parent. Maps are also the representation of scopes.
type Map struct {
	Header
	super Object
	slots []mapSlot
	n     int
}

var structType = &Type{
	Name: "struct",
	Mark: func(vm *VM, o Object) int {
		m := o.(*Map)
		if m.super != nil {
			vm.Mark(m.super)
		}
		for i := range m.slots {
			if s := &m.slots[i]; s.key != nil {
				vm.Mark(s.key)
				vm.Mark(s.val)
			}
		}
		return 48 + 32*len(m.slots)
	},
	Free: func(vm *VM, o Object) {
		m := o.(*Map)
		m.slots, m.n, m.super = nil, 0, nil
	},
	Hash: func(o Object) uint32 {
		m := o.(*Map)
		h := uint32(0x53545255)
		for i := range m.slots {
			if s := &m.slots[i]; s.key != nil {
				h += identityHash(s.key)*31 + identityHash(s.val)
			}
		}
		return h
	},
	Equal: func(x, y Object) bool {
		a, b := x.(*Map), y.(*Map)
		if a.n != b.n || a.super != b.super {
			return false
		}
		for i := range a.slots {
			s := &a.slots[i]
			if s.key == nil {
				continue
			}
			t := b.find(s.key)
			if t.key == nil || t.val != s.val {
				return false
			}
		}
		return true
	},
	Copy: func(vm *VM, o Object) (Object, error) {
		return vm.CopyMap(o.(*Map)), nil
	},
	Fetch:  mapFetch,
	Assign: mapAssign,
	Super: func(o Object) Object {
		return o.(*Map).super
	},
	FetchSuper:  mapFetchSuper,
	AssignSuper: mapAssignSuper,
	FetchBase: func(vm *VM, o, k Object) (Object, error) {
		s := o.(*Map).find(k)
		if s.key == nil {
			return Null, nil
		}
		return s.val, nil
	},
	AssignBase: func(vm *VM, o, k, val Object) error {
		return vm.mapAssignBase(o.(*Map), k, val)
	},
}

// NewMap returns an empty map with no delegation parent.
func (vm *VM) NewMap() *Map {
	m := &Map{Header: Header{tag: TagStruct}, slots: make([]mapSlot, 4)}
	vm.rego(m, 48+32*4)
	return m
}

// CopyMap returns a shallow copy of m sharing its delegation parent.
func (vm *VM) CopyMap(m *Map) *Map {
	c := &Map{Header: Header{tag: TagStruct}, super: m.super, n: m.n}
	c.slots = make([]mapSlot, len(m.slots))
	copy(c.slots, m.slots)
	vm.rego(c, 48+32*len(c.slots))
	return c
}

// Len returns the number of keys held directly by m.
func (m *Map) Len() int { return m.n }

// Super returns the delegation parent, or nil.
func (m *Map) Super() Object { return m.super }

// SetSuper replaces the delegation parent. Cached lookups through m are
// invalidated.
func (vm *VM) SetSuper(m *Map, super Object) error {
	if m.flags&FlagAtom != 0 {
		return fmt.Errorf("attempt to set the super of an atomic struct")
	}
	m.super = super
	vm.vsver++
	return nil
}

func mapHash(k Object) int {
	return int(identityHash(k))
}

// find returns the slot holding k, or the empty slot ending its probe run.
func (m *Map) find(k Object) *mapSlot {
	mask := len(m.slots) - 1
	for i := mapHash(k) & mask; ; i = (i - 1) & mask {
		s := &m.slots[i]
		if s.key == k || s.key == nil {
			return s
		}
	}
}

// Keys returns the keys held directly by m, in slot order.
func (m *Map) Keys() []Object {
	out := make([]Object, 0, m.n)
	for i := range m.slots {
		if k := m.slots[i].key; k != nil {
			out = append(out, k)
		}
	}
	return out
}

// Each calls fn for every key held directly by m.
func (m *Map) Each(fn func(k, v Object)) {
	for i := range m.slots {
		if s := m.slots[i]; s.key != nil {
			fn(s.key, s.val)
		}
	}
}

// cache records where name k was found for a lookup starting at start.
func (vm *VM) cache(k Object, start Object, s *mapSlot) {
	ks, ok := k.(*String)
	if !ok {
		return
	}
	sm, ok := start.(*Map)
	if !ok || sm.flags&FlagAtom != 0 {
		return
	}
	ks.look = LookupCache{start: sm, slot: s, vers: vm.vsver}
}

// cached returns the cached slot for name k looked up from m, if valid.
func (vm *VM) cached(m *Map, k Object) *mapSlot {
	ks, ok := k.(*String)
	if !ok {
		return nil
	}
	if ks.look.start == m && ks.look.vers == vm.vsver {
		return ks.look.slot
	}
	return nil
}

func mapFetch(vm *VM, o, k Object) (Object, error) {
	m := o.(*Map)
	if s := vm.cached(m, k); s != nil {
		return s.val, nil
	}
	val, ok, err := vm.fetchChain(m, k, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Null, nil
	}
	return val, nil
}

func mapFetchSuper(vm *VM, o, k, start Object) (Object, bool, error) {
	m := o.(*Map)
	s := m.find(k)
	if s.key == nil {
		return nil, false, nil
	}
	if m.flags&FlagAtom == 0 {
		vm.cache(k, start, s)
	}
	return s.val, true, nil
}

func mapAssignSuper(vm *VM, o, k, val, start Object) (bool, error) {
	m := o.(*Map)
	s := m.find(k)
	if s.key == nil {
		return false, nil
	}
	if m.flags&FlagAtom != 0 {
		return false, fmt.Errorf("attempt to modify an atomic struct")
	}
	s.val = val
	vm.cache(k, start, s)
	return true, nil
}

func mapAssign(vm *VM, o, k, val Object) error {
	m := o.(*Map)
	if s := vm.cached(m, k); s != nil {
		s.val = val
		return nil
	}
	ok, err := vm.assignChain(m, k, val, m)
	if err != nil || ok {
		return err
	}
	return vm.mapAssignBase(m, k, val)
}

// mapAssignBase sets k in m itself, adding the key if needed.
func (vm *VM) mapAssignBase(m *Map, k, val Object) error {
	if m.flags&FlagAtom != 0 {
		return fmt.Errorf("attempt to modify an atomic struct")
	}
	s := m.find(k)
	if s.key != nil {
		s.val = val
		return nil
	}
	if (m.n+1)*4 > len(m.slots)*3 {
		m.grow(vm)
		s = m.find(k)
	}
	vm.vsver++
	s.key, s.val = k, val
	m.n++
	vm.cache(k, m, s)
	return nil
}

func (m *Map) grow(vm *VM) {
	old := m.slots
	m.slots = make([]mapSlot, len(old)*2)
	for _, s := range old {
		if s.key != nil {
			*m.find(s.key) = s
		}
	}
	vm.mem += 32 * len(old)
	vm.vsver++
}

// Unassign removes k from m itself. Keys held only by a delegation parent
// are left alone.
func (vm *VM) Unassign(m *Map, k Object) error {
	if m.flags&FlagAtom != 0 {
		return fmt.Errorf("attempt to modify an atomic struct")
	}
	mask := len(m.slots) - 1
	i := mapHash(k) & mask
	for ; ; i = (i - 1) & mask {
		s := &m.slots[i]
		if s.key == nil {
			return nil
		}
		if s.key == k {
			break
		}
	}
	vm.vsver++
	m.slots[i] = mapSlot{}
	m.n--
	j := i
	for {
		j = (j - 1) & mask
		s := m.slots[j]
		if s.key == nil {
			return nil
		}
		home := mapHash(s.key) & mask
		if (home-i)&mask < (home-j)&mask {
			m.slots[i] = s
			m.slots[j] = mapSlot{}
			i = j
		}
	}
}

// Get is a convenience fetch by name through the delegation chain.
func (vm *VM) Get(m *Map, name string) Object {
	k := vm.NewString(name)
	defer k.Decref()
	v, ok, err := vm.fetchChain(m, k, m)
	if err != nil || !ok {
		return Null
	}
	return v
}

// Set is a convenience assignment by name into m itself.
func (vm *VM) Set(m *Map, name string, val Object) error {
	k := vm.NewString(name)
	defer k.Decref()
	return vm.mapAssignBase(m, k, val)
}
