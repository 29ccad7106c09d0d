package vm

import "fmt"

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

// Set is an open-addressed table of members keyed by identity.
type Set struct {
	Header
	slots []Object
	n     int
}

var setType = &Type{
	Name: "set",
	Mark: func(vm *VM, o Object) int {
		s := o.(*Set)
		for _, m := range s.slots {
			if m != nil {
				vm.Mark(m)
			}
		}
		return 48 + 16*len(s.slots)
	},
	Free: func(vm *VM, o Object) {
		s := o.(*Set)
		s.slots, s.n = nil, 0
	},
	Hash: func(o Object) uint32 {
		h := uint32(0x53455420)
		for _, m := range o.(*Set).slots {
			if m != nil {
				h += identityHash(m)
			}
		}
		return h
	},
	Equal: func(x, y Object) bool {
		a, b := x.(*Set), y.(*Set)
		return a.n == b.n && a.SubsetOf(b)
	},
	Copy: func(vm *VM, o Object) (Object, error) {
		s := o.(*Set)
		c := &Set{Header: Header{tag: TagSet}, n: s.n, slots: make([]Object, len(s.slots))}
		copy(c.slots, s.slots)
		vm.rego(c, 48+16*len(c.slots))
		return c, nil
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		if o.(*Set).Has(k) {
			return vm.small[1-smallIntMin], nil
		}
		return Null, nil
	},
	Assign: func(vm *VM, o, k, val Object) error {
		s := o.(*Set)
		if s.flags&FlagAtom != 0 {
			return fmt.Errorf("attempt to modify an atomic set")
		}
		if IsFalse(val) {
			s.Remove(k)
		} else {
			s.Add(k)
		}
		return nil
	},
}

// NewSet returns an empty set.
func (vm *VM) NewSet() *Set {
	s := &Set{Header: Header{tag: TagSet}, slots: make([]Object, 4)}
	vm.rego(s, 48+16*4)
	return s
}

// Len returns the number of members.
func (s *Set) Len() int { return s.n }

func (s *Set) find(o Object) int {
	mask := len(s.slots) - 1
	for i := mapHash(o) & mask; ; i = (i - 1) & mask {
		if m := s.slots[i]; m == o || m == nil {
			return i
		}
	}
}

// Has reports membership.
func (s *Set) Has(o Object) bool {
	return s.slots[s.find(o)] != nil
}

// Add inserts o.
func (s *Set) Add(o Object) {
	i := s.find(o)
	if s.slots[i] != nil {
		return
	}
	if (s.n+1)*4 > len(s.slots)*3 {
		old := s.slots
		s.slots = make([]Object, len(old)*2)
		for _, m := range old {
			if m != nil {
				s.slots[s.find(m)] = m
			}
		}
		i = s.find(o)
	}
	s.slots[i] = o
	s.n++
}

// Remove deletes o, shifting later members of its probe run back.
func (s *Set) Remove(o Object) {
	i := s.find(o)
	if s.slots[i] == nil {
		return
	}
	mask := len(s.slots) - 1
	s.slots[i] = nil
	s.n--
	j := i
	for {
		j = (j - 1) & mask
		m := s.slots[j]
		if m == nil {
			return
		}
		home := mapHash(m) & mask
		if (home-i)&mask < (home-j)&mask {
			s.slots[i] = m
			s.slots[j] = nil
			i = j
		}
	}
}

// Members returns the members in slot order.
func (s *Set) Members() []Object {
	out := make([]Object, 0, s.n)
	for _, m := range s.slots {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// SubsetOf reports whether every member of s is in t.
func (s *Set) SubsetOf(t *Set) bool {
	for _, m := range s.slots {
		if m != nil && !t.Has(m) {
			return false
		}
	}
	return true
}

// setCombine builds a new set from a and b under op: '+' union,
// '-' difference, '*' intersection.
func (vm *VM) setCombine(a, b *Set, op byte) *Set {
	r := vm.NewSet()
	for _, m := range a.slots {
		if m == nil {
			continue
		}
		switch op {
		case '+':
			r.Add(m)
		case '-':
			if !b.Has(m) {
				r.Add(m)
			}
		case '*':
			if b.Has(m) {
				r.Add(m)
			}
		}
	}
	if op == '+' {
		for _, m := range b.slots {
			if m != nil {
				r.Add(m)
			}
		}
	}
	return r
}
