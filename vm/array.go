package vm

import "fmt"

// ---------------------------------------------------------------------------
// Array: growable circular deque
// ---------------------------------------------------------------------------

// Array is a circular buffer of objects. The live elements run from bot up
// to top, wrapping at the end of buf. While bot is 0 the array is in stack
// mode and the elements are simply buf[:top]; a push or pop at the front
// switches it to queue mode until the next growth.
type Array struct {
	Header
	buf []Object
	bot int
	top int
}

const minArrayGrowth = 8

var arrayType = &Type{
	Name: "array",
	Mark: func(vm *VM, o Object) int {
		a := o.(*Array)
		n := a.Len()
		for i := 0; i < n; i++ {
			vm.Mark(a.At(i))
		}
		return 48 + 16*len(a.buf)
	},
	Free: func(vm *VM, o Object) {
		a := o.(*Array)
		a.buf, a.bot, a.top = nil, 0, 0
	},
	Hash: func(o Object) uint32 {
		a := o.(*Array)
		h := uint32(0x41525259)
		n := a.Len()
		for i := 0; i < n; i++ {
			h = h*31 + identityHash(a.At(i))
		}
		return h
	},
	Equal: func(x, y Object) bool {
		a, b := x.(*Array), y.(*Array)
		n := a.Len()
		if n != b.Len() {
			return false
		}
		for i := 0; i < n; i++ {
			if a.At(i) != b.At(i) {
				return false
			}
		}
		return true
	},
	Copy: func(vm *VM, o Object) (Object, error) {
		a := o.(*Array)
		c := vm.NewArray(a.Len())
		c.AppendAll(a)
		return c, nil
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		a := o.(*Array)
		i, ok := k.(*Int)
		if !ok {
			return fetchFail(vm, o, k)
		}
		if i.V < 0 || i.V >= int64(a.Len()) {
			return Null, nil
		}
		return a.At(int(i.V)), nil
	},
	Assign: func(vm *VM, o, k, val Object) error {
		a := o.(*Array)
		if a.flags&FlagAtom != 0 {
			return fmt.Errorf("attempt to modify an atomic array")
		}
		i, ok := k.(*Int)
		if !ok || i.V < 0 {
			return assignFail(vm, o, k, val)
		}
		a.Set(int(i.V), val)
		return nil
	},
}

// NewArray returns an empty array with room for n elements.
func (vm *VM) NewArray(n int) *Array {
	if n < 0 {
		n = 0
	}
	a := &Array{Header: Header{tag: TagArray}, buf: make([]Object, n)}
	vm.rego(a, 48+16*n)
	return a
}

// NewArrayOf returns an array holding objs.
func (vm *VM) NewArrayOf(objs ...Object) *Array {
	a := vm.NewArray(len(objs))
	for _, o := range objs {
		a.Push(o)
	}
	return a
}

// Len returns the number of elements, accounting for wraparound.
func (a *Array) Len() int {
	if a.top >= a.bot {
		return a.top - a.bot
	}
	return len(a.buf) - a.bot + a.top
}

// IsStack reports whether the array is in stack mode.
func (a *Array) IsStack() bool { return a.bot == 0 }

// At returns element i, which must be in range.
func (a *Array) At(i int) Object {
	i += a.bot
	if i >= len(a.buf) {
		i -= len(a.buf)
	}
	return a.buf[i]
}

// slot returns a pointer to element i, which must be in range.
func (a *Array) slot(i int) *Object {
	i += a.bot
	if i >= len(a.buf) {
		i -= len(a.buf)
	}
	return &a.buf[i]
}

// full reports whether one more element would need a bigger buffer.
func (a *Array) full() bool {
	if a.bot == 0 {
		return a.top == len(a.buf)
	}
	return a.Len() >= len(a.buf)-1
}

// grow reallocates at one and a half times the size and returns the array
// to stack mode.
func (a *Array) grow() {
	n := a.Len()
	size := len(a.buf) * 3 / 2
	if size < minArrayGrowth {
		size = minArrayGrowth
	}
	for size < n+2 {
		size *= 2
	}
	buf := make([]Object, size)
	a.copyOut(buf)
	a.buf, a.bot, a.top = buf, 0, n
}

// copyOut copies the elements in order into dst.
func (a *Array) copyOut(dst []Object) int {
	if a.top >= a.bot {
		return copy(dst, a.buf[a.bot:a.top])
	}
	n := copy(dst, a.buf[a.bot:])
	return n + copy(dst[n:], a.buf[:a.top])
}

// Push appends o at the end.
func (a *Array) Push(o Object) {
	if a.full() {
		a.grow()
	}
	a.buf[a.top] = o
	a.top++
	if a.bot != 0 && a.top == len(a.buf) {
		a.top = 0
	}
}

// Pop removes and returns the last element, or nil if a is empty.
func (a *Array) Pop() Object {
	if a.top == a.bot {
		return nil
	}
	if a.top == 0 {
		a.top = len(a.buf)
	}
	a.top--
	o := a.buf[a.top]
	a.buf[a.top] = nil
	return o
}

// RPush prepends o at the front.
func (a *Array) RPush(o Object) {
	if a.Len() >= len(a.buf)-1 {
		a.grow()
	}
	if a.bot == 0 {
		a.bot = len(a.buf)
	}
	a.bot--
	a.buf[a.bot] = o
}

// RPop removes and returns the first element, or nil if a is empty.
func (a *Array) RPop() Object {
	if a.top == a.bot {
		return nil
	}
	o := a.buf[a.bot]
	a.buf[a.bot] = nil
	a.bot++
	if a.bot == len(a.buf) {
		a.bot = 0
	}
	if a.bot == a.top {
		a.bot, a.top = 0, 0
	}
	return o
}

// Top returns the last element, or nil if a is empty.
func (a *Array) Top() Object {
	n := a.Len()
	if n == 0 {
		return nil
	}
	return a.At(n - 1)
}

// Set stores o at index i, filling any gap past the end with null.
func (a *Array) Set(i int, o Object) {
	for a.Len() < i {
		a.Push(Null)
	}
	if i == a.Len() {
		a.Push(o)
		return
	}
	*a.slot(i) = o
}

// AppendAll pushes every element of b.
func (a *Array) AppendAll(b *Array) {
	n := b.Len()
	for i := 0; i < n; i++ {
		a.Push(b.At(i))
	}
}

// Slice returns the elements in order as a fresh Go slice.
func (a *Array) Slice() []Object {
	out := make([]Object, a.Len())
	a.copyOut(out)
	return out
}

// Normalize puts the array in stack mode so its elements are contiguous.
func (a *Array) Normalize() {
	if a.bot == 0 {
		return
	}
	buf := make([]Object, len(a.buf))
	n := a.copyOut(buf)
	a.buf, a.bot, a.top = buf, 0, n
}

// Elems returns the live elements of a stack-mode array without copying.
func (a *Array) Elems() []Object {
	a.Normalize()
	return a.buf[:a.top]
}

// ---------------------------------------------------------------------------
// Stack-mode fast paths, used by the engine's own stacks
// ---------------------------------------------------------------------------

func (a *Array) push(o Object) {
	if a.top == len(a.buf) {
		a.grow()
	}
	a.buf[a.top] = o
	a.top++
}

func (a *Array) pop() Object {
	a.top--
	o := a.buf[a.top]
	a.buf[a.top] = nil
	return o
}

func (a *Array) peek(n int) Object {
	return a.buf[a.top-1-n]
}

func (a *Array) truncate(n int) {
	for i := n; i < a.top; i++ {
		a.buf[i] = nil
	}
	a.top = n
}

// reserve makes room for n more elements without growing later.
func (a *Array) reserve(n int) {
	for len(a.buf)-a.top < n {
		a.grow()
	}
}
