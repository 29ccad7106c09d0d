package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

var (
	errDivideByZero = errors.New("division by 0")
	errModByZero    = errors.New("modulus by 0")
)

// binop applies the binary operator code to the two operands on top of the
// operand stack and replaces them with the result. With temp set, a numeric
// result may be written into the scratch cell for its stack depth.
func (vm *VM) binop(code int, temp bool) error {
	st := vm.stk
	a, b := st.os.peek(1), st.os.peek(0)

	switch x := a.(type) {
	case *Int:
		switch y := b.(type) {
		case *Int:
			return vm.intBinop(code, x.V, y.V, temp)
		case *Float:
			return vm.floatBinop(code, float64(x.V), y.V, temp)
		case *Ptr:
			if code == BinAdd {
				return vm.ptrOffset(y, x.V)
			}
		}
	case *Float:
		switch y := b.(type) {
		case *Float:
			return vm.floatBinop(code, x.V, y.V, temp)
		case *Int:
			return vm.floatBinop(code, x.V, float64(y.V), temp)
		}
	case *String:
		switch y := b.(type) {
		case *String:
			if ok, err := vm.stringBinop(code, x.S, y.S); ok {
				return err
			}
		case *Regexp:
			if ok, err := vm.matchBinop(code, y, x.S); ok {
				return err
			}
		}
	case *Regexp:
		if y, ok := b.(*String); ok {
			if ok, err := vm.matchBinop(code, x, y.S); ok {
				return err
			}
		}
	case *Array:
		if y, ok := b.(*Array); ok && code == BinAdd {
			r := vm.NewArray(x.Len() + y.Len())
			r.AppendAll(x)
			r.AppendAll(y)
			st.replace(2, r)
			r.Decref()
			return nil
		}
	case *Map:
		if y, ok := b.(*Map); ok {
			if ok, err := vm.structBinop(code, x, y); ok {
				return err
			}
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			if ok := vm.setBinop(code, x, y); ok {
				return nil
			}
		}
	case *Ptr:
		switch y := b.(type) {
		case *Int:
			switch code {
			case BinAdd:
				return vm.ptrOffset(x, y.V)
			case BinSub:
				return vm.ptrOffset(x, -y.V)
			}
		case *Ptr:
			if ok, err := vm.ptrBinop(code, x, y); ok {
				return err
			}
		}
	}

	switch code {
	case BinEq:
		st.replace(2, vm.small[boolIndex(a == b)])
		return nil
	case BinNe:
		st.replace(2, vm.small[boolIndex(a != b)])
		return nil
	}
	return fmt.Errorf("attempt to perform \"%s %s %s\"", TypeName(a), BinopNames[code], TypeName(b))
}

// retInt replaces the two binop operands with an int result.
func (vm *VM) retInt(v int64, temp bool) error {
	st := vm.stk
	if temp && (v < smallIntMin || v > smallIntMax) {
		d := st.os.top - 2
		for d >= len(st.ints) {
			st.ints = append(st.ints, nil)
		}
		t := st.ints[d]
		if t == nil {
			t = vm.newTempInt()
			t.nrefs = 0
			st.ints[d] = t
		}
		t.V = v
		st.replace(2, t)
		return nil
	}
	n := vm.NewInt(v)
	st.replace(2, n)
	n.Decref()
	return nil
}

// retFloat replaces the two binop operands with a float result.
func (vm *VM) retFloat(v float64, temp bool) error {
	st := vm.stk
	if temp {
		d := st.os.top - 2
		for d >= len(st.floats) {
			st.floats = append(st.floats, nil)
		}
		t := st.floats[d]
		if t == nil {
			t = vm.newTempFloat()
			t.nrefs = 0
			st.floats[d] = t
		}
		t.V = v
		st.replace(2, t)
		return nil
	}
	f := vm.NewFloat(v)
	st.replace(2, f)
	f.Decref()
	return nil
}

func (vm *VM) retBool(b bool) error {
	vm.stk.replace(2, vm.small[boolIndex(b)])
	return nil
}

func (vm *VM) intBinop(code int, x, y int64, temp bool) error {
	var r int64
	switch code {
	case BinMul:
		r = x * y
	case BinDiv:
		if y == 0 {
			return errDivideByZero
		}
		r = x / y
	case BinMod:
		if y == 0 {
			return errModByZero
		}
		r = x % y
	case BinAdd:
		r = x + y
	case BinSub:
		r = x - y
	case BinShl:
		r = shift(x, y)
	case BinShr:
		r = shift(x, -y)
	case BinAnd:
		r = x & y
	case BinXor:
		r = x ^ y
	case BinOr:
		r = x | y
	case BinLt:
		return vm.retBool(x < y)
	case BinGt:
		return vm.retBool(x > y)
	case BinLe:
		return vm.retBool(x <= y)
	case BinGe:
		return vm.retBool(x >= y)
	case BinEq:
		return vm.retBool(x == y)
	case BinNe:
		return vm.retBool(x != y)
	default:
		return fmt.Errorf("attempt to perform \"int %s int\"", BinopNames[code])
	}
	return vm.retInt(r, temp)
}

// shift moves x left by n bits, or right when n is negative.
func shift(x, n int64) int64 {
	switch {
	case n >= 64:
		return 0
	case n >= 0:
		return x << uint(n)
	case n <= -64:
		return x >> 63
	}
	return x >> uint(-n)
}

func (vm *VM) floatBinop(code int, x, y float64, temp bool) error {
	var r float64
	switch code {
	case BinMul:
		r = x * y
	case BinDiv:
		if y == 0 {
			return errDivideByZero
		}
		r = x / y
	case BinMod:
		if y == 0 {
			return errModByZero
		}
		r = math.Mod(x, y)
	case BinAdd:
		r = x + y
	case BinSub:
		r = x - y
	case BinLt:
		return vm.retBool(x < y)
	case BinGt:
		return vm.retBool(x > y)
	case BinLe:
		return vm.retBool(x <= y)
	case BinGe:
		return vm.retBool(x >= y)
	case BinEq:
		return vm.retBool(x == y)
	case BinNe:
		return vm.retBool(x != y)
	default:
		return fmt.Errorf("attempt to perform \"float %s float\"", BinopNames[code])
	}
	return vm.retFloat(r, temp)
}

func (vm *VM) stringBinop(code int, x, y string) (bool, error) {
	switch code {
	case BinAdd:
		s := vm.NewString(x + y)
		vm.stk.replace(2, s)
		s.Decref()
		return true, nil
	case BinLt:
		return true, vm.retBool(x < y)
	case BinGt:
		return true, vm.retBool(x > y)
	case BinLe:
		return true, vm.retBool(x <= y)
	case BinGe:
		return true, vm.retBool(x >= y)
	}
	return false, nil
}

// matchBinop handles the regular expression operators, with either
// operand order.
func (vm *VM) matchBinop(code int, re *Regexp, s string) (bool, error) {
	st := vm.stk
	switch code {
	case BinMatch, BinNoMatch:
		m := re.Re.FindStringSubmatchIndex(s) != nil
		return true, vm.retBool(m == (code == BinMatch))
	case BinExtract:
		caps := re.Captures(s)
		if caps == nil {
			st.replace(2, Null)
			return true, nil
		}
		i := 0
		if len(caps) > 1 {
			i = 1
		}
		r := vm.NewString(caps[i])
		st.replace(2, r)
		r.Decref()
		return true, nil
	case BinExtractAll:
		caps := re.Captures(s)
		if caps == nil {
			st.replace(2, Null)
			return true, nil
		}
		r := vm.NewArray(len(caps))
		st.os.push(r)
		r.Decref()
		for _, c := range caps[1:] {
			e := vm.NewString(c)
			r.Push(e)
			e.Decref()
		}
		st.os.pop()
		st.replace(2, r)
		return true, nil
	}
	return false, nil
}

// structBinop combines two structs: + merges with the right operand
// winning, - drops the keys of the right operand, * keeps only the common
// keys.
func (vm *VM) structBinop(code int, x, y *Map) (bool, error) {
	if code != BinAdd && code != BinSub && code != BinMul {
		return false, nil
	}
	st := vm.stk
	r := vm.NewMap()
	st.os.push(r)
	r.Decref()
	var err error
	x.Each(func(k, v Object) {
		if err != nil {
			return
		}
		has := y.find(k).key != nil
		if code == BinSub && has || code == BinMul && !has {
			return
		}
		err = vm.mapAssignBase(r, k, v)
	})
	if code == BinAdd {
		y.Each(func(k, v Object) {
			if err == nil {
				err = vm.mapAssignBase(r, k, v)
			}
		})
	}
	st.os.pop()
	if err != nil {
		return true, err
	}
	st.replace(2, r)
	return true, nil
}

func (vm *VM) setBinop(code int, x, y *Set) bool {
	st := vm.stk
	switch code {
	case BinAdd, BinSub, BinMul:
		op := map[int]byte{BinAdd: '+', BinSub: '-', BinMul: '*'}[code]
		r := vm.setCombine(x, y, op)
		st.replace(2, r)
		r.Decref()
	case BinLt:
		vm.retBool(x.n < y.n && x.SubsetOf(y))
	case BinLe:
		vm.retBool(x.SubsetOf(y))
	case BinGt:
		vm.retBool(y.n < x.n && y.SubsetOf(x))
	case BinGe:
		vm.retBool(y.SubsetOf(x))
	default:
		return false
	}
	return true
}

// ptrOffset replaces the operands with p moved by n elements.
func (vm *VM) ptrOffset(p *Ptr, n int64) error {
	k, ok := p.Key.(*Int)
	if !ok {
		return fmt.Errorf("attempt to add to a pointer with a non-integer key")
	}
	key := vm.NewInt(k.V + n)
	vm.stk.os.push(key)
	key.Decref()
	r := vm.NewPtr(p.Aggr, key)
	vm.stk.os.pop()
	vm.stk.replace(2, r)
	r.Decref()
	return nil
}

func (vm *VM) ptrBinop(code int, x, y *Ptr) (bool, error) {
	xk, ok1 := x.Key.(*Int)
	yk, ok2 := y.Key.(*Int)
	if !ok1 || !ok2 || x.Aggr != y.Aggr {
		return false, nil
	}
	switch code {
	case BinSub:
		return true, vm.retInt(xk.V-yk.V, false)
	case BinLt:
		return true, vm.retBool(xk.V < yk.V)
	case BinGt:
		return true, vm.retBool(xk.V > yk.V)
	case BinLe:
		return true, vm.retBool(xk.V <= yk.V)
	case BinGe:
		return true, vm.retBool(xk.V >= yk.V)
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

func (vm *VM) unop(ecode Opcode) error {
	st := vm.stk
	o := st.os.peek(0)
	var r Object
	switch ecode {
	case OpNot:
		st.replace(1, vm.small[boolIndex(IsFalse(o))])
		return nil
	case OpAt:
		o.Head().Incref()
		r = vm.Atom(o, false)
	case OpMinus:
		switch x := o.(type) {
		case *Int:
			r = vm.NewInt(-x.V)
		case *Float:
			r = vm.NewFloat(-x.V)
		}
	case OpPlus:
		switch o.(type) {
		case *Int, *Float:
			if o.Head().flags&FlagTemp == 0 {
				return nil
			}
		}
		switch x := o.(type) {
		case *Int:
			r = vm.NewInt(x.V)
		case *Float:
			r = vm.NewFloat(x.V)
		}
	case OpBitNot:
		if x, ok := o.(*Int); ok {
			r = vm.NewInt(^x.V)
		}
	}
	if r == nil {
		return fmt.Errorf("attempt to perform \"%s%s\"", unopSymbol(ecode), TypeName(o))
	}
	st.replace(1, r)
	r.Head().Decref()
	return nil
}

func unopSymbol(ecode Opcode) string {
	switch ecode {
	case OpMinus:
		return "-"
	case OpPlus:
		return "+"
	case OpBitNot:
		return "~"
	case OpAt:
		return "@"
	}
	return strings.ToLower(ecode.String())
}
