package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Null
// ---------------------------------------------------------------------------

// NullObj is the type of the single null value.
type NullObj struct {
	Header
}

// Null is the null value. It is shared by every VM and never collected.
var Null = &NullObj{Header{tag: TagNull, flags: FlagAtom, nrefs: 1}}

var nullType = &Type{
	Name: "NULL",
	Hash: func(o Object) uint32 { return 0x4e554c4c },
}

// ---------------------------------------------------------------------------
// Int and Float
// ---------------------------------------------------------------------------

// Int is an integer value. Ints are atoms except for scratch temps.
type Int struct {
	Header
	V int64
}

// Float is a floating point value.
type Float struct {
	Header
	V float64
}

const (
	smallIntMin = -128
	smallIntMax = 1023
)

var intType = &Type{
	Name: "int",
	Hash: func(o Object) uint32 {
		v := uint64(o.(*Int).V)
		return uint32(v*0x9E3779B97F4A7C15>>32) ^ uint32(v)
	},
	Equal: func(a, b Object) bool { return a.(*Int).V == b.(*Int).V },
	ObjName: func(vm *VM, o Object) string {
		return strconv.FormatInt(o.(*Int).V, 10)
	},
}

var floatType = &Type{
	Name: "float",
	Hash: func(o Object) uint32 {
		b := math.Float64bits(o.(*Float).V)
		return uint32(b*0x9E3779B97F4A7C15>>32) ^ uint32(b>>29)
	},
	Equal: func(a, b Object) bool {
		return math.Float64bits(a.(*Float).V) == math.Float64bits(b.(*Float).V)
	},
	ObjName: func(vm *VM, o Object) string {
		return strconv.FormatFloat(o.(*Float).V, 'g', -1, 64)
	},
}

// NewInt returns the int atom for i with a new reference.
func (vm *VM) NewInt(i int64) *Int {
	if i >= smallIntMin && i <= smallIntMax {
		o := vm.small[i-smallIntMin]
		o.nrefs++
		return o
	}
	probe := Int{Header: Header{tag: TagInt}, V: i}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Int)
	}
	o := &Int{Header: Header{tag: TagInt, leafz: 16}, V: i}
	vm.rego(o, 16)
	return vm.Atom(o, true).(*Int)
}

// NewFloat returns the float atom for f with a new reference.
func (vm *VM) NewFloat(f float64) *Float {
	probe := Float{Header: Header{tag: TagFloat}, V: f}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Float)
	}
	o := &Float{Header: Header{tag: TagFloat, leafz: 16}, V: f}
	vm.rego(o, 16)
	return vm.Atom(o, true).(*Float)
}

// Bool returns the int atom 1 or 0 with a new reference.
func (vm *VM) Bool(b bool) *Int {
	if b {
		return vm.NewInt(1)
	}
	return vm.NewInt(0)
}

// newTemp allocates a scratch number cell that never enters the atom pool.
func (vm *VM) newTempInt() *Int {
	o := &Int{Header: Header{tag: TagInt, flags: FlagTemp, leafz: 16}}
	vm.rego(o, 16)
	return o
}

func (vm *VM) newTempFloat() *Float {
	o := &Float{Header: Header{tag: TagFloat, flags: FlagTemp, leafz: 16}}
	vm.rego(o, 16)
	return o
}
