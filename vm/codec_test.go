package vm

import (
	"strings"
	"testing"
)

func TestMarshalRoundTrip(t *testing.T) {
	vm := newTestVM(t)

	a, b, c, name := vm.NewString("a"), vm.NewString("b"), vm.NewString("c"), vm.NewString("x")
	f := vm.NewFloat(2.5)
	neg := vm.NewInt(-70000)
	defer vm.Hold(a, b, c, name, f, neg)()
	for _, o := range []Object{a, b, c, name, f, neg} {
		o.Head().Decref()
	}

	inner := vm.NewArrayOf(name, f, Null, neg)
	set := vm.NewSet()
	set.Add(vm.si(1))
	set.Add(vm.si(2))
	mem := vm.NewMem(3)
	copy(mem.B, "abc")

	m := vm.NewMap()
	defer m.Decref()
	vm.AssignBase(m, a, vm.si(1))
	vm.AssignBase(m, b, inner)
	vm.AssignBase(m, c, set)
	vm.AssignBase(m, vm.si(9), mem)
	inner.Decref()
	set.Decref()
	mem.Decref()

	data, err := vm.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	o, err := vm.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	defer o.Head().Decref()

	got, ok := o.(*Map)
	if !ok {
		t.Fatalf("Unmarshal returned %s, want struct", TypeName(o))
	}
	if got == m || got.Len() != 4 {
		t.Fatalf("decoded struct has %d keys", got.Len())
	}
	if v, _ := vm.FetchBase(got, a); v != Object(vm.si(1)) {
		t.Errorf("a = %v, want 1", v)
	}

	arr, ok := vm.Get(got, "b").(*Array)
	if !ok || arr.Len() != 4 {
		t.Fatalf("b = %v, want a four element array", vm.Get(got, "b"))
	}
	if arr.At(0) != Object(name) || arr.At(1) != Object(f) || arr.At(2) != Object(Null) || arr.At(3) != Object(neg) {
		t.Errorf("b = [%s %s %s %s]", vm.ObjName(arr.At(0)), vm.ObjName(arr.At(1)), vm.ObjName(arr.At(2)), vm.ObjName(arr.At(3)))
	}

	s, ok := vm.Get(got, "c").(*Set)
	if !ok || s.Len() != 2 || !s.Has(vm.si(1)) || !s.Has(vm.si(2)) {
		t.Errorf("c = %v, want set of 1 and 2", vm.Get(got, "c"))
	}

	mv, _ := vm.FetchBase(got, vm.si(9))
	if mm, ok := mv.(*Mem); !ok || string(mm.B) != "abc" {
		t.Errorf("9 = %v, want mem abc", mv)
	}
}

func TestMarshalRejectsCycles(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewArray(0)
	defer a.Decref()
	a.Push(a)

	_, err := vm.Marshal(a)
	if err == nil || !strings.Contains(err.Error(), "cyclic") {
		t.Errorf("Marshal of a self-containing array: %v", err)
	}
}

func TestMarshalSharedIsNotCyclic(t *testing.T) {
	vm := newTestVM(t)
	shared := vm.NewArrayOf(vm.si(1))
	outer := vm.NewArrayOf(shared, shared)
	shared.Decref()
	defer outer.Decref()

	if _, err := vm.Marshal(outer); err != nil {
		t.Errorf("Marshal of shared data: %v", err)
	}
}

func TestMarshalRejectsFunctions(t *testing.T) {
	vm := newTestVM(t)
	_, err := vm.Marshal(vm.Get(vm.Externs, "nels"))
	if err == nil || !strings.Contains(err.Error(), "attempt to save") {
		t.Errorf("Marshal of a native: %v", err)
	}
}
