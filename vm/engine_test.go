package vm

import (
	"math"
	"testing"
)

// code builds a code array from elements. The caller owns the reference.
func code(vm *VM, elems ...Object) *Array {
	return vm.NewArrayOf(elems...)
}

// si returns a preallocated small int without touching its references.
func (vm *VM) si(i int64) *Int { return vm.small[i-smallIntMin] }

func run(t *testing.T, vm *VM, c *Array) (Object, error) {
	t.Helper()
	defer c.Decref()
	r, err := vm.Evaluate(c)
	if err == nil {
		t.Cleanup(r.Head().Decref)
	}
	return r, err
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

func TestTempBinopMatchesBinop(t *testing.T) {
	vm := newTestVM(t)

	big := vm.NewInt(1 << 40)
	f := vm.NewFloat(2.5)
	defer big.Decref()
	defer f.Decref()

	operands := []struct {
		name string
		x, y Object
	}{
		{"small ints", vm.si(17), vm.si(5)},
		{"big int", big, vm.si(3)},
		{"int float", vm.si(7), f},
		{"float int", f, vm.si(-4)},
	}
	codes := []int{BinMul, BinDiv, BinMod, BinAdd, BinSub, BinLt, BinGe, BinEq, BinNe}

	value := func(o Object) float64 {
		switch x := o.(type) {
		case *Int:
			return float64(x.V)
		case *Float:
			return x.V
		}
		t.Fatalf("binop produced %s", TypeName(o))
		return 0
	}

	for _, tc := range operands {
		for _, c := range codes {
			plain, err := run(t, vm, code(vm, tc.x, tc.y, vm.Op(OpBinop, c)))
			if err != nil {
				t.Fatalf("%s %s: %v", tc.name, BinopNames[c], err)
			}
			temp, err := run(t, vm, code(vm, tc.x, tc.y, vm.Op(OpBinopForTemp, c)))
			if err != nil {
				t.Fatalf("%s %s for temp: %v", tc.name, BinopNames[c], err)
			}
			if TypeName(plain) != TypeName(temp) {
				t.Errorf("%s %s: types %s and %s differ", tc.name, BinopNames[c], TypeName(plain), TypeName(temp))
				continue
			}
			if p, q := value(plain), value(temp); p != q && !(math.IsNaN(p) && math.IsNaN(q)) {
				t.Errorf("%s %s: %v != %v", tc.name, BinopNames[c], p, q)
			}
			if plain.Head().IsTemp() {
				t.Errorf("%s %s: plain binop returned a scratch cell", tc.name, BinopNames[c])
			}
		}
	}
}

func TestTempResultFeedsNextBinop(t *testing.T) {
	vm := newTestVM(t)
	big := vm.NewInt(5000)
	defer big.Decref()

	// (5000 * 3) + 1, with the product computed into a scratch cell.
	r, err := run(t, vm, code(vm,
		big, vm.si(3), vm.Op(OpBinopForTemp, BinMul),
		vm.si(1), vm.Op(OpBinop, BinAdd),
	))
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := r.(*Int); !ok || n.V != 15001 || n.IsTemp() {
		t.Errorf("result = %v, want the atom 15001", r)
	}
}

func TestDivideByZero(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		x, y Object
		code int
		want string
	}{
		{vm.si(1), vm.si(0), BinDiv, "division by 0"},
		{vm.si(1), vm.si(0), BinMod, "modulus by 0"},
	}
	for _, tc := range tests {
		_, err := run(t, vm, code(vm, tc.x, tc.y, vm.Op(OpBinop, tc.code)))
		if err == nil || ErrorMessage(err) != tc.want {
			t.Errorf("%s: error = %v, want %q", BinopNames[tc.code], err, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestSwitchEntersAtCaseOffset(t *testing.T) {
	vm := newTestVM(t)

	body := code(vm,
		vm.si(10), vm.Op(OpBreak, 0),
		vm.si(11), vm.Op(OpBreak, 0),
		vm.si(12), vm.Op(OpBreak, 0),
		vm.si(99), vm.Op(OpBreak, 0),
	)
	defer body.Decref()
	cases := vm.NewMap()
	defer cases.Decref()
	for i, k := range []Object{vm.si(1), vm.si(2), vm.si(3)} {
		vm.AssignBase(cases, k, vm.si(int64(2*i)))
	}
	vm.AssignBase(cases, vm.opDefault, vm.si(6))

	tests := []struct {
		subject Object
		want    int64
	}{
		{vm.si(1), 10},
		{vm.si(2), 11},
		{vm.si(3), 12},
		{vm.si(42), 99},
	}
	for _, tc := range tests {
		r, err := run(t, vm, code(vm, tc.subject, vm.Op(OpSwitch, 0), cases, body))
		if err != nil {
			t.Fatalf("switch(%v): %v", tc.subject, err)
		}
		if n, ok := r.(*Int); !ok || n.V != tc.want {
			t.Errorf("switch(%v) = %v, want %d", tc.subject, r, tc.want)
		}
	}
}

func TestSwitchWithoutMatchOrDefault(t *testing.T) {
	vm := newTestVM(t)
	body := code(vm, vm.si(10), vm.Op(OpBreak, 0))
	defer body.Decref()
	cases := vm.NewMap()
	defer cases.Decref()
	vm.AssignBase(cases, vm.si(1), vm.si(0))

	r, err := run(t, vm, code(vm, vm.si(7), vm.si(2), vm.Op(OpSwitch, 0), cases, body))
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := r.(*Int); !ok || n.V != 7 {
		t.Errorf("result = %v, want the value pushed before the switch", r)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, code(vm, vm.Op(OpBreak, 0)))
	if err == nil || ErrorMessage(err) != "break not within loop or switch" {
		t.Errorf("error = %v", err)
	}
	_, err = run(t, vm, code(vm, vm.Op(OpContinue, 0)))
	if err == nil || ErrorMessage(err) != "continue not within loop" {
		t.Errorf("error = %v", err)
	}
}

func TestLoopCountsDown(t *testing.T) {
	vm := newTestVM(t)
	scope := vm.NewMap()
	defer scope.Decref()
	vm.SetSuper(scope, vm.Externs)
	n := vm.NewString("n")
	defer n.Decref()
	vm.AssignBase(scope, n, vm.si(5))

	// loop { if (!(n > 0)) break; n = n - 1; }
	body := code(vm,
		n, vm.si(0), vm.Op(OpBinop, BinGt), vm.Op(OpIfBreak, 0),
		vm.Op(OpNameLvalue, 0), n, n, vm.si(1), vm.Op(OpBinop, BinSub), vm.Op(OpAssign, 0),
		vm.Op(OpRewind, 0),
	)
	defer body.Decref()

	vm.PushScope(scope)
	defer vm.PopScope()
	if _, err := run(t, vm, code(vm, vm.Op(OpLoop, 0), body, vm.si(0))); err != nil {
		t.Fatal(err)
	}
	if v, _ := vm.FetchBase(scope, n); v != Object(vm.si(0)) {
		t.Errorf("n = %v, want 0", v)
	}
}

// ---------------------------------------------------------------------------
// Errors and critical sections
// ---------------------------------------------------------------------------

func TestOnerrorRestoresCritsect(t *testing.T) {
	vm := newTestVM(t)

	failing := code(vm, vm.si(1), vm.si(0), vm.Op(OpBinop, BinDiv))
	defer failing.Decref()
	crit := code(vm, vm.Op(OpCritsect, 0), failing)
	defer crit.Decref()
	handler := code(vm, vm.Op(OpQuote, 0), vm.NewString("caught"))
	handler.At(1).Head().Decref()
	defer handler.Decref()

	r, err := run(t, vm, code(vm, vm.Op(OpOnerror, 0), crit, handler))
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := r.(*String); !ok || s.S != "caught" {
		t.Errorf("result = %v, want the handler's value", r)
	}
	if n := vm.Current().Critsect(); n != 0 {
		t.Errorf("critsect depth = %d after unwinding, want 0", n)
	}
	if msg, _ := vm.FetchBase(vm.Externs, vm.sError); msg.(*String).S != "division by 0" {
		t.Errorf("error variable = %v", msg)
	}
}

func TestCritsectEndsNormally(t *testing.T) {
	vm := newTestVM(t)
	inner := code(vm, vm.si(3))
	defer inner.Decref()
	if _, err := run(t, vm, code(vm, vm.Op(OpCritsect, 0), inner)); err != nil {
		t.Fatal(err)
	}
	if n := vm.Current().Critsect(); n != 0 {
		t.Errorf("critsect depth = %d, want 0", n)
	}
}

func TestUncaughtErrorReachesCaller(t *testing.T) {
	vm := newTestVM(t)
	file, x := vm.NewString("unit.ici"), vm.NewString("x")
	defer vm.Hold(file, x)()
	file.Decref()
	x.Decref()
	src := vm.NewSrc(file, 7)
	defer src.Decref()

	_, err := run(t, vm, code(vm, src, vm.si(1), x, vm.Op(OpBinop, BinSub)))
	if err == nil {
		t.Fatal("expected an error")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type %T, want *Error", err)
	}
	if e.File != "unit.ici" || e.Line != 7 {
		t.Errorf("error at %s:%d, want unit.ici:7", e.File, e.Line)
	}
}

func TestUndefinedName(t *testing.T) {
	vm := newTestVM(t)
	missing := vm.NewString("no_such_variable")
	defer missing.Decref()
	_, err := run(t, vm, code(vm, missing))
	if err == nil || ErrorMessage(err) != `"no_such_variable" undefined` {
		t.Errorf("error = %v", err)
	}
}
