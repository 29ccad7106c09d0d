package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ici-language/ici-sub000/vm"
)

// runScript runs src as a module and returns its scope and printed output.
func runScript(t *testing.T, src string) (*vm.VM, *vm.Map, string) {
	t.Helper()
	var out bytes.Buffer
	cfg := vm.DefaultConfig()
	cfg.Stdout = &out
	v, err := vm.New(cfg)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	Install(v)
	t.Cleanup(func() { v.Close() })

	scope, err := Run(v, "test.ici", src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Cleanup(func() { scope.Decref() })
	return v, scope, out.String()
}

func wantInt(t *testing.T, v *vm.VM, scope *vm.Map, name string, want int64) {
	t.Helper()
	n, ok := v.Get(scope, name).(*vm.Int)
	if !ok {
		t.Errorf("%s = %s, want int %d", name, v.ObjName(v.Get(scope, name)), want)
		return
	}
	if n.V != want {
		t.Errorf("%s = %d, want %d", name, n.V, want)
	}
}

func wantString(t *testing.T, v *vm.VM, scope *vm.Map, name, want string) {
	t.Helper()
	s, ok := v.Get(scope, name).(*vm.String)
	if !ok {
		t.Errorf("%s = %s, want string %q", name, v.ObjName(v.Get(scope, name)), want)
		return
	}
	if s.S != want {
		t.Errorf("%s = %q, want %q", name, s.S, want)
	}
}

func TestArithmeticAndPrecedence(t *testing.T) {
	v, scope, _ := runScript(t, `
		a = 1 + 2 * 3;
		b = (1 + 2) * 3;
		c = 7 / 2;
		d = 7 % 3;
		e = 1 << 4 | 1;
		f = -5 + 2;
		g = 10 - 4 - 3;
		h = 2 < 3 && 3 < 2;
		i = 0 || 3;
		j = !0;
		k = ~0;
	`)
	tests := []struct {
		name string
		want int64
	}{
		{"a", 7}, {"b", 9}, {"c", 3}, {"d", 1}, {"e", 17},
		{"f", -3}, {"g", 3}, {"h", 0}, {"i", 1}, {"j", 1}, {"k", -1},
	}
	for _, tc := range tests {
		wantInt(t, v, scope, tc.name, tc.want)
	}
}

func TestFloatArithmetic(t *testing.T) {
	v, scope, _ := runScript(t, `x = 1.5 * 2 + 1;`)
	f, ok := v.Get(scope, "x").(*vm.Float)
	if !ok || f.V != 4.0 {
		t.Errorf("x = %s, want 4.0", v.ObjName(v.Get(scope, "x")))
	}
}

func TestArrayConcatenation(t *testing.T) {
	v, scope, _ := runScript(t, `a = [array 1, 2, 3] + [array 4, 5];`)
	a, ok := v.Get(scope, "a").(*vm.Array)
	if !ok {
		t.Fatalf("a is %s, want array", v.ObjName(v.Get(scope, "a")))
	}
	if a.Len() != 5 {
		t.Fatalf("len(a) = %d, want 5", a.Len())
	}
	for i := 0; i < 5; i++ {
		if n := a.At(i).(*vm.Int).V; n != int64(i+1) {
			t.Errorf("a[%d] = %d, want %d", i, n, i+1)
		}
	}
}

func TestDeleteInheritedKeyIsNoOp(t *testing.T) {
	v, scope, _ := runScript(t, `
		static base = [struct a = 1];
		static child = [struct : base, b = 2];
		del(child, "a");
		ca = child.a;
		ba = base.a;
		n = nels(child);
	`)
	wantInt(t, v, scope, "ca", 1)
	wantInt(t, v, scope, "ba", 1)
	wantInt(t, v, scope, "n", 1)
}

func TestStringConcatenationIsInterned(t *testing.T) {
	v, scope, _ := runScript(t, `
		s1 = "abc" + "def";
		s2 = "abc" + "def";
	`)
	wantString(t, v, scope, "s1", "abcdef")
	if v.Get(scope, "s1") != v.Get(scope, "s2") {
		t.Error("identical concatenations returned different objects")
	}
}

func TestSwitchJumpsToCase(t *testing.T) {
	v, scope, _ := runScript(t, `
		x = 2;
		r = "none";
		switch (x) {
		case 0: r = "zero"; break;
		case 1: r = "one"; break;
		case 2: r = "two"; break;
		default: r = "default";
		}
		fall = "";
		switch (1) {
		case 1: fall += "1";
		case 2: fall += "2";
		default: fall += "d";
		}
		switch ("zz") {
		case "a": d = 0; break;
		default: d = 1;
		}
	`)
	wantString(t, v, scope, "r", "two")
	wantString(t, v, scope, "fall", "12d")
	wantInt(t, v, scope, "d", 1)
}

func TestLoops(t *testing.T) {
	v, scope, _ := runScript(t, `
		sum = 0;
		for (i = 0; i < 10; ++i) {
			if (i == 3)
				continue;
			if (i == 8)
				break;
			sum += i;
		}
		n = 0;
		while (n < 5)
			n++;
		m = 10;
		do
			m--;
		while (m > 20);
		total = 0;
		forall (x in [array 1, 2, 3, 4])
			total += x;
		keysum = "";
		forall (val, key in [struct a = 1])
			keysum = key + string(val);
		chars = 0;
		forall (c in "hello")
			chars++;
		forever = 0;
		for (;;) {
			if (++forever >= 4)
				break;
		}
	`)
	wantInt(t, v, scope, "sum", 0+1+2+4+5+6+7)
	wantInt(t, v, scope, "n", 5)
	wantInt(t, v, scope, "m", 9)
	wantInt(t, v, scope, "total", 10)
	wantString(t, v, scope, "keysum", "a1")
	wantInt(t, v, scope, "chars", 5)
	wantInt(t, v, scope, "forever", 4)
}

func TestFunctions(t *testing.T) {
	v, scope, _ := runScript(t, `
		static fact(n) {
			return n <= 1 ? 1 : n * fact(n - 1);
		}
		static g() {
			auto t = 5, u;
			return t;
		}
		static count() {
			return nels(vargs);
		}
		static noret() {
			x = 1;
		}
		f = fact(10);
		r = g();
		c = count(1, 2, 3);
		nr = noret();
		anon = [func (a, b) { return a - b; }](10, 3);
	`)
	wantInt(t, v, scope, "f", 3628800)
	wantInt(t, v, scope, "r", 5)
	wantInt(t, v, scope, "c", 3)
	wantInt(t, v, scope, "anon", 7)
	if v.Get(scope, "nr") != vm.Object(vm.Null) {
		t.Errorf("nr = %s, want NULL", v.ObjName(v.Get(scope, "nr")))
	}
	if v.Get(scope, "t") != vm.Object(vm.Null) {
		t.Error("auto variable leaked into the module scope")
	}
}

func TestMethodsAndClasses(t *testing.T) {
	v, scope, _ := runScript(t, `
		static Point = [class
			x = 0,
			y = 0,
			sum() { return this.x + this.y; }
			scale(k) { this.x *= k; this.y *= k; return this; }
		];
		p = [struct : Point, x = 3, y = 4];
		s = p:sum();
		q = p:scale(2):sum();
		big = p.x > 1 ? (p:sum()) : 0;
	`)
	wantInt(t, v, scope, "s", 7)
	wantInt(t, v, scope, "q", 14)
	wantInt(t, v, scope, "big", 14)
}

func TestAssignmentForms(t *testing.T) {
	v, scope, _ := runScript(t, `
		i = 5;
		j = i++;
		k = --i;
		i += 10;
		a = 1;
		b = 2;
		a <=> b;
		x := 3;
		y = x = 4;
		arr = [array 1, 2, 3];
		arr[0] = 9;
		first = arr[0];
		s = [struct];
		s.name = "n";
		name = s.name;
		s.("a" + "b") = 1;
		ab = s.ab;
	`)
	wantInt(t, v, scope, "j", 5)
	wantInt(t, v, scope, "k", 5)
	wantInt(t, v, scope, "i", 15)
	wantInt(t, v, scope, "a", 2)
	wantInt(t, v, scope, "b", 1)
	wantInt(t, v, scope, "x", 4)
	wantInt(t, v, scope, "y", 4)
	wantInt(t, v, scope, "first", 9)
	wantString(t, v, scope, "name", "n")
	wantInt(t, v, scope, "ab", 1)
}

func TestPointers(t *testing.T) {
	v, scope, _ := runScript(t, `
		a = [array 1, 2, 3];
		p = &a[1];
		*p = 9;
		second = a[1];
		p2 = p + 1;
		third = *p2;
		n = 0;
		np = &n;
		*np += 5;
		s = [struct v = 1];
		sp = &s;
		viaArrow = sp->v;
	`)
	wantInt(t, v, scope, "second", 9)
	wantInt(t, v, scope, "third", 3)
	wantInt(t, v, scope, "n", 5)
	wantInt(t, v, scope, "viaArrow", 1)
}

func TestRegexpOperators(t *testing.T) {
	v, scope, _ := runScript(t, `
		m = "hello world" ~ #wor#;
		nm = "hello" !~ #z#;
		sub = "hello world" ~~ #w(or)ld#;
		all = "2024-06-01" ~~~ #(\d+)-(\d+)-(\d+)#;
		year = all[0];
	`)
	wantInt(t, v, scope, "m", 1)
	wantInt(t, v, scope, "nm", 1)
	wantString(t, v, scope, "sub", "or")
	wantString(t, v, scope, "year", "2024")
}

func TestSetsAndAtoms(t *testing.T) {
	v, scope, _ := runScript(t, `
		s = [set 1, 2, 3] + [set 3, 4];
		n = nels(s);
		has = s[4];
		sub = [set 1] < [set 1, 2];
		same = @[array 1, 2] == @[array 1, 2];
		cc = $(2 * 21);
	`)
	wantInt(t, v, scope, "n", 4)
	wantInt(t, v, scope, "has", 1)
	wantInt(t, v, scope, "sub", 1)
	wantInt(t, v, scope, "same", 1)
	wantInt(t, v, scope, "cc", 42)
}

func TestErrorHandling(t *testing.T) {
	v, scope, _ := runScript(t, `
		try
			fail("boom");
		onerror
			msg = error;
		try {
			x = 1 / 0;
		} onerror
			div = error;
		static thrower() {
			undefined_thing();
		}
		try
			thrower();
		onerror
			undef = error;
		after = 1;
	`)
	wantString(t, v, scope, "msg", "boom")
	wantString(t, v, scope, "div", "division by 0")
	wantString(t, v, scope, "undef", `"undefined_thing" undefined`)
	wantInt(t, v, scope, "after", 1)
}

func TestRuntimeErrorLocation(t *testing.T) {
	v := newTestVM(t)
	_, err := Run(v, "prog.ici", "x = 1;\ny = nothing + 1;\n")
	if err == nil {
		t.Fatal("expected an error")
	}
	var e *vm.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not a *vm.Error", err)
	}
	if e.File != "prog.ici" || e.Line != 2 {
		t.Errorf("error at %s:%d, want prog.ici:2", e.File, e.Line)
	}
	if !strings.Contains(e.Msg, `"nothing" undefined`) {
		t.Errorf("message = %q", e.Msg)
	}
}

func TestSyntaxErrorFromRun(t *testing.T) {
	v := newTestVM(t)
	_, err := Run(v, "bad.ici", "x = 1;\ny = ;\n")
	se, ok := AsSyntaxError(err)
	if !ok {
		t.Fatalf("error %v is not a syntax error", err)
	}
	if se.Line != 2 || se.File != "bad.ici" {
		t.Errorf("syntax error at %s:%d, want bad.ici:2", se.File, se.Line)
	}
}

func TestCheck(t *testing.T) {
	v := newTestVM(t)
	tests := []struct {
		src        string
		wantErr    bool
		incomplete bool
	}{
		{"x = 1;", false, false},
		{"static f(a) { return a + 1; }", false, false},
		{"x = ;", true, false},
		{"static f() {", true, true},
		{"x = (1 + ", true, true},
		{`s = "open`, true, true},
		{"if (x) else y;", true, false},
		{"s = [struct a = $(undefined_at_compile_time)];", false, false},
	}
	for _, tc := range tests {
		se := Check(v, "check.ici", tc.src)
		if (se != nil) != tc.wantErr {
			t.Errorf("Check(%q) = %v, want error %v", tc.src, se, tc.wantErr)
			continue
		}
		if se != nil && se.Incomplete != tc.incomplete {
			t.Errorf("Check(%q) incomplete = %v, want %v", tc.src, se.Incomplete, tc.incomplete)
		}
	}
}

func TestEval(t *testing.T) {
	v, scope, _ := runScript(t, `base = 40;`)
	r, err := Eval(v, "base + 2", scope)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	defer r.Head().Decref()
	if n, ok := r.(*vm.Int); !ok || n.V != 42 {
		t.Errorf("Eval = %s, want 42", v.ObjName(r))
	}
	if _, err := Eval(v, "1 +", scope); err == nil {
		t.Error("Eval of a truncated expression succeeded")
	}
}

func TestPrintfAndSprintf(t *testing.T) {
	v, scope, out := runScript(t, `
		printf("%d-%s\n", 42, "x");
		s = sprintf("%05.1f|%-3s|%x", 3.14159, "a", 255);
	`)
	if out != "42-x\n" {
		t.Errorf("output = %q", out)
	}
	wantString(t, v, scope, "s", "003.1|a  |ff")
}

func TestThreadsWaitforSameToken(t *testing.T) {
	v, scope, _ := runScript(t, `
		static waiting = 0;
		static released = 0;
		static go = 0;
		static worker(n) {
			waiting++;
			wakeup("ready");
			waitfor (go; "go")
				released++;
			return n;
		}
		t1 = thread(worker, 1);
		t2 = thread(worker, 2);
		waitfor (waiting == 2; "ready")
			;
		go = 1;
		wakeup("go");
		waitfor (t1.status != "active"; t1)
			;
		waitfor (t2.status != "active"; t2)
			;
		r = released;
		r1 = t1.result;
	`)
	wantInt(t, v, scope, "r", 2)
	wantInt(t, v, scope, "r1", 1)
	for _, name := range []string{"t1", "t2"} {
		x, ok := v.Get(scope, name).(*vm.Exec)
		if !ok {
			t.Fatalf("%s is not an exec", name)
		}
		if x.WaitingOn() != nil {
			t.Errorf("%s still waiting on %s", name, v.ObjName(x.WaitingOn()))
		}
	}
}

func TestCompileTimeStaticsAndExterns(t *testing.T) {
	v, scope, _ := runScript(t, `
		extern shared = 7;
		static hidden = 3;
		sum = shared + hidden;
	`)
	wantInt(t, v, scope, "sum", 10)
	if n, ok := v.Get(v.Externs, "shared").(*vm.Int); !ok || n.V != 7 {
		t.Error("extern declaration did not reach the externs scope")
	}
}

func TestParseAndEvalNatives(t *testing.T) {
	v, scope, _ := runScript(t, `
		m = parse("static answer = 42; q = answer;");
		a = m.q;
		e = eval("1 + 2");
	`)
	wantInt(t, v, scope, "a", 42)
	wantInt(t, v, scope, "e", 3)
}
