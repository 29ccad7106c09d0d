package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

func newLoaderVM(t *testing.T, files map[string]string) (*vm.VM, *Loader, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, "lib", name), []byte(src), 0644); err != nil {
			t.Fatal(err)
		}
	}
	m := Default(dir)
	m.Load.Path = []string{"lib"}

	var out bytes.Buffer
	cfg := m.Apply(vm.DefaultConfig())
	cfg.Stdout = &out
	v, err := vm.New(cfg)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	compiler.Install(v)

	l := NewLoader(m)
	if err := l.Install(v); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return v, l, &out
}

func TestLoaderFind(t *testing.T) {
	_, l, _ := newLoaderVM(t, map[string]string{"util.ici": "x = 1;"})

	if _, ok := l.Find("util"); !ok {
		t.Error("util not found on the load path")
	}
	for _, name := range []string{"missing", "", "../util", "lib/util", ".hidden"} {
		if path, ok := l.Find(name); ok {
			t.Errorf("Find(%q) = %q, want not found", name, path)
		}
	}
}

func TestLoaderAutoloadsOnUndefinedName(t *testing.T) {
	v, l, out := newLoaderVM(t, map[string]string{
		"mathx.ici": `
static twice(n) { return n * 2; }
answer = 42;
printf("loading\n");
`,
	})

	scope, err := compiler.Run(v, "main.ici", `
r = mathx.answer + mathx.twice(4);
s = mathx.answer;
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer scope.Decref()

	if r, ok := v.Get(scope, "r").(*vm.Int); !ok || r.V != 50 {
		t.Errorf("r = %v, want 50", v.Get(scope, "r"))
	}
	if out.String() != "loading\n" {
		t.Errorf("module output = %q, want it to run once", out.String())
	}
	if _, ok := l.Loaded()["mathx"]; !ok {
		t.Error("mathx not recorded as loaded")
	}
}

func TestLoaderLeavesUnknownNamesUndefined(t *testing.T) {
	v, _, _ := newLoaderVM(t, nil)

	_, err := compiler.Run(v, "main.ici", "x = nowhere;")
	if err == nil || vm.ErrorMessage(err) != `"nowhere" undefined` {
		t.Errorf("error = %v, want nowhere undefined", err)
	}
}

func TestLoaderReportsModuleErrors(t *testing.T) {
	v, _, _ := newLoaderVM(t, map[string]string{"broken.ici": "x = ;"})

	_, err := compiler.Run(v, "main.ici", "y = broken.x;")
	if err == nil {
		t.Fatal("expected the module's syntax error")
	}
	var e *vm.Error
	if !errors.As(err, &e) || filepath.Base(e.File) != "broken.ici" {
		t.Errorf("error %v not located in broken.ici", err)
	}
}
