package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ici-language/ici-sub000/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[runtime]
gc_limit = 4096
yield_every = 3
max_depth = 500

[load]
path = ["lib", "/opt/ici"]

[log]
verbosity = 2
file = "ici.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Runtime.GCLimit != 4096 || m.Runtime.YieldEvery != 3 || m.Runtime.MaxDepth != 500 {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if len(m.Load.Path) != 2 {
		t.Errorf("load path count = %d, want 2", len(m.Load.Path))
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if want := filepath.Join(m.Dir, "ici.log"); m.LogFile() != want {
		t.Errorf("log file = %q, want %q", m.LogFile(), want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Load.Path) != 1 || m.Load.Path[0] != "." {
		t.Errorf("default load path = %v, want [.]", m.Load.Path)
	}
	if m.LogFile() != "" {
		t.Errorf("default log file = %q, want stderr", m.LogFile())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[project\nname = 1"},
		{"type", "[runtime]\ngc_limit = \"big\""},
		{"negative", "[runtime]\nmax_depth = -1"},
	}
	for _, tc := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tc.content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: Load succeeded, want an error", tc.name)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without a manifest succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no ici.toml exists")
	}
}

func TestLoadPaths(t *testing.T) {
	m := &Manifest{
		Dir:  "/app",
		Load: LoadConfig{Path: []string{".", "lib", "/usr/share/ici"}},
	}

	paths := m.LoadPaths()
	want := []string{"/app", "/app/lib", "/usr/share/ici"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestApply(t *testing.T) {
	base := vm.DefaultConfig()

	m := &Manifest{Runtime: Runtime{GCLimit: 2048, MaxDepth: 77}}
	cfg := m.Apply(base)
	if cfg.GCMinLimit != 2048 {
		t.Errorf("GCMinLimit = %d, want 2048", cfg.GCMinLimit)
	}
	if cfg.MaxDepth != 77 {
		t.Errorf("MaxDepth = %d, want 77", cfg.MaxDepth)
	}
	if cfg.YieldEvery != base.YieldEvery || cfg.GCMaxLimit != base.GCMaxLimit {
		t.Error("unset runtime fields changed the config")
	}
	if cfg.Stdout != base.Stdout {
		t.Error("Apply replaced the output streams")
	}
}
