// Package manifest handles ici.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ici-language/ici-sub000/vm"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "ici.toml"

// Manifest represents an ici.toml project configuration.
type Manifest struct {
	Project Project    `toml:"project"`
	Runtime Runtime    `toml:"runtime"`
	Load    LoadConfig `toml:"load"`
	Log     LogConfig  `toml:"log"`

	// Dir is the directory containing the ici.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime overrides interpreter limits. Zero values leave the VM default.
type Runtime struct {
	GCLimit    int `toml:"gc_limit"`
	GCMaxLimit int `toml:"gc_max_limit"`
	YieldEvery int `toml:"yield_every"`
	MaxDepth   int `toml:"max_depth"`
}

// LoadConfig lists the directories the load hook searches for modules.
type LoadConfig struct {
	Path []string `toml:"path"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses the ici.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if len(m.Load.Path) == 0 {
		m.Load.Path = []string{"."}
	}
	if m.Runtime.GCLimit < 0 || m.Runtime.YieldEvery < 0 || m.Runtime.MaxDepth < 0 {
		return nil, fmt.Errorf("%s: runtime limits must not be negative", path)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an ici.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the manifest used when a project has none: the load path
// is the given directory.
func Default(dir string) *Manifest {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Manifest{Dir: abs, Load: LoadConfig{Path: []string{"."}}}
}

// LoadPaths returns absolute paths for the configured load directories.
func (m *Manifest) LoadPaths() []string {
	var paths []string
	for _, d := range m.Load.Path {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// LogFile returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// Apply overlays the runtime table onto cfg.
func (m *Manifest) Apply(cfg vm.Config) vm.Config {
	if m.Runtime.GCLimit > 0 {
		cfg.GCMinLimit = m.Runtime.GCLimit
	}
	if m.Runtime.GCMaxLimit > 0 {
		cfg.GCMaxLimit = m.Runtime.GCMaxLimit
	}
	if m.Runtime.YieldEvery > 0 {
		cfg.YieldEvery = m.Runtime.YieldEvery
	}
	if m.Runtime.MaxDepth > 0 {
		cfg.MaxDepth = m.Runtime.MaxDepth
	}
	return cfg
}
