package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

var log = commonlog.GetLogger("ici.manifest")

// Extension is the suffix of module source files.
const Extension = ".ici"

// Loader binds the load hook that pulls modules from the load path on
// first reference to an undefined name.
type Loader struct {
	paths   []string
	loading map[string]bool
	loaded  map[string]string
}

// NewLoader returns a loader over m's load path.
func NewLoader(m *Manifest) *Loader {
	return &Loader{
		paths:   m.LoadPaths(),
		loading: make(map[string]bool),
		loaded:  make(map[string]string),
	}
}

// Find returns the first NAME.ici on the load path.
func (l *Loader) Find(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", false
	}
	for _, dir := range l.paths {
		path := filepath.Join(dir, name+Extension)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Loaded returns the file each module was loaded from.
func (l *Loader) Loaded() map[string]string {
	return l.loaded
}

// Install binds load into v's externs.
func (l *Loader) Install(v *vm.VM) error {
	return v.Install(v.Externs, []vm.NativeDef{{Name: "load", Fn: l.load}})
}

// load runs NAME.ici in a fresh module scope and binds NAME in the externs
// to that scope, so the module's variables and statics are reachable as
// NAME.x. A name with no file on the path is left undefined.
func (l *Loader) load(v *vm.VM, args []vm.Object) error {
	var name string
	if err := v.Args(args, "s", &name); err != nil {
		return err
	}
	path, ok := l.Find(name)
	if !ok {
		return v.Ret(vm.Null)
	}
	if l.loading[name] {
		return fmt.Errorf("module %s is already being loaded", name)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	f, err := v.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Decref()
	defer f.Close()

	log.Debugf("loading %s from %s", name, path)
	scope, err := compiler.RunFile(v, f)
	if err != nil {
		return err
	}
	defer scope.Decref()

	if err := v.Set(v.Externs, name, scope); err != nil {
		return err
	}
	l.loaded[name] = path
	return v.Ret(scope)
}
