package vm

import (
	"io"
	"os"
	"regexp"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ici.vm")

// Version is reported by the version variable in scripts.
const Version = "ici-go 4.1"

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config holds the tunables of a VM.
type Config struct {
	// GCMinLimit is the smallest allocation cost that triggers a collection.
	GCMinLimit int
	// GCMaxLimit caps how far the limit may exceed the live cost after a
	// collection. Zero means no cap.
	GCMaxLimit int
	// CheckInterval is the number of dispatch iterations between stack
	// headroom checks.
	CheckInterval int
	// YieldEvery is the number of checks between forced yields.
	YieldEvery int
	// MaxDepth bounds the exec stack.
	MaxDepth int

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		GCMinLimit:    1 << 20,
		GCMaxLimit:    64 << 20,
		CheckInterval: 100,
		YieldEvery:    10,
		MaxDepth:      100000,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Stdin:         os.Stdin,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.GCMinLimit <= 0 {
		c.GCMinLimit = d.GCMinLimit
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.YieldEvery <= 0 {
		c.YieldEvery = d.YieldEvery
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.Stdout == nil {
		c.Stdout = d.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = d.Stderr
	}
	if c.Stdin == nil {
		c.Stdin = d.Stdin
	}
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one interpreter instance. All of its state is guarded by the
// scheduler lock; the goroutine that created it holds the lock for the main
// context until it calls Leave.
type VM struct {
	cfg Config

	// collector
	objs       []Object
	mem        int
	memLimit   int
	nextID     uint32
	suppressGC int
	gc         collector

	atoms atomTable
	small [smallIntMax - smallIntMin + 1]*Int
	ops   map[int]*Op

	// scope version; cached lookups are valid only while it is unchanged
	vsver uint32

	sched scheduler
	cur   *Exec
	stk   *Stacks
	main  *Exec
	execs []*Exec

	call     callState
	compiler Compiler
	cleanups []func()
	closed   bool

	// Externs is the outermost scope, holding the natives.
	Externs *Map

	opCall   *Op
	opLooper *Op
	opSwitch *Op
	opDefault *Op

	sError  *String
	sThis   *String
	sLoad   *String
	sVargs  *String
	sStatus *String

	compileRegexp func(pattern string) (Matcher, error)
}

// Compiler turns source text into code arrays.
type Compiler interface {
	// Source returns a statement source reading from f.
	Source(vm *VM, f *File) ParseSource
	// Expr compiles one expression. The array carries a reference.
	Expr(vm *VM, f *File) (*Array, error)
}

// New creates a VM. The calling goroutine holds the VM's lock on return.
func New(cfg Config) (*VM, error) {
	cfg.fill()
	vm := &VM{
		cfg:      cfg,
		memLimit: cfg.GCMinLimit,
		atoms:    newAtomTable(1024),
		ops:      make(map[int]*Op),
		vsver:    1,
	}
	vm.compileRegexp = func(p string) (Matcher, error) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		return re, nil
	}
	vm.sched.init()
	vm.suppressGC++

	for i := range vm.small {
		o := &Int{Header: Header{tag: TagInt, leafz: 16}, V: int64(i + smallIntMin)}
		vm.rego(o, 16)
		vm.small[i] = vm.Atom(o, true).(*Int)
	}
	vm.sError = vm.NewString("error")
	vm.sThis = vm.NewString("this")
	vm.sLoad = vm.NewString("load")
	vm.sVargs = vm.NewString("vargs")
	vm.sStatus = vm.NewString("status")
	vm.opCall = vm.Op(OpCall, 0)
	vm.opLooper = vm.Op(OpLooper, 0)
	vm.opSwitch = vm.Op(OpSwitcher, 0)
	vm.opDefault = vm.Op(OpDefault, 0)

	vm.Externs = vm.NewMap()
	vm.main = vm.newExec(vm.Externs)
	vm.execs = append(vm.execs, vm.main)
	vm.sched.lock()
	vm.install(vm.main)

	if err := vm.installCoreNatives(); err != nil {
		return nil, err
	}
	vm.suppressGC--
	log.Debugf("vm started with %d objects", len(vm.objs))
	return vm, nil
}

// Config returns the configuration the VM runs with.
func (vm *VM) Config() Config { return vm.cfg }

// SetStdout redirects printf output and returns the previous writer.
func (vm *VM) SetStdout(w io.Writer) io.Writer {
	old := vm.cfg.Stdout
	vm.cfg.Stdout = w
	return old
}

// UseCompiler installs the compiler used by parse, eval and ParseFile.
func (vm *VM) UseCompiler(c Compiler) {
	vm.compiler = c
}

// AtExit registers fn to run when the VM is closed.
func (vm *VM) AtExit(fn func()) {
	vm.cleanups = append(vm.cleanups, fn)
}

// Close runs the cleanup callbacks, collects twice and releases the
// tables. The VM must not be used afterwards.
func (vm *VM) Close() error {
	if vm.closed {
		return nil
	}
	for i := len(vm.cleanups) - 1; i >= 0; i-- {
		vm.cleanups[i]()
	}
	vm.cleanups = nil
	vm.Externs.Decref()
	vm.collect()
	stats := vm.collect()
	log.Debugf("vm closed with %d objects live", stats.Live)
	vm.closed = true
	vm.objs = nil
	vm.atoms = atomTable{}
	vm.ops = nil
	if vm.cur != nil {
		vm.uninstall()
		vm.sched.mu.Unlock()
	}
	return nil
}

// Stats summarises the VM for diagnostics.
type Stats struct {
	Objects  int     `yaml:"objects"`
	Atoms    int     `yaml:"atoms"`
	Cost     int     `yaml:"cost"`
	Limit    int     `yaml:"limit"`
	Threads  int     `yaml:"threads"`
	Yields   uint64  `yaml:"yields"`
	LastGC   GCStats `yaml:"last_gc"`
}

// Stats returns current statistics.
func (vm *VM) Stats() Stats {
	return Stats{
		Objects: len(vm.objs),
		Atoms:   vm.atoms.n,
		Cost:    vm.mem,
		Limit:   vm.memLimit,
		Threads: len(vm.execs),
		Yields:  vm.sched.yields.Load(),
		LastGC:  vm.gc.last,
	}
}

// NewModuleScope returns a fresh autos scope whose statics delegate to the
// externs.
func (vm *VM) NewModuleScope() *Map {
	statics := vm.NewMap()
	statics.super = vm.Externs
	autos := vm.NewMap()
	autos.super = statics
	statics.Decref()
	return autos
}

// ParseFile compiles and runs f statement by statement in scope.
func (vm *VM) ParseFile(f *File, scope *Map) (err error) {
	if vm.compiler == nil {
		return &Error{Msg: "no compiler installed"}
	}
	defer vm.recoverInternal(&err)
	p := vm.NewParse(vm.compiler.Source(vm, f), f)
	vm.stk.vs.push(scope)
	_, err = vm.evaluate(p, 0)
	p.Decref()
	vm.stk.vs.pop()
	return err
}

// EvalString compiles src as an expression and evaluates it in scope. The
// result carries a new reference.
func (vm *VM) EvalString(src string, scope *Map) (result Object, err error) {
	if vm.compiler == nil {
		return nil, &Error{Msg: "no compiler installed"}
	}
	defer vm.recoverInternal(&err)
	f := vm.StringFile("eval", src)
	defer f.Decref()
	code, err := vm.compiler.Expr(vm, f)
	if err != nil {
		return nil, err
	}
	defer code.Decref()
	vm.stk.vs.push(scope)
	defer vm.stk.vs.pop()
	return vm.evaluate(code, 0)
}

// Call invokes callable with args and returns its result.
func (vm *VM) Call(callable Object, args ...Object) (result Object, err error) {
	defer vm.recoverInternal(&err)
	st := vm.stk
	st.os.reserve(len(args) + 2)
	for _, a := range args {
		st.os.push(a)
	}
	n := vm.NewInt(int64(len(args)))
	st.os.push(n)
	n.Decref()
	st.os.push(callable)
	return vm.evaluate(vm.opCall, len(args)+2)
}

// Evaluate runs code, which is an array of instructions or a single
// instruction, and returns the value it leaves on the operand stack.
func (vm *VM) Evaluate(code Object) (result Object, err error) {
	defer vm.recoverInternal(&err)
	return vm.evaluate(code, 0)
}
