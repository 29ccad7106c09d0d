// ICI CLI - runs scripts, evaluates expressions and hosts the servers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/manifest"
	"github.com/ici-language/ici-sub000/server"
	"github.com/ici-language/ici-sub000/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ici.cmd")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options are the parsed command-line flags.
type options struct {
	expr      string
	verbosity int
	stats     bool
	lsp       bool
	serve     string
	args      []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("ici", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVar(&opts.expr, "e", "", "evaluate `expr` and print its value")
	fs.IntVar(&opts.verbosity, "v", -1, "log `verbosity` (overrides the manifest)")
	fs.BoolVar(&opts.stats, "stats", false, "print collector and scheduler statistics on exit")
	fs.BoolVar(&opts.lsp, "lsp", false, "run the language server on stdio")
	fs.StringVar(&opts.serve, "serve", "", "serve the evaluation service on `addr`")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ici [options] [file [args...]]\n\n")
		fmt.Fprintf(stderr, "Runs an ICI script. Without a file it reads the script from stdin,\n")
		fmt.Fprintf(stderr, "or starts a REPL when stdin is a terminal.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  ici                      # Start REPL\n")
		fmt.Fprintf(stderr, "  ici prog.ici a b         # Run prog.ici with argv = [prog.ici, a, b]\n")
		fmt.Fprintf(stderr, "  ici -e '6 * 7'           # Print 42\n")
		fmt.Fprintf(stderr, "  ici -serve :4190         # Serve Connect evaluation on :4190\n")
		fmt.Fprintf(stderr, "  ici -lsp                 # Language server on stdio\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()
	return opts, nil
}

// run is main without the process exit, so tests can drive it.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := projectManifest()
	if err != nil {
		fmt.Fprintf(stderr, "ici: %v\n", err)
		return 1
	}
	configureLogging(m, opts.verbosity)

	cfg := m.Apply(vm.DefaultConfig())
	cfg.Stdout, cfg.Stderr, cfg.Stdin = stdout, stderr, stdin
	v, err := vm.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "ici: %v\n", err)
		return 1
	}
	defer v.Close()
	compiler.Install(v)
	if err := manifest.NewLoader(m).Install(v); err != nil {
		fmt.Fprintf(stderr, "ici: %v\n", err)
		return 1
	}

	switch {
	case opts.serve != "":
		err = serve(v, opts.serve, opts.lsp)
	case opts.lsp:
		lsp := server.NewLSP(v)
		err = lsp.Run()
		lsp.Stop()
	default:
		err = execute(v, opts, stdin, stdout)
	}

	if opts.stats {
		printStats(v, stderr)
	}
	return report(err, stderr)
}

// projectManifest finds ici.toml above the working directory, or falls
// back to a manifest whose load path is the working directory.
func projectManifest() (*manifest.Manifest, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(wd)
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, verbosity int) {
	if verbosity < 0 {
		verbosity = m.Log.Verbosity
	}
	var path *string
	if f := m.LogFile(); f != "" {
		path = &f
	}
	commonlog.Configure(verbosity, path)
}

// execute runs an expression, a script file, stdin or the REPL.
func execute(v *vm.VM, opts *options, stdin io.Reader, stdout io.Writer) error {
	if opts.expr != "" {
		bindArgv(v, append([]string{"-e"}, opts.args...))
		return evalExpr(v, opts.expr, stdout)
	}
	if len(opts.args) > 0 {
		bindArgv(v, opts.args)
		f, err := v.OpenFile(opts.args[0])
		if err != nil {
			return err
		}
		defer f.Decref()
		return runFile(v, f)
	}
	bindArgv(v, []string{"-"})
	if isTerminal(stdin) {
		return repl(v, stdout)
	}
	f := v.ReaderFile("-", stdin, nil)
	defer f.Decref()
	return runFile(v, f)
}

func runFile(v *vm.VM, f *vm.File) error {
	scope, err := compiler.RunFile(v, f)
	if err != nil {
		return err
	}
	scope.Decref()
	return nil
}

func evalExpr(v *vm.VM, src string, stdout io.Writer) error {
	scope := v.NewModuleScope()
	defer scope.Decref()
	r, err := compiler.Eval(v, src, scope)
	if err != nil {
		return err
	}
	defer r.Head().Decref()
	fmt.Fprintln(stdout, display(v, r))
	return nil
}

// bindArgv sets argv in the externs to the script name and its arguments.
func bindArgv(v *vm.VM, args []string) {
	a := v.NewArray(len(args))
	for _, s := range args {
		str := v.NewString(s)
		a.Push(str)
		str.Decref()
	}
	if err := v.Set(v.Externs, "argv", a); err != nil {
		log.Errorf("binding argv: %s", err)
	}
	a.Decref()
}

// display renders a value the way the REPL prints it. Strings print
// unquoted in full.
func display(v *vm.VM, o vm.Object) string {
	if s, ok := o.(*vm.String); ok {
		return s.S
	}
	return v.ObjName(o)
}

// serve runs the evaluation service, and the language server on stdio
// when lsp is set, until interrupted.
func serve(v *vm.VM, addr string, lsp bool) error {
	srv := server.New(v)
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	if lsp {
		g.Go(func() error {
			err := srv.LSP().Run()
			stop()
			return err
		})
	}
	return g.Wait()
}

func printStats(v *vm.VM, w io.Writer) {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(v.Stats()); err != nil {
		log.Errorf("encoding stats: %s", err)
	}
}

// report turns the outcome of a run into an exit status.
func report(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exit *vm.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	msg := err.Error()
	if isTerminal(stderr) {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprintf(stderr, "ici: %s\n", msg)
	return 1
}

func isTerminal(f any) bool {
	file, ok := f.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
