package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/ici-language/ici-sub000/compiler"
	"github.com/ici-language/ici-sub000/vm"
)

const (
	historyFile = ".ici_history"
	promptMain  = "ici> "
	promptCont  = "...> "
)

// repl reads statements and expressions from the terminal until EOF. The
// VM is released while waiting for input, so script threads keep running.
func repl(v *vm.VM, stdout io.Writer) error {
	fmt.Fprintf(stdout, "%s (type :quit to exit)\n", vm.Version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	scope := v.NewModuleScope()
	defer scope.Decref()

	for {
		x := v.Leave()
		src, ok := readByParseProbe(v, x, ln)
		v.Enter(x)
		if !ok {
			fmt.Fprintln(stdout)
			return nil
		}

		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit", ":q":
			return nil
		case ":stats":
			printStats(v, stdout)
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		out, err := evalLine(v, src, scope)
		var exit *vm.ExitError
		if errors.As(err, &exit) {
			return err
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if out != "" {
			fmt.Fprintln(stdout, out)
		}
	}
}

// readByParseProbe reads lines until they form input that compiles or
// fails for a reason more input cannot fix. The VM is entered only for
// the syntax check.
func readByParseProbe(v *vm.VM, x *vm.Exec, ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		v.Enter(x)
		se := compiler.Check(v, "stdin", src)
		v.Leave()
		if se == nil || !se.Incomplete {
			return src, true
		}
	}
}

// evalLine evaluates src in the REPL scope. Input that parses as an
// expression prints its value; anything else runs as statements.
func evalLine(v *vm.VM, src string, scope *vm.Map) (string, error) {
	r, err := compiler.Eval(v, src, scope)
	if _, ok := compiler.AsSyntaxError(err); ok {
		f := v.StringFile("stdin", src)
		defer f.Decref()
		return "", v.ParseFile(f, scope)
	}
	if err != nil {
		return "", err
	}
	defer r.Head().Decref()
	if r == vm.Object(vm.Null) {
		return "", nil
	}
	return display(v, r), nil
}
