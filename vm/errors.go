package vm

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is a failure that left the dispatch loop, tagged with the source
// position that was executing.
type Error struct {
	Msg  string
	File string
	Line int
	Err  error
}

func (e *Error) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitError requests termination of the program with Code. It is not
// caught by onerror handlers.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// ErrorMessage returns the message of err without position information.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

// locate attaches the current source position to err.
func (vm *VM) locate(err error) error {
	var e *Error
	if errors.As(err, &e) && e.File != "" {
		return err
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return err
	}
	loc := &Error{Msg: ErrorMessage(err), Err: err}
	if x := vm.cur; x != nil && x.src != nil {
		loc.File = x.src.File.S
		loc.Line = x.src.Line
	}
	return loc
}

// recoverInternal turns a Go panic inside the engine into an error. The
// stacks of the current context are left as they were at the panic, so
// the context should not be used further.
func (vm *VM) recoverInternal(errp *error) {
	if r := recover(); r != nil {
		log.Errorf("internal error: %v\n%s", r, debug.Stack())
		*errp = vm.locate(fmt.Errorf("internal error: %v", r))
	}
}

// ArgError reports argument i (from zero) of the running native as wrongly
// typed.
func (vm *VM) ArgError(i int, got Object) error {
	return fmt.Errorf("argument %d of %s incorrectly supplied as %s", i+1, vm.nativeName(), TypeName(got))
}

// ArgCountError reports a wrong number of arguments to the running native.
func (vm *VM) ArgCountError(given, want int) error {
	return fmt.Errorf("%d arguments given to %s, but it takes %d", given, vm.nativeName(), want)
}

func (vm *VM) nativeName() string {
	if vm.call.fn == nil {
		return "function"
	}
	return vm.call.fn.Name
}
