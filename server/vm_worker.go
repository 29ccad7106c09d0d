package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ici-language/ici-sub000/vm"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("vm worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) interface{}
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value interface{}
	err   error
}

// VMWorker serializes all VM access through a single goroutine. Between
// jobs it leaves the VM, so script threads started by earlier requests
// keep running while the worker is idle.
type VMWorker struct {
	vm       *vm.VM
	exec     *vm.Exec
	requests chan vmRequest
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine. The
// calling goroutine must hold the VM (as it does after vm.New) and gives
// it up until Stop.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		exec:     v.Leave(),
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute enters the VM, runs fn and leaves again, recovering from panics.
func (w *VMWorker) execute(fn func(*vm.VM) interface{}) (result vmResult) {
	w.vm.Enter(w.exec)
	defer w.vm.Leave()
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.vm)
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes. Returns the result and any error (including panics).
// fn must not call Do.
func (w *VMWorker) Do(fn func(*vm.VM) interface{}) (interface{}, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		// the loop may have taken the request just before stopping
		select {
		case result := <-req.done:
			return result.value, result.err
		default:
			return nil, ErrWorkerStopped
		}
	}
}

// Stop shuts down the worker goroutine and hands the VM back to the
// calling goroutine, which may then Close it. Stop is idempotent.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		<-w.stopped
		w.vm.Enter(w.exec)
	})
}

// VM returns the underlying VM. It may only be used inside Do.
func (w *VMWorker) VM() *vm.VM {
	return w.vm
}
