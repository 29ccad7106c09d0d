package vm

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Scheduler: one lock, cooperative switching
// ---------------------------------------------------------------------------

// scheduler serialises every goroutine running scripts on a VM. Only the
// goroutine holding mu may touch interpreter state.
type scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	want    atomic.Int32 // goroutines ready to run but not holding mu
	entered atomic.Int32 // contexts currently installed or running
	yields  atomic.Uint64
}

func (s *scheduler) init() {
	s.cond = sync.NewCond(&s.mu)
}

func (s *scheduler) lock() {
	s.want.Add(1)
	s.mu.Lock()
	s.want.Add(-1)
}

// install makes x the current context.
func (vm *VM) install(x *Exec) {
	vm.cur = x
	vm.stk = x.stk
	vm.sched.entered.Add(1)
}

// uninstall detaches the current context. Its stacks stay reachable
// through the context object.
func (vm *VM) uninstall() *Exec {
	x := vm.cur
	vm.cur = nil
	vm.stk = nil
	vm.sched.entered.Add(-1)
	return x
}

// Leave releases the VM so other goroutines may run scripts, and returns
// the context to pass to Enter. Inside a critical section it keeps the
// lock.
func (vm *VM) Leave() *Exec {
	x := vm.cur
	if x.critsect > 0 {
		return x
	}
	vm.uninstall()
	vm.sched.mu.Unlock()
	return x
}

// Enter reacquires the VM for x after Leave.
func (vm *VM) Enter(x *Exec) {
	if vm.cur == x {
		return
	}
	vm.sched.lock()
	vm.install(x)
}

// Current returns the running context.
func (vm *VM) Current() *Exec { return vm.cur }

// yield lets other goroutines waiting for the VM run.
func (vm *VM) yield() {
	x := vm.cur
	if x.critsect > 0 || vm.sched.want.Load() == 0 {
		return
	}
	vm.uninstall()
	vm.sched.mu.Unlock()
	runtime.Gosched()
	vm.sched.lock()
	vm.install(x)
	vm.sched.yields.Add(1)
}

// waitfor blocks the current context until another one wakes token. The
// lock is released for the duration regardless of critical sections, and
// the critical section depth is restored afterwards.
func (vm *VM) waitfor(token Object) {
	x := vm.cur
	saved := x.critsect
	x.critsect = 0
	x.waitfor = token
	vm.uninstall()
	for x.waitfor != nil {
		vm.sched.cond.Wait()
	}
	vm.sched.want.Add(-1)
	vm.install(x)
	x.critsect = saved
}

// Wakeup releases every context waiting on token.
func (vm *VM) Wakeup(token Object) {
	var woke int32
	for _, x := range vm.execs {
		if x.waitfor == token {
			x.waitfor = nil
			woke++
		}
	}
	if woke > 0 {
		vm.sched.want.Add(woke)
		vm.sched.cond.Broadcast()
	}
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// Spawn starts fn(args...) in a new context on its own goroutine. The
// thread runs whenever the current holder of the VM yields, waits or
// leaves. The returned context carries a new reference.
func (vm *VM) Spawn(fn Object, args []Object) *Exec {
	var scope *Map
	if vm.stk != nil && vm.stk.vs.Len() > 0 {
		scope = vm.Scope()
	}
	x := vm.newExec(scope)
	x.fn = fn
	x.args = append([]Object(nil), args...)
	x.Incref()
	vm.execs = append(vm.execs, x)
	go vm.runThread(x)
	return x
}

func (vm *VM) runThread(x *Exec) {
	vm.sched.lock()
	vm.install(x)
	log.Debugf("thread %s started", x.ID)

	fn, args := x.fn, x.args
	result, err := vm.Call(fn, args...)
	x.fn, x.args = nil, nil
	if err != nil {
		x.status = ExecFailed
		x.errMsg = err.Error()
		log.Debugf("thread %s failed: %s", x.ID, err)
	} else {
		x.status = ExecFinished
		x.result = result
		result.Head().Decref()
		log.Debugf("thread %s finished", x.ID)
	}
	x.stk = nil
	vm.removeExec(x)
	vm.Wakeup(x)
	vm.uninstall()
	x.Decref()
	vm.sched.mu.Unlock()
}

func (vm *VM) removeExec(x *Exec) {
	for i, e := range vm.execs {
		if e == x {
			vm.execs = append(vm.execs[:i], vm.execs[i+1:]...)
			return
		}
	}
}

// Threads returns the number of live contexts, the main one included.
func (vm *VM) Threads() int { return len(vm.execs) }
