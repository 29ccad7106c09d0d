package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// IdleCollector: periodic collection while the VM is idle
// ---------------------------------------------------------------------------

// IdleCollector runs a collection on a timer whenever it can take the VM
// lock. Long-running hosts (servers, REPLs) use it to return memory between
// requests, when allocation alone would not trigger a collection.
type IdleCollector struct {
	vm       *VM
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	lastStats  atomic.Value // *GCStats
}

// DefaultIdleInterval is the default period between idle collections.
const DefaultIdleInterval = 30 * time.Second

// NewIdleCollector creates a collector for vm. A non-positive interval
// means DefaultIdleInterval.
func NewIdleCollector(vm *VM, interval time.Duration) *IdleCollector {
	if interval <= 0 {
		interval = DefaultIdleInterval
	}
	c := &IdleCollector{vm: vm, interval: interval}
	c.enabled.Store(true)
	return c
}

// Start begins the periodic goroutine. Calling Start again is harmless.
func (c *IdleCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	stopCh := c.stop
	stoppedCh := c.stopped
	go c.loop(stopCh, stoppedCh)
}

// Stop halts the goroutine and waits for it to finish.
func (c *IdleCollector) Stop() {
	c.mu.Lock()
	stopCh := c.stop
	stoppedCh := c.stopped
	c.stop = nil
	c.stopped = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled turns sweeping on or off without stopping the goroutine.
func (c *IdleCollector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// IsEnabled reports whether ticks trigger collections.
func (c *IdleCollector) IsEnabled() bool {
	return c.enabled.Load()
}

// Interval returns the period between collections.
func (c *IdleCollector) Interval() time.Duration {
	return c.interval
}

// SweepCount returns the number of collections run so far.
func (c *IdleCollector) SweepCount() uint64 {
	return c.sweepCount.Load()
}

// LastStats returns the statistics of the latest idle collection, or nil.
func (c *IdleCollector) LastStats() *GCStats {
	v := c.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*GCStats)
}

// SweepNow takes the VM lock and collects immediately. The caller must not
// hold the lock.
func (c *IdleCollector) SweepNow() *GCStats {
	vm := c.vm
	vm.sched.lock()
	defer vm.sched.mu.Unlock()
	if vm.closed {
		return nil
	}
	stats := vm.collect()
	c.sweepCount.Add(1)
	c.lastStats.Store(&stats)
	return &stats
}

func (c *IdleCollector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if c.enabled.Load() {
				c.SweepNow()
			}
		}
	}
}
