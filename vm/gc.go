package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Collector: extra-owner roots plus mark/sweep
// ---------------------------------------------------------------------------

// GCStats describes one collection.
type GCStats struct {
	Collection   uint64        `yaml:"collection"`
	Live         int           `yaml:"live"`
	Freed        int           `yaml:"freed"`
	Atoms        int           `yaml:"atoms"`
	LiveCost     int           `yaml:"live_cost"`
	Limit        int           `yaml:"limit"`
	RebuiltAtoms bool          `yaml:"rebuilt_atoms"`
	Duration     time.Duration `yaml:"duration"`
}

type collector struct {
	gray       []Object
	cost       int
	collecting bool
	count      uint64
	last       GCStats
}

// rego registers a freshly built object. The caller receives the one
// extra-owner reference it is born with.
func (vm *VM) rego(o Object, cost int) {
	if vm.mem+cost > vm.memLimit && vm.suppressGC == 0 && !vm.gc.collecting {
		vm.collect()
	}
	h := o.Head()
	vm.nextID++
	h.id = vm.nextID
	h.nrefs = 1
	vm.objs = append(vm.objs, o)
	vm.mem += cost
}

// Register gives o the type tag and hands it to the collector. Values of
// types added with RegisterType are built this way. o is returned with
// one extra-owner reference.
func (vm *VM) Register(o Object, tag uint8, cost int) {
	o.Head().tag = tag
	vm.rego(o, cost)
}

// Hold adds an extra-owner reference to each object and returns the
// function that drops them again.
func (vm *VM) Hold(objs ...Object) func() {
	for _, o := range objs {
		o.Head().Incref()
	}
	return func() {
		for _, o := range objs {
			o.Head().Decref()
		}
	}
}

// Mark records o as reachable. Type mark operations call it for every
// object they reference.
func (vm *VM) Mark(o Object) {
	if o == nil || o == Object(Null) {
		return
	}
	h := o.Head()
	if h.flags&FlagMark != 0 {
		return
	}
	h.flags |= FlagMark
	if h.leafz != 0 {
		vm.gc.cost += int(h.leafz)
		return
	}
	vm.gc.gray = append(vm.gc.gray, o)
}

// drain marks the children of everything queued by Mark.
func (vm *VM) drain() {
	for n := len(vm.gc.gray); n > 0; n = len(vm.gc.gray) {
		o := vm.gc.gray[n-1]
		vm.gc.gray[n-1] = nil
		vm.gc.gray = vm.gc.gray[:n-1]
		vm.gc.cost += types[o.Head().tag].Mark(vm, o)
	}
}

// ForceCollect runs a collection now.
func (vm *VM) ForceCollect() GCStats {
	return vm.collect()
}

// LastGC returns the statistics of the most recent collection.
func (vm *VM) LastGC() GCStats {
	return vm.gc.last
}

// ObjectCount returns the number of registered objects.
func (vm *VM) ObjectCount() int {
	return len(vm.objs)
}

func (vm *VM) collect() GCStats {
	start := time.Now()
	vm.gc.collecting = true
	vm.gc.cost = 0

	for _, o := range vm.objs {
		if o.Head().nrefs > 0 {
			vm.Mark(o)
		}
	}
	for _, x := range vm.execs {
		vm.Mark(x)
	}
	vm.drain()

	dying, live := 0, 0
	for _, o := range vm.objs {
		h := o.Head()
		if h.flags&FlagAtom == 0 {
			continue
		}
		if h.flags&FlagMark != 0 {
			live++
		} else {
			dying++
		}
	}
	rebuilt := dying > live
	if rebuilt {
		vm.rebuildAtoms(live)
	} else if dying > 0 {
		for _, o := range vm.objs {
			if h := o.Head(); h.flags&(FlagAtom|FlagMark) == FlagAtom {
				vm.unatom(o)
			}
		}
	}

	j := 0
	for _, o := range vm.objs {
		h := o.Head()
		if h.flags&FlagMark != 0 {
			h.flags &^= FlagMark
			vm.objs[j] = o
			j++
			continue
		}
		h.flags &^= FlagAtom
		types[h.tag].Free(vm, o)
	}
	freed := len(vm.objs) - j
	clear(vm.objs[j:])
	vm.objs = vm.objs[:j]

	vm.mem = vm.gc.cost
	limit := vm.gc.cost * 2
	if limit < vm.cfg.GCMinLimit {
		limit = vm.cfg.GCMinLimit
	}
	if vm.cfg.GCMaxLimit > 0 && limit > vm.gc.cost+vm.cfg.GCMaxLimit {
		limit = vm.gc.cost + vm.cfg.GCMaxLimit
	}
	vm.memLimit = limit
	vm.vsver++
	vm.gc.collecting = false
	vm.gc.count++

	stats := GCStats{
		Collection:   vm.gc.count,
		Live:         j,
		Freed:        freed,
		Atoms:        vm.atoms.n,
		LiveCost:     vm.gc.cost,
		Limit:        limit,
		RebuiltAtoms: rebuilt,
		Duration:     time.Since(start),
	}
	vm.gc.last = stats
	log.Debugf("gc %d: %d live, %d freed, limit %d", stats.Collection, stats.Live, stats.Freed, stats.Limit)
	return stats
}
