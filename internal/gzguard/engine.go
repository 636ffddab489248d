package gzguard

import (
	"log"
	"sync"
	"sync/atomic"
)

// AllocFlags mirrors the flags the zone allocator passes through to
// Engine.Alloc (spec.md §4.5 step 1). NoWait models a caller that cannot
// block; it is the only case Alloc is permitted to refuse by returning 0
// instead of an element pointer.
type AllocFlags struct {
	NoWait bool
}

// PreemptionQuery reports whether the calling thread currently has
// preemption disabled. The engine has no scheduler of its own to ask,
// so the surrounding runtime supplies this hook (spec.md §5,
// "detected by querying the scheduler's preemption level"); the default
// always reports enabled (preemption not disabled).
type PreemptionQuery func() bool

// Engine is the Guard Engine (spec.md §4.5): the core allocate/free
// algorithm sitting between a Zone, a VA Arena, and a pre-VM Reserve.
// One Engine is constructed per Config and shared by every zone it
// tracks.
type Engine struct {
	cfg     *Config
	arena   Arena
	reserve *Reserve
	logger  *log.Logger

	vmReady atomic.Bool

	preemptionQuery PreemptionQuery

	allocated, freed, wasted    int64
	earlyAlloc, earlyFree       int64
	pdzallocCount, pdzfreeCount int64

	mu sync.Mutex
}

// NewEngine constructs the engine from a parsed Config. The Reserve and
// VA Arena are both created eagerly: creating an Arena never maps
// memory by itself (see arena_unix.go/arena_windows.go/arena_portable.go),
// so it is safe to hold before the VM subsystem is actually ready. The
// engine starts in the pre-vm phase; callers move it to post-vm with
// MarkVMReady once the surrounding runtime's own VM map exists, per
// spec.md §9 ("phase indicator {pre-vm, post-vm}").
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = disabledConfig
	}

	logger := newLogger(cfg.Verbose)

	e := &Engine{
		cfg:             cfg,
		arena:           NewArena(cfg.ReserveSize*uintptr(cfg.ZScale), logger),
		reserve:         NewReserve(cfg.ReserveSize, logger),
		logger:          logger,
		preemptionQuery: func() bool { return false },
	}

	return e
}

// Enabled reports whether this engine tracks anything at all, per
// spec.md §6's exported `enabled()`.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// MarkVMReady transitions the engine from the pre-vm to the post-vm
// phase. Idempotent.
func (e *Engine) MarkVMReady() {
	e.vmReady.Store(true)
	e.logger.Print("engine transitioning to post-vm phase")
}

// VMReady reports the current phase.
func (e *Engine) VMReady() bool { return e.vmReady.Load() }

// SetPreemptionQuery installs the runtime's preemption-level hook.
// Tests and the harness install a fake; production callers wire it to
// whatever scheduler API the embedding program exposes.
func (e *Engine) SetPreemptionQuery(q PreemptionQuery) {
	if q != nil {
		e.preemptionQuery = q
	}
}

// ZoneInit wires the guard extension into a zone the engine will track
// (spec.md §6: "guard_ext ... owned by the zone but allocated/
// initialized by the engine's zone_init(zone) hook"). A no-op for
// untracked zones or a disabled engine.
func (e *Engine) ZoneInit(z *Zone) {
	if !e.cfg.Tracked(z.Name(), z.ElementSize()) {
		return
	}

	z.Lock()
	z.guard = newGuardExt(e.cfg.FCSize)
	z.Unlock()
}

// Alloc implements spec.md §4.5 allocate(zone, flags) -> address.
func (e *Engine) Alloc(zone *Zone, flags AllocFlags) uintptr {
	if e.preemptionQuery() {
		if flags.NoWait {
			return 0
		}

		atomic.AddInt64(&e.pdzallocCount, 1)
	}

	elemSize := zone.ElementSize()
	p := alignUp(uintptr(elemSize)+headerSize, pageSize)
	residue := p - uintptr(elemSize)

	vmReady := e.vmReady.Load()

	var base uintptr
	if vmReady {
		base = e.arena.AllocGuarded(p, e.cfg.LayoutMode)
	} else {
		base = e.reserve.Carve(p + pageSize)
	}

	// Pre-VM allocations record the dead-zone sentinel as their owner,
	// not the real zone, matching the original's gzalloc_alloc: there is
	// no reliable zone identity to stamp this early, and it is what lets
	// free() recognize and leak these ranges later regardless of the
	// engine's VM-ready state at that later point in time.
	ownerID := zone.id
	if !vmReady {
		ownerID = 0
	}

	l := computeLayout(base, elemSize, e.cfg.LayoutMode)
	writeHeader(l, ownerID, elemSize)

	zone.Lock()
	zone.addElemsFree(-1)
	zone.addWiredCur(1)
	zone.addVACur(1)
	zone.Unlock()
	zone.addMemAllocated(uint64(p))

	atomic.AddInt64(&e.allocated, int64(p))
	atomic.AddInt64(&e.wasted, int64(residue))

	if !vmReady {
		atomic.AddInt64(&e.earlyAlloc, int64(p))
	}

	return l.elementStart
}

// Free implements spec.md §4.5 free(zone, element_ptr). base and every
// header location are recomputed purely from element_ptr, the zone's
// fixed element size, and the engine's configured layout mode -- the
// same geometry Alloc used to construct them -- rather than consulted
// from a side table, matching the "recover base... per mode" framing in
// §4.5 step 1.
func (e *Engine) Free(zone *Zone, elementPtr uintptr) {
	if e.preemptionQuery() {
		atomic.AddInt64(&e.pdzfreeCount, 1)
	}

	elemSize := zone.ElementSize()
	p := alignUp(uintptr(elemSize)+headerSize, pageSize)
	residue := p - uintptr(elemSize)

	var base uintptr
	if e.cfg.LayoutMode == UnderflowMode {
		base = elementPtr - pageSize
	} else {
		base = elementPtr - residue
	}

	if base%pageSize != 0 {
		fatal(e.logger, CategoryAlignment, elementPtr, "gzalloc free address not page-aligned", "page-aligned base", base)
	}

	l := computeLayout(base, elemSize, e.cfg.LayoutMode)

	if e.cfg.DFreeCheck {
		zone.Lock()
		idx, hit := zone.cacheContains(base)
		zone.Unlock()

		if hit {
			fatal(e.logger, CategoryDoubleFree, base, "double free detected", nil, idx)
		}
	}

	h := readHeader(elementPtr, elemSize, e.cfg.LayoutMode)
	owner := zoneByID(h.zoneID)

	if e.cfg.Consistency {
		if h.sig != signature {
			fatal(e.logger, CategorySignature, base, "header signature mismatch", uint32(signature), h.sig)
		}

		if owner != zone && owner != deadZone {
			fatal(e.logger, CategoryZoneMismatch, base, "header owner zone mismatch", zone.Name(), ownerName(owner))
		}

		if h.elemSize != elemSize {
			fatal(e.logger, CategorySizeMismatch, base, "header element size mismatch", elemSize, h.elemSize)
		}

		if addr, mismatch := scanMismatch(l.residueStart, l.residueEnd, fillPattern); mismatch {
			fatal(e.logger, CategoryOverUnderflow, addr, "residue byte doesn't match fill pattern", fillPattern, byteAt(addr))
		}
	}

	// An allocation is an "early free" iff it was stamped with the
	// pre-VM sentinel at alloc time (see Alloc) -- not whether the
	// engine happens to be pre-VM right now. A pre-VM allocation freed
	// after the VM came up is still the scenario spec.md §8 names
	// ("Pre-VM allocation followed by post-VM free: counted as
	// early_free, no arena activity").
	earlyFree := owner == deadZone

	if earlyFree {
		atomic.AddInt64(&e.earlyFree, int64(p))

		return
	}

	if e.cfg.FCSize > 0 {
		usefulStart, usefulEnd := l.base, l.base+l.p
		if e.cfg.LayoutMode == UnderflowMode {
			usefulStart, usefulEnd = l.guardEnd, l.guardEnd+l.p
		}

		e.arena.Protect(usefulStart, usefulEnd, e.cfg.ProtOnFree)
	}

	var toRelease uintptr
	var released bool

	zone.Lock()
	if e.cfg.FCSize > 0 {
		evicted, hadEvicted := zone.cacheInsert(base)
		if hadEvicted {
			toRelease, released = evicted, true
		}
	} else {
		toRelease, released = base, true
	}

	if released {
		zone.addElemsFree(1)
		zone.addWiredCur(-1)
	}
	zone.Unlock()
	zone.addMemFreed(uint64(p))

	if released {
		e.arena.FreeRange(toRelease, p+pageSize)
		atomic.AddInt64(&e.freed, int64(p))
		atomic.AddInt64(&e.wasted, -int64(residue))
	}
}

// EmptyFreeCache implements spec.md §4.5 empty_free_cache(zone), called
// by zone destroy.
func (e *Engine) EmptyFreeCache(zone *Zone) {
	zone.Lock()
	snapshot := zone.cacheSnapshotAndClear()
	zone.Unlock()

	elemSize := zone.ElementSize()
	p := alignUp(uintptr(elemSize)+headerSize, pageSize)

	var freedElements int64

	for _, addr := range snapshot {
		if addr == 0 || !e.arena.Contains(addr) {
			continue
		}

		e.arena.FreeRange(addr, p+pageSize)
		freedElements++
	}

	zone.Lock()
	zone.addElemsFree(freedElements)
	zone.addWiredCur(-freedElements)
	zone.Unlock()
}

// Stats returns the engine's global diagnostic counters (spec.md §5:
// "allocated, freed, wasted, early_alloc, early_free, pdzalloc_count,
// pdzfree_count"). pdzalloc/pdzfree count only the calls that observed
// preemption disabled at entry -- the original's gzalloc_alloc/
// gzalloc_free increment them for exactly that condition, on both the
// allocate and free side, not on every call.
func (e *Engine) Stats() (allocated, freed, wasted, earlyAlloc, earlyFree, pdzalloc, pdzfree int64) {
	return atomic.LoadInt64(&e.allocated),
		atomic.LoadInt64(&e.freed),
		atomic.LoadInt64(&e.wasted),
		atomic.LoadInt64(&e.earlyAlloc),
		atomic.LoadInt64(&e.earlyFree),
		atomic.LoadInt64(&e.pdzallocCount),
		atomic.LoadInt64(&e.pdzfreeCount)
}

func ownerName(z *Zone) string {
	if z == nil {
		return "<nil>"
	}

	return z.Name()
}
