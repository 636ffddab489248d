package gzguard

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/gzguard/internal/allocator"
)

// Zone is the engine's external collaborator (spec.md §3, §6): a
// per-type object pool identified by name and element size, carrying
// counters the zone layer already maintains (elements free, wired
// elements, per-CPU allocation stats) and a lock the engine borrows
// rather than duplicating. In the original this is the kernel's zone_t;
// here it models whatever the surrounding program's own pool type looks
// like, with internal/allocator's ObjectPool backing its untracked path.
type Zone struct {
	name     string
	elemSize uint32

	mu sync.Mutex

	elemsFree int64
	wiredCur  int64
	vaCur     int64

	memAllocated int64
	memFreed     int64

	// guard is the optional guard extension: populated iff Tracked
	// returns true for this zone at construction time, by the engine's
	// ZoneInit hook (spec.md §6).
	guard *guardExt

	// id identifies this zone in header metadata without requiring a
	// raw Go pointer to be embedded in unmanaged (mmap'd) memory, where
	// the garbage collector cannot see or update it. See header.go.
	id uint64

	// pool backs the untracked fast path: the "zone allocator" the
	// engine treats as an out-of-scope external collaborator (spec.md
	// §1, §6) when it decides not to route a zone's allocations through
	// the guard engine at all.
	pool *allocator.ObjectPool
}

// guardExt is the free-cache ring plus its insertion index, spec.md §3
// ("Carries... an optional guard extension: a free-cache ring plus its
// insertion index").
type guardExt struct {
	ring  []uintptr
	index uint32
}

var (
	zoneRegistryMu sync.Mutex
	zoneRegistry   = map[uint64]*Zone{}
	nextZoneID     uint64 = 1 // 0 is reserved for the pre-VM sentinel, see deadZone.
)

// NewZone creates a zone with the given name and fixed element size. It
// is the collaborator constructor the surrounding allocator calls once
// per type; guard-mode tracking is wired in separately by
// Engine.ZoneInit.
func NewZone(name string, elemSize uint32) *Zone {
	zoneRegistryMu.Lock()
	id := nextZoneID
	nextZoneID++
	zoneRegistryMu.Unlock()

	pool, err := allocator.NewObjectPool(uintptr(elemSize), 0)
	if err != nil {
		// elemSize == 0 is the only failure mode NewObjectPool has; a
		// tracked zone of size zero is explicitly in-bounds (spec.md §8,
		// "Element size zero: round_up yields one page"), so the
		// untracked fast path must not be what a caller relies on for
		// such a zone. Fall back to a one-byte pool rather than leaving
		// pool nil, so Zone.Alloc never needs its own nil check.
		pool, _ = allocator.NewObjectPool(1, 0)
	}

	z := &Zone{name: name, elemSize: elemSize, id: id, pool: pool}

	zoneRegistryMu.Lock()
	zoneRegistry[id] = z
	zoneRegistryMu.Unlock()

	return z
}

func zoneByID(id uint64) *Zone {
	if id == 0 {
		return deadZone
	}

	zoneRegistryMu.Lock()
	defer zoneRegistryMu.Unlock()

	return zoneRegistry[id]
}

// deadZone is the sentinel owner for allocations made before the VM
// subsystem was ready (spec.md §3, "the owner may be a sentinel value
// meaning allocated before VM ready"). The original identifies it by a
// poison pointer value, GZDEADZONE; a Go port has no use for a poison
// address, so the sentinel is a distinct, never-tracked Zone whose
// identity (not its bit pattern) free() compares against.
var deadZone = &Zone{name: "<gzalloc-pre-vm>", id: 0}

func (z *Zone) Name() string      { return z.name }
func (z *Zone) ElementSize() uint32 { return z.elemSize }

func (z *Zone) Lock()   { z.mu.Lock() }
func (z *Zone) Unlock() { z.mu.Unlock() }

// ElemsFree, WiredCur and VACur mirror the mutable zone fields spec.md
// §6 lists as the engine's collaborator surface. Callers must hold the
// zone lock when observing these for a consistent snapshot; the engine
// itself always does.
func (z *Zone) ElemsFree() int64 { return z.elemsFree }
func (z *Zone) WiredCur() int64  { return z.wiredCur }
func (z *Zone) VACur() int64     { return z.vaCur }

func (z *Zone) addElemsFree(delta int64) { z.elemsFree += delta }
func (z *Zone) addWiredCur(delta int64)  { z.wiredCur += delta }
func (z *Zone) addVACur(delta int64)     { z.vaCur += delta }

func (z *Zone) addMemAllocated(n uint64) { atomic.AddInt64(&z.memAllocated, int64(n)) }
func (z *Zone) addMemFreed(n uint64)     { atomic.AddInt64(&z.memFreed, int64(n)) }

// MemStats returns this zone's per-CPU allocation counters, summed.
// A literal per-CPU shard array adds implementation complexity spec.md's
// testable properties never exercise, so these are plain atomic
// counters; see DESIGN.md.
func (z *Zone) MemStats() (allocated, freed uint64) {
	return uint64(atomic.LoadInt64(&z.memAllocated)), uint64(atomic.LoadInt64(&z.memFreed))
}

func (z *Zone) tracked() bool { return z.guard != nil }

// Alloc and Free are the untracked fast path (spec.md §2's flow: only a
// tracked zone routes through the guard engine). A caller normally
// checks Config.Tracked once at zone-init time and picks between these
// and the engine's Alloc/Free accordingly.
func (z *Zone) Alloc() unsafe.Pointer {
	ptr := z.pool.Alloc()
	if ptr == nil {
		return nil
	}

	z.Lock()
	z.addElemsFree(-1)
	z.addWiredCur(1)
	z.Unlock()
	z.addMemAllocated(uint64(z.elemSize))

	return ptr
}

func (z *Zone) Free(ptr unsafe.Pointer) {
	z.pool.Free(ptr)

	z.Lock()
	z.addElemsFree(1)
	z.addWiredCur(-1)
	z.Unlock()
	z.addMemFreed(uint64(z.elemSize))
}
