package gzguard

// This file implements the free cache (spec.md §3, §4.6): a bounded,
// per-zone ring of freed virtual addresses. Insertion is O(1) with LRU
// eviction by insertion order -- "least-recently-freed" rather than
// true LRU, which spec.md notes is adequate since the goal is
// maximizing fault latency, not emulating a cache replacement policy.
// Membership lookup for double-free detection is linear, the documented
// cost of a check that a tunable can disable.
//
// Every method here assumes the caller already holds the owning zone's
// lock (spec.md §5: "Each zone's free cache and counters live under
// that zone's lock").

func newGuardExt(fcSize uint32) *guardExt {
	return &guardExt{ring: make([]uintptr, fcSize)}
}

// cacheContains performs the double-free linear scan spec.md §4.5 step
// 2 describes. It returns the ring index of a match, or ok=false.
func (z *Zone) cacheContains(addr uintptr) (index uint32, ok bool) {
	g := z.guard
	for i, v := range g.ring {
		if v == addr {
			return uint32(i), true
		}
	}

	return 0, false
}

// cacheInsert places addr in the current ring slot, evicting and
// returning whatever previously occupied it (zero means the slot was
// empty), and advances the insertion index modulo len(ring). This is
// spec.md §3's "Insertion overwrites slot index, returns the prior
// occupant (if any) for physical release, and advances index."
func (z *Zone) cacheInsert(addr uintptr) (evicted uintptr, hadEvicted bool) {
	g := z.guard
	n := uint32(len(g.ring))

	if g.index >= n {
		g.index = 0
	}

	evicted = g.ring[g.index]
	g.ring[g.index] = addr
	g.index = (g.index + 1) % n

	return evicted, evicted != 0
}

// cacheSnapshotAndClear atomically (under the zone lock, per the caller
// contract above) copies out every occupant and zeroes the ring and its
// index, for Engine.EmptyFreeCache (spec.md §4.5).
func (z *Zone) cacheSnapshotAndClear() []uintptr {
	g := z.guard
	snapshot := make([]uintptr, len(g.ring))
	copy(snapshot, g.ring)

	for i := range g.ring {
		g.ring[i] = 0
	}

	g.index = 0

	return snapshot
}
