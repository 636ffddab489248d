package gzguard

import "testing"

func TestNewZoneAssignsDistinctIDs(t *testing.T) {
	a := NewZone("a", 16)
	b := NewZone("b", 32)

	if a.id == b.id {
		t.Fatalf("expected distinct zone IDs, both got %d", a.id)
	}
	if zoneByID(a.id) != a || zoneByID(b.id) != b {
		t.Fatalf("expected zoneByID to resolve back to the constructed zones")
	}
}

func TestZoneByIDDeadZoneSentinel(t *testing.T) {
	if zoneByID(0) != deadZone {
		t.Fatalf("expected id 0 to resolve to the pre-VM sentinel zone")
	}
}

func TestZoneCounters(t *testing.T) {
	z := NewZone("counters", 64)

	z.Lock()
	z.addElemsFree(-1)
	z.addWiredCur(1)
	z.addVACur(1)
	z.Unlock()

	if z.ElemsFree() != -1 || z.WiredCur() != 1 || z.VACur() != 1 {
		t.Fatalf("unexpected counters: free=%d wired=%d va=%d", z.ElemsFree(), z.WiredCur(), z.VACur())
	}

	z.addMemAllocated(4096)
	z.addMemFreed(4096)

	allocated, freed := z.MemStats()
	if allocated != 4096 || freed != 4096 {
		t.Fatalf("expected mem stats to round-trip, got allocated=%d freed=%d", allocated, freed)
	}
}

func TestZoneUntrackedFastPath(t *testing.T) {
	z := NewZone("fastpath", 48)

	p := z.Alloc()
	if p == nil {
		t.Fatalf("expected a non-nil allocation from the untracked fast path")
	}

	if z.ElemsFree() != -1 || z.WiredCur() != 1 {
		t.Fatalf("expected counters to move the same way the guard path moves them")
	}

	z.Free(p)

	if z.ElemsFree() != 0 || z.WiredCur() != 0 {
		t.Fatalf("expected free to restore counters, got free=%d wired=%d", z.ElemsFree(), z.WiredCur())
	}
}
