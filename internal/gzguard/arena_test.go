package gzguard

import "testing"

func TestArenaAllocGuardedTracksRange(t *testing.T) {
	a := NewArena(1<<20, nil)
	defer a.Close()

	base := a.AllocGuarded(pageSize, OverflowMode)
	if base == 0 {
		t.Fatalf("expected a non-zero base address")
	}

	if !a.Contains(base) {
		t.Fatalf("expected the arena to contain the address it just handed out")
	}

	start, end, atomicEntry, ok := a.LookupEntry(base)
	if !ok {
		t.Fatalf("expected lookup to find the entry")
	}
	if !atomicEntry {
		t.Fatalf("expected a freshly created entry to be atomic")
	}
	if end-start != pageSize+pageSize {
		t.Fatalf("expected entry length p+pageSize, got %d", end-start)
	}
}

func TestArenaFreeRangeReleasesTracking(t *testing.T) {
	a := NewArena(1<<20, nil)
	defer a.Close()

	base := a.AllocGuarded(pageSize, OverflowMode)
	a.FreeRange(base, pageSize+pageSize)

	if a.Contains(base) {
		t.Fatalf("expected the arena to no longer contain a freed range")
	}
}

func TestArenaContainsFalseForUnknownAddress(t *testing.T) {
	a := NewArena(1<<20, nil)
	defer a.Close()

	if a.Contains(0xDEADBEEF) {
		t.Fatalf("expected an address never handed out to report not contained")
	}
}
