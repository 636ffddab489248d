package allocator

import (
	"testing"
	"unsafe"
)

func TestObjectPoolAllocFreeRoundTrip(t *testing.T) {
	p, err := NewObjectPool(32, 256)
	if err != nil {
		t.Fatalf("NewObjectPool failed: %v", err)
	}

	a := p.Alloc()
	b := p.Alloc()

	if a == nil || b == nil {
		t.Fatalf("expected non-nil allocations")
	}
	if a == b {
		t.Fatalf("expected distinct objects from two allocations")
	}

	if !p.Contains(a) || !p.Contains(b) {
		t.Fatalf("expected the pool to recognize pointers it handed out")
	}

	p.Free(a)
	p.Free(b)

	allocated, freed, _ := p.Stats()
	if allocated != 2 || freed != 2 {
		t.Fatalf("expected allocated=2 freed=2, got allocated=%d freed=%d", allocated, freed)
	}
}

func TestObjectPoolGrowsAcrossChunks(t *testing.T) {
	p, err := NewObjectPool(64, 128) // 2 objects per chunk
	if err != nil {
		t.Fatalf("NewObjectPool failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if p.Alloc() == nil {
			t.Fatalf("expected allocation %d to succeed by growing a new chunk", i)
		}
	}

	_, _, chunks := p.Stats()
	if chunks < 5 {
		t.Fatalf("expected at least 5 chunks for 10 objects at 2/chunk, got %d", chunks)
	}
}

func TestObjectPoolRejectsZeroElementSize(t *testing.T) {
	if _, err := NewObjectPool(0, 64); err == nil {
		t.Fatalf("expected an error for a zero element size")
	}
}

func TestObjectPoolContainsFalseForForeignPointer(t *testing.T) {
	p, err := NewObjectPool(16, 64)
	if err != nil {
		t.Fatalf("NewObjectPool failed: %v", err)
	}

	foreign := make([]byte, 16)

	if p.Contains(unsafe.Pointer(&foreign[0])) {
		t.Fatalf("expected a pointer never handed out by the pool to not be contained")
	}
}
