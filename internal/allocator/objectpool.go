// Package allocator provides the fixed-size object pool that backs a
// gzguard zone's untracked (fast, non-guarded) allocation path. A zone
// the guard engine decides not to track per its configured predicate
// (internal/gzguard.Config.Tracked) still needs somewhere to get real
// memory from; ObjectPool is that somewhere -- a chunked freelist
// allocator for objects of one fixed size, the same shape as any other
// zone allocator implementation, just without the guard-page dressing.
package allocator

import (
	"fmt"
	"sync"
	"unsafe"
)

// ObjectPool is a chunked freelist allocator for fixed-size objects. It
// grows by allocating new backing chunks on demand and never shrinks;
// freed objects return to the freelist rather than back to the Go
// runtime, trading memory for allocation speed the way a zone allocator
// is expected to.
type ObjectPool struct {
	mu sync.Mutex

	elemSize  uintptr
	chunkSize uintptr

	chunks   [][]byte
	freeList []unsafe.Pointer

	allocated uint64
	freed     uint64
}

// NewObjectPool constructs a pool for objects of the given size, with
// chunkBytes controlling how many objects are carved out of a single
// backing allocation at a time (64KiB if chunkBytes is zero).
func NewObjectPool(elemSize uintptr, chunkBytes uintptr) (*ObjectPool, error) {
	if elemSize == 0 {
		return nil, fmt.Errorf("allocator: object pool element size must be non-zero")
	}

	if chunkBytes == 0 {
		chunkBytes = 64 * 1024
	}

	return &ObjectPool{elemSize: elemSize, chunkSize: chunkBytes}, nil
}

// Alloc returns a zeroed object from the pool, growing it if the
// freelist is empty.
func (p *ObjectPool) Alloc() unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 {
		p.growLocked()

		if len(p.freeList) == 0 {
			return nil
		}
	}

	ptr := p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	clear(unsafe.Slice((*byte)(ptr), p.elemSize))
	p.allocated++

	return ptr
}

// Free returns an object to the pool's freelist. The caller is
// responsible for only ever freeing a pointer this pool itself handed
// out; ObjectPool does no membership validation of its own (that job
// belongs to the guard engine, for zones it tracks).
func (p *ObjectPool) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	p.mu.Lock()
	p.freeList = append(p.freeList, ptr)
	p.freed++
	p.mu.Unlock()
}

// Contains reports whether ptr falls within one of this pool's chunks,
// at an offset that lands on an object boundary.
func (p *ObjectPool) Contains(ptr unsafe.Pointer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := uintptr(ptr)

	for _, chunk := range p.chunks {
		start := uintptr(unsafe.Pointer(&chunk[0]))
		end := start + uintptr(len(chunk))

		if addr >= start && addr < end && (addr-start)%p.elemSize == 0 {
			return true
		}
	}

	return false
}

// Stats reports the pool's lifetime allocation and free counts.
func (p *ObjectPool) Stats() (allocated, freed uint64, activeChunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.allocated, p.freed, len(p.chunks)
}

// growLocked carves a new chunk and seeds the freelist with its
// objects. Callers must hold p.mu.
func (p *ObjectPool) growLocked() {
	perChunk := p.chunkSize / p.elemSize
	if perChunk == 0 {
		perChunk = 1
	}

	chunk := make([]byte, perChunk*p.elemSize)
	p.chunks = append(p.chunks, chunk)

	for i := uintptr(0); i < perChunk; i++ {
		p.freeList = append(p.freeList, unsafe.Pointer(&chunk[i*p.elemSize]))
	}
}
