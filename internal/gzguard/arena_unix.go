//go:build linux || darwin || freebsd

package gzguard

import (
	"log"
	"sync"

	"golang.org/x/sys/unix"
)

// unixArena backs the VA Arena with real anonymous mmap'd pages,
// generalizing other_examples/SnellerInc-sneller__guardedmem_linux.go's
// "map n+1 pages, mprotect the guard page to PROT_NONE" technique to the
// mode-switchable, protection-switchable, reverse-lookup-capable arena
// spec.md §4.3 specifies.
type unixArena struct {
	mu       sync.Mutex
	mappings map[uintptr]*unixMapping
	logger   *log.Logger
}

type unixMapping struct {
	data   []byte
	length uintptr
}

// NewArena creates a VA arena backed by anonymous mmap. capacity is
// accepted for interface symmetry with the other platform backends but
// is not separately enforced here: the OS's own virtual memory limits
// are the real backstop, the same way a kernel sub-map's declared size
// is a logical ceiling rather than a literal reservation against a
// finite resource in userspace. logger receives every mmap/mprotect
// fatal this arena raises; nil is accepted and simply skips logging.
func NewArena(capacity uintptr, logger *log.Logger) Arena {
	return &unixArena{mappings: make(map[uintptr]*unixMapping), logger: logger}
}

func (a *unixArena) AllocGuarded(p uintptr, mode Mode) uintptr {
	total := p + pageSize

	data, err := unix.Mmap(-1, 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		fatal(a.logger, CategoryMapEntry, 0, "VA arena mmap failed", nil, err.Error())
	}

	base := sliceAddr(data)

	var guardOff uintptr
	if mode == OverflowMode {
		guardOff = p
	}

	if err := unix.Mprotect(data[guardOff:guardOff+pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(data)
		fatal(a.logger, CategoryMapEntry, base, "VA arena guard-page mprotect failed", nil, err.Error())
	}

	a.mu.Lock()
	a.mappings[base] = &unixMapping{data: data, length: total}
	a.mu.Unlock()

	return base
}

func (a *unixArena) FreeRange(base, length uintptr) {
	a.mu.Lock()
	m, ok := a.mappings[base]
	if ok {
		delete(a.mappings, base)
	}
	a.mu.Unlock()

	if !ok {
		return
	}

	if err := unix.Munmap(m.data); err != nil {
		fatal(a.logger, CategoryMapEntry, base, "VA arena munmap failed", nil, err.Error())
	}
}

func (a *unixArena) Protect(base, end uintptr, prot Protection) {
	a.mu.Lock()
	m, ok := a.findLocked(base)
	a.mu.Unlock()

	if !ok {
		fatal(a.logger, CategoryProtect, base, "vm_map_protect: no such mapping", nil, nil)
	}

	start := sliceAddr(m.data)
	offset := base - start
	length := end - base

	var p int
	switch prot {
	case ProtRead:
		p = unix.PROT_READ
	default:
		p = unix.PROT_NONE
	}

	if err := unix.Mprotect(m.data[offset:offset+length], p); err != nil {
		fatal(a.logger, CategoryProtect, base, "vm_map_protect failed", nil, err.Error())
	}
}

func (a *unixArena) Contains(addr uintptr) bool {
	_, _, _, ok := a.LookupEntry(addr)
	return ok
}

func (a *unixArena) LookupEntry(addr uintptr) (start, end uintptr, atomicEntry bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, found := a.findLocked(addr)
	if !found {
		return 0, 0, false, false
	}

	start = sliceAddr(m.data)

	return start, start + m.length, true, true
}

// findLocked returns the mapping covering addr. Callers must hold a.mu.
func (a *unixArena) findLocked(addr uintptr) (*unixMapping, bool) {
	for base, m := range a.mappings {
		if addr >= base && addr < base+m.length {
			return m, true
		}
	}

	return nil, false
}

func (a *unixArena) Close() {
	a.mu.Lock()
	mappings := a.mappings
	a.mappings = make(map[uintptr]*unixMapping)
	a.mu.Unlock()

	for _, m := range mappings {
		_ = unix.Munmap(m.data)
	}
}
