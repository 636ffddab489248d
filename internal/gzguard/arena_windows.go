//go:build windows

package gzguard

import (
	"log"
	"sync"

	"golang.org/x/sys/windows"
)

// windowsArena mirrors unixArena's semantics on top of VirtualAlloc /
// VirtualProtect / VirtualFree, the same MEM_RESERVE+MEM_COMMIT style
// internal/runtime/asyncio/zerocopy_windows_file.go uses for its own
// platform-specific buffer management.
type windowsArena struct {
	mu       sync.Mutex
	mappings map[uintptr]*windowsMapping
	logger   *log.Logger
}

type windowsMapping struct {
	base   uintptr
	length uintptr
}

func NewArena(capacity uintptr, logger *log.Logger) Arena {
	return &windowsArena{mappings: make(map[uintptr]*windowsMapping), logger: logger}
}

func (a *windowsArena) AllocGuarded(p uintptr, mode Mode) uintptr {
	total := p + pageSize

	base, err := windows.VirtualAlloc(0, total, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		fatal(a.logger, CategoryMapEntry, 0, "VA arena VirtualAlloc failed", nil, err.Error())
	}

	var guardOff uintptr
	if mode == OverflowMode {
		guardOff = p
	}

	var oldProtect uint32
	if err := windows.VirtualProtect(base+guardOff, pageSize, windows.PAGE_NOACCESS, &oldProtect); err != nil {
		_ = windows.VirtualFree(base, 0, windows.MEM_RELEASE)
		fatal(a.logger, CategoryMapEntry, base, "VA arena guard-page VirtualProtect failed", nil, err.Error())
	}

	a.mu.Lock()
	a.mappings[base] = &windowsMapping{base: base, length: total}
	a.mu.Unlock()

	return base
}

func (a *windowsArena) FreeRange(base, length uintptr) {
	a.mu.Lock()
	_, ok := a.mappings[base]
	if ok {
		delete(a.mappings, base)
	}
	a.mu.Unlock()

	if !ok {
		return
	}

	if err := windows.VirtualFree(base, 0, windows.MEM_RELEASE); err != nil {
		fatal(a.logger, CategoryMapEntry, base, "VA arena VirtualFree failed", nil, err.Error())
	}
}

func (a *windowsArena) Protect(base, end uintptr, prot Protection) {
	a.mu.Lock()
	_, ok := a.findLocked(base)
	a.mu.Unlock()

	if !ok {
		fatal(a.logger, CategoryProtect, base, "vm_map_protect: no such mapping", nil, nil)
	}

	p := uint32(windows.PAGE_NOACCESS)
	if prot == ProtRead {
		p = windows.PAGE_READONLY
	}

	var oldProtect uint32
	if err := windows.VirtualProtect(base, end-base, p, &oldProtect); err != nil {
		fatal(a.logger, CategoryProtect, base, "vm_map_protect failed", nil, err.Error())
	}
}

func (a *windowsArena) Contains(addr uintptr) bool {
	_, _, _, ok := a.LookupEntry(addr)
	return ok
}

func (a *windowsArena) LookupEntry(addr uintptr) (start, end uintptr, atomicEntry bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, found := a.findLocked(addr)
	if !found {
		return 0, 0, false, false
	}

	return m.base, m.base + m.length, true, true
}

func (a *windowsArena) findLocked(addr uintptr) (*windowsMapping, bool) {
	for base, m := range a.mappings {
		if addr >= base && addr < base+m.length {
			return m, true
		}
	}

	return nil, false
}

func (a *windowsArena) Close() {
	a.mu.Lock()
	mappings := a.mappings
	a.mappings = make(map[uintptr]*windowsMapping)
	a.mu.Unlock()

	for _, m := range mappings {
		_ = windows.VirtualFree(m.base, 0, windows.MEM_RELEASE)
	}
}
