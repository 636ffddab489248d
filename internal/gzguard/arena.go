package gzguard

// Arena is the VA Arena component (spec.md §4.3): a sub-map of the
// surrounding address space dedicated to guarded allocations, supplying
// page-aligned ranges with guard pages and realizing the operations
// spec.md §6 assigns to the external "VM map" collaborator
// (suballoc/memory_allocate, protect, free, lookup_entry) -- in a
// userspace Go program there is no privileged kernel map to delegate to,
// so the arena implementations in arena_unix.go / arena_windows.go /
// arena_portable.go perform the mmap/mprotect/munmap (or VirtualAlloc
// family) syscalls directly, the same translation every guard-page
// allocator in the retrieval pack makes (see
// other_examples/SnellerInc-sneller__guardedmem_linux.go).
type Arena interface {
	// AllocGuarded returns a range of p+pageSize bytes: p bytes the
	// caller may use plus one guard page, placed at the trailing edge
	// for OverflowMode or the leading edge for UnderflowMode. The
	// non-guard portion is zero-filled. Panics on failure, per
	// spec.md §4.3.
	AllocGuarded(p uintptr, mode Mode) uintptr

	// FreeRange unmaps the full range, including its guard page.
	FreeRange(base, length uintptr)

	// Protect changes the protection of an already-mapped range,
	// used to switch freed pages to read-only (or no-access) under
	// the free cache.
	Protect(base, end uintptr, prot Protection)

	// Contains is a point-in-range test against the arena's tracked
	// allocations.
	Contains(addr uintptr) bool

	// LookupEntry returns the full mapped range (including the guard
	// page) covering addr, and whether that map entry is internally
	// consistent ("atomic" in spec.md §4.7's terminology -- a
	// cross-check against VM-map corruption). ok is false if addr is
	// not covered by any tracked mapping.
	LookupEntry(addr uintptr) (start, end uintptr, atomic bool, ok bool)

	// Close releases every mapping the arena still holds. Used by
	// tests; the engine and the harness never call it.
	Close()
}
