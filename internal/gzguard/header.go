package gzguard

import (
	"log"
	"unsafe"
)

// rawHeader is the on-disk (on-page) layout of a header: exactly three
// fields, laid out the way spec.md §3 describes (owner_zone_ref,
// element_size, signature). It never stores a live Go pointer --
// mmap'd/VirtualAlloc'd memory is invisible to the Go garbage collector,
// so storing *Zone there directly would let the collector reclaim a
// zone while a freed, cached allocation still referenced it. Instead
// the header stores a small integer handle (zoneID) resolved through the
// process-wide zone registry in zone.go; this is the concession spec.md
// §9 asks a memory-safe target language to make ("isolate this in a
// small unsafe/primitive layer").
type rawHeader struct {
	zoneID   uint64
	elemSize uint32
	sig      uint32
}

const headerSize = uintptr(unsafe.Sizeof(rawHeader{}))

// Header is the safe, resolved view of a header: the owning zone itself
// (the pre-VM sentinel deadZone if the element predates VM readiness,
// nil if the recorded id names no registered zone), its recorded element size,
// and whether its signature matched the canonical constant.
type Header struct {
	OwnerZone   *Zone
	ElementSize uint32
	SignatureOK bool
}

func writeRawHeader(addr uintptr, zoneID uint64, elemSize uint32) {
	h := (*rawHeader)(unsafe.Pointer(addr)) //nolint:govet
	h.zoneID = zoneID
	h.elemSize = elemSize
	h.sig = signature
}

func readRawHeader(addr uintptr) rawHeader {
	h := (*rawHeader)(unsafe.Pointer(addr)) //nolint:govet

	return *h
}

func (h rawHeader) resolve() Header {
	return Header{
		OwnerZone:   zoneByID(h.zoneID),
		ElementSize: h.elemSize,
		SignatureOK: h.sig == signature,
	}
}

// layout is the fully computed geometry of one guarded allocation, per
// spec.md §3's two layouts. p is exactly one page for every element
// size up to one page minus the header, the range this engine supports
// (spec.md §1 Non-goals); computeLayout does not reject larger sizes,
// for which p spans more than one page.
type layout struct {
	base uintptr
	p    uintptr // round_up(E+H, page); == pageSize for any in-bounds E.
	mode Mode

	guardStart, guardEnd uintptr

	elementStart, elementEnd uintptr
	headerStart, headerEnd   uintptr

	// dupHeaderStart is only meaningful in underflow mode: the trailing
	// copy of the header, written so reverse lookup can find it without
	// scanning (spec.md §3, §4.4).
	dupHeaderStart uintptr

	// residueStart/residueEnd bound the fill-pattern region checked at
	// free time. In underflow mode this excludes the trailing duplicate
	// header's own bytes: they hold real header data, not filler, so
	// they cannot also satisfy the fill-pattern invariant. See
	// DESIGN.md for why this refines spec.md §4.5's literal
	// round_page_up(element_ptr+E) bound.
	residueStart, residueEnd uintptr
}

// totalLen is the full VA range length this allocation occupies,
// including its guard page: p + pageSize, per spec.md §3 invariant 1.
func (l layout) totalLen() uintptr { return l.p + pageSize }

func computeLayout(base uintptr, elemSize uint32, mode Mode) layout {
	e := uintptr(elemSize)
	p := alignUp(e+headerSize, pageSize)
	residue := p - e

	l := layout{base: base, p: p, mode: mode}

	if mode == OverflowMode {
		l.guardStart, l.guardEnd = base+p, base+p+pageSize
		l.elementStart, l.elementEnd = base+residue, base+residue+e
		l.headerStart, l.headerEnd = base+residue-headerSize, base+residue
		l.residueStart, l.residueEnd = base, l.headerStart

		return l
	}

	// Underflow mode: guard page precedes the element.
	l.guardStart, l.guardEnd = base, base+pageSize
	elBase := base + pageSize
	l.elementStart, l.elementEnd = elBase, elBase+e
	l.headerStart, l.headerEnd = elBase+e, elBase+e+headerSize
	l.dupHeaderStart = elBase + p - headerSize
	l.residueStart, l.residueEnd = l.headerEnd, l.dupHeaderStart

	return l
}

// writeHeader lays down the element zero-fill, residue fill pattern,
// and header(s) for a freshly allocated range, per spec.md §4.4's
// write(base, zone, E, mode).
func writeHeader(l layout, zoneID uint64, elemSize uint32) {
	zeroRange(l.elementStart, l.elementEnd)
	fillRange(l.residueStart, l.residueEnd, fillPattern)
	writeRawHeader(l.headerStart, zoneID, elemSize)

	if l.mode == UnderflowMode {
		writeRawHeader(l.dupHeaderStart, zoneID, elemSize)
	}
}

// readHeader recovers the header for a user pointer, per spec.md §4.4's
// read(base_or_element, mode) -> header: subtract the header size in
// overflow mode, add E in underflow mode. elementPtr must be exactly the
// pointer the engine returned from allocate.
func readHeader(elementPtr uintptr, elemSize uint32, mode Mode) rawHeader {
	if mode == OverflowMode {
		return readRawHeader(elementPtr - headerSize)
	}

	return readRawHeader(elementPtr + uintptr(elemSize))
}

// readHeaderFromEntry recovers the header given only the VA-arena map
// entry bounds covering some address inside the allocation (spec.md
// §4.4's read_from_entry), used by reverse lookup when the caller has no
// zone/size context to compute an exact offset from. In overflow mode it
// scans 4-byte-aligned words from entryStart and takes the first word
// equal to the signature as the header's last field; the header's
// position is not cross-checked against the entry length, and a
// signature that does not sit on a 4-byte boundary is not found.
func readHeaderFromEntry(logger *log.Logger, entryStart, entryEnd uintptr, mode Mode) rawHeader {
	if mode == UnderflowMode {
		return readRawHeader(entryEnd - headerSize)
	}

	for p := entryStart; p+4 <= entryEnd; p += 4 {
		if readUint32At(p) == signature {
			// The signature is the header's last field, so the header
			// begins at the signature's own address minus the two
			// preceding fields (zoneID and elemSize).
			headerStart := p - (headerSize - 4)

			return readRawHeader(headerStart)
		}
	}

	fatal(logger, CategoryMapEntry, entryStart, "GZALLOC signature missing", nil, nil)

	panic("unreachable")
}
