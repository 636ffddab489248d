package gzguard

import "unsafe"

// This file is the "small unsafe/primitive layer" spec.md §9 asks for:
// the package's raw pointer/uintptr conversions live here behind typed
// helpers, apart from the header overlay in header.go (writeRawHeader/
// readRawHeader), so the rest of the engine reads and writes
// memory through safe-looking calls instead of scattering unsafe.Pointer
// arithmetic across the allocate/free/lookup paths.

// sliceAddr returns the address of a byte slice's backing array. The
// caller must keep the slice alive for as long as the address is used
// (the reserve holds its buffer for its own lifetime, and the portable
// arena holds each mapping's slice until FreeRange or Close drops it,
// for exactly this reason).
func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}

	return uintptr(unsafe.Pointer(&b[0]))
}

// byteAt reads a single byte at addr. addr must lie within a live,
// readable mapping.
func byteAt(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr)) //nolint:govet
}

// setByteAt writes a single byte at addr.
func setByteAt(addr uintptr, v byte) {
	*(*byte)(unsafe.Pointer(addr)) = v //nolint:govet
}

// fillRange stamps every byte in [start, end) with v.
func fillRange(start, end uintptr, v byte) {
	for a := start; a < end; a++ {
		setByteAt(a, v)
	}
}

// zeroRange zero-fills [start, end).
func zeroRange(start, end uintptr) {
	fillRange(start, end, 0)
}

// scanMismatch returns the first address in [start, end) whose byte is
// not v, and ok=false if every byte matched.
func scanMismatch(start, end uintptr, v byte) (uintptr, bool) {
	for a := start; a < end; a++ {
		if byteAt(a) != v {
			return a, true
		}
	}

	return 0, false
}

// readUint32At reads a native-endian uint32 at addr, used by the
// overflow-mode signature scan in header.go's readHeaderFromEntry.
func readUint32At(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr)) //nolint:govet
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}
