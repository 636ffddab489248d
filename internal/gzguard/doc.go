// Package gzguard implements a guard-mode object allocator: it wraps a
// per-type object pool ("zone") so that every allocation lands on its own
// page, adjacent to an inaccessible guard page, with freed allocations
// left inaccessible or write-protected in a per-zone free cache, trapping
// use-after-free, overflow/underflow, and double-free bugs at the
// faulting instruction instead of letting them corrupt unrelated memory.
//
// The package trades memory for diagnostic power: it is not a fast-path
// allocator, and every element consumes at least two virtual pages
// regardless of how small it is. It is meant to be switched on for a
// subset of zones (selected by size or by name) while debugging, not run
// across an entire process in production.
package gzguard
