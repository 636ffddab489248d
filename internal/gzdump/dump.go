// Package gzdump reads and writes offline snapshots of a guard engine's
// zone counters and configuration, the inspector format a crash-dump or
// post-mortem reader reconstructs when a process that ran with the
// engine enabled has already exited. It deliberately captures only
// aggregate, already-public state (spec.md "Persisted state: None" --
// the live engine itself persists nothing) so dumps are a diagnostic
// convenience layered on top, not a required part of the engine's
// correctness.
package gzdump

import (
	"encoding/json"
	"fmt"
	"io"

	semver "github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/gzguard/internal/gzguard"
)

// FormatVersion is the current dump schema version. Bump the minor
// version for additive fields, the major version for anything a reader
// built against an older schema could misinterpret.
const FormatVersion = "1.0.0"

// compatibleRange accepts any dump this package's Read can parse
// without misreading a field. Widen it deliberately when a schema
// change is additive-only.
var compatibleRange = mustConstraint("^1.0.0")

// ZoneSnapshot is one tracked zone's counters at dump time.
type ZoneSnapshot struct {
	Name         string `json:"name"`
	ElementSize  uint32 `json:"element_size"`
	ElemsFree    int64  `json:"elems_free"`
	WiredCur     int64  `json:"wired_cur"`
	VACur        int64  `json:"va_cur"`
	MemAllocated uint64 `json:"mem_allocated"`
	MemFreed     uint64 `json:"mem_freed"`
}

// EngineSnapshot is the engine-wide counters alongside every zone it was
// asked to snapshot.
type EngineSnapshot struct {
	FormatVersion string `json:"format_version"`

	Mode        string `json:"mode"`
	FCSize      uint32 `json:"fc_size"`
	Consistency bool   `json:"consistency"`
	DFreeCheck  bool   `json:"dfree_check"`

	Allocated int64 `json:"allocated"`
	Freed     int64 `json:"freed"`
	Wasted    int64 `json:"wasted"`

	EarlyAlloc    int64 `json:"early_alloc"`
	EarlyFree     int64 `json:"early_free"`
	PDZAllocCount int64 `json:"pdzalloc_count"`
	PDZFreeCount  int64 `json:"pdzfree_count"`

	Zones []ZoneSnapshot `json:"zones"`
}

// Capture builds an EngineSnapshot from a live engine and the zones the
// caller asks to include. It holds each zone's lock while reading that
// zone's counters, as the gzguard.Zone accessors require, so it is safe
// to call concurrently with ongoing allocation traffic; the snapshot is
// not atomic across zones.
func Capture(e *gzguard.Engine, cfg *gzguard.Config, zones []*gzguard.Zone) EngineSnapshot {
	snap := EngineSnapshot{
		FormatVersion: FormatVersion,
		Mode:          cfg.LayoutMode.String(),
		FCSize:        cfg.FCSize,
		Consistency:   cfg.Consistency,
		DFreeCheck:    cfg.DFreeCheck,
	}

	snap.Allocated, snap.Freed, snap.Wasted, snap.EarlyAlloc, snap.EarlyFree, snap.PDZAllocCount, snap.PDZFreeCount = e.Stats()

	for _, z := range zones {
		allocated, freed := z.MemStats()

		z.Lock()
		elemsFree, wiredCur, vaCur := z.ElemsFree(), z.WiredCur(), z.VACur()
		z.Unlock()

		snap.Zones = append(snap.Zones, ZoneSnapshot{
			Name:         z.Name(),
			ElementSize:  z.ElementSize(),
			ElemsFree:    elemsFree,
			WiredCur:     wiredCur,
			VACur:        vaCur,
			MemAllocated: allocated,
			MemFreed:     freed,
		})
	}

	return snap
}

// Write serializes a snapshot as indented JSON, readable by both a human
// and a later call to Read.
func Write(w io.Writer, snap EngineSnapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(snap)
}

// Read parses a snapshot and rejects one produced by an incompatible
// dump-format version, the same guard a package registry applies to a
// manifest's declared version before trusting its contents.
func Read(r io.Reader) (EngineSnapshot, error) {
	var snap EngineSnapshot

	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return EngineSnapshot{}, fmt.Errorf("gzdump: decode: %w", err)
	}

	v, err := semver.NewVersion(snap.FormatVersion)
	if err != nil {
		return EngineSnapshot{}, fmt.Errorf("gzdump: invalid format_version %q: %w", snap.FormatVersion, err)
	}

	if !compatibleRange.Check(v) {
		return EngineSnapshot{}, fmt.Errorf("gzdump: dump format %s is not compatible with reader range %s", v, compatibleRange)
	}

	return snap, nil
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}

	return c
}
