package gzguard

import (
	"strconv"
	"strings"
)

// Mode selects where the guard page sits relative to the element.
type Mode int

const (
	// OverflowMode (the default) places the guard page after the
	// element, trapping linear overruns.
	OverflowMode Mode = iota
	// UnderflowMode places the guard page before the element and
	// duplicates the header at the trailing edge of the page so
	// reverse lookup can still find it.
	UnderflowMode
)

func (m Mode) String() string {
	if m == UnderflowMode {
		return "underflow"
	}

	return "overflow"
}

// Protection is the access a freed, cached range is left with.
type Protection int

const (
	// ProtNone leaves the range entirely inaccessible: any touch
	// faults. This is the default ("unmap" in the boot-arg docs,
	// though the underlying primitive is a protection change rather
	// than a literal unmap -- the VA is only actually released when
	// evicted from the free cache).
	ProtNone Protection = iota
	// ProtRead leaves the range readable but not writable, selected by
	// the wp boot token. Useful to disambiguate reads from writes and
	// to let a debugger inspect the freed element's last contents.
	ProtRead
)

const (
	// signature is the fixed 32-bit constant every valid header
	// carries. It must never change: dumps and debuggers rely on it
	// being stable across builds.
	signature = 0xABADCAFE

	// fillPattern is the byte residue regions are stamped with at
	// allocation time and checked against at free time.
	fillPattern byte = 0x67

	pageSize = 4096

	minDefault         = 1024
	fcSizeDefault      = 1536
	reserveSizeDefault = 2 * 1024 * 1024
	zscaleDefault      = 1
)

// Config is the frozen, immutable result of parsing boot tokens. Every
// other component receives one of these rather than reading mutable
// globals, per spec.md §9 ("Globals → process state").
type Config struct {
	Enabled     bool
	Min, Max    uint32
	FCSize      uint32
	ProtOnFree  Protection
	LayoutMode  Mode
	Consistency bool
	DFreeCheck  bool
	ZScale      uint32
	NamedZone   string
	ReserveSize uintptr
	Verbose     bool
}

// disabledConfig is shared by every caller that never enables the
// engine; it has no mutable fields so sharing it is safe.
var disabledConfig = &Config{}

// Tracked reports whether a zone of the given name and element size
// would be routed through the engine under this configuration, per
// spec.md §4.1: "A zone is tracked iff the engine is enabled and
// (name == named_zone OR min ≤ E ≤ max)".
func (c *Config) Tracked(name string, elemSize uint32) bool {
	if !c.Enabled {
		return false
	}

	if c.NamedZone != "" && name == c.NamedZone {
		return true
	}

	return elemSize >= c.Min && elemSize <= c.Max
}

// ParseTokens parses a flat list of boot tokens (spec.md §4.1) into an
// immutable Config. Unknown tokens are ignored; an explicit "disable"
// always wins, overriding every enabling token that precedes or follows
// it in the list.
func ParseTokens(tokens []string) *Config {
	cfg := &Config{
		Min:         ^uint32(0),
		Max:         0,
		FCSize:      fcSizeDefault,
		ZScale:      zscaleDefault,
		Consistency: true,
		DFreeCheck:  true,
		ReserveSize: reserveSizeDefault,
	}

	maxSet := false
	disabled := false

	for _, tok := range tokens {
		key, value, hasValue := strings.Cut(tok, "=")

		switch key {
		case "enable":
			cfg.Enabled = true
			cfg.Min = minDefault
			cfg.Max = ^uint32(0)
			maxSet = true
		case "min":
			if n, ok := parseUint32(value); ok {
				cfg.Enabled = true
				cfg.Min = n
				if !maxSet {
					cfg.Max = ^uint32(0)
				}
			}
		case "max":
			if n, ok := parseUint32(value); ok {
				cfg.Enabled = true
				cfg.Max = n
				maxSet = true
				if cfg.Min == ^uint32(0) {
					cfg.Min = 0
				}
			}
		case "size":
			if n, ok := parseUint32(value); ok {
				cfg.Enabled = true
				cfg.Min, cfg.Max = n, n
				maxSet = true
			}
		case "fc_size":
			if n, ok := parseUint32(value); ok {
				cfg.FCSize = n
			}
		case "wp":
			cfg.ProtOnFree = ProtRead
		case "uf_mode":
			cfg.LayoutMode = UnderflowMode
		case "no_dfree_check":
			cfg.DFreeCheck = false
		case "noconsistency":
			cfg.Consistency = false
		case "zscale":
			if n, ok := parseUint32(value); ok && n > 0 {
				cfg.ZScale = n
			}
		case "name":
			if hasValue {
				// A period in the token matches a space in the zone
				// name, the same convention spec.md borrows from the
				// zlog boot-arg (boot-arg values cannot carry spaces).
				cfg.NamedZone = strings.ReplaceAll(value, ".", " ")
				cfg.Enabled = true
			}
		case "verbose":
			cfg.Verbose = true
		case "disable":
			disabled = true
		}
	}

	if disabled {
		return disabledConfig
	}

	if !cfg.Enabled {
		return disabledConfig
	}

	return cfg
}

// ParseTokensWithDebugDefault restores the original implementation's
// DEBUG-kernel default (xnu/osfmk/kern/gzalloc.c: gzalloc_configure):
// when built for debugging and no boot tokens enable or disable the
// engine, it tracks a zone named "pmap" sized exactly 1024 bytes,
// write-protecting rather than unmapping frees. debugBuild stands in for
// the original's compile-time DEBUG kernel config, since Go has no
// direct equivalent boot-args environment.
func ParseTokensWithDebugDefault(tokens []string, debugBuild bool) *Config {
	cfg := ParseTokens(tokens)
	if cfg.Enabled || !debugBuild {
		return cfg
	}

	debugCfg := ParseTokens(append(append([]string{}, tokens...), "size=1024", "name=pmap", "wp"))

	return debugCfg
}

func parseUint32(s string) (uint32, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}

	return uint32(n), true
}
