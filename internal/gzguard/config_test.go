package gzguard

import "testing"

func TestParseTokensDisabledByDefault(t *testing.T) {
	cfg := ParseTokens(nil)
	if cfg.Enabled {
		t.Fatalf("expected disabled config for empty token list")
	}
}

func TestParseTokensEnable(t *testing.T) {
	cfg := ParseTokens([]string{"enable"})
	if !cfg.Enabled {
		t.Fatalf("expected enabled")
	}
	if cfg.Min != minDefault {
		t.Fatalf("expected min=%d, got %d", minDefault, cfg.Min)
	}
	if cfg.Max != ^uint32(0) {
		t.Fatalf("expected max=unbounded, got %d", cfg.Max)
	}
}

func TestParseTokensSizeExact(t *testing.T) {
	cfg := ParseTokens([]string{"size=64", "fc_size=4"})
	if !cfg.Enabled {
		t.Fatalf("size= should imply enabled")
	}
	if cfg.Min != 64 || cfg.Max != 64 {
		t.Fatalf("expected min=max=64, got min=%d max=%d", cfg.Min, cfg.Max)
	}
	if cfg.FCSize != 4 {
		t.Fatalf("expected fc_size=4, got %d", cfg.FCSize)
	}
}

func TestParseTokensDisableWins(t *testing.T) {
	cfg := ParseTokens([]string{"enable", "min=16", "disable"})
	if cfg.Enabled {
		t.Fatalf("explicit disable must override preceding enables")
	}

	cfg = ParseTokens([]string{"disable", "enable"})
	if cfg.Enabled {
		t.Fatalf("explicit disable must override following enables too")
	}
}

func TestParseTokensNamedZone(t *testing.T) {
	cfg := ParseTokens([]string{"name=kalloc.16"})
	if !cfg.Enabled {
		t.Fatalf("name= should imply enabled")
	}
	if cfg.NamedZone != "kalloc 16" {
		t.Fatalf("expected period-to-space translation, got %q", cfg.NamedZone)
	}
}

func TestParseTokensModifiers(t *testing.T) {
	cfg := ParseTokens([]string{"enable", "wp", "uf_mode", "no_dfree_check", "noconsistency", "zscale=3"})
	if cfg.ProtOnFree != ProtRead {
		t.Fatalf("expected wp to select ProtRead")
	}
	if cfg.LayoutMode != UnderflowMode {
		t.Fatalf("expected uf_mode to select UnderflowMode")
	}
	if cfg.DFreeCheck {
		t.Fatalf("expected no_dfree_check to clear DFreeCheck")
	}
	if cfg.Consistency {
		t.Fatalf("expected noconsistency to clear Consistency")
	}
	if cfg.ZScale != 3 {
		t.Fatalf("expected zscale=3, got %d", cfg.ZScale)
	}
}

func TestConfigTracked(t *testing.T) {
	cfg := ParseTokens([]string{"min=32", "max=128"})

	cases := []struct {
		name string
		size uint32
		want bool
	}{
		{"anon.32", 32, true},
		{"anon.128", 128, true},
		{"anon.16", 16, false},
		{"anon.256", 256, false},
	}

	for _, c := range cases {
		if got := cfg.Tracked(c.name, c.size); got != c.want {
			t.Errorf("Tracked(%q, %d) = %v, want %v", c.name, c.size, got, c.want)
		}
	}

	named := ParseTokens([]string{"name=pmap"})
	if !named.Tracked("pmap", 8) {
		t.Fatalf("named zone should be tracked regardless of size")
	}
	if named.Tracked("other", 8) {
		t.Fatalf("non-named, out-of-range zone should not be tracked")
	}
}

func TestParseTokensWithDebugDefault(t *testing.T) {
	cfg := ParseTokensWithDebugDefault(nil, true)
	if !cfg.Enabled {
		t.Fatalf("expected debug-build default to enable the engine")
	}
	if cfg.NamedZone != "pmap" || cfg.Min != 1024 || cfg.Max != 1024 {
		t.Fatalf("expected pmap/1024 default, got name=%q min=%d max=%d", cfg.NamedZone, cfg.Min, cfg.Max)
	}
	if cfg.ProtOnFree != ProtRead {
		t.Fatalf("expected debug default to write-protect rather than unmap")
	}

	cfg = ParseTokensWithDebugDefault([]string{"size=48"}, true)
	if cfg.Min != 48 || cfg.Max != 48 {
		t.Fatalf("explicit tokens must override the debug default")
	}

	cfg = ParseTokensWithDebugDefault(nil, false)
	if cfg.Enabled {
		t.Fatalf("non-debug build with no tokens should stay disabled")
	}
}
