package gzdump

import (
	"bytes"
	"testing"

	"github.com/orizon-lang/gzguard/internal/gzguard"
)

func TestCaptureWriteReadRoundTrip(t *testing.T) {
	cfg := gzguard.ParseTokens([]string{"size=64", "fc_size=4"})
	e := gzguard.NewEngine(cfg)
	e.MarkVMReady()

	z := gzguard.NewZone("test.64", 64)
	e.ZoneInit(z)

	p := e.Alloc(z, gzguard.AllocFlags{})
	e.Free(z, p)

	snap := Capture(e, cfg, []*gzguard.Zone{z})

	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	readBack, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if readBack.FormatVersion != FormatVersion {
		t.Fatalf("expected format version %s, got %s", FormatVersion, readBack.FormatVersion)
	}
	if len(readBack.Zones) != 1 || readBack.Zones[0].Name != "test.64" {
		t.Fatalf("expected one zone named test.64, got %+v", readBack.Zones)
	}
	if readBack.Allocated == 0 {
		t.Fatalf("expected a non-zero allocated counter")
	}
}

func TestReadRejectsIncompatibleFormatVersion(t *testing.T) {
	buf := bytes.NewBufferString(`{"format_version": "2.0.0", "zones": []}`)

	if _, err := Read(buf); err == nil {
		t.Fatalf("expected an incompatible major version to be rejected")
	}
}

func TestReadRejectsMalformedVersion(t *testing.T) {
	buf := bytes.NewBufferString(`{"format_version": "not-a-version", "zones": []}`)

	if _, err := Read(buf); err == nil {
		t.Fatalf("expected a malformed version string to be rejected")
	}
}
