package walfs

import (
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		class Class
	}{
		{"00000001000000000000002A", ClassComplete},
		{"00000001000000000000002A.gz", ClassCompleteCompressed},
		{"00000001000000000000002A.zst", ClassCompleteCompressed},
		{"00000001000000000000002A.partial", ClassPartial},
		{"00000001000000000000002A.partial.gz", ClassPartialCompressed},
		{"00000001.history", ClassHistory},
		{"00000001.history.gz", ClassHistoryCompressed},
		{"00000001000000000000002A.bogus", ClassInvalidFilename},
		{"00000001.historyXXX", ClassInvalidFilename},
		{"README.md", ClassUnknown},
	}
	for _, c := range cases {
		got, _ := Classify(c.name)
		if got != c.class {
			t.Errorf("Classify(%q) = %v, want %v", c.name, got, c.class)
		}
	}
}

func TestClassifyDecodesSegmentIdentity(t *testing.T) {
	class, id := Classify("00000002000000000000002A")
	if class != ClassComplete {
		t.Fatalf("expected ClassComplete, got %v", class)
	}
	if id.Timeline != 2 {
		t.Fatalf("expected timeline 2, got %d", id.Timeline)
	}
	if id.SegNo != 0x2A {
		t.Fatalf("expected segment 0x2A, got %x", id.SegNo)
	}
}

func TestStartPositionPrefersPartialOverCompleteAtSamePosition(t *testing.T) {
	dir := t.TempDir()
	mustTouch(t, filepath.Join(dir, "00000001000000000000000A"))
	mustTouch(t, filepath.Join(dir, "00000001000000000000000A.partial"))
	mustTouch(t, filepath.Join(dir, "000000010000000000000005"))

	ptr, tli, err := StartPosition(dir, xlog.DefaultSegmentSize)
	if err != nil {
		t.Fatalf("StartPosition: %v", err)
	}
	if tli != 1 {
		t.Fatalf("expected timeline 1, got %d", tli)
	}
	wantStart := xlog.RecPtr(0x0A * xlog.DefaultSegmentSize)
	if ptr != wantStart {
		t.Fatalf("expected partial start %d, got %d", wantStart, ptr)
	}
}

func TestStartPositionAfterHighestCompleteSegment(t *testing.T) {
	dir := t.TempDir()
	mustTouch(t, filepath.Join(dir, "00000001000000000000000A"))
	mustTouch(t, filepath.Join(dir, "000000010000000000000005"))

	ptr, _, err := StartPosition(dir, xlog.DefaultSegmentSize)
	if err != nil {
		t.Fatalf("StartPosition: %v", err)
	}
	wantStart := xlog.RecPtr(0x0A*xlog.DefaultSegmentSize) + xlog.DefaultSegmentSize
	if ptr != wantStart {
		t.Fatalf("expected boundary after segment 0x0A, got %d", ptr)
	}
}

func TestGzipISIZEReadsTrailerWithoutDecompressing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gw := gzip.NewWriter(f)
	payload := make([]byte, 1024)
	if _, err := gw.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	f.Close()

	size, err := GzipISIZE(path)
	if err != nil {
		t.Fatalf("GzipISIZE: %v", err)
	}
	if size != uint32(len(payload)) {
		t.Fatalf("expected ISIZE %d, got %d", len(payload), size)
	}
}

func TestGzipISIZEMatchesManualTrailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg2.gz")
	f, _ := os.Create(path)
	gw := gzip.NewWriter(f)
	gw.Write(make([]byte, 16777216)) //nolint:errcheck
	gw.Close()                       //nolint:errcheck
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := binary.LittleEndian.Uint32(data[len(data)-4:])

	got, err := GzipISIZE(path)
	if err != nil {
		t.Fatalf("GzipISIZE: %v", err)
	}
	if got != want || got != 16777216 {
		t.Fatalf("expected ISIZE 16777216, got %d (trailer says %d)", got, want)
	}
}

func mustTouch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}
