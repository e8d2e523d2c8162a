package copymgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	mustDir(t, filepath.Join(root, "sub"))
	mustFile(t, filepath.Join(root, "a.txt"), "aaa")
	mustFile(t, filepath.Join(root, "sub", "b.txt"), "bbbbb")
}

func mustDir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyAllReplicatesTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	mustDir(t, src)
	writeTree(t, src)
	dst := filepath.Join(t.TempDir(), "dst")

	m := New(src, dst, 2, zerolog.Nop())
	results, err := m.CopyAll(context.Background())
	if err != nil {
		t.Fatalf("CopyAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 file results, got %d: %+v", len(results), results)
	}
	for _, want := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		data, err := os.ReadFile(filepath.Join(dst, want))
		if err != nil {
			t.Fatalf("read copied %s: %v", want, err)
		}
		if len(data) == 0 {
			t.Fatalf("expected non-empty copy of %s", want)
		}
	}
}

func TestCopyAllRejectsNonEmptyTarget(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	mustDir(t, src)
	writeTree(t, src)

	dst := t.TempDir()
	mustFile(t, filepath.Join(dst, "preexisting"), "x")

	m := New(src, dst, 2, zerolog.Nop())
	if _, err := m.CopyAll(context.Background()); err == nil {
		t.Fatalf("expected CopyAll to reject a non-empty target")
	}
}

func TestCopyAllSkipsSymlinks(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	mustDir(t, src)
	mustFile(t, filepath.Join(src, "real.txt"), "real")
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "dst")
	m := New(src, dst, 2, zerolog.Nop())
	if _, err := m.CopyAll(context.Background()); err != nil {
		t.Fatalf("CopyAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "link.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected symlink to be skipped, not copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "real.txt")); err != nil {
		t.Fatalf("expected the real file to be copied: %v", err)
	}
}

func TestStopSetsExitFlag(t *testing.T) {
	m := New(t.TempDir(), t.TempDir(), 4, zerolog.Nop())
	m.Stop()
	if !m.stopped() {
		t.Fatalf("expected manager to report stopped after Stop()")
	}
}
