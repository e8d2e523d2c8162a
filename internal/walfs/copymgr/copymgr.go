// Package copymgr replicates a source directory tree to an empty target
// with bounded concurrency: a free-slot counter guarded by a
// mutex/condition variable dispatches regular files to a worker pool
// while the walker keeps discovering more.
package copymgr

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// copyBufferSize is the fixed chunk size workers read/write in, so
// cancellation can be observed between chunks rather than only between
// whole files.
const copyBufferSize = 1 << 20

// Result records the outcome of copying one file.
type Result struct {
	RelPath string
	Bytes   int64
	Err     error
}

// Manager replicates Source into Target using at most MaxCopyInstances
// concurrent workers.
type Manager struct {
	Source           string
	Target           string
	MaxCopyInstances int
	Logger           zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	freeSlots int
	exitFlag  bool
}

// New creates a Manager. maxCopyInstances is clamped to at least 1.
func New(source, target string, maxCopyInstances int, logger zerolog.Logger) *Manager {
	if maxCopyInstances < 1 {
		maxCopyInstances = 1
	}
	m := &Manager{
		Source:           source,
		Target:           target,
		MaxCopyInstances: maxCopyInstances,
		Logger:           logger.With().Str("component", "copymgr").Logger(),
		freeSlots:        maxCopyInstances,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Stop requests cancellation; workers observe it between chunks and
// terminate cleanly, leaving partially written files for higher-level
// cleanup.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.exitFlag = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

func (m *Manager) stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitFlag
}

// acquireSlot blocks until a free slot is available or Stop is called.
// Returns false if it woke up because of Stop.
func (m *Manager) acquireSlot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.freeSlots == 0 && !m.exitFlag {
		m.cond.Wait()
	}
	if m.exitFlag {
		return false
	}
	m.freeSlots--
	return true
}

func (m *Manager) releaseSlot() {
	m.mu.Lock()
	m.freeSlots++
	m.mu.Unlock()
	m.cond.Signal()
}

// CopyAll walks Source, creating directories eagerly, logging and
// skipping symlinks, and dispatching regular files to the bounded worker
// pool. Target must not exist or must be empty at start. It returns one
// Result per regular file it attempted (not necessarily completed, if
// Stop was called mid-walk).
func (m *Manager) CopyAll(ctx context.Context) ([]Result, error) {
	if err := m.checkTargetEmpty(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g, ctx := errgroup.WithContext(ctx)

	walkErr := filepath.WalkDir(m.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if m.stopped() {
			return fmt.Errorf("copy manager stopped")
		}
		rel, err := filepath.Rel(m.Source, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := filepath.Join(m.Target, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			m.Logger.Warn().Str("path", path).Msg("skipping symlink during copy")
			return nil
		}
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}

		if !m.acquireSlot() {
			return fmt.Errorf("copy manager stopped")
		}
		g.Go(func() error {
			defer m.releaseSlot()
			n, copyErr := copyFile(ctx, path, dst, m)
			mu.Lock()
			results = append(results, Result{RelPath: rel, Bytes: n, Err: copyErr})
			mu.Unlock()
			return copyErr
		})
		return nil
	})

	groupErr := g.Wait()
	if walkErr != nil {
		return results, apperrors.Archive("copy directory tree", walkErr)
	}
	if groupErr != nil {
		return results, apperrors.Archive("copy directory tree", groupErr)
	}
	return results, nil
}

func (m *Manager) checkTargetEmpty() error {
	info, err := os.Stat(m.Target)
	if os.IsNotExist(err) {
		return os.MkdirAll(m.Target, 0o755)
	}
	if err != nil {
		return apperrors.Archive("check copy target", err)
	}
	if !info.IsDir() {
		return apperrors.Archive("check copy target", fmt.Errorf("target %s is not a directory", m.Target))
	}
	entries, err := os.ReadDir(m.Target)
	if err != nil {
		return apperrors.Archive("check copy target", err)
	}
	if len(entries) != 0 {
		return apperrors.Archive("check copy target", fmt.Errorf("target %s must be empty", m.Target))
	}
	return nil
}

// copyFile streams src to dst in fixed-size chunks, polling ctx between
// each chunk so Stop() is observed promptly, and fsyncs dst before
// closing.
func copyFile(ctx context.Context, src, dst string, m *Manager) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if m.stopped() {
			return total, fmt.Errorf("copy of %s interrupted", src)
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return total, readErr
		}
	}
	if err := out.Sync(); err != nil {
		return total, err
	}
	return total, nil
}
