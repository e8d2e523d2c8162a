package supervisor

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/shm"
)

type countingDispatcher struct {
	calls atomic.Int32
}

func (d *countingDispatcher) Dispatch(ctx context.Context, msg []byte, workers *shm.WorkerSegment) error {
	d.calls.Add(1)
	return nil
}

func TestLauncherDispatchesCommandsAndShutsDownOnCancel(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "catalog.db")
	dispatch := &countingDispatcher{}

	l, err := NewLauncher(catalogPath, dispatch, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}

	producer, err := DialQueue(catalogPath)
	if err != nil {
		t.Fatalf("DialQueue: %v", err)
	}
	defer producer.Close()

	if err := producer.TrySend([]byte("EXEC SHOW retention")); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for dispatch.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("dispatcher was never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestIsLauncherProcessDefaultFalse(t *testing.T) {
	if IsLauncherProcess() {
		t.Fatalf("expected IsLauncherProcess to be false outside a re-exec'd child")
	}
}
