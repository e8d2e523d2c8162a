package supervisor

import (
	"path/filepath"
	"testing"
)

func TestQueueSendReceiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	listener, err := ListenQueue(path)
	if err != nil {
		t.Fatalf("ListenQueue: %v", err)
	}
	defer listener.Close()

	producer, err := DialQueue(path)
	if err != nil {
		t.Fatalf("DialQueue: %v", err)
	}
	defer producer.Close()

	if err := producer.TrySend([]byte("EXEC START BASEBACKUP archive1")); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	msg, err := listener.TryReceive()
	if err != nil {
		t.Fatalf("TryReceive: %v", err)
	}
	if string(msg) != "EXEC START BASEBACKUP archive1" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestQueueTryReceiveEmptyReturnsSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	listener, err := ListenQueue(path)
	if err != nil {
		t.Fatalf("ListenQueue: %v", err)
	}
	defer listener.Close()

	if _, err := listener.TryReceive(); err != ErrQueueEmpty {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestQueueTrySendRejectsOversizedMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	listener, err := ListenQueue(path)
	if err != nil {
		t.Fatalf("ListenQueue: %v", err)
	}
	defer listener.Close()

	producer, err := DialQueue(path)
	if err != nil {
		t.Fatalf("DialQueue: %v", err)
	}
	defer producer.Close()

	oversized := make([]byte, MaxMessageBytes+1)
	if err := producer.TrySend(oversized); err == nil {
		t.Fatalf("expected TrySend to reject a message over %d bytes", MaxMessageBytes)
	}
}

func TestListenerCloseDoesNotLeaveStaleSocketForProducerClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	listener, err := ListenQueue(path)
	if err != nil {
		t.Fatalf("ListenQueue: %v", err)
	}

	producer, err := DialQueue(path)
	if err != nil {
		t.Fatalf("DialQueue: %v", err)
	}
	// Closing the producer handle first must not unlink the listener's
	// live socket file out from under it.
	if err := producer.Close(); err != nil {
		t.Fatalf("producer Close: %v", err)
	}
	if err := producer.TrySend(nil); err == nil {
		t.Fatalf("expected send on closed producer to fail")
	}

	if _, err := listener.TryReceive(); err != nil && err != ErrQueueEmpty {
		t.Fatalf("listener should still be usable after producer closed: %v", err)
	}
	if err := listener.Close(); err != nil {
		t.Fatalf("listener Close: %v", err)
	}
}
