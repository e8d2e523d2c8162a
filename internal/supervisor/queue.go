package supervisor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// MaxMessageBytes bounds one command message ("each ≤ 255
// bytes").
const MaxMessageBytes = 255

// ErrQueueEmpty is returned by TryReceive when no message is currently
// pending.
var ErrQueueEmpty = errors.New("supervisor: message queue is empty")

// Queue is the one-named-message-queue-per-catalog command transport,
// implemented over a Unix domain datagram socket: the closest portable Go
// substitute for POSIX mq_open/mq_send/mq_receive, which neither the
// standard library nor any pack dependency wraps.
type Queue struct {
	path     string
	conn     *net.UnixConn
	listener bool
}

func queuePath(catalogPath string) string {
	return catalogPath + ".mq.sock"
}

// ListenQueue creates (or replaces) the launcher's end of the queue and
// starts listening for producer datagrams.
func ListenQueue(catalogPath string) (*Queue, error) {
	path := queuePath(catalogPath)
	os.Remove(path) //nolint:errcheck // stale socket from a crashed launcher

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, apperrors.Launcher("listen message queue", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, apperrors.Launcher("listen message queue", err)
	}
	return &Queue{path: path, conn: conn, listener: true}, nil
}

// DialQueue opens a producer handle to an already-listening queue.
func DialQueue(catalogPath string) (*Queue, error) {
	path := queuePath(catalogPath)
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, apperrors.Launcher("dial message queue", err)
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return nil, apperrors.Launcher("dial message queue", err)
	}
	return &Queue{path: path, conn: conn}, nil
}

// TrySend performs a non-blocking send; a full socket buffer surfaces as a
// transport error to the caller rather than blocking (// "Producers use non-blocking try-send and must surface transport
// errors").
func (q *Queue) TrySend(msg []byte) error {
	if len(msg) > MaxMessageBytes {
		return apperrors.Launcher("send message", fmt.Errorf("message of %d bytes exceeds the %d-byte limit", len(msg), MaxMessageBytes))
	}
	if err := q.conn.SetWriteDeadline(time.Now()); err != nil {
		return apperrors.Launcher("send message", err)
	}
	if _, err := q.conn.Write(msg); err != nil {
		return apperrors.Launcher("send message", err)
	}
	return nil
}

// TryReceive performs a non-blocking receive. It returns ErrQueueEmpty
// (not an apperrors.Error) when nothing is pending, so the launcher's main
// loop can fall through to idle + short sleep without treating an empty
// queue as a failure.
func (q *Queue) TryReceive() ([]byte, error) {
	if err := q.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, apperrors.Launcher("receive message", err)
	}
	buf := make([]byte, MaxMessageBytes)
	n, err := q.conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrQueueEmpty
		}
		return nil, apperrors.Launcher("receive message", err)
	}
	return buf[:n], nil
}

// Close releases the underlying socket. Only the listener end removes the
// socket file — a producer closing its dial handle must not unlink the
// launcher's still-active bind.
func (q *Queue) Close() error {
	err := q.conn.Close()
	if q.listener {
		os.Remove(q.path) //nolint:errcheck
	}
	return err
}
