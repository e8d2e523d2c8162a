package replication

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
	"github.com/jfoltran/pgbackupctl/pkg/lsn"
)

// standbyInterval is how often PGStream sends a standby status update
// while streaming.
const standbyInterval = 1 * time.Second

// recvTimeout bounds each ReceiveMessage call so the loop can re-check
// ctx and the standby interval between reads.
const recvTimeout = 2 * time.Second

// PGStream is the concrete Stream adapter over pgconn + pglogrepl,
// adapted from internal/migration/stream.Decoder (logical decoding) and
// internal/pgwire.Conn (connection helpers) to physical replication:
// XLogData payloads are handed to the caller as raw bytes instead of
// being parsed into row-change messages.
type PGStream struct {
	logger zerolog.Logger
	conn   *pgconn.PgConn

	mu            sync.Mutex
	confirmedPtr  xlog.RecPtr
	serverEnd     xlog.RecPtr
	lastKeepalive time.Time
	cancel        context.CancelFunc
	done          chan struct{}
	loopErr       error
}

// NewPGStream creates an unconnected adapter.
func NewPGStream(logger zerolog.Logger) *PGStream {
	return &PGStream{logger: logger.With().Str("component", "replication").Logger()}
}

func (s *PGStream) Connect(ctx context.Context, dsn string) error {
	conn, err := pgconn.Connect(ctx, dsn)
	if err != nil {
		return apperrors.Streaming("connect", err)
	}
	s.conn = conn
	return nil
}

func (s *PGStream) TestConnection(ctx context.Context) error {
	if s.conn == nil {
		return apperrors.Streaming("test connection", fmt.Errorf("not connected"))
	}
	if err := s.conn.Ping(ctx); err != nil {
		return apperrors.Streaming("test connection", err)
	}
	return nil
}

func (s *PGStream) Identify(ctx context.Context) (Identity, error) {
	sysID, err := pglogrepl.IdentifySystem(ctx, s.conn)
	if err != nil {
		return Identity{}, apperrors.Streaming("identify", err)
	}
	return Identity{
		SystemID:    uint64(mustParseUint(sysID.SystemID)),
		Timeline:    uint32(sysID.Timeline),
		XlogposText: sysID.XLogPos.String(),
		DBName:      sysID.DBName,
	}, nil
}

func (s *PGStream) GetServerSetting(ctx context.Context, name string) (string, error) {
	mrr := s.conn.Exec(ctx, fmt.Sprintf("SHOW %s", pgIdent(name)))
	results, err := mrr.ReadAll()
	if err != nil {
		return "", apperrors.Streaming("get server setting", err)
	}
	if len(results) == 0 || len(results[0].Rows) == 0 || len(results[0].Rows[0]) == 0 {
		return "", apperrors.Streaming("get server setting", fmt.Errorf("setting %q returned no rows", name))
	}
	return string(results[0].Rows[0][0]), nil
}

// GenerateSlotNameUUID produces a replication slot name unique enough to
// avoid collisions across concurrent workers for the same archive.
// Postgres slot names are lowercase alnum/underscore only, so hyphens
// are stripped.
func (s *PGStream) GenerateSlotNameUUID(prefix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", apperrors.Streaming("generate slot name", err)
	}
	name := strings.ReplaceAll(id.String(), "-", "")
	if prefix != "" {
		name = prefix + "_" + name
	}
	return strings.ToLower(name), nil
}

func (s *PGStream) CreatePhysicalReplicationSlot(ctx context.Context, name string, opts SlotOptions) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, s.conn, name, "",
		pglogrepl.CreateReplicationSlotOptions{Temporary: false, Mode: pglogrepl.PhysicalReplication})
	if err != nil {
		if opts.ExistingOK && strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return apperrors.Streaming("create physical replication slot", err)
	}
	return nil
}

func (s *PGStream) TimelineHistoryFileContent(ctx context.Context, tli uint32) (HistoryFile, error) {
	result, err := pglogrepl.TimelineHistory(ctx, s.conn, int32(tli))
	if err != nil {
		return HistoryFile{}, apperrors.Streaming("timeline history", err)
	}
	return HistoryFile{Filename: result.FileName, Content: result.Content}, nil
}

// Walstreamer starts physical replication at startAt and streams raw
// XLogData payloads on the returned channel, sending standby status
// updates on the same cadence as standbyInterval.
func (s *PGStream) Walstreamer(ctx context.Context, slotName string, startAt xlog.RecPtr) (<-chan WALChunk, error) {
	err := pglogrepl.StartReplication(ctx, s.conn, slotName, pglogrepl.LSN(startAt),
		pglogrepl.StartReplicationOptions{Mode: pglogrepl.PhysicalReplication})
	if err != nil {
		return nil, apperrors.Streaming("start replication", err)
	}

	s.mu.Lock()
	s.confirmedPtr = startAt
	s.mu.Unlock()

	ch := make(chan WALChunk, 256)
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.receiveLoop(streamCtx, ch)
	return ch, nil
}

func (s *PGStream) receiveLoop(ctx context.Context, ch chan<- WALChunk) {
	defer close(ch)
	defer close(s.done)

	lastStatus := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastStatus) >= standbyInterval {
			if err := s.sendStandbyStatus(ctx); err != nil {
				s.logger.Err(err).Msg("send standby status")
			}
			lastStatus = time.Now()
		}

		recvCtx, cancel := context.WithDeadline(ctx, time.Now().Add(recvTimeout))
		rawMsg, err := s.conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if pgconn.Timeout(err) {
				continue
			}
			s.setErr(apperrors.Streaming("receive message", err))
			return
		}

		if errResp, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			s.setErr(apperrors.Streaming("receive message", fmt.Errorf("%s: %s (SQLSTATE %s)", errResp.Severity, errResp.Message, errResp.Code)))
			return
		}

		copyData, ok := rawMsg.(*pgproto3.CopyData)
		if !ok || len(copyData.Data) == 0 {
			continue
		}

		switch copyData.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				continue
			}
			s.mu.Lock()
			if xlog.RecPtr(pkm.ServerWALEnd) > s.serverEnd {
				s.serverEnd = xlog.RecPtr(pkm.ServerWALEnd)
			}
			s.lastKeepalive = time.Now()
			s.mu.Unlock()
			if pkm.ReplyRequested {
				if err := s.sendStandbyStatus(ctx); err != nil {
					s.logger.Err(err).Msg("keepalive reply")
				}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
			if err != nil {
				continue
			}
			chunk := WALChunk{StartPtr: xlog.RecPtr(xld.WALStart), Data: xld.WALData}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *PGStream) sendStandbyStatus(ctx context.Context) error {
	s.mu.Lock()
	ptr := s.confirmedPtr
	if s.serverEnd > ptr {
		ptr = s.serverEnd
	}
	s.mu.Unlock()
	return pglogrepl.SendStandbyStatusUpdate(ctx, s.conn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: pglogrepl.LSN(ptr),
		WALFlushPosition: pglogrepl.LSN(ptr),
		WALApplyPosition: pglogrepl.LSN(ptr),
	})
}

// ConfirmFlush advances the position reported to the server once the
// caller has durably written chunk through internal/walfs.
func (s *PGStream) ConfirmFlush(ptr xlog.RecPtr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ptr > s.confirmedPtr {
		s.confirmedPtr = ptr
	}
}

// Lag reports the byte distance between the last locally-flushed WAL
// position and the latest server WAL end the primary has advertised via
// keepalive, plus a human-friendly rendering of it.
func (s *PGStream) Lag() (bytes uint64, human string) {
	s.mu.Lock()
	confirmed, serverEnd, lastKeepalive := s.confirmedPtr, s.serverEnd, s.lastKeepalive
	s.mu.Unlock()
	bytes = lsn.Lag(pglogrepl.LSN(confirmed), pglogrepl.LSN(serverEnd))
	var latency time.Duration
	if !lastKeepalive.IsZero() {
		latency = time.Since(lastKeepalive)
	}
	return bytes, lsn.FormatLag(bytes, latency)
}

func (s *PGStream) setErr(err error) {
	s.mu.Lock()
	s.loopErr = err
	s.mu.Unlock()
}

// Err returns the error that ended the streaming loop, if any.
func (s *PGStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopErr
}

// Basebackup is not yet implemented: it requires driving the COPY-OUT
// BASE_BACKUP subprotocol and demuxing per-tablespace tar chunks, which
// this adapter leaves to a follow-up since it needs an end-to-end
// integration test against a live server to get the tar framing right.
func (s *PGStream) Basebackup(ctx context.Context, profile BasebackupProfile) (<-chan TablespaceChunk, error) {
	return nil, apperrors.Streaming("basebackup", fmt.Errorf("not yet implemented"))
}

func (s *PGStream) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(ctx); err != nil {
		return apperrors.Streaming("close", err)
	}
	return nil
}

func pgIdent(name string) string {
	return strings.ReplaceAll(name, `"`, `""`)
}

func mustParseUint(s string) uint64 {
	var n uint64
	fmt.Sscanf(s, "%d", &n) //nolint:errcheck
	return n
}
