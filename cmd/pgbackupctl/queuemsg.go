package main

import (
	"encoding/binary"
	"fmt"
)

// queueCmd enumerates the command-grammar verbs that require a live
// worker process rather than a synchronous catalog call, and so travel
// over internal/supervisor's message queue to the launcher instead of
// through internal/dispatch directly.
type queueCmd byte

const (
	queueCmdStartBasebackup queueCmd = iota + 1
	queueCmdStartStreaming
	queueCmdStopStreaming
	queueCmdStartRecoveryStream
)

// queueMsgSize is fixed-width: one command byte plus three int64 ids,
// well under supervisor.MaxMessageBytes. A fixed binary layout (rather
// than JSON) keeps every message comfortably inside that limit, the
// same hand-rolled little-endian approach internal/shm uses for its
// mmap'd records.
const queueMsgSize = 1 + 8 + 8 + 8

// queueMsg is the wire form of a deferred command: which verb, which
// archive, and the profile/backup id it needs (zero when not
// applicable).
type queueMsg struct {
	Cmd       queueCmd
	ArchiveID int64
	ProfileID int64
	BackupID  int64
}

func (m queueMsg) encode() []byte {
	buf := make([]byte, queueMsgSize)
	buf[0] = byte(m.Cmd)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(m.ArchiveID))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(m.ProfileID))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(m.BackupID))
	return buf
}

func decodeQueueMsg(buf []byte) (queueMsg, error) {
	if len(buf) != queueMsgSize {
		return queueMsg{}, fmt.Errorf("queue message of %d bytes, want %d", len(buf), queueMsgSize)
	}
	return queueMsg{
		Cmd:       queueCmd(buf[0]),
		ArchiveID: int64(binary.LittleEndian.Uint64(buf[1:9])),
		ProfileID: int64(binary.LittleEndian.Uint64(buf[9:17])),
		BackupID:  int64(binary.LittleEndian.Uint64(buf[17:25])),
	}, nil
}
