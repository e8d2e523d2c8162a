package walfs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// Class is the exhaustive classification of a log/ filename.
// Classification is by filename regular expression, never by content.
type Class int

const (
	ClassUnknown Class = iota
	ClassComplete
	ClassCompleteCompressed
	ClassPartial
	ClassPartialCompressed
	ClassHistory
	ClassHistoryCompressed
	ClassInvalidFilename
)

func (c Class) String() string {
	switch c {
	case ClassComplete:
		return "complete"
	case ClassCompleteCompressed:
		return "complete_compressed"
	case ClassPartial:
		return "partial"
	case ClassPartialCompressed:
		return "partial_compressed"
	case ClassHistory:
		return "history"
	case ClassHistoryCompressed:
		return "history_compressed"
	case ClassInvalidFilename:
		return "invalid_filename"
	default:
		return "unknown"
	}
}

var (
	segmentRe     = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})$`)
	segmentGzRe   = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})\.gz$`)
	segmentZstRe  = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})\.zst$`)
	partialRe     = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})\.partial$`)
	partialGzRe   = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})\.partial\.gz$`)
	partialZstRe  = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})([0-9A-Fa-f]{8})\.partial\.zst$`)
	historyRe     = regexp.MustCompile(`^([0-9A-Fa-f]{8})\.history$`)
	historyGzRe   = regexp.MustCompile(`^([0-9A-Fa-f]{8})\.history\.gz$`)
	looksLikeWAL  = regexp.MustCompile(`^[0-9A-Fa-f]{24}`)
	looksLikeHist = regexp.MustCompile(`^[0-9A-Fa-f]{8}\.history`)
)

// SegmentIdentity is the (timeline, segment number) pair a classified
// filename decodes to. Zero-valued for history files and the unknown/
// invalid classes.
type SegmentIdentity struct {
	Timeline uint32
	SegNo    uint64
}

// Entry is one classified log/ directory entry.
type Entry struct {
	Name     string
	Class    Class
	Identity SegmentIdentity
	Path     string
}

// Classify determines name's Class and, for segment-like classes, its
// (timeline, segment number) by regular expression alone.
func Classify(name string) (Class, SegmentIdentity) {
	switch {
	case segmentRe.MatchString(name):
		return ClassComplete, decodeSegmentName(name[:24])
	case segmentGzRe.MatchString(name), segmentZstRe.MatchString(name):
		return ClassCompleteCompressed, decodeSegmentName(name[:24])
	case partialRe.MatchString(name):
		return ClassPartial, decodeSegmentName(name[:24])
	case partialGzRe.MatchString(name), partialZstRe.MatchString(name):
		return ClassPartialCompressed, decodeSegmentName(name[:24])
	case historyRe.MatchString(name):
		return ClassHistory, SegmentIdentity{}
	case historyGzRe.MatchString(name):
		return ClassHistoryCompressed, SegmentIdentity{}
	case looksLikeWAL.MatchString(name) || looksLikeHist.MatchString(name):
		return ClassInvalidFilename, SegmentIdentity{}
	default:
		return ClassUnknown, SegmentIdentity{}
	}
}

// decodeSegmentName parses the classic 8/8/8 hex segment filename into a
// (timeline, segment number) pair, the inverse of xlog.SegmentFileName.
func decodeSegmentName(name string) SegmentIdentity {
	tli, _ := strconv.ParseUint(name[0:8], 16, 32)
	logID, _ := strconv.ParseUint(name[8:16], 16, 32)
	seg, _ := strconv.ParseUint(name[16:24], 16, 32)
	segsPerXlogID := uint64(0x100000000) / xlog.DefaultSegmentSize
	return SegmentIdentity{Timeline: uint32(tli), SegNo: logID*segsPerXlogID + seg}
}

// historyTimeline extracts the timeline encoded in a history filename
// (the 8 hex digits before ".history"), the identity Classify leaves
// zeroed for ClassHistory/ClassHistoryCompressed entries.
func historyTimeline(re *regexp.Regexp, name string) uint32 {
	m := re.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	tli, _ := strconv.ParseUint(m[1], 16, 32)
	return uint32(tli)
}

// ScanLogDir classifies every entry in dir, skipping subdirectories.
func ScanLogDir(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Archive("scan log directory", err)
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		class, id := Classify(e.Name())
		out = append(out, Entry{Name: e.Name(), Class: class, Identity: id, Path: filepath.Join(dir, e.Name())})
	}
	return out, nil
}

// StartPosition scans dir and picks the (timeline, segment) to resume WAL
// streaming from: the highest (segment_number, timeline), tie-broken
// toward a partial over a complete segment at the same position. It
// returns the record pointer at the segment boundary following a
// complete segment, or the start of a partial — never a mid-segment
// offset.
func StartPosition(dir string, segSize uint64) (xlog.RecPtr, uint32, error) {
	entries, err := ScanLogDir(dir)
	if err != nil {
		return 0, 0, err
	}

	type candidate struct {
		Entry
		isPartial bool
	}
	var candidates []candidate
	for _, e := range entries {
		switch e.Class {
		case ClassComplete, ClassCompleteCompressed:
			candidates = append(candidates, candidate{e, false})
		case ClassPartial, ClassPartialCompressed:
			candidates = append(candidates, candidate{e, true})
		}
	}
	if len(candidates) == 0 {
		return 0, 0, apperrors.Archive("start position discovery", fmt.Errorf("no WAL segments found in %s", dir))
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Identity.SegNo != b.Identity.SegNo {
			return a.Identity.SegNo > b.Identity.SegNo
		}
		if a.Identity.Timeline != b.Identity.Timeline {
			return a.Identity.Timeline > b.Identity.Timeline
		}
		// tie-break: partial wins over complete at the same position.
		return a.isPartial && !b.isPartial
	})
	best := candidates[0]

	start := xlog.RecPtr(best.Identity.SegNo * segSize)
	if best.isPartial {
		return start, best.Identity.Timeline, nil
	}
	return start + xlog.RecPtr(segSize), best.Identity.Timeline, nil
}

// GzipISIZE reads the last 4 bytes of a gzip member — the little-endian
// uncompressed size trailer — without decompressing the payload. A
// compressed segment's authoritative size is always the uncompressed
// size, and the gzip format stores exactly that at the tail (modulo the
// 2^32 wraparound the format itself accepts).
func GzipISIZE(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, apperrors.Archive("read gzip ISIZE trailer", err)
	}
	defer f.Close()

	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		return 0, apperrors.Archive("read gzip ISIZE trailer", err)
	}
	var buf [4]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, apperrors.Archive("read gzip ISIZE trailer", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
