package replication

import (
	"context"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateSlotNameUUIDIsLowercaseAndPrefixed(t *testing.T) {
	s := NewPGStream(zerolog.Nop())
	name, err := s.GenerateSlotNameUUID("pgbackupctl")
	if err != nil {
		t.Fatalf("GenerateSlotNameUUID: %v", err)
	}
	if matched, _ := regexp.MatchString(`^pgbackupctl_[0-9a-f]{32}$`, name); !matched {
		t.Fatalf("unexpected slot name shape: %q", name)
	}
}

func TestGenerateSlotNameUUIDWithoutPrefix(t *testing.T) {
	s := NewPGStream(zerolog.Nop())
	name, err := s.GenerateSlotNameUUID("")
	if err != nil {
		t.Fatalf("GenerateSlotNameUUID: %v", err)
	}
	if matched, _ := regexp.MatchString(`^[0-9a-f]{32}$`, name); !matched {
		t.Fatalf("unexpected unprefixed slot name shape: %q", name)
	}
}

func TestGenerateSlotNameUUIDIsUnique(t *testing.T) {
	s := NewPGStream(zerolog.Nop())
	a, err := s.GenerateSlotNameUUID("a")
	if err != nil {
		t.Fatalf("GenerateSlotNameUUID: %v", err)
	}
	b, err := s.GenerateSlotNameUUID("a")
	if err != nil {
		t.Fatalf("GenerateSlotNameUUID: %v", err)
	}
	if a == b {
		t.Fatalf("expected two generated slot names to differ, got %q twice", a)
	}
}

func TestMustParseUint(t *testing.T) {
	if got := mustParseUint("1234567890123"); got != 1234567890123 {
		t.Fatalf("mustParseUint: got %d", got)
	}
}

func TestPgIdentEscapesQuotes(t *testing.T) {
	if got := pgIdent(`wal"segsize`); got != `wal""segsize` {
		t.Fatalf("pgIdent: got %q", got)
	}
}

func TestTestConnectionFailsWithoutConnect(t *testing.T) {
	s := NewPGStream(zerolog.Nop())
	if err := s.TestConnection(context.Background()); err == nil {
		t.Fatalf("expected TestConnection to fail before Connect is called")
	}
}
