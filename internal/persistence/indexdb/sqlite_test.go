package indexdb

import (
	"path/filepath"
	"testing"
	"time"

	"wildchain/internal/protocol"
	"wildchain/internal/sim/mirror"
)

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordEvent(protocol.Event{
		Seq:  10,
		Kind: protocol.KindSpawnAdded,
		Added: &protocol.AddedEvent{
			Slot:  3,
			Actor: protocol.SlotRow{Slot: 3, ID: "42", X: 100, Y: 200, Active: true},
		},
	})
	idx.RecordEvent(protocol.Event{
		Seq:    11,
		Kind:   protocol.KindCaught,
		Caught: &protocol.CaughtEvent{ID: "42"},
	})
	idx.RecordSnapshot(protocol.TableMsg{
		Type:  protocol.TypeTable,
		Block: 77,
		Rows:  []protocol.SlotRow{{Slot: 0, ID: "7", Active: true}},
	})
	idx.RecordAudit(mirror.AuditEntry{
		At:     time.Now().UTC(),
		Code:   protocol.ErrStaleEvent,
		Detail: "event for unknown actor 42",
		Actor:  "42",
		Slot:   -1,
	})
	idx.RecordAttempt("req-1", 3, "42", "BALL")
	idx.RecordAttempt("req-1", 3, "42", "BALL") // duplicate req id

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	total, err := idx.EventCount("")
	if err != nil {
		t.Fatalf("event count: %v", err)
	}
	if total != 2 {
		t.Fatalf("event count = %d, want 2", total)
	}
	caught, err := idx.EventCount(protocol.KindCaught)
	if err != nil {
		t.Fatalf("event count caught: %v", err)
	}
	if caught != 1 {
		t.Fatalf("caught count = %d, want 1", caught)
	}

	audits, err := idx.RecentAudits(10)
	if err != nil {
		t.Fatalf("recent audits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(audits))
	}
	if audits[0].Code != protocol.ErrStaleEvent || audits[0].Actor != "42" {
		t.Fatalf("unexpected audit row: %+v", audits[0])
	}

	attempts, err := idx.AttemptCount()
	if err != nil {
		t.Fatalf("attempt count: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempt count = %d, want 1 (req id dedup)", attempts)
	}
}

func TestIndexDropsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Writes after Close must be silently ignored, not panic on the
	// closed channel.
	idx.RecordAttempt("req-9", 0, "1", "BALL")
	idx.RecordAudit(mirror.AuditEntry{Code: protocol.ErrInternal})
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
