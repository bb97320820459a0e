package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"wildchain/internal/protocol"
	"wildchain/internal/sim/mirror"
)

// SQLiteIndex is a secondary read model over the feed: applied events,
// degradation audits and local catch submissions, queryable by
// operators and the replay tool. The journal remains the source of
// truth; a busy index may drop writes.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqAudit
	reqAttempt
)

type req struct {
	kind reqKind

	event    protocol.Event
	snapshot snapshotRow
	audit    mirror.AuditEntry
	attempt  attemptRow
}

type snapshotRow struct {
	Block    uint64
	Occupied int
	At       time.Time
}

type attemptRow struct {
	ReqID  string
	Slot   int
	Target string
	Ball   string
	At     time.Time
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT NOT NULL,
			slot INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			block INTEGER NOT NULL,
			occupied INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			detail TEXT NOT NULL,
			actor TEXT,
			slot INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_code ON audits(code, id);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			req_id TEXT PRIMARY KEY,
			slot INTEGER NOT NULL,
			target TEXT NOT NULL,
			ball TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the journal has it anyway.
	}
}

// RecordEvent implements half of mirror.FeedRecorder.
func (s *SQLiteIndex) RecordEvent(ev protocol.Event) {
	s.enqueue(req{kind: reqEvent, event: ev})
}

// RecordSnapshot implements the other half.
func (s *SQLiteIndex) RecordSnapshot(msg protocol.TableMsg) {
	occupied := 0
	for _, r := range msg.Rows {
		if r.Active && r.ID != "" {
			occupied++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{Block: msg.Block, Occupied: occupied, At: time.Now().UTC()}})
}

// RecordAudit implements mirror.AuditSink.
func (s *SQLiteIndex) RecordAudit(e mirror.AuditEntry) {
	s.enqueue(req{kind: reqAudit, audit: e})
}

// RecordAttempt indexes one local catch submission.
func (s *SQLiteIndex) RecordAttempt(reqID string, slot int, target, ball string) {
	s.enqueue(req{kind: reqAttempt, attempt: attemptRow{ReqID: reqID, Slot: slot, Target: target, Ball: ball, At: time.Now().UTC()}})
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqEvent:
			s.insertEvent(r.event)
		case reqSnapshot:
			_, _ = s.db.Exec(`INSERT INTO snapshots (block, occupied, recorded_at) VALUES (?, ?, ?)`,
				r.snapshot.Block, r.snapshot.Occupied, r.snapshot.At.Format(time.RFC3339Nano))
		case reqAudit:
			_, _ = s.db.Exec(`INSERT INTO audits (code, detail, actor, slot, recorded_at) VALUES (?, ?, ?, ?, ?)`,
				r.audit.Code, r.audit.Detail, r.audit.Actor, r.audit.Slot, r.audit.At.Format(time.RFC3339Nano))
		case reqAttempt:
			_, _ = s.db.Exec(`INSERT INTO attempts (req_id, slot, target, ball, recorded_at) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(req_id) DO NOTHING`,
				r.attempt.ReqID, r.attempt.Slot, r.attempt.Target, r.attempt.Ball, r.attempt.At.Format(time.RFC3339Nano))
		}
	}
}

func (s *SQLiteIndex) insertEvent(ev protocol.Event) {
	actor := ""
	slot := -1
	switch ev.Kind {
	case protocol.KindSpawnAdded:
		actor, slot = ev.Added.Actor.ID, ev.Added.Slot
	case protocol.KindRelocated:
		actor = ev.Relocated.ID
	case protocol.KindCaught:
		actor = ev.Caught.ID
	case protocol.KindFailed:
		actor = ev.Failed.ID
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`INSERT INTO events (seq, kind, actor, slot, raw_json, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Seq, ev.Kind, actor, slot, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
}

// EventCount returns how many events of kind were indexed; empty kind
// counts everything.
func (s *SQLiteIndex) EventCount(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}

// RecentAudits returns the newest n audit rows, newest first.
func (s *SQLiteIndex) RecentAudits(n int) ([]mirror.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT code, detail, actor, slot, recorded_at FROM audits ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mirror.AuditEntry
	for rows.Next() {
		var e mirror.AuditEntry
		var at string
		if err := rows.Scan(&e.Code, &e.Detail, &e.Actor, &e.Slot, &at); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AttemptCount returns how many catch submissions were indexed.
func (s *SQLiteIndex) AttemptCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n)
	return n, err
}
