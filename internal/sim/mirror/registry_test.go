package mirror

import (
	"fmt"
	"strings"
	"testing"

	"wildchain/internal/protocol"
)

// recorder captures scene notifications and audits for assertions.
type recorder struct {
	added     []string
	relocated []string
	caught    []string
	failed    []string
	audits    []AuditEntry
}

func (r *recorder) SpawnAdded(slot int, id string, pos Vec2, h *Handle) {
	r.added = append(r.added, fmt.Sprintf("%d:%s", slot, id))
}

func (r *recorder) SpawnRelocated(slot int, id string, pos Vec2) {
	r.relocated = append(r.relocated, fmt.Sprintf("%d:%s", slot, id))
}

func (r *recorder) SpawnCaught(slot int, id string) {
	r.caught = append(r.caught, fmt.Sprintf("%d:%s", slot, id))
}

func (r *recorder) SpawnCatchFailed(slot int, id string, attempts int) {
	r.failed = append(r.failed, fmt.Sprintf("%d:%s:%d", slot, id, attempts))
}

func (r *recorder) RecordAudit(e AuditEntry) { r.audits = append(r.audits, e) }

func (r *recorder) auditCodes() []string {
	out := make([]string, len(r.audits))
	for i, a := range r.audits {
		out[i] = a.Code
	}
	return out
}

func testConfig() Config {
	cfg := Config{WorldW: 2048, WorldH: 2048}
	cfg.applyDefaults()
	return cfg
}

func newTestRegistry(t *testing.T) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewRegistry(testConfig(), nil, rec, rec), rec
}

func row(slot int, id string, x, y, attempts int) protocol.SlotRow {
	return protocol.SlotRow{Slot: slot, ID: id, X: x, Y: y, Attempts: attempts, Active: true, SpawnedAt: 1}
}

func table(rows ...protocol.SlotRow) protocol.TableMsg {
	return protocol.TableMsg{Type: protocol.TypeTable, ProtocolVersion: protocol.Version, Block: 1, Rows: rows}
}

// digest summarizes all reconciliation-visible state; equal digests
// mean equal mirrors.
func digest(r *Registry) string {
	var b strings.Builder
	for slot := 0; slot < 20; slot++ {
		a, ok := r.BySlot(slot)
		if !ok {
			continue
		}
		visual := -1
		if a.Visual != nil {
			visual = a.Visual.SpriteID
		}
		fmt.Fprintf(&b, "%d=%s@(%.1f,%.1f)a%dv%d;", slot, a.ID, a.Pos.X, a.Pos.Y, a.Attempts, visual)
	}
	fmt.Fprintf(&b, "free=%d grid=%d", r.Pool().FreeCount(), r.grid.Len())
	return b.String()
}

func TestSync_PopulatesMirror(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Sync(table(row(0, "1", 100, 200, 0), row(1, "2", 500, 300, 0)))

	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	if got := len(r.AvailableSlots()); got != 18 {
		t.Fatalf("available slots = %d, want 18", got)
	}
	if got := len(r.OccupiedSlots()); got != 2 {
		t.Fatalf("occupied slots = %d, want 2", got)
	}
	a, ok := r.ByID("1")
	if !ok || a.Slot != 0 {
		t.Fatalf("actor 1 = %+v ok=%v", a, ok)
	}
	if a.Visual == nil {
		t.Fatal("actor 1 has no visual handle")
	}
	if r.Pool().InUseCount() != 2 {
		t.Fatalf("pool in use = %d, want 2", r.Pool().InUseCount())
	}
}

func TestSync_UnchangedOccupantKeepsHandle(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Sync(table(row(0, "1", 100, 200, 0)))
	a, _ := r.ByID("1")
	sprite := a.Visual.SpriteID

	// Same occupant, new position and attempt count: cheap diff only.
	r.Sync(table(row(0, "1", 300, 400, 2)))
	a, _ = r.ByID("1")
	if a.Visual.SpriteID != sprite {
		t.Fatal("handle churned on unchanged occupant")
	}
	if a.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", a.Attempts)
	}
	if len(rec.relocated) != 1 {
		t.Fatalf("relocations = %v, want one", rec.relocated)
	}
	if len(rec.added) != 1 {
		t.Fatalf("adds = %v, want one", rec.added)
	}
}

func TestSync_OccupantChangeIsRemoveThenAdd(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Sync(table(row(3, "7", 100, 100, 2)))
	r.Sync(table(row(3, "8", 200, 200, 0)))

	if _, ok := r.ByID("7"); ok {
		t.Fatal("replaced occupant still mirrored")
	}
	a, ok := r.ByID("8")
	if !ok || a.Slot != 3 || a.Attempts != 0 {
		t.Fatalf("new occupant = %+v ok=%v", a, ok)
	}
	if r.Pool().InUseCount() != 1 {
		t.Fatalf("pool in use = %d, want 1 (old handle returned)", r.Pool().InUseCount())
	}
	if len(rec.caught) != 1 {
		t.Fatalf("removal notifications = %v", rec.caught)
	}
	found := false
	for _, code := range rec.auditCodes() {
		if code == protocol.ErrSlotMismatch {
			found = true
		}
	}
	if !found {
		t.Fatal("occupant change not audited")
	}
}

func TestSync_LostOccupantRemoved(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Sync(table(row(0, "1", 100, 200, 0), row(1, "2", 500, 300, 0)))
	r.Sync(table(row(1, "2", 500, 300, 0)))

	if _, ok := r.ByID("1"); ok {
		t.Fatal("occupant absent from authoritative table still mirrored")
	}
	if r.Pool().InUseCount() != 1 {
		t.Fatalf("pool in use = %d, want 1", r.Pool().InUseCount())
	}
}

func TestSync_DuplicateIDsSkippedAndAudited(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Sync(table(row(0, "9", 100, 100, 0), row(1, "9", 800, 800, 0)))

	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
	if _, ok := r.BySlot(1); ok {
		t.Fatal("duplicate id mirrored in second slot")
	}
	if r.Stats().MalformedRows == 0 {
		t.Fatal("duplicate id not counted as malformed")
	}
	if len(rec.audits) == 0 {
		t.Fatal("duplicate id not audited")
	}
}

func TestEvents_IdempotentApplication(t *testing.T) {
	r, _ := newTestRegistry(t)

	added := protocol.Event{Kind: protocol.KindSpawnAdded, Added: &protocol.AddedEvent{Slot: 2, Actor: row(2, "5", 400, 400, 0)}}
	relocated := protocol.Event{Kind: protocol.KindRelocated, Relocated: &protocol.RelocatedEvent{ID: "5", X: 600, Y: 600}}
	failed := protocol.Event{Kind: protocol.KindFailed, Failed: &protocol.FailedEvent{ID: "5", AttemptsLeft: 2}}

	for _, ev := range []protocol.Event{added, relocated, failed} {
		r.ApplyEvent(ev)
		before := digest(r)
		r.ApplyEvent(ev)
		if after := digest(r); after != before {
			t.Fatalf("%s not idempotent:\n before %s\n after  %s", ev.Kind, before, after)
		}
	}

	caught := protocol.Event{Kind: protocol.KindCaught, Caught: &protocol.CaughtEvent{ID: "5"}}
	r.ApplyEvent(caught)
	before := digest(r)
	r.ApplyEvent(caught)
	if after := digest(r); after != before {
		t.Fatalf("caught not idempotent:\n before %s\n after  %s", before, after)
	}
	if r.Pool().InUseCount() != 0 {
		t.Fatalf("pool in use = %d after caught, want 0", r.Pool().InUseCount())
	}
}

func TestRelocated_MovesNearestCatchable(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ApplyAdded(&protocol.AddedEvent{Slot: 0, Actor: row(0, "1", 100, 200, 0)})

	from := r.mapper.ToWorld(100, 200)
	if a, ok := r.NearestCatchable(from); !ok || a.ID != "1" {
		t.Fatal("actor not catchable at spawn position")
	}

	r.ApplyRelocated(&protocol.RelocatedEvent{ID: "1", X: 300, Y: 400})

	if _, ok := r.NearestCatchable(from); ok {
		t.Fatal("actor still catchable at old position")
	}
	to := r.mapper.ToWorld(300, 400)
	if a, ok := r.NearestCatchable(to); !ok || a.ID != "1" {
		t.Fatal("actor not catchable at new position")
	}
}

func TestMaxAttempts_ReplacementReturnsHandles(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ApplyAdded(&protocol.AddedEvent{Slot: 4, Actor: row(4, "11", 100, 100, 2)})

	r.ApplyFailed(&protocol.FailedEvent{ID: "11", AttemptsLeft: 0})
	a, _ := r.ByID("11")
	if a.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", a.Attempts)
	}

	// Contract force-relocates: new occupant in the same slot.
	r.ApplyAdded(&protocol.AddedEvent{Slot: 4, Actor: row(4, "12", 700, 700, 0)})
	if _, ok := r.ByID("11"); ok {
		t.Fatal("exhausted occupant still mirrored")
	}
	a, ok := r.ByID("12")
	if !ok || a.Slot != 4 {
		t.Fatalf("replacement = %+v ok=%v", a, ok)
	}
	if r.Pool().InUseCount() != 1 {
		t.Fatalf("pool in use = %d, want 1 (no leak)", r.Pool().InUseCount())
	}
}

func TestStaleEvents_AuditedNotFatal(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.ApplyRelocated(&protocol.RelocatedEvent{ID: "404", X: 1, Y: 1})
	r.ApplyCaught(&protocol.CaughtEvent{ID: "404"})
	r.ApplyFailed(&protocol.FailedEvent{ID: "404", AttemptsLeft: 1})

	if got := r.Stats().StaleEvents; got != 3 {
		t.Fatalf("stale events = %d, want 3", got)
	}
	if len(rec.audits) != 3 {
		t.Fatalf("audits = %d, want 3", len(rec.audits))
	}
	// Processing continues: a later valid event still applies.
	r.ApplyAdded(&protocol.AddedEvent{Slot: 0, Actor: row(0, "1", 50, 50, 0)})
	if r.Len() != 1 {
		t.Fatal("valid event after stale ones not applied")
	}
}

func TestDuplicateAdd_Ignored(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ApplyAdded(&protocol.AddedEvent{Slot: 0, Actor: row(0, "1", 50, 50, 0)})
	before := digest(r)
	r.ApplyAdded(&protocol.AddedEvent{Slot: 5, Actor: row(5, "1", 900, 900, 0)})
	if digest(r) != before {
		t.Fatal("second add for mirrored id mutated state")
	}
	if r.Stats().DuplicateAdds != 1 {
		t.Fatalf("duplicate adds = %d, want 1", r.Stats().DuplicateAdds)
	}
}

func TestPoolExhaustion_SurfacedAndMirrorStaysTruthful(t *testing.T) {
	cfg := Config{WorldW: 2048, WorldH: 2048, MaxSlots: 3, PoolSize: 3}
	cfg.applyDefaults()
	rec := &recorder{}
	r := NewRegistry(cfg, nil, rec, rec)

	// Hold one handle hostage, as if mid-release.
	hostage, err := r.Pool().Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	r.Sync(table(row(0, "1", 10, 10, 0), row(1, "2", 500, 500, 0), row(2, "3", 900, 900, 0)))

	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3 (mirror must stay truthful)", r.Len())
	}
	if r.Stats().PoolExhausted != 1 {
		t.Fatalf("pool exhausted = %d, want 1", r.Stats().PoolExhausted)
	}
	unrendered := 0
	for _, slot := range r.OccupiedSlots() {
		a, _ := r.BySlot(slot)
		if a.Visual == nil {
			unrendered++
		}
	}
	if unrendered != 1 {
		t.Fatalf("unrendered actors = %d, want 1", unrendered)
	}
	r.Pool().Release(hostage)
}

func TestMirrorGridConsistency(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Sync(table(row(0, "1", 100, 200, 0), row(1, "2", 500, 300, 0), row(2, "3", 800, 800, 0)))
	r.ApplyRelocated(&protocol.RelocatedEvent{ID: "2", X: 50, Y: 50})
	r.ApplyCaught(&protocol.CaughtEvent{ID: "3"})

	if r.grid.Len() != r.Len() {
		t.Fatalf("grid holds %d ids, mirror %d", r.grid.Len(), r.Len())
	}
	for _, slot := range r.OccupiedSlots() {
		a, _ := r.BySlot(slot)
		p, ok := r.grid.PositionOf(a.ID)
		if !ok {
			t.Fatalf("actor %s missing from grid", a.ID)
		}
		if p != a.Pos {
			t.Fatalf("actor %s grid pos %+v != mirror pos %+v", a.ID, p, a.Pos)
		}
	}
}

func TestQuery_OrdersNearestFirst(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Sync(table(row(0, "far", 600, 600, 0), row(1, "near", 520, 520, 0), row(2, "center", 500, 500, 0)))

	center := r.mapper.ToWorld(500, 500)
	got := r.Query(center, 500)
	if len(got) != 3 {
		t.Fatalf("hits = %d, want 3", len(got))
	}
	if got[0].ID != "center" || got[2].ID != "far" {
		t.Fatalf("order = %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestSeparationBreach_Audited(t *testing.T) {
	r, _ := newTestRegistry(t)
	// Adjacent grid cells map well under the 64px separation floor.
	r.Sync(table(row(0, "1", 500, 500, 0), row(1, "2", 501, 500, 0)))
	if r.Stats().SeparationBreach == 0 {
		t.Fatal("separation breach not counted")
	}
	if r.Len() != 2 {
		t.Fatal("breaching spawns must still be mirrored")
	}
}
