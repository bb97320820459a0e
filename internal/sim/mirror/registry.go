package mirror

import (
	"fmt"
	"io"
	"log"
	"time"

	"wildchain/internal/protocol"
)

// Actor is the mirror's cached view of one remote occupant.
type Actor struct {
	ID        string
	Slot      int
	Pos       Vec2
	Attempts  int
	SpawnedAt uint64

	// Visual is nil when the pool was exhausted at add time; the actor
	// is still mirrored so proximity queries stay truthful.
	Visual *Handle
}

// Registry is the authoritative local mirror of the contract's spawn
// table: at most one occupant per slot, every occupant indexed by id
// and by grid cell. All mutation goes through Sync and the Apply*
// handlers, which the core loop serializes onto one goroutine.
type Registry struct {
	cfg    Config
	log    *log.Logger
	mapper CoordMapper

	pool *EntityPool
	grid *SpatialGrid

	slots []*Actor
	byID  map[string]*Actor

	hooks SceneHooks
	audit AuditSink
	stats Stats
}

func NewRegistry(cfg Config, logger *log.Logger, hooks SceneHooks, audit AuditSink) *Registry {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if hooks == nil {
		hooks = NopSceneHooks{}
	}
	return &Registry{
		cfg:    cfg,
		log:    logger,
		mapper: NewCoordMapper(cfg),
		pool:   NewEntityPool(cfg.PoolSize),
		grid:   NewSpatialGrid(cfg.GridCellPx),
		slots:  make([]*Actor, cfg.MaxSlots),
		byID:   make(map[string]*Actor),
		hooks:  hooks,
		audit:  audit,
	}
}

func (r *Registry) recordAudit(code, detail, actor string, slot int) {
	r.log.Printf("%s slot=%d actor=%s: %s", code, slot, actor, detail)
	if r.audit != nil {
		r.audit.RecordAudit(AuditEntry{
			At:     time.Now().UTC(),
			Code:   code,
			Detail: detail,
			Actor:  actor,
			Slot:   slot,
		})
	}
}

// Sync performs full reconciliation against a table snapshot. The
// remote table always wins; malformed entries are audited and skipped,
// never fatal. Occupants whose id matches keep their handles (cheap
// diff); an identity change is removal-then-add.
func (r *Registry) Sync(msg protocol.TableMsg) {
	good, bad := protocol.ValidateTable(msg)
	for _, err := range bad {
		r.stats.MalformedRows++
		r.recordAudit(protocol.ErrProtoBadEvent, err.Error(), "", -1)
	}

	remote := make([]*protocol.SlotRow, r.cfg.MaxSlots)
	seen := make(map[string]int, len(good))
	for i := range good {
		row := good[i]
		if row.Slot >= r.cfg.MaxSlots {
			r.stats.MalformedRows++
			r.recordAudit(protocol.ErrProtoBadEvent,
				fmt.Sprintf("slot %d beyond table capacity %d", row.Slot, r.cfg.MaxSlots), row.ID, row.Slot)
			continue
		}
		if !row.Active || row.ID == "" {
			continue
		}
		if prev, dup := seen[row.ID]; dup {
			// Identical id in two slots signals an upstream fault.
			r.stats.MalformedRows++
			r.recordAudit(protocol.ErrDuplicateAdd,
				fmt.Sprintf("id also present in slot %d", prev), row.ID, row.Slot)
			continue
		}
		seen[row.ID] = row.Slot
		remote[row.Slot] = &good[i]
	}

	r.checkSeparation(remote)

	for slot := 0; slot < r.cfg.MaxSlots; slot++ {
		local := r.slots[slot]
		rem := remote[slot]
		switch {
		case local == nil && rem == nil:
		case local == nil && rem != nil:
			r.addActor(slot, *rem)
		case local != nil && rem == nil:
			r.removeActor(local)
			r.hooks.SpawnCaught(slot, local.ID)
		case local.ID == rem.ID:
			pos := r.mapper.ToWorld(rem.X, rem.Y)
			if pos != local.Pos {
				r.moveActor(local, pos)
			}
			if local.Attempts != rem.Attempts {
				local.Attempts = rem.Attempts
			}
		default:
			// Occupant identity changed without any removal event.
			r.stats.SlotMismatches++
			r.recordAudit(protocol.ErrSlotMismatch,
				fmt.Sprintf("occupant %s replaced by %s", local.ID, rem.ID), rem.ID, slot)
			r.removeActor(local)
			r.hooks.SpawnCaught(slot, local.ID)
			r.addActor(slot, *rem)
		}
	}
	r.stats.SnapshotsApplied++
}

// checkSeparation audits spawn pairs closer than the configured
// minimum. The mirror still accepts them; the contract is supposed to
// enforce separation, so a breach is an upstream fault signal.
func (r *Registry) checkSeparation(remote []*protocol.SlotRow) {
	for i := 0; i < len(remote); i++ {
		if remote[i] == nil {
			continue
		}
		pi := r.mapper.ToWorld(remote[i].X, remote[i].Y)
		for j := i + 1; j < len(remote); j++ {
			if remote[j] == nil {
				continue
			}
			pj := r.mapper.ToWorld(remote[j].X, remote[j].Y)
			if d := pi.Dist(pj); d < r.cfg.MinSpawnSepPx {
				r.stats.SeparationBreach++
				r.recordAudit(protocol.ErrSlotMismatch,
					fmt.Sprintf("spawns %s and %s only %.0fpx apart", remote[i].ID, remote[j].ID, d),
					remote[i].ID, remote[i].Slot)
			}
		}
	}
}

func (r *Registry) addActor(slot int, row protocol.SlotRow) {
	pos := r.mapper.ToWorld(row.X, row.Y)
	h, err := r.pool.Acquire()
	if err != nil {
		// Fatal to rendering this spawn, not to the mirror.
		r.stats.PoolExhausted++
		r.recordAudit(protocol.ErrPoolExhausted, err.Error(), row.ID, slot)
	}
	a := &Actor{
		ID:        row.ID,
		Slot:      slot,
		Pos:       pos,
		Attempts:  row.Attempts,
		SpawnedAt: row.SpawnedAt,
		Visual:    h,
	}
	r.slots[slot] = a
	r.byID[a.ID] = a
	r.grid.Insert(a.ID, pos)
	r.hooks.SpawnAdded(slot, a.ID, pos, h)
}

func (r *Registry) removeActor(a *Actor) {
	r.grid.Remove(a.ID)
	if a.Visual != nil {
		r.pool.Release(a.Visual)
		a.Visual = nil
	}
	delete(r.byID, a.ID)
	r.slots[a.Slot] = nil
}

// moveActor updates position and grid membership together; they must
// never diverge or NearestCatchable goes silently wrong.
func (r *Registry) moveActor(a *Actor, pos Vec2) {
	a.Pos = pos
	r.grid.Move(a.ID, pos)
	r.hooks.SpawnRelocated(a.Slot, a.ID, pos)
}

// ApplyEvent dispatches one validated incremental event.
func (r *Registry) ApplyEvent(ev protocol.Event) {
	switch ev.Kind {
	case protocol.KindSpawnAdded:
		r.ApplyAdded(ev.Added)
	case protocol.KindRelocated:
		r.ApplyRelocated(ev.Relocated)
	case protocol.KindCaught:
		r.ApplyCaught(ev.Caught)
	case protocol.KindFailed:
		r.ApplyFailed(ev.Failed)
	}
}

// ApplyAdded mirrors a new occupant. Re-delivery of an add for an id
// already mirrored is a no-op.
func (r *Registry) ApplyAdded(ev *protocol.AddedEvent) {
	if ev == nil {
		return
	}
	if ev.Slot < 0 || ev.Slot >= r.cfg.MaxSlots {
		r.stats.MalformedRows++
		r.recordAudit(protocol.ErrProtoBadEvent,
			fmt.Sprintf("slot %d beyond table capacity %d", ev.Slot, r.cfg.MaxSlots), ev.Actor.ID, ev.Slot)
		return
	}
	if existing, ok := r.byID[ev.Actor.ID]; ok {
		r.stats.DuplicateAdds++
		r.recordAudit(protocol.ErrDuplicateAdd,
			fmt.Sprintf("already mirrored in slot %d", existing.Slot), ev.Actor.ID, ev.Slot)
		return
	}
	if occupant := r.slots[ev.Slot]; occupant != nil {
		// The contract replaced the occupant; trust the event.
		r.stats.SlotMismatches++
		r.recordAudit(protocol.ErrSlotMismatch,
			fmt.Sprintf("occupant %s replaced by %s", occupant.ID, ev.Actor.ID), ev.Actor.ID, ev.Slot)
		r.removeActor(occupant)
		r.hooks.SpawnCaught(ev.Slot, occupant.ID)
	}
	r.addActor(ev.Slot, ev.Actor)
	r.stats.EventsApplied++
}

// ApplyRelocated moves a mirrored occupant. Unknown ids are stale
// deliveries and ignored.
func (r *Registry) ApplyRelocated(ev *protocol.RelocatedEvent) {
	if ev == nil {
		return
	}
	a, ok := r.byID[ev.ID]
	if !ok {
		r.stats.StaleEvents++
		r.recordAudit(protocol.ErrStaleEvent, "relocated for unmirrored id", ev.ID, -1)
		return
	}
	pos := r.mapper.ToWorld(ev.X, ev.Y)
	if pos != a.Pos {
		r.moveActor(a, pos)
	}
	r.stats.EventsApplied++
}

// ApplyCaught removes a mirrored occupant and returns its handles.
func (r *Registry) ApplyCaught(ev *protocol.CaughtEvent) {
	if ev == nil {
		return
	}
	a, ok := r.byID[ev.ID]
	if !ok {
		r.stats.StaleEvents++
		r.recordAudit(protocol.ErrStaleEvent, "caught for unmirrored id", ev.ID, -1)
		return
	}
	slot := a.Slot
	r.removeActor(a)
	r.hooks.SpawnCaught(slot, ev.ID)
	r.stats.EventsApplied++
}

// ApplyFailed records a consumed attempt.
func (r *Registry) ApplyFailed(ev *protocol.FailedEvent) {
	if ev == nil {
		return
	}
	a, ok := r.byID[ev.ID]
	if !ok {
		r.stats.StaleEvents++
		r.recordAudit(protocol.ErrStaleEvent, "failed for unmirrored id", ev.ID, -1)
		return
	}
	attempts := r.cfg.MaxAttempts - ev.AttemptsLeft
	if attempts < 0 {
		attempts = 0
	}
	if attempts > r.cfg.MaxAttempts {
		attempts = r.cfg.MaxAttempts
	}
	a.Attempts = attempts
	r.hooks.SpawnCatchFailed(a.Slot, a.ID, attempts)
	r.stats.EventsApplied++
}

// Query returns mirrored actors within radius of p, nearest first.
func (r *Registry) Query(p Vec2, radius float64) []*Actor {
	hits := r.grid.QueryRadius(p, radius)
	out := make([]*Actor, 0, len(hits))
	for _, h := range hits {
		if a, ok := r.byID[h.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

// NearestCatchable returns the closest actor within catch range of p.
func (r *Registry) NearestCatchable(p Vec2) (*Actor, bool) {
	hit, ok := r.grid.Nearest(p, r.cfg.CatchRangePx)
	if !ok {
		return nil, false
	}
	a, ok := r.byID[hit.ID]
	return a, ok
}

func (r *Registry) ByID(id string) (*Actor, bool) {
	a, ok := r.byID[protocol.CanonicalID(id)]
	return a, ok
}

func (r *Registry) BySlot(slot int) (*Actor, bool) {
	if slot < 0 || slot >= r.cfg.MaxSlots {
		return nil, false
	}
	a := r.slots[slot]
	return a, a != nil
}

func (r *Registry) OccupiedSlots() []int {
	out := make([]int, 0, r.cfg.MaxSlots)
	for i, a := range r.slots {
		if a != nil {
			out = append(out, i)
		}
	}
	return out
}

func (r *Registry) AvailableSlots() []int {
	out := make([]int, 0, r.cfg.MaxSlots)
	for i, a := range r.slots {
		if a == nil {
			out = append(out, i)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.byID) }

// Pool exposes the registry's pool for conservation checks.
func (r *Registry) Pool() *EntityPool { return r.pool }

// Stats returns a copy of the degradation counters.
func (r *Registry) Stats() Stats { return r.stats }
