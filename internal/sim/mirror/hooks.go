package mirror

import "time"

// SceneHooks is what the rendering layer implements to be told about
// mirror changes. All calls happen on the core loop goroutine; hooks
// must not block.
type SceneHooks interface {
	SpawnAdded(slot int, id string, pos Vec2, h *Handle)
	SpawnRelocated(slot int, id string, pos Vec2)
	SpawnCaught(slot int, id string)
	SpawnCatchFailed(slot int, id string, attempts int)
}

// BallSelector picks which ball the player throws. Returning ok=false
// means no ball is available.
type BallSelector interface {
	ChooseBall() (kind string, ok bool)
}

// Submitter dispatches one catch attempt toward the remote signer.
// The outcome never comes back from this call; it arrives later as a
// CAUGHT or FAILED event correlated by actor id.
type Submitter interface {
	SubmitCatch(slot int, targetID, ball string) error
}

// StateObserver receives catch-machine notifications for the UI layer.
type StateObserver interface {
	StateChanged(old, new CatchState, targetID string)
	AttemptRejected(targetID, code string)
	CatchReady(targetID string, dist float64)
	CatchOutOfRange(targetID string, dist, required float64)
	VisualThrow(targetID, ball string)
	VisualResult(targetID string, caught bool)
}

// AuditSink records degraded-path diagnostics: stale events, duplicate
// adds, malformed rows, forced recoveries, pool exhaustion. Entries are
// observational only; processing continues regardless.
type AuditSink interface {
	RecordAudit(e AuditEntry)
}

type AuditEntry struct {
	At     time.Time `json:"at"`
	Code   string    `json:"code"`
	Detail string    `json:"detail"`
	Actor  string    `json:"actor,omitempty"`
	Slot   int       `json:"slot"`
}

// NopSceneHooks satisfies SceneHooks for headless runs and tests.
type NopSceneHooks struct{}

func (NopSceneHooks) SpawnAdded(int, string, Vec2, *Handle) {}
func (NopSceneHooks) SpawnRelocated(int, string, Vec2)      {}
func (NopSceneHooks) SpawnCaught(int, string)               {}
func (NopSceneHooks) SpawnCatchFailed(int, string, int)     {}
