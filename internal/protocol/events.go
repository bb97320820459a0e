package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event kinds pushed by the ledger gateway. Every kind mirrors one
// contract-side notification.
const (
	KindSpawnAdded = "SPAWN_ADDED"
	KindRelocated  = "RELOCATED"
	KindCaught     = "CAUGHT"
	KindFailed     = "FAILED"
)

// EventMsg is the raw wire shape. Only the fields required by the
// declared kind are meaningful; Decode enforces that once, so handlers
// downstream never inspect payload shape.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind"`

	Slot  *int     `json:"slot,omitempty"`
	Actor *SlotRow `json:"actor,omitempty"`

	ID string `json:"id,omitempty"`
	X  *int   `json:"x,omitempty"`
	Y  *int   `json:"y,omitempty"`

	AttemptsLeft *int `json:"attempts_left,omitempty"`
}

// Event is the validated, closed form handed to the simulation.
// Exactly one of the payload pointers is non-nil, matching Kind.
type Event struct {
	Seq  uint64
	Kind string

	Added     *AddedEvent
	Relocated *RelocatedEvent
	Caught    *CaughtEvent
	Failed    *FailedEvent
}

type AddedEvent struct {
	Slot  int
	Actor SlotRow
}

type RelocatedEvent struct {
	ID   string
	X, Y int
}

type CaughtEvent struct {
	ID string
}

type FailedEvent struct {
	ID           string
	AttemptsLeft int
}

// CodedError carries an E_* code across the decode boundary.
type CodedError struct {
	Code string
	Msg  string
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Msg }

func codedErrf(code, format string, args ...any) error {
	return &CodedError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CanonicalID normalizes a ledger actor id for comparison. Ledger ids
// are decimal strings; some upstream encoders zero-pad them.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" && id != "" {
		return "0"
	}
	return trimmed
}

// DecodeEvent validates a raw EVENT message into the closed union.
// All shape errors carry E_PROTO_BAD_EVENT.
func DecodeEvent(b []byte) (Event, error) {
	var m EventMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return Event{}, codedErrf(ErrProtoBadEvent, "unmarshal: %v", err)
	}
	return ValidateEvent(m)
}

// ValidateEvent checks an already-unmarshalled EventMsg.
func ValidateEvent(m EventMsg) (Event, error) {
	if m.Type != TypeEvent {
		return Event{}, codedErrf(ErrProtoBadEvent, "type %q is not EVENT", m.Type)
	}
	ev := Event{Seq: m.Seq, Kind: m.Kind}
	switch m.Kind {
	case KindSpawnAdded:
		if m.Slot == nil || m.Actor == nil {
			return Event{}, codedErrf(ErrProtoBadEvent, "SPAWN_ADDED requires slot and actor")
		}
		if err := m.Actor.validate(); err != nil {
			return Event{}, err
		}
		if *m.Slot != m.Actor.Slot {
			return Event{}, codedErrf(ErrProtoBadEvent, "SPAWN_ADDED slot %d disagrees with actor slot %d", *m.Slot, m.Actor.Slot)
		}
		actor := *m.Actor
		actor.ID = CanonicalID(actor.ID)
		ev.Added = &AddedEvent{Slot: *m.Slot, Actor: actor}
	case KindRelocated:
		if m.ID == "" || m.X == nil || m.Y == nil {
			return Event{}, codedErrf(ErrProtoBadEvent, "RELOCATED requires id, x, y")
		}
		ev.Relocated = &RelocatedEvent{ID: CanonicalID(m.ID), X: *m.X, Y: *m.Y}
	case KindCaught:
		if m.ID == "" {
			return Event{}, codedErrf(ErrProtoBadEvent, "CAUGHT requires id")
		}
		ev.Caught = &CaughtEvent{ID: CanonicalID(m.ID)}
	case KindFailed:
		if m.ID == "" || m.AttemptsLeft == nil {
			return Event{}, codedErrf(ErrProtoBadEvent, "FAILED requires id and attempts_left")
		}
		if *m.AttemptsLeft < 0 {
			return Event{}, codedErrf(ErrProtoBadEvent, "FAILED attempts_left %d is negative", *m.AttemptsLeft)
		}
		ev.Failed = &FailedEvent{ID: CanonicalID(m.ID), AttemptsLeft: *m.AttemptsLeft}
	default:
		return Event{}, codedErrf(ErrProtoBadEvent, "unknown event kind %q", m.Kind)
	}
	return ev, nil
}
