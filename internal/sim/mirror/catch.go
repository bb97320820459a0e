package mirror

import (
	"fmt"
	"io"
	"log"
	"time"

	"wildchain/internal/protocol"
)

type CatchState int

const (
	StateIdle CatchState = iota
	StateThrowing
	StateAwaitingResult
	StateSuccess
	StateFailure
)

func (s CatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateThrowing:
		return "throwing"
	case StateAwaitingResult:
		return "awaiting_result"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	}
	return fmt.Sprintf("CatchState(%d)", int(s))
}

// terminal reports whether the state shows an outcome before returning
// to idle.
func (s CatchState) terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Scheduler defers a callback onto the core loop. Callbacks run on the
// same goroutine as all other mutation.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Catcher drives the catch-attempt lifecycle for the local player:
// idle -> throwing -> awaiting_result -> success|failure -> idle.
// At most one attempt is ever in flight; the ball is decremented
// exactly once per episode, optimistically, at throw entry.
type Catcher struct {
	cfg       Config
	log       *log.Logger
	reg       *Registry
	selector  BallSelector
	submitter Submitter
	observer  StateObserver
	sched     Scheduler
	audit     AuditSink

	state       CatchState
	target      string
	targetSlot  int
	ball        string
	submittedAt time.Time
	playerPos   Vec2

	balls map[string]int

	forcedRecoveries uint64
}

func NewCatcher(cfg Config, logger *log.Logger, reg *Registry, selector BallSelector, submitter Submitter, observer StateObserver, sched Scheduler, audit AuditSink) *Catcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Catcher{
		cfg:       cfg,
		log:       logger,
		reg:       reg,
		selector:  selector,
		submitter: submitter,
		observer:  observer,
		sched:     sched,
		audit:     audit,
		state:     StateIdle,
		balls:     make(map[string]int),
	}
}

func (c *Catcher) State() CatchState { return c.state }
func (c *Catcher) Target() string    { return c.target }

func (c *Catcher) SetLocalPlayerPosition(x, y float64) {
	c.playerPos = Vec2{X: x, Y: y}
}

func (c *Catcher) PlayerPosition() Vec2 { return c.playerPos }

// SetBallCount is the authoritative correction path: a later inventory
// read from the ledger overwrites the optimistic local count.
func (c *Catcher) SetBallCount(kind string, n int) {
	if n < 0 {
		n = 0
	}
	c.balls[kind] = n
}

func (c *Catcher) BallCount(kind string) int { return c.balls[kind] }

func (c *Catcher) ForcedRecoveries() uint64 { return c.forcedRecoveries }

func (c *Catcher) reject(id, code, format string, args ...any) error {
	err := &protocol.CodedError{Code: code, Msg: fmt.Sprintf(format, args...)}
	if c.observer != nil {
		c.observer.AttemptRejected(id, code)
	}
	return err
}

// ClickActor starts an attempt on the clicked actor. Every failed
// precondition leaves state at idle and returns a coded rejection so
// the caller can surface a reason.
func (c *Catcher) ClickActor(id string) error {
	id = protocol.CanonicalID(id)
	if c.state != StateIdle {
		return c.reject(id, protocol.ErrAttemptPending, "attempt on %s still %s", c.target, c.state)
	}
	a, ok := c.reg.ByID(id)
	if !ok {
		return c.reject(id, protocol.ErrUnknownTarget, "actor %s is not mirrored", id)
	}
	dist := c.playerPos.Dist(a.Pos)
	if dist > c.cfg.CatchRangePx {
		if c.observer != nil {
			c.observer.CatchOutOfRange(id, dist, c.cfg.CatchRangePx)
		}
		return c.reject(id, protocol.ErrOutOfRange, "actor %s is %.0fpx away, range %.0fpx", id, dist, c.cfg.CatchRangePx)
	}
	if c.observer != nil {
		c.observer.CatchReady(id, dist)
	}
	ball, ok := c.selector.ChooseBall()
	if !ok || c.balls[ball] <= 0 {
		return c.reject(id, protocol.ErrNoBalls, "no %q available", ball)
	}

	c.target = id
	c.targetSlot = a.Slot
	c.ball = ball
	c.transition(StateThrowing)

	// Optimistic decrement; the ledger inventory corrects later if the
	// submission never lands.
	c.balls[ball]--
	c.submittedAt = time.Now()
	if c.observer != nil {
		c.observer.VisualThrow(id, ball)
	}

	if err := c.submitter.SubmitCatch(a.Slot, id, ball); err != nil {
		// Nothing is in flight; refund and reset.
		c.balls[ball]++
		c.transition(StateIdle)
		c.target = ""
		return &protocol.CodedError{Code: protocol.ErrInternal, Msg: fmt.Sprintf("submit: %v", err)}
	}
	c.transition(StateAwaitingResult)
	return nil
}

// HandleConfirmation consumes a CAUGHT or FAILED event. A confirmation
// for a different id than the in-flight target still resolves the
// attempt: a stuck machine permanently blocks further attempts, which
// is the worse failure mode.
func (c *Catcher) HandleConfirmation(ev protocol.Event) {
	var id string
	var caught bool
	switch ev.Kind {
	case protocol.KindCaught:
		id = ev.Caught.ID
		caught = true
	case protocol.KindFailed:
		id = ev.Failed.ID
	default:
		return
	}

	if c.state != StateThrowing && c.state != StateAwaitingResult {
		return
	}
	if id != c.target {
		c.forcedRecoveries++
		c.log.Printf("%s confirmation for %s while awaiting %s; recovering", protocol.ErrStaleEvent, id, c.target)
		if c.audit != nil {
			c.audit.RecordAudit(AuditEntry{
				At:     time.Now().UTC(),
				Code:   protocol.ErrStaleEvent,
				Detail: fmt.Sprintf("confirmation for %s while awaiting %s", id, c.target),
				Actor:  id,
				Slot:   c.targetSlot,
			})
		}
	}

	if caught {
		c.transition(StateSuccess)
	} else {
		c.transition(StateFailure)
	}
	if c.observer != nil {
		c.observer.VisualResult(c.target, caught)
	}
	c.sched.After(c.cfg.OutcomeDelay.Duration(), c.finishOutcome)
}

// finishOutcome returns to idle after the outcome display delay.
func (c *Catcher) finishOutcome() {
	if !c.state.terminal() {
		return
	}
	c.target = ""
	c.ball = ""
	c.transition(StateIdle)
}

func (c *Catcher) transition(next CatchState) {
	old := c.state
	if old == next {
		return
	}
	c.state = next
	if c.observer != nil {
		c.observer.StateChanged(old, next, c.target)
	}
}
