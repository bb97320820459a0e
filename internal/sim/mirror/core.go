package mirror

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"wildchain/internal/protocol"
)

// TablePoller requests a fresh table snapshot from the gateway. The
// response arrives asynchronously via SubmitSnapshot.
type TablePoller interface {
	RequestTable(reqID string) error
}

// FeedRecorder journals everything the core applies, for offline
// replay and the read-model index. May be nil.
type FeedRecorder interface {
	RecordSnapshot(msg protocol.TableMsg)
	RecordEvent(ev protocol.Event)
}

type clickReq struct {
	id   string
	resp chan error
}

// Core runs the reconciliation loop. All registry and catch-machine
// mutation happens on the one goroutine inside Run; poll responses,
// pushed events, input and scene readiness are queued on channels and
// drained there, so no interleaving can leave mirror, pool and grid
// out of sync with each other.
type Core struct {
	cfg Config
	log *log.Logger

	reg     *Registry
	catcher *Catcher
	buf     *StartupBuffer
	poller  TablePoller
	rec     FeedRecorder

	snapshots chan protocol.TableMsg
	events    chan protocol.Event
	clicks    chan clickReq
	moves     chan Vec2
	ready     chan struct{}
	inspect   chan func(*Registry, *Catcher)
	stop      chan struct{}

	sceneReady bool
	timers     []timerEntry
}

type timerEntry struct {
	at time.Time
	fn func()
}

func NewCore(cfg Config, logger *log.Logger, reg *Registry, catcher *Catcher, poller TablePoller, rec FeedRecorder) *Core {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Core{
		cfg:       cfg,
		log:       logger,
		reg:       reg,
		catcher:   catcher,
		buf:       NewStartupBuffer(),
		poller:    poller,
		rec:       rec,
		snapshots: make(chan protocol.TableMsg, 4),
		events:    make(chan protocol.Event, 64),
		clicks:    make(chan clickReq),
		moves:     make(chan Vec2, 16),
		ready:     make(chan struct{}, 1),
		inspect:   make(chan func(*Registry, *Catcher)),
		stop:      make(chan struct{}),
	}
}

// AttachCatcher breaks the construction cycle: the catcher wants the
// core as its Scheduler and the core wants the catcher for
// confirmations. Must be called before Run.
func (c *Core) AttachCatcher(cat *Catcher) { c.catcher = cat }

// After implements Scheduler. Only called from the loop goroutine.
func (c *Core) After(d time.Duration, fn func()) {
	c.timers = append(c.timers, timerEntry{at: time.Now().Add(d), fn: fn})
}

// Run drains the queues until ctx is cancelled or Stop is called.
// Once it returns no further poll is scheduled and no callback touches
// the registry.
func (c *Core) Run(ctx context.Context) error {
	poll := time.NewTicker(c.cfg.PollInterval.Duration())
	defer poll.Stop()
	pump := time.NewTicker(50 * time.Millisecond)
	defer pump.Stop()

	c.requestPoll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case msg := <-c.snapshots:
			c.handleSnapshot(msg)
		case ev := <-c.events:
			c.handleEvent(ev)
		case req := <-c.clicks:
			req.resp <- c.catcher.ClickActor(req.id)
		case p := <-c.moves:
			c.catcher.SetLocalPlayerPosition(p.X, p.Y)
		case <-c.ready:
			c.handleSceneReady()
		case fn := <-c.inspect:
			fn(c.reg, c.catcher)
		case <-poll.C:
			c.requestPoll()
		case now := <-pump.C:
			c.fireTimers(now)
		}
	}
}

func (c *Core) Stop() { close(c.stop) }

func (c *Core) requestPoll() {
	if c.poller == nil {
		return
	}
	reqID := uuid.NewString()
	if err := c.poller.RequestTable(reqID); err != nil {
		c.log.Printf("table poll %s: %v", reqID, err)
	}
}

func (c *Core) handleSnapshot(msg protocol.TableMsg) {
	if c.rec != nil {
		c.rec.RecordSnapshot(msg)
	}
	if !c.sceneReady {
		c.buf.OfferSnapshot(msg)
		return
	}
	c.reg.Sync(msg)
}

func (c *Core) handleEvent(ev protocol.Event) {
	if c.rec != nil {
		c.rec.RecordEvent(ev)
	}
	if !c.sceneReady {
		c.buf.OfferEvent(ev)
		return
	}
	c.reg.ApplyEvent(ev)
	c.catcher.HandleConfirmation(ev)
}

func (c *Core) handleSceneReady() {
	if c.sceneReady {
		return
	}
	c.sceneReady = true
	c.buf.Flush(c.reg)
	c.log.Printf("scene ready; mirror holds %d actors", c.reg.Len())
}

func (c *Core) fireTimers(now time.Time) {
	if len(c.timers) == 0 {
		return
	}
	kept := c.timers[:0]
	var due []func()
	for _, t := range c.timers {
		if !t.at.After(now) {
			due = append(due, t.fn)
		} else {
			kept = append(kept, t)
		}
	}
	c.timers = kept
	for _, fn := range due {
		fn()
	}
}

// --- Thread-safe entry points, callable from I/O goroutines. ---

// SubmitSnapshot queues a decoded table snapshot.
func (c *Core) SubmitSnapshot(msg protocol.TableMsg) {
	select {
	case c.snapshots <- msg:
	case <-c.stop:
	}
}

// SubmitEvent queues a validated incremental event.
func (c *Core) SubmitEvent(ev protocol.Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

// ClickActor forwards a click to the catch machine and waits for the
// synchronous verdict.
func (c *Core) ClickActor(id string) error {
	resp := make(chan error, 1)
	select {
	case c.clicks <- clickReq{id: id, resp: resp}:
		return <-resp
	case <-c.stop:
		return &protocol.CodedError{Code: protocol.ErrInternal, Msg: "core stopped"}
	}
}

// SetLocalPlayerPosition queues a player position update.
func (c *Core) SetLocalPlayerPosition(x, y float64) {
	select {
	case c.moves <- Vec2{X: x, Y: y}:
	case <-c.stop:
	}
}

// SceneReady signals that the rendering scene can host visual handles.
// The buffered snapshot flushes exactly once.
func (c *Core) SceneReady() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop goroutine and waits for it; used for
// consistent reads of registry and catch state.
func (c *Core) Do(fn func(*Registry, *Catcher)) {
	done := make(chan struct{})
	select {
	case c.inspect <- func(r *Registry, ca *Catcher) {
		fn(r, ca)
		close(done)
	}:
		<-done
	case <-c.stop:
	}
}
