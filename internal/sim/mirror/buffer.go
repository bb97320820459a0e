package mirror

import "wildchain/internal/protocol"

// StartupBuffer holds remote data that arrives before the rendering
// scene can host visual handles. Only the latest full snapshot matters;
// incremental events are retained only if they arrived after it.
type StartupBuffer struct {
	snap     *protocol.TableMsg
	trailing []protocol.Event
	flushed  bool
}

func NewStartupBuffer() *StartupBuffer {
	return &StartupBuffer{}
}

// OfferSnapshot replaces any earlier buffered snapshot and discards
// events it supersedes.
func (b *StartupBuffer) OfferSnapshot(msg protocol.TableMsg) {
	if b.flushed {
		return
	}
	b.snap = &msg
	b.trailing = b.trailing[:0]
}

// OfferEvent retains an event delivered after the buffered snapshot.
func (b *StartupBuffer) OfferEvent(ev protocol.Event) {
	if b.flushed {
		return
	}
	b.trailing = append(b.trailing, ev)
}

// Flush replays the buffered snapshot and trailing events into the
// registry, exactly once. Further calls are no-ops.
func (b *StartupBuffer) Flush(r *Registry) {
	if b.flushed {
		return
	}
	b.flushed = true
	if b.snap != nil {
		r.Sync(*b.snap)
	}
	for _, ev := range b.trailing {
		r.ApplyEvent(ev)
	}
	b.snap = nil
	b.trailing = nil
}

func (b *StartupBuffer) Flushed() bool { return b.flushed }
