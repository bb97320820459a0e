package mirror

import (
	"wildchain/internal/protocol"
)

type HandleState uint8

const (
	HandleFree HandleState = iota
	HandleInUse
)

// Handle is one reusable visual-actor slot: a sprite id plus the paired
// ground-effect id. The scene binds render objects to these ids once at
// startup; steady-state play never allocates.
type Handle struct {
	idx   int
	state HandleState

	SpriteID int
	EffectID int
}

// EntityPool hands out handles and reclaims them. Owned exclusively by
// the Registry; nothing else may retain a handle past release.
type EntityPool struct {
	handles []Handle
	free    []int
}

func NewEntityPool(size int) *EntityPool {
	p := &EntityPool{
		handles: make([]Handle, size),
		free:    make([]int, 0, size),
	}
	// Hand out low indices first; push in reverse so free acts as a stack.
	for i := size - 1; i >= 0; i-- {
		p.handles[i] = Handle{idx: i, SpriteID: i, EffectID: i}
		p.free = append(p.free, i)
	}
	return p
}

func (p *EntityPool) Acquire() (*Handle, error) {
	if len(p.free) == 0 {
		return nil, &protocol.CodedError{Code: protocol.ErrPoolExhausted, Msg: "no free handle; pool undersized for slot table"}
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	h := &p.handles[idx]
	h.state = HandleInUse
	return h, nil
}

func (p *EntityPool) Release(h *Handle) {
	if h == nil || h.state != HandleInUse {
		return
	}
	h.state = HandleFree
	p.free = append(p.free, h.idx)
}

func (p *EntityPool) Size() int      { return len(p.handles) }
func (p *EntityPool) FreeCount() int { return len(p.free) }
func (p *EntityPool) InUseCount() int {
	return len(p.handles) - len(p.free)
}
