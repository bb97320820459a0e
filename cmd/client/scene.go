package main

import (
	"log"

	"wildchain/internal/sim/mirror"
)

// consoleScene is the headless rendering layer: it narrates mirror and
// catch-machine activity to the log instead of drawing sprites. All
// callbacks arrive on the core loop goroutine and must not block.
type consoleScene struct {
	log *log.Logger
}

func (s *consoleScene) SpawnAdded(slot int, id string, pos mirror.Vec2, h *mirror.Handle) {
	if h == nil {
		s.log.Printf("spawn slot=%d id=%s at (%.0f,%.0f) [no visual handle]", slot, id, pos.X, pos.Y)
		return
	}
	s.log.Printf("spawn slot=%d id=%s at (%.0f,%.0f)", slot, id, pos.X, pos.Y)
}

func (s *consoleScene) SpawnRelocated(slot int, id string, pos mirror.Vec2) {
	s.log.Printf("relocate slot=%d id=%s to (%.0f,%.0f)", slot, id, pos.X, pos.Y)
}

func (s *consoleScene) SpawnCaught(slot int, id string) {
	s.log.Printf("despawn slot=%d id=%s", slot, id)
}

func (s *consoleScene) SpawnCatchFailed(slot int, id string, attempts int) {
	s.log.Printf("catch failed slot=%d id=%s attempts=%d", slot, id, attempts)
}

func (s *consoleScene) StateChanged(old, new mirror.CatchState, targetID string) {
	s.log.Printf("catch %s -> %s target=%s", old, new, targetID)
}

func (s *consoleScene) AttemptRejected(targetID, code string) {
	s.log.Printf("attempt rejected target=%s code=%s", targetID, code)
}

func (s *consoleScene) CatchReady(targetID string, dist float64) {
	s.log.Printf("in range target=%s dist=%.0fpx", targetID, dist)
}

func (s *consoleScene) CatchOutOfRange(targetID string, dist, required float64) {
	s.log.Printf("out of range target=%s dist=%.0fpx required=%.0fpx", targetID, dist, required)
}

func (s *consoleScene) VisualThrow(targetID, ball string) {
	s.log.Printf("throw %s at %s", ball, targetID)
}

func (s *consoleScene) VisualResult(targetID string, caught bool) {
	if caught {
		s.log.Printf("caught %s", targetID)
		return
	}
	s.log.Printf("missed %s", targetID)
}
