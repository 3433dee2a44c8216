// Package mock provides a deterministic [acoustic.Scorer] for tests: it
// replays a fixed sequence of pre-computed per-frame score vectors instead
// of scoring real features, the same role the teacher's provider mocks play
// for their respective collaborators.
package mock

import (
	"fmt"

	"github.com/fsgdecoder/core/pkg/decoder/acoustic"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// Scorer replays Frames in order, one per Score call.
type Scorer struct {
	Frames  [][]dtype.LogProb
	nSenone int
	pos     int
	active  map[int32]bool
}

// New creates a Scorer with nSenone senones that replays frames in order.
// Every frame in frames must have length nSenone.
func New(nSenone int, frames [][]dtype.LogProb) *Scorer {
	return &Scorer{Frames: frames, nSenone: nSenone, active: make(map[int32]bool)}
}

var _ acoustic.Scorer = (*Scorer)(nil)

func (s *Scorer) NSenone() int { return s.nSenone }

func (s *Scorer) AllSenoneScored() bool { return true }

func (s *Scorer) ActivateSenone(id int32) { s.active[id] = true }

// Score returns the next queued frame's scores. Returns an error once the
// queue is exhausted, since the frame engine should never call Score more
// times than frames were fed to it.
func (s *Scorer) Score() ([]dtype.LogProb, error) {
	if s.pos >= len(s.Frames) {
		return nil, fmt.Errorf("mock: score: no more frames queued (called %d times)", s.pos+1)
	}
	f := s.Frames[s.pos]
	if len(f) != s.nSenone {
		return nil, fmt.Errorf("mock: score: frame %d has %d senones, want %d", s.pos, len(f), s.nSenone)
	}
	s.pos++
	clear(s.active)
	return f, nil
}
