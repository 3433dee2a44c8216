package streamserver

import (
	"fmt"

	"github.com/fsgdecoder/core/pkg/decoder/acoustic"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// frameScorer is an [acoustic.Scorer] fed one senone-score vector at a
// time from a connection's binary websocket frames. Unlike acoustic/mock's
// Scorer, which replays a pre-loaded queue, frameScorer holds exactly the
// most recently delivered frame: the streaming protocol calls SetFrame
// immediately before calling Search.Step, so there is never more than one
// frame in flight per connection.
type frameScorer struct {
	nSenone int
	current []dtype.LogProb
	set     bool
}

var _ acoustic.Scorer = (*frameScorer)(nil)

func newFrameScorer(nSenone int) *frameScorer {
	return &frameScorer{nSenone: nSenone}
}

func (f *frameScorer) NSenone() int { return f.nSenone }

func (f *frameScorer) AllSenoneScored() bool { return true }

func (f *frameScorer) ActivateSenone(int32) {}

// SetFrame binds the senone scores for the next Score call. len(scores)
// must equal NSenone().
func (f *frameScorer) SetFrame(scores []dtype.LogProb) error {
	if len(scores) != f.nSenone {
		return fmt.Errorf("streamserver: frame has %d senones, want %d", len(scores), f.nSenone)
	}
	f.current = scores
	f.set = true
	return nil
}

func (f *frameScorer) Score() ([]dtype.LogProb, error) {
	if !f.set {
		return nil, fmt.Errorf("streamserver: score requested before a frame was delivered")
	}
	f.set = false
	return f.current, nil
}
