// Package acoustic defines the acoustic scorer abstraction consumed by the
// decoder core: given the current frame's feature vector, produce a
// per-senone log-probability score.
package acoustic

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// Scorer computes senone scores for one frame at a time.
type Scorer interface {
	// NSenone returns the total number of senones the acoustic model can
	// score.
	NSenone() int

	// AllSenoneScored reports whether this scorer always computes every
	// senone's score regardless of activation, in which case the frame
	// engine's senone-activation sub-stage is skipped.
	AllSenoneScored() bool

	// ActivateSenone marks senone id as needed for the next Score call. A
	// no-op if AllSenoneScored is true.
	ActivateSenone(id int32)

	// Score computes senone scores for the current frame and returns the
	// per-senone score vector (indexed by senone id, length NSenone).
	// Clears any pending activation state for the next frame.
	Score() ([]dtype.LogProb, error)
}
