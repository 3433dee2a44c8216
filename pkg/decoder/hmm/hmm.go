// Package hmm defines the phonetic HMM evaluator abstraction consumed by
// the decoder core, plus a reference left-to-right Viterbi implementation.
// The decoder core treats an HMM instance as opaque: it enters scores,
// triggers evaluation, and reads back the four scalars a beam-search step
// needs, never touching transition matrices or state indices directly.
package hmm

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// Instance is a single active HMM (one instantiation of a phone model,
// bound to a specific senone sequence) as seen by the decoder core.
type Instance interface {
	// BestScore returns the best (state-max) Viterbi score reached so far.
	BestScore() dtype.LogProb
	// InScore returns the score most recently entered at the initial state.
	InScore() dtype.LogProb
	// OutScore returns the score leaving the model's final state — the exit
	// score used for phone/word beam comparisons.
	OutScore() dtype.LogProb
	// OutHistory returns the backpointer id associated with the path
	// currently occupying the final state.
	OutHistory() int32
	// Frame returns the frame index this instance was last evaluated for.
	Frame() int

	// Enter injects score as a new arrival at the initial state, tagging it
	// with bp (a backpointer/history id) and frame. Only takes effect if
	// score improves on whatever is already entering that state this frame.
	Enter(score dtype.LogProb, bp int32, frame int)

	// Eval runs one Viterbi step through the model's states using the senone
	// scores currently bound by [Evaluator.SetSenScores], advancing Frame()
	// by one.
	Eval()

	// SenoneActive appends to active every senone id this instance's states
	// require for the next Eval, when the acoustic model is not scoring
	// every senone unconditionally.
	SenoneActive(active []int32) []int32
}

// Evaluator constructs and drives [Instance]s sharing a common acoustic
// context (transition matrices, senone sequences) for one utterance.
type Evaluator interface {
	// ContextInit binds the transition-probability tables and per-phone
	// senone sequences used by every Instance created afterward.
	ContextInit(nEmitState int, tmat [][][]dtype.LogProb, sseq [][]int32)

	// SetSenScores binds the per-senone acoustic score vector for the frame
	// about to be evaluated; every subsequent Instance.Eval call in that
	// frame reads from this vector.
	SetSenScores(scores []dtype.LogProb)

	// NewInstance creates an Instance for the CI phone identified by
	// sseqIdx (an index into the tables passed to ContextInit).
	NewInstance(sseqIdx int) Instance
}
