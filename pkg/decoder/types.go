// Package decoder implements an FSM-constrained Viterbi beam-search decoder
// core for a speech-recognition engine.
//
// Given a finite-state grammar (FSG) over words, a pronunciation dictionary,
// and a per-frame stream of acoustic scores for sub-phonetic units
// ("senones"), [Search] produces the best word sequence accepted by the FSG,
// a word lattice over the utterance, and a segmentation with per-word timing
// and scores.
//
// Acoustic model scoring, HMM topology evaluation, dictionary/FSG loading,
// lextree construction, and lattice best-path search are treated as external
// collaborators (see the acoustic, hmm, dict, fsg, and lextree sub-packages);
// this package owns only the per-frame propagation engine, the history
// table, the lattice builder, and the hypothesis/segmentation extractor.
package decoder

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// WordID identifies a word in a [dict.Dictionary] or [fsg.Model] vocabulary.
type WordID = dtype.WordID

// NoWord marks the absence of a word id (e.g. a null/ε transition).
const NoWord = dtype.NoWord

// StateID identifies a state in an [fsg.Model].
type StateID = dtype.StateID

// CIPhoneID identifies a context-independent phone.
type CIPhoneID = dtype.CIPhoneID

// LogProb is a log-domain probability or score. See [dtype.LogProb].
type LogProb = dtype.LogProb

// LogZero represents an effectively impossible score.
const LogZero = dtype.LogZero

// ContextSet is a dense bit-vector over CI-phone ids. See [dtype.ContextSet].
type ContextSet = dtype.ContextSet

// AllContexts returns the sentinel context set that admits every CI-phone.
func AllContexts() ContextSet { return dtype.AllContexts() }

// NewContextSet returns an empty context set sized to hold ids in [0, n).
func NewContextSet(n int) ContextSet { return dtype.NewContextSet(n) }
