package decoder

import "errors"

// Sentinel errors returned by Search operations. Callers should compare with
// [errors.Is] rather than matching on message text.
var (
	// ErrUnknownFSG reports that no grammar is registered under a requested
	// name. [fsg.Manager.Select] itself returns false in that case; callers
	// such as the stream server wrap this error.
	ErrUnknownFSG = errors.New("decoder: unknown fsg name")

	// ErrNoActiveFSG is returned by Reinit when no grammar has been selected.
	ErrNoActiveFSG = errors.New("decoder: no fsg selected")

	// ErrNoHypothesis is returned by Hyp/SegIter when no history entry
	// reaches a qualifying frame (and, if final was requested, the FSG final
	// state).
	ErrNoHypothesis = errors.New("decoder: no hypothesis available")

	// ErrLatticeConstruction is returned by Lattice when a start or end node
	// cannot be synthesised from the history table.
	ErrLatticeConstruction = errors.New("decoder: lattice construction failed")

	// ErrFrameUnderflow is not returned by any function in this package;
	// [Search.Step] reports a missing frame as described on Step.
	ErrFrameUnderflow = errors.New("decoder: no frame available")
)

// InvariantError reports corruption of a core decoder invariant (e.g. the
// active-HMM count exceeding the lextree's pnode count). It is the single
// case in this package where continuing would silently produce wrong output
// rather than a missing hypothesis, so it is surfaced as a distinct type
// instead of a sentinel — callers that want to treat it as fatal can type-
// assert for it, but the package never panics on account of it.
type InvariantError struct {
	// Op names the stage that detected the corruption (e.g. "hmm_eval").
	Op string
	// Detail is a human-readable description of the violated invariant.
	Detail string
}

func (e *InvariantError) Error() string {
	return "decoder: invariant violated in " + e.Op + ": " + e.Detail
}
