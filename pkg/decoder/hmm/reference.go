package hmm

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// refContext holds the shared, read-only tables bound by ContextInit: a
// left-to-right transition matrix per CI phone (tmat[phone][from][to], in
// log domain, dtype.LogZero for disallowed transitions) and the senone
// sequence (one senone id per emitting state) per CI phone.
type refContext struct {
	nEmitState int
	tmat       [][][]dtype.LogProb
	sseq       [][]int32
	senScores  []dtype.LogProb
}

// RefEvaluator is a reference left-to-right (Bakis topology) Viterbi
// evaluator: no state may be skipped backward, and [Instance.OutScore] is the
// score of the final emitting state (there is no separate non-emitting exit
// state).
//
// It exists so that pkg/decoder's own tests can exercise real beam-search
// dynamics without a live acoustic model, mirroring the same role the
// teacher's mock provider implementations play for their collaborators.
type RefEvaluator struct {
	ctx *refContext
}

// NewRefEvaluator creates an uninitialized reference evaluator; call
// ContextInit before creating instances.
func NewRefEvaluator() *RefEvaluator {
	return &RefEvaluator{ctx: &refContext{}}
}

var _ Evaluator = (*RefEvaluator)(nil)

func (e *RefEvaluator) ContextInit(nEmitState int, tmat [][][]dtype.LogProb, sseq [][]int32) {
	e.ctx.nEmitState = nEmitState
	e.ctx.tmat = tmat
	e.ctx.sseq = sseq
}

func (e *RefEvaluator) SetSenScores(scores []dtype.LogProb) {
	e.ctx.senScores = scores
}

func (e *RefEvaluator) NewInstance(sseqIdx int) Instance {
	n := e.ctx.nEmitState
	inst := &refInstance{
		ctx:          e.ctx,
		sseqIdx:      sseqIdx,
		state:        make([]dtype.LogProb, n),
		hist:         make([]int32, n),
		frame:        -1,
		inScore:      dtype.LogZero,
		outScore:     dtype.LogZero,
		best:         dtype.LogZero,
		pendingScore: dtype.LogZero,
	}
	for i := range inst.state {
		inst.state[i] = dtype.LogZero
		inst.hist[i] = -1
	}
	return inst
}

// refInstance is one active instantiation of a left-to-right phone HMM.
type refInstance struct {
	ctx     *refContext
	sseqIdx int

	state []dtype.LogProb // per-emitting-state best score, this frame
	hist  []int32         // per-emitting-state backpointer id

	inScore      dtype.LogProb
	inBP         int32
	pendingScore dtype.LogProb
	pendingBP    int32
	pendingValid bool

	best     dtype.LogProb
	outScore dtype.LogProb
	outHist  int32
	frame    int
}

var _ Instance = (*refInstance)(nil)

func (h *refInstance) BestScore() dtype.LogProb  { return h.best }
func (h *refInstance) InScore() dtype.LogProb    { return h.inScore }
func (h *refInstance) OutScore() dtype.LogProb   { return h.outScore }
func (h *refInstance) OutHistory() int32         { return h.outHist }
func (h *refInstance) Frame() int                { return h.frame }

// Enter injects an arrival at state 0, to be applied on the next Eval call.
// frame is advisory (the frame the caller intends this arrival to land in);
// Enter calls always arrive in a single burst between two Eval calls, so
// pending-entry de-duplication only needs to track "is there a pending
// entry yet", not match frame numbers — keeping the best of any prior
// pending entry in the same burst.
func (h *refInstance) Enter(score dtype.LogProb, bp int32, frame int) {
	if !h.pendingValid || score > h.pendingScore {
		h.pendingScore = score
		h.pendingBP = bp
		h.pendingValid = true
	}
}

// Eval advances the HMM by one frame: applies the pending entry (if any) to
// state 0, propagates every emitting state forward through the transition
// matrix using the currently bound senone scores, and updates the exit
// (output) score from the last emitting state's score.
func (h *refInstance) Eval() {
	tmat := h.ctx.tmat[h.sseqIdx]
	sseq := h.ctx.sseq[h.sseqIdx]
	n := len(h.state)

	next := make([]dtype.LogProb, n)
	nextHist := make([]int32, n)
	for i := range next {
		next[i] = dtype.LogZero
		nextHist[i] = -1
	}

	for from := 0; from < n; from++ {
		if h.state[from] <= dtype.LogZero {
			continue
		}
		for to := 0; to < n; to++ {
			tp := tmat[from][to]
			if tp <= dtype.LogZero {
				continue
			}
			cand := h.state[from].Add(tp)
			if cand > next[to] {
				next[to] = cand
				nextHist[to] = h.hist[from]
			}
		}
	}

	if h.pendingValid && h.pendingScore > dtype.LogZero && h.pendingScore > next[0] {
		next[0] = h.pendingScore
		nextHist[0] = h.pendingBP
		h.inScore = h.pendingScore
		h.inBP = h.pendingBP
	}

	best := dtype.LogZero
	for i, sc := range next {
		if sc <= dtype.LogZero {
			continue
		}
		senID := sseq[i]
		scored := sc.Add(h.ctx.senScores[senID])
		next[i] = scored
		if scored > best {
			best = scored
		}
	}

	h.state = next
	h.hist = nextHist
	h.best = best
	h.outScore = next[n-1]
	h.outHist = nextHist[n-1]
	h.frame++
	h.pendingValid = false
}

// SenoneActive appends the senone ids referenced by any state currently
// carrying a non-LogZero score.
func (h *refInstance) SenoneActive(active []int32) []int32 {
	sseq := h.ctx.sseq[h.sseqIdx]
	for i, sc := range h.state {
		if sc > dtype.LogZero {
			active = append(active, sseq[i])
		}
	}
	return active
}
