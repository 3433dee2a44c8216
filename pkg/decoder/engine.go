package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fsgdecoder/core/pkg/decoder/acoustic"
	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
	"github.com/fsgdecoder/core/pkg/decoder/hmm"
	"github.com/fsgdecoder/core/pkg/decoder/lextree"
)

// Recorder receives observability data points emitted by a [Search] without
// this package importing a metrics library itself. Implementations must be
// safe to call from the single goroutine that drives Step; Search never
// calls a Recorder method concurrently.
type Recorder interface {
	RecordStepLatency(d time.Duration)
	RecordActivePNodes(n int)
	RecordHMMEval(n int)
	RecordBeamFactor(f float64)
	RecordLatticeSize(nodes, links int)
	RecordHypLength(words int)
}

// Config carries the beam-search and grammar-augmentation parameters a
// Search is constructed with.
type Config struct {
	Beam           dtype.LogProb
	PBeam          dtype.LogProb
	WBeam          dtype.LogProb
	MaxHMMPerFrame int
	LW             float64
	PIP            dtype.LogProb
	WIP            dtype.LogProb
	SilProb        dtype.LogProb
	FillProb       dtype.LogProb
	AScale         float64
	BestPath       bool
	FSGUseFiller   bool
	FSGUseAltPron  bool
}

// Option configures a Search at construction time.
type Option func(*Search)

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(s *Search) { s.rec = r }
}

// WithLogger attaches a structured logger; a discarding logger is used if
// none is supplied.
func WithLogger(l *slog.Logger) Option {
	return func(s *Search) { s.log = l }
}

// PhoneResolver resolves a dictionary pronunciation into a CI-phone chain
// and provides the acoustic model index for each phone. It is the seam
// through which a real acoustic model's phone set is plugged in.
type PhoneResolver interface {
	Phones(d dict.Dictionary, wid dtype.WordID) []dtype.CIPhoneID
	SseqIndex(ph dtype.CIPhoneID) int
	NPhone() int
	SilencePhone() dtype.CIPhoneID
	NEmitState() int
	TMat() [][][]dtype.LogProb
	SSeq() [][]int32
}

// Search is the FSM-constrained Viterbi beam-search decoder core: it owns
// the HMM context, history table, lextree, and both active sets for one
// utterance stream, and exposes Start/Step/Finish plus hypothesis and
// lattice extraction.
type Search struct {
	cfg  Config
	rec  Recorder
	log  *slog.Logger

	acmod acoustic.Scorer
	eval  hmm.Evaluator
	dict  dict.Dictionary
	phone PhoneResolver

	fsgSet *fsg.Manager
	model  *fsg.Model
	tree   *lextree.Tree

	hist *history

	active    [2]activeSet
	cur, next int

	beamFactor float64
	beam, pbeam, wbeam dtype.LogProb

	frame     int
	bestscore dtype.LogProb
	final     bool

	nHMMEval int

	lat        *Lattice
	latFrame   int
	latValid   bool
}

// New constructs a Search bound to acmod (acoustic scorer), eval (HMM
// evaluator), d (dictionary), and phone (phone-resolution collaborator),
// with the given fsg set manager supplying grammars.
func New(cfg Config, acmod acoustic.Scorer, eval hmm.Evaluator, d dict.Dictionary, phone PhoneResolver, fsgSet *fsg.Manager, opts ...Option) *Search {
	s := &Search{
		cfg:    cfg,
		acmod:  acmod,
		eval:   eval,
		dict:   d,
		phone:  phone,
		fsgSet: fsgSet,
		hist:   newHistory(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.eval.ContextInit(phone.NEmitState(), phone.TMat(), phone.SSeq())
	return s
}

// Reinit rebuilds the lextree from the currently selected FSG and rebinds
// the history table to the new (fsg, dict) pair. Returns [ErrNoActiveFSG]
// if no grammar has been selected.
func (s *Search) Reinit() error {
	model, name := s.fsgSet.Selected()
	if model == nil {
		return ErrNoActiveFSG
	}
	builder := &lextree.Builder{
		Dict:      s.dict,
		Evaluator: s.eval,
		PhoneSeq: func(wid dtype.WordID) []dtype.CIPhoneID {
			return s.phone.Phones(s.dict, wid)
		},
		SseqIndex: s.phone.SseqIndex,
		WIP:       s.cfg.WIP,
		PIP:       s.cfg.PIP,
		NPhone:    s.phone.NPhone(),
	}
	s.tree = builder.Build(model)
	s.model = model
	s.hist.setFSG(model, s.dict)
	s.log.Info("decoder: reinit", "fsg", name, "npnode", s.tree.NPNode())
	return nil
}

// Free releases the lextree and detaches the history from the active FSG.
// Must be called before the currently selected FSG is removed from the set
// manager.
func (s *Search) Free() {
	s.tree = nil
	s.model = nil
	s.hist.setFSG(nil, nil)
}

// Start begins a new utterance: resets beams, the history table, and both
// active sets, then seeds a sentinel history entry and runs the initial
// null closure and cross-word expansion from the FSG's start state.
func (s *Search) Start() error {
	if s.tree == nil || s.model == nil {
		return ErrNoActiveFSG
	}
	s.beamFactor = 1.0
	s.beam, s.pbeam, s.wbeam = s.cfg.Beam, s.cfg.PBeam, s.cfg.WBeam

	s.hist.uttStart()
	s.final = false
	s.frame = -1
	s.bestscore = 0
	s.nHMMEval = 0
	s.active[0].reset()
	s.active[1].reset()
	s.cur, s.next = 0, 1
	s.latValid = false

	silCI := s.phone.SilencePhone()
	sentinel := s.hist.add(false, fsg.Link{}, -1, 0, -1, silCI, dtype.AllContexts())

	s.nullClosure(int(sentinel), int(sentinel)+1)
	s.hist.endFrame()
	s.crossWord(int(sentinel), int(sentinel)+1)
	s.hist.endFrame()

	s.active[s.cur], s.active[s.next] = s.active[s.next], s.active[s.cur]
	s.active[s.next].reset()
	s.frame = 0
	return nil
}

// Step advances the decode by one acoustic frame. It returns (false, nil)
// without changing any state when the acoustic scorer reports zero senones,
// and (true, nil) after successfully processing one frame. A scorer that has
// no frame left to score is not detected up front: its Score error is
// returned, wrapped.
func (s *Search) Step() (bool, error) {
	t0 := time.Now()
	if s.acmod.NSenone() == 0 {
		return false, nil
	}

	// a. Senone activation.
	if !s.acmod.AllSenoneScored() {
		for _, n := range s.active[s.cur].nodes {
			active := n.HMM.SenoneActive(nil)
			for _, id := range active {
				s.acmod.ActivateSenone(id)
			}
		}
	}

	// b. Acoustic scoring.
	scores, err := s.acmod.Score()
	if err != nil {
		return false, fmt.Errorf("decoder: score frame %d: %w", s.frame, err)
	}
	s.eval.SetSenScores(scores)

	// c. HMM evaluation & dynamic beam adaptation.
	bpidxStart := s.hist.nEntries()
	best := dtype.LogZero
	for _, n := range s.active[s.cur].nodes {
		n.HMM.Eval()
		s.nHMMEval++
		if n.HMM.BestScore() > best {
			best = n.HMM.BestScore()
		}
	}
	s.bestscore = best
	n := s.active[s.cur].len()

	if s.cfg.MaxHMMPerFrame > 0 && n > s.cfg.MaxHMMPerFrame {
		s.beamFactor *= 0.9
		if s.beamFactor < 0.1 {
			s.beamFactor = 0.1
		}
	} else {
		s.beamFactor = 1.0
	}
	s.beam = scale(s.cfg.Beam, s.beamFactor)
	s.pbeam = scale(s.cfg.PBeam, s.beamFactor)
	s.wbeam = scale(s.cfg.WBeam, s.beamFactor)

	if s.tree != nil && n > s.tree.NPNode() {
		return false, &InvariantError{Op: "hmm_eval", Detail: "active pnode count exceeds lextree size"}
	}

	// d. Prune & propagate.
	thresh := s.bestscore.Add(s.beam)
	phoneThresh := s.bestscore.Add(s.pbeam)
	wordThresh := s.bestscore.Add(s.wbeam)

	for _, node := range s.active[s.cur].nodes {
		if node.HMM.BestScore() < thresh {
			continue
		}
		if !containsNode(s.active[s.next].nodes, node) {
			s.active[s.next].add(node)
		}

		exitScore := node.HMM.OutScore()
		if !node.Leaf && exitScore >= phoneThresh {
			for c := node.Child; c != nil; c = c.Sibling {
				newScore := exitScore.Add(c.LogS2Prob)
				if newScore >= thresh && newScore > c.HMM.InScore() {
					c.HMM.Enter(newScore, node.HMM.OutHistory(), s.frame+1)
					if !containsNode(s.active[s.next].nodes, c) {
						s.active[s.next].add(c)
					}
				}
			}
		}
		if node.Leaf && exitScore >= wordThresh {
			rc := node.Ctxt
			if s.model.IsFiller(node.Link.WordID) || s.singlePhone(node.Link.WordID) {
				rc = dtype.AllContexts()
			}
			// Word exits are stamped with the frame just evaluated (s.frame,
			// pre-increment), not s.frame+1: buildLattice's end-node search
			// looks for entries at finalFrame-1, where finalFrame is the
			// post-increment frame count once the utterance is finished.
			s.hist.add(true, node.Link, s.frame, exitScore, node.HMM.OutHistory(), node.CIExt, rc)
		}
	}
	s.hist.endFrame()

	// e. Null-transition closure.
	s.nullClosure(bpidxStart, s.hist.nEntries())
	s.hist.endFrame()

	// f. Cross-word transitions.
	s.crossWord(bpidxStart, s.hist.nEntries())
	s.hist.endFrame()

	// g. Deactivation & swap.
	s.active[s.cur].reset()
	s.cur, s.next = s.next, s.cur
	s.active[s.next].reset()
	s.frame++

	if s.rec != nil {
		s.rec.RecordStepLatency(time.Since(t0))
		s.rec.RecordActivePNodes(s.active[s.cur].len())
		s.rec.RecordHMMEval(n)
		s.rec.RecordBeamFactor(s.beamFactor)
	}
	return true, nil
}

func containsNode(nodes []*lextree.PNode, n *lextree.PNode) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}

func (s *Search) singlePhone(wid dtype.WordID) bool {
	return len(s.phone.Phones(s.dict, wid)) == 1
}

func scale(beam dtype.LogProb, factor float64) dtype.LogProb {
	return dtype.LogProb(float64(beam) * factor)
}

// nullClosure expands null transitions for every history entry added in
// [from, to), appending new entries at the same frame. The FSG's null
// closure is precomputed so a single hop suffices.
func (s *Search) nullClosure(from, to int) {
	for i := from; i < to; i++ {
		e := s.hist.entry(int32(i))
		src := s.hist.destState(int32(i))
		for dest, link := range s.model.NullTransFrom(src) {
			newScore := e.score.Add(link.LogProb)
			if newScore < s.bestscore.Add(s.wbeam) {
				continue
			}
			nlink := fsg.Link{WordID: dtype.NoWord, LogProb: link.LogProb, Dest: dest}
			s.hist.add(true, nlink, e.frame, newScore, int32(i), e.lc, e.rc)
		}
	}
}

// crossWord activates lextree roots reachable from every history entry
// added in [from, to), including null-propagated ones.
func (s *Search) crossWord(from, to int) {
	thresh := s.bestscore.Add(s.beam)
	for i := from; i < to; i++ {
		e := s.hist.entry(int32(i))
		d := s.hist.destState(int32(i))
		for _, root := range s.tree.NRoot(d) {
			if !root.Ctxt.Contains(e.lc) {
				continue
			}
			if !e.rc.Contains(root.CIExt) {
				continue
			}
			newScore := e.score.Add(root.LogS2Prob)
			if newScore >= thresh && newScore > root.HMM.InScore() {
				root.HMM.Enter(newScore, int32(i), s.frame+1)
				if !containsNode(s.active[s.next].nodes, root) {
					s.active[s.next].add(root)
				}
			}
		}
	}
}

// Finish deactivates every pnode in both active sets and marks the
// utterance final. It logs summary statistics but performs no further
// state mutation.
func (s *Search) Finish() {
	s.active[s.cur].reset()
	s.active[s.next].reset()
	s.final = true
	if s.tree != nil && s.nHMMEval > s.tree.NPNode()*(s.frame+1) {
		s.log.Warn("decoder: n_hmm_eval exceeds sanity bound", "n_hmm_eval", s.nHMMEval, "frame", s.frame)
	}
	s.log.Info("decoder: finish", "frames", s.frame, "n_hmm_eval", s.nHMMEval, "beam_factor", s.beamFactor)
}

// Prob returns the current best score, i.e. bestscore for the most
// recently completed frame.
func (s *Search) Prob() int32 {
	return int32(s.bestscore)
}

// Hyp returns the current best hypothesis string and its score. Once the
// utterance is final, only entries reaching the FSG final state qualify.
// Returns [ErrNoHypothesis] if no qualifying entry exists.
func (s *Search) Hyp() (string, int32, error) {
	idx, err := s.findExit(-1, s.final)
	if err != nil {
		return "", 0, err
	}
	if s.cfg.BestPath && s.final {
		lat, err := s.Lattice()
		if err != nil {
			return "", 0, err
		}
		return lat.BestPathHyp(idx, s.cfg.AScale)
	}
	words := s.walkWords(idx)
	hyp := strings.Join(words, " ")
	if s.rec != nil {
		s.rec.RecordHypLength(len(words))
	}
	return hyp, int32(s.hist.entry(idx).score), nil
}

// walkWords walks predecessors from idx, skipping null/filler entries, and
// returns the surviving words in forward order.
func (s *Search) walkWords(idx int32) []string {
	var rev []string
	for i := idx; i >= 0; {
		e := s.hist.entry(i)
		if e.hasLink && e.link.WordID >= 0 && !s.model.IsFiller(e.link.WordID) {
			rev = append(rev, s.model.WordStr(e.link.WordID))
		}
		i = e.pred
	}
	out := make([]string, len(rev))
	for i, w := range rev {
		out[len(rev)-1-i] = w
	}
	return out
}

// findExit scans backpointers to locate the highest-scoring entry in the
// target frame (or the last produced frame if frame == -1), optionally
// restricted to entries whose transition destination is the FSG final
// state.
func (s *Search) findExit(frame int, final bool) (int32, error) {
	target := frame
	if target < 0 {
		if s.hist.nEntries() == 0 {
			return -1, ErrNoHypothesis
		}
		target = s.hist.entry(int32(s.hist.nEntries() - 1)).frame
	}
	best := int32(-1)
	bestScore := dtype.LogZero
	for i := s.hist.nEntries() - 1; i >= 0; i-- {
		e := s.hist.entry(int32(i))
		if e.frame != target {
			if e.frame < target {
				break
			}
			continue
		}
		if final {
			if !e.hasLink || e.link.Dest != s.model.FinalState() {
				continue
			}
		}
		if e.score > bestScore {
			bestScore = e.score
			best = int32(i)
		}
	}
	if best < 0 {
		return -1, ErrNoHypothesis
	}
	return best, nil
}
