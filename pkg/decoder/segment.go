package decoder

// Segment is one word's timing and score record in a segmentation.
type Segment struct {
	Word string
	SF   int // start frame
	EF   int // end frame
	LScr int32
	AScr int32
	// LBack is always 1, both on the direct backtrace and on the lattice
	// best path; no language-model back-off order is computed.
	LBack int
	Prob  int32
}

// SegIter returns a range-over-func iterator over the segmentation of the
// current best hypothesis, and reports whether a segmentation was
// available. If bestpath is enabled and the utterance is final, the lattice
// segmentation is used; otherwise the entries on the chosen backtrace are
// walked directly.
func (s *Search) SegIter() (func(yield func(Segment) bool), error) {
	idx, err := s.findExit(-1, s.final)
	if err != nil {
		return nil, err
	}
	if s.cfg.BestPath && s.final {
		lat, err := s.Lattice()
		if err != nil {
			return nil, err
		}
		return lat.segIter(idx), nil
	}
	return s.segIterDirect(idx), nil
}

// segIterDirect walks predecessors from idx and emits one Segment per entry
// on the backtrace, in forward order.
func (s *Search) segIterDirect(idx int32) func(yield func(Segment) bool) {
	type item struct {
		word string
		sf   int
		ef   int
		lscr int32
		ascr int32
	}
	var rev []item
	for i := idx; i >= 0; {
		e := s.hist.entry(i)
		predScore := 0
		predFrame := -1
		if e.pred >= 0 {
			pred := s.hist.entry(e.pred)
			predScore = int(pred.score)
			predFrame = pred.frame
		}
		if e.hasLink {
			sf := predFrame + 1
			ef := e.frame
			if sf > ef {
				sf = ef
			}
			lscr := int32(e.link.LogProb)
			ascr := int32(e.score) - int32(predScore) - lscr
			word := s.model.WordStr(e.link.WordID)
			rev = append(rev, item{word: word, sf: sf, ef: ef, lscr: lscr, ascr: ascr})
		}
		i = e.pred
	}
	return func(yield func(Segment) bool) {
		for i := len(rev) - 1; i >= 0; i-- {
			it := rev[i]
			seg := Segment{Word: it.word, SF: it.sf, EF: it.ef, LScr: it.lscr, AScr: it.ascr, LBack: 1, Prob: 0}
			if !yield(seg) {
				return
			}
		}
	}
}

// segIter walks the lattice's best path (see [Lattice.bestPathNodes]) and
// emits one Segment per node on it, in forward order.
func (l *Lattice) segIter(_ int32) func(yield func(Segment) bool) {
	return func(yield func(Segment) bool) {
		for _, node := range l.bestPathNodes() {
			seg := Segment{
				Word:  node.Word,
				SF:    node.StartFrame,
				EF:    node.LastEnd,
				LScr:  0,
				AScr:  int32(node.BestExit),
				LBack: 1,
			}
			if !yield(seg) {
				return
			}
		}
	}
}
