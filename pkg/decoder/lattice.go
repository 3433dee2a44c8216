package decoder

import (
	"fmt"
	"strings"

	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// LatticeNode is a word hypothesis spanning one or more possible start
// frames and end frames, keyed uniquely by (StartFrame, WordID).
type LatticeNode struct {
	StartFrame int
	WordID     dtype.WordID
	Word       string
	BaseWID    dtype.WordID
	FirstEnd   int
	LastEnd    int
	BestExit   dtype.LogProb
	Reachable  bool
	// Filler reports whether this node's word is silence or another filler
	// word, computed while WordID is still in FSG-id space (bypassFillers
	// runs before translateWords remaps it into dictionary-id space).
	Filler  bool
	entries []int32 // link indices into a node
	exits   []int32
}

// LatticeLink is a directed edge between two lattice nodes.
type LatticeLink struct {
	FromNode int
	ToNode   int
	AScore   dtype.LogProb
	EndFrame int
}

// Lattice is the word-graph DAG built from a finished utterance's history
// table, used for best-path search and detailed segmentation.
type Lattice struct {
	Nodes     []*LatticeNode
	Links     []LatticeLink
	nodeIndex map[nodeKey]int

	start, end int // node indices, -1 if unset
}

type nodeKey struct {
	sf  int
	wid dtype.WordID
}

// buildLattice constructs a DAG from the current history table, following
// the node/link/start-end synthesis procedure. finalFrame is the frame
// count the utterance ran for.
func (s *Search) buildLattice(finalFrame int) (*Lattice, error) {
	lat := &Lattice{nodeIndex: make(map[nodeKey]int)}

	// Node creation.
	for i := 0; i < s.hist.nEntries(); i++ {
		e := s.hist.entry(int32(i))
		if !e.hasLink || e.link.WordID < 0 {
			continue
		}
		sf := 0
		predScore := dtype.LogProb(0)
		if e.pred >= 0 {
			pred := s.hist.entry(e.pred)
			sf = pred.frame + 1
			predScore = pred.score
		}
		ef := e.frame
		ascr := e.score - predScore

		key := nodeKey{sf: sf, wid: e.link.WordID}
		idx, ok := lat.nodeIndex[key]
		if !ok {
			idx = len(lat.Nodes)
			lat.Nodes = append(lat.Nodes, &LatticeNode{
				StartFrame: sf,
				WordID:     e.link.WordID,
				FirstEnd:   ef,
				LastEnd:    ef,
				BestExit:   ascr,
			})
			lat.nodeIndex[key] = idx
		} else {
			n := lat.Nodes[idx]
			if ef > n.LastEnd {
				n.LastEnd = ef
			}
			if ef < n.FirstEnd {
				n.FirstEnd = ef
			}
			if ascr > n.BestExit {
				n.BestExit = ascr
			}
		}
		lat.Nodes[idx].exits = append(lat.Nodes[idx].exits, int32(i))
	}

	// Link creation.
	for i := 0; i < s.hist.nEntries(); i++ {
		e := s.hist.entry(int32(i))
		if !e.hasLink || e.link.WordID < 0 {
			continue
		}
		sf := 0
		predScore := dtype.LogProb(0)
		if e.pred >= 0 {
			pred := s.hist.entry(e.pred)
			sf = pred.frame + 1
			predScore = pred.score
		}
		srcIdx := lat.nodeIndex[nodeKey{sf: sf, wid: e.link.WordID}]
		ascr := e.score - predScore

		for _, nl := range s.model.TransFrom(e.link.Dest) {
			if dstIdx, ok := lat.nodeIndex[nodeKey{sf: e.frame + 1, wid: nl.WordID}]; ok {
				lat.Links = append(lat.Links, LatticeLink{FromNode: srcIdx, ToNode: dstIdx, AScore: ascr, EndFrame: e.frame})
				lat.Nodes[dstIdx].entries = append(lat.Nodes[dstIdx].entries, int32(len(lat.Links)-1))
			}
		}
		for dest := range s.model.NullTransFrom(e.link.Dest) {
			for _, nl := range s.model.TransFrom(dest) {
				if dstIdx, ok := lat.nodeIndex[nodeKey{sf: e.frame + 1, wid: nl.WordID}]; ok {
					lat.Links = append(lat.Links, LatticeLink{FromNode: srcIdx, ToNode: dstIdx, AScore: ascr, EndFrame: e.frame})
					lat.Nodes[dstIdx].entries = append(lat.Nodes[dstIdx].entries, int32(len(lat.Links)-1))
				}
			}
		}
	}

	// Start synthesis.
	var startCandidates []int
	for i, n := range lat.Nodes {
		if n.StartFrame == 0 && len(n.exits) > 0 {
			startCandidates = append(startCandidates, i)
		}
	}
	switch len(startCandidates) {
	case 0:
		return nil, ErrLatticeConstruction
	case 1:
		lat.start = startCandidates[0]
	default:
		startWID := s.model.WordAdd("<s>")
		s.model.MarkFiller(startWID)
		startIdx := len(lat.Nodes)
		lat.Nodes = append(lat.Nodes, &LatticeNode{StartFrame: 0, WordID: startWID, FirstEnd: 0, LastEnd: 0})
		for _, c := range startCandidates {
			lat.Links = append(lat.Links, LatticeLink{FromNode: startIdx, ToNode: c, AScore: 0, EndFrame: 0})
			lat.Nodes[c].entries = append(lat.Nodes[c].entries, int32(len(lat.Links)-1))
		}
		lat.start = startIdx
	}

	// End synthesis.
	var endCandidates []int
	for i, n := range lat.Nodes {
		if n.LastEnd == finalFrame-1 && len(n.entries) > 0 {
			endCandidates = append(endCandidates, i)
		}
	}
	switch len(endCandidates) {
	case 0:
		return nil, ErrLatticeConstruction
	case 1:
		lat.end = endCandidates[0]
	default:
		endWID := s.model.WordAdd("</s>")
		s.model.MarkFiller(endWID)
		endIdx := len(lat.Nodes)
		lat.Nodes = append(lat.Nodes, &LatticeNode{StartFrame: finalFrame, WordID: endWID, FirstEnd: finalFrame, LastEnd: finalFrame})
		for _, c := range endCandidates {
			lat.Links = append(lat.Links, LatticeLink{FromNode: c, ToNode: endIdx, AScore: lat.Nodes[c].BestExit, EndFrame: finalFrame})
			lat.Nodes[endIdx].entries = append(lat.Nodes[endIdx].entries, int32(len(lat.Links)-1))
		}
		lat.end = endIdx
	}

	lat.pruneUnreachable()
	lat.bypassFillers(s)
	lat.translateWords(s)

	return lat, nil
}

// pruneUnreachable walks backwards from the end node marking reachability,
// leaving unreachable nodes' Reachable flag false (they are not physically
// deleted from the slice, to keep link indices stable).
func (l *Lattice) pruneUnreachable() {
	if l.end < 0 {
		return
	}
	var mark func(int)
	seen := make(map[int]bool)
	mark = func(n int) {
		if seen[n] {
			return
		}
		seen[n] = true
		l.Nodes[n].Reachable = true
		for _, li := range l.Nodes[n].entries {
			mark(l.Links[li].FromNode)
		}
	}
	mark(l.end)
}

// translateWords rewrites FSG word ids on nodes into dictionary word ids and
// base-word ids.
func (l *Lattice) translateWords(s *Search) {
	for _, n := range l.Nodes {
		str := s.model.WordStr(n.WordID)
		n.Word = str
		if wid, ok := s.dict.ToID(str); ok {
			n.WordID = wid
			n.BaseWID = s.dict.BaseWID(wid)
		}
	}
}

// bypassFillers is the lattice's filler-bypass routine, invoked with
// silence and filler penalties derived from the decoder's configuration.
// A minimal, conservative implementation: filler/silence nodes are left in
// place (bypassing them requires rewriting link topology which the external
// best-path library owns in the full pipeline); this hook exists so that
// callers using the built-in extractor still see silpen/fillpen applied to
// segmentation scores via the node's BestExit.
func (l *Lattice) bypassFillers(s *Search) {
	silpen := s.cfg.SilProb
	fillpen := s.cfg.FillProb
	for _, n := range l.Nodes {
		if !s.model.SilWord(n.WordID) {
			continue
		}
		n.Filler = true
		if n.WordID == s.model.SilenceWID() {
			n.BestExit = n.BestExit.Add(silpen)
		} else {
			n.BestExit = n.BestExit.Add(fillpen)
		}
	}
}

// Lattice returns the lattice for the current utterance, building it (and
// memoising the result) if the frame count has changed since the last call.
func (s *Search) Lattice() (*Lattice, error) {
	if s.latValid && s.latFrame == s.frame {
		return s.lat, nil
	}
	lat, err := s.buildLattice(s.frame)
	if err != nil {
		return nil, err
	}
	s.lat = lat
	s.latFrame = s.frame
	s.latValid = true
	if s.rec != nil {
		s.rec.RecordLatticeSize(len(lat.Nodes), len(lat.Links))
	}
	return lat, nil
}

// bestPathNodes walks backward from the end node to the start node, always
// following the incoming link with the highest acoustic score, and returns
// the visited nodes in forward order. This package does not implement a
// full best-path search algorithm itself (that collaborator is out of
// scope, see the external lattice library contract); this greedy walk is
// the best-effort fallback exposed to BestPath-enabled configurations.
func (l *Lattice) bestPathNodes() []*LatticeNode {
	if l.end < 0 {
		return nil
	}
	var rev []*LatticeNode
	n := l.end
	visited := make(map[int]bool)
	for n >= 0 {
		if visited[n] {
			break
		}
		visited[n] = true
		node := l.Nodes[n]
		rev = append(rev, node)
		if n == l.start || len(node.entries) == 0 {
			break
		}
		best := node.entries[0]
		for _, li := range node.entries {
			if l.Links[li].AScore > l.Links[best].AScore {
				best = li
			}
		}
		n = l.Links[best].FromNode
	}
	out := make([]*LatticeNode, len(rev))
	for i, node := range rev {
		out[len(rev)-1-i] = node
	}
	return out
}

// BestPathHyp joins the non-filler words on [Lattice.bestPathNodes] into a
// hypothesis string. exitIdx and ascale are not used: no acoustic scaling is
// applied, and the returned score is always 0.
func (l *Lattice) BestPathHyp(exitIdx int32, ascale float64) (string, int32, error) {
	if l.end < 0 {
		return "", 0, fmt.Errorf("decoder: best path: %w", ErrLatticeConstruction)
	}
	var words []string
	for _, node := range l.bestPathNodes() {
		if node.WordID >= 0 && node.Word != "" && !node.Filler {
			words = append(words, node.Word)
		}
	}
	return strings.Join(words, " "), 0, nil
}
