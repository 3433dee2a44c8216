package decoder

import "github.com/fsgdecoder/core/pkg/decoder/lextree"

// activeSet is an ordered collection of pnode references active in a given
// frame. add appends unconditionally; the frame engine keeps the set
// duplicate-free by checking membership (containsNode) before each add.
type activeSet struct {
	nodes []*lextree.PNode
}

func (s *activeSet) reset() {
	s.nodes = s.nodes[:0]
}

func (s *activeSet) add(n *lextree.PNode) {
	s.nodes = append(s.nodes, n)
}

func (s *activeSet) len() int {
	return len(s.nodes)
}
