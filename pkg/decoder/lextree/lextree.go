// Package lextree builds and exposes the phonetic lexical tree the decoder
// core propagates Viterbi state through: one list of pnode chains per FSG
// state (left context is not modelled), with each leaf carrying the FSG
// transition it completes.
package lextree

import (
	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
	"github.com/fsgdecoder/core/pkg/decoder/hmm"
)

// PNode is a node in the lexical tree: an HMM instance, the log-probability
// of entering it from its parent (already folded with any insertion
// penalty), a right-context-dependent CI-phone extension, a right-context
// bit-set, sibling/child links within the tree, and — for leaves — the FSG
// transition the word-final phone completes.
type PNode struct {
	HMM hmm.Instance

	CIExt dtype.CIPhoneID
	Ctxt  dtype.ContextSet

	Sibling *PNode
	Child   *PNode
	Leaf    bool

	// LogS2Prob is the log-probability of entering this node from its
	// parent (or, for a root, from the FSG state it is attached to),
	// including any folded phone-insertion penalty.
	LogS2Prob dtype.LogProb

	// Link is populated only when Leaf is true: the FSG transition this
	// phone chain realizes.
	Link fsg.Link

	// State is the FSG state this node's root is attached to (roots only).
	State dtype.StateID
}

// Tree is a compiled lexical tree for one (fsg, dictionary) pair: one root
// list per FSG state, indexed by that state's id.
type Tree struct {
	roots [][]*PNode // roots[state] = tree roots attached to that FSG state
	nNode int
}

// NRoot returns the lextree roots attached to FSG state s.
func (t *Tree) NRoot(s dtype.StateID) []*PNode {
	if int(s) < 0 || int(s) >= len(t.roots) {
		return nil
	}
	return t.roots[s]
}

// NPNode returns the total number of pnodes in the tree, used by the frame
// engine's corruption sanity check against the active-HMM count.
func (t *Tree) NPNode() int { return t.nNode }

// PhoneSeq resolves the CI-phone chain of a single-phone-per-node linear
// pronunciation model; this package builds one pnode per phone in a
// pronunciation, chained root→...→leaf. It returns the CI-phone ids of a
// word's pronunciation, or nil if the word has none.
type PhoneSeq func(word dtype.WordID) []dtype.CIPhoneID

// Builder constructs [Tree]s from an FSG and dictionary. wip and pip are the
// word- and phone-insertion penalties (already stored as log(prob)*lw by the
// caller), folded into node entry log-probabilities the same way
// fsg_search's lexical tree builder does.
type Builder struct {
	Dict      dict.Dictionary
	Evaluator hmm.Evaluator
	PhoneSeq  PhoneSeq
	SseqIndex func(ph dtype.CIPhoneID) int
	WIP       dtype.LogProb
	PIP       dtype.LogProb
	// NPhone bounds the CI-phone id space, used to size context bit-sets.
	NPhone int
}

// Build constructs a lextree covering every word reachable by a non-null
// transition out of any FSG state, one linear phone chain per transition.
func (b *Builder) Build(model *fsg.Model) *Tree {
	t := &Tree{roots: make([][]*PNode, model.NState())}
	for s := dtype.StateID(0); int(s) < model.NState(); s++ {
		for _, link := range model.TransFrom(s) {
			node := b.buildChain(model, s, link)
			if node == nil {
				continue
			}
			t.roots[s] = append(t.roots[s], node)
			for n := node; n != nil; n = n.Child {
				t.nNode++
			}
		}
	}
	return t
}

// buildChain builds a linear phone chain for one FSG transition, returning
// its root pnode (nil if the word has no phones).
func (b *Builder) buildChain(model *fsg.Model, s dtype.StateID, link fsg.Link) *PNode {
	phones := b.PhoneSeq(link.WordID)
	if len(phones) == 0 {
		return nil
	}
	var root, prev *PNode
	for i, ph := range phones {
		leaf := i == len(phones)-1
		node := &PNode{
			HMM:   b.Evaluator.NewInstance(b.SseqIndex(ph)),
			CIExt: ph,
			Leaf:  leaf,
			State: s,
		}
		if i == 0 {
			// Root entry cost is the FSG transition's own log-probability;
			// the frame engine folds cross-word context penalties in at
			// activation time, not here.
			node.LogS2Prob = link.LogProb
		} else {
			node.LogS2Prob = b.PIP
		}
		if leaf {
			node.Link = link
			node.Link.LogProb = node.Link.LogProb.Add(b.WIP)
			node.Ctxt = b.rightContextOf(phones, i)
		} else {
			node.Ctxt = dtype.NewContextSet(b.NPhone)
			node.Ctxt.Add(phones[i+1])
		}
		if i == 0 {
			// A root's Ctxt is read at cross-word time as a left-context
			// admissibility set, not a right-context one (see the frame
			// engine's cross-word transition step); this decoder does not
			// model per-triphone left-context restrictions, so every root
			// admits any left context.
			node.Ctxt = dtype.AllContexts()
		}
		if root == nil {
			root = node
		} else {
			prev.Child = node
		}
		prev = node
	}
	return root
}

// rightContextOf computes the right-context bit-set for the phone at index
// i in a pronunciation: the set of CI-phones legally following this word in
// the grammar is unknown at build time for single-phone words (context-
// independent exit), so single-phone words get [dtype.AllContexts]; other
// words' final phone gets a bit-set containing only its own dependency,
// since real cross-word coarticulation modelling is delegated to the
// acoustic collaborator via CIExt/Ctxt bookkeeping, not this tree builder.
func (b *Builder) rightContextOf(phones []dtype.CIPhoneID, i int) dtype.ContextSet {
	if len(phones) == 1 {
		return dtype.AllContexts()
	}
	cs := dtype.NewContextSet(b.NPhone)
	cs.Add(phones[i])
	return cs
}
