package decoder

import (
	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
)

// histEntry is one entry in the history table: the FSG transition that
// produced it (zero value for the utterance-start sentinel), the frame it
// was finalised in, the accumulated path score, the predecessor entry
// index (-1 for the sentinel), the last CI-phone on this path, and the
// right-context bit-set admissible for whatever follows.
type histEntry struct {
	hasLink bool
	link    fsg.Link
	frame   int
	score   dtype.LogProb
	pred    int32
	lc      dtype.CIPhoneID
	rc      dtype.ContextSet
}

// history is the append-only backpointer table the frame engine writes word
// exits and null-propagated entries into every frame, and the result
// extractor and lattice builder read from afterward.
type history struct {
	entries    []histEntry
	frameStart int // index of the first entry in the frame currently being finalised

	fsg  *fsg.Model
	dict dict.Dictionary

	// coalesce maps each key of the entries added since the last endFrame
	// call to the index of the best-scoring one. The key is the destination
	// state plus whether the right context is AllContexts; all other
	// right-context sets share one key.
	coalesce map[coalesceKey]int32
}

type coalesceKey struct {
	state dtype.StateID
	rcAll bool
	rcKey uint64
}

func newHistory() *history {
	return &history{coalesce: make(map[coalesceKey]int32)}
}

// reset clears the table entirely, for a fresh search handle.
func (h *history) reset() {
	h.entries = h.entries[:0]
	h.frameStart = 0
	clear(h.coalesce)
}

// uttStart clears the table for a new utterance without discarding the
// bound (fsg, dict) pair.
func (h *history) uttStart() {
	h.reset()
}

// setFSG rebinds the table to a new (fsg, dict) pair, as required after
// [fsg.Manager.Select] switches the active grammar and reinit rebuilds the
// lextree.
func (h *history) setFSG(model *fsg.Model, d dict.Dictionary) {
	h.fsg = model
	h.dict = d
}

// add appends a new entry and returns its index. Coalescing bookkeeping
// happens at endFrame, not here, and never removes an entry, so later
// entries in the same frame can still legally point at earlier ones (null
// propagation relies on this).
func (h *history) add(hasLink bool, link fsg.Link, frame int, score dtype.LogProb, pred int32, lc dtype.CIPhoneID, rc dtype.ContextSet) int32 {
	idx := int32(len(h.entries))
	h.entries = append(h.entries, histEntry{
		hasLink: hasLink,
		link:    link,
		frame:   frame,
		score:   score,
		pred:    pred,
		lc:      lc,
		rc:      rc,
	})
	return idx
}

// entry returns the stored tuple at index i.
func (h *history) entry(i int32) histEntry {
	return h.entries[i]
}

func (h *history) nEntries() int {
	return len(h.entries)
}

// endFrame finalises entries added since the previous call: for each
// coalesce key (see [coalesceKeyOf]) it records the best-scoring entry in
// h.coalesce. No entry is removed or rewritten, and readers of the table do
// not consult h.coalesce. It is idempotent — a call with no new entries
// since the last one is a no-op.
func (h *history) endFrame() {
	if h.frameStart >= len(h.entries) {
		return
	}
	clear(h.coalesce)
	for i := h.frameStart; i < len(h.entries); i++ {
		e := h.entries[i]
		key := coalesceKeyOf(e)
		if best, ok := h.coalesce[key]; ok {
			if h.entries[best].score >= e.score {
				continue
			}
		}
		h.coalesce[key] = int32(i)
	}
	h.frameStart = len(h.entries)
}

func coalesceKeyOf(e histEntry) coalesceKey {
	state := dtype.StateID(-1)
	if e.hasLink {
		state = e.link.Dest
	}
	if e.rc.IsAll() {
		return coalesceKey{state: state, rcAll: true}
	}
	return coalesceKey{state: state}
}

// destState returns the FSG state entry i's transition leads to, or the
// FSG's start state for the sentinel entry.
func (h *history) destState(i int32) dtype.StateID {
	e := h.entries[i]
	if !e.hasLink {
		return h.fsg.StartState()
	}
	return e.link.Dest
}
