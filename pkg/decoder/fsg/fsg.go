// Package fsg defines the weighted finite-state grammar model consumed by
// the decoder core: states, word-labelled transitions, and null (ε)
// transitions whose transitive closure is precomputed at load time.
package fsg

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// Link is a single FSG transition: a word (or [dtype.NoWord] for a null
// transition) with a log-probability, leading to a destination state.
type Link struct {
	WordID  dtype.WordID
	LogProb dtype.LogProb
	Dest    dtype.StateID
}

// Model is a weighted finite-state transducer over words: a set of states
// {0..NState-1}, a distinguished start and final state, and directed
// transitions each carrying a word id (or ε) and a log-probability.
//
// The transitive closure of null transitions must be precomputed before a
// Model is used by the decoder core (see [Model.Compile]); the core never
// performs repeated one-step null propagation itself.
type Model struct {
	Name       string
	nState     int
	startState dtype.StateID
	finalState dtype.StateID

	trans     map[dtype.StateID][]Link // non-null transitions by source state
	null      map[[2]dtype.StateID]Link // unique null transition per (s,d)
	compiled  bool

	wordStr  []string
	strWord  map[string]dtype.WordID
	isFiller []bool

	hasSil bool
	hasAlt bool
	// silWords marks, per word id, whether the word is the silence word
	// registered via AddSilence or a filler marked via MarkFiller.
	silWords []bool
	silenceWID dtype.WordID
}

// NewModel creates an FSG with n states, the given start/final states, and
// an initially empty vocabulary and transition set.
func NewModel(name string, nState int, start, final dtype.StateID) *Model {
	return &Model{
		Name:       name,
		nState:     nState,
		startState: start,
		finalState: final,
		trans:      make(map[dtype.StateID][]Link),
		null:       make(map[[2]dtype.StateID]Link),
		strWord:    make(map[string]dtype.WordID),
		silenceWID: dtype.NoWord,
	}
}

// NState returns the number of states.
func (m *Model) NState() int { return m.nState }

// StartState returns the FSG's distinguished start state.
func (m *Model) StartState() dtype.StateID { return m.startState }

// FinalState returns the FSG's distinguished final (accepting) state.
func (m *Model) FinalState() dtype.StateID { return m.finalState }

// WordAdd registers str in the FSG's vocabulary (if not already present) and
// returns its word id.
func (m *Model) WordAdd(str string) dtype.WordID {
	if id, ok := m.strWord[str]; ok {
		return id
	}
	id := dtype.WordID(len(m.wordStr))
	m.wordStr = append(m.wordStr, str)
	m.isFiller = append(m.isFiller, false)
	m.silWords = append(m.silWords, false)
	m.strWord[str] = id
	return id
}

// WordStr returns the surface string for wid.
func (m *Model) WordStr(wid dtype.WordID) string {
	if int(wid) < 0 || int(wid) >= len(m.wordStr) {
		return ""
	}
	return m.wordStr[wid]
}

// IsFiller reports whether wid is classified as a filler word (silence or a
// non-speech sound), as opposed to a grammar-bearing word.
func (m *Model) IsFiller(wid dtype.WordID) bool {
	if int(wid) < 0 || int(wid) >= len(m.isFiller) {
		return false
	}
	return m.isFiller[wid]
}

// MarkFiller marks wid as a filler word.
func (m *Model) MarkFiller(wid dtype.WordID) {
	if int(wid) >= 0 && int(wid) < len(m.isFiller) {
		m.isFiller[wid] = true
		m.silWords[wid] = true
	}
}

// SilWord reports whether wid was registered by [Model.AddSilence] or marked
// via [Model.MarkFiller], i.e. it is a silence/filler word rather than a
// grammar word.
func (m *Model) SilWord(wid dtype.WordID) bool {
	if int(wid) < 0 || int(wid) >= len(m.silWords) {
		return false
	}
	return m.silWords[wid]
}

// HasSil reports whether silence self-loops have already been added to this
// FSG (see [Model.AddSilence]); the set manager uses this to avoid
// double-augmenting a grammar.
func (m *Model) HasSil() bool { return m.hasSil }

// HasAlt reports whether alternate pronunciations have already been
// registered as transition aliases on this FSG.
func (m *Model) HasAlt() bool { return m.hasAlt }

// AddTrans adds a non-null (word-labelled) transition from s to d.
func (m *Model) AddTrans(s, d dtype.StateID, wid dtype.WordID, logprob dtype.LogProb) {
	m.trans[s] = append(m.trans[s], Link{WordID: wid, LogProb: logprob, Dest: d})
}

// AddNull adds a null (ε) transition from s to d. Only one null transition
// may exist per (s,d) pair — a second call for the same pair overwrites the
// first, keeping the higher log-probability, matching the "unique null
// transition" contract in the decoder core's data model.
func (m *Model) AddNull(s, d dtype.StateID, logprob dtype.LogProb) {
	key := [2]dtype.StateID{s, d}
	if existing, ok := m.null[key]; ok && existing.LogProb >= logprob {
		return
	}
	m.null[key] = Link{WordID: dtype.NoWord, LogProb: logprob, Dest: d}
	m.compiled = false
}

// Trans returns the non-null transitions from s to d.
func (m *Model) Trans(s, d dtype.StateID) []Link {
	var out []Link
	for _, l := range m.trans[s] {
		if l.Dest == d {
			out = append(out, l)
		}
	}
	return out
}

// TransFrom returns every non-null transition out of s, to any destination.
func (m *Model) TransFrom(s dtype.StateID) []Link {
	return m.trans[s]
}

// NullTrans returns the unique null transition from s to d, if any.
func (m *Model) NullTrans(s, d dtype.StateID) (Link, bool) {
	l, ok := m.null[[2]dtype.StateID{s, d}]
	return l, ok
}

// NullTransFrom returns every state reachable from s by the (already
// transitively closed) null transition, along with the link used.
func (m *Model) NullTransFrom(s dtype.StateID) map[dtype.StateID]Link {
	out := make(map[dtype.StateID]Link)
	for k, l := range m.null {
		if k[0] == s {
			out[k[1]] = l
		}
	}
	return out
}

// Compile computes the transitive closure of null transitions in place,
// using repeated relaxation (Floyd–Warshall-style over the null-transition
// subgraph) until no new pair improves. This must be called once after all
// null transitions have been added and before the FSG is handed to the
// decoder core — the core's null-closure step in the frame engine assumes a
// single hop always suffices (see the decoder core's Design Notes on the
// null-closure precondition).
func (m *Model) Compile() {
	if m.compiled {
		return
	}
	changed := true
	for changed {
		changed = false
		snapshot := make(map[[2]dtype.StateID]dtype.LogProb, len(m.null))
		for k, l := range m.null {
			snapshot[k] = l.LogProb
		}
		for k1, l1 := range snapshot {
			for k2, l2 := range snapshot {
				if k1[1] != k2[0] || k1[0] == k2[1] {
					continue
				}
				newKey := [2]dtype.StateID{k1[0], k2[1]}
				newScore := l1.Add(l2)
				if existing, ok := m.null[newKey]; !ok || newScore > existing.LogProb {
					m.null[newKey] = Link{WordID: dtype.NoWord, LogProb: newScore, Dest: k2[1]}
					changed = true
				}
			}
		}
	}
	m.compiled = true
}

// Compiled reports whether Compile has run since the last AddNull call.
func (m *Model) Compiled() bool { return m.compiled }

// AddSilence adds a self-loop transition on every state labelled with wid at
// the given log-probability, e.g. for `<sil>`. It is a no-op (and returns
// false) if [Model.HasSil] is already true.
func (m *Model) AddSilence(wid dtype.WordID, logprob dtype.LogProb) bool {
	if m.hasSil {
		return false
	}
	for s := dtype.StateID(0); int(s) < m.nState; s++ {
		m.AddTrans(s, s, wid, logprob)
	}
	if int(wid) >= 0 && int(wid) < len(m.silWords) {
		m.silWords[wid] = true
		m.isFiller[wid] = true
	}
	m.silenceWID = wid
	m.hasSil = true
	return true
}

// SilenceWID returns the word id registered via [Model.AddSilence], or
// [dtype.NoWord] if silence has not been added.
func (m *Model) SilenceWID() dtype.WordID { return m.silenceWID }

// AddFillerLoop adds a self-loop transition for a filler word (other than
// silence) on every state, e.g. for `<uh>` or other non-speech sounds.
func (m *Model) AddFillerLoop(wid dtype.WordID, logprob dtype.LogProb) {
	for s := dtype.StateID(0); int(s) < m.nState; s++ {
		m.AddTrans(s, s, wid, logprob)
	}
}

// AddAlt registers alt as an alias for every transition currently labelled
// with base, adding a parallel transition with the same source, destination,
// and log-probability but alt's word id. Marks [Model.HasAlt] true.
func (m *Model) AddAlt(base, alt dtype.WordID) {
	for s, links := range m.trans {
		n := len(links)
		for i := 0; i < n; i++ {
			if links[i].WordID == base {
				m.trans[s] = append(m.trans[s], Link{WordID: alt, LogProb: links[i].LogProb, Dest: links[i].Dest})
			}
		}
	}
	m.hasAlt = true
}
