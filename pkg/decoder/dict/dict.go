// Package dict defines the pronunciation dictionary abstraction consumed by
// the decoder core, plus a static in-memory implementation suitable for
// tests and small deployments.
package dict

import "github.com/fsgdecoder/core/pkg/decoder/dtype"

// Dictionary maps word strings to word ids and exposes pronunciation and
// alternate-pronunciation metadata. Implementations must be safe for
// concurrent read access; the decoder core never mutates a Dictionary once
// it has been bound to a [fsg.Model].
type Dictionary interface {
	// NWords returns the number of word ids currently registered.
	NWords() int

	// ToID resolves a word string to its id. ok is false if str is not in
	// the dictionary.
	ToID(str string) (id dtype.WordID, ok bool)

	// WordStr returns the surface string for wid, or "" if wid is out of range.
	WordStr(wid dtype.WordID) string

	// PronLen returns the number of phones in wid's pronunciation.
	PronLen(wid dtype.WordID) int

	// NextAlt returns the next alternate pronunciation id in wid's alternate
	// chain, or [dtype.NoWord] if wid is the last (or only) pronunciation.
	NextAlt(wid dtype.WordID) dtype.WordID

	// BaseWID returns the base (first) pronunciation id for wid's word.
	BaseWID(wid dtype.WordID) dtype.WordID
}

// entry holds one pronunciation's metadata.
type entry struct {
	word     string
	pronLen  int
	nextAlt  dtype.WordID
	baseWID  dtype.WordID
}

// Static is a map-backed [Dictionary] built once at load time. It is safe
// for concurrent reads after construction.
type Static struct {
	byID  []entry
	byStr map[string]dtype.WordID
}

// NewStatic builds an empty [Static] dictionary.
func NewStatic() *Static {
	return &Static{byStr: make(map[string]dtype.WordID)}
}

var _ Dictionary = (*Static)(nil)

// AddWord registers a new base word with the given pronunciation length and
// returns its id. Use [Static.AddAlt] to attach further pronunciations of
// the same word.
func (s *Static) AddWord(word string, pronLen int) dtype.WordID {
	id := dtype.WordID(len(s.byID))
	s.byID = append(s.byID, entry{word: word, pronLen: pronLen, nextAlt: dtype.NoWord, baseWID: id})
	s.byStr[word] = id
	return id
}

// AddAlt registers str as an alternate pronunciation of base, appending it to
// base's alternate chain, and returns the new id. The dictionary word lookup
// by str resolves to the new alternate id directly, matching pocketsphinx's
// dict_wordid semantics — [Static.ToID] on a base word's surface form always
// returns the base id since alternates carry distinct surface strings
// (e.g. "READ(2)").
func (s *Static) AddAlt(base dtype.WordID, str string) dtype.WordID {
	baseEntry := s.byID[base]
	// Walk to the end of the existing alternate chain.
	last := base
	for s.byID[last].nextAlt != dtype.NoWord {
		last = s.byID[last].nextAlt
	}
	id := dtype.WordID(len(s.byID))
	s.byID = append(s.byID, entry{
		word:    str,
		pronLen: baseEntry.pronLen,
		nextAlt: dtype.NoWord,
		baseWID: base,
	})
	s.byID[last].nextAlt = id
	s.byStr[str] = id
	return id
}

func (s *Static) NWords() int { return len(s.byID) }

func (s *Static) ToID(str string) (dtype.WordID, bool) {
	id, ok := s.byStr[str]
	return id, ok
}

func (s *Static) WordStr(wid dtype.WordID) string {
	if int(wid) < 0 || int(wid) >= len(s.byID) {
		return ""
	}
	return s.byID[wid].word
}

func (s *Static) PronLen(wid dtype.WordID) int {
	if int(wid) < 0 || int(wid) >= len(s.byID) {
		return 0
	}
	return s.byID[wid].pronLen
}

func (s *Static) NextAlt(wid dtype.WordID) dtype.WordID {
	if int(wid) < 0 || int(wid) >= len(s.byID) {
		return dtype.NoWord
	}
	return s.byID[wid].nextAlt
}

func (s *Static) BaseWID(wid dtype.WordID) dtype.WordID {
	if int(wid) < 0 || int(wid) >= len(s.byID) {
		return dtype.NoWord
	}
	return s.byID[wid].baseWID
}
