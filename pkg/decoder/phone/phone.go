// Package phone provides a static, file-loadable phone inventory and
// pronunciation table implementing [decoder.PhoneResolver]. It plays the
// same role for the CI-phone/acoustic-topology seam that dict.Static plays
// for the dictionary seam and acoustic/mock plays for the scorer seam: a
// reference collaborator good enough to drive the beam search end to end
// without a live acoustic model.
package phone

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// Static holds a fixed phone inventory (name, senone sequence, and a
// left-to-right transition matrix per phone) plus a word-surface-string to
// phone-sequence pronunciation table.
type Static struct {
	names   []string
	byName  map[string]dtype.CIPhoneID
	sseq    [][]int32
	tmat    [][][]dtype.LogProb
	nEmit   int
	silence dtype.CIPhoneID

	pron map[string][]dtype.CIPhoneID
}

// NewStatic builds an empty phone inventory with nEmitState emitting states
// per phone.
func NewStatic(nEmitState int) *Static {
	return &Static{
		byName: make(map[string]dtype.CIPhoneID),
		nEmit:  nEmitState,
		pron:   make(map[string][]dtype.CIPhoneID),
	}
}

var _ interface {
	Phones(d dict.Dictionary, wid dtype.WordID) []dtype.CIPhoneID
	SseqIndex(ph dtype.CIPhoneID) int
	NPhone() int
	SilencePhone() dtype.CIPhoneID
	NEmitState() int
	TMat() [][][]dtype.LogProb
	SSeq() [][]int32
} = (*Static)(nil)

// AddPhone registers a CI phone with the given per-state senone ids
// (length must equal NEmitState) and left-to-right transition matrix (an
// nEmitState x nEmitState table; disallowed transitions must carry
// [dtype.LogZero]). Returns the new phone's id.
func (s *Static) AddPhone(name string, senones []int32, tmat [][]dtype.LogProb) (dtype.CIPhoneID, error) {
	if len(senones) != s.nEmit {
		return 0, fmt.Errorf("phone: %q: senone sequence has %d entries, want %d", name, len(senones), s.nEmit)
	}
	if len(tmat) != s.nEmit {
		return 0, fmt.Errorf("phone: %q: transition matrix has %d rows, want %d", name, len(tmat), s.nEmit)
	}
	for i, row := range tmat {
		if len(row) != s.nEmit {
			return 0, fmt.Errorf("phone: %q: transition matrix row %d has %d columns, want %d", name, i, len(row), s.nEmit)
		}
	}
	id := dtype.CIPhoneID(len(s.names))
	s.names = append(s.names, name)
	s.byName[name] = id
	s.sseq = append(s.sseq, senones)
	s.tmat = append(s.tmat, tmat)
	return id, nil
}

// SetSilence records which registered phone is the silence phone.
func (s *Static) SetSilence(ph dtype.CIPhoneID) { s.silence = ph }

// SetPron records word's pronunciation as a sequence of already-registered
// phone names.
func (s *Static) SetPron(word string, phoneNames []string) error {
	seq := make([]dtype.CIPhoneID, len(phoneNames))
	for i, name := range phoneNames {
		id, ok := s.byName[name]
		if !ok {
			return fmt.Errorf("phone: pronunciation for %q: unknown phone %q", word, name)
		}
		seq[i] = id
	}
	s.pron[word] = seq
	return nil
}

// NSenone returns one past the highest senone id referenced by any
// registered phone's state sequence: the count an [acoustic.Scorer] built
// against this phone set must report from NSenone.
func (s *Static) NSenone() int {
	max := -1
	for _, seq := range s.sseq {
		for _, id := range seq {
			if int(id) > max {
				max = int(id)
			}
		}
	}
	return max + 1
}

func (s *Static) NPhone() int                      { return len(s.names) }
func (s *Static) SilencePhone() dtype.CIPhoneID    { return s.silence }
func (s *Static) NEmitState() int                  { return s.nEmit }
func (s *Static) TMat() [][][]dtype.LogProb        { return s.tmat }
func (s *Static) SSeq() [][]int32                  { return s.sseq }
func (s *Static) SseqIndex(ph dtype.CIPhoneID) int { return int(ph) }

// Phones returns the CI-phone sequence for wid's surface string, or nil if
// no pronunciation was registered for it.
func (s *Static) Phones(d dict.Dictionary, wid dtype.WordID) []dtype.CIPhoneID {
	return s.pron[d.WordStr(wid)]
}

// yamlPhoneEntry is one phone's definition in a phone set's YAML form.
type yamlPhoneEntry struct {
	Name     string  `yaml:"name"`
	Senones  []int32 `yaml:"senones"`
	SelfLoop float64 `yaml:"self_loop_logprob"`
	Next     float64 `yaml:"next_logprob"`
}

// yamlPhoneSet is the on-disk shape of a phone set plus pronunciation
// lexicon consumed by [ParseYAML].
type yamlPhoneSet struct {
	NEmitState int                 `yaml:"n_emit_state"`
	Silence    string              `yaml:"silence"`
	Phones     []yamlPhoneEntry    `yaml:"phones"`
	Words      map[string][]string `yaml:"words"`
}

// ParseYAML parses a phone-set-and-lexicon definition. Each phone gets a
// uniform Bakis (left-to-right, optional self-loop) transition matrix
// derived from its self_loop_logprob and next_logprob: state i transitions
// to itself at self_loop_logprob and to i+1 at next_logprob, with the last
// state's next transition dropped (there is no i+1 to enter).
func ParseYAML(r io.Reader) (*Static, error) {
	var y yamlPhoneSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil {
		return nil, fmt.Errorf("phone: parse: %w", err)
	}
	if y.NEmitState <= 0 {
		return nil, fmt.Errorf("phone: parse: n_emit_state must be positive")
	}

	s := NewStatic(y.NEmitState)
	for i, p := range y.Phones {
		tmat := make([][]dtype.LogProb, y.NEmitState)
		for row := range tmat {
			tmat[row] = make([]dtype.LogProb, y.NEmitState)
			for col := range tmat[row] {
				tmat[row][col] = dtype.LogZero
			}
			tmat[row][row] = dtype.LogProb(p.SelfLoop)
			if row+1 < y.NEmitState {
				tmat[row][row+1] = dtype.LogProb(p.Next)
			}
		}
		id, err := s.AddPhone(p.Name, p.Senones, tmat)
		if err != nil {
			return nil, fmt.Errorf("phone: parse: phones[%d]: %w", i, err)
		}
		if p.Name == y.Silence {
			s.SetSilence(id)
		}
	}
	for word, phones := range y.Words {
		if err := s.SetPron(word, phones); err != nil {
			return nil, fmt.Errorf("phone: parse: %w", err)
		}
	}
	return s, nil
}
