package fsg

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// yamlTrans is one transition entry in a grammar's YAML definition.
type yamlTrans struct {
	From    int     `yaml:"from"`
	To      int     `yaml:"to"`
	Word    string  `yaml:"word"`
	LogProb float64 `yaml:"logprob"`
}

// yamlModel is the on-disk shape of a grammar definition.
type yamlModel struct {
	NState int         `yaml:"n_state"`
	Start  int         `yaml:"start"`
	Final  int         `yaml:"final"`
	Trans  []yamlTrans `yaml:"trans"`
}

// ParseYAML parses a grammar definition in YAML form. name becomes the
// resulting Model's Name. lw is the linguistic weight; it is folded into
// every transition's log-probability here, since the decoder core itself
// never applies lw to FSG scores.
//
// An empty Word field on a transition denotes a null (ε) transition.
func ParseYAML(name string, r io.Reader, lw float64) (*Model, error) {
	var y yamlModel
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil {
		return nil, fmt.Errorf("fsg: parse %q: %w", name, err)
	}
	if y.NState <= 0 {
		return nil, fmt.Errorf("fsg: parse %q: n_state must be positive", name)
	}

	m := NewModel(name, y.NState, dtype.StateID(y.Start), dtype.StateID(y.Final))
	for i, t := range y.Trans {
		if t.From < 0 || t.From >= y.NState || t.To < 0 || t.To >= y.NState {
			return nil, fmt.Errorf("fsg: parse %q: trans[%d] references out-of-range state", name, i)
		}
		lp := dtype.LogProb(t.LogProb * lw)
		if t.Word == "" {
			m.AddNull(dtype.StateID(t.From), dtype.StateID(t.To), lp)
			continue
		}
		wid := m.WordAdd(t.Word)
		m.AddTrans(dtype.StateID(t.From), dtype.StateID(t.To), wid, lp)
	}
	return m, nil
}
