package dict

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlEntry is one pronunciation entry in a dictionary's YAML definition.
type yamlEntry struct {
	Word    string `yaml:"word"`
	PronLen int    `yaml:"pron_len"`
	AltOf   string `yaml:"alt_of"`
}

// yamlDict is the on-disk shape of a pronunciation dictionary.
type yamlDict struct {
	Words []yamlEntry `yaml:"words"`
}

// ParseYAML parses a pronunciation dictionary in YAML form into a [Static].
// Entries are processed in file order; an entry with alt_of set is
// registered as an alternate pronunciation of the base word named there,
// which must already have appeared earlier in the file.
func ParseYAML(r io.Reader) (*Static, error) {
	var y yamlDict
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil {
		return nil, fmt.Errorf("dict: parse: %w", err)
	}

	d := NewStatic()
	for i, e := range y.Words {
		if e.Word == "" {
			return nil, fmt.Errorf("dict: parse: words[%d] has an empty word", i)
		}
		if e.AltOf == "" {
			d.AddWord(e.Word, e.PronLen)
			continue
		}
		base, ok := d.ToID(e.AltOf)
		if !ok {
			return nil, fmt.Errorf("dict: parse: words[%d] %q: alt_of %q not yet defined", i, e.Word, e.AltOf)
		}
		d.AddAlt(base, e.Word)
	}
	return d, nil
}
