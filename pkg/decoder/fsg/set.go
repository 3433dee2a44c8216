package fsg

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

// Loader builds a Model from a named source (typically a file path). It is
// the seam through which grammar-file formats are plugged in without this
// package needing to know how to parse them.
type Loader func(name string) (*Model, error)

// Manager owns the set of named grammars a [decoder.Search] can select
// between, plus the augmentation policy applied to each on Add.
//
// Manager is not safe for concurrent use by multiple goroutines except
// through [Manager.AddAll], which itself serializes the actual map mutation;
// the decoder core only ever calls Manager methods between utterances, never
// concurrently with Step.
type Manager struct {
	mu       sync.Mutex
	byName   map[string]*Model
	selected string

	dict dict.Dictionary

	useFiller bool
	useAlt    bool
	silProb   dtype.LogProb
	fillProb  dtype.LogProb
	silWID    dtype.WordID
}

// NewManager creates an empty set manager. d is the dictionary used to
// discover filler words and alternate pronunciations during augmentation;
// silWID is the dictionary word id for the silence word.
func NewManager(d dict.Dictionary, silWID dtype.WordID, useFiller, useAlt bool, silProb, fillProb dtype.LogProb) *Manager {
	return &Manager{
		byName:    make(map[string]*Model),
		dict:      d,
		useFiller: useFiller,
		useAlt:    useAlt,
		silProb:   silProb,
		fillProb:  fillProb,
		silWID:    silWID,
	}
}

// Add registers fsg under name, applying silence and alternate-pronunciation
// augmentation per the manager's configured policy, and compiling its null-
// transition closure. Returns an error if name is already registered.
func (m *Manager) Add(name string, model *Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(name, model)
}

func (m *Manager) addLocked(name string, model *Model) error {
	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("fsg: add %q: already registered", name)
	}
	m.augment(model)
	model.Compile()
	m.byName[name] = model
	return nil
}

// augment applies silence-loop and alternate-pronunciation augmentation to
// model in place, per the manager's configured policy.
func (m *Manager) augment(model *Model) {
	silID := model.WordAdd(m.dict.WordStr(m.silWID))
	if m.useFiller && !model.HasSil() {
		if model.AddSilence(silID, m.silProb) {
			for wid := dtype.WordID(0); int(wid) < m.dict.NWords(); wid++ {
				str := m.dict.WordStr(wid)
				if str == "" || str == "<s>" || str == "</s>" || wid == m.silWID {
					continue
				}
				if !isFillerStr(str) {
					continue
				}
				fw := model.WordAdd(str)
				model.MarkFiller(fw)
				model.AddFillerLoop(fw, m.fillProb)
			}
		}
	}
	if m.useAlt && !model.HasAlt() {
		for wid := dtype.WordID(0); int(wid) < m.dict.NWords(); wid++ {
			base := m.dict.BaseWID(wid)
			if base != wid {
				continue
			}
			for alt := m.dict.NextAlt(base); alt != dtype.NoWord; alt = m.dict.NextAlt(alt) {
				model.AddAlt(base, model.WordAdd(m.dict.WordStr(alt)))
			}
		}
	}
}

// isFillerStr reports whether a dictionary surface form looks like a filler
// word, e.g. bracketed like "<uh>" or "++BREATH++".
func isFillerStr(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '<' && s[len(s)-1] == '>') || (s[0] == '+' && s[len(s)-1] == '+')
}

// Remove deletes the grammar registered under name. If it is the currently
// selected grammar, the selection is cleared first — callers must not hold a
// lextree built from a removed FSG.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == name {
		m.selected = ""
	}
	delete(m.byName, name)
}

// Select switches the active grammar to name. Returns false if name is not
// registered, in which case the previous selection is left unchanged.
func (m *Manager) Select(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; !ok {
		return false
	}
	m.selected = name
	return true
}

// Selected returns the currently selected grammar and its name, or (nil, "")
// if none is selected.
func (m *Manager) Selected() (*Model, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == "" {
		return nil, ""
	}
	return m.byName[m.selected], m.selected
}

// Get returns the grammar registered under name.
func (m *Manager) Get(name string) (*Model, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.byName[name]
	return model, ok
}

// All returns a range-over-func iterator over every registered grammar,
// the idiomatic replacement for a C-style cursor object.
func (m *Manager) All() func(yield func(string, *Model) bool) {
	m.mu.Lock()
	names := make([]string, 0, len(m.byName))
	models := make([]*Model, 0, len(m.byName))
	for name, model := range m.byName {
		names = append(names, name)
		models = append(models, model)
	}
	m.mu.Unlock()
	return func(yield func(string, *Model) bool) {
		for i := range names {
			if !yield(names[i], models[i]) {
				return
			}
		}
	}
}

// AddAllSpec names one grammar to bulk-load: Name is the registration key,
// Source is passed to the Loader.
type AddAllSpec struct {
	Name   string
	Source string
}

// AddAll loads and registers many grammars concurrently using load, fanning
// out with an errgroup the way the teacher's bulk resource loader does. The
// actual Model construction/parsing runs in parallel; registration into the
// manager's map is serialized. If any load fails, AddAll returns the first
// error (via errgroup) and leaves already-succeeded grammars registered.
func (m *Manager) AddAll(ctx context.Context, specs []AddAllSpec, load Loader) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			model, err := load(spec.Source)
			if err != nil {
				return fmt.Errorf("fsg: load %q from %q: %w", spec.Name, spec.Source, err)
			}
			m.mu.Lock()
			err = m.addLocked(spec.Name, model)
			m.mu.Unlock()
			if err != nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// ReadLoader adapts a per-format parse function (reading fsg text from r)
// into a [Loader] that opens the named path via open.
func ReadLoader(open func(path string) (io.ReadCloser, error), parse func(name string, r io.Reader) (*Model, error)) Loader {
	return func(name string) (*Model, error) {
		f, err := open(name)
		if err != nil {
			return nil, fmt.Errorf("fsg: open %q: %w", name, err)
		}
		defer f.Close()
		return parse(name, f)
	}
}
