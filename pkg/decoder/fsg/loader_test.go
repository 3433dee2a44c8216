package fsg

import (
	"strings"
	"testing"

	"github.com/fsgdecoder/core/pkg/decoder/dtype"
)

const helloYAML = `
n_state: 2
start: 0
final: 1
trans:
  - from: 0
    to: 1
    word: HELLO
    logprob: -10
`

func TestParseYAMLBuildsTransitions(t *testing.T) {
	m, err := ParseYAML("hello", strings.NewReader(helloYAML), 1.0)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if m.NState() != 2 {
		t.Errorf("NState = %d, want 2", m.NState())
	}
	wid := m.WordAdd("HELLO")
	trans := m.Trans(0, 1)
	if len(trans) != 1 || trans[0].WordID != wid {
		t.Fatalf("Trans(0,1) = %v, want single HELLO transition", trans)
	}
}

func TestParseYAMLAppliesLW(t *testing.T) {
	m, err := ParseYAML("hello", strings.NewReader(helloYAML), 2.0)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	trans := m.Trans(0, 1)
	if trans[0].LogProb != dtype.LogProb(-20) {
		t.Errorf("LogProb = %d, want -20 (lw applied)", trans[0].LogProb)
	}
}

func TestParseYAMLNullTransition(t *testing.T) {
	const yamlSrc = `
n_state: 3
start: 0
final: 2
trans:
  - from: 0
    to: 1
    logprob: -1
  - from: 1
    to: 2
    word: HELLO
    logprob: -5
`
	m, err := ParseYAML("g", strings.NewReader(yamlSrc), 1.0)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	m.Compile()
	if len(m.Trans(0, 1)) != 0 {
		t.Error("expected no non-null transition from 0 to 1")
	}
}

func TestParseYAMLRejectsOutOfRangeState(t *testing.T) {
	const yamlSrc = `
n_state: 1
start: 0
final: 0
trans:
  - from: 0
    to: 5
    word: X
    logprob: 0
`
	if _, err := ParseYAML("bad", strings.NewReader(yamlSrc), 1.0); err == nil {
		t.Fatal("expected error for out-of-range transition")
	}
}

func TestParseYAMLRejectsUnknownField(t *testing.T) {
	const yamlSrc = `
n_state: 1
start: 0
final: 0
bogus: true
`
	if _, err := ParseYAML("bad", strings.NewReader(yamlSrc), 1.0); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
