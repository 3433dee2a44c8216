package decoder

import (
	"testing"

	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
)

func TestHistoryAddAndEntry(t *testing.T) {
	h := newHistory()
	link := fsg.Link{WordID: 3, LogProb: -5, Dest: 1}
	idx := h.add(true, link, 0, -5, -1, 2, dtype.AllContexts())

	if idx != 0 {
		t.Fatalf("first add should return index 0, got %d", idx)
	}
	e := h.entry(idx)
	if e.frame != 0 || e.score != -5 || e.pred != -1 || e.lc != 2 {
		t.Fatalf("entry() = %+v, want frame=0 score=-5 pred=-1 lc=2", e)
	}
}

func TestHistoryNEntries(t *testing.T) {
	h := newHistory()
	if h.nEntries() != 0 {
		t.Fatal("fresh history should have 0 entries")
	}
	h.add(false, fsg.Link{}, -1, 0, -1, 0, dtype.AllContexts())
	if h.nEntries() != 1 {
		t.Fatalf("nEntries() = %d, want 1", h.nEntries())
	}
}

func TestHistoryEndFrameCoalescesByDestAndRC(t *testing.T) {
	h := newHistory()
	link := fsg.Link{WordID: 1, LogProb: 0, Dest: 5}
	i1 := h.add(true, link, 0, -10, -1, 0, dtype.AllContexts())
	i2 := h.add(true, link, 0, -3, -1, 0, dtype.AllContexts())

	h.endFrame()

	best, ok := h.coalesce[coalesceKeyOf(h.entry(i2))]
	if !ok {
		t.Fatal("expected a coalesce entry for the shared (dest, rc) key")
	}
	if best != i2 {
		t.Errorf("coalesce should keep the higher-scoring entry (%d), got %d", i2, best)
	}
	_ = i1
}

func TestHistoryEndFrameIsIdempotent(t *testing.T) {
	h := newHistory()
	h.add(false, fsg.Link{}, 0, 0, -1, 0, dtype.AllContexts())
	h.endFrame()
	before := len(h.coalesce)
	h.endFrame() // no new entries; must not panic or grow state
	if len(h.coalesce) != before {
		t.Error("second idempotent endFrame call changed coalesce map size")
	}
}

func TestHistoryReset(t *testing.T) {
	h := newHistory()
	h.add(false, fsg.Link{}, 0, 0, -1, 0, dtype.AllContexts())
	h.endFrame()
	h.reset()
	if h.nEntries() != 0 {
		t.Fatal("reset should clear all entries")
	}
	if h.frameStart != 0 {
		t.Fatal("reset should rewind frameStart")
	}
}

func TestHistoryDestStateFallsBackToFSGStart(t *testing.T) {
	m := fsg.NewModel("g", 2, 0, 1)
	d := dict.NewStatic()
	h := newHistory()
	h.setFSG(m, d)
	idx := h.add(false, fsg.Link{}, -1, 0, -1, 0, dtype.AllContexts())
	if got := h.destState(idx); got != m.StartState() {
		t.Errorf("destState(sentinel) = %d, want start state %d", got, m.StartState())
	}
}
