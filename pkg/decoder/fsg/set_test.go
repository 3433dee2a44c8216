package fsg

import (
	"context"
	"fmt"
	"testing"

	"github.com/fsgdecoder/core/pkg/decoder/dict"
)

func testDict() *dict.Static {
	d := dict.NewStatic()
	d.AddWord("<sil>", 1)
	d.AddWord("<s>", 0)
	d.AddWord("</s>", 0)
	d.AddWord("<uh>", 1)
	base := d.AddWord("READ", 3)
	d.AddAlt(base, "READ(2)")
	return d
}

func TestManagerAddSelectRemoveRoundTrip(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, true, true, -1, -2)

	m := NewModel("g1", 2, 0, 1)
	m.AddTrans(0, 1, m.WordAdd("READ"), 0)

	if err := mgr.Add("g1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !mgr.Select("g1") {
		t.Fatal("Select(g1) should succeed")
	}
	sel, name := mgr.Selected()
	if sel != m || name != "g1" {
		t.Fatalf("Selected() = (%v, %q), want (%v, g1)", sel, name, m)
	}

	mgr.Remove("g1")
	if _, ok := mgr.Get("g1"); ok {
		t.Fatal("g1 should be gone after Remove")
	}
	if sel, _ := mgr.Selected(); sel != nil {
		t.Fatal("removing the selected grammar should clear the selection")
	}
}

func TestManagerAddAppliesSilenceAugmentation(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, true, false, -1, -2)

	m := NewModel("g1", 2, 0, 1)
	m.AddTrans(0, 1, m.WordAdd("READ"), 0)
	if err := mgr.Add("g1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !m.HasSil() {
		t.Fatal("expected silence augmentation to run")
	}
	if len(m.TransFrom(0)) < 2 {
		t.Fatalf("state 0 should have both the grammar transition and a silence self-loop, got %d", len(m.TransFrom(0)))
	}
}

func TestManagerAddAppliesAltAugmentation(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, false, true, -1, -2)

	m := NewModel("g1", 2, 0, 1)
	m.AddTrans(0, 1, m.WordAdd("READ"), -3)
	if err := mgr.Add("g1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !m.HasAlt() {
		t.Fatal("expected alt-pronunciation augmentation to run")
	}
	links := m.Trans(0, 1)
	if len(links) != 2 {
		t.Fatalf("expected base + alt transitions, got %d", len(links))
	}
}

func TestManagerAllIterator(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, false, false, -1, -2)
	mgr.Add("a", NewModel("a", 1, 0, 0))
	mgr.Add("b", NewModel("b", 1, 0, 0))

	seen := map[string]bool{}
	mgr.All()(func(name string, _ *Model) bool {
		seen[name] = true
		return true
	})
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected to iterate both grammars, got %v", seen)
	}
}

func TestManagerAddAllConcurrentLoad(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, false, false, -1, -2)

	specs := []AddAllSpec{{Name: "a", Source: "a.fsg"}, {Name: "b", Source: "b.fsg"}, {Name: "c", Source: "c.fsg"}}
	load := func(src string) (*Model, error) {
		return NewModel(src, 1, 0, 0), nil
	}
	if err := mgr.AddAll(context.Background(), specs, load); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	for _, spec := range specs {
		if _, ok := mgr.Get(spec.Name); !ok {
			t.Errorf("expected %q to be registered after AddAll", spec.Name)
		}
	}
}

func TestManagerAddAllPropagatesError(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, false, false, -1, -2)

	specs := []AddAllSpec{{Name: "bad", Source: "bad.fsg"}}
	load := func(src string) (*Model, error) {
		return nil, fmt.Errorf("boom")
	}
	if err := mgr.AddAll(context.Background(), specs, load); err == nil {
		t.Fatal("expected AddAll to propagate the load error")
	}
}

func TestModelSilWordAfterFillerLoop(t *testing.T) {
	d := testDict()
	silWID, _ := d.ToID("<sil>")
	mgr := NewManager(d, silWID, true, false, -1, -2)

	m := NewModel("g1", 1, 0, 0)
	m.AddTrans(0, 0, m.WordAdd("READ"), 0)
	if err := mgr.Add("g1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	uh := m.WordAdd("<uh>")
	if !m.SilWord(uh) {
		t.Error("filler <uh> should be marked SilWord after augmentation")
	}
}
