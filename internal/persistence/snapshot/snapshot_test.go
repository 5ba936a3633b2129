package snapshot

import (
	"path/filepath"
	"testing"

	"stellarforge.ai/internal/sim/model"
)

func sampleState() *model.State {
	st := model.NewState("g1")
	st.Period = 7
	st.PutEmpire(&model.Empire{
		ID:           "e1",
		Resources:    map[string]float64{"minerals": 42},
		Technologies: []string{"demographic"},
		Effects:      []model.Effect{{Variable: "empire.market.fee", Multiplier: model.Float(0.5)}},
	})
	st.PutSystem(&model.System{ID: "A", Upgrade: model.StageColonized, Owner: "e1", Links: map[string]float64{"B": 3}})
	st.PutFleet(&model.Fleet{ID: "f1", Empire: "e1", Location: "A"})
	st.PutShip(&model.Ship{ID: "s1", Empire: "e1", Fleet: "f1", Type: "explorer"})
	st.PutJob(&model.Job{ID: "j1", Empire: "e1", Type: model.JobTravel, Total: 3, Path: []string{"A", "B"},
		Result: &model.Result{Code: "OK", Message: "done"}})
	return st
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := sampleState()
	path := PathFor(dir, "g1", st.Period)
	if err := WriteSnapshot(path, FromState(st, map[string]string{"ships": "abc"})); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.GameID != "g1" || h.Period != 7 || h.Version != Version {
		t.Fatalf("header: %+v", h)
	}

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := snap.State()
	if got.Period != 7 || got.NextJobSeq != 1 {
		t.Fatalf("period=%d seq=%d", got.Period, got.NextJobSeq)
	}
	if got.HasChanges() {
		t.Fatalf("restored state has pending changes")
	}
	emp := got.Empires["e1"]
	if emp == nil || emp.Resources["minerals"] != 42 || *emp.Effects[0].Multiplier != 0.5 {
		t.Fatalf("empire: %+v", emp)
	}
	j := got.Jobs["j1"]
	if j == nil || j.Result == nil || j.Result.Code != "OK" || len(j.Path) != 2 {
		t.Fatalf("job: %+v", j)
	}
	if got.Fleets["f1"].Location != "A" || got.Ships["s1"].Fleet != "f1" {
		t.Fatalf("fleet/ship not restored")
	}
	if snap.Catalogs["ships"] != "abc" {
		t.Fatalf("catalog digests: %v", snap.Catalogs)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if p, err := Latest(dir, "g1"); err != nil || p != "" {
		t.Fatalf("empty dir: %q %v", p, err)
	}
	for _, period := range []uint64{3, 12, 9} {
		st := sampleState()
		st.Period = period
		if err := WriteSnapshot(PathFor(dir, "g1", period), FromState(st, nil)); err != nil {
			t.Fatalf("write %d: %v", period, err)
		}
	}
	p, err := Latest(dir, "g1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(p) != "12.snap.zst" {
		t.Fatalf("latest: %s", p)
	}
}
