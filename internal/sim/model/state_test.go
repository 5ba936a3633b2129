package model

import "testing"

func seedState() *State {
	s := NewState("g1")
	s.PutEmpire(&Empire{ID: "E1", Resources: map[string]float64{"minerals": 10}})
	s.PutEmpire(&Empire{ID: "E2"})
	s.PutSystem(&System{ID: "S1", Owner: "E1", Upgrade: StageColonized})
	s.PutSystem(&System{ID: "S2", Owner: "E2", Upgrade: StageColonized})
	s.PutFleet(&Fleet{ID: "F1", Empire: "E1", Location: "S1"})
	s.PutShip(&Ship{ID: "SH1", Empire: "E1", Fleet: "F1", Type: "explorer"})
	s.PutShip(&Ship{ID: "SH2", Empire: "E1", Fleet: "F1", Type: "colonizer"})
	s.PutJob(&Job{ID: "J1", Empire: "E1", Type: JobBuilding, Priority: 1})
	s.PutJob(&Job{ID: "J2", Empire: "E1", Type: JobBuilding, Priority: 0})
	s.PutJob(&Job{ID: "J3", Empire: "E2", Type: JobBuilding, Priority: 1})
	return s
}

func TestState_SortedJobsByPriorityThenSeq(t *testing.T) {
	s := seedState()
	jobs := s.SortedJobs()
	got := []string{jobs[0].ID, jobs[1].ID, jobs[2].ID}
	want := []string{"J2", "J1", "J3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v want %v", got, want)
		}
	}
}

func TestState_DeleteEmpireCascades(t *testing.T) {
	s := seedState()
	s.ResetChanges()

	removed := s.DeleteEmpire("E1")
	if len(removed) != 2 {
		t.Fatalf("removed jobs=%v", removed)
	}
	if len(s.Fleets) != 0 || len(s.Ships) != 0 {
		t.Fatalf("fleets=%d ships=%d", len(s.Fleets), len(s.Ships))
	}
	if s.Systems["S1"].Owner != "" {
		t.Fatalf("expected S1 unowned")
	}
	if _, ok := s.Jobs["J3"]; !ok {
		t.Fatalf("other empire's job removed")
	}

	b := s.TakeChanges()
	if len(b.Systems) != 1 || b.Systems[0].ID != "S1" {
		t.Fatalf("systems=%v", b.Systems)
	}
	// empire + fleet + 2 ships + 2 jobs
	if len(b.Deleted) != 6 {
		t.Fatalf("deleted=%v", b.Deleted)
	}
	if s.HasChanges() {
		t.Fatalf("expected change set cleared")
	}
}

func TestState_TakeChangesCopies(t *testing.T) {
	s := seedState()
	b := s.TakeChanges()
	if len(b.Empires) != 2 || len(b.Jobs) != 3 {
		t.Fatalf("batch empires=%d jobs=%d", len(b.Empires), len(b.Jobs))
	}
	b.Empires[0].Resources["minerals"] = 99
	if s.Empires["E1"].Resources["minerals"] != 10 {
		t.Fatalf("batch aliases live state")
	}

	s.Restore(b)
	if !s.HasChanges() {
		t.Fatalf("expected restored changes")
	}
}

func TestState_MarkChangedAfterDeleteWins(t *testing.T) {
	s := seedState()
	s.ResetChanges()
	s.DeleteJob("J1")
	s.PutJob(&Job{ID: "J1", Empire: "E1", Type: JobDistrict})
	b := s.TakeChanges()
	if len(b.Deleted) != 0 || len(b.Jobs) != 1 {
		t.Fatalf("deleted=%v jobs=%d", b.Deleted, len(b.Jobs))
	}
}
