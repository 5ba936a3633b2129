package events

import (
	"testing"

	"stellarforge.ai/internal/sim/model"
)

func TestTopics(t *testing.T) {
	j := &model.Job{ID: "j1", Game: "g1", Empire: "e1"}
	ev := ForJob(JobCompleted, 4, j)
	if ev.Topic != "games.g1.empires.e1.jobs.j1.completed" {
		t.Fatalf("job topic: %s", ev.Topic)
	}
	ev = ForEmpire(ResourcesChanged, "g1", "e1", 4, nil)
	if ev.Topic != "games.g1.empires.e1.resources.changed" {
		t.Fatalf("empire topic: %s", ev.Topic)
	}
	ev = ForGame(PeriodAdvanced, "g1", 4, nil)
	if ev.Topic != "games.g1.period.advanced" {
		t.Fatalf("game topic: %s", ev.Topic)
	}
}

func TestJobEventCopiesJob(t *testing.T) {
	j := &model.Job{ID: "j1", Game: "g1", Empire: "e1", Progress: 1}
	ev := ForJob(JobCreated, 1, j)
	j.Progress = 5
	if got := ev.Data.(*model.Job).Progress; got != 1 {
		t.Fatalf("event shares job state: progress %d", got)
	}
}

func TestBusFanOutAndFilter(t *testing.T) {
	b := NewBus(4)
	all := b.Subscribe(nil)
	e1 := b.Subscribe(ForEmpireFilter("g1", "e1"))
	defer all.Close()
	defer e1.Close()

	b.Emit(ForEmpire(ResourcesChanged, "g1", "e2", 1, nil))
	b.Emit(ForGame(PeriodAdvanced, "g1", 1, nil))
	b.Emit(ForEmpire(ResourcesChanged, "g2", "e1", 1, nil))

	if len(all.C) != 3 {
		t.Fatalf("unfiltered subscriber: got %d events", len(all.C))
	}
	if len(e1.C) != 1 {
		t.Fatalf("filtered subscriber: got %d events", len(e1.C))
	}
	if ev := <-e1.C; ev.Kind != PeriodAdvanced {
		t.Fatalf("filtered subscriber got %s", ev.Kind)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus(1)
	s := b.Subscribe(nil)
	b.Emit(ForGame(PeriodAdvanced, "g1", 1, nil))
	b.Emit(ForGame(PeriodAdvanced, "g1", 2, nil))
	if b.Dropped() != 1 {
		t.Fatalf("dropped: got %d", b.Dropped())
	}
	s.Close()
	s.Close()
	if b.Subscribers() != 0 {
		t.Fatalf("subscriber not removed")
	}
	if _, ok := <-s.C; !ok {
		t.Fatalf("buffered event lost on close")
	}
	if _, ok := <-s.C; ok {
		t.Fatalf("channel not closed")
	}
}

func TestTeeSkipsNil(t *testing.T) {
	var a, b Recorder
	s := Tee(&a, nil, &b)
	s.Emit(ForGame(PeriodAdvanced, "g1", 1, nil))
	if a.Count(PeriodAdvanced) != 1 || b.Count(PeriodAdvanced) != 1 {
		t.Fatalf("tee: a=%d b=%d", a.Count(PeriodAdvanced), b.Count(PeriodAdvanced))
	}
}
