package model

import "sort"

type Kind string

const (
	KindEmpire Kind = "empire"
	KindSystem Kind = "system"
	KindFleet  Kind = "fleet"
	KindShip   Kind = "ship"
	KindJob    Kind = "job"
)

// Ref identifies one entity of a game.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// State holds every entity of one game. It is not safe for concurrent use;
// the owning runtime serialises access.
type State struct {
	GameID     string
	Period     uint64
	NextJobSeq uint64

	Empires map[string]*Empire
	Systems map[string]*System
	Fleets  map[string]*Fleet
	Ships   map[string]*Ship
	Jobs    map[string]*Job

	dirty   map[Ref]struct{}
	deleted map[Ref]struct{}
}

func NewState(gameID string) *State {
	return &State{
		GameID:  gameID,
		Empires: map[string]*Empire{},
		Systems: map[string]*System{},
		Fleets:  map[string]*Fleet{},
		Ships:   map[string]*Ship{},
		Jobs:    map[string]*Job{},
		dirty:   map[Ref]struct{}{},
		deleted: map[Ref]struct{}{},
	}
}

// MarkChanged records that an entity must be written on the next flush.
func (s *State) MarkChanged(kind Kind, id string) {
	if id == "" {
		return
	}
	r := Ref{Kind: kind, ID: id}
	delete(s.deleted, r)
	s.dirty[r] = struct{}{}
}

// MarkDeleted records that an entity must be removed on the next flush.
func (s *State) MarkDeleted(kind Kind, id string) {
	r := Ref{Kind: kind, ID: id}
	delete(s.dirty, r)
	s.deleted[r] = struct{}{}
}

func (s *State) PutEmpire(e *Empire) {
	e.Game = s.GameID
	s.Empires[e.ID] = e
	s.MarkChanged(KindEmpire, e.ID)
}

func (s *State) PutSystem(sys *System) {
	sys.Game = s.GameID
	s.Systems[sys.ID] = sys
	s.MarkChanged(KindSystem, sys.ID)
}

func (s *State) PutFleet(f *Fleet) {
	f.Game = s.GameID
	s.Fleets[f.ID] = f
	s.MarkChanged(KindFleet, f.ID)
}

func (s *State) PutShip(sh *Ship) {
	sh.Game = s.GameID
	s.Ships[sh.ID] = sh
	s.MarkChanged(KindShip, sh.ID)
}

// PutJob stores a job, assigning the next creation sequence when unset.
func (s *State) PutJob(j *Job) {
	j.Game = s.GameID
	if j.Seq == 0 {
		s.NextJobSeq++
		j.Seq = s.NextJobSeq
	} else if j.Seq > s.NextJobSeq {
		s.NextJobSeq = j.Seq
	}
	s.Jobs[j.ID] = j
	s.MarkChanged(KindJob, j.ID)
}

func (s *State) DeleteJob(id string) {
	if _, ok := s.Jobs[id]; !ok {
		return
	}
	delete(s.Jobs, id)
	s.MarkDeleted(KindJob, id)
}

func (s *State) DeleteShip(id string) {
	if _, ok := s.Ships[id]; !ok {
		return
	}
	delete(s.Ships, id)
	s.MarkDeleted(KindShip, id)
}

// DeleteFleet removes the fleet together with its ships.
func (s *State) DeleteFleet(id string) {
	if _, ok := s.Fleets[id]; !ok {
		return
	}
	for _, sh := range s.FleetShips(id) {
		s.DeleteShip(sh.ID)
	}
	delete(s.Fleets, id)
	s.MarkDeleted(KindFleet, id)
}

// DeleteEmpire removes the empire with its fleets, ships and jobs. Systems
// it owned become unowned. It returns the removed job ids.
func (s *State) DeleteEmpire(id string) []string {
	if _, ok := s.Empires[id]; !ok {
		return nil
	}
	var jobs []string
	for _, j := range s.SortedJobs() {
		if j.Empire == id {
			jobs = append(jobs, j.ID)
			s.DeleteJob(j.ID)
		}
	}
	for _, f := range s.sortedFleets() {
		if f.Empire == id {
			s.DeleteFleet(f.ID)
		}
	}
	for _, sh := range s.Ships {
		if sh.Empire == id {
			s.DeleteShip(sh.ID)
		}
	}
	for _, sys := range s.Systems {
		if sys.Owner == id {
			sys.Owner = ""
			s.MarkChanged(KindSystem, sys.ID)
		}
	}
	delete(s.Empires, id)
	s.MarkDeleted(KindEmpire, id)
	return jobs
}

// FleetShips returns the ships of a fleet sorted by id.
func (s *State) FleetShips(fleetID string) []*Ship {
	var out []*Ship
	for _, sh := range s.Ships {
		if sh.Fleet == fleetID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FleetsAt returns the empire's fleets located at a system, sorted by id.
func (s *State) FleetsAt(empireID, systemID string) []*Fleet {
	var out []*Fleet
	for _, f := range s.sortedFleets() {
		if f.Empire == empireID && f.Location == systemID {
			out = append(out, f)
		}
	}
	return out
}

// EmpireSystems returns the systems owned by an empire, sorted by id.
func (s *State) EmpireSystems(empireID string) []*System {
	var out []*System
	for _, sys := range s.Systems {
		if sys.Owner == empireID {
			out = append(out, sys)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EmpireShips returns every ship of an empire, sorted by id.
func (s *State) EmpireShips(empireID string) []*Ship {
	var out []*Ship
	for _, sh := range s.Ships {
		if sh.Empire == empireID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedJobs orders jobs by priority, then creation sequence.
func (s *State) SortedJobs() []*Job {
	out := make([]*Job, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// EmpireIDs returns empire ids in sorted order.
func (s *State) EmpireIDs() []string {
	out := make([]string, 0, len(s.Empires))
	for id := range s.Empires {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *State) sortedFleets() []*Fleet {
	out := make([]*Fleet, 0, len(s.Fleets))
	for _, f := range s.Fleets {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasChanges reports whether a flush would write anything.
func (s *State) HasChanges() bool {
	return len(s.dirty) > 0 || len(s.deleted) > 0
}

// TakeChanges returns copies of every changed entity plus the deleted refs,
// and clears the change set.
func (s *State) TakeChanges() Batch {
	b := Batch{GameID: s.GameID, Period: s.Period, NextJobSeq: s.NextJobSeq}
	for r := range s.dirty {
		switch r.Kind {
		case KindEmpire:
			if e := s.Empires[r.ID]; e != nil {
				b.Empires = append(b.Empires, e.Clone())
			}
		case KindSystem:
			if sys := s.Systems[r.ID]; sys != nil {
				b.Systems = append(b.Systems, sys.Clone())
			}
		case KindFleet:
			if f := s.Fleets[r.ID]; f != nil {
				b.Fleets = append(b.Fleets, f.Clone())
			}
		case KindShip:
			if sh := s.Ships[r.ID]; sh != nil {
				b.Ships = append(b.Ships, sh.Clone())
			}
		case KindJob:
			if j := s.Jobs[r.ID]; j != nil {
				b.Jobs = append(b.Jobs, j.Clone())
			}
		}
	}
	for r := range s.deleted {
		b.Deleted = append(b.Deleted, r)
	}
	b.sort()
	s.dirty = map[Ref]struct{}{}
	s.deleted = map[Ref]struct{}{}
	return b
}

// Restore puts a batch that failed to persist back into the change set.
func (s *State) Restore(b Batch) {
	for _, e := range b.Empires {
		s.MarkChanged(KindEmpire, e.ID)
	}
	for _, sys := range b.Systems {
		s.MarkChanged(KindSystem, sys.ID)
	}
	for _, f := range b.Fleets {
		s.MarkChanged(KindFleet, f.ID)
	}
	for _, sh := range b.Ships {
		s.MarkChanged(KindShip, sh.ID)
	}
	for _, j := range b.Jobs {
		s.MarkChanged(KindJob, j.ID)
	}
	for _, r := range b.Deleted {
		if _, dirty := s.dirty[r]; !dirty {
			s.deleted[r] = struct{}{}
		}
	}
}

// Batch is one persistence unit: entity upserts and deletions applied
// together.
type Batch struct {
	GameID     string
	Period     uint64
	NextJobSeq uint64

	Empires []*Empire
	Systems []*System
	Fleets  []*Fleet
	Ships   []*Ship
	Jobs    []*Job
	Deleted []Ref
}

func (b Batch) Empty() bool {
	return len(b.Empires) == 0 && len(b.Systems) == 0 && len(b.Fleets) == 0 &&
		len(b.Ships) == 0 && len(b.Jobs) == 0 && len(b.Deleted) == 0
}

func (b *Batch) sort() {
	sort.Slice(b.Empires, func(i, j int) bool { return b.Empires[i].ID < b.Empires[j].ID })
	sort.Slice(b.Systems, func(i, j int) bool { return b.Systems[i].ID < b.Systems[j].ID })
	sort.Slice(b.Fleets, func(i, j int) bool { return b.Fleets[i].ID < b.Fleets[j].ID })
	sort.Slice(b.Ships, func(i, j int) bool { return b.Ships[i].ID < b.Ships[j].ID })
	sort.Slice(b.Jobs, func(i, j int) bool { return b.Jobs[i].ID < b.Jobs[j].ID })
	sort.Slice(b.Deleted, func(i, j int) bool {
		if b.Deleted[i].Kind != b.Deleted[j].Kind {
			return b.Deleted[i].Kind < b.Deleted[j].Kind
		}
		return b.Deleted[i].ID < b.Deleted[j].ID
	})
}

// MarkAll marks every entity as changed, e.g. after restoring a snapshot.
func (s *State) MarkAll() {
	for id := range s.Empires {
		s.MarkChanged(KindEmpire, id)
	}
	for id := range s.Systems {
		s.MarkChanged(KindSystem, id)
	}
	for id := range s.Fleets {
		s.MarkChanged(KindFleet, id)
	}
	for id := range s.Ships {
		s.MarkChanged(KindShip, id)
	}
	for id := range s.Jobs {
		s.MarkChanged(KindJob, id)
	}
}

// ResetChanges drops the change set, e.g. right after loading from storage.
func (s *State) ResetChanges() {
	s.dirty = map[Ref]struct{}{}
	s.deleted = map[Ref]struct{}{}
}
