// Package events defines the domain events a game emits and an in-process
// bus that fans them out to subscribers.
package events

import (
	"strings"

	"stellarforge.ai/internal/sim/model"
)

type Kind string

const (
	JobCreated       Kind = "job.created"
	JobCompleted     Kind = "job.completed"
	JobDeleted       Kind = "job.deleted"
	ResourcesChanged Kind = "resources.changed"
	FleetMoved       Kind = "fleet.moved"
	EmpireDeleted    Kind = "empire.deleted"
	PeriodAdvanced   Kind = "period.advanced"
)

// Kinds lists every event kind.
func Kinds() []Kind {
	return []Kind{JobCreated, JobCompleted, JobDeleted, ResourcesChanged, FleetMoved, EmpireDeleted, PeriodAdvanced}
}

// Action is the last segment of the kind, used as the topic suffix.
func (k Kind) Action() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '.'); i >= 0 && strings.HasPrefix(s, "job.") {
		return s[i+1:]
	}
	return s
}

type Event struct {
	Kind   Kind   `json:"kind"`
	Topic  string `json:"topic"`
	Game   string `json:"game"`
	Empire string `json:"empire,omitempty"`
	Period uint64 `json:"period"`
	Data   any    `json:"data,omitempty"`
}

func JobTopic(game, empire, job, action string) string {
	return "games." + game + ".empires." + empire + ".jobs." + job + "." + action
}

func EmpireTopic(game, empire, action string) string {
	return "games." + game + ".empires." + empire + "." + action
}

func GameTopic(game, action string) string {
	return "games." + game + "." + action
}

// ForJob builds a job event carrying a copy of the job.
func ForJob(kind Kind, period uint64, j *model.Job) Event {
	return Event{
		Kind:   kind,
		Topic:  JobTopic(j.Game, j.Empire, j.ID, kind.Action()),
		Game:   j.Game,
		Empire: j.Empire,
		Period: period,
		Data:   j.Clone(),
	}
}

// ForEmpire builds an empire-scoped event.
func ForEmpire(kind Kind, game, empire string, period uint64, data any) Event {
	return Event{
		Kind:   kind,
		Topic:  EmpireTopic(game, empire, string(kind)),
		Game:   game,
		Empire: empire,
		Period: period,
		Data:   data,
	}
}

// ForGame builds a game-wide event.
func ForGame(kind Kind, game string, period uint64, data any) Event {
	return Event{
		Kind:   kind,
		Topic:  GameTopic(game, string(kind)),
		Game:   game,
		Period: period,
		Data:   data,
	}
}

// Sink receives emitted events. Emit must not block.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Tee emits every event to each non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(ev Event) {
		for _, s := range out {
			s.Emit(ev)
		}
	})
}
