// Package game runs one game: it owns the game's State, serialises every
// command and period advancement through a single goroutine, persists the
// changed entities after each step and publishes domain events.
package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"stellarforge.ai/internal/persistence/snapshot"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/jobs"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
	"stellarforge.ai/internal/sim/variables"
)

var ErrStopped = errors.New("game stopped")

type Config struct {
	ID   string
	Name string

	PeriodMs             int
	SnapshotEveryPeriods int
	Economy              bool
}

// Store persists one batch of entity changes atomically.
type Store interface {
	SaveBatch(ctx context.Context, b model.Batch) error
}

// PeriodLogEntry summarises one advanced period.
type PeriodLogEntry struct {
	GameID    string   `json:"game_id"`
	Period    uint64   `json:"period"`
	Advanced  int      `json:"advanced"`
	Completed []string `json:"completed,omitempty"`
}

type PeriodLogger interface {
	WritePeriod(PeriodLogEntry) error
}

type Options struct {
	Config   Config
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning

	// State is the loaded game; a fresh empty state is used when nil.
	State *model.State

	Store        Store
	Sink         events.Sink
	PeriodLog    PeriodLogger
	SnapshotSink chan<- snapshot.GameSnapshotV1
	Logger       *log.Logger
}

type Game struct {
	cfg    Config
	cats   *catalogs.Catalogs
	tuning tuning.Tuning

	st     *model.State
	vars   *variables.Engine
	aggs   *aggregates.Engine
	jobs   *jobs.Engine
	collab *jobs.StateCollaborators

	store        Store
	sink         events.Sink
	periodLog    PeriodLogger
	snapshotSink chan<- snapshot.GameSnapshotV1
	logger       *log.Logger

	// pending holds events raised during the current step; they are
	// published after the step's changes were handed to the store.
	pending []events.Event

	reqs     chan request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	period atomic.Uint64
	newID  func() string
}

func New(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg.ID == "" {
		return nil, errors.New("game id is required")
	}
	if opts.Catalogs == nil {
		return nil, errors.New("catalogs are required")
	}
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = opts.Tuning.PeriodMs
	}
	if cfg.PeriodMs <= 0 {
		return nil, errors.New("period_ms must be > 0")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	st := opts.State
	if st == nil {
		st = model.NewState(cfg.ID)
	}
	if st.GameID != cfg.ID {
		return nil, errors.New("state belongs to game " + st.GameID)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.Discard
	}

	vars := variables.NewEngine(opts.Catalogs, variables.NewRegistry(opts.Catalogs))
	aggs := aggregates.NewEngine(opts.Catalogs, vars, opts.Tuning)
	g := &Game{
		cfg:          cfg,
		cats:         opts.Catalogs,
		tuning:       opts.Tuning,
		st:           st,
		vars:         vars,
		aggs:         aggs,
		collab:       jobs.NewStateCollaborators(st, opts.Catalogs),
		store:        opts.Store,
		sink:         sink,
		periodLog:    opts.PeriodLog,
		snapshotSink: opts.SnapshotSink,
		logger:       logger,
		reqs:         make(chan request),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		newID:        uuid.NewString,
	}
	g.jobs = jobs.NewEngine(opts.Catalogs, vars, aggs, opts.Tuning, events.SinkFunc(g.buffer))
	g.period.Store(st.Period)
	return g, nil
}

func (g *Game) ID() string            { return g.cfg.ID }
func (g *Game) Name() string          { return g.cfg.Name }
func (g *Game) Config() Config        { return g.cfg }
func (g *Game) Period() uint64        { return g.period.Load() }
func (g *Game) Done() <-chan struct{} { return g.done }

// Aggregates lists the aggregate definitions. They never change, so this
// does not go through the game loop.
func (g *Game) Aggregates() []aggregates.Def { return g.aggs.Definitions() }

func (g *Game) buffer(ev events.Event) {
	g.pending = append(g.pending, ev)
}
