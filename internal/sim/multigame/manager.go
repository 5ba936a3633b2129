// Package multigame hosts every configured game and runs their loops in
// parallel. Games share no mutable state.
package multigame

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/game"
)

const gameRequestTimeout = 3 * time.Second

type Runtime struct {
	Spec GameSpec
	Game *game.Game
}

// GameStore removes a game and everything it owns.
type GameStore interface {
	DeleteGame(ctx context.Context, id string) error
}

type Manager struct {
	mu sync.RWMutex

	runtimes  map[string]*Runtime
	defaultID string
	store     GameStore
	logger    *log.Logger

	running bool
	runCtx  context.Context
	wg      sync.WaitGroup
	errs    chan error
}

func NewManager(cfg Config, runtimes map[string]*Runtime, store GameStore, logger *log.Logger) (*Manager, error) {
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("empty runtimes")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, spec := range cfg.Games {
		rt := runtimes[spec.ID]
		if rt == nil || rt.Game == nil {
			return nil, fmt.Errorf("missing runtime for game %s", spec.ID)
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		runtimes:  runtimes,
		defaultID: cfg.DefaultGameID,
		store:     store,
		logger:    logger,
		errs:      make(chan error, len(runtimes)),
	}, nil
}

func (m *Manager) GameIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Runtime(id string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtimes[id]
}

func (m *Manager) DefaultGameID() string { return m.defaultID }

// Game resolves a game id; an empty id selects the default game.
func (m *Manager) Game(id string) (*game.Game, error) {
	if id == "" {
		id = m.defaultID
	}
	rt := m.Runtime(id)
	if rt == nil {
		return nil, apperrors.New(protocol.ErrGameNotFound, "game "+id+" not found")
	}
	return rt.Game, nil
}

// Manifest describes every hosted game, sorted by id.
func (m *Manager) Manifest() []protocol.GameRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.GameRef, 0, len(m.runtimes))
	for id, rt := range m.runtimes {
		out = append(out, protocol.GameRef{
			GameID:   id,
			Name:     rt.Game.Name(),
			Period:   rt.Game.Period(),
			PeriodMs: rt.Game.Config().PeriodMs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// Run starts every game loop and blocks until ctx is done or a game fails.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("manager already running")
	}
	m.running = true
	m.runCtx = ctx
	for _, rt := range m.runtimes {
		m.startLocked(ctx, rt)
	}
	m.mu.Unlock()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-m.errs:
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

func (m *Manager) startLocked(ctx context.Context, rt *Runtime) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := rt.Game.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Printf("game %s stopped: %v", rt.Spec.ID, err)
			select {
			case m.errs <- fmt.Errorf("game %s: %w", rt.Spec.ID, err):
			default:
			}
		}
	}()
}

// Add registers a game created after startup and starts it if the manager
// is running.
func (m *Manager) Add(rt *Runtime) error {
	if rt == nil || rt.Game == nil {
		return fmt.Errorf("nil runtime")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runtimes[rt.Spec.ID]; ok {
		return apperrors.Conflict("game %s already exists", rt.Spec.ID)
	}
	m.runtimes[rt.Spec.ID] = rt
	if m.running {
		m.startLocked(m.runCtx, rt)
	}
	return nil
}

// DeleteGame deletes every empire of the game (announcing each), stops its
// loop and removes it from the store.
func (m *Manager) DeleteGame(ctx context.Context, id string) error {
	rt := m.Runtime(id)
	if rt == nil {
		return apperrors.New(protocol.ErrGameNotFound, "game "+id+" not found")
	}
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()

	if running {
		rctx, cancel := context.WithTimeout(ctx, gameRequestTimeout)
		emps, err := rt.Game.Empires(rctx)
		cancel()
		if err != nil {
			return fmt.Errorf("delete game %s: %w", id, err)
		}
		for _, emp := range emps {
			rctx, cancel := context.WithTimeout(ctx, gameRequestTimeout)
			err := rt.Game.DeleteEmpire(rctx, emp.ID)
			cancel()
			if err != nil {
				return fmt.Errorf("delete game %s: empire %s: %w", id, emp.ID, err)
			}
		}
		rt.Game.Stop()
		select {
		case <-rt.Game.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	delete(m.runtimes, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteGame(ctx, id); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("delete game %s: %w", id, err)
		}
	}
	return nil
}
