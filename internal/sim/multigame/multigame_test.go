package multigame

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
)

func TestLoad_GamesYAML(t *testing.T) {
	cfg, err := Load("../../../configs/games.yaml")
	if err != nil {
		t.Fatalf("load games.yaml: %v", err)
	}
	if cfg.DefaultGameID == "" || len(cfg.Games) == 0 {
		t.Fatalf("config: %+v", cfg)
	}
	if _, ok := cfg.GameSpecByID(cfg.DefaultGameID); !ok {
		t.Fatalf("default game %q missing", cfg.DefaultGameID)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultGameID != "demo" || len(cfg.Games) != 1 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"blank id", Config{Games: []GameSpec{{ID: " "}}}},
		{"dotted id", Config{Games: []GameSpec{{ID: "a.b"}}}},
		{"duplicate", Config{Games: []GameSpec{{ID: "a"}, {ID: "a"}}}},
		{"negative period", Config{Games: []GameSpec{{ID: "a", PeriodMs: -1}}}},
		{"unknown default", Config{DefaultGameID: "b", Games: []GameSpec{{ID: "a"}}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	cfg := Config{Games: []GameSpec{{ID: "a"}, {ID: "b", Name: "Bravo"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.Normalize()
	if cfg.DefaultGameID != "a" || cfg.Games[0].Name != "a" {
		t.Fatalf("normalize: %+v", cfg)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.yaml")
	if err := os.WriteFile(path, []byte("games:\n  - id: a\n  - id: a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestEconomyEnabled(t *testing.T) {
	off := false
	if !(GameSpec{}).EconomyEnabled(true) || (GameSpec{Economy: &off}).EconomyEnabled(true) {
		t.Fatalf("economy override not applied")
	}
}

type fakeStore struct {
	mu      sync.Mutex
	deleted []string
}

func (s *fakeStore) DeleteGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func newRuntime(t *testing.T, id string, sink events.Sink) *Runtime {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	st := model.NewState(id)
	st.PutEmpire(&model.Empire{ID: "e1", Resources: map[string]float64{}})
	st.PutEmpire(&model.Empire{ID: "e2", Resources: map[string]float64{}})
	st.ResetChanges()
	g, err := game.New(game.Options{
		Config:   game.Config{ID: id, PeriodMs: 5},
		Catalogs: cats,
		Tuning:   tuning.Defaults(),
		State:    st,
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return &Runtime{Spec: GameSpec{ID: id}, Game: g}
}

func TestManagerRunsGamesInParallel(t *testing.T) {
	rec := &events.Recorder{}
	cfg := Config{Games: []GameSpec{{ID: "a"}, {ID: "b"}}}
	rts := map[string]*Runtime{"a": newRuntime(t, "a", rec), "b": newRuntime(t, "b", rec)}
	store := &fakeStore{}
	m, err := NewManager(cfg, rts, store, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for m.Runtime("a").Game.Period() < 2 || m.Runtime("b").Game.Period() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("games did not advance")
		}
		time.Sleep(5 * time.Millisecond)
	}

	refs := m.Manifest()
	if len(refs) != 2 || refs[0].GameID != "a" || refs[1].GameID != "b" {
		t.Fatalf("manifest: %+v", refs)
	}

	if err := m.DeleteGame(context.Background(), "a"); err != nil {
		t.Fatalf("delete game: %v", err)
	}
	if rec.Count(events.EmpireDeleted) != 2 {
		t.Fatalf("empire.deleted events: %d", rec.Count(events.EmpireDeleted))
	}
	if m.Runtime("a") != nil || len(store.deleted) != 1 || store.deleted[0] != "a" {
		t.Fatalf("game a not removed: %v", store.deleted)
	}
	if _, err := m.Game("a"); apperrors.CodeOf(err) != protocol.ErrGameNotFound {
		t.Fatalf("deleted game lookup: %v", err)
	}
	if err := m.DeleteGame(context.Background(), "a"); apperrors.CodeOf(err) != protocol.ErrGameNotFound {
		t.Fatalf("second delete: %v", err)
	}

	if err := m.Add(newRuntime(t, "c", rec)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Add(newRuntime(t, "b", rec)); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("duplicate add: %v", err)
	}
	for m.Runtime("c").Game.Period() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("added game did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}

func TestManagerDefaultGame(t *testing.T) {
	cfg := Config{DefaultGameID: "b", Games: []GameSpec{{ID: "a"}, {ID: "b"}}}
	rts := map[string]*Runtime{"a": newRuntime(t, "a", nil), "b": newRuntime(t, "b", nil)}
	m, err := NewManager(cfg, rts, nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	g, err := m.Game("")
	if err != nil || g.ID() != "b" {
		t.Fatalf("default game: %v %v", g, err)
	}
	if _, err := NewManager(Config{Games: []GameSpec{{ID: "x"}}}, rts, nil, nil); err == nil {
		t.Fatalf("expected missing runtime error")
	}
}
