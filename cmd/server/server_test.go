package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stellarforge.ai/internal/persistence/snapshot"
	"stellarforge.ai/internal/persistence/store"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/multigame"
	"stellarforge.ai/internal/sim/tuning"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

type serverFixture struct {
	deps gameDeps
	spec multigame.GameSpec
}

func newServerFixture(t *testing.T) serverFixture {
	t.Helper()
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	dataDir := t.TempDir()
	db, err := store.OpenSQLite(filepath.Join(dataDir, "index", "test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	bus := events.NewBus(64)

	return serverFixture{
		deps: gameDeps{
			cfg:    serverRuntimeConfig{DataDir: dataDir, EventLog: true},
			cats:   cats,
			tune:   tuning.Defaults(),
			store:  db,
			bus:    bus,
			logger: log.New(io.Discard, "", 0),
		},
		spec: multigame.GameSpec{
			ID:       "demo",
			Name:     "Demo",
			Scenario: filepath.Join(root, "configs", "scenarios", "demo.yaml"),
			PeriodMs: int(time.Hour / time.Millisecond),
		},
	}
}

func (f serverFixture) start(t *testing.T) *multigame.Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rt, release, err := openGame(ctx, f.deps, f.spec)
	if err != nil {
		cancel()
		t.Fatalf("open game: %v", err)
	}
	cfg := multigame.Config{DefaultGameID: f.spec.ID, Games: []multigame.GameSpec{f.spec}}
	mgr, err := multigame.NewManager(cfg, map[string]*multigame.Runtime{f.spec.ID: rt}, f.deps.store, f.deps.logger)
	if err != nil {
		cancel()
		t.Fatalf("new manager: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		release()
	})
	return mgr
}

func TestOpenGame_SeedsFromScenarioThenStore(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	rt, release, err := openGame(ctx, f.deps, f.spec)
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	release()
	if rt.Game.Period() != 0 {
		t.Fatalf("fresh game period=%d", rt.Game.Period())
	}

	st, err := f.deps.store.LoadState(ctx, "demo")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(st.Empires) != 2 || len(st.Systems) != 6 || len(st.Ships) != 4 {
		t.Fatalf("seeded state: empires=%d systems=%d ships=%d", len(st.Empires), len(st.Systems), len(st.Ships))
	}

	_, src, err := restoreState(ctx, f.deps, f.spec)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if src != "store" {
		t.Fatalf("second restore should come from the store, got %q", src)
	}
}

func TestOpenGame_WithoutStoreUsesLatestSnapshot(t *testing.T) {
	f := newServerFixture(t)
	f.deps.store = nil
	ctx := context.Background()

	st, _, err := restoreState(ctx, f.deps, f.spec)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	st.Period = 7
	if err := snapshot.WriteSnapshot(snapshot.PathFor(f.deps.cfg.DataDir, "demo", 7), snapshot.FromState(st, nil)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	rt, release, err := openGame(ctx, f.deps, f.spec)
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	defer release()
	if rt.Game.Period() != 7 {
		t.Fatalf("period=%d want 7", rt.Game.Period())
	}
}

func serve(t *testing.T, mux *http.ServeMux, method, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMux_AdminEndpoints(t *testing.T) {
	f := newServerFixture(t)
	mgr := f.start(t)
	mux := newMux(routes{mgr: mgr, bus: f.deps.bus, logger: f.deps.logger}, serverEnv{EnableAdminHTTP: "true"})
	const local = "127.0.0.1:1234"

	if rec := serve(t, mux, http.MethodGet, "/admin/v1/games", "8.8.8.8:1234"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-loopback admin, got %d", rec.Code)
	}

	rec := serve(t, mux, http.MethodGet, "/admin/v1/games", local)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"game_id":"demo"`) {
		t.Fatalf("games: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, mux, http.MethodGet, "/admin/v1/games/demo/empires/terrans/aggregates/resources.periodic?resource=minerals", local)
	if rec.Code != http.StatusOK {
		t.Fatalf("aggregate: %d %s", rec.Code, rec.Body.String())
	}
	var res aggregates.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}

	if rec := serve(t, mux, http.MethodGet, "/admin/v1/games/demo/empires/terrans/aggregates/nope", local); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown aggregate: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, mux, http.MethodGet, "/admin/v1/games/nope/aggregates", local); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown game: %d", rec.Code)
	}

	rec = serve(t, mux, http.MethodPost, "/admin/v1/games/demo/advance", local)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"period":1`) {
		t.Fatalf("advance: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, mux, http.MethodPost, "/admin/v1/games/demo/snapshot", local)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		path, err := snapshot.Latest(f.deps.cfg.DataDir, "demo")
		if err == nil && path != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot file not written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec := serve(t, mux, http.MethodDelete, "/admin/v1/games/demo/empires/vegans", local); rec.Code != http.StatusOK {
		t.Fatalf("delete empire: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, mux, http.MethodGet, "/admin/v1/games/demo/empires/vegans/jobs", local); rec.Code != http.StatusNotFound {
		t.Fatalf("jobs of deleted empire: %d", rec.Code)
	}

	rec = serve(t, mux, http.MethodGet, "/metrics", local)
	if !strings.Contains(rec.Body.String(), `stellarforge_game_period{game="demo"} 1`) {
		t.Fatalf("metrics missing period line:\n%s", rec.Body.String())
	}
}

func serveBody(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMux_AdminUpdateEmpire(t *testing.T) {
	f := newServerFixture(t)
	mgr := f.start(t)
	mux := newMux(routes{mgr: mgr, bus: f.deps.bus, logger: f.deps.logger}, serverEnv{EnableAdminHTTP: "true"})
	decode := func(rec *httptest.ResponseRecorder) model.Empire {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
		}
		var emp model.Empire
		if err := json.Unmarshal(rec.Body.Bytes(), &emp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return emp
	}

	granted := decode(serveBody(t, mux, http.MethodPatch, "/admin/v1/games/demo/empires/terrans?free=true",
		`{"resources":{"alloys":5}}`))
	if granted.Resources["alloys"] != 5 {
		t.Fatalf("free grant: %+v", granted.Resources)
	}

	// Selling 5 alloys at credit value 3 less the 0.3 fee pays 10.5 credits.
	sold := decode(serveBody(t, mux, http.MethodPatch, "/admin/v1/games/demo/empires/terrans",
		`{"resources":{"alloys":-5},"effects":[{"variable":"empire.market.fee","multiplier":0.5}]}`))
	if sold.Resources["alloys"] != 0 || math.Abs(sold.Resources["credits"]-granted.Resources["credits"]-10.5) > 1e-9 {
		t.Fatalf("sale: before=%v after=%+v", granted.Resources["credits"], sold.Resources)
	}
	if len(sold.Effects) != 1 {
		t.Fatalf("effects not stored: %+v", sold.Effects)
	}

	if rec := serveBody(t, mux, http.MethodPatch, "/admin/v1/games/demo/empires/terrans", `{"resources":{"credits":5}}`); rec.Code != http.StatusBadRequest ||
		!strings.Contains(rec.Body.String(), `"E_VALIDATION"`) {
		t.Fatalf("credits without free: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serveBody(t, mux, http.MethodPatch, "/admin/v1/games/demo/empires/terrans", `{"resourcez":{}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serveBody(t, mux, http.MethodPatch, "/admin/v1/games/demo/empires/nobody", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown empire: %d", rec.Code)
	}

	rec := serveBody(t, mux, http.MethodPut, "/admin/v1/games/demo/systems/sol/effects", `[{"variable":"empire.market.fee","bonus":0.1}]`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"empire.market.fee"`) {
		t.Fatalf("system effects: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serveBody(t, mux, http.MethodPut, "/admin/v1/games/demo/systems/nowhere/effects", `[]`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown system: %d", rec.Code)
	}
}

func TestMux_AdminDisabled(t *testing.T) {
	f := newServerFixture(t)
	mgr := f.start(t)
	mux := newMux(routes{mgr: mgr, bus: f.deps.bus, logger: f.deps.logger}, serverEnv{DeployEnv: "production"})
	if rec := serve(t, mux, http.MethodGet, "/admin/v1/games", "127.0.0.1:1"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected admin routes to be absent, got %d", rec.Code)
	}
}

func TestServerEnv_AdminDefaults(t *testing.T) {
	cases := []struct {
		env  serverEnv
		want bool
	}{
		{serverEnv{}, true},
		{serverEnv{DeployEnv: "staging"}, false},
		{serverEnv{DeployEnv: "production", EnableAdminHTTP: "true"}, true},
		{serverEnv{EnableAdminHTTP: "0"}, false},
	}
	for _, tc := range cases {
		if got := tc.env.adminEnabled(); got != tc.want {
			t.Fatalf("%+v: got %v want %v", tc.env, got, tc.want)
		}
	}
}
