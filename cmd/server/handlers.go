package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"stellarforge.ai/internal/persistence/r2s3"
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/multigame"
	"stellarforge.ai/internal/transport/ws"
)

const adminTimeout = 5 * time.Second

type routes struct {
	mgr    *multigame.Manager
	bus    *events.Bus
	mirror *r2s3.Mirror
	logger *log.Logger
}

func newMux(rt routes, env serverEnv) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metrics)
	mux.HandleFunc("/v1/ws", ws.NewServer(rt.mgr, rt.bus, rt.logger).Handler())

	if env.adminEnabled() {
		mux.HandleFunc("GET /admin/v1/games", loopbackOnly(rt.listGames))
		mux.HandleFunc("DELETE /admin/v1/games/{game}", loopbackOnly(rt.deleteGame))
		mux.HandleFunc("POST /admin/v1/games/{game}/snapshot", loopbackOnly(rt.snapshot))
		mux.HandleFunc("POST /admin/v1/games/{game}/advance", loopbackOnly(rt.advance))
		mux.HandleFunc("GET /admin/v1/games/{game}/aggregates", loopbackOnly(rt.aggregateDefs))
		mux.HandleFunc("GET /admin/v1/games/{game}/empires/{empire}/jobs", loopbackOnly(rt.jobs))
		mux.HandleFunc("GET /admin/v1/games/{game}/empires/{empire}/aggregates/{name}", loopbackOnly(rt.aggregate))
		mux.HandleFunc("GET /admin/v1/games/{game}/empires/{empire}/explain", loopbackOnly(rt.explain))
		mux.HandleFunc("PATCH /admin/v1/games/{game}/empires/{empire}", loopbackOnly(rt.updateEmpire))
		mux.HandleFunc("DELETE /admin/v1/games/{game}/empires/{empire}", loopbackOnly(rt.deleteEmpire))
		mux.HandleFunc("PUT /admin/v1/games/{game}/systems/{system}/effects", loopbackOnly(rt.systemEffects))
	} else {
		rt.logger.Printf("admin endpoints disabled (SF_ENABLE_ADMIN_HTTP=false)")
	}
	if env.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		rt.logger.Printf("pprof endpoints disabled (SF_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

func (rt routes) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP stellarforge_game_period Current period of a game.\n")
	fmt.Fprintf(rw, "# TYPE stellarforge_game_period gauge\n")
	for _, id := range rt.mgr.GameIDs() {
		run := rt.mgr.Runtime(id)
		if run == nil || run.Game == nil {
			continue
		}
		fmt.Fprintf(rw, "stellarforge_game_period{game=%q} %d\n", id, run.Game.Period())
	}

	fmt.Fprintf(rw, "# HELP stellarforge_event_subscribers Live event bus subscribers.\n")
	fmt.Fprintf(rw, "# TYPE stellarforge_event_subscribers gauge\n")
	fmt.Fprintf(rw, "stellarforge_event_subscribers %d\n", rt.bus.Subscribers())

	fmt.Fprintf(rw, "# HELP stellarforge_events_dropped_total Events dropped on full subscriber queues.\n")
	fmt.Fprintf(rw, "# TYPE stellarforge_events_dropped_total counter\n")
	fmt.Fprintf(rw, "stellarforge_events_dropped_total %d\n", rt.bus.Dropped())

	if rt.mirror == nil {
		return
	}
	ms := rt.mirror.Stats()
	fmt.Fprintf(rw, "# HELP stellarforge_r2_mirror_queue Snapshots waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE stellarforge_r2_mirror_queue gauge\n")
	fmt.Fprintf(rw, "stellarforge_r2_mirror_queue %d\n", ms.Queued)
	fmt.Fprintf(rw, "# HELP stellarforge_r2_mirror_uploads_total Snapshot uploads by outcome.\n")
	fmt.Fprintf(rw, "# TYPE stellarforge_r2_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "stellarforge_r2_mirror_uploads_total{result=\"ok\"} %d\n", ms.Uploaded)
	fmt.Fprintf(rw, "stellarforge_r2_mirror_uploads_total{result=\"failed\"} %d\n", ms.Failed)
	fmt.Fprintf(rw, "stellarforge_r2_mirror_uploads_total{result=\"dropped\"} %d\n", ms.Dropped)
}

func (rt routes) game(rw http.ResponseWriter, r *http.Request) (*game.Game, bool) {
	g, err := rt.mgr.Game(r.PathValue("game"))
	if err != nil {
		writeError(rw, err)
		return nil, false
	}
	return g, true
}

func (rt routes) listGames(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"default_game_id": rt.mgr.DefaultGameID(),
		"games":           rt.mgr.Manifest(),
	})
}

func (rt routes) deleteGame(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("game")
	ctx, cancel := context.WithTimeout(r.Context(), 2*adminTimeout)
	defer cancel()
	if err := rt.mgr.DeleteGame(ctx, id); err != nil {
		writeError(rw, err)
		return
	}
	rt.logger.Printf("admin: deleted game %s", id)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "game_id": id})
}

func (rt routes) snapshot(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	period, err := g.RequestSnapshot(ctx)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "game_id": g.ID(), "period": period})
}

func (rt routes) advance(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	entry, err := g.AdvancePeriod(ctx)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, entry)
}

func (rt routes) aggregateDefs(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, g.Aggregates())
}

func (rt routes) jobs(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	jobs, err := g.Jobs(ctx, r.PathValue("empire"))
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, jobs)
}

func (rt routes) aggregate(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	params := aggregates.Params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	res, err := g.Aggregate(ctx, r.PathValue("empire"), r.PathValue("name"), params)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

func (rt routes) explain(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	ref := game.ScopeRef{System: q.Get("system"), Fleet: q.Get("fleet")}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	if cat := q.Get("category"); cat != "" {
		set, err := g.Variables(ctx, r.PathValue("empire"), cat, ref)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, set)
		return
	}
	ex, err := g.Explain(ctx, r.PathValue("empire"), q.Get("path"), ref)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, ex)
}

func (rt routes) deleteEmpire(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	empire := r.PathValue("empire")
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	if err := g.DeleteEmpire(ctx, empire); err != nil {
		writeError(rw, err)
		return
	}
	rt.logger.Printf("admin: deleted empire %s from game %s", empire, g.ID())
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "game_id": g.ID(), "empire_id": empire})
}

// updateEmpire applies a game.EmpireUpdate body. ?free=true skips the
// market and may change credits directly.
func (rt routes) updateEmpire(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	var upd game.EmpireUpdate
	if err := decodeBody(rw, r, &upd); err != nil {
		writeError(rw, err)
		return
	}
	upd.Free = r.URL.Query().Get("free") == "true"
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	emp, err := g.UpdateEmpire(ctx, r.PathValue("empire"), upd)
	if err != nil {
		writeError(rw, err)
		return
	}
	rt.logger.Printf("admin: updated empire %s in game %s (free=%v)", emp.ID, g.ID(), upd.Free)
	writeJSON(rw, http.StatusOK, emp)
}

func (rt routes) systemEffects(rw http.ResponseWriter, r *http.Request) {
	g, ok := rt.game(rw, r)
	if !ok {
		return
	}
	var effects []model.Effect
	if err := decodeBody(rw, r, &effects); err != nil {
		writeError(rw, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	sys, err := g.UpdateSystemEffects(ctx, r.PathValue("system"), effects)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, sys)
}

func decodeBody(rw http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.BadRequest("invalid body: %v", err)
	}
	return nil
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(rw, apperrors.HTTPStatus(code), map[string]any{"ok": false, "code": code, "error": err.Error()})
}
