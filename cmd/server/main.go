package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stellarforge.ai/internal/persistence/r2s3"
	"stellarforge.ai/internal/persistence/store"
	"stellarforge.ai/internal/platform/config"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/multigame"
	"stellarforge.ai/internal/sim/tuning"
)

type serverEnv struct {
	EnableAdminHTTP string `env:"SF_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"SF_ENABLE_PPROF_HTTP" envDefault:"false"`
	EventLog        bool   `env:"SF_EVENT_LOG" envDefault:"true"`
	EventBuffer     int    `env:"SF_EVENT_BUFFER"`
	DeployEnv       string `env:"DEPLOY_ENV"`

	R2 r2s3.Config `envPrefix:"SF_R2_"`
}

// adminEnabled defaults to off in staging and production.
func (e serverEnv) adminEnabled() bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(e.EnableAdminHTTP)); err == nil {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		gamesPath  = flag.String("games", "./configs/games.yaml", "hosted games config (defaults to a single demo game when missing)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "run without the sqlite store (state lives in memory and snapshots)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var env serverEnv
	if err := config.ParseEnv(&env); err != nil {
		logger.Fatalf("env: %v", err)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	gp := strings.TrimSpace(*gamesPath)
	if _, err := os.Stat(gp); err != nil {
		gp = ""
	}
	gcfg, err := multigame.Load(gp)
	if err != nil {
		logger.Fatalf("load games config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var db *store.Store
	if !*disableDB {
		db, err = store.OpenSQLite(filepath.Join(*dataDir, "index", "stellarforge.sqlite"))
		if err != nil {
			logger.Fatalf("open store: %v", err)
		}
		defer db.Close()
		if err := db.UpsertCatalogs(ctx, cats, tune); err != nil {
			logger.Printf("store: upsert catalogs: %v", err)
		}
	}

	buffer := tune.EventBuffer
	if env.EventBuffer > 0 {
		buffer = env.EventBuffer
	}
	bus := events.NewBus(buffer)

	var mirror *r2s3.Mirror
	if env.R2.Enabled() {
		client, err := r2s3.NewClient(env.R2)
		if err != nil {
			logger.Fatalf("r2: %v", err)
		}
		mirror = r2s3.NewMirror(client, *dataDir, env.R2.Prefix, env.R2.Queue, logger)
		defer mirror.Close()
		logger.Printf("mirroring snapshots to bucket %s", env.R2.Bucket)
	}

	deps := gameDeps{
		cfg:    serverRuntimeConfig{DataDir: *dataDir, EventLog: env.EventLog},
		cats:   cats,
		tune:   tune,
		store:  db,
		bus:    bus,
		mirror: mirror,
		logger: logger,
	}
	runtimes := map[string]*multigame.Runtime{}
	for _, spec := range gcfg.Games {
		rt, release, err := openGame(ctx, deps, spec)
		if err != nil {
			logger.Fatalf("open game: %v", err)
		}
		defer release()
		runtimes[spec.ID] = rt
	}

	var gameStore multigame.GameStore
	if db != nil {
		gameStore = db
	}
	mgr, err := multigame.NewManager(gcfg, runtimes, gameStore, logger)
	if err != nil {
		logger.Fatalf("multigame manager: %v", err)
	}
	go func() {
		if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("games stopped: %v", err)
			cancel()
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(routes{mgr: mgr, bus: bus, mirror: mirror, logger: logger}, env),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s games=%v", *addr, mgr.GameIDs())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
