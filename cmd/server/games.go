package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	persistlog "stellarforge.ai/internal/persistence/log"
	"stellarforge.ai/internal/persistence/r2s3"
	"stellarforge.ai/internal/persistence/snapshot"
	"stellarforge.ai/internal/persistence/store"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/multigame"
	"stellarforge.ai/internal/sim/scenario"
	"stellarforge.ai/internal/sim/tuning"
)

type serverRuntimeConfig struct {
	DataDir  string
	EventLog bool
}

type gameDeps struct {
	cfg    serverRuntimeConfig
	cats   *catalogs.Catalogs
	tune   tuning.Tuning
	store  *store.Store // nil when the database is disabled
	bus    *events.Bus
	mirror *r2s3.Mirror // nil unless SF_R2_* is set
	logger *log.Logger
}

// openGame restores one game (store, then latest snapshot, then scenario)
// and wires its loggers and snapshot writer. The returned func releases
// the game's files.
func openGame(ctx context.Context, deps gameDeps, spec multigame.GameSpec) (*multigame.Runtime, func(), error) {
	gameDir := filepath.Join(deps.cfg.DataDir, "games", spec.ID)
	if err := os.MkdirAll(gameDir, 0o755); err != nil {
		return nil, nil, err
	}

	st, source, err := restoreState(ctx, deps, spec)
	if err != nil {
		return nil, nil, fmt.Errorf("game %s: %w", spec.ID, err)
	}
	if deps.store != nil && st.HasChanges() {
		if err := deps.store.SaveBatch(ctx, st.TakeChanges()); err != nil {
			return nil, nil, fmt.Errorf("game %s: initial save: %w", spec.ID, err)
		}
	}
	st.ResetChanges()
	deps.logger.Printf("game %s restored from %s period=%d empires=%d", spec.ID, source, st.Period, len(st.Empires))

	periodLog := persistlog.NewPeriodLogger(gameDir)
	var eventLog *persistlog.EventLogger
	var sink events.Sink = deps.bus
	if deps.cfg.EventLog {
		eventLog = persistlog.NewEventLogger(gameDir)
		eventLog.OnError(func(err error, failures uint64) {
			deps.logger.Printf("event log (%s): %v (failures=%d)", spec.ID, err, failures)
		})
		sink = events.Tee(deps.bus, eventLog)
	}
	release := func() {
		_ = periodLog.Close()
		if eventLog != nil {
			_ = eventLog.Close()
		}
	}

	snapEvery := spec.SnapshotEveryPeriods
	if snapEvery <= 0 {
		snapEvery = deps.tune.SnapshotEveryPeriods
	}
	snapCh := make(chan snapshot.GameSnapshotV1, 2)
	opts := game.Options{
		Config: game.Config{
			ID:                   spec.ID,
			Name:                 spec.Name,
			PeriodMs:             spec.PeriodMs,
			SnapshotEveryPeriods: snapEvery,
			Economy:              spec.EconomyEnabled(deps.tune.Economy),
		},
		Catalogs:     deps.cats,
		Tuning:       deps.tune,
		State:        st,
		Sink:         sink,
		PeriodLog:    periodLog,
		SnapshotSink: snapCh,
		Logger:       deps.logger,
	}
	if deps.store != nil {
		opts.Store = deps.store
	}
	g, err := game.New(opts)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("game %s: %w", spec.ID, err)
	}

	go writeSnapshots(ctx, deps, spec.ID, snapCh)

	return &multigame.Runtime{Spec: spec, Game: g}, release, nil
}

func restoreState(ctx context.Context, deps gameDeps, spec multigame.GameSpec) (*model.State, string, error) {
	if deps.store != nil {
		if _, err := deps.store.CreateGame(ctx, spec.ID, spec.Name); err != nil {
			return nil, "", err
		}
		st, err := deps.store.LoadState(ctx, spec.ID)
		if err != nil {
			return nil, "", err
		}
		if !isEmpty(st) {
			return st, "store", nil
		}
	}

	path, err := snapshot.Latest(deps.cfg.DataDir, spec.ID)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return nil, "", err
		}
		if snap.Header.GameID != "" && snap.Header.GameID != spec.ID {
			return nil, "", fmt.Errorf("snapshot %s belongs to game %s", path, snap.Header.GameID)
		}
		st := snap.State()
		st.MarkAll()
		return st, filepath.Base(path), nil
	}

	if spec.Scenario == "" {
		return model.NewState(spec.ID), "empty state", nil
	}
	sc, err := scenario.Load(spec.Scenario)
	if err != nil {
		return nil, "", err
	}
	if err := sc.Validate(deps.cats); err != nil {
		return nil, "", err
	}
	st, err := sc.Build(spec.ID, deps.cats)
	if err != nil {
		return nil, "", err
	}
	st.MarkAll()
	return st, "scenario " + sc.Name, nil
}

func isEmpty(st *model.State) bool {
	return st.Period == 0 && len(st.Empires) == 0 && len(st.Systems) == 0
}

func writeSnapshots(ctx context.Context, deps gameDeps, gameID string, ch <-chan snapshot.GameSnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.PathFor(deps.cfg.DataDir, gameID, snap.Header.Period)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				deps.logger.Printf("snapshot write (%s): %v", gameID, err)
				continue
			}
			deps.mirror.Enqueue(path)
			if deps.store != nil {
				if err := deps.store.SetMeta(ctx, "snapshot."+gameID, path); err != nil {
					deps.logger.Printf("snapshot meta (%s): %v", gameID, err)
				}
			}
		}
	}
}
