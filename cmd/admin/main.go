package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"stellarforge.ai/internal/persistence/store"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/tuning"
)

type rootOptions struct {
	dataDir   string
	dbPath    string
	configDir string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Offline administration of stellarforge games",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite store path (default: <data>/index/stellarforge.sqlite)")
	root.PersistentFlags().StringVar(&opts.configDir, "configs", "./configs", "config directory")

	root.AddCommand(
		newGamesCmd(opts),
		newSeedCmd(opts),
		newEmpiresCmd(opts),
		newJobsCmd(opts),
		newAggregateCmd(opts),
		newExplainCmd(opts),
		newSnapshotCmd(opts),
		newDeleteGameCmd(opts),
		newDeleteEmpireCmd(opts),
		newRemoteCmd(),
	)
	return root
}

func (o *rootOptions) openStore() (*store.Store, error) {
	path := strings.TrimSpace(o.dbPath)
	if path == "" {
		path = filepath.Join(o.dataDir, "index", "stellarforge.sqlite")
	}
	return store.OpenSQLite(path)
}

func (o *rootOptions) loadRules() (*catalogs.Catalogs, tuning.Tuning, error) {
	cats, err := catalogs.Load(o.configDir)
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(filepath.Join(o.configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, tuning.Tuning{}, fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	return cats, tune, nil
}

// openGame loads a stored game and runs its loop without period advances,
// so admin commands go through the same rules as the server. Changes are
// written back to db when persist is set.
func (o *rootOptions) openGame(ctx context.Context, db *store.Store, gameID string, persist bool) (*game.Game, func(), error) {
	if _, err := db.Game(ctx, gameID); err != nil {
		return nil, nil, err
	}
	cats, tune, err := o.loadRules()
	if err != nil {
		return nil, nil, err
	}
	st, err := db.LoadState(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	opts := game.Options{
		Config:   game.Config{ID: gameID, PeriodMs: math.MaxInt32},
		Catalogs: cats,
		Tuning:   tune,
		State:    st,
		Logger:   adminLogger,
	}
	if persist {
		opts.Store = db
	}
	g, err := game.New(opts)
	if err != nil {
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = g.Run(runCtx) }()
	stop := func() {
		g.Stop()
		<-g.Done()
		cancel()
	}
	return g, stop, nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithHeader(header))
}

var adminLogger = log.New(os.Stderr, "[admin] ", log.LstdFlags)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
)
