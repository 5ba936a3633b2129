package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stellarforge.ai/internal/persistence/snapshot"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect, export and restore game snapshots",
	}
	cmd.AddCommand(newSnapshotInspectCmd(opts), newSnapshotExportCmd(opts), newSnapshotRestoreCmd(opts))
	return cmd
}

func newSnapshotInspectCmd(opts *rootOptions) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Print a snapshot summary (defaults to the latest snapshot of --game)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := snapshotPath(opts, gameID, args)
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			titleColor.Fprintf(out, "%s\n", path)
			fmt.Fprintf(out, "game=%s period=%d version=%d next_job_seq=%d\n",
				snap.Header.GameID, snap.Header.Period, snap.Header.Version, snap.NextJobSeq)

			table := newTable(out, "Entity", "Count")
			table.Append([]string{"empires", fmt.Sprint(len(snap.Empires))})
			table.Append([]string{"systems", fmt.Sprint(len(snap.Systems))})
			table.Append([]string{"fleets", fmt.Sprint(len(snap.Fleets))})
			table.Append([]string{"ships", fmt.Sprint(len(snap.Ships))})
			table.Append([]string{"jobs", fmt.Sprint(len(snap.Jobs))})
			if err := table.Render(); err != nil {
				return err
			}

			cats, _, err := opts.loadRules()
			if err != nil {
				warnColor.Fprintf(out, "catalog check skipped: %v\n", err)
				return nil
			}
			current := cats.Digests()
			for _, name := range sortedKeys(snap.Catalogs) {
				if d, ok := current[name]; ok && d != snap.Catalogs[name] {
					warnColor.Fprintf(out, "catalog %s changed since the snapshot\n", name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id (used to find the latest snapshot)")
	return cmd
}

func newSnapshotExportCmd(opts *rootOptions) *cobra.Command {
	var gameID, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of a stored game",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			g, stop, err := opts.openGame(ctx, db, gameID, false)
			if err != nil {
				return err
			}
			defer stop()
			snap, err := g.ExportSnapshot(ctx)
			if err != nil {
				return err
			}
			path := strings.TrimSpace(outPath)
			if path == "" {
				path = snapshot.PathFor(opts.dataDir, gameID, snap.Header.Period)
			}
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "wrote %s (period %d)\n", path, snap.Header.Period)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default: <data>/games/<game>/snapshots/<period>.snap.zst)")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func newSnapshotRestoreCmd(opts *rootOptions) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "restore [path]",
		Short: "Replace a stored game with a snapshot (defaults to the latest snapshot)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := snapshotPath(opts, gameID, args)
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if _, err := db.CreateGame(ctx, gameID, gameID); err != nil {
				return err
			}
			g, stop, err := opts.openGame(ctx, db, gameID, true)
			if err != nil {
				return err
			}
			defer stop()
			if err := g.ImportSnapshot(ctx, snap); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "restored %s to period %d from %s\n", gameID, snap.Header.Period, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func snapshotPath(opts *rootOptions, gameID string, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if gameID == "" {
		return "", fmt.Errorf("need a snapshot path or --game")
	}
	path, err := snapshot.Latest(opts.dataDir, gameID)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no snapshot found for game %s", gameID)
	}
	return path, nil
}
