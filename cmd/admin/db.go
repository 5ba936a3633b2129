package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stellarforge.ai/internal/persistence/store"
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/scenario"
)

func newGamesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List stored games",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			games, err := db.Games(cmd.Context())
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Game", "Name", "Period", "Next Job Seq", "Updated")
			for _, g := range games {
				table.Append([]string{g.ID, g.Name, fmt.Sprint(g.Period), fmt.Sprint(g.NextJobSeq), g.UpdatedAt})
			}
			return table.Render()
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var gameID, name, scenarioPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a game from a scenario file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, _, err := opts.loadRules()
			if err != nil {
				return err
			}
			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}
			if err := sc.Validate(cats); err != nil {
				return err
			}
			st, err := sc.Build(gameID, cats)
			if err != nil {
				return err
			}

			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if err := seedGame(ctx, db, gameID, name, st, force); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "seeded %s from %s: %d empires, %d systems, %d fleets\n",
				gameID, sc.Name, len(st.Empires), len(st.Systems), len(st.Fleets))
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: game id)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "./configs/scenarios/demo.yaml", "scenario file")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing game")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func seedGame(ctx context.Context, db *store.Store, gameID, name string, st *model.State, force bool) error {
	if strings.TrimSpace(name) == "" {
		name = gameID
	}
	_, err := db.Game(ctx, gameID)
	switch {
	case err == nil:
		if !force {
			return fmt.Errorf("game %s already exists (use --force to replace it)", gameID)
		}
		if err := db.DeleteGame(ctx, gameID); err != nil {
			return err
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return err
	}
	if _, err := db.CreateGame(ctx, gameID, name); err != nil {
		return err
	}
	st.MarkAll()
	return db.SaveBatch(ctx, st.TakeChanges())
}

func newEmpiresCmd(opts *rootOptions) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "empires",
		Short: "List the empires of a game with their resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			st, err := db.LoadState(cmd.Context(), gameID)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Empire", "Name", "Traits", "Technologies", "Systems", "Ships", "Resources")
			for _, id := range st.EmpireIDs() {
				e := st.Empires[id]
				table.Append([]string{
					e.ID,
					e.Name,
					strings.Join(e.Traits, ","),
					fmt.Sprint(len(e.Technologies)),
					fmt.Sprint(len(st.EmpireSystems(id))),
					fmt.Sprint(len(st.EmpireShips(id))),
					formatAmounts(e.Resources),
				})
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func newJobsCmd(opts *rootOptions) *cobra.Command {
	var gameID, empireID string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs of a game, optionally for one empire",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			var jobs []*model.Job
			if empireID != "" {
				jobs, err = db.EmpireJobs(ctx, gameID, empireID)
			} else {
				var st *model.State
				st, err = db.LoadState(ctx, gameID)
				if st != nil {
					jobs = st.SortedJobs()
				}
			}
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Seq", "Job", "Empire", "Type", "Target", "Progress", "Status")
			for _, j := range jobs {
				table.Append([]string{
					fmt.Sprint(j.Seq),
					j.ID,
					j.Empire,
					string(j.Type),
					jobTarget(j),
					fmt.Sprintf("%d/%d", j.Progress, j.Total),
					jobStatus(j),
				})
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&empireID, "empire", "", "empire id (optional)")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func jobTarget(j *model.Job) string {
	switch j.Type {
	case model.JobTechnology:
		return j.Technology
	case model.JobBuilding:
		return j.Building + "@" + j.System
	case model.JobDistrict:
		return j.District + "@" + j.System
	case model.JobUpgrade:
		return j.Upgrade + "@" + j.System
	case model.JobShip:
		return j.Ship + "@" + j.System
	case model.JobTravel:
		return j.Fleet + " -> " + strings.Join(j.Path, ",")
	}
	return ""
}

func jobStatus(j *model.Job) string {
	if j.Result == nil {
		return "running"
	}
	return j.Result.Code
}

func formatAmounts(m map[string]float64) string {
	keys := sortedKeys(m)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func newDeleteGameCmd(opts *rootOptions) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "delete-game",
		Short: "Delete a game and everything it owns from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.DeleteGame(cmd.Context(), gameID); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "deleted game %s\n", gameID)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func newDeleteEmpireCmd(opts *rootOptions) *cobra.Command {
	var gameID, empireID string
	cmd := &cobra.Command{
		Use:   "delete-empire",
		Short: "Delete an empire with its fleets, ships and jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			g, stop, err := opts.openGame(ctx, db, gameID, true)
			if err != nil {
				return err
			}
			defer stop()
			if err := g.DeleteEmpire(ctx, empireID); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "deleted empire %s from game %s\n", empireID, gameID)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&empireID, "empire", "", "empire id")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("empire")
	return cmd
}
