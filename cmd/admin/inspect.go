package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/game"
)

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	var gameID, empireID string
	var params []string
	var list bool
	cmd := &cobra.Command{
		Use:   "aggregate [name]",
		Short: "Compute a named aggregate for an empire",
		Args:  cobra.MaximumNArgs(1),
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

			out := cmd.OutOrStdout()
			if list || len(args) == 0 {
				table := newTable(out, "Aggregate", "Params", "Description")
				for _, d := range g.Aggregates() {
					table.Append([]string{d.Name, strings.Join(sortedKeys(d.Params), ","), d.Description})
				}
				return table.Render()
			}

			p := aggregates.Params{}
			for _, kv := range params {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("bad --param %q (want key=value)", kv)
				}
				p[k] = v
			}
			res, err := g.Aggregate(ctx, empireID, args[0], p)
			if err != nil {
				return err
			}
			titleColor.Fprintf(out, "%s for %s: %g\n", args[0], empireID, res.Total)
			table := newTable(out, "Variable", "Count", "Subtotal")
			for _, it := range res.Items {
				table.Append([]string{it.Variable, fmt.Sprintf("%g", it.Count), fmt.Sprintf("%g", it.Subtotal)})
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&empireID, "empire", "", "empire id")
	cmd.Flags().StringArrayVar(&params, "param", nil, "aggregate parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&list, "list", false, "list the available aggregates")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func newExplainCmd(opts *rootOptions) *cobra.Command {
	var gameID, empireID, category string
	var ref game.ScopeRef
	cmd := &cobra.Command{
		Use:   "explain [path]",
		Short: "Break a variable down by effect source, or print a whole category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if category == "" && len(args) == 0 {
				return fmt.Errorf("need a variable path or --category")
			}
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

			out := cmd.OutOrStdout()
			if category != "" {
				set, err := g.Variables(ctx, empireID, category, ref)
				if err != nil {
					return err
				}
				table := newTable(out, "Variable", "Value", "Table")
				for _, k := range sortedKeys(set.Standard) {
					table.Append([]string{k, fmt.Sprintf("%g", set.Standard[k]), "standard"})
				}
				for _, k := range sortedKeys(set.Extra) {
					table.Append([]string{k, fmt.Sprintf("%g", set.Extra[k]), "extra"})
				}
				return table.Render()
			}

			ex, err := g.Explain(ctx, empireID, args[0], ref)
			if err != nil {
				return err
			}
			titleColor.Fprintf(out, "%s: initial %g, final %g\n", ex.Variable, ex.Initial, ex.Final)
			table := newTable(out, "Source", "Base", "Multiplier", "Bonus")
			for _, src := range ex.Sources {
				for _, e := range src.Effects {
					table.Append([]string{src.ID, optFloat(e.Base), optFloat(e.Multiplier), optFloat(e.Bonus)})
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&empireID, "empire", "", "empire id")
	cmd.Flags().StringVar(&category, "category", "", "variable category to print instead of one path")
	cmd.Flags().StringVar(&ref.System, "system", "", "evaluate in the scope of a system")
	cmd.Flags().StringVar(&ref.Fleet, "fleet", "", "evaluate in the scope of a fleet")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("empire")
	return cmd
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
