package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aevon-lab/attribution-rollup/internal/metrics"
	"github.com/aevon-lab/attribution-rollup/internal/pipeline"
)

func newRunCmd(configPath *string) *cobra.Command {
	var params pipeline.RunParams

	cmd := &cobra.Command{
		Use:   "run <variant>",
		Short: "Run one pipeline variant and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, variants, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			v, err := variants.Get(ctx, args[0])
			if err != nil {
				return err
			}
			// Bad dates are reported before any backend is dialed.
			if _, err := v.ResolveWindow(params, time.Now()); err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			querier, closeQuerier, err := openQuerier(ctx, cfg.Analytics)
			if err != nil {
				return err
			}
			defer closeQuerier()

			locker, closeLocker := newLocker(cfg.Lock)
			defer closeLocker()

			runner := pipeline.NewRunner(querier, st.table, st.runs, metrics.New(prometheus.NewRegistry()), applierOptions(cfg.Store))
			exec := pipeline.NewGuard(runner, locker)

			result, runErr := exec.Run(ctx, v, params)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&params.Start, "start", "", "Window start in the variant's date input style")
	cmd.Flags().StringVar(&params.End, "end", "", "Window end in the variant's date input style")
	cmd.Flags().BoolVar(&params.DryRun, "dry-run", false, "Compute and reconcile without writing")
	return cmd
}
