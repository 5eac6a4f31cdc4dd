package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/attribution-rollup/internal/metrics"
	"github.com/aevon-lab/attribution-rollup/internal/pipeline"
	"github.com/aevon-lab/attribution-rollup/internal/report"
	"github.com/aevon-lab/attribution-rollup/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline and report API and run the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// 1. Load Configuration and Variants
			cfg, variants, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			// 2. Initialize Storage (runs migrations for postgres)
			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			// 3. Initialize Analytics Backend
			querier, closeQuerier, err := openQuerier(ctx, cfg.Analytics)
			if err != nil {
				return fmt.Errorf("failed to initialize analytics backend: %w", err)
			}
			defer closeQuerier()
			if querier == nil {
				slog.Warn("No analytics backend configured; analytics variants will fail")
			}

			// 4. Initialize Metrics
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			collectorsSet := metrics.New(reg)

			// 5. Initialize Pipeline Execution
			locker, closeLocker := newLocker(cfg.Lock)
			defer closeLocker()

			runner := pipeline.NewRunner(querier, st.table, st.runs, collectorsSet, applierOptions(cfg.Store))
			exec := pipeline.NewGuard(runner, locker)

			// 6. Initialize Server
			srv := server.New(
				fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				st.db,
				cfg.Server.Mode,
				int64(cfg.Server.MaxBodySizeMB)<<20,
			)
			srv.Mount(
				pipeline.NewHandler(variants, exec, st.runs),
				report.NewService(st.table, variants),
			)
			if cfg.Metrics.Enabled {
				srv.EnableMetrics(cfg.Metrics.Path, reg)
			}

			// 7. Start Services
			g, gctx := errgroup.WithContext(ctx)
			if cfg.Pipelines.Enabled {
				scheduler := pipeline.NewScheduler(cfg.Pipelines.IntervalDuration(), exec, variants.Variants())
				g.Go(func() error { return scheduler.Start(gctx) })
			} else {
				slog.Info("Pipeline scheduler disabled by config")
			}

			// HTTP server blocks until the context is cancelled.
			g.Go(func() error { return srv.Run(gctx) })

			if err := g.Wait(); err != nil {
				return err
			}
			slog.Info("Shutdown complete")
			return nil
		},
	}
}
