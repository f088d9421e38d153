package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/lexiz/internal/metrics"
	"github.com/abhisek/lexiz/internal/retention"
	"github.com/abhisek/lexiz/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the streaming evaluation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.Server.ListenAddress = addr
		}
		logger, err := newLogger(cfg, "")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.NewCollector(cfg.Metrics, nil)
		rt, err := buildRuntime(ctx, cfg, m, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.store != nil {
			sched := retention.NewScheduler(rt.store.Events(), cfg.Retention, logger)
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("start retention: %w", err)
			}
			defer sched.Stop()
		}

		gin.SetMode(gin.ReleaseMode)
		srv := server.New(rt.gateway, rt.protection, cfg.Server,
			server.WithMetrics(m),
			server.WithLogger(logger))

		logger.Info("starting lexiz",
			"version", version,
			"provider", cfg.LLM.Provider,
			"rate_max_requests", cfg.Protection.MaxRequests,
			"rate_window", cfg.Protection.Window,
			"failure_threshold", cfg.Protection.FailureThreshold,
			"reset_timeout", cfg.Protection.ResetTimeout)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen_address)")
}
