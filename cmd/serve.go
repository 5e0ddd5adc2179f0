package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-finder/internal/api"
	"github.com/sells-group/profile-finder/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Start the HTTP API for batch profile resolution",
	Annotations: map[string]string{configModeKey: "serve"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		env, err := initEnv(cfg, st, (&batchRecorder{st: st}).options()...)
		if err != nil {
			_ = st.Close()
			return err
		}
		defer env.Close()

		handler := api.NewRouter(api.Deps{
			Engine:      env.Orchestrator,
			Store:       st,
			Usage:       env.Usage,
			Defaults:    cfg.Scoring.Thresholds(),
			MaxResults:  cfg.Search.MaxResults,
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, env.Orchestrator),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// In-flight lookups finish and the batch settles so it is persisted.
			if n := env.Orchestrator.Stop(); n > 0 {
				zap.L().Info("stopped active batch", zap.Int("cancelled", n))
			}
			if err := env.Orchestrator.Wait(shutdownCtx); err != nil {
				zap.L().Warn("batch did not settle before shutdown", zap.Error(err))
			}
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
