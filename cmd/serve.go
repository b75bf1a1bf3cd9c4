package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hidrobio/price-monitor/internal/monitoring"
	"github.com/hidrobio/price-monitor/internal/trigger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily scheduler and the on-demand HTTP trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		trg := trigger.New(env.Runner.Run, time.Duration(cfg.Server.MinIntervalMins)*time.Minute)
		watchdog := monitoring.NewWatchdog(env.Store, 26*time.Hour, time.Hour)

		scheduler, err := trigger.NewScheduler(trg, cfg.Schedule)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := trigger.NewServer(trg, env.Store, port)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			err := scheduler.Run(gctx)
			if eris.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		g.Go(func() error {
			watchdog.Run(gctx)
			return nil
		})

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
