package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/api"
	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/notify"
	"github.com/Skryldev/appointments/repo"
	"github.com/Skryldev/appointments/telemetry"
)

func serveCmd() *cobra.Command {
	var (
		autoMigrate bool
		seed        bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), autoMigrate, seed)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "apply schema migrations before serving")
	cmd.Flags().BoolVar(&seed, "seed", false, "insert sample appointments when the store is empty")
	return cmd
}

func runServe(parent context.Context, autoMigrate, seed bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tp, err := telemetry.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics("appointments", reg)

	if autoMigrate && cfg.Database.Backend == config.BackendSQL {
		if err := migrateUp(cfg, log); err != nil {
			return err
		}
	}
	sh, err := openStore(ctx, cfg, log, metrics, autoMigrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := sh.close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
	}()

	// The memory backend always starts from the sample data; it has
	// nothing else to show.
	if seed || cfg.Database.Backend == config.BackendMemory {
		n, err := repo.Seed(ctx, sh.store)
		if err != nil {
			return err
		}
		log.Info("seeded sample appointments", zap.Int("inserted", n))
	}

	loc, err := cfg.Clock.Location()
	if err != nil {
		return err
	}

	hooks := []notify.Hook{notify.LogHook(log)}
	if cfg.Kafka.Enabled() {
		pub := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka),
			notify.WithPublishTimeout(cfg.Kafka.WriteTimeout),
			notify.WithKafkaLogger(log),
		)
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("closing kafka writer", zap.Error(err))
			}
		}()
		hooks = append(hooks, pub)
		log.Info("publishing status events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	svc := engine.New(sh.store,
		engine.WithClock(engine.SystemClock(loc)),
		engine.WithNotifier(notify.NewFanout(hooks...)),
		engine.WithLogger(log.Named("engine")),
		engine.WithMetrics(metrics),
	)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := api.RouterOptions{
		Logger:    log.Named("http"),
		Metrics:   metrics,
		CORS:      cfg.CORS,
		RateLimit: cfg.RateLimit,
		Version:   cfg.App.Version,
	}
	if sh.ping != nil {
		opts.Health = sh.ping
	}
	router := api.NewRouter(svc, opts)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Database.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
