package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "kora/internal/adapters/http"
	pg "kora/internal/adapters/postgres"
	"kora/internal/adapters/rpcnotary"
	"kora/internal/alerting"
	"kora/internal/anomaly"
	"kora/internal/config"
	"kora/internal/domain"
	"kora/internal/logging"
	"kora/internal/services/pipeline"
	"kora/internal/simulation"
	ws "kora/internal/websocket"
	"kora/internal/workers/reconciler"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info", true)
		log := logging.Component("main")
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogConsole)
	log := logging.Component("main")

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("database_url is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres")
	}
	defer db.Close()

	hub := ws.NewHub()
	go hub.Run(ctx)

	notary := rpcnotary.New(rpcnotary.Config{
		RPCURL:          cfg.Notary.RPCURL,
		ContractAddress: cfg.Notary.ContractAddress,
		Timeout:         cfg.Notary.Timeout,
	})
	classifier := anomaly.NewClassifier(cfg.Pipeline.SpeedThreshold)
	fanout := alerting.NewFanout(hub)
	pipe := pipeline.New(db, notary, fanout, classifier, cfg.Notary.Timeout)

	reader, err := simulation.NewReader(cfg.Simulation.DatasetPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading telemetry dataset")
	}
	simulator := simulation.NewSimulator(reader, func(ctx context.Context, sample domain.TelemetrySample) {
		if _, err := pipe.Ingest(ctx, sample); err != nil {
			log.Warn().Err(err).Str("device_id", sample.DeviceID).Msg("simulated ingest failed")
		}
	})

	if cfg.Sweeper.Enabled {
		go reconciler.Run(ctx, db, pipe, reconciler.Config{
			Interval:  cfg.Sweeper.Interval,
			StaleAge:  cfg.Sweeper.StaleAge,
			BatchSize: cfg.Sweeper.BatchSize,
		})
	}

	srv := httpadapter.New(ctx, pipe, simulator, reader, db, db, hub, classifier, cfg.Simulation.DefaultInterval)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Env).Msg("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	simulator.StopAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Let in-flight notarizations reconcile before the pool closes.
	pipe.Wait()
	cancel()
}
