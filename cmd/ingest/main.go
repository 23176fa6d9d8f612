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

	"github.com/EmpoweredVote/sr311/internal/config"
	"github.com/EmpoweredVote/sr311/internal/db"
	"github.com/EmpoweredVote/sr311/internal/honolulu"
	"github.com/EmpoweredVote/sr311/internal/ingest"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/metrics"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional YAML config file")
		schedule    = flag.String("schedule", "", "cron expression; overrides SR311_SCHEDULE (empty runs once)")
		metricsAddr = flag.String("metrics-addr", ":9311", "address for /metrics in scheduled mode")
		runNow      = flag.Bool("now", false, "in scheduled mode, also run once at startup")
	)
	flag.Parse()

	_ = godotenv.Load(".env.local")

	cfg, err := loadConfig(*configPath)
	if err == nil && *schedule != "" {
		cfg.Ingest.Schedule = *schedule
	}
	if err == nil {
		err = cfg.Validate()
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	l := logging.Component("ingest")
	if err != nil {
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Ingest.Schedule == "" {
		if _, err := ingest.RunOnce(ctx, cfg); err != nil {
			l.Fatal().Err(err).Msg("ingestion failed")
		}
		return
	}

	d, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close(d)

	s, err := ingest.NewScheduler(cfg.Ingest.Schedule, d, honolulu.NewClient(cfg.Ingest))
	if err != nil {
		l.Fatal().Err(err).Msg("failed to schedule ingestion")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("metrics server failed")
		}
	}()

	s.Start()
	if *runNow {
		go s.RunNow()
	}

	<-ctx.Done()
	l.Info().Msg("Stopping scheduler")
	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
