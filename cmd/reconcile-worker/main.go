package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/booking"
	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/config"
	"github.com/axisimaging/radiology-booking/internal/db"
	"github.com/axisimaging/radiology-booking/internal/ris"
)

// The reconcile worker retries the RIS mirror for pending bookings that
// never reached Voyager. It does no slot locking: the rows it touches are
// already committed locally.

const reconcileBatchSize = 50

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("app", "reconcile-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if !cfg.VoyagerEnabled() {
		log.Fatal().Msg("VOYAGER_API_URL is not set, nothing to reconcile")
	}

	log.Info().Str("env", cfg.Env).
		Dur("interval", cfg.ReconcileInterval).
		Dur("min_age", cfg.ReconcileMinAge).
		Msg("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	gateway := ris.NewVoyagerClient(ris.VoyagerConfig{
		BaseURL:    cfg.VoyagerBaseURL,
		Username:   cfg.VoyagerUsername,
		Password:   cfg.VoyagerPassword,
		FacilityID: cfg.VoyagerFacilityID,
		Timeout:    cfg.VoyagerTimeout,
	}, log)

	svc := booking.NewService(booking.ServiceConfig{
		Repo:          booking.NewPgRepository(pgPool),
		Catalog:       catalog.NewPgRepository(pgPool),
		Gateway:       gateway,
		Logger:        log,
		MirrorTimeout: cfg.VoyagerTimeout,
	})

	// Run once at startup
	runOnce(rootCtx, svc, cfg.ReconcileMinAge, log)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReconcileMinAge, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, minAge time.Duration, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ReconcilePending(runCtx, minAge, reconcileBatchSize); err != nil {
		log.Error().Err(err).Msg("reconcile run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("reconcile run complete")
}
