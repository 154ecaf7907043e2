package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/api"
	"github.com/axisimaging/radiology-booking/internal/availability"
	"github.com/axisimaging/radiology-booking/internal/booking"
	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/config"
	"github.com/axisimaging/radiology-booking/internal/db"
	redisclient "github.com/axisimaging/radiology-booking/internal/redis"
	"github.com/axisimaging/radiology-booking/internal/referral"
	"github.com/axisimaging/radiology-booking/internal/ris"
)

var version = "dev"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("app", "api-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).
		Str("clinic_timezone", cfg.ClinicTimezone).
		Bool("voyager_enabled", cfg.VoyagerEnabled()).
		Msg("api-server starting up")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	catalogRepo := catalog.NewPgRepository(pgPool)
	bookingRepo := booking.NewPgRepository(pgPool)
	templateStore := availability.NewPgTemplateStore(pgPool)

	var gateway ris.Gateway
	var voyagerProber api.VoyagerProber
	if cfg.VoyagerEnabled() {
		voyager := ris.NewVoyagerClient(ris.VoyagerConfig{
			BaseURL:    cfg.VoyagerBaseURL,
			Username:   cfg.VoyagerUsername,
			Password:   cfg.VoyagerPassword,
			FacilityID: cfg.VoyagerFacilityID,
			Timeout:    cfg.VoyagerTimeout,
		}, log)
		gateway = voyager
		voyagerProber = voyager
	}

	resolver := availability.NewResolver(availability.ResolverConfig{
		Catalog:        catalogRepo,
		Templates:      templateStore,
		Appointments:   bookingRepo,
		Gateway:        gateway,
		Location:       cfg.Location,
		GatewayTimeout: cfg.VoyagerTimeout,
		Logger:         log,
	})

	bookingSvc := booking.NewService(booking.ServiceConfig{
		Repo:          bookingRepo,
		Catalog:       catalogRepo,
		Gateway:       gateway,
		Locker:        redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Logger:        log,
		MirrorTimeout: cfg.VoyagerTimeout,
	})

	referralStore, err := referral.NewDiskStore(cfg.ReferralDir, cfg.ReferralBaseURL, cfg.ReferralMaxBytes, log)
	if err != nil {
		log.Fatal().Err(err).Msg("referral store init error")
	}

	router := api.NewRouter(api.RouterConfig{
		Catalog:         catalogRepo,
		Availability:    resolver,
		Booking:         bookingSvc,
		Referrals:       referralStore,
		PgPool:          pgPool,
		Redis:           rdb,
		Voyager:         voyagerProber,
		ClinicLocation:  cfg.Location,
		ReferralMaxSize: cfg.ReferralMaxBytes,
		Logger:          log,
		Env:             cfg.Env,
		Version:         version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server error")
	case <-rootCtx.Done():
	}

	log.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
