package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/referral"
)

type RouterConfig struct {
	Catalog      catalog.Repository
	Availability AvailabilityResolver
	Booking      BookingService
	Referrals    referral.Store

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Voyager VoyagerProber

	ClinicLocation  *time.Location
	ReferralMaxSize int64
	Logger          zerolog.Logger
	Env             string
	Version         string

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ClinicLocation == nil {
		cfg.ClinicLocation = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Voyager, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Catalog endpoints
	r.Get("/services", listServicesHandler(cfg.Catalog))
	r.Get("/services/{id}", getServiceHandler(cfg.Catalog))
	r.Get("/services/{id}/body-parts", listBodyPartsHandler(cfg.Catalog))
	r.Get("/body-parts/{id}", getBodyPartHandler(cfg.Catalog))
	r.Get("/body-parts/{id}/preparation", getPreparationHandler(cfg.Catalog))

	// Availability
	r.Get("/availability", availabilityHandler(cfg.Availability, cfg.Catalog, cfg.ClinicLocation, cfg.Now))

	// Bookings
	r.Post("/bookings", createBookingHandler(cfg.Booking))
	r.Get("/bookings", listBookingsHandler(cfg.Booking))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Booking))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Booking))
	r.Post("/bookings/{id}/complete", completeBookingHandler(cfg.Booking))

	// Referral uploads
	if cfg.Referrals != nil {
		r.Post("/referrals/upload", uploadReferralHandler(cfg.Referrals, cfg.ReferralMaxSize, cfg.Logger))
	}

	return r
}
