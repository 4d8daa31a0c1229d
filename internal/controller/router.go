package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/config"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	customMW "github.com/roboyicecream/kioskpay/internal/middleware"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Engine SaleSettler
	// Pulses is nil unless the coin line is simulated.
	Pulses      PulseInjector
	Readiness   []ReadinessCheck
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	ServiceName string
	CORSConfig  config.CORSConfig
	RateLimit   int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Readiness...)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Get("/health", healthH.Health)
		r.Get("/health/live", healthH.Liveness)
		r.Get("/health/ready", healthH.Readiness)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.RateLimit))

		// no request timeout: a sale holds the connection for its whole window
		r.Post("/sales", NewSaleController(deps.Engine).Create)

		if deps.Pulses != nil {
			r.Post("/pulses", NewPulseController(deps.Pulses).Inject)
		}
	})

	return r
}
