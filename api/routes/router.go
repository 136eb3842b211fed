package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfarehq/wayfare-backend/api/controllers"
	"github.com/wayfarehq/wayfare-backend/api/middleware"
	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/manualentry"
	"github.com/wayfarehq/wayfare-backend/internal/notifier"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/redis"
)

type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Redis        *redis.Client
	Pingers      map[string]controllers.Pinger
	Metrics      prometheus.Gatherer
	Availability availability.Service
	Reservations controllers.ReservationService
	ManualEntry  *manualentry.Adapter
	Hub          *notifier.Hub
	ListingsRepo listings.Repository
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	// a typed nil would slip past the middleware's interface nil check
	var idemStore redis.IdempotencyStore
	if deps.Redis != nil {
		idemStore = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/items/{itemId}", func(r chi.Router) {
		r.Get("/", controllers.GetItem(deps.ListingsRepo, logg))
		r.Route("/availability", func(r chi.Router) {
			r.Get("/", controllers.GetAvailability(deps.Availability, logg))
			r.Get("/today", controllers.TodayAvailability(deps.Availability, logg))
			r.Get("/subscribe", controllers.SubscribeAvailability(deps.Availability, deps.Hub, logg))
		})
	})

	r.Route("/api/v1/reservations", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/", controllers.CreateReservation(deps.Reservations, logg))
		r.Get("/{reservationId}", controllers.GetReservation(deps.Reservations, logg))
		r.Post("/{reservationId}/confirm", controllers.ConfirmReservation(deps.Reservations, logg))
		r.Post("/{reservationId}/cancel", controllers.CancelReservation(deps.Reservations, logg))
		r.Post("/{reservationId}/reschedule", controllers.RescheduleReservation(deps.Reservations, logg))
	})

	r.Route("/api/v1/host", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleHost.String(), logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/manual-bookings/precheck", controllers.ManualPreCheck(deps.ManualEntry, logg))
		r.Post("/manual-bookings", controllers.ManualBooking(deps.ManualEntry, logg))
		r.Get("/items", controllers.HostItems(deps.ListingsRepo, logg))
		r.Put("/items/{itemId}/capacity", controllers.UpdateItemCapacity(deps.ListingsRepo, logg))
	})

	return r
}
