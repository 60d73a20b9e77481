package routes

import (
	"net/http"

	"github.com/LordWorm1996/DormNet/internal/api/handlers"
	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	reservationHandler *handlers.ReservationHandler
	calendarHandler    *handlers.CalendarHandler
	applianceHandler   *handlers.ApplianceHandler
	accountHandler     *handlers.AccountHandler
	sseHandler         *handlers.SSEHandler
	websocketHandler   *handlers.WebSocketHandler

	sessions        providers.SessionProvider
	appliances      repositories.ApplianceRepository
	users           repositories.UserRepository
	cacheMiddleware *middleware.CacheMiddleware
	allowedOrigins  []string
	metrics         *observability.Metrics
}

// Options carries the optional collaborators of the router. Nil entries disable their feature.
type Options struct {
	SSEHandler       *handlers.SSEHandler
	WebSocketHandler *handlers.WebSocketHandler
	Sessions         providers.SessionProvider
	Appliances       repositories.ApplianceRepository
	Users            repositories.UserRepository
	CacheMiddleware  *middleware.CacheMiddleware
	AllowedOrigins   []string
	Metrics          *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	reservationHandler *handlers.ReservationHandler,
	calendarHandler *handlers.CalendarHandler,
	applianceHandler *handlers.ApplianceHandler,
	accountHandler *handlers.AccountHandler,
	opts Options,
) *Router {
	return &Router{
		mux: http.NewServeMux(),

		reservationHandler: reservationHandler,
		calendarHandler:    calendarHandler,
		applianceHandler:   applianceHandler,
		accountHandler:     accountHandler,
		sseHandler:         opts.SSEHandler,
		websocketHandler:   opts.WebSocketHandler,

		sessions:        opts.Sessions,
		appliances:      opts.Appliances,
		users:           opts.Users,
		cacheMiddleware: opts.CacheMiddleware,
		allowedOrigins:  opts.AllowedOrigins,
		metrics:         opts.Metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Booking endpoints
	r.mux.HandleFunc("GET /api/bookings/conflict", r.reservationHandler.CheckConflict)
	r.mux.HandleFunc("GET /api/bookings", r.reservationHandler.ListReservations)
	r.mux.HandleFunc("POST /api/bookings", middleware.RequireUser(r.reservationHandler.CreateReservation))
	r.mux.HandleFunc("GET /api/bookings/{id}", r.reservationHandler.GetReservation)
	r.mux.HandleFunc("DELETE /api/bookings/{id}", middleware.RequireUser(r.reservationHandler.DeleteReservation))

	// Calendar
	r.mux.HandleFunc("GET /api/calendar", r.calendarHandler.GetCalendar)

	// Appliance directory
	r.mux.HandleFunc("GET /api/appliances", r.applianceHandler.ListAppliances)
	r.mux.HandleFunc("GET /api/appliances/search", r.applianceHandler.SearchAppliances)
	r.mux.HandleFunc("GET /api/appliances/{id}", r.applianceHandler.GetAppliance)

	// Session-bound endpoints
	r.mux.HandleFunc("GET /api/me", middleware.RequireUser(r.accountHandler.Me))
	r.mux.HandleFunc("GET /api/admin/stats", middleware.RequireAdmin(r.accountHandler.AdminStats))

	// Live updates
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/appliances/{id}", r.sseHandler.StreamApplianceUpdates)
		r.mux.HandleFunc("GET /api/stream/reservations", r.sseHandler.StreamReservationUpdates)
	}
	if r.websocketHandler != nil {
		r.mux.HandleFunc("GET /api/ws/reservations", r.websocketHandler.StreamReservations)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = middleware.CaptureRoute(r.mux)
	handler = middleware.LoggingMiddleware(handler)

	// Public GET responses only; session-bound routes are not in the cache table
	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	if r.appliances != nil && r.users != nil {
		handler = middleware.LoadersMiddleware(r.appliances, r.users)(handler)
	}

	if r.sessions != nil {
		handler = middleware.SessionMiddleware(r.sessions)(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// Compression, ETag and cache headers; streams bypass it
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
