package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/internal/api/auth"
	"github.com/rebuild-dev/rebuild-server/internal/config"
	"github.com/rebuild-dev/rebuild-server/internal/resource"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/rebuild-dev/rebuild-server/pkg/monitoring"
	"github.com/rs/cors"
)

var log = logging.GetLogger("api")

const (
	RootPath    = "/"
	HealthPath  = "/health"
	UsersPath   = "/" + resource.UsersResource
	RolesPath   = "/" + resource.RolesResource
	AuthPath    = "/auth"
	LoginPath   = "/login"
	LogoutPath  = "/logout"
	MePath      = "/me"
	EventsPath  = "/events"
	MetricsName = "metrics"

	// TotalCountHeader carries the number of entities matching a list request before pagination.
	TotalCountHeader = "X-Total-Count"
)

// NewRouter returns a *mux.Router which can be
// used by the net/http package to serve the routes of the mock API.
func NewRouter(registry *resource.Registry, issuer *auth.Issuer, hub *EventHub) *mux.Router {
	router := mux.NewRouter()
	configureRouter(router, registry, issuer, hub)
	router.Use(logging.HTTPLoggingMiddleware)
	router.Use(monitoring.InfluxDB2Middleware)
	router.Use(monitoring.PrometheusMiddleware)
	return router
}

// configureRouter configures a given router with all routes of the mock API.
func configureRouter(router *mux.Router, registry *resource.Registry, issuer *auth.Issuer, hub *EventHub) {
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithField("path", logging.RemoveNewlineSymbol(r.URL.Path)).Debug("Not Found Handler")
		w.WriteHeader(http.StatusNotFound)
	})
	router.HandleFunc(RootPath, Root).Methods(http.MethodGet).Name(RootPath)
	router.HandleFunc(HealthPath, Health).Methods(http.MethodGet).Name(HealthPath)

	NewUserController(registry).ConfigureRoutes(router)
	NewRoleController(registry).ConfigureRoutes(router)
	(&AuthController{registry: registry, issuer: issuer}).ConfigureRoutes(router)

	if hub != nil {
		router.Handle(EventsPath, hub).Methods(http.MethodGet).Name(EventsPath)
	}
	if config.Config.Metrics.Enabled {
		router.Handle(config.Config.Metrics.Path, monitoring.PrometheusHandler()).
			Methods(http.MethodGet).Name(MetricsName)
	}
}

// NewCORSHandler allows the configured frontend origins to call the API and to read the total count header.
func NewCORSHandler(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: config.Config.Server.CORS.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{TotalCountHeader},
		AllowCredentials: true,
	}).Handler(next)
}
