package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/appgeocercas/api/app"
	"github.com/appgeocercas/api/auth"
	"github.com/appgeocercas/api/handlers"
	"github.com/appgeocercas/api/middleware"
	"github.com/appgeocercas/api/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := deps.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(chimiddleware.Timeout(timeout))
	r.Use(auth.RequestScope)

	// CORS middleware. Credentials are allowed so the web client can send session cookies.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	health := deps.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil, deps.Logger)
	}
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// Session credential endpoints
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authEndpoint(deps, (*auth.Handler).HandleLogin))
		r.Post("/refresh", authEndpoint(deps, (*auth.Handler).HandleRefresh))
		r.Post("/logout", authEndpoint(deps, (*auth.Handler).HandleLogout))
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			// Bootstrap only needs a valid session, the caller may have no organization yet
			r.Post("/bootstrap", deps.SessionHandler.HandleBootstrap)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireContext)
				r.Get("/", deps.SessionHandler.HandleGetSession)
				r.Get("/memberships", deps.SessionHandler.HandleListMemberships)
				if deps.AuditHandler != nil {
					r.Get("/audit", deps.AuditHandler.HandleListMine)
				}
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found")
	})

	return otelhttp.NewHandler(r, deps.Config.Observability.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// authEndpoint binds an auth.Handler method to the router. Without an auth
// handler the endpoint answers 500.
func authEndpoint(deps *app.Dependencies, handle func(*auth.Handler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := deps.AuthHandler()
		if h == nil {
			_ = utils.WriteInternalServerError(w, utils.MsgInternalError)
			return
		}
		handle(h, w, r)
	}
}
