package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/handlers"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
)

// RouterDeps carries everything the HTTP routes need.
type RouterDeps struct {
	Authorizer handlers.Authorizer
	Users      *services.UserService
	Tokens     *services.TokenService
	Mods       *services.ModService
	Redirects  *services.RedirectService
	Exports    *services.ExportService
	Logger     logging.Logger
	HTTP       config.HTTPConfig
	StaticDir  string
}

// NewRouter assembles the middleware stack and every route.
func NewRouter(d RouterDeps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if d.HTTP.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(
		requestLogger(d.Logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: d.HTTP.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		rateLimit(d.HTTP.RateLimitPerMinute),
		middleware.Timeout(60*time.Second),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", handlers.Healthz)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, d.Authorizer, d.Tokens, d.Users, d.Logger)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, d.Authorizer, d.Users, d.Logger)
		})
		r.Route("/mods", func(r chi.Router) {
			handlers.ModRouter(r, d.Authorizer, d.Mods, d.Logger)
		})
		r.Route("/redirects", func(r chi.Router) {
			handlers.RedirectRouter(r, d.Authorizer, d.Redirects, d.Logger)
		})
		r.Route("/exports", func(r chi.Router) {
			handlers.ExportRouter(r, d.Authorizer, d.Exports, d.Logger)
		})
	})
	router.Route("/r", func(r chi.Router) {
		handlers.FollowRouter(r, d.Redirects, d.Logger)
	})

	if d.StaticDir != "" {
		router.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}

	return router
}
