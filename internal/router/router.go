package router

import (
	"net/http"

	"spritenest-api/internal/handler"
	"spritenest-api/internal/middleware"
	"spritenest-api/pkg/apierror"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	AssetHandler    *handler.AssetHandler
	DownloadHandler *handler.DownloadHandler
	AuthHandler     *handler.AuthHandler
	AdminHandler    *handler.AdminHandler
	FilesHandler    *handler.FilesHandler
	RequireAuth     func(http.Handler) http.Handler
	OptionalAuth    func(http.Handler) http.Handler
	AdminLoginKey   string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		})
	}

	if cfg.AuthHandler != nil {
		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/callback", cfg.AuthHandler.Callback)
			r.With(cfg.OptionalAuth).Get("/me", cfg.AuthHandler.Me)
			r.Post("/signout", cfg.AuthHandler.SignOut)
		})
	}

	if cfg.AssetHandler != nil {
		r.Get("/api/assets", cfg.AssetHandler.List)
		r.Get("/api/assets/{id}", cfg.AssetHandler.Get)

		// Upload requires a logged-in user.
		r.With(cfg.RequireAuth).Post("/api/upload-asset", cfg.AssetHandler.Upload)
	}

	if cfg.DownloadHandler != nil {
		// Downloads work anonymously but attribute the event when a token
		// is present.
		r.With(cfg.OptionalAuth).Post("/api/download", cfg.DownloadHandler.Log)
		r.With(cfg.OptionalAuth).Get("/api/assets/{id}/download", cfg.DownloadHandler.Fetch)
	}

	// Local object serving, only wired for the local storage backend.
	if cfg.FilesHandler != nil {
		r.Get("/files/*", cfg.FilesHandler.Serve)
	}

	// Admin endpoints, guarded by the dashboard login key.
	if cfg.AdminHandler != nil {
		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Use(requireLoginKey(cfg.AdminLoginKey))
			r.Get("/stats", cfg.AdminHandler.GetStats)
			r.Get("/health", cfg.AdminHandler.GetHealth)
			r.Get("/downloads", cfg.AdminHandler.GetDownloads)
		})
	}

	return r
}

// requireLoginKey rejects admin requests whose X-Login-Key header does not
// match the configured key. An empty configured key disables the routes.
func requireLoginKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || r.Header.Get("X-Login-Key") != key {
				err := apierror.Forbidden("Invalid login key")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(err.StatusCode)
				w.Write(err.ToJSON())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
