package http

import (
	"net/http"

	"github.com/atinyakov/LegalLens/internal/metrics"
	"github.com/atinyakov/LegalLens/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler that serves Legal Lens.
//
// Routes:
//
//	GET  /                      → h.Home (current page)
//	GET  /{page}?id=            → h.Page (navigation)
//	POST /auth/signup           → h.SignUp       (rate limited)
//	POST /auth/login            → h.Login        (rate limited)
//	GET  /auth/google           → h.GoogleStart  (rate limited)
//	GET  /auth/google/callback  → h.GoogleCallback (rate limited)
//	POST /logout                → h.Logout
//	POST /profile               → h.Profile
//	POST /upload                → h.Upload
//	POST /chat/{id}             → h.Ask
//	POST /theme                 → h.Theme
//	GET  /api/client-config     → h.ClientConfig
//	GET  /healthz, /metrics
//
// Every page and form route runs behind the session cookie middleware;
// form posts must be url-encoded or multipart. limiter may be nil.
func NewRouter(
	h *Handler,
	limiter *middleware.RateLimiter,
	cookies middleware.CookieConfig,
	logger *zap.Logger,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/api/client-config", h.ClientConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionCookie(cookies))
		// After the cookie middleware so that log lines carry the session id.
		r.Use(middleware.WithRequestLogging(logger))

		forms := chiMiddleware.AllowContentType("application/x-www-form-urlencoded", "multipart/form-data")
		limited := r.With()
		if limiter != nil {
			limited = r.With(limiter.Handler)
		}

		r.Get("/", h.Home)
		r.Get("/{page}", h.Page)

		limited.With(forms).Post("/auth/signup", h.SignUp)
		limited.With(forms).Post("/auth/login", h.Login)
		limited.Get("/auth/google", h.GoogleStart)
		limited.Get("/auth/google/callback", h.GoogleCallback)

		r.With(forms).Post("/logout", h.Logout)
		r.With(forms).Post("/profile", h.Profile)
		r.With(forms).Post("/upload", h.Upload)
		r.With(forms).Post("/chat/{id}", h.Ask)
		r.With(forms).Post("/theme", h.Theme)
	})

	return r
}
