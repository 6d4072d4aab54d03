// Package http serves the Legal Lens pages and auth routes over HTTP.
package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/atinyakov/LegalLens/internal/config"
	"github.com/atinyakov/LegalLens/internal/metrics"
	"github.com/atinyakov/LegalLens/internal/middleware"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"go.uber.org/zap"
)

// defaultReadyTimeout bounds how long a page request waits for the first
// auth-state event before rendering the loading page.
const defaultReadyTimeout = 2 * time.Second

// Sessions resolves the live session of a browser session id.
type Sessions interface {
	Get(ctx context.Context, sid string) (*session.Session, error)
	// Rotate moves the session of sid to a fresh id.
	Rotate(ctx context.Context, sid string) (*session.Session, error)
}

// Documents defines the analysis backend operations used by the pages.
type Documents interface {
	List(ctx context.Context, tokens service.TokenSource) ([]models.Document, error)
	Upload(ctx context.Context, tokens service.TokenSource, filename string, r io.Reader) (*models.Document, error)
	Report(ctx context.Context, tokens service.TokenSource, id string) (*models.AnalysisReport, error)
	Conversation(ctx context.Context, tokens service.TokenSource, id string) ([]models.ChatMessage, error)
	Ask(ctx context.Context, tokens service.TokenSource, id, question string) (*models.ChatMessage, error)
}

// Handler serves pages, auth routes and form posts.
type Handler struct {
	Sessions  Sessions
	Documents Documents
	Pages     *pages.Renderer
	// Identity is published by the client-config endpoint.
	Identity config.Identity
	// GoogleEnabled shows the Google sign-in button.
	GoogleEnabled bool
	// CookieSecure marks the theme and OAuth state cookies Secure.
	CookieSecure bool
	// ReadyTimeout defaults to two seconds.
	ReadyTimeout time.Duration
	// HealthCheck, when set, is consulted by /healthz.
	HealthCheck func(ctx context.Context) error
	Logger      *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// session returns the session bound to the request's session cookie.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := middleware.GetSessionIDFromContext(r.Context())
	s, err := h.Sessions.Get(r.Context(), sid)
	if err != nil {
		h.log().Error("failed to resolve session", zap.String("sid", sid), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}

// renew moves a freshly signed-in session to a new id and cookie, so that
// an id known before sign-in never carries the signed-in user.
func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	sid := middleware.GetSessionIDFromContext(r.Context())
	s, err := h.Sessions.Rotate(r.Context(), sid)
	if err != nil {
		h.log().Error("failed to rotate session", zap.String("sid", sid), zap.Error(err))
		return
	}
	middleware.ReissueSessionCookie(w, r, s.ID)
}

// waitReady gives the background restore a short head start so that a
// returning user does not see the loading page on every first request.
func (h *Handler) waitReady(r *http.Request, s *session.Session) {
	timeout := h.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	_ = s.Controller.WaitReady(ctx)
}

// render writes v with the session user, theme and pending notifications.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, s *session.Session, status int, v *pages.View) {
	v.User = s.Controller.User()
	v.Theme = theme(r)
	v.Notifications = s.Controller.Drain()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.Pages.Render(w, v); err != nil {
		h.log().Error("failed to render page", zap.String("page", string(v.Page)), zap.Error(err))
		return
	}
	metrics.RecordPageRender(string(v.Page))
}

// redirect sends a 303 so that a reload never repeats a form post.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func theme(r *http.Request) pages.Theme {
	if c, err := r.Cookie(pages.ThemeCookieName); err == nil {
		return pages.ParseTheme(c.Value)
	}
	return pages.ThemeDark
}

func notify(s *session.Session, level models.NotificationLevel, msg string) {
	s.Controller.Notify(models.Notification{Level: level, Message: msg, At: time.Now()})
}

// backendNotice turns an analysis backend failure into inline page text.
func backendNotice(err error) string {
	return service.DocumentMessage(err)
}
