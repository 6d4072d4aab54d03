package http

import (
	"net/http"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Home renders the controller's current route.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.waitReady(r, s)
	h.show(w, r, s, s.Controller.View(), http.StatusOK, nil)
}

// Page handles GET /{page}?id=<documentId>. The request is a navigation:
// when the controller falls back to another page the browser is
// redirected there.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.waitReady(r, s)

	want := models.RouteState{
		Page:   models.Page(chi.URLParam(r, "page")),
		Params: models.RouteParams{ID: r.URL.Query().Get("id")},
	}
	got := s.Controller.Navigate(want.Page, want.Params)
	if got.Page != models.PageLoading && got != want {
		redirect(w, r, pages.PageURL(got.Page, got.Params.ID))
		return
	}
	h.show(w, r, s, got, http.StatusOK, nil)
}

// show renders route with the data its page needs; edit adjusts the view
// before rendering.
func (h *Handler) show(w http.ResponseWriter, r *http.Request, s *session.Session, route models.RouteState, status int, edit func(*pages.View)) {
	v := &pages.View{Page: route.Page, Params: route.Params}
	ctx := r.Context()

	switch route.Page {
	case models.PageAuth:
		v.Mode = "login"
		if r.URL.Query().Get("mode") == "signup" {
			v.Mode = "signup"
		}
		v.GoogleEnabled = h.GoogleEnabled
		v.ShowLanding = s.Controller.Policy() == session.PolicyLanding
	case models.PageDashboard:
		docs, err := h.Documents.List(ctx, s.Tokens)
		if err != nil {
			h.log().Warn("failed to list documents", zap.Error(err))
			v.BackendNotice = backendNotice(err)
		}
		v.Documents = docs
	case models.PageAnalysis:
		if route.Params.ID == "" {
			v.BackendNotice = "Select a document on the dashboard to see its analysis."
			break
		}
		report, err := h.Documents.Report(ctx, s.Tokens, route.Params.ID)
		if err != nil {
			h.log().Warn("failed to load analysis", zap.String("document", route.Params.ID), zap.Error(err))
			v.BackendNotice = backendNotice(err)
		}
		v.Report = report
	case models.PageChat:
		if route.Params.ID == "" {
			break
		}
		msgs, err := h.Documents.Conversation(ctx, s.Tokens, route.Params.ID)
		if err != nil {
			h.log().Warn("failed to load conversation", zap.String("document", route.Params.ID), zap.Error(err))
			v.BackendNotice = backendNotice(err)
		}
		v.Messages = msgs
	}

	if edit != nil {
		edit(v)
	}
	h.render(w, r, s, status, v)
}

// Theme flips the colour scheme cookie.
func (h *Handler) Theme(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     pages.ThemeCookieName,
		Value:    string(theme(r).Toggle()),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	redirect(w, r, "/")
}
