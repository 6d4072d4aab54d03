package http

import (
	"net/http"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/google/uuid"
)

// oauthStateCookie carries the anti-forgery state of a Google sign-in.
const oauthStateCookie = "ll_oauth_state"

// SignUp handles POST /auth/signup with the email and password form fields.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.credentialsForm(w, r, "signup", func(s *session.Session, email, password string) error {
		_, err := s.Service.SignUp(r.Context(), email, password)
		return err
	})
}

// Login handles POST /auth/login with the email and password form fields.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.credentialsForm(w, r, "login", func(s *session.Session, email, password string) error {
		_, err := s.Service.Login(r.Context(), email, password)
		return err
	})
}

// credentialsForm runs op with the posted credentials. On success the
// auth-state event has already moved the controller to the dashboard; on
// failure the auth form is shown again with the email kept.
func (h *Handler) credentialsForm(w http.ResponseWriter, r *http.Request, mode string, op func(s *session.Session, email, password string) error) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	email := r.PostForm.Get("email")
	if err := op(s, email, r.PostForm.Get("password")); err != nil {
		route := s.Controller.View()
		if route.Page != models.PageAuth {
			redirect(w, r, "/")
			return
		}
		status := http.StatusUnauthorized
		if mode == "signup" {
			status = http.StatusBadRequest
		}
		h.show(w, r, s, route, status, func(v *pages.View) {
			v.Mode = mode
			v.Email = email
		})
		return
	}
	h.renew(w, r)
	redirect(w, r, "/")
}

// GoogleStart handles GET /auth/google by redirecting to the consent page.
func (h *Handler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	state := uuid.NewString()
	target, err := s.Service.FederatedLoginURL(state)
	if err != nil {
		redirect(w, r, pages.PageURL(models.PageAuth, ""))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback. The state query value
// must match the cookie set by GoogleStart.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/auth/google", MaxAge: -1})

	q := r.URL.Query()
	c, err := r.Cookie(oauthStateCookie)
	switch {
	case q.Get("error") != "":
		notify(s, models.NotifyError, "Google sign-in was cancelled.")
		redirect(w, r, pages.PageURL(models.PageAuth, ""))
		return
	case err != nil || c.Value == "" || c.Value != q.Get("state"):
		notify(s, models.NotifyError, "Google sign-in expired. Please try again.")
		redirect(w, r, pages.PageURL(models.PageAuth, ""))
		return
	case q.Get("code") == "":
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	if _, err := s.Service.LoginWithFederatedProvider(r.Context(), q.Get("code")); err != nil {
		redirect(w, r, pages.PageURL(models.PageAuth, ""))
		return
	}
	h.renew(w, r)
	redirect(w, r, "/")
}

// Logout handles POST /logout. A failed sign-out keeps the current page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	_ = s.Controller.Logout(r.Context())
	redirect(w, r, "/")
}

// Profile handles POST /profile with the displayName form field.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if s.Controller.State() != session.Yes {
		redirect(w, r, "/")
		return
	}
	_ = s.Controller.UpdateUser(r.Context(), r.PostForm.Get("displayName"))
	redirect(w, r, pages.PageURL(models.PageProfile, ""))
}
