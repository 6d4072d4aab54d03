// Package middleware provides HTTP middlewares for browser sessions, rate
// limiting and request logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	sessionKey ctxKey = "session"
	cookieKey  ctxKey = "session-cookie"
)

// SessionCookieName names the browser session cookie.
const SessionCookieName = "ll_session"

// CookieConfig configures the session cookie.
type CookieConfig struct {
	// Secure marks the cookie HTTPS-only.
	Secure bool
	// MaxAge is the cookie lifetime; zero makes it a browser-session cookie.
	MaxAge time.Duration
}

// SessionCookie is a middleware that assigns every browser a session id.
//
// A request without a valid session cookie gets a fresh random UUID, which
// is sent back as an HttpOnly, SameSite=Lax cookie. With a MaxAge the cookie
// is re-sent on every request so that its lifetime slides like the session
// store TTL. The id is stored in the request context for downstream handlers.
func SessionCookie(cfg CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					sid = id.String()
				}
			}
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, sessionCookie(cfg, sid))
			} else if cfg.MaxAge > 0 {
				http.SetCookie(w, sessionCookie(cfg, sid))
			}
			ctx := context.WithValue(r.Context(), sessionKey, sid)
			ctx = context.WithValue(ctx, cookieKey, cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReissueSessionCookie replaces the session cookie of the response with sid.
// Handlers call it after moving a session to a new id.
func ReissueSessionCookie(w http.ResponseWriter, r *http.Request, sid string) {
	cfg, _ := r.Context().Value(cookieKey).(CookieConfig)
	header := w.Header()
	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, SessionCookieName+"=") {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	http.SetCookie(w, sessionCookie(cfg, sid))
}

func sessionCookie(cfg CookieConfig, sid string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.MaxAge > 0 {
		cookie.MaxAge = int(cfg.MaxAge.Seconds())
	}
	return cookie
}

// GetSessionIDFromContext extracts the browser session id from the request
// context. Returns an empty string if not found.
func GetSessionIDFromContext(ctx context.Context) string {
	val := ctx.Value(sessionKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying sid.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionKey, sid)
}
