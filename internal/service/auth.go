// Package service provides the auth adapter: the only place that talks to
// the identity gateway on behalf of pages, turning every outcome into a
// user notification.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/metrics"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Operation names used in errors, logs and metrics.
const (
	OpSignUp        = "signup"
	OpLogin         = "login"
	OpGoogle        = "google"
	OpLogout        = "logout"
	OpUpdateProfile = "update_profile"
)

var successMessages = map[string]string{
	OpSignUp:        "Account created successfully!",
	OpLogin:         "Logged in successfully!",
	OpGoogle:        "Google sign-in successful!",
	OpLogout:        "Logged out successfully!",
	OpUpdateProfile: "Profile updated!",
}

var failureMessages = map[string]string{
	OpSignUp:        "Failed to create account",
	OpLogin:         "Failed to log in",
	OpGoogle:        "Failed to sign in with Google",
	OpLogout:        "Failed to log out",
	OpUpdateProfile: "Failed to update profile",
}

// Gateway defines the identity operations required by the auth service.
// *identity.Auth implements it.
type Gateway interface {
	CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*identity.Credential, error)
	SignInWithEmailAndPassword(ctx context.Context, email, password string) (*identity.Credential, error)
	GoogleAuthURL(state string) (string, error)
	SignInWithGoogle(ctx context.Context, code string) (*identity.Credential, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, displayName string) error
	OnAuthStateChanged(fn identity.Listener) func()
	CurrentUser() *models.User
}

// Notifier receives the user-visible outcome of each operation.
type Notifier interface {
	Notify(n models.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n models.Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n models.Notification) { f(n) }

// AuthError is returned by every failed auth operation. Message is the
// text already shown to the user.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type profile struct {
	DisplayName string `validate:"required,min=1,max=64"`
}

// AuthService wraps a Gateway with notifications, validation, logging and
// metrics.
type AuthService struct {
	gw       Gateway
	notifier Notifier
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService. A nil notifier discards
// notifications; a nil logger disables logging.
func NewAuthService(gw Gateway, notifier Notifier, log *zap.Logger) *AuthService {
	if notifier == nil {
		notifier = NotifierFunc(func(models.Notification) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		gw:       gw,
		notifier: notifier,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*identity.Credential, error) {
	start := time.Now()
	if err := s.validate.Struct(credentials{Email: email, Password: password}); err != nil {
		return nil, s.fail(OpSignUp, start, err)
	}
	cred, err := s.gw.CreateUserWithEmailAndPassword(ctx, email, password)
	if err != nil {
		return nil, s.fail(OpSignUp, start, err)
	}
	s.succeed(OpSignUp, start, zap.String("uid", cred.LocalID))
	return cred, nil
}

// Login signs in with email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*identity.Credential, error) {
	start := time.Now()
	if err := s.validate.Struct(credentials{Email: email, Password: password}); err != nil {
		return nil, s.fail(OpLogin, start, err)
	}
	cred, err := s.gw.SignInWithEmailAndPassword(ctx, email, password)
	if err != nil {
		return nil, s.fail(OpLogin, start, err)
	}
	s.succeed(OpLogin, start, zap.String("uid", cred.LocalID))
	return cred, nil
}

// FederatedLoginURL returns where to send the browser to start Google
// sign-in. It does not notify; only the completed flow does.
func (s *AuthService) FederatedLoginURL(state string) (string, error) {
	u, err := s.gw.GoogleAuthURL(state)
	if err != nil {
		return "", s.fail(OpGoogle, time.Now(), err)
	}
	return u, nil
}

// LoginWithFederatedProvider completes Google sign-in with the
// authorization code.
func (s *AuthService) LoginWithFederatedProvider(ctx context.Context, code string) (*identity.Credential, error) {
	start := time.Now()
	cred, err := s.gw.SignInWithGoogle(ctx, code)
	if err != nil {
		return nil, s.fail(OpGoogle, start, err)
	}
	s.succeed(OpGoogle, start, zap.String("uid", cred.LocalID), zap.Bool("new_user", cred.IsNewUser))
	return cred, nil
}

// Logout ends the session.
func (s *AuthService) Logout(ctx context.Context) error {
	start := time.Now()
	if err := s.gw.SignOut(ctx); err != nil {
		return s.fail(OpLogout, start, err)
	}
	s.succeed(OpLogout, start)
	return nil
}

// UpdateDisplayName sets the display name of the current user.
func (s *AuthService) UpdateDisplayName(ctx context.Context, name string) error {
	start := time.Now()
	if s.gw.CurrentUser() == nil {
		return s.fail(OpUpdateProfile, start, identity.ErrNoUser)
	}
	if err := s.validate.Struct(profile{DisplayName: name}); err != nil {
		return s.fail(OpUpdateProfile, start, err)
	}
	if err := s.gw.UpdateProfile(ctx, name); err != nil {
		return s.fail(OpUpdateProfile, start, err)
	}
	s.succeed(OpUpdateProfile, start)
	return nil
}

// SubscribeToAuthState relays gateway auth-state events unchanged.
func (s *AuthService) SubscribeToAuthState(fn func(*models.User)) (unsubscribe func()) {
	return s.gw.OnAuthStateChanged(fn)
}

// CurrentUser returns the signed-in user, or nil.
func (s *AuthService) CurrentUser() *models.User {
	return s.gw.CurrentUser()
}

// IsAuthenticated reports whether a user is signed in.
func (s *AuthService) IsAuthenticated() bool {
	return s.gw.CurrentUser() != nil
}

func (s *AuthService) succeed(op string, start time.Time, fields ...zap.Field) {
	metrics.RecordAuth(op, true, time.Since(start))
	s.log.Info("auth operation succeeded", append([]zap.Field{zap.String("op", op)}, fields...)...)
	s.notifier.Notify(models.Notification{
		Level:   models.NotifySuccess,
		Message: successMessages[op],
		At:      s.now(),
	})
}

func (s *AuthService) fail(op string, start time.Time, err error) error {
	msg := userMessage(op, err)
	metrics.RecordAuth(op, false, time.Since(start))
	s.log.Warn("auth operation failed", zap.String("op", op), zap.String("message", msg), zap.Error(err))
	s.notifier.Notify(models.Notification{
		Level:   models.NotifyError,
		Message: msg,
		At:      s.now(),
	})
	return &AuthError{Op: op, Message: msg, Err: err}
}

// userMessage picks the text shown for err: the gateway's message when it
// has one, otherwise the operation's generic failure text.
func userMessage(op string, err error) string {
	var gwErr *identity.Error
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &gwErr):
		if m := gwErr.Error(); m != "" {
			return m
		}
	case errors.As(err, &verrs) && len(verrs) > 0:
		return validationMessage(verrs[0])
	case errors.Is(err, identity.ErrNoUser):
		return "No user logged in"
	case errors.Is(err, identity.ErrProviderNotConfigured):
		return "Google sign-in is not configured"
	}
	return failureMessages[op]
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "Please enter a valid email address."
	case "Password":
		return "Password should be at least 6 characters."
	case "DisplayName":
		return "Display name must be between 1 and 64 characters."
	}
	return fe.Error()
}
