package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
	"go.uber.org/zap"
)

// refreshSkew is how early an ID token is refreshed before it expires.
const refreshSkew = time.Minute

// Persistence stores the gateway session between processes or requests.
type Persistence interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*models.SessionRecord, error)
	Save(ctx context.Context, rec *models.SessionRecord) error
	Clear(ctx context.Context) error
}

// Listener receives the current user after every sign-in and sign-out;
// nil means signed out.
type Listener func(user *models.User)

type listenerEntry struct {
	id int
	fn Listener
}

// AuthConfig configures an Auth.
type AuthConfig struct {
	Client *Client
	// Google may be nil when federated sign-in is disabled.
	Google *GoogleProvider
	// Store may be nil; the session then lives only in memory.
	Store     Persistence
	ProjectID string
	Logger    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Auth tracks one signed-in session against the gateway: the current
// user, its tokens and the auth-state listeners. The state is undetermined
// until Init returns; listeners never fire before that.
type Auth struct {
	client    *Client
	google    *GoogleProvider
	store     Persistence
	projectID string
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	ready     bool
	record    *models.SessionRecord
	listeners []listenerEntry
	nextID    int
}

// NewAuth constructs an Auth.
func NewAuth(cfg AuthConfig) *Auth {
	a := &Auth{
		client:    cfg.Client,
		google:    cfg.Google,
		store:     cfg.Store,
		projectID: cfg.ProjectID,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Init restores the persisted session, if any, and determines the auth
// state. A session that cannot be restored is cleared and the state
// resolves to signed out. Calling Init again is a no-op.
func (a *Auth) Init(ctx context.Context) {
	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	rec := a.restore(ctx)

	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		return
	}
	a.ready = true
	a.record = rec
	a.mu.Unlock()

	a.emit()
}

func (a *Auth) restore(ctx context.Context) *models.SessionRecord {
	if a.store == nil {
		return nil
	}
	rec, err := a.store.Load(ctx)
	if err != nil {
		a.log.Warn("failed to load persisted session", zap.Error(err))
		return nil
	}
	if rec == nil || rec.RefreshToken == "" {
		return nil
	}

	tok, err := a.client.Refresh(ctx, rec.RefreshToken)
	if err == nil {
		var acct *Account
		acct, err = a.client.Lookup(ctx, tok.IDToken)
		if err == nil {
			restored := &models.SessionRecord{
				UID:          acct.LocalID,
				Email:        acct.Email,
				DisplayName:  acct.DisplayName,
				IDToken:      tok.IDToken,
				RefreshToken: tok.RefreshToken,
				ExpiresAt:    a.expiresAt(tok.IDToken, tok.ExpiresIn),
			}
			if err = a.store.Save(ctx, restored); err == nil {
				return restored
			}
		}
	}

	a.log.Info("persisted session could not be restored", zap.String("uid", rec.UID), zap.Error(err))
	if err := a.store.Clear(ctx); err != nil {
		a.log.Warn("failed to clear stale session", zap.Error(err))
	}
	return nil
}

// Ready reports whether the auth state has been determined.
func (a *Auth) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// OnAuthStateChanged registers fn and returns a function that removes it.
// If the state is already determined, fn is invoked once immediately with
// the current user.
func (a *Auth) OnAuthStateChanged(fn Listener) (unsubscribe func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, listenerEntry{id: id, fn: fn})
	ready := a.ready
	user := a.record.User()
	a.mu.Unlock()

	if ready {
		fn(user)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// CurrentUser returns a snapshot of the signed-in user, or nil.
func (a *Auth) CurrentUser() *models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.User()
}

// CreateUserWithEmailAndPassword creates an account and signs it in.
func (a *Auth) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := a.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return cred, a.signIn(ctx, cred)
}

// SignInWithEmailAndPassword signs in an existing account.
func (a *Auth) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := a.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return cred, a.signIn(ctx, cred)
}

// GoogleAuthURL returns the Google consent URL for state.
func (a *Auth) GoogleAuthURL(state string) (string, error) {
	if a.google == nil {
		return "", ErrProviderNotConfigured
	}
	return a.google.AuthCodeURL(state), nil
}

// SignInWithGoogle completes the Google flow with the authorization code.
func (a *Auth) SignInWithGoogle(ctx context.Context, code string) (*Credential, error) {
	if a.google == nil {
		return nil, ErrProviderNotConfigured
	}
	googleToken, err := a.google.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	cred, err := a.client.SignInWithIdp(ctx, a.google.RedirectURL(), googlePostBody(googleToken))
	if err != nil {
		return nil, err
	}
	return cred, a.signIn(ctx, cred)
}

func (a *Auth) signIn(ctx context.Context, cred *Credential) error {
	claims, err := ParseIDToken(cred.IDToken)
	if err != nil {
		return err
	}
	if err := claims.CheckAudience(a.projectID); err != nil {
		return err
	}

	rec := &models.SessionRecord{
		UID:          cred.LocalID,
		Email:        cred.Email,
		DisplayName:  cred.DisplayName,
		IDToken:      cred.IDToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    a.expiresAt(cred.IDToken, cred.ExpiresIn),
	}
	if a.store != nil {
		if err := a.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}

	a.mu.Lock()
	a.record = rec
	a.ready = true
	a.mu.Unlock()

	a.emit()
	return nil
}

// SignOut ends the session and notifies listeners.
func (a *Auth) SignOut(ctx context.Context) error {
	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}

	a.mu.Lock()
	a.record = nil
	a.ready = true
	a.mu.Unlock()

	a.emit()
	return nil
}

// UpdateProfile sets the display name of the current user. Listeners are
// not notified; callers re-read CurrentUser.
func (a *Auth) UpdateProfile(ctx context.Context, displayName string) error {
	idToken, err := a.IDToken(ctx)
	if err != nil {
		return err
	}
	acct, err := a.client.UpdateProfile(ctx, idToken, displayName)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.record == nil {
		a.mu.Unlock()
		return ErrNoUser
	}
	rec := *a.record
	rec.DisplayName = acct.DisplayName
	if acct.IDToken != "" {
		rec.IDToken = acct.IDToken
		rec.ExpiresAt = a.expiresAt(acct.IDToken, "")
	}
	if acct.RefreshToken != "" {
		rec.RefreshToken = acct.RefreshToken
	}
	a.record = &rec
	a.mu.Unlock()

	return a.persist(ctx, &rec)
}

// IDToken returns a valid ID token for the current user, refreshing it
// when it is about to expire.
func (a *Auth) IDToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.record == nil {
		a.mu.Unlock()
		return "", ErrNoUser
	}
	rec := *a.record
	a.mu.Unlock()

	if a.now().Add(refreshSkew).Before(rec.ExpiresAt) {
		return rec.IDToken, nil
	}

	tok, err := a.client.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return "", err
	}
	rec.IDToken = tok.IDToken
	rec.RefreshToken = tok.RefreshToken
	rec.ExpiresAt = a.expiresAt(tok.IDToken, tok.ExpiresIn)

	a.mu.Lock()
	if a.record == nil || a.record.UID != rec.UID {
		a.mu.Unlock()
		return "", ErrNoUser
	}
	a.record = &rec
	a.mu.Unlock()

	if err := a.persist(ctx, &rec); err != nil {
		a.log.Warn("failed to persist refreshed token", zap.String("uid", rec.UID), zap.Error(err))
	}
	return rec.IDToken, nil
}

func (a *Auth) persist(ctx context.Context, rec *models.SessionRecord) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// expiresAt prefers the token's exp claim over the expiresIn hint.
func (a *Auth) expiresAt(idToken, expiresIn string) time.Time {
	if claims, err := ParseIDToken(idToken); err == nil {
		if exp := claims.Expiry(); !exp.IsZero() {
			return exp
		}
	}
	return expiry(a.now(), expiresIn)
}

// emit delivers the current user to every listener in registration order.
// Listeners run outside the lock so they may call back into Auth.
func (a *Auth) emit() {
	a.mu.Lock()
	user := a.record.User()
	listeners := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l.fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
