package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/metrics"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/repository"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// initTimeout bounds the background restore of a persisted session.
const initTimeout = 15 * time.Second

// Store persists gateway sessions keyed by browser session id.
type Store interface {
	// Load returns repository.ErrSessionNotFound when sid has no record.
	Load(ctx context.Context, sid string) (*models.SessionRecord, error)
	Save(ctx context.Context, sid string, rec *models.SessionRecord) error
	Delete(ctx context.Context, sid string) error
}

// Session bundles everything bound to one browser session.
type Session struct {
	ID         string
	Auth       *identity.Auth
	Service    *service.AuthService
	Controller *Controller
	// Tokens supplies the user's ID token to backend calls.
	Tokens service.TokenSource

	store *boundStore
}

// ErrUnknownSession is returned by Rotate for an id with no live session.
var ErrUnknownSession = errors.New("unknown session")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Client    *identity.Client
	Google    *identity.GoogleProvider
	Store     Store
	ProjectID string
	Policy    LandingPolicy
	// IdleTTL evicts sessions without requests; defaults to 30 minutes.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

// Manager maps browser session ids to live sessions. Idle sessions are
// evicted and their controllers closed; the persisted gateway session
// survives eviction and is restored on the next request.
type Manager struct {
	cfg   ManagerConfig
	log   *zap.Logger
	cache *cache.Cache

	// mu serialises session creation and rotation so one sid never gets
	// two controllers.
	mu sync.Mutex
	// moved holds ids removed by Rotate; their controllers live on.
	moved sync.Map
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		cfg:   cfg,
		log:   log,
		cache: cache.New(cfg.IdleTTL, cfg.IdleTTL/2),
	}
	m.cache.OnEvicted(func(sid string, v interface{}) {
		if _, ok := m.moved.LoadAndDelete(sid); ok {
			return
		}
		if s, ok := v.(*Session); ok {
			s.Controller.Close()
			metrics.SessionClosed()
			m.log.Debug("session evicted", zap.String("sid", sid))
		}
	})
	return m
}

// Get returns the session for sid, creating and starting it on first use.
// Every call extends the idle expiry.
func (m *Manager) Get(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, errors.New("empty session id")
	}
	if s, ok := m.touch(sid); ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.touch(sid); ok {
		return s, nil
	}

	s, err := m.build(sid)
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(sid, s)
	metrics.SessionOpened()

	go func() {
		initCtx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		s.Auth.Init(initCtx)
	}()
	return s, nil
}

// touch returns the live session of sid and extends its expiry. Replace
// fails when the janitor evicted sid after the lookup, so a closed session
// never goes back into the cache.
func (m *Manager) touch(sid string) (*Session, bool) {
	v, ok := m.cache.Get(sid)
	if !ok {
		return nil, false
	}
	if err := m.cache.Replace(sid, v, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return v.(*Session), true
}

func (m *Manager) build(sid string) (*Session, error) {
	log := m.log.With(zap.String("sid", sid))
	var (
		store identity.Persistence
		bound *boundStore
	)
	if m.cfg.Store != nil {
		bound = &boundStore{store: m.cfg.Store, sid: sid}
		store = bound
	}
	auth := identity.NewAuth(identity.AuthConfig{
		Client:    m.cfg.Client,
		Google:    m.cfg.Google,
		Store:     store,
		ProjectID: m.cfg.ProjectID,
		Logger:    log,
	})
	inbox := &Inbox{}
	svc := service.NewAuthService(auth, inbox, log)
	ctrl := NewController(svc, m.cfg.Policy, inbox, log)
	if err := ctrl.Start(); err != nil {
		return nil, err
	}
	return &Session{ID: sid, Auth: auth, Service: svc, Controller: ctrl, Tokens: auth, store: bound}, nil
}

// Rotate moves the live session of sid to a fresh random id, together with
// its persisted gateway session, and returns it. The old id no longer
// resolves to the session afterwards.
func (m *Manager) Rotate(ctx context.Context, sid string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	old := v.(*Session)
	next := *old
	next.ID = uuid.NewString()
	if old.store != nil {
		if err := old.store.move(ctx, next.ID); err != nil {
			return nil, fmt.Errorf("move session: %w", err)
		}
	}

	m.cache.SetDefault(next.ID, &next)
	m.moved.Store(sid, struct{}{})
	m.cache.Delete(sid)
	m.moved.Delete(sid)
	m.log.Debug("session rotated", zap.String("sid", next.ID))
	return &next, nil
}

// Drop evicts sid immediately.
func (m *Manager) Drop(sid string) {
	m.cache.Delete(sid)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.cache.ItemCount()
}

// Close evicts every session.
func (m *Manager) Close() {
	for sid := range m.cache.Items() {
		m.cache.Delete(sid)
	}
}

// boundStore adapts a Store to the identity.Persistence of one session.
// Its operations are serialised with move so that no record is written
// under an id the session has left.
type boundStore struct {
	store Store

	mu  sync.Mutex
	sid string
}

// move copies the persisted record to sid, deletes the old one and binds
// later operations to sid.
func (b *boundStore) move(ctx context.Context, sid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.store.Load(ctx, b.sid)
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
	case err != nil:
		return err
	default:
		if err := b.store.Save(ctx, sid, rec); err != nil {
			return err
		}
		if err := b.store.Delete(ctx, b.sid); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
	}
	b.sid = sid
	return nil
}

func (b *boundStore) Load(ctx context.Context) (*models.SessionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.store.Load(ctx, b.sid)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, nil
	}
	return rec, err
}

func (b *boundStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Save(ctx, b.sid, rec)
}

func (b *boundStore) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.store.Delete(ctx, b.sid)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	return err
}
