// Package session holds the per-session route controller and the registry
// that maps browser sessions to controllers.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/atinyakov/LegalLens/internal/models"
	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by a second Controller.Start.
var ErrAlreadyStarted = errors.New("controller already started")

// AuthState is the authenticated axis of the controller.
type AuthState int

const (
	// Unknown means the first auth-state event has not arrived.
	Unknown AuthState = iota
	// Yes means a user is signed in.
	Yes
	// No means nobody is signed in.
	No
)

func (s AuthState) String() string {
	switch s {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

// LandingPolicy selects the page shown to signed-out users.
type LandingPolicy int

const (
	// PolicyLanding shows the landing page; the auth page stays reachable.
	PolicyLanding LandingPolicy = iota
	// PolicyAuthOnly shows the auth page and has no landing page.
	PolicyAuthOnly
)

// EntryPage is where signed-out users land.
func (p LandingPolicy) EntryPage() models.Page {
	if p == PolicyAuthOnly {
		return models.PageAuth
	}
	return models.PageLanding
}

// AuthAdapter is the subset of the auth service used by the controller.
type AuthAdapter interface {
	SubscribeToAuthState(fn func(*models.User)) (unsubscribe func())
	CurrentUser() *models.User
	Logout(ctx context.Context) error
	UpdateDisplayName(ctx context.Context, name string) error
}

// Controller decides which page a session sees. It is driven by auth-state
// events and navigation requests and is safe for concurrent use.
type Controller struct {
	auth   AuthAdapter
	policy LandingPolicy
	inbox  *Inbox
	log    *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu          sync.Mutex
	state       AuthState
	user        *models.User
	route       models.RouteState
	started     bool
	closed      bool
	unsubscribe func()
}

// NewController constructs a Controller. inbox and log may be nil.
func NewController(auth AuthAdapter, policy LandingPolicy, inbox *Inbox, log *zap.Logger) *Controller {
	if inbox == nil {
		inbox = &Inbox{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		auth:   auth,
		policy: policy,
		inbox:  inbox,
		log:    log,
		ready:  make(chan struct{}),
		route:  models.RouteState{Page: policy.EntryPage()},
	}
}

// Start subscribes to auth-state events. It may be called once.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	// The adapter may deliver the current state synchronously, so the
	// lock must not be held here.
	unsubscribe := c.auth.SubscribeToAuthState(c.handleAuthState)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return nil
}

// Close cancels the auth-state subscription. It is safe to call more than
// once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) handleAuthState(user *models.User) {
	c.mu.Lock()
	switch {
	case user != nil:
		if c.state != Yes {
			c.route = models.RouteState{Page: models.PageDashboard}
		}
		u := *user
		c.user = &u
		c.state = Yes
	default:
		if c.state != No {
			c.route = models.RouteState{Page: c.policy.EntryPage()}
		}
		c.user = nil
		c.state = No
	}
	state, page := c.state, c.route.Page
	c.mu.Unlock()

	c.log.Debug("auth state changed", zap.Stringer("authenticated", state), zap.String("page", string(page)))
	c.readyOnce.Do(func() { close(c.ready) })
}

// Navigate requests page with params and returns the resulting route.
// Requests that are not allowed in the current state fall back to the
// nearest allowed page; while the state is Unknown they are ignored.
func (c *Controller) Navigate(page models.Page, params models.RouteParams) models.RouteState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Unknown:
		return c.viewLocked()
	case No:
		if page == models.PageAuth || page == c.policy.EntryPage() {
			c.route = models.RouteState{Page: page, Params: params}
		} else {
			c.route = models.RouteState{Page: c.policy.EntryPage()}
		}
	case Yes:
		if _, known := models.ParsePage(string(page)); known && !page.Public() {
			c.route = models.RouteState{Page: page, Params: params}
		} else {
			c.route = models.RouteState{Page: models.PageDashboard}
		}
	}
	return c.route
}

// View returns the route to render: loading while the state is Unknown.
func (c *Controller) View() models.RouteState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() models.RouteState {
	if c.state == Unknown {
		return models.RouteState{Page: models.PageLoading}
	}
	return c.route
}

// State returns the authenticated axis.
func (c *Controller) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns a copy of the session user, or nil.
func (c *Controller) User() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Policy returns the landing policy.
func (c *Controller) Policy() LandingPolicy {
	return c.policy
}

// WaitReady blocks until the first auth-state event or ctx is done.
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout signs the user out and shows the entry page. On failure the
// state is left unchanged.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		c.log.Error("logout failed", zap.Error(err))
		return err
	}
	c.mu.Lock()
	c.state = No
	c.user = nil
	c.route = models.RouteState{Page: c.policy.EntryPage()}
	c.mu.Unlock()
	return nil
}

// UpdateUser changes the display name and refreshes the session user from
// the adapter. On failure the state is left unchanged.
func (c *Controller) UpdateUser(ctx context.Context, displayName string) error {
	if err := c.auth.UpdateDisplayName(ctx, displayName); err != nil {
		c.log.Error("update user failed", zap.Error(err))
		return err
	}
	current := c.auth.CurrentUser()
	c.mu.Lock()
	if current != nil && c.state == Yes {
		u := *current
		c.user = &u
	}
	c.mu.Unlock()
	return nil
}

// Notify queues a notification for the next render.
func (c *Controller) Notify(n models.Notification) {
	c.inbox.Notify(n)
}

// Drain returns and clears the queued notifications.
func (c *Controller) Drain() []models.Notification {
	return c.inbox.Drain()
}

// Inbox queues notifications between renders.
type Inbox struct {
	mu    sync.Mutex
	items []models.Notification
}

// Notify appends n.
func (i *Inbox) Notify(n models.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, n)
}

// Drain returns the queued notifications in arrival order and empties the
// queue.
func (i *Inbox) Drain() []models.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	return out
}
