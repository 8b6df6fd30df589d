// AngelaMos | 2026
// client.go

package authclient

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the login/session lifecycle as seen by the embedding
// application.
type State string

const (
	StateIdle             State = "idle"
	StateRequestingURL    State = "requesting_url"
	StateWaitingForBot    State = "waiting_for_bot"
	StateAuthenticated    State = "authenticated"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
	StateRestoringSession State = "restoring_session"
)

// ErrLoginTimeout ends a login attempt whose poll deadline passed without
// the bot completing the handshake.
var ErrLoginTimeout = errors.New("login timed out waiting for bot")

// TokenStore persists the refresh token between process runs.
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}

// MemoryStore is a TokenStore for processes that do not persist sessions.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// Hooks are the controller's event surface. They are invoked with the
// controller's internal lock held and must not call back into it.
type Hooks struct {
	OnStateChange func(State)
	OnBotURL      func(string)
	OnSession     func(*Session)
	OnError       func(error)
}

type Config struct {
	// PollInterval is the fixed check-auth cadence during a login.
	PollInterval time.Duration
	// LoginTimeout is the hard wall-clock limit on one login attempt.
	LoginTimeout time.Duration
	// RefreshMargin is how long before access-token expiry the proactive
	// refresh fires.
	RefreshMargin time.Duration
	// RequestTimeout bounds each individual API call made from a timer.
	RequestTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 5 * time.Minute
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// Controller drives one user's login and session against the auth
// service: it begins a login, polls until the bot answers, keeps the
// session fresh with proactive refreshes, and tears everything down on
// cancel or logout. At most one poll timer and one refresh timer are
// live at any moment; starting a new login invalidates timers from the
// previous attempt.
type Controller struct {
	mu    sync.Mutex
	api   API
	store TokenStore
	clock Clock
	sched Scheduler
	cfg   Config
	hooks Hooks

	state         State
	generation    uint64
	exchangeToken string
	deadline      time.Time
	session       *Session
	pollTimer     Timer
	refreshTimer  Timer
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithScheduler(sched Scheduler) Option {
	return func(c *Controller) { c.sched = sched }
}

func NewController(
	api API,
	store TokenStore,
	cfg Config,
	hooks Hooks,
	opts ...Option,
) *Controller {
	cfg.withDefaults()

	c := &Controller{
		api:   api,
		store: store,
		clock: NewClock(),
		sched: NewScheduler(),
		cfg:   cfg,
		hooks: hooks,
		state: StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session, or nil outside StateAuthenticated.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Login starts a fresh attempt. Any previous attempt's timers are
// cancelled first. The bot URL is surfaced through Hooks.OnBotURL; the
// outcome arrives later through OnSession or OnError.
func (c *Controller) Login(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimersLocked()
	c.generation++
	gen := c.generation
	c.setStateLocked(StateRequestingURL)
	c.mu.Unlock()

	start, err := c.api.BeginLogin(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil
	}

	if err != nil {
		c.setStateLocked(StateFailed)
		c.emitErrorLocked(err)
		return err
	}

	c.exchangeToken = start.Token
	c.deadline = c.clock.Now().Add(c.cfg.LoginTimeout)
	c.setStateLocked(StateWaitingForBot)

	if c.hooks.OnBotURL != nil {
		c.hooks.OnBotURL(start.BotURL)
	}

	c.schedulePollLocked(gen)
	return nil
}

// Cancel abandons the current login attempt. No server call is made; the
// server-side token simply expires on its own.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimersLocked()
	c.generation++
	c.exchangeToken = ""
	c.setStateLocked(StateCancelled)
	c.setStateLocked(StateIdle)
}

// RestoreSession resumes from a persisted refresh token, if one exists.
// A failed restore clears the stored token so the next run starts clean.
func (c *Controller) RestoreSession(ctx context.Context) error {
	refreshToken, err := c.store.Load()
	if err != nil || refreshToken == "" {
		return err
	}

	c.mu.Lock()
	c.stopTimersLocked()
	c.generation++
	gen := c.generation
	c.setStateLocked(StateRestoringSession)
	c.mu.Unlock()

	session, err := c.api.Refresh(ctx, refreshToken)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil
	}

	if err != nil {
		//nolint:errcheck // stored token is already unusable
		_ = c.store.Clear()
		c.setStateLocked(StateIdle)
		c.emitErrorLocked(err)
		return err
	}

	c.adoptSessionLocked(gen, session)
	return nil
}

// Logout tells the server best-effort and clears local state
// unconditionally.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.stopTimersLocked()
	c.generation++
	refreshToken := ""
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	c.mu.Unlock()

	if refreshToken != "" {
		//nolint:errcheck // local state is cleared regardless
		_ = c.api.Logout(ctx, refreshToken)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = nil
	c.exchangeToken = ""
	//nolint:errcheck // nothing to do about a failed clear
	_ = c.store.Clear()
	c.setStateLocked(StateIdle)
}

func (c *Controller) schedulePollLocked(gen uint64) {
	c.pollTimer = c.sched.AfterFunc(c.cfg.PollInterval, func() {
		c.pollTick(gen)
	})
}

func (c *Controller) pollTick(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateWaitingForBot {
		c.mu.Unlock()
		return
	}

	if c.clock.Now().After(c.deadline) {
		c.setStateLocked(StateFailed)
		c.emitErrorLocked(ErrLoginTimeout)
		c.mu.Unlock()
		return
	}

	token := c.exchangeToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	result, err := c.api.CheckAuth(ctx, token)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != StateWaitingForBot {
		return
	}

	switch {
	case err != nil && IsTerminal(err):
		c.setStateLocked(StateFailed)
		c.emitErrorLocked(err)
	case err != nil:
		// Transient network trouble: keep polling until the deadline.
		c.schedulePollLocked(gen)
	case result.Pending:
		c.schedulePollLocked(gen)
	default:
		c.adoptSessionLocked(gen, result.Session)
	}
}

func (c *Controller) adoptSessionLocked(gen uint64, session *Session) {
	c.session = session
	c.exchangeToken = ""

	if err := c.store.Save(session.RefreshToken); err != nil {
		c.emitErrorLocked(err)
	}

	c.setStateLocked(StateAuthenticated)
	if c.hooks.OnSession != nil {
		c.hooks.OnSession(session)
	}

	c.scheduleRefreshLocked(gen, session.ExpiresIn)
}

func (c *Controller) scheduleRefreshLocked(gen uint64, expiresIn int64) {
	delay := time.Duration(expiresIn)*time.Second - c.cfg.RefreshMargin
	if delay < time.Second {
		delay = time.Second
	}

	c.refreshTimer = c.sched.AfterFunc(delay, func() {
		c.refreshTick(gen)
	})
}

func (c *Controller) refreshTick(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateAuthenticated || c.session == nil {
		c.mu.Unlock()
		return
	}
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	session, err := c.api.Refresh(ctx, refreshToken)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != StateAuthenticated {
		return
	}

	if err != nil {
		// No usable session remains; the next step is a fresh login.
		c.session = nil
		//nolint:errcheck // stored token is already unusable
		_ = c.store.Clear()
		c.setStateLocked(StateIdle)
		c.emitErrorLocked(err)
		return
	}

	c.session = session
	if saveErr := c.store.Save(session.RefreshToken); saveErr != nil {
		c.emitErrorLocked(saveErr)
	}

	c.scheduleRefreshLocked(gen, session.ExpiresIn)
}

func (c *Controller) stopTimersLocked() {
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *Controller) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(state)
	}
}

func (c *Controller) emitErrorLocked(err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
}
