// AngelaMos | 2026
// client_test.go

package authclient_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/tg-sso/pkg/authclient"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

// fakeScheduler collects timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, fn func()) authclient.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := &fakeTimer{fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

// fireNext runs the oldest pending timer. Returns false when none is due.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, timer := range s.timers {
		if !timer.stopped && !timer.fired {
			next = timer
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, timer := range s.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

var errNetwork = errors.New("connection refused")

type checkOutcome struct {
	result *authclient.PollResult
	err    error
}

type refreshOutcome struct {
	session *authclient.Session
	err     error
}

type fakeAPI struct {
	mu          sync.Mutex
	beginErr    error
	checks      []checkOutcome
	refreshes   []refreshOutcome
	logoutCalls int
}

func (a *fakeAPI) BeginLogin(_ context.Context) (*authclient.LoginStart, error) {
	if a.beginErr != nil {
		return nil, a.beginErr
	}
	return &authclient.LoginStart{
		Token:  "extok-1",
		BotURL: "https://t.me/tg_sso_bot?start=extok-1",
	}, nil
}

func (a *fakeAPI) CheckAuth(
	_ context.Context,
	_ string,
) (*authclient.PollResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.checks) == 0 {
		return &authclient.PollResult{Pending: true}, nil
	}

	outcome := a.checks[0]
	a.checks = a.checks[1:]
	return outcome.result, outcome.err
}

func (a *fakeAPI) Refresh(
	_ context.Context,
	_ string,
) (*authclient.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.refreshes) == 0 {
		return nil, errNetwork
	}

	outcome := a.refreshes[0]
	a.refreshes = a.refreshes[1:]
	return outcome.session, outcome.err
}

func (a *fakeAPI) Logout(_ context.Context, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logoutCalls++
	return nil
}

type recorder struct {
	mu     sync.Mutex
	states []authclient.State
	botURL string
	errs   []error
}

func (r *recorder) hooks() authclient.Hooks {
	return authclient.Hooks{
		OnStateChange: func(s authclient.State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnBotURL: func(url string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.botURL = url
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

type fixture struct {
	ctrl  *authclient.Controller
	api   *fakeAPI
	clock *fakeClock
	sched *fakeScheduler
	store *authclient.MemoryStore
	rec   *recorder
}

func newFixture(api *fakeAPI) *fixture {
	clock := newFakeClock()
	sched := &fakeScheduler{}
	store := &authclient.MemoryStore{}
	rec := &recorder{}

	ctrl := authclient.NewController(
		api,
		store,
		authclient.Config{
			PollInterval: 2 * time.Second,
			LoginTimeout: time.Minute,
		},
		rec.hooks(),
		authclient.WithClock(clock),
		authclient.WithScheduler(sched),
	)

	return &fixture{
		ctrl:  ctrl,
		api:   api,
		clock: clock,
		sched: sched,
		store: store,
		rec:   rec,
	}
}

func session(refresh string) *authclient.Session {
	return &authclient.Session{
		AccessToken:  "access-" + refresh,
		RefreshToken: refresh,
		ExpiresIn:    900,
	}
}

func TestLoginTransientFailuresThenSuccess(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{err: errNetwork},
			{err: errNetwork},
			{err: errNetwork},
			{result: &authclient.PollResult{Session: session("r1")}},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	assert.Equal(t, authclient.StateWaitingForBot, f.ctrl.State())
	assert.Equal(t, "https://t.me/tg_sso_bot?start=extok-1", f.rec.botURL)

	// Three transient failures keep the attempt alive and unreported.
	for i := 0; i < 3; i++ {
		require.True(t, f.sched.fireNext())
		assert.Equal(t, authclient.StateWaitingForBot, f.ctrl.State())
		assert.Nil(t, f.rec.lastErr())
	}

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	sess := f.ctrl.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "r1", sess.RefreshToken)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r1", stored)

	// Exactly the proactive refresh timer remains.
	assert.Equal(t, 1, f.sched.pending())
}

func TestLoginPendingThenSuccess(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Pending: true}},
			{result: &authclient.PollResult{Session: session("r1")}},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateWaitingForBot, f.ctrl.State())

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateAuthenticated, f.ctrl.State())
}

func TestLoginTimeout(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Pending: true}},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))

	f.clock.advance(2 * time.Minute)

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateFailed, f.ctrl.State())
	assert.ErrorIs(t, f.rec.lastErr(), authclient.ErrLoginTimeout)
	assert.Equal(t, 0, f.sched.pending())
}

func TestTerminalErrorStopsPolling(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{err: authclient.ErrAttemptExpired},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateFailed, f.ctrl.State())
	assert.ErrorIs(t, f.rec.lastErr(), authclient.ErrAttemptExpired)
	assert.Equal(t, 0, f.sched.pending())
}

func TestCancelReturnsToIdleWithoutServerCall(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	require.Equal(t, 1, f.sched.pending())

	f.ctrl.Cancel()
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())
	assert.Equal(t, 0, f.sched.pending())
	assert.Equal(t, 0, api.logoutCalls)

	// A stale timer firing after cancel must be a no-op.
	f.sched.fireNext()
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())
}

func TestProactiveRefreshSuccess(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Session: session("r1")}},
		},
		refreshes: []refreshOutcome{
			{session: session("r2")},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	require.True(t, f.sched.fireNext())
	require.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	sess := f.ctrl.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "r2", sess.RefreshToken)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r2", stored)
	assert.Equal(t, 1, f.sched.pending())
}

func TestRefreshFailureClearsSession(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Session: session("r1")}},
		},
		refreshes: []refreshOutcome{
			{err: authclient.ErrUnauthorized},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	require.True(t, f.sched.fireNext())
	require.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	require.True(t, f.sched.fireNext())
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())
	assert.Nil(t, f.ctrl.Session())

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRestoreSession(t *testing.T) {
	api := &fakeAPI{
		refreshes: []refreshOutcome{
			{session: session("r2")},
		},
	}
	f := newFixture(api)
	require.NoError(t, f.store.Save("r1"))

	require.NoError(t, f.ctrl.RestoreSession(context.Background()))
	assert.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r2", stored)
}

func TestRestoreSessionFailureClearsStore(t *testing.T) {
	api := &fakeAPI{
		refreshes: []refreshOutcome{
			{err: authclient.ErrUnauthorized},
		},
	}
	f := newFixture(api)
	require.NoError(t, f.store.Save("r1"))

	err := f.ctrl.RestoreSession(context.Background())
	assert.ErrorIs(t, err, authclient.ErrUnauthorized)
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())

	stored, loadErr := f.store.Load()
	require.NoError(t, loadErr)
	assert.Empty(t, stored)
}

func TestRestoreSessionNoStoredToken(t *testing.T) {
	f := newFixture(&fakeAPI{})

	require.NoError(t, f.ctrl.RestoreSession(context.Background()))
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())
}

func TestLogoutClearsEverything(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Session: session("r1")}},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	require.True(t, f.sched.fireNext())
	require.Equal(t, authclient.StateAuthenticated, f.ctrl.State())

	f.ctrl.Logout(context.Background())
	assert.Equal(t, authclient.StateIdle, f.ctrl.State())
	assert.Nil(t, f.ctrl.Session())
	assert.Equal(t, 1, api.logoutCalls)
	assert.Equal(t, 0, f.sched.pending())

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestNewLoginCancelsPreviousAttempt(t *testing.T) {
	api := &fakeAPI{
		checks: []checkOutcome{
			{result: &authclient.PollResult{Session: session("r1")}},
		},
	}
	f := newFixture(api)

	require.NoError(t, f.ctrl.Login(context.Background()))
	require.NoError(t, f.ctrl.Login(context.Background()))

	assert.Equal(t, 1, f.sched.pending())
}
