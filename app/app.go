package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/remycare-client/auth"
	"github.com/jrsteele09/remycare-client/gateway"
	"github.com/jrsteele09/remycare-client/internal/config"
	"github.com/jrsteele09/remycare-client/poll"
	"github.com/jrsteele09/remycare-client/realtime"
	"github.com/jrsteele09/remycare-client/session"
	"github.com/jrsteele09/remycare-client/users"
)

// App owns the network stack of one dashboard client: the session, the
// request gateway, the realtime channel and the auth service built on them.
type App struct {
	cfg     config.Config
	logger  zerolog.Logger
	store   *session.MemoryStore
	gateway *gateway.Gateway
	channel *realtime.Channel
	auth    *auth.Service

	httpClient *http.Client
	dialer     *websocket.Dialer
	onExpired  func()

	shutdownMu   sync.Mutex
	shutdownDone chan struct{} // closed when the latest expiry shutdown finishes
}

// Option defines a function type to modify the App instance.
type Option func(*App)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(a *App) {
		a.dialer = dialer
	}
}

// WithSessionExpiredHandler is called once each time the session ends
// because the refresh token was refused. It is the signal to show the login
// screen again.
func WithSessionExpiredHandler(fn func()) Option {
	return func(a *App) {
		a.onExpired = fn
	}
}

// New builds the client stack from cfg. Nothing touches the network until
// Login.
func New(cfg config.Config, options ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		logger:     log.Logger,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range options {
		opt(a)
	}

	a.store = session.NewMemoryStore()
	a.gateway = gateway.New(cfg.GetAPIBaseURL(), a.store,
		gateway.WithHTTPClient(a.httpClient),
		gateway.WithTimeout(cfg.GetRequestTimeout()),
		gateway.WithLogger(a.logger),
		gateway.WithSessionExpiredHandler(a.sessionExpired),
		gateway.WithTokenRefreshedHandler(func(string) {
			a.logger.Debug().Msg("Access token refreshed")
		}),
	)
	a.channel = realtime.New(cfg.GetRealtimeURL(), a.store,
		realtime.WithDialer(a.dialer),
		realtime.WithBackoff(realtime.Backoff{
			Initial: cfg.GetReconnectDelay(),
			Max:     cfg.GetReconnectDelayMax(),
		}),
		realtime.WithLogger(a.logger),
	)

	svc, err := auth.NewService(a.gateway, a.store, auth.WithLogger(a.logger))
	if err != nil {
		return nil, errors.Wrap(err, "[app New] creating auth service")
	}
	a.auth = svc

	a.logger.Info().
		Str("app", cfg.GetAppName()).
		Str("api", cfg.GetAPIBaseURL()).
		Str("realtime", cfg.GetRealtimeURL()).
		Msg("Client configured")
	return a, nil
}

func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

func (a *App) Channel() *realtime.Channel {
	return a.channel
}

func (a *App) Auth() *auth.Service {
	return a.auth
}

func (a *App) Session() session.Store {
	return a.store
}

// Login starts a session. A channel that was already connected redials so
// it authenticates as the new user.
func (a *App) Login(ctx context.Context, phoneNumber, pin string) (users.UserSummary, error) {
	if err := a.waitExpiryShutdown(ctx); err != nil {
		return users.UserSummary{}, err
	}

	resp, err := a.auth.Login(ctx, auth.LoginRequest{PhoneNumber: phoneNumber, PIN: pin})
	if err != nil {
		return users.UserSummary{}, err
	}
	if a.channel.Status() != realtime.Disconnected {
		a.channel.Reconnect()
	}
	return resp.User.UserSummary, nil
}

// JoinProfileRooms subscribes the channel to the rooms of the logged-in CHW
// or nurse. Mothers have no rooms and get a nil error.
func (a *App) JoinProfileRooms(ctx context.Context) error {
	user, ok := a.auth.CurrentUser()
	if !ok {
		return auth.ErrNotLoggedIn
	}
	if user.Role == users.RoleMother {
		return nil
	}

	profile, err := a.auth.Profile(ctx)
	if err != nil {
		return errors.Wrap(err, "[JoinProfileRooms] loading profile")
	}
	if profile.ProfileID == 0 {
		return errors.Errorf("[JoinProfileRooms] user %d has no %s profile", user.ID, user.Role)
	}
	return a.channel.JoinRooms(profile.ProfileID)
}

// Logout ends the session on the server and locally, then shuts the channel
// down. Like Channel.Shutdown it must not be called from a realtime handler.
func (a *App) Logout(ctx context.Context) {
	a.auth.Logout(ctx)
	a.channel.Shutdown()
}

// PollWhenOffline starts a scheduler that runs cb only while the realtime
// channel is not connected, so screens fall back to polling when push
// delivery is down. A zero interval uses the configured offline cadence.
// Stopping the scheduler releases its status watch.
func (a *App) PollWhenOffline(cb poll.Callback, interval time.Duration, page poll.Visibility, options ...poll.Option) *poll.Scheduler {
	if interval <= 0 {
		interval = a.cfg.GetOfflinePollInterval()
	}
	offline := func(s realtime.Status) bool {
		return s != realtime.Connected
	}

	opts := append([]poll.Option{poll.WithLogger(a.logger), poll.WithName("offline")}, options...)
	sched := poll.Start(cb, interval, offline(a.channel.Status()), page, opts...)

	// watchers are notified outside the channel lock, so read the status
	// again rather than trust the transition's order
	unwatch := a.channel.WatchStatus(func(realtime.Status) {
		sched.SetEnabled(offline(a.channel.Status()))
	})
	// catch a transition between Start and WatchStatus
	sched.SetEnabled(offline(a.channel.Status()))

	go func() {
		<-sched.Done()
		unwatch()
	}()
	return sched
}

// sessionExpired may run beneath a realtime handler, so the channel shuts
// down on its own goroutine. Login waits for it.
func (a *App) sessionExpired() {
	a.logger.Warn().Msg("Session expired, closing realtime channel")
	done := make(chan struct{})
	a.shutdownMu.Lock()
	prev := a.shutdownDone
	a.shutdownDone = done
	a.shutdownMu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		a.channel.Shutdown()
	}()
	if a.onExpired != nil {
		a.onExpired()
	}
}

func (a *App) waitExpiryShutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	done := a.shutdownDone
	a.shutdownMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "[Login] waiting for realtime shutdown")
	}
}
