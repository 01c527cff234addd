package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/token"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxOutbox   = 256
	tokenParam  = "token"
	closeReason = "client shutdown"
)

// TokenSource supplies the access token used to authenticate each dial.
// session.Store satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
}

type subscription struct {
	handler Handler
}

type statusWatcher struct {
	fn func(Status)
}

// run is one connection loop, from first dial until Shutdown or Reconnect.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Channel is the single multiplexed push connection shared by every screen.
// It connects lazily, reconnects with backoff for as long as a session
// exists, and keeps subscriptions and joined rooms across reconnects.
type Channel struct {
	url     string
	tokens  TokenSource
	dialer  *websocket.Dialer
	backoff Backoff
	logger  zerolog.Logger

	lifecycle sync.Mutex // serializes Shutdown and Reconnect
	writeMu   sync.Mutex // serializes frames on the live conn; never held with mu

	mu        sync.Mutex
	status    Status
	run       *run
	conn      *websocket.Conn
	handlers  map[Event][]*subscription
	watchers  []*statusWatcher
	rooms     []int64
	announced map[int64]bool // rooms joined on the current connection
	outbox    [][]byte
	pending   []Status // transitions not yet reported to watchers
}

// Option configures a Channel.
type Option func(*Channel)

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Channel) {
		c.dialer = dialer
	}
}

func WithBackoff(b Backoff) Option {
	return func(c *Channel) {
		c.backoff = b
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New creates a Channel for the websocket endpoint at rawURL. Nothing is
// dialled until the first Subscribe, Emit, JoinRooms or Connect.
func New(rawURL string, tokens TokenSource, options ...Option) *Channel {
	c := &Channel{
		url:      rawURL,
		tokens:   tokens,
		dialer:   websocket.DefaultDialer,
		backoff:  DefaultBackoff,
		logger:   log.Logger,
		handlers: make(map[Event][]*subscription),
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "realtime").Logger()
	return c
}

// Status returns the current connection state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// WatchStatus calls fn on every status transition until cancel is called.
func (c *Channel) WatchStatus(fn func(Status)) (cancel func()) {
	w := &statusWatcher{fn: fn}
	c.mu.Lock()
	c.watchers = append(c.watchers, w)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, existing := range c.watchers {
				if existing == w {
					c.watchers = append(c.watchers[:i:i], c.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribe registers h for event. Handlers run on the reader goroutine in
// registration order. The returned func removes exactly this registration
// and is safe to call more than once.
func (c *Channel) Subscribe(event Event, h Handler) (unsubscribe func()) {
	sub := &subscription{handler: h}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], sub)
	c.ensureRunLocked()
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.handlers[event]
			for i, existing := range subs {
				if existing == sub {
					c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// Emit sends event to the server. Frames emitted while not connected are
// queued and flushed, in order, once the connection is up.
func (c *Channel) Emit(event Event, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encoding %s payload", event)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return errors.Wrapf(err, "encoding %s frame", event)
	}

	if _, ok := c.tokens.AccessToken(); !ok {
		return remyerrors.ErrNoSession
	}

	c.mu.Lock()
	conn := c.conn
	if c.status != Connected || conn == nil {
		c.enqueueLocked(frame)
		conn = nil
	}
	c.ensureRunLocked()
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()

	if conn != nil {
		if err := c.write(conn, frame); err != nil {
			c.logger.Warn().Err(err).Str("event", string(event)).Msg("Emit failed, queued for the next connection")
			c.mu.Lock()
			c.enqueueLocked(frame)
			c.mu.Unlock()
		}
	}
	return nil
}

// JoinRooms asks the server to deliver events addressed to profileID. A room
// is announced at most once per connection and again after each reconnect.
func (c *Channel) JoinRooms(profileID int64) error {
	if _, ok := c.tokens.AccessToken(); !ok {
		return remyerrors.ErrNoSession
	}

	c.mu.Lock()
	known := false
	for _, id := range c.rooms {
		if id == profileID {
			known = true
			break
		}
	}
	if !known {
		c.rooms = append(c.rooms, profileID)
	}
	var conn *websocket.Conn
	if c.status == Connected && c.conn != nil && !c.announced[profileID] {
		conn = c.conn
		c.announced[profileID] = true
	}
	c.ensureRunLocked()
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()

	if conn != nil {
		if err := c.announce(conn, profileID); err != nil {
			c.logger.Warn().Err(err).Int64("profile_id", profileID).Msg("Join rooms failed, retrying on the next connection")
			c.unannounce(conn, profileID)
		}
	}
	return nil
}

// Connect starts the connection loop if a session exists and none is running.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.ensureRunLocked()
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()
}

// Reconnect drops the live connection and dials again with the current
// access token. Subscriptions, rooms and queued frames are kept.
func (c *Channel) Reconnect() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	r, conn := c.run, c.conn
	c.run, c.conn = nil, nil
	c.mu.Unlock()
	stopRun(r, conn)

	c.logger.Info().Msg("Reconnecting")
	c.mu.Lock()
	c.setStatusLocked(Disconnected)
	c.ensureRunLocked()
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()
}

// Shutdown closes the connection and discards subscriptions, rooms and
// queued frames. Status watchers are kept. It waits for the reader goroutine
// to exit, so it must not be called from a Handler.
func (c *Channel) Shutdown() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	r, conn := c.run, c.conn
	c.run, c.conn = nil, nil
	c.handlers = make(map[Event][]*subscription)
	c.rooms = nil
	c.announced = nil
	c.outbox = nil
	c.setStatusLocked(Disconnected)
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()

	stopRun(r, conn)
	c.logger.Info().Msg("Realtime channel shut down")
}

func stopRun(r *run, conn *websocket.Conn) {
	if r != nil {
		r.cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if r != nil {
		<-r.done
	}
}

// ensureRunLocked starts the connection loop when a session exists and no
// loop is running.
func (c *Channel) ensureRunLocked() {
	if c.run != nil {
		return
	}
	if _, ok := c.tokens.AccessToken(); !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	c.run = r
	c.setStatusLocked(Connecting)
	go c.loop(r)
}

func (c *Channel) loop(r *run) {
	defer close(r.done)

	attempt := 0
	for {
		access, ok := c.tokens.AccessToken()
		if !ok {
			c.logger.Info().Msg("No session, realtime channel idle")
			c.finish(r)
			return
		}

		conn, err := c.dial(r.ctx, access)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			delay := c.backoff.Delay(attempt)
			c.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("retry_in", delay).
				Bool("token_expired", tokenExpired(access)).
				Msg("Realtime connect failed")
			if !sleep(r.ctx, delay) {
				return
			}
			attempt++
			continue
		}

		if !c.attach(r, conn) {
			_ = conn.Close()
			return
		}
		err = c.read(conn)
		if !c.detach(r, conn) {
			return
		}

		delay := c.backoff.Delay(0)
		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Realtime connection lost")
		if !sleep(r.ctx, delay) {
			return
		}
		attempt = 1
	}
}

// tokenExpired reports whether access is a JWT whose exp has passed. The
// server refuses such tokens until the gateway refreshes the session.
func tokenExpired(access string) bool {
	claims, err := token.ParseUnverified(access)
	return err == nil && claims.Expired()
}

func (c *Channel) dial(ctx context.Context, access string) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing realtime url")
	}
	q := u.Query()
	q.Set(tokenParam, access)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, errors.Wrapf(err, "handshake rejected with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dialing realtime endpoint")
	}
	return conn, nil
}

// attach makes conn the live connection, re-announces rooms and flushes the
// outbox. It reports false if r was stopped while dialling.
func (c *Channel) attach(r *run, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.announced = make(map[int64]bool)
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.mu.Unlock()

	// JoinRooms and Emit only queue while the status is Connecting, so rooms
	// and frames are drained one at a time until none remain under the lock.
	joined, flushed := 0, 0
	for {
		c.mu.Lock()
		if c.run != r || c.conn != conn {
			c.mu.Unlock()
			return false
		}
		if id, ok := c.unannouncedLocked(); ok {
			c.announced[id] = true
			c.mu.Unlock()
			if err := c.announce(conn, id); err != nil {
				c.logger.Warn().Err(err).Int64("profile_id", id).Msg("Join rooms failed")
				c.mu.Lock()
				break
			}
			joined++
			continue
		}
		if len(c.outbox) == 0 {
			break
		}
		frame := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		if err := c.write(conn, frame); err != nil {
			c.logger.Warn().Err(err).Msg("Flushing queued frames failed")
			c.mu.Lock()
			c.outbox = append([][]byte{frame}, c.outbox...)
			break
		}
		flushed++
	}
	c.setStatusLocked(Connected)
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()

	go c.ping(r, conn)
	c.logger.Info().Int("rooms", joined).Int("flushed", flushed).Msg("Realtime connected")
	return true
}

// detach clears conn after the reader stops. It reports false when r has
// been stopped and must not reconnect.
func (c *Channel) detach(r *run, conn *websocket.Conn) bool {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	owned := c.run == r && r.ctx.Err() == nil
	if owned {
		c.setStatusLocked(Connecting)
	}
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()
	return owned
}

// finish marks r as ended on its own, because the session went away.
func (c *Channel) finish(r *run) {
	c.mu.Lock()
	if c.run == r {
		c.run = nil
		c.setStatusLocked(Disconnected)
	}
	notify := c.pendingNotify()
	c.mu.Unlock()
	notify()
	r.cancel()
}

func (c *Channel) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Channel) ping(r *run, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug().Err(err).Msg("Dropping malformed frame")
		return
	}
	if frame.Event == "" || len(frame.Data) == 0 || string(frame.Data) == "null" {
		c.logger.Debug().Str("event", string(frame.Event)).Msg("Dropping frame without event or payload")
		return
	}

	c.mu.Lock()
	subs := append([]*subscription(nil), c.handlers[frame.Event]...)
	c.mu.Unlock()

	for _, sub := range subs {
		c.deliver(frame, sub.handler)
	}
}

func (c *Channel) deliver(frame Frame, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().Interface("panic", rec).Str("event", string(frame.Event)).Msg("Realtime handler panicked")
		}
	}()
	h(frame.Data)
}

func (c *Channel) announce(conn *websocket.Conn, profileID int64) error {
	data, err := json.Marshal(joinRoomsPayload{ProfileID: profileID})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Event: EventJoinRooms, Data: data})
	if err != nil {
		return err
	}
	return c.write(conn, frame)
}

func (c *Channel) unannouncedLocked() (int64, bool) {
	for _, id := range c.rooms {
		if !c.announced[id] {
			return id, true
		}
	}
	return 0, false
}

// unannounce forgets a failed join so the next connection retries it.
func (c *Channel) unannounce(conn *websocket.Conn, profileID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		delete(c.announced, profileID)
	}
}

// write sends one text frame. It must be called without c.mu held.
func (c *Channel) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) enqueueLocked(frame []byte) {
	if len(c.outbox) >= maxOutbox {
		c.logger.Warn().Int("max", maxOutbox).Msg("Outbox full, dropping oldest frame")
		c.outbox = c.outbox[1:]
	}
	c.outbox = append(c.outbox, frame)
}

// setStatusLocked records s and marks watchers for notification when it
// differs from the current status.
func (c *Channel) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	c.pending = append(c.pending, s)
}

// pendingNotify drains the queued transitions. The returned func must be
// called after c.mu is released.
func (c *Channel) pendingNotify() func() {
	if len(c.pending) == 0 {
		return func() {}
	}
	transitions := c.pending
	c.pending = nil
	watchers := append([]*statusWatcher(nil), c.watchers...)
	return func() {
		for _, s := range transitions {
			for _, w := range watchers {
				w.fn(s)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
