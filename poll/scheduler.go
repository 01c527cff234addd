package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Callback refreshes whatever the owning screen shows. Its context is
// cancelled when the scheduler stops.
type Callback func(ctx context.Context) error

// Ticker is the subset of time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// NewTimeTicker is the default TickerFunc, backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Scheduler invokes a callback immediately and then once per interval while
// enabled and visible. Hiding the page tears the timer down; revealing it
// fires once and starts a fresh interval. Invocations are not serialized, so
// a callback slower than the interval can overlap with the next one.
type Scheduler struct {
	mu        sync.Mutex
	cb        Callback
	interval  time.Duration
	enabled   bool
	page      Visibility
	newTicker TickerFunc
	name      string
	logger    zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	ticker  Ticker
	stopTic chan struct{}
	gen     uint64 // bumped whenever the ticker is replaced or torn down
	unwatch func()
	stopped bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTicker replaces time.NewTicker, mainly for tests.
func WithTicker(fn TickerFunc) Option {
	return func(s *Scheduler) {
		s.newTicker = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithName labels log lines, e.g. with the screen that owns the scheduler.
func WithName(name string) Option {
	return func(s *Scheduler) {
		s.name = name
	}
}

// WithContext sets the parent of the context handed to the callback.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		s.ctx = ctx
	}
}

// Start creates a running Scheduler. Call Stop when the owning screen goes
// away.
func Start(cb Callback, interval time.Duration, enabled bool, page Visibility, options ...Option) *Scheduler {
	s := &Scheduler{
		cb:        cb,
		interval:  interval,
		enabled:   enabled,
		page:      page,
		newTicker: NewTimeTicker,
		name:      "poll",
		logger:    log.Logger,
		ctx:       context.Background(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "poll").Str("poller", s.name).Logger()
	s.ctx, s.cancel = context.WithCancel(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.armLocked()
	}
	return s
}

// SetEnabled arms or disarms the scheduler. Disarming removes both the timer
// and the visibility watch.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.enabled == enabled {
		return
	}
	s.enabled = enabled
	if enabled {
		s.armLocked()
	} else {
		s.disarmLocked()
	}
}

// SetCallback swaps the callback used by later invocations.
func (s *Scheduler) SetCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// SetInterval changes the period and restarts the countdown if a timer is
// running.
func (s *Scheduler) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval == interval {
		return
	}
	s.interval = interval
	if s.ticker != nil {
		s.stopTickerLocked()
		s.startTickerLocked()
	}
}

// Stop disarms the scheduler for good and cancels the context of any
// invocation still running. No invocation starts after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.disarmLocked()
	s.cancel()
}

// Done is closed once the scheduler is stopped or its parent context ends.
func (s *Scheduler) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Running reports whether a timer is currently armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *Scheduler) armLocked() {
	s.unwatch = s.page.Watch(s.onVisibility)
	if s.page.Visible() {
		s.fireLocked()
		s.startTickerLocked()
	}
}

func (s *Scheduler) disarmLocked() {
	s.stopTickerLocked()
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

func (s *Scheduler) onVisibility(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.enabled {
		return
	}
	if !visible {
		s.stopTickerLocked()
		s.logger.Debug().Msg("Page hidden, polling paused")
		return
	}
	if s.ticker == nil {
		s.fireLocked()
		s.startTickerLocked()
	}
}

func (s *Scheduler) startTickerLocked() {
	s.gen++
	s.ticker = s.newTicker(s.interval)
	s.stopTic = make(chan struct{})
	go s.tickLoop(s.ticker, s.stopTic, s.gen)
}

func (s *Scheduler) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopTic)
	s.ticker = nil
	s.stopTic = nil
	s.gen++
}

func (s *Scheduler) tickLoop(t Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.mu.Lock()
			if s.gen == gen && !s.stopped {
				s.fireLocked()
			}
			s.mu.Unlock()
		}
	}
}

// fireLocked runs the callback on its own goroutine. The goroutine gives up
// if Stop wins the lock first.
func (s *Scheduler) fireLocked() {
	cb, ctx := s.cb, s.ctx
	if cb == nil {
		return
	}
	go func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Msg("Poll callback panicked")
			}
		}()
		if err := cb(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Poll callback failed")
		}
	}()
}
