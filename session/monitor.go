// Package session tracks the validity of a signed-in session and decides when
// to renew it silently, warn the user, or end it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/notify"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RemainingCalculator reports seconds left on a stored token
type RemainingCalculator interface {
	Remaining(kind token.Kind) float64
}

// Renewer exchanges the refresh token for a new access token
type Renewer interface {
	RenewAccessToken(ctx context.Context) (string, error)
}

// Clearer ends the stored session
type Clearer interface {
	ClearSession() error
}

// Reauthenticator runs the interactive sign-in behind the extend intent
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Deps are the collaborators of a Monitor. Renewer is required for
// RefreshMode. Without a Reauthenticator warnings offer no extend intent.
type Deps struct {
	Calculator      RemainingCalculator
	Renewer         Renewer
	Clearer         Clearer
	Gateway         notify.Gateway
	Reauthenticator Reauthenticator
}

// Monitor runs the session state machine. All transitions happen on one
// goroutine per run; renewals and sign-ins run on workers and report back as
// events.
type Monitor struct {
	deps      Deps
	settings  Settings
	clock     clockwork.Clock
	logger    zerolog.Logger
	onExpired func()

	mu    sync.Mutex
	state State
	run   *run
}

type Option func(*Monitor)

// WithClock sets the clock that drives both timers
func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

func WithSettings(settings Settings) Option {
	return func(m *Monitor) {
		m.settings = settings
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithExpiredHook registers a func called once each time a run ends in Expired
func WithExpiredHook(hook func()) Option {
	return func(m *Monitor) {
		m.onExpired = hook
	}
}

func NewMonitor(deps Deps, options ...Option) (*Monitor, error) {
	if deps.Calculator == nil {
		return nil, fmt.Errorf("[NewMonitor] calculator is required: %w", apperrors.ErrConfiguration)
	}
	if deps.Clearer == nil {
		return nil, fmt.Errorf("[NewMonitor] session clearer is required: %w", apperrors.ErrConfiguration)
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("[NewMonitor] notification gateway is required: %w", apperrors.ErrConfiguration)
	}

	m := &Monitor{
		deps:     deps,
		settings: DefaultSettings(),
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger.With().Str("component", "session-monitor").Logger(),
	}
	for _, opt := range options {
		opt(m)
	}
	if err := m.settings.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Start arms the monitor for a freshly established or restored session. The
// first evaluation happens immediately.
func (m *Monitor) Start(mode Mode) error {
	if mode == RefreshMode && m.deps.Renewer == nil {
		return fmt.Errorf("refresh mode needs a renewer: %w", apperrors.ErrConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil && !m.run.finished() {
		return apperrors.ErrMonitorRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		m:      m,
		mode:   mode,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan event),
		done:   make(chan struct{}),
		check:  m.clock.NewTicker(m.settings.CheckInterval),
		logger: m.logger.With().Str("run", uuid.NewString()).Str("mode", mode.String()).Logger(),
	}
	m.run = r
	m.state = State{Phase: Active, Mode: mode, Running: true, Authenticated: true}

	r.logger.Info().Dur("check_interval", m.settings.CheckInterval).Msg("Session monitor started")
	go r.loop()
	return nil
}

// Stop tears the current run down without touching the store and waits for
// its goroutines to finish. The monitor can be started again afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
	r.workers.Wait()
}

// ForceExpire drives the running session straight to Expired and returns once
// the transition is complete.
func (m *Monitor) ForceExpire() error {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()

	if r == nil {
		return apperrors.ErrSessionInactive
	}
	ack := make(chan struct{})
	if !r.post(event{kind: eventForceExpire, ack: ack}) {
		return apperrors.ErrSessionInactive
	}
	select {
	case <-ack:
	case <-r.done:
	}
	return nil
}

// State returns a snapshot of the monitor
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) update(fn func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

type eventKind int

const (
	eventDismiss eventKind = iota
	eventExtend
	eventRenewed
	eventReauthenticated
	eventForceExpire
)

type event struct {
	kind   eventKind
	dialog uint64
	err    error
	ack    chan struct{}
}

// run is one armed session. Every field below workers is owned by the loop
// goroutine.
type run struct {
	m       *Monitor
	mode    Mode
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan event
	done    chan struct{}
	workers sync.WaitGroup
	logger  zerolog.Logger

	phase                Phase
	warningVisible       bool
	timeoutNoticeVisible bool
	check                clockwork.Ticker
	countdown            clockwork.Ticker
	tracked              token.Kind
	dialog               uint64
	dialogHandle         notify.Handle
	renewing             bool
	reauthenticating     bool
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// post delivers an event to the loop, or reports false once the run is over
func (r *run) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *run) loop() {
	r.phase = Active
	defer func() {
		r.cancel()
		close(r.done)
		if r.phase == Expired && r.m.onExpired != nil {
			r.m.onExpired()
		}
	}()

	r.evaluate()
	for r.phase != Expired {
		var countdown <-chan time.Time
		if r.countdown != nil {
			countdown = r.countdown.Chan()
		}

		select {
		case <-r.ctx.Done():
			r.teardown()
			return
		case <-r.check.Chan():
			r.evaluate()
		case <-countdown:
			r.tick()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

// evaluate is the coarse periodic check
func (r *run) evaluate() {
	threshold := r.m.settings.WarningThreshold.Seconds()
	calc := r.m.deps.Calculator

	r.m.update(func(s *State) { s.Checks++ })

	if r.mode == AccessOnly {
		r.assess(token.Access, calc.Remaining(token.Access))
		return
	}

	access := calc.Remaining(token.Access)
	r.logger.Debug().Float64("access_remaining", access).Msg("Checking session")
	if access < threshold {
		r.renew()
	}
	r.assess(token.Refresh, calc.Remaining(token.Refresh))
}

func (r *run) assess(kind token.Kind, remaining float64) {
	threshold := r.m.settings.WarningThreshold.Seconds()
	r.logger.Debug().Str("token", kind.String()).Float64("remaining", remaining).Msg("Evaluating token")

	switch {
	case remaining <= 0:
		r.expire("token expired")
	case remaining < threshold:
		if !r.warningVisible {
			r.enterWarning(kind, remaining)
		}
	case r.phase == Warning:
		r.closeWarning()
		r.setPhase(Active)
	}
}

func (r *run) enterWarning(kind token.Kind, remaining float64) {
	r.stopCountdown()

	r.dialog++
	dialog := r.dialog
	var onExtend func()
	if r.mode == RefreshMode && r.m.deps.Reauthenticator != nil {
		onExtend = func() { r.post(event{kind: eventExtend, dialog: dialog}) }
	}
	onDismiss := func() { r.post(event{kind: eventDismiss, dialog: dialog}) }

	minutes, seconds := token.SplitRemaining(remaining)
	r.tracked = kind
	r.dialogHandle = r.m.deps.Gateway.ShowWarning(warningTitle(r.mode), WarningBody(r.mode, minutes, seconds), onExtend, onDismiss)
	r.warningVisible = true
	r.countdown = r.m.clock.NewTicker(r.m.settings.CountdownTick)
	r.m.update(func(s *State) {
		s.WarningVisible = true
		s.Countdowns++
	})
	r.setPhase(Warning)
	r.logger.Info().Str("token", kind.String()).Int("minutes", minutes).Int("seconds", seconds).Msg("Session expiring soon")
}

// tick is the fine countdown while a warning is visible
func (r *run) tick() {
	minutes, seconds := token.SplitRemaining(r.m.deps.Calculator.Remaining(r.tracked))
	if minutes == 0 && seconds <= 0 {
		r.expire("countdown reached zero")
		return
	}
	r.m.deps.Gateway.UpdateWarning(r.dialogHandle, WarningBody(r.mode, minutes, seconds))
}

func (r *run) handle(ev event) {
	switch ev.kind {
	case eventDismiss:
		if ev.dialog != r.dialog || !r.warningVisible {
			return
		}
		r.closeWarning()
		r.setPhase(Active)
		r.logger.Info().Msg("Warning dismissed")

	case eventExtend:
		if ev.dialog != r.dialog || !r.warningVisible || r.reauthenticating {
			return
		}
		r.reauthenticating = true
		r.logger.Info().Msg("Extending session")
		r.spawn(func(ctx context.Context) event {
			return event{kind: eventReauthenticated, dialog: ev.dialog, err: r.m.deps.Reauthenticator.Reauthenticate(ctx)}
		})

	case eventReauthenticated:
		r.reauthenticating = false
		if ev.err != nil {
			r.logger.Warn().Err(ev.err).Msg("Session extension failed")
			r.m.deps.Gateway.ShowError(extendFailedTitle, ev.err.Error())
			return
		}
		r.closeWarning()
		r.check.Reset(r.m.settings.CheckInterval)
		r.setPhase(Active)
		r.m.deps.Gateway.ShowSuccess(extendedMessage)
		r.logger.Info().Msg("Session extended")

	case eventRenewed:
		r.renewing = false
		switch {
		case ev.err == nil:
		case errors.Is(ev.err, apperrors.ErrRenewalRejected):
			r.logger.Warn().Err(ev.err).Msg("Refresh token rejected")
			r.expire("refresh token rejected")
		case errors.Is(ev.err, apperrors.ErrSessionInactive):
		default:
			r.logger.Warn().Err(ev.err).Msg("Access token renewal failed, retrying at next check")
		}

	case eventForceExpire:
		r.expire("forced")
		close(ev.ack)
	}
}

// renew starts a silent access token renewal unless one is already running
func (r *run) renew() {
	if r.renewing {
		r.logger.Debug().Msg("Renewal already in flight")
		return
	}
	r.renewing = true
	r.spawn(func(ctx context.Context) event {
		_, err := r.m.deps.Renewer.RenewAccessToken(ctx)
		return event{kind: eventRenewed, err: err}
	})
}

func (r *run) spawn(work func(ctx context.Context) event) {
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		r.post(work(r.ctx))
	}()
}

func (r *run) expire(reason string) {
	if r.timeoutNoticeVisible {
		return
	}
	r.timeoutNoticeVisible = true

	r.closeWarning()
	r.check.Stop()
	if err := r.m.deps.Clearer.ClearSession(); err != nil {
		r.logger.Err(err).Msg("Failed to clear session")
	}
	r.phase = Expired
	r.m.update(func(s *State) {
		s.Phase = Expired
		s.Running = false
		s.Authenticated = false
		s.TimeoutNoticeVisible = true
	})
	r.m.deps.Gateway.ShowTerminal(expiredTitle, expiredBody)
	r.logger.Info().Str("reason", reason).Msg("Session expired")
}

// teardown ends the run on Stop. The store is left alone.
func (r *run) teardown() {
	r.closeWarning()
	r.check.Stop()
	r.phase = Unauthenticated
	r.m.update(func(s *State) {
		s.Phase = Unauthenticated
		s.Running = false
		s.Authenticated = false
	})
	r.logger.Info().Msg("Session monitor stopped")
}

// closeWarning stops the countdown and closes the dialog if one is open
func (r *run) closeWarning() {
	r.stopCountdown()
	if !r.warningVisible {
		return
	}
	r.m.deps.Gateway.CloseWarning(r.dialogHandle)
	r.warningVisible = false
	r.dialogHandle = ""
	r.m.update(func(s *State) { s.WarningVisible = false })
}

func (r *run) stopCountdown() {
	if r.countdown == nil {
		return
	}
	r.countdown.Stop()
	r.countdown = nil
	r.m.update(func(s *State) { s.Countdowns-- })
}

func (r *run) setPhase(p Phase) {
	if r.phase == p {
		return
	}
	r.logger.Info().Str("from", r.phase.String()).Str("to", p.String()).Msg("Session phase changed")
	r.phase = p
	r.m.update(func(s *State) { s.Phase = p })
}
