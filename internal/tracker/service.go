// Package tracker drives the ledger from a polling loop.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"screentime/internal/config"
	"screentime/internal/probe"
)

// flushTimeout bounds the final flush after the loop's context is done.
const flushTimeout = 5 * time.Second

// Ledger is the part of the usage ledger the tracker drives.
type Ledger interface {
	Observe(ctx context.Context, app string, now time.Time)
	Flush(ctx context.Context, now time.Time) error
}

// ErrorFunc receives errors worth journaling.
type ErrorFunc func(ctx context.Context, component string, err error)

type erroringProbe interface {
	LastError() error
}

type Service struct {
	config config.TrackerConfig
	ledger Ledger
	probe  probe.FocusProbe
	logger zerolog.Logger
	onErr  ErrorFunc

	now    func() time.Time
	notify func(state string) (bool, error)

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	last     string
	lastErr  string
	lastIdle bool
}

func NewService(cfg config.TrackerConfig, ledger Ledger, p probe.FocusProbe, logger zerolog.Logger) *Service {
	return &Service{
		config: cfg,
		ledger: ledger,
		probe:  p,
		logger: logger.With().Str("component", "tracker").Logger(),
		now:    time.Now,
		notify: func(state string) (bool, error) { return sddaemon.SdNotify(false, state) },
	}
}

// OnError sets the sink for probe errors. Repeated identical errors are
// reported once.
func (s *Service) OnError(fn ErrorFunc) {
	s.onErr = fn
}

// Start polls until ctx is done or Stop is called, then flushes the pending
// session with a fresh context.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("tracker is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Dur("poll_interval", s.config.PollInterval).Msg("Starting tracker")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var watchdog <-chan time.Time
	if interval, err := sddaemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		wt := time.NewTicker(interval / 2)
		defer wt.Stop()
		watchdog = wt.C
	}

	s.Tick(ctx)
	s.sdNotify(sddaemon.SdNotifyReady)

	for {
		select {
		case <-ctx.Done():
			s.sdNotify(sddaemon.SdNotifyStopping)
			s.logger.Info().Msg("Tracker stopped")
			return s.flush()

		case <-watchdog:
			s.sdNotify(sddaemon.SdNotifyWatchdog)

		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Service) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.ledger.Flush(ctx, s.now()); err != nil {
		return fmt.Errorf("failed to flush usage: %w", err)
	}
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick probes once and feeds the result to the ledger. It returns the
// observed name.
func (s *Service) Tick(ctx context.Context) string {
	name := s.current(ctx)
	s.ledger.Observe(ctx, name, s.now())

	if name != s.last {
		s.logger.Debug().Str("app", name).Msg("Tracked")
		s.last = name
	}
	return name
}

func (s *Service) current(ctx context.Context) string {
	if s.config.TrackIdle && s.away(ctx) {
		return s.config.IdleLabel
	}

	name := s.probe.Probe(ctx)
	if ep, ok := s.probe.(erroringProbe); ok {
		s.reportErr(ctx, ep.LastError())
	}
	return name
}

func (s *Service) away(ctx context.Context) bool {
	ip, ok := s.probe.(probe.IdleProbe)
	if !ok {
		return false
	}
	info, err := ip.Idle(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Idle query failed")
		return false
	}

	away := info.Away(int64(s.config.IdleThreshold / time.Second))
	if away != s.lastIdle {
		s.logger.Info().Bool("idle", info.IsIdle).Bool("locked", info.IsLocked).Bool("away", away).Msg("Idle state changed")
		s.lastIdle = away
	}
	return away
}

func (s *Service) reportErr(ctx context.Context, err error) {
	if err == nil {
		s.lastErr = ""
		return
	}
	if err.Error() == s.lastErr {
		return
	}
	s.lastErr = err.Error()
	s.logger.Warn().Err(err).Msg("Focus probe failed")
	if s.onErr != nil {
		s.onErr(ctx, "probe", err)
	}
}

func (s *Service) sdNotify(state string) {
	if s.notify == nil {
		return
	}
	if _, err := s.notify(state); err != nil {
		s.logger.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}
