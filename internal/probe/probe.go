// Package probe reports which application has focus. A probe never fails:
// errors, timeouts and empty answers all read as NoFocusedWindow.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"screentime/internal/config"
	"screentime/internal/metrics"
	"screentime/internal/models"
	"screentime/pkg/detector"
	"screentime/pkg/window"
)

// NoFocusedWindow is reported when nothing has focus or the probe fails.
const NoFocusedWindow = models.NoFocusedWindow

// FocusProbe returns the focused application's name.
type FocusProbe interface {
	Probe(ctx context.Context) string
}

// IdleProbe is implemented by probes that can report idle and lock state.
type IdleProbe interface {
	Idle(ctx context.Context) (*window.IdleInfo, error)
}

// Func adapts a function to FocusProbe.
type Func func(ctx context.Context) string

func (f Func) Probe(ctx context.Context) string {
	if name := strings.TrimSpace(f(ctx)); name != "" {
		return name
	}
	return NoFocusedWindow
}

// Static always reports the same name.
type Static string

func (s Static) Probe(context.Context) string {
	if name := strings.TrimSpace(string(s)); name != "" {
		return name
	}
	return NoFocusedWindow
}

// DetectorProbe asks a window.Detector, bounded by a timeout.
type DetectorProbe struct {
	detector window.Detector
	timeout  time.Duration
	mode     string
	logger   zerolog.Logger

	busy atomic.Bool // a detector call is still running

	mu      sync.Mutex
	lastErr error
}

var errProbeBusy = errors.New("previous detector call still running")

// NewDetectorProbe wraps det. A zero timeout disables the bound.
func NewDetectorProbe(det window.Detector, timeout time.Duration, identifyBy string, logger zerolog.Logger) *DetectorProbe {
	return &DetectorProbe{
		detector: det,
		timeout:  timeout,
		mode:     identifyBy,
		logger:   logger.With().Str("component", "probe").Logger(),
	}
}

type focusResult struct {
	info *window.WindowInfo
	err  error
}

// Probe returns the focused window's identity. A detector call that outlives
// the timeout is abandoned; its result is discarded when it completes, and
// no new call starts until it does.
func (p *DetectorProbe) Probe(ctx context.Context) string {
	if !p.busy.CompareAndSwap(false, true) {
		p.setErr(errProbeBusy)
		return NoFocusedWindow
	}

	start := time.Now()
	defer func() { metrics.ProbeDuration.Observe(time.Since(start).Seconds()) }()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan focusResult, 1)
	go func() {
		info, err := p.detector.GetFocusedWindow(ctx)
		p.busy.Store(false)
		done <- focusResult{info, err}
	}()

	select {
	case <-ctx.Done():
		metrics.ProbeTimeouts.Inc()
		p.setErr(fmt.Errorf("probe timed out after %v: %w", p.timeout, ctx.Err()))
		return NoFocusedWindow
	case res := <-done:
		if res.err != nil {
			p.setErr(res.err)
			return NoFocusedWindow
		}
		p.setErr(nil)
		if name := res.info.Identity(p.mode); name != "" {
			return name
		}
		return NoFocusedWindow
	}
}

func (p *DetectorProbe) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && (p.lastErr == nil || p.lastErr.Error() != err.Error()) {
		p.logger.Debug().Err(err).Msg("Probe failed")
	}
	p.lastErr = err
}

// LastError returns the error behind the most recent NoFocusedWindow, or nil
// if the last probe succeeded.
func (p *DetectorProbe) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Idle reports the detector's idle and lock state.
func (p *DetectorProbe) Idle(ctx context.Context) (*window.IdleInfo, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.detector.GetIdleInfo(ctx)
}

// DisplayServer returns the detector's display server.
func (p *DetectorProbe) DisplayServer() string {
	return p.detector.GetDisplayServer()
}

// Close releases the detector.
func (p *DetectorProbe) Close() error {
	return p.detector.Close()
}

// New builds the probe selected by cfg.
func New(cfg config.ProbeConfig, timeout time.Duration, logger zerolog.Logger) (FocusProbe, error) {
	if cfg.Backend == config.ProbeStatic {
		return Static(cfg.StaticName), nil
	}

	det, err := detector.New(cfg.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	return NewDetectorProbe(det, timeout, cfg.IdentifyBy, logger), nil
}
