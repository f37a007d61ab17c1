// Package hybrid chains window detectors and answers with the first one that
// succeeds, so a session running XWayland apps under a Wayland compositor
// still reports a focused window.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"screentime/pkg/window"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Detector tries each of its detectors in order.
type Detector struct {
	mu        sync.Mutex
	detectors []window.Detector
	last      string
	logger    zerolog.Logger
	run       runFunc
}

// NewDetector returns a chain over the detectors reporting IsAvailable.
func NewDetector(logger zerolog.Logger, detectors ...window.Detector) (*Detector, error) {
	d := &Detector{
		logger: logger.With().Str("component", "detector").Logger(),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}

	for _, det := range detectors {
		if det == nil {
			continue
		}
		if !det.IsAvailable() {
			d.logger.Debug().Str("display_server", det.GetDisplayServer()).Msg("Detector unavailable")
			det.Close()
			continue
		}
		d.detectors = append(d.detectors, det)
		d.logger.Debug().Str("display_server", det.GetDisplayServer()).Msg("Detector initialized")
	}

	if len(d.detectors) == 0 {
		return nil, errors.New("no window detector available")
	}
	return d, nil
}

// GetFocusedWindow returns the first usable answer from the chain.
func (d *Detector) GetFocusedWindow(ctx context.Context) (*window.WindowInfo, error) {
	var errs []error
	for _, det := range d.detectors {
		info, err := det.GetFocusedWindow(ctx)
		if err == nil && info.Identity(window.IdentifyByApp) != "" {
			d.setLast(det.GetDisplayServer())
			return info, nil
		}
		if err == nil {
			err = errors.New("no valid window information")
		}
		errs = append(errs, fmt.Errorf("%s: %w", det.GetDisplayServer(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all detection methods failed: %w", errors.Join(errs...))
}

func (d *Detector) setLast(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != method {
		d.logger.Debug().Str("method", method).Msg("Detection method changed")
	}
	d.last = method
}

// LastMethod returns the display server of the detector that last answered.
func (d *Detector) LastMethod() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// GetIdleInfo asks each detector in turn. When none can answer, only the
// lock state is probed through the desktop's screen saver.
func (d *Detector) GetIdleInfo(ctx context.Context) (*window.IdleInfo, error) {
	for _, det := range d.detectors {
		if info, err := det.GetIdleInfo(ctx); err == nil && info != nil {
			return info, nil
		}
	}
	return &window.IdleInfo{IsLocked: d.isScreenLocked(ctx)}, nil
}

func (d *Detector) isScreenLocked(ctx context.Context) bool {
	output, err := d.run(ctx, "gdbus", "call", "--session",
		"--dest", "org.gnome.ScreenSaver",
		"--object-path", "/org/gnome/ScreenSaver",
		"--method", "org.gnome.ScreenSaver.GetActive")
	if err == nil && strings.Contains(string(output), "true") {
		return true
	}

	output, err = d.run(ctx, "loginctl", "show-session", "-p", "LockedHint")
	return err == nil && strings.Contains(string(output), "LockedHint=yes")
}

// IsAvailable reports whether any detector in the chain is usable.
func (d *Detector) IsAvailable() bool {
	for _, det := range d.detectors {
		if det.IsAvailable() {
			return true
		}
	}
	return false
}

// GetDisplayServer returns the display server of the first detector.
func (d *Detector) GetDisplayServer() string {
	if len(d.detectors) == 0 {
		return "unknown"
	}
	return d.detectors[0].GetDisplayServer()
}

// Status describes each detector in the chain.
func (d *Detector) Status() string {
	var b strings.Builder
	b.WriteString("Detector chain:\n")
	for i, det := range d.detectors {
		fmt.Fprintf(&b, "  %d. %s (available: %v)\n", i+1, det.GetDisplayServer(), det.IsAvailable())
	}
	if last := d.LastMethod(); last != "" {
		fmt.Fprintf(&b, "  Last successful method: %s\n", last)
	}
	return b.String()
}

// Close closes every detector in the chain.
func (d *Detector) Close() error {
	var errs []error
	for _, det := range d.detectors {
		if err := det.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
