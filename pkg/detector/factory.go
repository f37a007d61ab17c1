// Package detector builds the window.Detector for the configured backend.
package detector

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"screentime/pkg/integrations/hybrid"
	"screentime/pkg/integrations/wayland"
	"screentime/pkg/integrations/x11"
	"screentime/pkg/window"
)

// Backends accepted by New
const (
	BackendAuto    = "auto"
	BackendX11     = "x11"
	BackendWayland = "wayland"
)

// New returns a detector for backend. Auto chains the compositor detector
// ahead of X11 on Wayland sessions and uses X11 alone otherwise.
func New(backend string, logger zerolog.Logger) (window.Detector, error) {
	switch backend {
	case BackendX11:
		return hybrid.NewDetector(logger, x11.NewDetector())
	case BackendWayland:
		return hybrid.NewDetector(logger, wayland.NewDetector())
	case BackendAuto, "":
		if DetectDisplayServer() == "wayland" {
			return hybrid.NewDetector(logger, wayland.NewDetector(), x11.NewDetector())
		}
		return hybrid.NewDetector(logger, x11.NewDetector())
	}
	return nil, fmt.Errorf("unknown detector backend: %s", backend)
}

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
