package window

import (
	"context"
	"strings"
)

// Identity modes select which WindowInfo field names an application.
const (
	IdentifyByApp   = "app"
	IdentifyByTitle = "title"
)

// Default idle threshold used by detectors when computing IdleInfo.IsIdle
const DefaultIdleThreshold int64 = 300

// WindowInfo represents information about the currently focused window
type WindowInfo struct {
	AppName       string
	WindowTitle   string
	ProcessName   string
	PID           uint32
	DisplayServer string // "x11" or "wayland"
}

// Identity returns the name the tracker records for this window. In title
// mode it prefers the window title; otherwise the application name, then the
// process name, then the title. It returns "" when every field is blank.
func (w *WindowInfo) Identity(mode string) string {
	if w == nil {
		return ""
	}
	candidates := []string{w.AppName, w.ProcessName, w.WindowTitle}
	if mode == IdentifyByTitle {
		candidates = []string{w.WindowTitle, w.AppName, w.ProcessName}
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && c != "Unknown" {
			return c
		}
	}
	return ""
}

// IdleInfo represents system idle/lock state
type IdleInfo struct {
	IsIdle   bool
	IsLocked bool
	IdleTime int64 // Idle time in seconds
}

// Away reports whether the user should be treated as absent for the given
// idle threshold in seconds.
func (i *IdleInfo) Away(thresholdSeconds int64) bool {
	if i == nil {
		return false
	}
	if i.IsLocked {
		return true
	}
	if thresholdSeconds > 0 {
		return i.IdleTime >= thresholdSeconds
	}
	return i.IsIdle
}

// Detector is the interface that all window detection implementations must satisfy
type Detector interface {
	// GetFocusedWindow returns information about the currently focused window
	GetFocusedWindow(ctx context.Context) (*WindowInfo, error)

	// GetIdleInfo returns information about system idle/lock state
	GetIdleInfo(ctx context.Context) (*IdleInfo, error)

	// IsAvailable checks if this detector can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type ("x11" or "wayland")
	GetDisplayServer() string

	// Close cleans up any resources used by the detector
	Close() error
}
