// Package wayland asks the running compositor for the focused window.
// Wayland has no common protocol for this, so each compositor's own IPC
// tool is used: swaymsg, hyprctl or the GNOME Shell D-Bus interface.
package wayland

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"screentime/pkg/window"
)

// Compositors recognized by detectCompositor
const (
	CompositorSway     = "sway"
	CompositorHyprland = "hyprland"
	CompositorGnome    = "gnome"
	CompositorUnknown  = "unknown"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Detector implements window.Detector for Wayland
type Detector struct {
	compositor string
	run        runFunc
	lookPath   func(string) (string, error)
	procRoot   string
	now        func() time.Time
}

// NewDetector creates a new Wayland detector
func NewDetector() *Detector {
	d := &Detector{
		run:      runCommand,
		lookPath: exec.LookPath,
		procRoot: "/proc",
		now:      time.Now,
	}
	d.compositor = detectCompositor(os.Getenv)
	return d
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// detectCompositor identifies the compositor from the session environment.
func detectCompositor(getenv func(string) string) string {
	if getenv("SWAYSOCK") != "" {
		return CompositorSway
	}
	if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return CompositorHyprland
	}

	desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "sway"):
		return CompositorSway
	case strings.Contains(desktop, "hyprland"):
		return CompositorHyprland
	case strings.Contains(desktop, "gnome"), strings.Contains(desktop, "ubuntu"):
		return CompositorGnome
	}
	return CompositorUnknown
}

// Compositor returns the detected compositor name
func (d *Detector) Compositor() string {
	return d.compositor
}

func (d *Detector) commandExists(cmd string) bool {
	_, err := d.lookPath(cmd)
	return err == nil
}

// IsAvailable checks if the compositor's IPC tool is installed
func (d *Detector) IsAvailable() bool {
	switch d.compositor {
	case CompositorSway:
		return d.commandExists("swaymsg")
	case CompositorHyprland:
		return d.commandExists("hyprctl")
	case CompositorGnome:
		return d.commandExists("gdbus")
	}
	return false
}

// GetDisplayServer returns "wayland"
func (d *Detector) GetDisplayServer() string {
	return "wayland"
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow(ctx context.Context) (*window.WindowInfo, error) {
	var (
		info *window.WindowInfo
		err  error
	)

	switch d.compositor {
	case CompositorSway:
		info, err = d.focusedSway(ctx)
	case CompositorHyprland:
		info, err = d.focusedHyprland(ctx)
	case CompositorGnome:
		info, err = d.focusedGnome(ctx)
	default:
		return nil, fmt.Errorf("unsupported wayland compositor: %s", d.compositor)
	}
	if err != nil {
		return nil, err
	}

	info.DisplayServer = "wayland"
	if info.ProcessName == "" {
		info.ProcessName = d.processName(info.PID)
	}
	return info, nil
}

func (d *Detector) focusedSway(ctx context.Context) (*window.WindowInfo, error) {
	output, err := d.run(ctx, "swaymsg", "-t", "get_tree", "-r")
	if err != nil {
		return nil, fmt.Errorf("failed to execute swaymsg: %w", err)
	}
	return parseSwayTree(output)
}

func (d *Detector) focusedHyprland(ctx context.Context) (*window.WindowInfo, error) {
	output, err := d.run(ctx, "hyprctl", "activewindow", "-j")
	if err != nil {
		return nil, fmt.Errorf("failed to execute hyprctl: %w", err)
	}
	return parseHyprlandWindow(output)
}

const gnomeFocusScript = `(() => {
	const w = global.display.get_focus_window();
	return w ? JSON.stringify({wm_class: w.get_wm_class() || '', title: w.get_title() || '', pid: w.get_pid() || 0}) : 'null';
})()`

func (d *Detector) focusedGnome(ctx context.Context) (*window.WindowInfo, error) {
	output, err := d.run(ctx, "gdbus", "call", "--session",
		"--dest", "org.gnome.Shell",
		"--object-path", "/org/gnome/Shell",
		"--method", "org.gnome.Shell.Eval",
		gnomeFocusScript)
	if err != nil {
		return nil, fmt.Errorf("failed to execute gdbus: %w", err)
	}
	return parseGnomeEval(string(output))
}

type swayNode struct {
	Focused          bool       `json:"focused"`
	Name             string     `json:"name"`
	AppID            string     `json:"app_id"`
	PID              uint32     `json:"pid"`
	WindowProperties *struct {
		Class    string `json:"class"`
		Instance string `json:"instance"`
	} `json:"window_properties"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

var errNoFocusedWindow = errors.New("no focused window")

// parseSwayTree finds the focused leaf in `swaymsg -t get_tree` output.
// XWayland windows carry their class in window_properties instead of app_id.
func parseSwayTree(data []byte) (*window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sway tree: %w", err)
	}

	node := findFocused(&root)
	if node == nil {
		return nil, errNoFocusedWindow
	}

	app := node.AppID
	if app == "" && node.WindowProperties != nil {
		app = node.WindowProperties.Class
	}
	return &window.WindowInfo{AppName: app, WindowTitle: node.Name, PID: node.PID}, nil
}

func findFocused(n *swayNode) *swayNode {
	if n.Focused && len(n.Nodes) == 0 && len(n.FloatingNodes) == 0 {
		return n
	}
	for i := range n.Nodes {
		if found := findFocused(&n.Nodes[i]); found != nil {
			return found
		}
	}
	for i := range n.FloatingNodes {
		if found := findFocused(&n.FloatingNodes[i]); found != nil {
			return found
		}
	}
	return nil
}

// parseHyprlandWindow parses `hyprctl activewindow -j`. Hyprland prints {}
// when no window is focused.
func parseHyprlandWindow(data []byte) (*window.WindowInfo, error) {
	var w struct {
		Class string `json:"class"`
		Title string `json:"title"`
		PID   int64  `json:"pid"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl output: %w", err)
	}
	if w.Class == "" && w.Title == "" {
		return nil, errNoFocusedWindow
	}

	info := &window.WindowInfo{AppName: w.Class, WindowTitle: w.Title}
	if w.PID > 0 {
		info.PID = uint32(w.PID)
	}
	return info, nil
}

// parseGnomeEval unpacks the GVariant tuple printed by gdbus for
// org.gnome.Shell.Eval: (true, '{"wm_class":...}') on success.
func parseGnomeEval(output string) (*window.WindowInfo, error) {
	output = strings.TrimSpace(output)
	if !strings.HasPrefix(output, "(true,") {
		return nil, fmt.Errorf("GNOME Shell Eval refused (requires unsafe mode or an extension)")
	}

	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start == -1 || end < start {
		return nil, errNoFocusedWindow
	}
	payload := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(output[start : end+1])

	var w struct {
		WMClass string `json:"wm_class"`
		Title   string `json:"title"`
		PID     uint32 `json:"pid"`
	}
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("failed to parse GNOME Shell reply: %w", err)
	}
	return &window.WindowInfo{AppName: w.WMClass, WindowTitle: w.Title, PID: w.PID}, nil
}

func (d *Detector) processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(d.procRoot, strconv.FormatUint(uint64(pid), 10), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// GetIdleInfo reads the logind session's idle and lock hints
func (d *Detector) GetIdleInfo(ctx context.Context) (*window.IdleInfo, error) {
	session := os.Getenv("XDG_SESSION_ID")
	if session == "" {
		session = "self"
	}

	output, err := d.run(ctx, "loginctl", "show-session", session,
		"-p", "IdleHint", "-p", "IdleSinceHint", "-p", "LockedHint")
	if err != nil {
		return &window.IdleInfo{}, nil
	}
	return parseSessionHints(string(output), d.now()), nil
}

// parseSessionHints reads loginctl key=value output. IdleSinceHint is a
// realtime timestamp in microseconds.
func parseSessionHints(output string, now time.Time) *window.IdleInfo {
	info := &window.IdleInfo{}
	idle := false
	var since int64

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "IdleHint":
			idle = value == "yes"
		case "LockedHint":
			info.IsLocked = value == "yes"
		case "IdleSinceHint":
			since, _ = strconv.ParseInt(value, 10, 64)
		}
	}

	if idle && since > 0 {
		if elapsed := now.Sub(time.UnixMicro(since)); elapsed > 0 {
			info.IdleTime = int64(elapsed / time.Second)
		}
	}
	info.IsIdle = idle
	return info
}

// Close cleans up resources
func (d *Detector) Close() error {
	return nil
}
