// Package x11 reads the focused window from an X server over the X11
// protocol, without shelling out to xdotool or xprop.
package x11

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"screentime/pkg/window"
)

const processCacheSize = 256

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// Detector implements window.Detector for X11
type Detector struct {
	mu       sync.Mutex
	conn     *xgb.Conn
	root     xproto.Window
	atoms    map[string]xproto.Atom
	hasSaver bool

	procRoot  string
	processes *lru.Cache[uint32, string]
}

// NewDetector creates a new X11 detector. The X connection is opened on
// first use and reopened after a failure.
func NewDetector() *Detector {
	cache, _ := lru.New[uint32, string](processCacheSize)
	return &Detector{procRoot: "/proc", processes: cache}
}

// IsAvailable checks if an X display is configured
func (d *Detector) IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return "x11"
}

// connectLocked opens the X connection and interns the atoms we need.
func (d *Detector) connectLocked() error {
	if d.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}

	d.conn = conn
	d.root = xproto.Setup(conn).DefaultScreen(conn).Root
	d.atoms = atoms
	d.hasSaver = screensaver.Init(conn) == nil
	return nil
}

// resetLocked drops the connection so the next call reconnects.
func (d *Detector) resetLocked() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow(ctx context.Context) (*window.WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connectLocked(); err != nil {
		return nil, err
	}

	win, err := d.activeWindowLocked()
	if err != nil {
		if errors.Is(err, errNoActiveWindow) {
			return nil, err
		}
		d.resetLocked()
		return nil, err
	}

	instance, class := parseWMClass(d.propertyLocked(win, d.atoms["WM_CLASS"], xproto.AtomString, 256))
	title := d.windowNameLocked(win)
	pid := d.windowPIDLocked(win)

	appName := class
	if appName == "" {
		appName = instance
	}
	processName := d.processName(pid)
	if appName == "" {
		appName = processName
	}

	return &window.WindowInfo{
		AppName:       appName,
		WindowTitle:   title,
		ProcessName:   processName,
		PID:           pid,
		DisplayServer: "x11",
	}, nil
}

var errNoActiveWindow = errors.New("no active window found")

// activeWindowLocked prefers _NET_ACTIVE_WINDOW and falls back to the input
// focus's top-level parent for window managers without EWMH.
func (d *Detector) activeWindowLocked() (xproto.Window, error) {
	data := d.propertyLocked(d.root, d.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if len(data) >= 4 {
		if win := xproto.Window(binary.LittleEndian.Uint32(data)); win != 0 && d.hasNameLocked(win) {
			return win, nil
		}
	}

	reply, err := xproto.GetInputFocus(d.conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query input focus: %w", err)
	}
	if reply.Focus == 0 || reply.Focus == d.root {
		return 0, errNoActiveWindow
	}

	win := d.topLevelLocked(reply.Focus)
	if !d.hasNameLocked(win) {
		return 0, errNoActiveWindow
	}
	return win, nil
}

func (d *Detector) topLevelLocked(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(d.conn, win).Reply()
		if err != nil || reply.Parent == d.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (d *Detector) propertyLocked(win xproto.Window, atom, atomType xproto.Atom, length uint32) []byte {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, atomType, 0, length).Reply()
	if err != nil || reply == nil {
		return nil
	}
	return reply.Value
}

func (d *Detector) hasNameLocked(win xproto.Window) bool {
	if len(d.propertyLocked(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1)) > 0 {
		return true
	}
	return len(d.propertyLocked(win, d.atoms["WM_NAME"], xproto.AtomString, 1)) > 0
}

func (d *Detector) windowNameLocked(win xproto.Window) string {
	if data := d.propertyLocked(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 256); len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return strings.TrimRight(string(d.propertyLocked(win, d.atoms["WM_NAME"], xproto.AtomString, 256)), "\x00")
}

func (d *Detector) windowPIDLocked(win xproto.Window) uint32 {
	data := d.propertyLocked(win, d.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// parseWMClass splits the WM_CLASS property into instance and class.
func parseWMClass(data []byte) (instance, class string) {
	if len(data) == 0 {
		return "", ""
	}
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

// processName resolves pid to its command name through /proc, cached.
// PIDs are reused, but the window's class is preferred anyway so a stale
// entry only affects windows without WM_CLASS.
func (d *Detector) processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	if name, ok := d.processes.Get(pid); ok {
		return name
	}

	data, err := os.ReadFile(filepath.Join(d.procRoot, strconv.FormatUint(uint64(pid), 10), "comm"))
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(string(data))
	d.processes.Add(pid, name)
	return name
}

// GetIdleInfo reports idle time from the MIT-SCREEN-SAVER extension. A
// running screen saver counts as locked.
func (d *Detector) GetIdleInfo(ctx context.Context) (*window.IdleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connectLocked(); err != nil {
		return nil, err
	}
	if !d.hasSaver {
		return &window.IdleInfo{}, nil
	}

	reply, err := screensaver.QueryInfo(d.conn, xproto.Drawable(d.root)).Reply()
	if err != nil {
		d.resetLocked()
		return nil, fmt.Errorf("failed to query screen saver info: %w", err)
	}

	idle := int64(reply.MsSinceUserInput) / 1000
	return &window.IdleInfo{
		IsIdle:   idle > window.DefaultIdleThreshold,
		IsLocked: reply.State == screensaver.StateOn,
		IdleTime: idle,
	}, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	return nil
}
