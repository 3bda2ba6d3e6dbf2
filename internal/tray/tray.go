// Package tray provides a system tray menu for drumcam.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu: a start/stop toggle, a camera switch, the
// active drum indicator and shortcuts to the web UI and quit.
type Tray struct {
	mu        sync.RWMutex
	onToggle  func(capturing bool)
	onSwitch  func()
	onOpenUI  func()
	onQuit    func()
	capturing bool
	drum      string

	menuToggle *systray.MenuItem
	menuSwitch *systray.MenuItem
	menuDrum   *systray.MenuItem
}

// New creates a Tray in the idle state.
func New() *Tray {
	return &Tray{drum: "none"}
}

// OnToggle sets the callback invoked with the requested state when Start or
// Stop is clicked.
func (t *Tray) OnToggle(fn func(capturing bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSwitchCamera sets the callback for the Switch Camera item.
func (t *Tray) OnSwitchCamera(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSwitch = fn
}

// OnOpenUI sets the callback for the Open Web UI item.
func (t *Tray) OnOpenUI(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpenUI = fn
}

// OnQuit sets the callback for the Quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("drumcam")
	systray.SetTooltip("drumcam object detection drums")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.capturing), "Start or stop the camera")
	t.menuSwitch = systray.AddMenuItem("Switch Camera", "Use the other camera")
	if !t.capturing {
		t.menuSwitch.Hide()
	}
	systray.AddSeparator()
	t.menuDrum = systray.AddMenuItem(drumTitle(t.drum), "Active drum")
	t.menuDrum.Disable()
	t.mu.Unlock()

	systray.AddSeparator()
	menuOpen := systray.AddMenuItem("Open Web UI...", "Open the video view in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit drumcam")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuSwitch.ClickedCh:
				t.call(func() func() { return t.onSwitch })
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpenUI })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle requests the opposite of the current state. The menu only
// changes once SetCapturing confirms the transition.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.capturing
	callback := t.onToggle
	t.mu.RUnlock()

	if callback != nil {
		callback(want)
	}
}

func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetCapturing updates the toggle title and the Switch Camera visibility.
func (t *Tray) SetCapturing(capturing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capturing = capturing
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(capturing))
	}
	if t.menuSwitch != nil {
		if capturing {
			t.menuSwitch.Show()
		} else {
			t.menuSwitch.Hide()
		}
	}
	if !capturing {
		t.setDrumLocked("")
	}
}

// SetDrum updates the active drum indicator. An empty name shows "none".
func (t *Tray) SetDrum(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setDrumLocked(name)
}

func (t *Tray) setDrumLocked(name string) {
	if name == "" {
		name = "none"
	}
	if name == t.drum {
		return
	}
	t.drum = name
	if t.menuDrum != nil {
		t.menuDrum.SetTitle(drumTitle(name))
	}
}

// IsCapturing returns the last state passed to SetCapturing.
func (t *Tray) IsCapturing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.capturing
}

// Drum returns the displayed drum name.
func (t *Tray) Drum() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.drum
}

func toggleTitle(capturing bool) string {
	if capturing {
		return "■ Stop Camera"
	}
	return "▶ Start Camera"
}

func drumTitle(name string) string {
	return "Drum: " + name
}
