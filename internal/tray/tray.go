// Package tray provides the system tray indicator and menu.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/tray/icons"
)

// Tray represents the system tray application.
type Tray struct {
	onPause       func()
	onResume      func()
	onRecalibrate func()
	onDashboard   func()
	onQuit        func()

	mu    sync.RWMutex
	state posture.State
	level posture.Level

	// Menu items stored for later updates
	menuStatus  *systray.MenuItem
	menuPause   *systray.MenuItem
	menuRecalib *systray.MenuItem
}

// New creates a new Tray in Setup with a gray indicator.
func New() *Tray {
	return &Tray{
		state: posture.StateSetup,
		level: posture.LevelUnknown,
	}
}

// OnPause sets the callback for the Pause menu item.
func (t *Tray) OnPause(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPause = fn
}

// OnResume sets the callback for the Resume menu item.
func (t *Tray) OnResume(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResume = fn
}

// OnRecalibrate sets the callback for the Recalibrate menu item.
func (t *Tray) OnRecalibrate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecalibrate = fn
}

// OnDashboard sets the callback for the Open Dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("PosturePilot")
	systray.SetTooltip("PosturePilot posture monitor")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Status: setting up", "Current posture")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuPause = systray.AddMenuItem("Pause", "Pause or resume monitoring")
	t.menuRecalib = systray.AddMenuItem("Recalibrate", "Capture a new baseline")
	systray.AddSeparator()
	t.mu.Unlock()

	menuDashboard := systray.AddMenuItem("Open Dashboard", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit PosturePilot")

	t.refresh()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuPause.ClickedCh:
				t.handlePauseToggle()
			case <-t.menuRecalib.ClickedCh:
				t.call(t.onRecalibrate)
			case <-menuDashboard.ClickedCh:
				t.call(t.onDashboard)
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// SetIndicator shows level as the icon color.
func (t *Tray) SetIndicator(level posture.Level) error {
	t.mu.Lock()
	t.level = level
	t.mu.Unlock()
	t.refresh()
	return nil
}

// SetState updates the menu for the session state.
func (t *Tray) SetState(state posture.State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	t.refresh()
}

// refresh applies the current state and level to the menu and icon. It is
// a no-op before the tray is ready.
func (t *Tray) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus == nil {
		return
	}

	icon, err := icons.Icon(t.level)
	if err != nil {
		log.Printf("Failed to render tray icon: %v", err)
	} else {
		systray.SetIcon(icon)
	}

	t.menuStatus.SetTitle(statusTitle(t.state, t.level))
	if t.state == posture.StatePaused {
		t.menuPause.SetTitle("Resume")
	} else {
		t.menuPause.SetTitle("Pause")
	}
	if t.state == posture.StateMonitoring || t.state == posture.StatePaused {
		t.menuPause.Enable()
	} else {
		t.menuPause.Disable()
	}
}

func statusTitle(state posture.State, level posture.Level) string {
	switch state {
	case posture.StateSetup:
		return "Status: setting up"
	case posture.StateCalibrating:
		return "Status: calibrating, sit upright"
	case posture.StatePaused:
		return "Status: paused"
	}
	switch level {
	case posture.LevelGood:
		return "Status: good posture"
	case posture.LevelWarning:
		return "Status: check your posture"
	case posture.LevelBad:
		return "Status: poor posture"
	default:
		return "Status: monitoring"
	}
}

// handlePauseToggle calls the pause or resume callback for the current state.
func (t *Tray) handlePauseToggle() {
	t.mu.RLock()
	var callback func()
	switch t.state {
	case posture.StateMonitoring:
		callback = t.onPause
	case posture.StatePaused:
		callback = t.onResume
	}
	t.mu.RUnlock()

	t.call(callback)
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// call runs fn outside the lock.
func (t *Tray) call(fn func()) {
	if fn != nil {
		fn()
	}
}
