package tray

import "testing"

func TestTray_Titles(t *testing.T) {
	if got := toggleTitle(false); got != "▶ Start Camera" {
		t.Errorf("toggleTitle(false) = %q", got)
	}
	if got := toggleTitle(true); got != "■ Stop Camera" {
		t.Errorf("toggleTitle(true) = %q", got)
	}
	if got := drumTitle("snare"); got != "Drum: snare" {
		t.Errorf("drumTitle() = %q", got)
	}
}

func TestTray_StateWithoutMenu(t *testing.T) {
	tr := New()
	if tr.IsCapturing() || tr.Drum() != "none" {
		t.Fatalf("new tray = capturing %v drum %q", tr.IsCapturing(), tr.Drum())
	}

	tr.SetCapturing(true)
	tr.SetDrum("kick")
	if !tr.IsCapturing() || tr.Drum() != "kick" {
		t.Errorf("after update = capturing %v drum %q", tr.IsCapturing(), tr.Drum())
	}

	tr.SetDrum("")
	if tr.Drum() != "none" {
		t.Errorf("empty drum = %q, want none", tr.Drum())
	}

	tr.SetDrum("tom")
	tr.SetCapturing(false)
	if tr.IsCapturing() || tr.Drum() != "none" {
		t.Errorf("after stop = capturing %v drum %q", tr.IsCapturing(), tr.Drum())
	}
}

func TestTray_ToggleRequestsOppositeState(t *testing.T) {
	tr := New()
	var requested []bool
	tr.OnToggle(func(capturing bool) { requested = append(requested, capturing) })

	tr.handleToggle()
	tr.SetCapturing(true)
	tr.handleToggle()

	if len(requested) != 2 || requested[0] != true || requested[1] != false {
		t.Errorf("requested = %v, want [true false]", requested)
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New()
	var switched, opened int
	tr.OnSwitchCamera(func() { switched++ })
	tr.OnOpenUI(func() { opened++ })

	tr.call(func() func() { return tr.onSwitch })
	tr.call(func() func() { return tr.onOpenUI })
	tr.call(func() func() { return tr.onQuit })

	if switched != 1 || opened != 1 {
		t.Errorf("switched=%d opened=%d, want 1 and 1", switched, opened)
	}
}
