package hotkey

import (
	"sync/atomic"
	"time"
)

// Hybrid turns one key combination into dictation controls: a short tap
// toggles recording on and the next press ends it, while holding the key
// past longPress records until release.
type Hybrid struct {
	startCh chan struct{}
	stopCh  chan struct{}
	toggle  atomic.Bool
	active  func() bool
}

// NewHybrid builds a Hybrid on top of hk. active reports whether a
// recording is still running; a session that ended on its own (silence)
// makes the next press start a new one instead of stopping. It may be nil.
func NewHybrid(hk Hotkey, longPress time.Duration, active func() bool) *Hybrid {
	h := &Hybrid{
		startCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
		active:  active,
	}
	go h.run(hk, longPress)
	return h
}

// Start is signaled when a recording should begin.
func (h *Hybrid) Start() <-chan struct{} { return h.startCh }

// StopChan is signaled when the recording should end, in either mode.
func (h *Hybrid) StopChan() <-chan struct{} { return h.stopCh }

// IsToggle reports whether the current press was a tap.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

type hybridState int

const (
	stIdle hybridState = iota
	stToggleRecording
)

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	state := stIdle
	for {
		<-hk.Keydown()
		if state == stToggleRecording && (h.active == nil || h.active()) {
			<-hk.Keyup()
			signal(h.stopCh)
			state = stIdle
			continue
		}
		state = h.press(hk, longPress)
	}
}

// press handles a key press that starts a recording and returns the state
// to continue in once the key is released.
func (h *Hybrid) press(hk Hotkey, longPress time.Duration) hybridState {
	h.toggle.Store(false)
	signal(h.startCh)

	timer := time.NewTimer(longPress)
	defer timer.Stop()
	select {
	case <-timer.C:
		<-hk.Keyup()
		signal(h.stopCh)
		return stIdle
	case <-hk.Keyup():
		h.toggle.Store(true)
		return stToggleRecording
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
