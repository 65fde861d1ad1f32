package hotkey

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitStart(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.Start():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start")
	}
}

func waitStop(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.StopChan():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop")
	}
}

func TestHybridLongPress(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold, nil)

	fk.SimKeydown()
	waitStart(t, hy)

	time.Sleep(threshold + 20*time.Millisecond)
	if hy.IsToggle() {
		t.Error("expected PTT (not toggle) after long press")
	}
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridShortTap(t *testing.T) {
	fk := NewFake()
	threshold := 200 * time.Millisecond
	hy := NewHybrid(fk, threshold, nil)

	fk.SimKeydown()
	waitStart(t, hy)
	fk.SimKeyup()
	time.Sleep(10 * time.Millisecond)
	if !hy.IsToggle() {
		t.Error("expected toggle mode after short tap")
	}

	// Should NOT have stopped yet
	select {
	case <-hy.StopChan():
		t.Fatal("short tap stopped the recording")
	case <-time.After(50 * time.Millisecond):
	}

	fk.SimTap()
	waitStop(t, hy)
}

func TestHybridMultipleCycles(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold, nil)

	fk.SimKeydown()
	waitStart(t, hy)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, hy)

	fk.SimKeydown()
	waitStart(t, hy)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	fk.SimTap()
	waitStop(t, hy)

	fk.SimKeydown()
	waitStart(t, hy)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridPressAfterAutoStopStartsAgain(t *testing.T) {
	fk := NewFake()
	var active atomic.Bool
	hy := NewHybrid(fk, 200*time.Millisecond, active.Load)

	fk.SimKeydown()
	waitStart(t, hy)
	active.Store(true)
	fk.SimKeyup()
	time.Sleep(10 * time.Millisecond)

	// The session ends on silence while the hybrid waits for a second tap.
	active.Store(false)
	fk.SimKeydown()
	waitStart(t, hy)
	select {
	case <-hy.StopChan():
		t.Fatal("press after auto-stop was treated as stop")
	case <-time.After(20 * time.Millisecond):
	}
	fk.SimKeyup()
}
