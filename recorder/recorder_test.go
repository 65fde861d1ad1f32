package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"murmur/audio"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tone(n int, amp float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return s
}

func newTestRecorder(t *testing.T, f audio.Format, clock *fakeClock) (*Recorder, *audio.FakeCapture, chan Event) {
	t.Helper()
	actx := audio.NewFakeContext(f, nil, false)
	events := make(chan Event, 1)
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	if clock != nil {
		opts.Clock = clock.Now
	}
	r, err := New(actx, events, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		r.Shutdown()
		<-r.Done()
	})
	return r, actx.Captures()[0], events
}

func waitRecording(t *testing.T, r *Recorder, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for r.Recording() != want {
		select {
		case <-deadline:
			t.Fatalf("Recording() never became %v", want)
		case <-time.After(time.Millisecond):
		}
	}
}

func recvEvent(t *testing.T, events <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-events:
		return ev, ok
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}, false
}

func countAbove(samples []float32, threshold float32) int {
	n := 0
	for _, s := range samples {
		if s > threshold || s < -threshold {
			n++
		}
	}
	return n
}

func TestManualStop(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, nil)

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(tone(1600, 0.5))
	r.Stop()

	ev, ok := recvEvent(t, events)
	if !ok {
		t.Fatal("events closed without an event")
	}
	if ev.Kind != ManualStopped {
		t.Errorf("Kind = %v, want manual", ev.Kind)
	}
	if got := countAbove(ev.Samples, 0.4); got != 1600 {
		t.Errorf("loud samples = %d, want 1600", got)
	}
	if len(ev.Samples) > 1600+2*DefaultPadding {
		t.Errorf("trimmed length %d exceeds speech plus padding", len(ev.Samples))
	}
	if ev.RawSamples < len(ev.Samples) {
		t.Errorf("RawSamples %d < trimmed %d", ev.RawSamples, len(ev.Samples))
	}

	if _, ok := <-events; ok {
		t.Error("expected events channel closed after the session event")
	}
	<-r.Done()
	if !fc.Closed() {
		t.Error("capture not released")
	}
	if r.Recording() {
		t.Error("still recording after stop")
	}
}

func TestManualStopSilenceOnly(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatS16, Channels: 2, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, nil)

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(make([]float32, 4000))
	r.Stop()

	ev, ok := recvEvent(t, events)
	if !ok {
		t.Fatal("events closed without an event")
	}
	if len(ev.Samples) != 0 {
		t.Errorf("silent session trimmed to %d samples, want 0", len(ev.Samples))
	}
}

func TestSilenceAutoStop(t *testing.T) {
	clock := newFakeClock()
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, clock)

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(tone(800, 0.3))

	// Silence keeps arriving from the fake device; once the clock passes
	// the timeout the next chunk ends the session.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-events:
		t.Fatal("stopped before the silence timeout")
	default:
	}
	clock.Advance(DefaultSilenceTimeout + time.Millisecond)

	ev, ok := recvEvent(t, events)
	if !ok {
		t.Fatal("events closed without an event")
	}
	if ev.Kind != AutoStopped {
		t.Errorf("Kind = %v, want auto", ev.Kind)
	}
	if got := countAbove(ev.Samples, 0.2); got != 800 {
		t.Errorf("loud samples = %d, want 800", got)
	}
}

func TestNoAutoStopWithEmptyBuffer(t *testing.T) {
	e := newEndpointer(DefaultThreshold, DefaultSilenceTimeout)
	t0 := time.Now()
	e.reset(t0)
	if e.observe(make([]float32, 10), t0.Add(5*time.Second), 0) {
		t.Error("auto-stopped with an empty buffer")
	}
	if !e.observe(make([]float32, 10), t0.Add(5*time.Second), 10) {
		t.Error("expected auto-stop after silence with buffered audio")
	}
}

func TestEndpointerSpeechRefreshes(t *testing.T) {
	e := newEndpointer(DefaultThreshold, DefaultSilenceTimeout)
	t0 := time.Now()
	e.reset(t0)

	if e.observe([]float32{0.5}, t0.Add(1900*time.Millisecond), 1) {
		t.Fatal("stopped during speech")
	}
	if e.observe([]float32{0}, t0.Add(3900*time.Millisecond), 1) {
		t.Fatal("stopped at exactly the timeout")
	}
	if !e.observe([]float32{0}, t0.Add(3901*time.Millisecond), 1) {
		t.Fatal("expected stop past the timeout")
	}
}

func TestEndpointerThresholdExclusive(t *testing.T) {
	e := newEndpointer(0.01, time.Second)
	t0 := time.Now()
	e.reset(t0)
	e.observe([]float32{0.01}, t0.Add(500*time.Millisecond), 1)
	if !e.lastSpeech.Equal(t0) {
		t.Error("peak equal to threshold counted as speech")
	}
}

func TestShutdownWithoutEvent(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, nil)

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(tone(1600, 0.5))
	r.Shutdown()

	if _, ok := recvEvent(t, events); ok {
		t.Error("shutdown produced an event")
	}
	<-r.Done()
	if !fc.Closed() {
		t.Error("capture not released on shutdown")
	}
}

func TestStopBeforeStartIgnored(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, nil)

	r.Stop()
	r.Stop()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-events:
		t.Fatal("stop while idle produced an event")
	default:
	}

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(tone(160, 0.5))
	r.Stop()
	if ev, ok := recvEvent(t, events); !ok || ev.Kind != ManualStopped {
		t.Errorf("got %+v ok=%v, want manual stop", ev.Kind, ok)
	}
}

func TestSamplesBeforeStartDiscarded(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}
	r, fc, events := newTestRecorder(t, f, nil)

	fc.Feed(tone(1600, 0.9))
	time.Sleep(20 * time.Millisecond)

	r.Start()
	waitRecording(t, r, true)
	fc.Feed(tone(320, 0.5))
	r.Stop()

	ev, _ := recvEvent(t, events)
	if got := countAbove(ev.Samples, 0.8); got != 0 {
		t.Errorf("%d pre-start samples leaked into the session", got)
	}
	if got := countAbove(ev.Samples, 0.4); got != 320 {
		t.Errorf("loud samples = %d, want 320", got)
	}
}

func TestResamplesOnFinalize(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatS16, Channels: 2, SampleRate: 48000}
	r, fc, events := newTestRecorder(t, f, nil)
	if r.Format().SampleRate != 48000 {
		t.Fatalf("format = %v, want 48 kHz fallback", r.Format())
	}

	r.Start()
	waitRecording(t, r, true)
	loud := make([]float32, 4800)
	for i := range loud {
		loud[i] = 0.5
	}
	fc.Feed(loud)
	r.Stop()

	ev, _ := recvEvent(t, events)
	got := countAbove(ev.Samples, 0.4)
	if got < 1590 || got > 1610 {
		t.Errorf("loud samples at 16 kHz = %d, want ~1600", got)
	}
}

func TestNegotiatesTargetRate(t *testing.T) {
	actx := audio.NewFakeContext(audio.Format{SampleFormat: audio.FormatF32, Channels: 2, SampleRate: 48000}, nil, false)
	actx.Ranges = []audio.FormatRange{
		{SampleFormat: audio.FormatS24, Channels: 2, MinSampleRate: 8000, MaxSampleRate: 96000},
	}
	events := make(chan Event, 1)
	r, err := New(actx, events, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { r.Shutdown(); <-r.Done() }()

	want := audio.Format{SampleFormat: audio.FormatS24, Channels: 2, SampleRate: 16000}
	if r.Format() != want {
		t.Errorf("Format = %v, want %v", r.Format(), want)
	}
}

func TestNewErrors(t *testing.T) {
	f := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: 16000}

	actx := audio.NewFakeContext(f, nil, false)
	opts := DefaultOptions()
	opts.Device = "missing"
	if _, err := New(actx, make(chan Event, 1), opts); !errors.Is(err, audio.ErrNoDevice) {
		t.Errorf("unknown device: err = %v, want ErrNoDevice", err)
	}

	boom := errors.New("device busy")
	actx = audio.NewFakeContext(f, nil, false)
	actx.FailOpen = boom
	if _, err := New(actx, make(chan Event, 1), DefaultOptions()); !errors.Is(err, boom) {
		t.Errorf("open failure: err = %v, want %v", err, boom)
	}
}
