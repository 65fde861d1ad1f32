package stt

import (
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/notify"
	"murmur/recorder"
	"murmur/transcriber"
)

// liveFactory opens real recorders on a fake audio backend and remembers
// them so tests can feed audio once recording has begun.
type liveFactory struct {
	actx *audio.FakeContext
	opts recorder.Options

	mu   sync.Mutex
	recs []*recorder.Recorder
}

func (f *liveFactory) New(id string, events chan<- recorder.Event) (Recorder, error) {
	opts := f.opts
	opts.SessionID = id
	r, err := recorder.New(f.actx, events, opts)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.recs = append(f.recs, r)
	f.mu.Unlock()
	return r, nil
}

func (f *liveFactory) waitRecording(t *testing.T) (*recorder.Recorder, *audio.FakeCapture) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		var r *recorder.Recorder
		if len(f.recs) > 0 {
			r = f.recs[len(f.recs)-1]
		}
		f.mu.Unlock()
		if r != nil && r.Recording() {
			caps := f.actx.Captures()
			return r, caps[len(caps)-1]
		}
		select {
		case <-deadline:
			t.Fatal("recorder never started")
		case <-time.After(time.Millisecond):
		}
	}
}

func speech(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.3
		} else {
			s[i] = -0.3
		}
	}
	return s
}

func collectStates(t *testing.T, ch <-chan State, n int) []Status {
	t.Helper()
	var got []Status
	for len(got) < n {
		select {
		case st, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed after %v", got)
			}
			got = append(got, st.Status)
		case <-time.After(10 * time.Second):
			t.Fatalf("states so far %v, want %d", got, n)
		}
	}
	return got
}

func TestManualSessionEndToEnd(t *testing.T) {
	fmt16k := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: audio.TargetSampleRate}
	factory := &liveFactory{actx: audio.NewFakeContext(fmt16k, nil, true), opts: recorder.DefaultOptions()}
	factory.opts.PollInterval = 5 * time.Millisecond

	tr := loadedTranscriber("hello world", nil)
	clip := &fakeClipboard{}
	osd := notify.NewCollector()
	svc := New(Deps{Transcriber: tr, Clipboard: clip, Notifier: osd, NewRecorder: factory.New})
	defer svc.Close()

	states, unsub := svc.Subscribe()
	defer unsub()

	if err := svc.Toggle(); err != nil {
		t.Fatal(err)
	}
	_, capture := factory.waitRecording(t)
	capture.Feed(speech(8000))
	if err := svc.Toggle(); err != nil {
		t.Fatal(err)
	}

	got := collectStates(t, states, 3)
	want := []Status{Recording, Processing, Idle}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
	if texts := clip.Texts(); len(texts) != 1 || texts[0] != "hello world" {
		t.Errorf("clipboard = %q", texts)
	}
	// The speech itself always survives trimming; padding adds at most
	// 3200 samples of context on each side.
	if n := tr.last.Load(); n < 8000 || n > 8000+2*3200 {
		t.Errorf("transcribed %d samples, want 8000..14400", n)
	}
}

func TestSilenceEndsSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs in real time")
	}
	fmt16k := audio.Format{SampleFormat: audio.FormatF32, Channels: 1, SampleRate: audio.TargetSampleRate}
	factory := &liveFactory{actx: audio.NewFakeContext(fmt16k, nil, true), opts: recorder.DefaultOptions()}

	tr := loadedTranscriber("auto", nil)
	clip := &fakeClipboard{}
	svc := New(Deps{Transcriber: tr, Clipboard: clip, NewRecorder: factory.New})
	defer svc.Close()

	begin := time.Now()
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	_, capture := factory.waitRecording(t)

	// One second of speech at the real rate, then the capture falls back
	// to silence on its own.
	block := speech(1000)
	for i := 0; i < 16; i++ {
		capture.Feed(block)
		time.Sleep(time.Second / 16)
	}

	deadline := time.After(8 * time.Second)
	for svc.State().Status == Recording {
		select {
		case <-deadline:
			t.Fatal("session never ended on silence")
		case <-time.After(10 * time.Millisecond):
		}
	}
	elapsed := time.Since(begin)
	waitState(t, svc, Idle)

	if elapsed < 2500*time.Millisecond || elapsed > 6*time.Second {
		t.Errorf("session ended after %v, want about 3s", elapsed)
	}
	if texts := clip.Texts(); len(texts) != 1 || texts[0] != "auto" {
		t.Errorf("clipboard = %q", texts)
	}
}

func TestManagerNotLoadedEndToEnd(t *testing.T) {
	mgr := transcriber.NewManager(transcriber.Config{Dir: t.TempDir()}, transcriber.NewFake("x", nil))
	factory := &recorderFactory{}
	osd := notify.NewCollector()
	svc := New(Deps{Transcriber: mgr, Clipboard: &fakeClipboard{}, Notifier: osd, NewRecorder: factory.New})
	defer svc.Close()

	if err := svc.Toggle(); err != ErrModelNotReady {
		t.Fatalf("Toggle err = %v, want ErrModelNotReady", err)
	}
	if svc.State().Status != Idle {
		t.Errorf("state = %v, want idle", svc.State())
	}
	if evs := osd.Events(); len(evs) != 1 || evs[0].Kind != notify.SttError {
		t.Errorf("OSD = %v", evs)
	}
}
