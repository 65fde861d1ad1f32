package transcriber

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeEngine returns canned text. It records what it was given.
type FakeEngine struct {
	Text    string
	Err     error
	LoadErr error
	Delay   time.Duration

	loads     atomic.Int32
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32

	mu       sync.Mutex
	lastPath string
	lastLoad LoadParams
	last     []float32
}

func NewFake(text string, err error) *FakeEngine {
	return &FakeEngine{Text: text, Err: err}
}

func (f *FakeEngine) Name() string { return "fake" }

func (f *FakeEngine) Load(path string, p LoadParams) error {
	f.loads.Add(1)
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.mu.Lock()
	f.lastPath = path
	f.lastLoad = p
	f.mu.Unlock()
	return nil
}

func (f *FakeEngine) Transcribe(samples []float32, _ Params) (Result, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.last = append([]float32(nil), samples...)
	f.mu.Unlock()

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return Result{}, fmt.Errorf("fake engine: %w", f.Err)
	}
	res := Result{Text: f.Text}
	if f.Text != "" {
		res.Segments = []Segment{{Text: f.Text, End: time.Duration(len(samples)) * time.Second / 16000}}
	}
	return res, nil
}

func (f *FakeEngine) Close() error { return nil }

func (f *FakeEngine) Loads() int         { return int(f.loads.Load()) }
func (f *FakeEngine) Calls() int         { return int(f.calls.Load()) }
func (f *FakeEngine) MaxConcurrent() int { return int(f.maxFlight.Load()) }

func (f *FakeEngine) LastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath
}

func (f *FakeEngine) LastLoad() LoadParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLoad
}

func (f *FakeEngine) LastSamples() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
