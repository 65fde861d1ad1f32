package clipboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memBackend struct {
	mu   sync.Mutex
	text string
	err  error
}

func (m *memBackend) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *memBackend) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.text = text
	return nil
}

func TestSetContentSilent(t *testing.T) {
	b := &memBackend{}
	c := NewWithBackend(b)
	if !c.SetContentSilent("hello") {
		t.Fatal("SetContentSilent returned false")
	}
	got, _ := c.Read()
	if got != "hello" {
		t.Errorf("clipboard = %q, want hello", got)
	}
}

func TestSetContentSilentFailure(t *testing.T) {
	b := &memBackend{err: errors.New("no display")}
	c := NewWithBackend(b)
	if c.SetContentSilent("hello") {
		t.Error("SetContentSilent returned true on failure")
	}
}

func TestWatchSuppressesSilentWrites(t *testing.T) {
	b := &memBackend{text: "initial"}
	c := NewWithBackend(b)

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan string, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Watch(ctx, 2*time.Millisecond, func(s string) { seen <- s })
	}()

	time.Sleep(10 * time.Millisecond)
	c.SetContentSilent("transcript")
	time.Sleep(10 * time.Millisecond)
	c.SetContent("user copy")

	select {
	case got := <-seen:
		if got != "user copy" {
			t.Errorf("first reported change = %q, want user copy", got)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher never reported the external change")
	}

	cancel()
	<-done
	select {
	case extra := <-seen:
		t.Errorf("unexpected extra change %q", extra)
	default:
	}
}
