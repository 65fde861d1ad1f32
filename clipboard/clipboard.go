package clipboard

import (
	"context"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"murmur/log"
)

// Backend is the raw system clipboard.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemBackend struct{}

func (systemBackend) ReadAll() (string, error)   { return cb.ReadAll() }
func (systemBackend) WriteAll(text string) error { return cb.WriteAll(text) }

// Available reports whether a clipboard utility was found on this system.
func Available() bool {
	return !cb.Unsupported
}

// Clipboard writes transcripts and watches for changes made by others.
// Content written with SetContentSilent is never reported to Watch.
type Clipboard struct {
	backend Backend

	mu     sync.Mutex
	silent string
	armed  bool
}

func New() *Clipboard {
	return NewWithBackend(systemBackend{})
}

func NewWithBackend(b Backend) *Clipboard {
	return &Clipboard{backend: b}
}

// SetContentSilent replaces the clipboard and keeps the change from
// watchers. It reports whether the write succeeded.
func (c *Clipboard) SetContentSilent(text string) bool {
	c.mu.Lock()
	c.silent = text
	c.armed = true
	c.mu.Unlock()

	if err := c.backend.WriteAll(text); err != nil {
		log.Warnf("clipboard write failed: %v", err)
		c.mu.Lock()
		c.armed = false
		c.mu.Unlock()
		return false
	}
	return true
}

// SetContent replaces the clipboard; watchers see it like any other change.
func (c *Clipboard) SetContent(text string) error {
	return c.backend.WriteAll(text)
}

func (c *Clipboard) Read() (string, error) {
	return c.backend.ReadAll()
}

// Watch polls the clipboard every interval until ctx is done and calls fn
// with each new value. The value present when Watch starts is not reported.
func (c *Clipboard) Watch(ctx context.Context, interval time.Duration, fn func(text string)) {
	last, err := c.backend.ReadAll()
	if err != nil {
		log.Warnf("clipboard watch: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := c.backend.ReadAll()
		if err != nil || cur == last {
			continue
		}
		last = cur
		if c.consumeSilent(cur) {
			continue
		}
		fn(cur)
	}
}

func (c *Clipboard) consumeSilent(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed && text == c.silent {
		c.armed = false
		return true
	}
	return false
}
