package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"murmur/beep"
	"murmur/log"
)

const appName = "murmur"

type Kind int

const (
	SttRecording Kind = iota
	SttProcessing
	SttComplete
	SttNoSpeech
	SttError
)

func (k Kind) String() string {
	switch k {
	case SttRecording:
		return "recording"
	case SttProcessing:
		return "processing"
	case SttComplete:
		return "complete"
	case SttNoSpeech:
		return "no_speech"
	case SttError:
		return "error"
	}
	return "unknown"
}

// Event is one on-screen status message. Text is the transcript for
// SttComplete and the reason for SttError.
type Event struct {
	Kind Kind
	Text string
}

func Recording() Event           { return Event{Kind: SttRecording} }
func Processing() Event          { return Event{Kind: SttProcessing} }
func Complete(text string) Event { return Event{Kind: SttComplete, Text: text} }
func NoSpeech() Event            { return Event{Kind: SttNoSpeech} }
func Error(msg string) Event     { return Event{Kind: SttError, Text: msg} }

// Sink receives status events. Send must return promptly.
type Sink interface {
	Send(ev Event)
}

// Func adapts a function to Sink.
type Func func(ev Event)

func (f Func) Send(ev Event) { f(ev) }

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Send(ev Event) {
	for _, s := range m {
		s.Send(ev)
	}
}

// Discard drops everything.
var Discard Sink = Func(func(Event) {})

type DesktopOptions struct {
	Notifications bool
	Sounds        bool
}

// Desktop shows system notifications and plays audible cues.
type Desktop struct {
	opts   DesktopOptions
	notify func(title, message string) error
}

func NewDesktop(opts DesktopOptions) *Desktop {
	return &Desktop{
		opts: opts,
		notify: func(title, message string) error {
			return beeep.Notify(appName+": "+title, message, "")
		},
	}
}

func (d *Desktop) Send(ev Event) {
	if d.opts.Sounds {
		switch ev.Kind {
		case SttRecording:
			beep.PlayStart()
		case SttComplete:
			beep.PlayEnd()
		case SttNoSpeech:
			beep.PlayNoSpeech()
		case SttError:
			beep.PlayError()
		}
	}
	if !d.opts.Notifications {
		return
	}
	title, message := render(ev)
	go func() {
		if err := d.notify(title, message); err != nil {
			log.Warnf("notification failed: %v", err)
		}
	}()
}

const maxPreview = 100

func render(ev Event) (title, message string) {
	switch ev.Kind {
	case SttRecording:
		return "Recording", "Listening. Toggle again or pause to finish."
	case SttProcessing:
		return "Processing", "Transcribing speech"
	case SttComplete:
		text := []rune(ev.Text)
		if len(text) > maxPreview {
			return "Copied to clipboard", string(text[:maxPreview]) + "..."
		}
		return "Copied to clipboard", ev.Text
	case SttNoSpeech:
		return "No speech detected", "Nothing was copied"
	case SttError:
		return "Error", ev.Text
	}
	return "", ev.Text
}

// Collector keeps every event it is sent. Tests use it as a sink.
type Collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func NewCollector() *Collector {
	return &Collector{ch: make(chan Event, 64)}
}

func (c *Collector) Send(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.ch <- ev:
	default:
	}
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// C delivers events as they arrive.
func (c *Collector) C() <-chan Event { return c.ch }
