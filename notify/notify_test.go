package notify

import (
	"strings"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	tests := []struct {
		ev        Event
		wantTitle string
		wantMsg   string
	}{
		{Recording(), "Recording", "Listening"},
		{Processing(), "Processing", "Transcribing"},
		{Complete("hello"), "Copied to clipboard", "hello"},
		{NoSpeech(), "No speech detected", "Nothing"},
		{Error("model missing"), "Error", "model missing"},
	}
	for _, tt := range tests {
		t.Run(tt.ev.Kind.String(), func(t *testing.T) {
			title, msg := render(tt.ev)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestRenderTruncatesLongTranscript(t *testing.T) {
	long := strings.Repeat("é", 250)
	_, msg := render(Complete(long))
	if got := len([]rune(msg)); got != maxPreview+3 {
		t.Errorf("preview length = %d runes, want %d", got, maxPreview+3)
	}
}

func TestDesktopSendsNotification(t *testing.T) {
	d := NewDesktop(DesktopOptions{Notifications: true})
	got := make(chan string, 1)
	d.notify = func(title, message string) error {
		got <- title + "|" + message
		return nil
	}
	d.Send(Complete("hi"))
	select {
	case s := <-got:
		if s != "Copied to clipboard|hi" {
			t.Errorf("notified %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never sent")
	}
}

func TestDesktopDisabled(t *testing.T) {
	d := NewDesktop(DesktopOptions{})
	d.notify = func(string, string) error {
		t.Error("notification sent while disabled")
		return nil
	}
	d.Send(Recording())
	time.Sleep(10 * time.Millisecond)
}

func TestMultiAndCollector(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	Multi{a, b, Discard}.Send(NoSpeech())
	for _, c := range []*Collector{a, b} {
		evs := c.Events()
		if len(evs) != 1 || evs[0].Kind != SttNoSpeech {
			t.Errorf("collector got %+v", evs)
		}
	}
}
