package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/hotkey"
	"murmur/notify"
	"murmur/stt"
)

// UI message types
type StateMsg struct {
	State stt.State
	At    time.Time
}
type TranscriptMsg struct{ Text string }
type NoSpeechMsg struct{}
type ErrorMsg struct{ Text string }
type ModelLineMsg struct{ Text string }  // model download/load progress
type DeviceLineMsg struct{ Text string } // capture device and format
type ClipboardMsg struct{ Chars int }    // clipboard changed by someone else
type tickMsg time.Time

// display receives UI messages. *tea.Program satisfies it, as does
// consoleDisplay for headless runs.
type display interface {
	Send(msg tea.Msg)
}

// notifyMsg maps service notifications onto UI messages. State changes
// arrive through Subscribe instead, so those kinds map to nil.
func notifyMsg(ev notify.Event) tea.Msg {
	switch ev.Kind {
	case notify.SttComplete:
		return TranscriptMsg{Text: ev.Text}
	case notify.SttNoSpeech:
		return NoSpeechMsg{}
	case notify.SttError:
		return ErrorMsg{Text: ev.Text}
	}
	return nil
}

// displaySink forwards service notifications to d.
func displaySink(d display) notify.Sink {
	return notify.Func(func(ev notify.Event) {
		if msg := notifyMsg(ev); msg != nil {
			d.Send(msg)
		}
	})
}

type tuiModel struct {
	state      stt.State
	recSince   time.Time
	now        time.Time
	width      int
	modelLine  string
	deviceLine string
	lastText   string
	lastErr    string
	noSpeech   bool
	count      int
	clipNote   string

	toggle func() error
}

var (
	statusRecStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusProcStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	statusIdleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	textStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBoldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	copiedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func newTUIModel(toggle func() error) tuiModel {
	return tuiModel{toggle: toggle}
}

func NewTUIProgram(toggle func() error) *tea.Program {
	return tea.NewProgram(newTUIModel(toggle), tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "enter":
			if m.toggle != nil {
				toggle := m.toggle
				return m, func() tea.Msg {
					toggle()
					return nil
				}
			}
		}

	case tickMsg:
		m.now = time.Time(msg)
		return m, tuiTick()

	case StateMsg:
		if msg.State.Status == stt.Recording && m.state.Status != stt.Recording {
			m.recSince = msg.At
		}
		m.state = msg.State
		if msg.State.Status == stt.Recording {
			m.lastErr = ""
		}

	case TranscriptMsg:
		m.count++
		m.lastText = msg.Text
		m.noSpeech = false
		m.clipNote = ""

	case NoSpeechMsg:
		m.noSpeech = true

	case ErrorMsg:
		m.lastErr = msg.Text

	case ModelLineMsg:
		m.modelLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case ClipboardMsg:
		m.clipNote = fmt.Sprintf("clipboard replaced by another app (%d chars)", msg.Chars)
	}
	return m, nil
}

func (m tuiModel) statusLine() string {
	switch m.state.Status {
	case stt.Recording:
		d := 0.0
		if !m.recSince.IsZero() && m.now.After(m.recSince) {
			d = m.now.Sub(m.recSince).Seconds()
		}
		return statusRecStyle.Render(fmt.Sprintf("● REC %.1fs", d))
	case stt.Processing:
		return statusProcStyle.Render("◐ TRANSCRIBING")
	case stt.Error:
		return statusErrStyle.Render("✕ ERROR")
	default:
		return statusIdleStyle.Render("○ STANDBY")
	}
}

func (m tuiModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	var b strings.Builder

	b.WriteString(m.statusLine() + "\n")
	if m.modelLine != "" {
		b.WriteString(infoStyle.Render(m.modelLine) + "\n")
	}
	if m.deviceLine != "" {
		b.WriteString(infoStyle.Render(m.deviceLine) + "\n")
	}
	b.WriteString("\n")

	switch {
	case m.lastErr != "":
		b.WriteString(statusErrStyle.Render("error: "+m.lastErr) + "\n")
	case m.noSpeech:
		b.WriteString(warnStyle.Render("no speech detected") + "\n")
	}

	if m.lastText != "" {
		b.WriteString(titleStyle.Render(fmt.Sprintf("Last transcription (#%d)", m.count)) + "\n\n")
		lines := wrapText(m.lastText, width-2)
		for i, line := range lines {
			b.WriteString(textStyle.Render(line))
			if i == len(lines)-1 {
				b.WriteString(" " + copiedStyle.Render("[✓ copied]"))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString(statusIdleStyle.Render("No transcriptions yet") + "\n")
	}
	if m.clipNote != "" {
		b.WriteString(infoStyle.Render(m.clipNote) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpBoldStyle.Render(hotkey.Binding) + helpStyle.Render(" or space to toggle, q to quit") + "\n")
	b.WriteString(helpStyle.Render("murmur " + version))
	return b.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// consoleDisplay prints UI messages as plain lines for headless runs.
type consoleDisplay struct {
	out io.Writer
}

func (c consoleDisplay) Send(msg tea.Msg) {
	switch msg := msg.(type) {
	case StateMsg:
		if msg.State.Message != "" {
			fmt.Fprintf(c.out, "state: %s (%s)\n", msg.State.Status, msg.State.Message)
		} else {
			fmt.Fprintf(c.out, "state: %s\n", msg.State.Status)
		}
	case TranscriptMsg:
		fmt.Fprintf(c.out, "transcript: %s\n", msg.Text)
	case NoSpeechMsg:
		fmt.Fprintln(c.out, "no speech detected")
	case ErrorMsg:
		fmt.Fprintf(c.out, "error: %s\n", msg.Text)
	case ModelLineMsg:
		fmt.Fprintf(c.out, "model: %s\n", msg.Text)
	case DeviceLineMsg:
		fmt.Fprintf(c.out, "mic: %s\n", msg.Text)
	case ClipboardMsg:
		fmt.Fprintf(c.out, "clipboard: replaced by another app (%d chars)\n", msg.Chars)
	}
}
