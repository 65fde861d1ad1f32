package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/audio"
	"murmur/history"
	"murmur/log"
	"murmur/notify"
	"murmur/recorder"
	"murmur/transcriber"
)

var (
	ErrModelNotReady    = errors.New("speech model is not loaded yet")
	ErrAlreadyRecording = errors.New("already recording")
	ErrBusy             = errors.New("still processing the previous recording")
	ErrClosed           = errors.New("service closed")
)

type Transcriber interface {
	IsLoaded() bool
	Transcribe(samples []float32) (transcriber.Result, error)
}

type Clipboard interface {
	SetContentSilent(text string) bool
}

// Recorder is one capture session. recorder.Recorder satisfies it.
type Recorder interface {
	Start()
	Stop()
	Shutdown()
}

// RecorderFactory opens a capture session that reports on events.
type RecorderFactory func(sessionID string, events chan<- recorder.Event) (Recorder, error)

type History interface {
	Add(ctx context.Context, e history.Entry) error
}

type Dumper interface {
	Dump(sessionID string, samples []float32) (string, error)
}

type Deps struct {
	Transcriber Transcriber
	Clipboard   Clipboard
	Notifier    notify.Sink
	NewRecorder RecorderFactory
	History     History // optional
	Dumper      Dumper  // optional
	EngineName  string
}

// Service runs dictation sessions: one recording at a time, each handed to
// its own goroutine for transcription once capture ends.
type Service struct {
	deps Deps

	mu       sync.Mutex
	state    State
	active   Recorder
	session  string
	starting bool
	closed   bool

	bus *broadcaster[State]
	wg  sync.WaitGroup
}

func New(deps Deps) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	return &Service{deps: deps, bus: newBroadcaster[State]()}
}

// setState must be called with s.mu held.
func (s *Service) setState(st State) {
	s.state = st
	s.bus.publish(st)
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID names the recording in progress, or "" when none is.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Subscribe returns a channel of state changes and a function to stop
// receiving them. The channel is closed on unsubscribe or Close.
func (s *Service) Subscribe() (<-chan State, func()) {
	return s.bus.subscribe()
}

// Toggle starts a recording from Idle or Error and stops one in progress.
// While processing it does nothing.
func (s *Service) Toggle() error {
	s.mu.Lock()
	status, starting := s.state.Status, s.starting
	s.mu.Unlock()

	if starting {
		return nil
	}
	switch status {
	case Recording:
		s.Stop()
		return nil
	case Processing:
		return nil
	default:
		return s.Start()
	}
}

func (s *Service) Start() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.starting || s.state.Status == Recording:
		s.mu.Unlock()
		return ErrAlreadyRecording
	case s.state.Status == Processing:
		s.mu.Unlock()
		return ErrBusy
	}
	s.starting = true
	s.mu.Unlock()

	if !s.deps.Transcriber.IsLoaded() {
		s.abortStart()
		s.deps.Notifier.Send(notify.Error("speech model is still loading"))
		return ErrModelNotReady
	}

	id := uuid.NewString()
	events := make(chan recorder.Event, 1)
	rec, err := s.deps.NewRecorder(id, events)
	if err != nil {
		s.abortStart()
		log.Errorf("start recording: %v", err)
		s.deps.Notifier.Send(notify.Error(err.Error()))
		return fmt.Errorf("start recording: %w", err)
	}
	rec.Start()

	s.mu.Lock()
	s.starting = false
	if s.closed {
		s.mu.Unlock()
		rec.Shutdown()
		return ErrClosed
	}
	s.active = rec
	s.session = id
	s.setState(State{Status: Recording})
	s.wg.Add(1)
	s.mu.Unlock()

	s.deps.Notifier.Send(notify.Recording())
	go s.handle(id, rec, events)
	return nil
}

func (s *Service) abortStart() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

// Stop asks the active recorder to finish. The state moves on only when
// the finalized audio arrives.
func (s *Service) Stop() {
	s.mu.Lock()
	rec := s.active
	s.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// Close shuts down any active recording, waits for in-flight sessions to
// finish and closes all subscriptions.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rec := s.active
	s.mu.Unlock()

	if rec != nil {
		rec.Shutdown()
	}
	s.wg.Wait()
	s.bus.close()
}

func (s *Service) handle(id string, rec Recorder, events <-chan recorder.Event) {
	defer s.wg.Done()

	ev, ok := <-events

	s.mu.Lock()
	if s.active == rec {
		s.active = nil
		s.session = ""
	}
	if !ok {
		s.setState(State{Status: Idle})
		s.mu.Unlock()
		return
	}
	s.setState(State{Status: Processing})
	s.mu.Unlock()

	s.deps.Notifier.Send(notify.Processing())
	s.dump(id, ev.Samples)

	if !s.deps.Transcriber.IsLoaded() {
		s.fail(transcriber.ErrModelNotLoaded.Error())
		return
	}

	res, err := s.deps.Transcriber.Transcribe(ev.Samples)
	if err != nil {
		log.Errorf("transcription failed: %v", err)
		s.fail(err.Error())
		return
	}

	audioS := float64(len(ev.Samples)) / audio.TargetSampleRate
	log.Transcription(log.Metrics{
		SessionID:    id,
		Engine:       s.deps.EngineName,
		AudioLengthS: audioS,
		Samples:      len(ev.Samples),
		InferTimeMs:  float64(res.Infer.Microseconds()) / 1000,
		Segments:     len(res.Segments),
		Chars:        len(res.Text),
	})

	if res.Text == "" {
		s.mu.Lock()
		s.setState(State{Status: Idle})
		s.mu.Unlock()
		s.deps.Notifier.Send(notify.NoSpeech())
		return
	}

	if !s.deps.Clipboard.SetContentSilent(res.Text) {
		log.Warn("transcript not copied: clipboard unavailable")
	}
	log.TranscriptionText(res.Text)
	s.record(id, res, audioS)

	s.mu.Lock()
	s.setState(State{Status: Idle})
	s.mu.Unlock()
	s.deps.Notifier.Send(notify.Complete(res.Text))
}

func (s *Service) fail(msg string) {
	s.mu.Lock()
	s.setState(State{Status: Error, Message: msg})
	s.mu.Unlock()
	s.deps.Notifier.Send(notify.Error(msg))
}

func (s *Service) dump(id string, samples []float32) {
	if s.deps.Dumper == nil || len(samples) == 0 {
		return
	}
	path, err := s.deps.Dumper.Dump(id, samples)
	if err != nil {
		log.Warnf("session dump failed: %v", err)
		return
	}
	log.Infof("session audio saved to %s", path)
}

func (s *Service) record(id string, res transcriber.Result, audioS float64) {
	if s.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.deps.History.Add(ctx, history.Entry{
		SessionID:    id,
		Text:         res.Text,
		Engine:       s.deps.EngineName,
		AudioSeconds: audioS,
		InferMs:      float64(res.Infer.Microseconds()) / 1000,
	})
	if err != nil {
		log.Warnf("history: %v", err)
	}
}
