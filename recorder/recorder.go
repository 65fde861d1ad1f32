package recorder

import (
	"fmt"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/log"
)

type Command int

const (
	CmdStart Command = iota
	CmdStop
	CmdShutdown
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdShutdown:
		return "shutdown"
	}
	return "unknown"
}

type EventKind int

const (
	AutoStopped EventKind = iota
	ManualStopped
)

func (k EventKind) String() string {
	if k == AutoStopped {
		return "auto"
	}
	return "manual"
}

// Event carries the finalized session audio: mono, 16 kHz, trimmed.
type Event struct {
	Kind    EventKind
	Samples []float32
	// RawSamples is the buffer length at 16 kHz before trimming.
	RawSamples int
}

const (
	DefaultThreshold      = 0.01
	DefaultSilenceTimeout = 2000 * time.Millisecond
	DefaultPadding        = 3200
	DefaultPollInterval   = 50 * time.Millisecond

	commandBuffer = 16
	chunkBuffer   = 256
)

type Options struct {
	Device         string // empty selects the system default input
	Threshold      float32
	SilenceTimeout time.Duration
	Padding        int
	PollInterval   time.Duration
	SessionID      string
	Clock          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = DefaultSilenceTimeout
	}
	if o.Padding < 0 {
		o.Padding = DefaultPadding
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// DefaultOptions returns the stock endpointing parameters.
func DefaultOptions() Options {
	return Options{
		Threshold:      DefaultThreshold,
		SilenceTimeout: DefaultSilenceTimeout,
		Padding:        DefaultPadding,
		PollInterval:   DefaultPollInterval,
	}.withDefaults()
}

type chunk struct {
	samples []float32
	at      time.Time
}

// Recorder drives one capture session. Its goroutine owns the stream, the
// sample buffer and the endpointing state; callers only send commands.
// Exactly one Event is sent on the events channel per session, after
// which the channel is closed. A Shutdown closes it without an event.
type Recorder struct {
	opts    Options
	capture audio.CaptureDevice
	format  audio.Format
	cmds    chan Command
	chunks  chan chunk
	done    chan struct{}

	recording atomic.Bool
	dropped   atomic.Int64
}

// New opens the capture stream and spawns the session goroutine. The
// stream runs from here on; samples are only kept after Start.
func New(actx audio.Context, events chan<- Event, opts Options) (*Recorder, error) {
	opts = opts.withDefaults()

	device, err := audio.FindDevice(actx, opts.Device)
	if err != nil {
		return nil, err
	}
	ranges, def, err := actx.Formats(device)
	if err != nil {
		return nil, fmt.Errorf("querying formats: %w", err)
	}
	format := audio.Negotiate(ranges, def)

	capture, err := actx.NewCapture(device, format)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	// Backends may settle on a different format than requested.
	format = capture.Format()

	r := &Recorder{
		opts:    opts,
		capture: capture,
		format:  format,
		cmds:    make(chan Command, commandBuffer),
		chunks:  make(chan chunk, chunkBuffer),
		done:    make(chan struct{}),
	}

	cb, err := audio.NewMonoCallback(format, r.onSamples)
	if err != nil {
		capture.Close()
		return nil, err
	}
	capture.SetCallback(cb)

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, fmt.Errorf("starting capture: %w", err)
	}

	log.SessionStart(opts.SessionID, capture.DeviceName(), format.String())
	go r.run(events)
	return r, nil
}

// onSamples runs on the audio thread and must not block.
func (r *Recorder) onSamples(samples []float32) {
	c := chunk{samples: samples, at: r.opts.Clock()}
	select {
	case r.chunks <- c:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warnf("recorder: dropped %d audio chunks", n)
		}
	}
}

func (r *Recorder) Start()    { r.send(CmdStart) }
func (r *Recorder) Stop()     { r.send(CmdStop) }
func (r *Recorder) Shutdown() { r.send(CmdShutdown) }

func (r *Recorder) send(cmd Command) {
	select {
	case <-r.done:
	case r.cmds <- cmd:
	default:
		log.Warnf("recorder: command queue full, dropping %s", cmd)
	}
}

func (r *Recorder) Recording() bool     { return r.recording.Load() }
func (r *Recorder) Format() audio.Format { return r.format }
func (r *Recorder) Dropped() int64       { return r.dropped.Load() }

// Done is closed once the session goroutine has released the stream.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) run(events chan<- Event) {
	defer close(r.done)
	defer close(events)
	defer r.release()

	ep := newEndpointer(r.opts.Threshold, r.opts.SilenceTimeout)
	var buf []float32

	poll := time.NewTimer(r.opts.PollInterval)
	defer poll.Stop()

	for {
		select {
		case cmd := <-r.cmds:
			switch cmd {
			case CmdStart:
				if !r.recording.Load() {
					buf = buf[:0]
					ep.reset(r.opts.Clock())
					r.recording.Store(true)
				}
			case CmdStop:
				if r.recording.Load() {
					buf = r.drainInto(buf)
					events <- r.finalize(ManualStopped, buf)
					return
				}
			case CmdShutdown:
				r.recording.Store(false)
				log.SessionEnd(r.opts.SessionID, "shutdown", len(buf), 0, r.dropped.Load())
				return
			}
		default:
		}

		if !poll.Stop() {
			select {
			case <-poll.C:
			default:
			}
		}
		poll.Reset(r.opts.PollInterval)

		select {
		case c := <-r.chunks:
			if !r.recording.Load() {
				continue
			}
			if ep.observe(c.samples, c.at, len(buf)) {
				events <- r.finalize(AutoStopped, buf)
				return
			}
			buf = append(buf, c.samples...)
		case <-poll.C:
		}
	}
}

// drainInto appends chunks that were already captured when Stop arrived.
func (r *Recorder) drainInto(buf []float32) []float32 {
	for {
		select {
		case c := <-r.chunks:
			buf = append(buf, c.samples...)
		default:
			return buf
		}
	}
}

func (r *Recorder) finalize(kind EventKind, buf []float32) Event {
	r.recording.Store(false)
	resampled := audio.Resample(buf, r.format.SampleRate, audio.TargetSampleRate)
	trimmed := audio.Trim(resampled, r.opts.Threshold, r.opts.Padding)
	out := make([]float32, len(trimmed))
	copy(out, trimmed)
	log.SessionEnd(r.opts.SessionID, kind.String(), len(resampled), len(out), r.dropped.Load())
	return Event{Kind: kind, Samples: out, RawSamples: len(resampled)}
}

func (r *Recorder) release() {
	r.capture.ClearCallback()
	r.capture.Stop()
	r.capture.Close()
}
