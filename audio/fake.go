package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeFrameSize = 1024

// FakeContext stands in for a real backend. Captures it creates replay
// Samples (mono, at Format.SampleRate) and then feed silence until stopped.
type FakeContext struct {
	Format   Format
	Samples  []float32
	Realtime bool
	// Ranges overrides what Formats advertises. Nil advertises Format.
	Ranges []FormatRange
	// FailOpen makes NewCapture return this error.
	FailOpen error

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(f Format, samples []float32, realtime bool) *FakeContext {
	return &FakeContext{Format: f, Samples: samples, Realtime: realtime}
}

// NewFakeContextFromWAV loads a WAV file and replays it at its own rate.
func NewFakeContextFromWAV(path string, realtime bool) (*FakeContext, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := float32(int64(1) << (uint(dec.BitDepth) - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	f := Format{SampleFormat: FormatF32, Channels: 1, SampleRate: uint32(buf.Format.SampleRate)}
	return NewFakeContext(f, samples, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake", Default: true}}, nil
}

func (f *FakeContext) Formats(_ *DeviceInfo) ([]FormatRange, Format, error) {
	if f.Ranges != nil {
		return f.Ranges, f.Format, nil
	}
	r := FormatRange{
		SampleFormat:  f.Format.SampleFormat,
		Channels:      f.Format.Channels,
		MinSampleRate: f.Format.SampleRate,
		MaxSampleRate: f.Format.SampleRate,
	}
	return []FormatRange{r}, f.Format, nil
}

func (f *FakeContext) NewCapture(device *DeviceInfo, format Format) (CaptureDevice, error) {
	if f.FailOpen != nil {
		return nil, f.FailOpen
	}
	c := &FakeCapture{
		samples:   Resample(f.Samples, f.Format.SampleRate, format.SampleRate),
		format:    format,
		realtime:  f.Realtime,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) Close() {}

// Captures returns every capture opened so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	samples   []float32
	format    Format
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone closes once the scripted samples have all been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Format() Format     { return f.format }
func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Feed pushes mono samples through the callback as if the device produced
// them, encoded in the capture's format.
func (f *FakeCapture) Feed(samples []float32) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil || len(samples) == 0 {
		return
	}
	cb(EncodeFrames(samples, f.format), uint32(len(samples)))
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stop, done := f.stopCh, f.feedDone
	f.mu.Unlock()

	interval := time.Millisecond
	if f.realtime && f.format.SampleRate > 0 {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(f.format.SampleRate)
	}

	go func() {
		defer close(done)
		pos := 0
		silence := make([]float32, fakeFrameSize)
		finished := len(f.samples) == 0
		if finished {
			close(f.audioDone)
		}
		for {
			select {
			case <-stop:
				return
			default:
			}
			if pos < len(f.samples) {
				end := min(pos+fakeFrameSize, len(f.samples))
				f.Feed(f.samples[pos:end])
				pos = end
				if !f.realtime {
					continue
				}
			} else {
				if !finished {
					finished = true
					close(f.audioDone)
				}
				f.Feed(silence)
			}
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	stop, done := f.stopCh, f.feedDone
	f.mu.Unlock()
	close(stop)
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// EncodeFrames renders mono samples as interleaved frames of format f,
// copying each sample to every channel.
func EncodeFrames(samples []float32, f Format) []byte {
	width := f.SampleFormat.BytesPerSample()
	channels := int(max(f.Channels, 1))
	buf := make([]byte, len(samples)*width*channels)
	off := 0
	for _, s := range samples {
		s = max(-1, min(1, s))
		for ch := 0; ch < channels; ch++ {
			switch f.SampleFormat {
			case FormatU8:
				buf[off] = byte(int(s*127) + 128)
			case FormatS16:
				binary.LittleEndian.PutUint16(buf[off:], uint16(int16(s*32767)))
			case FormatS24:
				v := int32(s * 8388607)
				buf[off], buf[off+1], buf[off+2] = byte(v), byte(v>>8), byte(v>>16)
			case FormatS32:
				binary.LittleEndian.PutUint32(buf[off:], uint32(int32(float64(s)*2147483647)))
			case FormatF32:
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(s))
			}
			off += width
		}
	}
	return buf
}
