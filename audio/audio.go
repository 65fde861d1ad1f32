package audio

import (
	"errors"
	"fmt"
	"strings"
)

// TargetSampleRate is the rate the recognizer expects.
const TargetSampleRate = 16000

var ErrNoDevice = errors.New("no capture device available")

type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	}
	return 0
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	}
	return "unknown"
}

// Format is a concrete stream configuration.
type Format struct {
	SampleFormat SampleFormat
	Channels     uint32
	SampleRate   uint32
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dch/%dHz", f.SampleFormat, f.Channels, f.SampleRate)
}

func (f Format) FrameSize() int {
	return f.SampleFormat.BytesPerSample() * int(f.Channels)
}

// FormatRange is one configuration a device advertises.
type FormatRange struct {
	SampleFormat  SampleFormat
	Channels      uint32
	MinSampleRate uint32
	MaxSampleRate uint32
}

func (r FormatRange) Contains(rate uint32) bool {
	return r.MinSampleRate <= rate && rate <= r.MaxSampleRate
}

// Negotiate picks the first advertised range that can run at 16 kHz and
// falls back to the device default otherwise.
func Negotiate(ranges []FormatRange, fallback Format) Format {
	for _, r := range ranges {
		if r.SampleFormat.BytesPerSample() == 0 || r.Channels == 0 {
			continue
		}
		if r.Contains(TargetSampleRate) {
			return Format{SampleFormat: r.SampleFormat, Channels: r.Channels, SampleRate: TargetSampleRate}
		}
	}
	return fallback
}

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether capture goes over a
// headset profile (8 or 16 kHz, noticeably worse recognition).
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives interleaved frames in the stream's native format.
type DataCallback func(data []byte, frameCount uint32)

type DeviceInfo struct {
	ID      string // opaque platform-specific identifier
	Name    string
	Default bool
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	// Formats reports what the device supports and what it runs at by default.
	// A nil device means the system default input.
	Formats(device *DeviceInfo) ([]FormatRange, Format, error)
	NewCapture(device *DeviceInfo, format Format) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	Format() Format
	DeviceName() string
}

// FindDevice returns the device with the given name, or nil for "".
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}
