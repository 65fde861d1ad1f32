//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:      hex.EncodeToString(d.ID.Pointer()[:]),
			Name:    d.Name(),
			Default: d.IsDefault != 0,
		})
	}
	return result, nil
}

// miniaudio converts in shared mode, so any of these is accepted. The
// default reflects what most hardware runs at natively.
func (m *malgoContext) Formats(_ *DeviceInfo) ([]FormatRange, Format, error) {
	ranges := []FormatRange{
		{SampleFormat: FormatF32, Channels: 1, MinSampleRate: 8000, MaxSampleRate: 384000},
		{SampleFormat: FormatS16, Channels: 1, MinSampleRate: 8000, MaxSampleRate: 384000},
	}
	return ranges, Format{SampleFormat: FormatF32, Channels: 2, SampleRate: 48000}, nil
}

func toMalgoFormat(f SampleFormat) (malgo.FormatType, error) {
	switch f {
	case FormatU8:
		return malgo.FormatU8, nil
	case FormatS16:
		return malgo.FormatS16, nil
	case FormatS24:
		return malgo.FormatS24, nil
	case FormatS32:
		return malgo.FormatS32, nil
	case FormatF32:
		return malgo.FormatF32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("unsupported sample format %s", f)
}

func fromMalgoFormat(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	}
	return FormatUnknown
}

func (m *malgoContext) NewCapture(device *DeviceInfo, format Format) (CaptureDevice, error) {
	mf, err := toMalgoFormat(format.SampleFormat)
	if err != nil {
		return nil, err
	}
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = mf
	deviceConfig.Capture.Channels = format.Channels
	deviceConfig.SampleRate = format.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	c := &malgoCapture{info: device}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			if cb := c.callback.Load(); cb != nil {
				(*cb)(data, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	c.device = dev
	// The backend may have settled on something other than what was asked.
	c.format = Format{
		SampleFormat: fromMalgoFormat(dev.CaptureFormat()),
		Channels:     dev.CaptureChannels(),
		SampleRate:   dev.SampleRate(),
	}
	return c, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	info     *DeviceInfo
	format   Format
	callback atomic.Pointer[DataCallback]
}

func (c *malgoCapture) Start() error {
	return c.device.Start()
}

func (c *malgoCapture) Stop() {
	_ = c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) Format() Format { return c.format }

func (c *malgoCapture) DeviceName() string {
	if c.info != nil {
		return c.info.Name
	}
	return "system default"
}
