package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

type sampleDecoder func(b []byte) float32

func decoderFor(f SampleFormat) (sampleDecoder, error) {
	switch f {
	case FormatU8:
		return func(b []byte) float32 { return (float32(b[0]) - 128) / 128 }, nil
	case FormatS16:
		return func(b []byte) float32 {
			return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case FormatS24:
		return func(b []byte) float32 {
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			return float32(v) / 8388608
		}, nil
	case FormatS32:
		return func(b []byte) float32 {
			return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
		}, nil
	case FormatF32:
		return func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}, nil
	}
	return nil, fmt.Errorf("unsupported sample format %s", f)
}

// NewMonoCallback builds a DataCallback for the given stream format that
// averages each interleaved frame down to one float32 sample and hands the
// chunk to fn. The decoder is chosen once, here, not per chunk.
func NewMonoCallback(f Format, fn func(samples []float32)) (DataCallback, error) {
	decode, err := decoderFor(f.SampleFormat)
	if err != nil {
		return nil, err
	}
	if f.Channels == 0 {
		return nil, fmt.Errorf("format %s has no channels", f)
	}
	width := f.SampleFormat.BytesPerSample()
	channels := int(f.Channels)
	frameSize := width * channels

	return func(data []byte, _ uint32) {
		frames := len(data) / frameSize
		if frames == 0 {
			return
		}
		out := make([]float32, frames)
		for i := 0; i < frames; i++ {
			base := i * frameSize
			var sum float32
			for ch := 0; ch < channels; ch++ {
				off := base + ch*width
				sum += decode(data[off : off+width])
			}
			out[i] = sum / float32(channels)
		}
		fn(out)
	}, nil
}

// ToMono converts a whole buffer in one call.
func ToMono(data []byte, f Format) ([]float32, error) {
	var out []float32
	cb, err := NewMonoCallback(f, func(s []float32) { out = s })
	if err != nil {
		return nil, err
	}
	cb(data, 0)
	return out, nil
}

// Float32Bytes encodes samples as little-endian f32, the layout FormatF32
// callbacks receive.
func Float32Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}
