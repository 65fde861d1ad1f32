package encoder

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type WavEncoder struct {
	enc         *wav.Encoder
	totalFrames uint64
}

// NewWav writes a 16 kHz mono 16-bit WAV to w. The header is patched on
// Close, so w must be seekable.
func NewWav(w io.WriteSeeker) *WavEncoder {
	return &WavEncoder{enc: wav.NewEncoder(w, SampleRate, BitsPerSample, Channels, 1)}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	return e.enc.Close()
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
