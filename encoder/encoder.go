package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	TotalFrames() uint64
}

// ToPCM16 converts float samples in [-1, 1] to 16-bit PCM, clamping.
func ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		out[i] = int16(s * 32767)
	}
	return out
}

// EncodeAll feeds pcm to enc in BlockSize chunks and closes it.
func EncodeAll(enc Encoder, pcm []int16) error {
	for i := 0; i < len(pcm); i += BlockSize {
		end := min(i+BlockSize, len(pcm))
		if err := enc.EncodeBlock(pcm[i:end]); err != nil {
			return err
		}
	}
	return enc.Close()
}
