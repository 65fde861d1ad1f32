package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueNoSpeech
	CueError
)

const sampleRate = 44100

type toneSpec struct {
	freq     float64
	duration float64 // seconds per beep
	volume   float64
	decay    float64
	repeat   int     // beeps
	gap      float64 // seconds between beeps
}

var cues = map[Cue]toneSpec{
	// high pitch, short
	CueStart: {freq: 1200, duration: 0.2, volume: 0.5, decay: 60, repeat: 1},

	// medium pitch, slightly longer
	CueEnd: {freq: 900, duration: 0.2, volume: 0.5, decay: 40, repeat: 1},

	// two soft mid ticks
	CueNoSpeech: {freq: 700, duration: 0.06, volume: 0.35, decay: 50, repeat: 2, gap: 0.04},

	// low pitch double-beep
	CueError: {freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: 2, gap: 0.05},
}

// samples renders a cue as mono 16-bit PCM at rate.
func samples(c Cue, rate int) []int16 {
	spec, ok := cues[c]
	if !ok {
		return nil
	}
	tick := generateTick(rate, spec.freq, spec.duration, spec.volume, spec.decay)
	gap := make([]int16, int(float64(rate)*spec.gap))
	out := make([]int16, 0, spec.repeat*(len(tick)+len(gap)))
	for i := 0; i < spec.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, tick...)
	}
	return out
}

func generateTick(rate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(rate) * duration)
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return out
}

// Play sounds a cue without blocking. It does nothing once Disable is called.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	play(c)
}

func PlayStart()    { Play(CueStart) }
func PlayEnd()      { Play(CueEnd) }
func PlayNoSpeech() { Play(CueNoSpeech) }
func PlayError()    { Play(CueError) }
