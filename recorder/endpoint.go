package recorder

import (
	"time"

	"murmur/audio"
)

// endpointer decides when a toggle session has gone quiet long enough to
// end on its own.
type endpointer struct {
	threshold  float32
	timeout    time.Duration
	lastSpeech time.Time
}

func newEndpointer(threshold float32, timeout time.Duration) *endpointer {
	return &endpointer{threshold: threshold, timeout: timeout}
}

func (e *endpointer) reset(now time.Time) {
	e.lastSpeech = now
}

// observe records a chunk captured at t and reports whether the session
// should stop. A chunk that triggers the stop is not part of the session.
// Nothing stops before at least one chunk has been buffered.
func (e *endpointer) observe(samples []float32, t time.Time, buffered int) bool {
	if audio.Peak(samples) > e.threshold {
		e.lastSpeech = t
	}
	return buffered > 0 && t.Sub(e.lastSpeech) > e.timeout
}
