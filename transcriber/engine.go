package transcriber

import (
	"errors"
	"time"
)

var (
	ErrModelNotLoaded    = errors.New("model not loaded")
	ErrModelMissing      = errors.New("model file not found")
	ErrModelDownload     = errors.New("model download failed")
	ErrModelExtract      = errors.New("model extraction failed")
	ErrEngineUnavailable = errors.New("inference engine not compiled in (build with -tags whisper)")
)

type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Infer    time.Duration
}

type LoadParams struct {
	Quantization string
	Threads      int
}

type Params struct {
	Language string // "" or "auto" detects
	Threads  int
}

// Engine is a loaded-once speech recognizer. Transcribe takes mono 16 kHz
// samples. Implementations need not be safe for concurrent Transcribe calls.
type Engine interface {
	Name() string
	Load(path string, p LoadParams) error
	Transcribe(samples []float32, p Params) (Result, error)
	Close() error
}
