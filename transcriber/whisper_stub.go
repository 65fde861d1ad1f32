//go:build !whisper

package transcriber

const HasEngine = false

type stubEngine struct{}

// NewEngine returns an engine whose Load always fails. Build with
// -tags whisper (and libwhisper on the linker path) for real inference.
func NewEngine() Engine {
	return stubEngine{}
}

func (stubEngine) Name() string { return "unavailable" }

func (stubEngine) Load(string, LoadParams) error { return ErrEngineUnavailable }

func (stubEngine) Transcribe([]float32, Params) (Result, error) {
	return Result{}, ErrEngineUnavailable
}

func (stubEngine) Close() error { return nil }
