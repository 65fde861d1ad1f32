//go:build whisper

package transcriber

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisper.cpp rejects inputs shorter than one second.
const minSamples = 16000

const HasEngine = true

type whisperEngine struct {
	model   whisper.Model
	threads int
}

func NewEngine() Engine {
	return &whisperEngine{}
}

func (w *whisperEngine) Name() string { return "whisper" }

// Quantization is carried by the model file itself; the manager picks the
// file that matches.
func (w *whisperEngine) Load(path string, p LoadParams) error {
	if w.model != nil {
		return nil
	}
	model, err := whisper.New(path)
	if err != nil {
		return fmt.Errorf("whisper load %s: %w", path, err)
	}
	w.model = model
	w.threads = p.Threads
	return nil
}

func (w *whisperEngine) Transcribe(samples []float32, p Params) (Result, error) {
	if w.model == nil {
		return Result{}, ErrModelNotLoaded
	}
	ctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("whisper context: %w", err)
	}

	ctx.SetTranslate(false)
	threads := p.Threads
	if threads <= 0 {
		threads = w.threads
	}
	if threads > 0 {
		ctx.SetThreads(uint(threads))
	}
	lang := p.Language
	if lang == "" {
		lang = "auto"
	}
	if err := ctx.SetLanguage(lang); err != nil {
		return Result{}, fmt.Errorf("whisper language %q: %w", lang, err)
	}

	if len(samples) < minSamples {
		padded := make([]float32, minSamples)
		copy(padded, samples)
		samples = padded
	}

	start := time.Now()
	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper process: %w", err)
	}

	var res Result
	var text strings.Builder
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("whisper segment: %w", err)
		}
		text.WriteString(seg.Text)
		res.Segments = append(res.Segments, Segment{
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
		})
	}
	res.Infer = time.Since(start)
	res.Text = strings.TrimSpace(text.String())
	return res, nil
}

func (w *whisperEngine) Close() error {
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
