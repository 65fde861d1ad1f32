package encoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dumper saves each finalized session's audio under Dir.
type Dumper struct {
	Dir    string
	Format string // "flac" or "wav"
	clock  func() time.Time
}

func NewDumper(dir, format string) (*Dumper, error) {
	switch format {
	case "", "flac":
		format = "flac"
	case "wav":
	default:
		return nil, fmt.Errorf("unsupported dump format %q", format)
	}
	return &Dumper{Dir: dir, Format: format, clock: time.Now}, nil
}

// Dump writes samples (mono, 16 kHz) and returns the file path.
func (d *Dumper) Dump(sessionID string, samples []float32) (string, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", d.clock().Format("20060102-150405"), sessionID, d.Format)
	path := filepath.Join(d.Dir, name)
	pcm := ToPCM16(samples)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	var enc Encoder
	if d.Format == "wav" {
		enc = NewWav(f)
	} else if enc, err = NewFlac(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := EncodeAll(enc, pcm); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	// The FLAC encoder closes f itself.
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return "", err
	}
	return path, nil
}
