package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// Metrics describes one finished transcription.
type Metrics struct {
	SessionID    string
	Engine       string
	AudioLengthS float64
	Samples      int
	InferTimeMs  float64
	Segments     int
	Chars        int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: MURMUR_LOG_PATH environment variable
	if envPath := os.Getenv("MURMUR_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Transcription(m Metrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", m.SessionID).
		Str("engine", m.Engine).
		Float64("audio_s", m.AudioLengthS).
		Int("samples", m.Samples).
		Float64("infer_ms", m.InferTimeMs).
		Int("segments", m.Segments).
		Int("chars", m.Chars).
		Msg("transcription")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(id, device, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("device", device).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(id, reason string, rawSamples, trimmedSamples int, dropped int64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("reason", reason).
		Int("raw_samples", rawSamples).
		Int("trimmed_samples", trimmedSamples).
		Int64("dropped_chunks", dropped).
		Msg("session_end")
}

func ModelDownload(url string, bytes int64, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("url", url).
		Int64("bytes", bytes).
		Float64("elapsed_ms", float64(elapsed.Microseconds())/1000).
		Msg("model_download")
}

func ModelLoad(path string, threads int, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("path", path).
		Int("threads", threads).
		Float64("elapsed_ms", float64(elapsed.Microseconds())/1000).
		Msg("model_load")
}
