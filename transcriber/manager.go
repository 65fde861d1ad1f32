package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"murmur/log"
)

const (
	DefaultModelName    = "ggml-base-q5_1.bin"
	DefaultModelURL     = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin"
	DefaultQuantization = "q5_1"
)

type Config struct {
	Name         string // file or directory under Dir
	URL          string
	SHA256       string
	Dir          string
	Quantization string
	Threads      int
	Language     string
	Client       *http.Client
	Progress     Progress
}

// DefaultThreads is the inference thread hint when none is configured.
func DefaultThreads() int {
	return min(runtime.NumCPU(), 8)
}

// Manager owns the on-disk model and the engine it is loaded into. The
// model loads at most once; Transcribe fails fast until then.
type Manager struct {
	cfg    Config
	engine Engine

	loadMu sync.Mutex
	loaded atomic.Bool
	path   string

	inferMu sync.Mutex
}

func NewManager(cfg Config, engine Engine) *Manager {
	if cfg.Name == "" {
		cfg.Name = DefaultModelName
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads()
	}
	return &Manager{cfg: cfg, engine: engine}
}

func (m *Manager) EngineName() string { return m.engine.Name() }

// ModelPath is where the model file, or the directory an archive was
// extracted to, lives.
func (m *Manager) ModelPath() string {
	return filepath.Join(m.cfg.Dir, m.cfg.Name)
}

// ModelPresent reports whether something is already at ModelPath.
func (m *Manager) ModelPresent() bool {
	_, err := os.Stat(m.ModelPath())
	return err == nil
}

// EnsureModel downloads and unpacks the model if ModelPath is absent. The
// transfer runs on its own goroutine; cancelling ctx aborts it.
func (m *Manager) EnsureModel(ctx context.Context) error {
	if m.ModelPresent() {
		return nil
	}
	if m.cfg.URL == "" {
		return fmt.Errorf("%w: %s (no download url configured)", ErrModelMissing, m.ModelPath())
	}

	log.Infof("model not found at %s, downloading %s", m.ModelPath(), m.cfg.URL)
	done := make(chan error, 1)
	go func() {
		done <- m.fetch(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		<-done
		return fmt.Errorf("%w: %w", ErrModelDownload, ctx.Err())
	}
}

func (m *Manager) fetch(ctx context.Context) error {
	tmp, err := download(ctx, m.cfg.Client, m.cfg.URL, m.cfg.Dir, m.cfg.SHA256, m.cfg.Progress)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelDownload, err)
	}
	defer os.Remove(tmp)

	dest := m.ModelPath()
	kind := archiveKind(m.cfg.URL)
	if kind == "" {
		if err := os.Rename(tmp, dest); err != nil {
			return fmt.Errorf("%w: install %s: %w", ErrModelDownload, dest, err)
		}
		log.Infof("model saved to %s", dest)
		return nil
	}
	if err := extractArchive(tmp, kind, dest); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("%w: %w", ErrModelExtract, err)
	}
	log.Infof("model extracted to %s", dest)
	return nil
}

// Load instantiates the engine on the model. After one success further
// calls do nothing.
func (m *Manager) Load() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.loaded.Load() {
		return nil
	}

	path, err := resolveModelFile(m.ModelPath(), m.cfg.Quantization)
	if err != nil {
		return err
	}
	start := time.Now()
	params := LoadParams{Quantization: m.cfg.Quantization, Threads: m.cfg.Threads}
	if err := m.engine.Load(path, params); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	m.path = path
	m.loaded.Store(true)
	log.ModelLoad(path, m.cfg.Threads, time.Since(start))
	return nil
}

func (m *Manager) IsLoaded() bool { return m.loaded.Load() }

// Transcribe runs inference synchronously. Calls are serialized.
func (m *Manager) Transcribe(samples []float32) (Result, error) {
	if !m.loaded.Load() {
		return Result{}, ErrModelNotLoaded
	}
	if len(samples) == 0 {
		return Result{}, nil
	}

	m.inferMu.Lock()
	defer m.inferMu.Unlock()

	start := time.Now()
	res, err := m.engine.Transcribe(samples, Params{Language: m.cfg.Language, Threads: m.cfg.Threads})
	if err != nil {
		return Result{}, err
	}
	if res.Infer == 0 {
		res.Infer = time.Since(start)
	}
	res.Text = strings.TrimSpace(res.Text)
	return res, nil
}

func (m *Manager) Close() error {
	m.inferMu.Lock()
	defer m.inferMu.Unlock()
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if !m.loaded.Load() {
		return nil
	}
	m.loaded.Store(false)
	return m.engine.Close()
}

var modelExts = []string{".bin", ".gguf"}

// resolveModelFile returns path itself when it is a file. For a directory
// it picks a model file, preferring one whose name mentions quant.
func resolveModelFile(path, quant string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrModelMissing, path)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}

	var candidates []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		for _, e := range modelExts {
			if ext == e {
				candidates = append(candidates, p)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no model file in %s", ErrModelMissing, path)
	}
	sort.Strings(candidates)
	if quant != "" {
		q := strings.ToLower(quant)
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(filepath.Base(c)), q) {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}
