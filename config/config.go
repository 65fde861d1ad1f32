package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"murmur/recorder"
	"murmur/transcriber"
)

type AudioConfig struct {
	Device           string  `yaml:"device"`
	Threshold        float64 `yaml:"threshold"`
	SilenceTimeoutMS int     `yaml:"silence_timeout_ms"`
	PaddingSamples   int     `yaml:"padding_samples"`
	PollMS           int     `yaml:"poll_ms"`
}

type ModelConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	SHA256       string `yaml:"sha256"`
	Dir          string `yaml:"dir"`
	Quantization string `yaml:"quantization"`
	Threads      int    `yaml:"threads"`
	Language     string `yaml:"language"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
	Sounds  bool `yaml:"sounds"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

type DumpConfig struct {
	Dir    string `yaml:"dir"` // empty disables dumps
	Format string `yaml:"format"`
}

type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Model   ModelConfig   `yaml:"model"`
	Notify  NotifyConfig  `yaml:"notify"`
	History HistoryConfig `yaml:"history"`
	Dump    DumpConfig    `yaml:"dump"`
}

func Default() Config {
	return Config{
		Audio: AudioConfig{
			Threshold:        float64(recorder.DefaultThreshold),
			SilenceTimeoutMS: int(recorder.DefaultSilenceTimeout / time.Millisecond),
			PaddingSamples:   recorder.DefaultPadding,
			PollMS:           int(recorder.DefaultPollInterval / time.Millisecond),
		},
		Model: ModelConfig{
			Name:         transcriber.DefaultModelName,
			URL:          transcriber.DefaultModelURL,
			Dir:          defaultModelDir(),
			Quantization: transcriber.DefaultQuantization,
			Threads:      transcriber.DefaultThreads(),
			Language:     "auto",
		},
		Notify: NotifyConfig{
			Enabled: true,
			Sounds:  true,
		},
		Dump: DumpConfig{
			Format: "flac",
		},
	}
}

func defaultModelDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "murmur", "models")
	}
	return filepath.Join(os.TempDir(), "murmur", "models")
}

// DefaultPath is where Load looks when no path is given. A missing file
// there is not an error.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "murmur", "config.yaml")
}

// Load reads path over Default, applies MURMUR_* environment overrides and
// validates the result. An empty path tries DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err) && !explicit:
		case os.IsNotExist(err):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Audio.Device, "MURMUR_AUDIO_DEVICE")
	overrideFloat(&cfg.Audio.Threshold, "MURMUR_AUDIO_THRESHOLD")
	overrideInt(&cfg.Audio.SilenceTimeoutMS, "MURMUR_AUDIO_SILENCE_TIMEOUT_MS")
	overrideInt(&cfg.Audio.PaddingSamples, "MURMUR_AUDIO_PADDING_SAMPLES")
	overrideInt(&cfg.Audio.PollMS, "MURMUR_AUDIO_POLL_MS")
	overrideString(&cfg.Model.Name, "MURMUR_MODEL_NAME")
	overrideString(&cfg.Model.URL, "MURMUR_MODEL_URL")
	overrideString(&cfg.Model.SHA256, "MURMUR_MODEL_SHA256")
	overrideString(&cfg.Model.Dir, "MURMUR_MODEL_DIR")
	overrideString(&cfg.Model.Quantization, "MURMUR_MODEL_QUANTIZATION")
	overrideInt(&cfg.Model.Threads, "MURMUR_MODEL_THREADS")
	overrideString(&cfg.Model.Language, "MURMUR_MODEL_LANGUAGE")
	overrideBool(&cfg.Notify.Enabled, "MURMUR_NOTIFY_ENABLED")
	overrideBool(&cfg.Notify.Sounds, "MURMUR_NOTIFY_SOUNDS")
	overrideString(&cfg.History.Path, "MURMUR_HISTORY_PATH")
	overrideString(&cfg.Dump.Dir, "MURMUR_DUMP_DIR")
	overrideString(&cfg.Dump.Format, "MURMUR_DUMP_FORMAT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Audio.Threshold <= 0 || cfg.Audio.Threshold >= 1 {
		return errors.New("audio.threshold must be between 0 and 1")
	}
	if cfg.Audio.SilenceTimeoutMS <= 0 {
		return errors.New("audio.silence_timeout_ms must be positive")
	}
	if cfg.Audio.PaddingSamples < 0 {
		return errors.New("audio.padding_samples must be >= 0")
	}
	if cfg.Audio.PollMS <= 0 {
		return errors.New("audio.poll_ms must be positive")
	}
	if cfg.Model.Name == "" {
		return errors.New("model.name must not be empty")
	}
	if cfg.Model.Dir == "" {
		return errors.New("model.dir must not be empty")
	}
	if cfg.Model.Threads < 0 {
		return errors.New("model.threads must be >= 0")
	}
	switch cfg.Dump.Format {
	case "flac", "wav":
	default:
		return errors.New("dump.format must be one of flac|wav")
	}
	return nil
}

// RecorderOptions maps the audio section onto recorder options.
func (c Config) RecorderOptions() recorder.Options {
	return recorder.Options{
		Device:         c.Audio.Device,
		Threshold:      float32(c.Audio.Threshold),
		SilenceTimeout: time.Duration(c.Audio.SilenceTimeoutMS) * time.Millisecond,
		Padding:        c.Audio.PaddingSamples,
		PollInterval:   time.Duration(c.Audio.PollMS) * time.Millisecond,
	}
}

// TranscriberConfig maps the model section onto the model manager.
func (c Config) TranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Name:         c.Model.Name,
		URL:          c.Model.URL,
		SHA256:       c.Model.SHA256,
		Dir:          c.Model.Dir,
		Quantization: c.Model.Quantization,
		Threads:      c.Model.Threads,
		Language:     c.Model.Language,
	}
}
