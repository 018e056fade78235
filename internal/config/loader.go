package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlays environment
// variables, applies defaults, and validates the result. An empty reader
// yields a config built from the environment and defaults alone.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Database
	if cfg.Database.MinConns < 0 || cfg.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.min_conns and database.max_conns must not be negative"))
	}
	if cfg.Database.MaxConns > 0 && cfg.Database.MinConns > cfg.Database.MaxConns {
		errs = append(errs, fmt.Errorf("database.min_conns %d exceeds database.max_conns %d", cfg.Database.MinConns, cfg.Database.MaxConns))
	}

	// Scoring
	if t := cfg.Scoring.MasteryThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("scoring.mastery_threshold %d is out of range [0, 100]", t))
	}
	if cfg.Scoring.TargetWPM < 0 {
		errs = append(errs, fmt.Errorf("scoring.target_wpm %d must not be negative", cfg.Scoring.TargetWPM))
	}
	if cfg.Scoring.SilenceRunMs < 0 || cfg.Scoring.RestartDelayMs < 0 {
		errs = append(errs, errors.New("scoring.silence_run_ms and scoring.restart_delay_ms must not be negative"))
	}
	if db := cfg.Scoring.VoiceThresholdDB; db > 0 {
		errs = append(errs, fmt.Errorf("scoring.voice_threshold_db %.1f must be at most 0 dBFS", db))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if ch := cfg.Capture.Channels; ch < 0 || ch > 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is invalid; valid values: 1, 2", ch))
	}
	if cfg.Capture.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.input_sample_rate %d must not be negative", cfg.Capture.InputSampleRate))
	}
	if ch := cfg.Capture.InputChannels; ch < 0 || ch > 2 {
		errs = append(errs, fmt.Errorf("capture.input_channels %d is invalid; valid values: 1, 2", ch))
	}
	if cfg.Capture.FrameMs < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_ms %d must not be negative", cfg.Capture.FrameMs))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	if cfg.Providers.STTFallback.Name != "" && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallback is set but providers.stt is not configured"))
	}
	if cfg.Providers.STT.Name == "deepgram" && cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt is deepgram but no api_key is set; set BASA_STT_API_KEY")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
