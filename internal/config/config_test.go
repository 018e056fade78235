package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/basa-ph/basa/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"shutdown_timeout", cfg.Server.ShutdownTimeout, config.DefaultShutdownTimeout},
		{"max_conns", cfg.Database.MaxConns, int32(config.DefaultMaxConns)},
		{"voice_threshold_db", cfg.Scoring.VoiceThresholdDB, config.DefaultVoiceThresholdDB},
		{"silence_run_ms", cfg.Scoring.SilenceRunMs, config.DefaultSilenceRunMs},
		{"restart_delay_ms", cfg.Scoring.RestartDelayMs, config.DefaultRestartDelayMs},
		{"target_wpm", cfg.Scoring.TargetWPM, config.DefaultTargetWPM},
		{"mastery_threshold", cfg.Scoring.MasteryThreshold, config.DefaultMasteryThreshold},
		{"vad", cfg.Providers.VAD.Name, "energy"},
		{"sample_rate", cfg.Capture.SampleRate, config.DefaultSampleRate},
		{"channels", cfg.Capture.Channels, config.DefaultChannels},
		{"frame_ms", cfg.Capture.FrameMs, config.DefaultFrameMs},
		{"input_sample_rate", cfg.Capture.InputSampleRate, config.DefaultSampleRate},
		{"input_channels", cfg.Capture.InputChannels, config.DefaultChannels},
		{"client timeout", cfg.Client.Timeout, config.DefaultClientTimeout},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Scoring: config.ScoringConfig{TargetWPM: 60, MasteryThreshold: 75}}
	config.ApplyDefaults(cfg)
	if cfg.Scoring.TargetWPM != 60 || cfg.Scoring.MasteryThreshold != 75 {
		t.Errorf("explicit values overwritten: %+v", cfg.Scoring)
	}
}

func TestApplyDefaults_InputFormatFollowsRecognizer(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("capture:\n  sample_rate: 8000\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Capture.InputSampleRate != 8000 || cfg.Capture.InputChannels != 1 {
		t.Errorf("input format: got %d Hz %d ch, want 8000 Hz 1 ch", cfg.Capture.InputSampleRate, cfg.Capture.InputChannels)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid", yaml: "server:\n  log_level: debug\n"},
		{name: "bad log level", yaml: "server:\n  log_level: loud\n", wantErr: "server.log_level"},
		{name: "threshold above 100", yaml: "scoring:\n  mastery_threshold: 101\n", wantErr: "scoring.mastery_threshold"},
		{name: "threshold negative", yaml: "scoring:\n  mastery_threshold: -5\n", wantErr: "scoring.mastery_threshold"},
		{name: "negative target wpm", yaml: "scoring:\n  target_wpm: -1\n", wantErr: "scoring.target_wpm"},
		{name: "positive voice threshold", yaml: "scoring:\n  voice_threshold_db: 3\n", wantErr: "scoring.voice_threshold_db"},
		{name: "min above max conns", yaml: "database:\n  max_conns: 2\n  min_conns: 5\n", wantErr: "database.min_conns"},
		{name: "three channels", yaml: "capture:\n  channels: 3\n", wantErr: "capture.channels"},
		{name: "three input channels", yaml: "capture:\n  input_channels: 3\n", wantErr: "capture.input_channels"},
		{name: "fallback without primary", yaml: "providers:\n  stt_fallback:\n    name: whisper\n", wantErr: "providers.stt_fallback"},
		{name: "unknown provider only warns", yaml: "providers:\n  stt:\n    name: acme\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("got %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
scoring:
  mastery_threshold: 200
`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "scoring.mastery_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.in.SlogLevel(); got != tc.want {
			t.Errorf("%q.SlogLevel() = %v, want %v", tc.in, got, tc.want)
		}
	}
}
