// Command basa-capture runs a remedial reading session on the command line.
// It walks through a flashcard deck, captures each reading from recorded PCM
// audio, scores it locally, and submits the session to the basa server.
//
// Card N reads its audio from <audio-dir>/NN.pcm (raw 16-bit little-endian
// PCM in the configured capture format).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/basa-ph/basa/internal/api"
	"github.com/basa-ph/basa/internal/capture"
	"github.com/basa-ph/basa/internal/config"
	"github.com/basa-ph/basa/internal/observe"
	"github.com/basa-ph/basa/internal/reading"
	"github.com/basa-ph/basa/internal/recorder"
	"github.com/basa-ph/basa/internal/resilience"
	"github.com/basa-ph/basa/internal/scoring"
	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/audio/pcmfile"
	"github.com/basa-ph/basa/pkg/provider/stt"
	"github.com/basa-ph/basa/pkg/provider/stt/deepgram"
	"github.com/basa-ph/basa/pkg/provider/stt/whisper"
	"github.com/basa-ph/basa/pkg/provider/vad"
	"github.com/basa-ph/basa/pkg/provider/vad/energy"
)

type flags struct {
	configPath  string
	deckPath    string
	audioDir    string
	realtime    bool
	interactive bool

	studentID        int64
	scheduleID       int64
	subjectID        int64
	gradeID          int64
	phonemicID       int64
	materialID       int64
	masteryThreshold int
	completed        bool
	feedback         string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML configuration file (empty: environment only)")
	flag.StringVar(&f.deckPath, "deck", "deck.yaml", "path to the flashcard deck")
	flag.StringVar(&f.audioDir, "audio-dir", "audio", "directory holding one NN.pcm recording per card")
	flag.BoolVar(&f.realtime, "realtime", false, "pace audio like a live microphone")
	flag.BoolVar(&f.interactive, "interactive", false, "read commands from stdin: r(ecord), n(ext), p(rev), s(ubmit), q(uit)")

	flag.Int64Var(&f.studentID, "student", 0, "student id")
	flag.Int64Var(&f.scheduleID, "schedule", 0, "approved schedule id")
	flag.Int64Var(&f.subjectID, "subject", 0, "subject id")
	flag.Int64Var(&f.gradeID, "grade", 0, "grade id")
	flag.Int64Var(&f.phonemicID, "phonemic", 0, "phonemic level id (0: none)")
	flag.Int64Var(&f.materialID, "material", 0, "material id (0: none)")
	flag.IntVar(&f.masteryThreshold, "mastery-threshold", -1, "override the server's mastery threshold (-1: server default)")
	flag.BoolVar(&f.completed, "complete", false, "mark the session completed")
	flag.StringVar(&f.feedback, "feedback", "", "teacher feedback, required with -complete")
	flag.Parse()
	return f
}

func (f flags) identifiers() recorder.Identifiers {
	ids := recorder.Identifiers{
		StudentID:          f.studentID,
		ApprovedScheduleID: f.scheduleID,
		SubjectID:          f.subjectID,
		GradeID:            f.gradeID,
	}
	if f.phonemicID > 0 {
		ids.PhonemicID = &f.phonemicID
	}
	if f.materialID > 0 {
		ids.MaterialID = &f.materialID
	}
	if f.masteryThreshold >= 0 {
		ids.MasteryThreshold = &f.masteryThreshold
	}
	return ids
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "basa-capture: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.SlogLevel()})))

	deck, err := reading.LoadDeck(f.deckPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "basa-capture: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{Component: "capture", Registerer: promReg})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(telemetry.Meter)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}
	defer logAttemptSummary(promReg)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	recognizer, err := buildRecognizer(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build speech recognizer", "err", err)
		return 1
	}
	engine, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		slog.Error("failed to build voice detector", "name", cfg.Providers.VAD.Name, "err", err)
		return 1
	}

	// ── Capture ───────────────────────────────────────────────────────────────
	// The recorder is created after the microphone, which reads the current
	// card's recording at the start of every attempt.
	var rec *recorder.Recorder
	mic := pcmfile.New(func() (io.ReadCloser, error) {
		return os.Open(filepath.Join(f.audioDir, fmt.Sprintf("%02d.pcm", rec.Index())))
	},
		pcmfile.WithFormat(audio.Format{SampleRate: cfg.Capture.InputSampleRate, Channels: cfg.Capture.InputChannels}),
		pcmfile.WithFrameDuration(time.Duration(cfg.Capture.FrameMs)*time.Millisecond),
		pcmfile.WithRealtime(f.realtime),
	)

	ctrl := capture.NewController(mic, recognizer, engine, scoring.Scorer{TargetWPM: cfg.Scoring.TargetWPM},
		capture.WithRestartDelay(time.Duration(cfg.Scoring.RestartDelayMs)*time.Millisecond),
		capture.WithSilenceRun(time.Duration(cfg.Scoring.SilenceRunMs)*time.Millisecond),
		capture.WithVoiceThreshold(cfg.Scoring.VoiceThresholdDB),
		capture.WithFrameMs(cfg.Capture.FrameMs),
		capture.WithStreamConfig(stt.StreamConfig{
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
			Language:   cfg.Capture.Language,
		}),
		capture.WithMetrics(metrics),
	)

	client := api.NewClient(cfg.Client.ServerURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		api.WithCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:   3,
			ResetTimeout:  15 * time.Second,
			OnStateChange: announceServerState(os.Stdout),
		}),
	)

	rec, err = recorder.New(deck.Cards, ctrl, client, f.identifiers())
	if err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	// ── Session ───────────────────────────────────────────────────────────────
	var cmds <-chan command
	if f.interactive {
		cmds = readCommands(ctx, os.Stdin)
	} else {
		cmds = batchCommands(rec.Len())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		showPreviousProgress(gctx, client, f.studentID, f.scheduleID)
		return nil
	})
	g.Go(func() error {
		return runSession(gctx, rec, cmds, os.Stdout, f.completed, f.feedback)
	})
	if err := g.Wait(); err != nil {
		slog.Error("session failed", "err", err)
		return 1
	}
	return 0
}

// announceServerState tells the operator when the server link trips or
// recovers, since submissions fail fast while it is open.
func announceServerState(w io.Writer) func(string, resilience.State, resilience.State) {
	return func(_ string, _, to resilience.State) {
		switch to {
		case resilience.StateOpen:
			fmt.Fprintln(w, "! server unreachable; submissions paused for a moment")
		case resilience.StateClosed:
			fmt.Fprintln(w, "server reachable again")
		}
	}
}

// logAttemptSummary logs how the session's capture attempts ended.
func logAttemptSummary(g prometheus.Gatherer) {
	totals, err := observe.CounterTotals(g, "basa_capture_attempts", "outcome")
	if err != nil {
		slog.Debug("capture summary unavailable", "err", err)
		return
	}
	if len(totals) == 0 {
		return
	}
	attrs := make([]any, 0, 2*len(totals))
	for outcome, n := range totals {
		attrs = append(attrs, outcome, int(n))
	}
	slog.Info("capture attempts", attrs...)
}

// loadConfig reads path, or only the environment when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return config.Load(path)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the shipped STT and VAD implementations
// into reg.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(cfg.Capture.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{
			whisper.WithSampleRate(cfg.Capture.SampleRate),
			whisper.WithVoiceThresholdDB(cfg.Scoring.VoiceThresholdDB),
		}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return energy.New(energy.WithThreshold(cfg.Scoring.VoiceThresholdDB)), nil
	})
}

// buildRecognizer creates the primary recognizer and, when configured, puts
// it behind a failover group with the fallback recognizer.
func buildRecognizer(cfg *config.Config, reg *config.Registry, metrics resilience.ProviderMetrics) (stt.Provider, error) {
	if cfg.Providers.STT.Name == "" {
		return nil, errors.New("providers.stt is not configured")
	}
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	fb := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name, resilience.FallbackConfig{}, metrics)
	if name := cfg.Providers.STTFallback.Name; name != "" {
		secondary, err := reg.CreateSTT(cfg.Providers.STTFallback)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", name, err)
		}
		fb.AddFallback(name, secondary)
		slog.Info("provider created", "kind", "stt_fallback", "name", name)
	}
	return fb, nil
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// ── Progress ──────────────────────────────────────────────────────────────────

// showPreviousProgress logs the student's stored result for this schedule,
// if any. Failures are not fatal: the session can still be recorded.
func showPreviousProgress(ctx context.Context, client *api.Client, studentID, scheduleID int64) {
	p, err := client.FetchProgress(ctx, studentID, scheduleID)
	if err != nil {
		slog.Warn("could not fetch previous progress", "err", err)
		return
	}
	if !p.Found {
		slog.Info("no previous session for this schedule")
		return
	}
	slog.Info("previous session found",
		"session_id", p.Session.ID,
		"overall_average", p.Session.OverallAverage,
		"cards", len(p.Slides),
		"completed", p.Session.Completed(),
	)
}

// ── Commands ──────────────────────────────────────────────────────────────────

// readCommands parses stdin lines into commands until EOF or ctx ends.
func readCommands(ctx context.Context, r io.Reader) <-chan command {
	out := make(chan command)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			cmd, ok := parseCommand(sc.Text())
			if !ok {
				fmt.Fprintln(os.Stderr, "commands: r(ecord), x/stop (while recording), n(ext), p(rev), s(ubmit), q(uit)")
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
