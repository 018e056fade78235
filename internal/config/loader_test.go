package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/basa-ph/basa/internal/config"
	"github.com/basa-ph/basa/pkg/provider/stt"
	sttmock "github.com/basa-ph/basa/pkg/provider/stt/mock"
	"github.com/basa-ph/basa/pkg/provider/vad"
	"github.com/basa-ph/basa/pkg/provider/vad/energy"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "basa.yaml")
	writeConfig(t, path, `
server:
  listen_addr: ":9000"
database:
  postgres_dsn: "postgres://localhost/basa"
  migrate: true
`, 0)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || !cfg.Database.Migrate {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.STT.Name != "deepgram" || cfg.Providers.STTFallback.Name != "whisper" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if !cfg.Database.Migrate || cfg.Scoring.MasteryThreshold != 80 {
		t.Errorf("database/scoring = %+v / %+v", cfg.Database, cfg.Scoring)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/basa.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":80\"\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

// Not parallel: t.Setenv.
func TestLoadFromReader_EnvOverridesYAML(t *testing.T) {
	t.Setenv("BASA_POSTGRES_DSN", "postgres://env/basa")
	t.Setenv("BASA_MASTERY_THRESHOLD", "90")
	t.Setenv("BASA_STT_API_KEY", "dg-secret")
	t.Setenv("BASA_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := config.LoadFromReader(strings.NewReader(`
database:
  postgres_dsn: "postgres://yaml/basa"
scoring:
  mastery_threshold: 70
providers:
  stt:
    name: deepgram
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Database.PostgresDSN != "postgres://env/basa" {
		t.Errorf("dsn: got %q", cfg.Database.PostgresDSN)
	}
	if cfg.Scoring.MasteryThreshold != 90 {
		t.Errorf("mastery threshold: got %d, want 90", cfg.Scoring.MasteryThreshold)
	}
	if cfg.Providers.STT.APIKey != "dg-secret" {
		t.Errorf("stt api key: got %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.STTFallback.APIKey != "" {
		t.Errorf("fallback api key leaked from BASA_STT_API_KEY: %q", cfg.Providers.STTFallback.APIKey)
	}
	if cfg.Server.ShutdownTimeout.Seconds() != 3 {
		t.Errorf("shutdown timeout: got %s", cfg.Server.ShutdownTimeout)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &sttmock.Provider{}
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return want, nil })
	r.RegisterVAD("energy", func(e config.ProviderEntry) (vad.Engine, error) { return energy.New(), nil })

	got, err := r.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil || got != want {
		t.Fatalf("CreateSTT: got %v, %v", got, err)
	}
	if _, err := r.CreateVAD(config.ProviderEntry{Name: "energy"}); err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return want, nil })
	_, err = r.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) || !strings.Contains(err.Error(), "[deepgram mock]") {
		t.Errorf("CreateSTT(nope): got %v, want ErrProviderNotRegistered listing [deepgram mock]", err)
	}
	if names := r.Names(); !slices.Equal(names["stt"], []string{"deepgram", "mock"}) || !slices.Equal(names["vad"], []string{"energy"}) {
		t.Errorf("Names: got %v", names)
	}
	if _, err := r.CreateVAD(config.ProviderEntry{Name: "silero"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD(silero): got %v, want ErrProviderNotRegistered", err)
	}
}

func TestMain(m *testing.M) {
	// Keep the developer's environment out of the loader tests.
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "BASA_") {
			os.Unsetenv(k)
		}
	}
	os.Exit(m.Run())
}
