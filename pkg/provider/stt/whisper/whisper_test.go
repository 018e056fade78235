package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basa-ph/basa/pkg/provider/stt"
	"github.com/basa-ph/basa/pkg/provider/stt/whisper"
)

// ── helpers ──

type inferenceRequest struct {
	prompt   string
	language string
	format   string
}

// newMockServer answers POST /inference with text and a fixed avg_logprob,
// recording the form fields of each request.
func newMockServer(t *testing.T, text string, logprob float64) (*httptest.Server, *atomic.Int32, func() []inferenceRequest) {
	t.Helper()
	var (
		calls atomic.Int32
		mu    sync.Mutex
		reqs  []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		calls.Add(1)
		mu.Lock()
		reqs = append(reqs, inferenceRequest{
			prompt:   r.FormValue("prompt"),
			language: r.FormValue("language"),
			format:   r.FormValue("response_format"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     " " + text + " ",
			"segments": []map[string]any{{"avg_logprob": logprob}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

// speech returns a 440 Hz sine at roughly -13 dBFS.
func speech(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silence(samples int) []byte { return make([]byte, samples*2) }

func collect(t *testing.T, h stt.SessionHandle) []stt.Transcript {
	t.Helper()
	var out []stt.Transcript
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-h.Finals():
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-timeout:
			t.Fatal("timed out waiting for finals to close")
		}
	}
}

// ── tests ──

func TestNew_EmptyServerURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	p, _ := whisper.New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	srv, calls, _ := newMockServer(t, "unused", -0.1)
	p, _ := whisper.New(srv.URL)
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	for range 50 {
		_ = h.SendAudio(silence(320))
	}
	h.Close()
	if got := collect(t, h); len(got) != 0 {
		t.Errorf("expected no transcripts, got %v", got)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no inference calls, got %d", calls.Load())
	}
}

func TestSpeechThenSilenceCommitsUtterance(t *testing.T) {
	srv, calls, reqs := newMockServer(t, "ang bata", math.Log(0.8))
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h, err := p.StartStream(context.Background(), stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Language:   "tl-PH",
		Keywords:   []stt.KeywordBoost{{Keyword: "ang"}, {Keyword: "bata"}},
	})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	for range 10 {
		_ = h.SendAudio(speech(320))
	}
	for range 10 {
		_ = h.SendAudio(silence(320))
	}

	select {
	case tr := <-h.Partials():
		if tr.Text != "ang bata" || tr.IsFinal {
			t.Errorf("partial: got %+v", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for partial")
	}

	h.Close()
	finals := collect(t, h)
	if len(finals) != 1 {
		t.Fatalf("finals: got %d, want 1", len(finals))
	}
	if math.Abs(finals[0].Confidence-0.8) > 1e-9 {
		t.Errorf("confidence: got %v, want 0.8", finals[0].Confidence)
	}
	if calls.Load() != 1 {
		t.Errorf("inference calls: got %d, want 1", calls.Load())
	}
	r := reqs()[0]
	if r.prompt != "ang bata" || r.language != "tl" || r.format != "verbose_json" {
		t.Errorf("request fields: got %+v", r)
	}
}

func TestClose_FlushesBufferedSpeech(t *testing.T) {
	srv, calls, _ := newMockServer(t, "lima", -0.05)
	p, _ := whisper.New(srv.URL)
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	for range 5 {
		_ = h.SendAudio(speech(320))
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	finals := collect(t, h)
	if len(finals) != 1 || finals[0].Text != "lima" {
		t.Errorf("finals: got %+v", finals)
	}
	if calls.Load() != 1 {
		t.Errorf("inference calls: got %d", calls.Load())
	}
	if err := h.SendAudio(speech(10)); err == nil {
		t.Error("expected SendAudio after Close to fail")
	}
}

func TestSetKeywords_UpdatesPrompt(t *testing.T) {
	srv, _, reqs := newMockServer(t, "walo", -0.1)
	p, _ := whisper.New(srv.URL)
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	if err := h.SetKeywords([]stt.KeywordBoost{{Keyword: "walo"}}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	_ = h.SendAudio(speech(1600))
	h.Close()
	collect(t, h)
	if got := reqs(); len(got) != 1 || got[0].prompt != "walo" {
		t.Errorf("requests: got %+v", got)
	}
}

func TestInference_ServerErrorDropsUtterance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	_ = h.SendAudio(speech(1600))
	h.Close()
	if got := collect(t, h); len(got) != 0 {
		t.Errorf("expected no transcripts, got %v", got)
	}
}
