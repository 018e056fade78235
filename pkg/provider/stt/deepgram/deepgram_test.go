package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/basa-ph/basa/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ── URL / query-param tests ──

func TestBuildURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		opts  []Option
		cfg   stt.StreamConfig
		check map[string]string
	}{
		{
			name:  "defaults",
			cfg:   stt.StreamConfig{SampleRate: 16000, Channels: 1},
			check: map[string]string{"model": "nova-3", "language": "en", "sample_rate": "16000", "channels": "1", "interim_results": "true", "encoding": "linear16"},
		},
		{
			name:  "stream language wins over provider default",
			opts:  []Option{WithLanguage("en")},
			cfg:   stt.StreamConfig{Language: "fil"},
			check: map[string]string{"language": "fil", "sample_rate": "16000"},
		},
		{
			name:  "custom model",
			opts:  []Option{WithModel("base"), WithSampleRate(8000)},
			cfg:   stt.StreamConfig{},
			check: map[string]string{"model": "base", "sample_rate": "8000"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(raw)
			for k, want := range tt.check {
				if got := u.Query().Get(k); got != want {
					t.Errorf("%s: got %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestBuildURL_Keywords(t *testing.T) {
	p, _ := New("key")
	raw, err := p.buildURL(stt.StreamConfig{Keywords: []stt.KeywordBoost{
		{Keyword: "naglalaro", Boost: 2},
		{Keyword: "bata", Boost: 1.5},
	}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	kws := u.Query()["keywords"]
	if len(kws) != 2 || kws[0] != "naglalaro:2" || kws[1] != "bata:1.5" {
		t.Errorf("keywords: got %v", kws)
	}
}

// ── JSON parsing tests ──

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
	}{
		{
			name:      "final with words",
			raw:       `{"type":"Results","is_final":true,"start":1.5,"duration":2,"channel":{"alternatives":[{"transcript":"ang bata","confidence":0.93,"words":[{"word":"ang","start":1.5,"end":1.8,"confidence":0.9}]}]}}`,
			wantOK:    true,
			wantText:  "ang bata",
			wantFinal: true,
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ang","confidence":0.6}]}}`,
			wantOK:   true,
			wantText: "ang",
		},
		{name: "metadata ignored", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.Text != tt.wantText || tr.IsFinal != tt.wantFinal {
				t.Errorf("got %+v", tr)
			}
		})
	}
}

func TestParseDeepgramResponse_Timing(t *testing.T) {
	tr, _ := parseDeepgramResponse([]byte(`{"type":"Results","is_final":true,"start":1.5,"duration":2,"channel":{"alternatives":[{"transcript":"x","confidence":0.5,"words":[{"word":"x","start":1.5,"end":1.75,"confidence":0.5}]}]}}`))
	if tr.Timestamp != 1500*time.Millisecond || tr.Duration != 2*time.Second {
		t.Errorf("timing: got %v + %v", tr.Timestamp, tr.Duration)
	}
	if tr.Words[0].End != 1750*time.Millisecond {
		t.Errorf("word end: got %v", tr.Words[0].End)
	}
}

// ── Constructor tests ──

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ── Streaming ──

func TestStartStream_ServerEndClosesChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("Authorization: got %q", got)
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		if typ, _, err := c.Read(ctx); err != nil || typ != websocket.MessageBinary {
			t.Errorf("expected binary audio, got %v %v", typ, err)
			return
		}
		c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ang","confidence":0.5}]}}`))
		c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ang bata","confidence":0.9}]}}`))
		c.Close(websocket.StatusNormalClosure, "idle timeout")
	}))
	defer srv.Close()

	p, _ := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	var partial, final string
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			partial = tr.Text
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			final = tr.Text
		case <-ctx.Done():
			t.Fatal("timed out waiting for the stream to end")
		}
	}
	if partial != "ang" || final != "ang bata" {
		t.Errorf("got partial %q final %q", partial, final)
	}
	if err := sess.SetKeywords(nil); err == nil {
		t.Error("expected SetKeywords to be unsupported")
	}
}
