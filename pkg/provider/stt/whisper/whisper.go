// Package whisper provides an stt.Provider backed by a whisper.cpp server.
//
// whisper.cpp transcribes in batches, so the session buffers incoming PCM,
// segments utterances on trailing silence, and POSTs each segment to the
// server's /inference endpoint. Every committed segment is emitted as a
// partial and a final with the same text. Expected words set through
// StreamConfig.Keywords or SetKeywords are passed as the decoding prompt.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("tl"))
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	handle.Close() // flushes the buffered utterance
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/provider/stt"
)

const (
	bitsPerSample = 16

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	defaultVoiceThresholdDB    = -50.0
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. Empty uses
// whatever model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language code (e.g., "en", "tl").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets the trailing silence that commits an utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs caps how much audio accumulates before a flush is
// forced.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithVoiceThresholdDB sets the dBFS level above which a chunk counts as
// speech for segmentation.
func WithVoiceThresholdDB(db float64) Option {
	return func(p *Provider) { p.voiceThresholdDB = db }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	voiceThresholdDB    float64
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		voiceThresholdDB:    defaultVoiceThresholdDB,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No connection is made until the first
// utterance is committed, so the only failure is an already-cancelled ctx.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		// whisper.cpp takes bare ISO 639-1 codes.
		lang = lang[:i]
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		p:          p,
		language:   lang,
		sampleRate: sr,
		channels:   ch,
		prompt:     promptFor(cfg.Keywords),
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 64),
		finals:     make(chan stt.Transcript, 64),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(context.WithoutCancel(ctx))

	return s, nil
}

// ── session ──

type session struct {
	p          *Provider
	language   string
	sampleRate int
	channels   int

	promptMu sync.Mutex
	prompt   string

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	case s.audioCh <- chunk:
		return nil
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

// SetKeywords replaces the prompt used for subsequent utterances.
func (s *session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.promptMu.Lock()
	s.prompt = promptFor(keywords)
	s.promptMu.Unlock()
	return nil
}

// Close flushes the buffered utterance, then closes the transcript channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop owns all segmentation state.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
		offset    time.Duration // stream time at the start of buffer
		streamPos time.Duration
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.p.maxBufferDurationMs * bytesPerMs

	flush := func() {
		pcm, start := buffer, offset
		speech := hadSpeech
		buffer, hadSpeech, silenceMs = nil, false, 0
		offset = streamPos
		if len(pcm) == 0 || !speech {
			return
		}

		fc, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		res, err := s.infer(fc, pcm)
		if err != nil {
			slog.Warn("whisper: inference failed, dropping utterance", "err", err)
			return
		}
		if res.text == "" {
			return
		}
		t := stt.Transcript{
			Text:       res.text,
			Confidence: res.confidence,
			Timestamp:  start,
			Duration:   time.Duration(len(pcm)/bytesPerMs) * time.Millisecond,
		}
		s.partials <- t
		t.IsFinal = true
		s.finals <- t
	}

	for {
		select {
		case <-s.done:
			// Drain audio queued before Close.
			for {
				select {
				case chunk := <-s.audioCh:
					buffer = append(buffer, chunk...)
				default:
					flush()
					return
				}
			}

		case chunk := <-s.audioCh:
			chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)
			streamPos += time.Duration(chunkMs) * time.Millisecond

			if audio.Level(chunk) <= s.p.voiceThresholdDB {
				if !hadSpeech {
					// Leading silence is discarded.
					offset = streamPos
					continue
				}
				silenceMs += chunkMs
				buffer = append(buffer, chunk...)
				if silenceMs >= s.p.silenceThresholdMs {
					flush()
				}
				continue
			}
			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, chunk...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				flush()
			}
		}
	}
}

type inferResult struct {
	text       string
	confidence float64
}

// inferenceResponse is the verbose_json reply of the whisper.cpp server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// infer POSTs pcm as a WAV upload and returns the trimmed text plus a
// confidence derived from the segments' mean log-probability.
func (s *session) infer(ctx context.Context, pcm []byte) (inferResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return inferResult{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, s.sampleRate, s.channels)); err != nil {
		return inferResult{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	s.promptMu.Lock()
	prompt := s.prompt
	s.promptMu.Unlock()

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return inferResult{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return inferResult{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return inferResult{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return inferResult{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return inferResult{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return inferResult{}, fmt.Errorf("whisper: parse response: %w", err)
	}
	return inferResult{text: strings.TrimSpace(out.Text), confidence: segmentConfidence(out)}, nil
}

// ── helpers ──

// segmentConfidence averages exp(avg_logprob) over segments that report it.
func segmentConfidence(r inferenceResponse) float64 {
	var sum float64
	var n int
	for _, seg := range r.Segments {
		if seg.AvgLogprob == nil {
			continue
		}
		sum += math.Exp(*seg.AvgLogprob)
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Min(1, sum/float64(n))
}

func promptFor(keywords []stt.KeywordBoost) string {
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, " ")
}

// encodeWAV wraps 16-bit little-endian PCM in a RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// chunkDurationMs returns the length of chunk in milliseconds.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * (bitsPerSample / 8))
}
