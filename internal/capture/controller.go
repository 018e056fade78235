package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/basa-ph/basa/internal/reading"
	"github.com/basa-ph/basa/internal/scoring"
	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/provider/stt"
	"github.com/basa-ph/basa/pkg/provider/vad"
)

// Defaults for [NewController].
const (
	DefaultRestartDelay   = 250 * time.Millisecond
	DefaultFlushTimeout   = 3 * time.Second
	DefaultFrameMs        = 20
	DefaultVoiceThreshold = -50.0

	highlightBoost = 2.0
)

// Option configures a [Controller].
type Option func(*Controller)

// WithRestartDelay sets the pause before a recognizer that ended on its own
// is restarted.
func WithRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.restartDelay = d }
}

// WithSilenceRun sets the minimum pause counted against fluency.
func WithSilenceRun(d time.Duration) Option {
	return func(c *Controller) { c.silenceRun = d }
}

// WithVoiceThreshold sets the dBFS level above which a frame is voiced.
func WithVoiceThreshold(db float64) Option {
	return func(c *Controller) { c.voiceThreshold = db }
}

// WithFrameMs sets the frame size passed to the VAD engine.
func WithFrameMs(ms int) Option {
	return func(c *Controller) { c.frameMs = ms }
}

// WithFlushTimeout bounds how long Finalizing waits for the recognizer to
// deliver its last transcript after a stop.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Controller) { c.flushTimeout = d }
}

// WithStreamConfig sets the base recognizer configuration. Sample rate and
// channels left at zero are taken from the microphone stream.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Controller) { c.streamCfg = cfg }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the wall clock used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller drives capture attempts. Create one with [NewController].
//
// All methods are safe for concurrent use.
type Controller struct {
	mic    audio.Microphone
	stt    stt.Provider
	vad    vad.Engine
	scorer Scorer

	restartDelay   time.Duration
	silenceRun     time.Duration
	voiceThreshold float64
	frameMs        int
	flushTimeout   time.Duration
	streamCfg      stt.StreamConfig
	metrics        Metrics
	now            func() time.Time

	mu      sync.Mutex
	state   State
	hyp     Hypothesis
	result  Result
	stopCh  chan struct{}
	stopped bool
	done    chan struct{}
}

// NewController returns an idle controller.
func NewController(mic audio.Microphone, recognizer stt.Provider, engine vad.Engine, scorer Scorer, opts ...Option) *Controller {
	c := &Controller{
		mic:            mic,
		stt:            recognizer,
		vad:            engine,
		scorer:         scorer,
		restartDelay:   DefaultRestartDelay,
		silenceRun:     DefaultSilenceRun,
		voiceThreshold: DefaultVoiceThreshold,
		frameMs:        DefaultFrameMs,
		flushTimeout:   DefaultFlushTimeout,
		metrics:        noopMetrics{},
		now:            time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Hypothesis returns the transcript buffered so far.
func (c *Controller) Hypothesis() Hypothesis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hyp
}

// Start begins an attempt on item. It is only valid from Idle. On failure to
// acquire the microphone, VAD, or recognizer, everything acquired so far is
// released, the controller moves to Error, and the returned error wraps
// [ErrDevice]. ctx bounds the whole attempt.
func (c *Controller) Start(ctx context.Context, item reading.Item) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateListening
	c.hyp = Hypothesis{}
	c.result = Result{}
	c.stopCh = make(chan struct{})
	c.stopped = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	a, err := c.acquire(ctx, item)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.result = Result{Item: item, Err: err}
		close(c.done)
		c.mu.Unlock()
		c.metrics.RecordCaptureAttempt(ctx, string(item.Profile), "error")
		slog.Error("capture start failed", "card", item.Text, "err", err)
		return err
	}

	slog.Debug("capture listening", "card", item.Text, "format", a.stream.Format().String())
	go c.run(ctx, a)
	return nil
}

// Stop asks the attempt to finish. The recognizer is closed so it can flush
// its last transcript, then the attempt is scored. Stop is a no-op outside
// Listening or when already requested.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateListening || c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}

// Wait blocks until the current attempt ends and returns its result. The
// error is the result's Err. Wait on a controller that never started returns
// immediately with ErrNotIdle.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return Result{}, ErrNotIdle
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.result.Err
}

// Reset re-arms the controller for the next card: it returns to Idle and
// clears the buffered hypothesis, timing, and result. It fails with
// [ErrBusy] while Listening or Finalizing.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateListening || c.state == StateFinalizing {
		return ErrBusy
	}
	c.state = StateIdle
	c.hyp = Hypothesis{}
	c.result = Result{}
	c.stopCh = nil
	c.stopped = false
	c.done = nil
	return nil
}

// ── attempt ──

// attempt is the state of one capture, owned by the run goroutine.
type attempt struct {
	item    reading.Item
	started time.Time

	stream  audio.Stream
	frames  <-chan audio.AudioFrame
	convert bool
	vad     vad.SessionHandle
	sess    stt.SessionHandle
	cfg     stt.StreamConfig
	monitor *Monitor
	buf     hypothesisBuffer

	partials <-chan stt.Transcript
	finals   <-chan stt.Transcript

	manualStop bool
	finalized  bool
	restarts   int
}

func (c *Controller) acquire(ctx context.Context, item reading.Item) (*attempt, error) {
	a := &attempt{item: item, started: c.now(), monitor: NewMonitor(c.silenceRun)}

	stream, err := c.mic.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open microphone: %w", ErrDevice, err)
	}
	a.stream = stream
	a.frames = stream.Frames()
	format := stream.Format()
	if target := c.targetFormat(format); target != format {
		a.frames = audio.ConvertStream(a.frames, target)
		format = target
		a.convert = true
	}

	vs, err := c.vad.NewSession(vad.Config{
		SampleRate:  format.SampleRate,
		FrameSizeMs: c.frameMs,
		ThresholdDB: c.voiceThreshold,
	})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("%w: start voice detection: %w", ErrDevice, err)
	}
	a.vad = vs

	a.cfg = c.streamConfig(format, item)
	if err := a.startRecognizer(ctx, c.stt); err != nil {
		a.release()
		return nil, fmt.Errorf("%w: start recognizer: %w", ErrDevice, err)
	}
	return a, nil
}

// targetFormat is the format recognizers and the VAD receive: the
// configured stream format where set, the microphone's otherwise.
func (c *Controller) targetFormat(src audio.Format) audio.Format {
	f := src
	if c.streamCfg.SampleRate > 0 {
		f.SampleRate = c.streamCfg.SampleRate
	}
	if c.streamCfg.Channels > 0 {
		f.Channels = c.streamCfg.Channels
	}
	return f
}

func (c *Controller) streamConfig(format audio.Format, item reading.Item) stt.StreamConfig {
	cfg := c.streamCfg
	if cfg.SampleRate == 0 {
		cfg.SampleRate = format.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = format.Channels
	}
	cfg.Keywords = append([]stt.KeywordBoost(nil), cfg.Keywords...)
	for _, h := range item.Highlights {
		if h = strings.TrimSpace(h); h != "" {
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: h, Boost: highlightBoost})
		}
	}
	return cfg
}

func (a *attempt) startRecognizer(ctx context.Context, p stt.Provider) error {
	sess, err := p.StartStream(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.sess = sess
	a.partials = sess.Partials()
	a.finals = sess.Finals()
	return nil
}

// closeRecognizer closes the current STT session, if any. Its channels stay
// attached so a flushed final can still arrive.
func (a *attempt) closeRecognizer() {
	if a.sess == nil {
		return
	}
	if err := a.sess.Close(); err != nil {
		slog.Debug("capture: close recognizer", "err", err)
	}
	a.sess = nil
}

// release frees every resource held by the attempt.
func (a *attempt) release() {
	a.closeRecognizer()
	if a.vad != nil {
		if err := a.vad.Close(); err != nil {
			slog.Debug("capture: close vad", "err", err)
		}
		a.vad = nil
	}
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			slog.Debug("capture: close microphone", "err", err)
		}
		a.stream = nil
	}
	if a.convert {
		// Unblock the converter if it is still sending after the stream closed.
		go audio.Drain(a.frames)
		a.convert = false
	}
	a.frames = nil
}

func (a *attempt) recognizerEnded() bool {
	return a.partials == nil && a.finals == nil
}

// ── run loop ──

func (c *Controller) run(ctx context.Context, a *attempt) {
	c.mu.Lock()
	stopCh := c.stopCh
	c.mu.Unlock()

	frames := a.frames
	var (
		restartTimer *time.Timer
		restartC     <-chan time.Time
		flushTimer   *time.Timer
		flushC       <-chan time.Time
	)
	defer func() {
		if restartTimer != nil {
			restartTimer.Stop()
		}
		if flushTimer != nil {
			flushTimer.Stop()
		}
	}()

	requestStop := func() {
		if a.manualStop {
			return
		}
		a.manualStop = true
		stopCh = nil
		frames = nil
		if restartTimer != nil {
			restartTimer.Stop()
			restartC = nil
		}
		a.closeRecognizer()
		flushTimer = time.NewTimer(c.flushTimeout)
		flushC = flushTimer.C
	}

	for !a.finalized {
		if a.recognizerEnded() && a.sess == nil && a.manualStop {
			c.finalize(ctx, a, nil)
			return
		}

		select {
		case <-ctx.Done():
			c.finalize(ctx, a, ctx.Err())
			return

		case <-stopCh:
			requestStop()

		case f, ok := <-frames:
			if !ok {
				slog.Debug("capture: microphone stream ended", "card", a.item.Text)
				requestStop()
				continue
			}
			c.onFrame(a, f)

		case t, ok := <-a.partials:
			if !ok {
				a.partials = nil
				c.onRecognizerMaybeEnded(ctx, a, &restartTimer, &restartC)
				continue
			}
			a.buf.partial(t)
			c.publish(a)

		case t, ok := <-a.finals:
			if !ok {
				a.finals = nil
				c.onRecognizerMaybeEnded(ctx, a, &restartTimer, &restartC)
				continue
			}
			a.buf.final(t)
			c.publish(a)

		case <-restartC:
			restartC = nil
			if a.manualStop {
				continue
			}
			a.restarts++
			c.metrics.RecordCaptureRestart(ctx, string(a.item.Profile))
			if err := a.startRecognizer(ctx, c.stt); err != nil {
				slog.Error("capture: recognizer restart failed", "card", a.item.Text, "restarts", a.restarts, "err", err)
				c.finalize(ctx, a, fmt.Errorf("%w: restart recognizer: %w", ErrDevice, err))
				return
			}
			slog.Debug("capture: recognizer restarted", "card", a.item.Text, "restarts", a.restarts)

		case <-flushC:
			slog.Warn("capture: recognizer did not flush before timeout", "card", a.item.Text, "timeout", c.flushTimeout)
			c.finalize(ctx, a, nil)
			return
		}
	}
}

func (c *Controller) onFrame(a *attempt, f audio.AudioFrame) {
	ev, err := a.vad.ProcessFrame(f.Data)
	if err != nil {
		slog.Debug("capture: vad frame", "err", err)
	} else {
		a.monitor.Observe(f, ev)
	}
	if a.sess != nil {
		if err := a.sess.SendAudio(f.Data); err != nil {
			slog.Debug("capture: send audio", "err", err)
		}
	}
}

// onRecognizerMaybeEnded handles a transcript channel closing. Once both
// are closed the recognizer stream has ended: after a stop request the
// attempt finalizes on the next loop turn; otherwise a restart is scheduled.
func (c *Controller) onRecognizerMaybeEnded(ctx context.Context, a *attempt, timer **time.Timer, timerC *<-chan time.Time) {
	if !a.recognizerEnded() {
		return
	}
	a.closeRecognizer()
	if a.manualStop || a.finalized {
		return
	}
	slog.Debug("capture: recognizer ended on its own, scheduling restart", "card", a.item.Text, "delay", c.restartDelay)
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = time.NewTimer(c.restartDelay)
	*timerC = (*timer).C
}

func (c *Controller) publish(a *attempt) {
	h := a.buf.snapshot()
	c.mu.Lock()
	c.hyp = h
	c.mu.Unlock()
}

// finalize ends the attempt. Once it runs every later recognizer event is
// ignored. A nil cause scores the buffered hypothesis.
func (c *Controller) finalize(ctx context.Context, a *attempt, cause error) {
	a.finalized = true

	c.mu.Lock()
	c.state = StateFinalizing
	c.mu.Unlock()

	a.release()
	timing := a.monitor.Finish()
	hyp := a.buf.snapshot()

	res := Result{
		Item:       a.item,
		Hypothesis: hyp,
		Timing:     timing,
		Restarts:   a.restarts,
	}
	profile := string(a.item.Profile)
	next := StateScored
	outcome := "scored"

	switch {
	case cause != nil:
		res.Err = cause
		next = StateError
		outcome = "error"
	case strings.TrimSpace(hyp.Text) == "":
		res.Err = ErrNothingHeard
		next = StateIdle
		outcome = "nothing_heard"
	default:
		res.Score = c.scorer.Score(a.item, scoring.Input{
			Text:        hyp.Text,
			Confidence:  hyp.Confidence,
			SpeechStart: timing.SpeechStart,
			SpeechEnd:   timing.SpeechEnd,
			Silence:     timing.Silence,
		})
		res.Scored = true
		c.metrics.RecordSlideScore(context.WithoutCancel(ctx), profile, res.Score.AverageScore)
	}
	c.metrics.RecordCaptureAttempt(context.WithoutCancel(ctx), profile, outcome)

	slog.Info("capture attempt finished",
		"card", a.item.Text,
		"outcome", outcome,
		"transcript", hyp.Text,
		"restarts", a.restarts,
		"elapsed", c.now().Sub(a.started),
		"score", res.Score.AverageScore,
	)

	c.mu.Lock()
	c.state = next
	c.hyp = hyp
	c.result = res
	close(c.done)
	c.mu.Unlock()
}

// ── hypothesis buffer ──

// hypothesisBuffer joins committed finals across recognizer restarts with
// the latest pending partial and keeps the highest confidence seen.
type hypothesisBuffer struct {
	committed  []string
	pending    string
	confidence float64
}

func (b *hypothesisBuffer) partial(t stt.Transcript) {
	b.pending = strings.TrimSpace(t.Text)
	b.confidence = max(b.confidence, t.Confidence)
}

func (b *hypothesisBuffer) final(t stt.Transcript) {
	if text := strings.TrimSpace(t.Text); text != "" {
		b.committed = append(b.committed, text)
	}
	b.pending = ""
	b.confidence = max(b.confidence, t.Confidence)
}

func (b *hypothesisBuffer) snapshot() Hypothesis {
	parts := b.committed
	if b.pending != "" {
		parts = append(parts[:len(parts):len(parts)], b.pending)
	}
	return Hypothesis{Text: strings.Join(parts, " "), Confidence: b.confidence}
}
