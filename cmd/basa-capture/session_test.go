package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/basa-ph/basa/internal/api"
	"github.com/basa-ph/basa/internal/capture"
	"github.com/basa-ph/basa/internal/reading"
	"github.com/basa-ph/basa/internal/recorder"
	"github.com/basa-ph/basa/internal/resilience"
	"github.com/basa-ph/basa/internal/scoring"
)

// scriptedCapturer hands out one scripted result per Start.
type scriptedCapturer struct {
	results []capture.Result
	current *capture.Result
}

func (s *scriptedCapturer) Start(context.Context, reading.Item) error {
	s.current, s.results = &s.results[0], s.results[1:]
	return nil
}

func (s *scriptedCapturer) Stop() {}

func (s *scriptedCapturer) Reset() error {
	s.current = nil
	return nil
}

func (s *scriptedCapturer) Wait(context.Context) (capture.Result, error) {
	if s.current == nil {
		return capture.Result{}, capture.ErrNotIdle
	}
	return *s.current, s.current.Err
}

// listeningCapturer keeps every attempt listening until Stop is called.
type listeningCapturer struct {
	mu       sync.Mutex
	result   capture.Result
	active   bool
	stopped  chan struct{}
	stopOnce sync.Once
}

func (l *listeningCapturer) Start(context.Context, reading.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = true
	return nil
}

func (l *listeningCapturer) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

func (l *listeningCapturer) Wait(ctx context.Context) (capture.Result, error) {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	if !active {
		return capture.Result{}, capture.ErrNotIdle
	}
	select {
	case <-l.stopped:
		return l.result, nil
	case <-ctx.Done():
		return capture.Result{}, ctx.Err()
	}
}

func (l *listeningCapturer) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
	return nil
}

type captureSubmitter struct {
	got *api.SubmitRequest
}

func (c *captureSubmitter) SubmitSession(_ context.Context, req api.SubmitRequest) (*api.SubmitResponse, error) {
	c.got = &req
	return &api.SubmitResponse{OverallAverage: req.Slides[0].FlashcardIndex + 90, Remarks: "Mahusay."}, nil
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want command
		ok   bool
	}{
		{"r", cmdRecord, true},
		{"x", cmdStop, true},
		{"STOP", cmdStop, true},
		{" Next ", cmdNext, true},
		{"p", cmdPrev, true},
		{"submit", cmdSubmit, true},
		{"q", cmdQuit, true},
		{"dance", 0, false},
	}
	for _, tc := range tests {
		got, ok := parseCommand(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseCommand(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBatchCommands(t *testing.T) {
	var got []command
	for c := range batchCommands(2) {
		got = append(got, c)
	}
	want := []command{cmdRecord, cmdNext, cmdRecord, cmdSubmit}
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunSession_Batch(t *testing.T) {
	deck := []reading.Item{
		{Text: "ang bata", Profile: reading.ProfileFilipino},
		{Text: "ang aso", Profile: reading.ProfileFilipino},
	}
	ctrl := &scriptedCapturer{results: []capture.Result{
		{Err: capture.ErrNothingHeard},
		{Scored: true, Score: scoring.SlideScore{AverageScore: 88, Band: scoring.BandFor(88), Transcription: "ang aso"}},
	}}
	sub := &captureSubmitter{}
	rec, err := recorder.New(deck, ctrl, sub, recorder.Identifiers{StudentID: 7})
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runSession(context.Background(), rec, batchCommands(len(deck)), &out, false, ""); err != nil {
		t.Fatalf("runSession: %v", err)
	}

	if sub.got == nil || len(sub.got.Slides) != 1 || sub.got.Slides[0].FlashcardIndex != 1 {
		t.Fatalf("submitted %+v, want only card 1", sub.got)
	}
	for _, want := range []string{"card 1/2: ang bata", "Nothing was heard", "card 2/2: ang aso", "score 88", "overall average 91"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunSession_Quit(t *testing.T) {
	sub := &captureSubmitter{}
	rec, err := recorder.New([]reading.Item{{Text: "hi", Profile: reading.ProfileEnglish}}, &scriptedCapturer{}, sub, recorder.Identifiers{})
	if err != nil {
		t.Fatal(err)
	}
	cmds := make(chan command, 1)
	cmds <- cmdQuit

	var out bytes.Buffer
	if err := runSession(context.Background(), rec, cmds, &out, false, ""); err != nil {
		t.Fatalf("runSession: %v", err)
	}
	if sub.got != nil {
		t.Error("quit must not submit")
	}
	if !strings.Contains(out.String(), "session discarded") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunSession_StopEndsRecording(t *testing.T) {
	ctrl := &listeningCapturer{
		stopped: make(chan struct{}),
		result:  capture.Result{Scored: true, Score: scoring.SlideScore{AverageScore: 72, Band: scoring.BandFor(72), Transcription: "ang ba"}},
	}
	sub := &captureSubmitter{}
	rec, err := recorder.New([]reading.Item{{Text: "ang bata", Profile: reading.ProfileFilipino}}, ctrl, sub, recorder.Identifiers{StudentID: 7})
	if err != nil {
		t.Fatal(err)
	}

	// Submit is typed while the card is still listening; it must wait for
	// the stopped attempt instead of abandoning it.
	cmds := make(chan command, 3)
	cmds <- cmdRecord
	cmds <- cmdSubmit
	cmds <- cmdStop
	close(cmds)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	if err := runSession(ctx, rec, cmds, &out, false, ""); err != nil {
		t.Fatalf("runSession: %v", err)
	}

	if sub.got == nil || len(sub.got.Slides) != 1 || *sub.got.Slides[0].SlideAverage != 72 {
		t.Fatalf("submitted %+v, want the stopped card scored 72", sub.got)
	}
	if !strings.Contains(out.String(), "score 72") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunSession_StopWhileIdle(t *testing.T) {
	rec, err := recorder.New([]reading.Item{{Text: "hi", Profile: reading.ProfileEnglish}}, &scriptedCapturer{}, &captureSubmitter{}, recorder.Identifiers{})
	if err != nil {
		t.Fatal(err)
	}
	cmds := make(chan command, 2)
	cmds <- cmdStop
	cmds <- cmdQuit

	var out bytes.Buffer
	if err := runSession(context.Background(), rec, cmds, &out, false, ""); err != nil {
		t.Fatalf("runSession: %v", err)
	}
	if !strings.Contains(out.String(), "not recording") {
		t.Errorf("output = %q", out.String())
	}
}

func TestAnnounceServerState(t *testing.T) {
	var buf bytes.Buffer
	announce := announceServerState(&buf)
	announce("api", resilience.StateClosed, resilience.StateOpen)
	announce("api", resilience.StateOpen, resilience.StateHalfOpen)
	announce("api", resilience.StateHalfOpen, resilience.StateClosed)

	want := "! server unreachable; submissions paused for a moment\nserver reachable again\n"
	if buf.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", buf.String(), want)
	}
}
