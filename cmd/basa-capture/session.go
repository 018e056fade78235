package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/basa-ph/basa/internal/capture"
	"github.com/basa-ph/basa/internal/recorder"
	"github.com/basa-ph/basa/internal/scoring"
)

type command int

const (
	cmdRecord command = iota
	cmdStop
	cmdNext
	cmdPrev
	cmdSubmit
	cmdQuit
)

func parseCommand(s string) (command, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "record":
		return cmdRecord, true
	case "x", "stop":
		return cmdStop, true
	case "n", "next":
		return cmdNext, true
	case "p", "prev":
		return cmdPrev, true
	case "s", "submit":
		return cmdSubmit, true
	case "q", "quit":
		return cmdQuit, true
	}
	return 0, false
}

// batchCommands records every card once in order, then submits.
func batchCommands(cards int) <-chan command {
	out := make(chan command, 2*cards+1)
	for i := range cards {
		out <- cmdRecord
		if i < cards-1 {
			out <- cmdNext
		}
	}
	out <- cmdSubmit
	close(out)
	return out
}

// runSession applies cmds to rec and prints progress to w. The session is
// submitted on cmdSubmit or when cmds closes; cmdQuit and a cancelled ctx
// end it without submitting. While a card is being recorded, cmdStop ends
// the attempt early and every other command waits until the attempt is
// over.
func runSession(ctx context.Context, rec *recorder.Recorder, cmds <-chan command, w io.Writer, completed bool, feedback string) error {
	in := &commandQueue{cmds: cmds}
	showCard(w, rec)
	for {
		cmd, ok := in.next(ctx)
		if !ok {
			return nil
		}

		switch cmd {
		case cmdRecord:
			score, err := in.record(ctx, rec)
			if err != nil {
				fmt.Fprintf(w, "  %s\n", capture.UserMessage(err))
				if errors.Is(err, context.Canceled) {
					return nil
				}
				continue
			}
			fmt.Fprintf(w, "  heard %q\n  score %d (%s): %s\n", score.Transcription, score.AverageScore, score.Band, score.Remark)
		case cmdStop:
			fmt.Fprintln(w, "  not recording")
		case cmdNext:
			rec.Next()
			showCard(w, rec)
		case cmdPrev:
			rec.Prev()
			showCard(w, rec)
		case cmdQuit:
			fmt.Fprintln(w, "session discarded")
			return nil
		case cmdSubmit:
			resp, err := rec.Stop(ctx, completed, feedback)
			if err != nil {
				return err
			}
			if resp == nil {
				fmt.Fprintln(w, "no card was scored; nothing submitted")
				return nil
			}
			fmt.Fprintf(w, "submitted session %s\n  overall average %d\n  %s\n", resp.SessionID, resp.OverallAverage, resp.Remarks)
			if resp.MasteryAwarded {
				fmt.Fprintln(w, "  mastery level achieved!")
			}
			return nil
		}
	}
}

// commandQueue holds commands that arrived while a card was recording. A
// closed source reads as one final cmdSubmit.
type commandQueue struct {
	cmds    <-chan command
	pending []command
}

// next returns false only when ctx is done.
func (q *commandQueue) next(ctx context.Context) (command, bool) {
	if len(q.pending) > 0 {
		cmd := q.pending[0]
		q.pending = q.pending[1:]
		return cmd, true
	}
	select {
	case <-ctx.Done():
		return 0, false
	case cmd, ok := <-q.cmds:
		if !ok {
			return cmdSubmit, true
		}
		return cmd, true
	}
}

// record captures the current card, acting on cmdStop and queueing every
// other command until the attempt ends.
func (q *commandQueue) record(ctx context.Context, rec *recorder.Recorder) (scoring.SlideScore, error) {
	type outcome struct {
		score scoring.SlideScore
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		score, err := rec.CaptureCurrent(ctx)
		done <- outcome{score, err}
	}()

	for {
		select {
		case out := <-done:
			return out.score, out.err
		case cmd, ok := <-q.cmds:
			switch {
			case !ok:
				q.cmds = nil
				q.pending = append(q.pending, cmdSubmit)
			case cmd == cmdStop:
				rec.StopListening()
			default:
				q.pending = append(q.pending, cmd)
			}
		}
	}
}

func showCard(w io.Writer, rec *recorder.Recorder) {
	fmt.Fprintf(w, "card %d/%d: %s\n", rec.Index()+1, rec.Len(), rec.Current().Text)
}
