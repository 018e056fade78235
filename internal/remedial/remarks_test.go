package remedial_test

import (
	"strings"
	"testing"

	"github.com/basa-ph/basa/internal/remedial"
)

func slide(pron, acc, wpm int) remedial.SlidePerformance {
	return remedial.SlidePerformance{Pronunciation: pron, Accuracy: acc, ReadingSpeedWPM: wpm}
}

func suggestionCount(remark string) int {
	n := 0
	for _, marker := range []string{" 1) ", " 2) ", " 3) ", " 4) "} {
		if strings.Contains(remark, marker) {
			n++
		}
	}
	return n
}

func TestBuildRemarks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		slides       []remedial.SlidePerformance
		math         bool
		contains     []string
		notContains  []string
		wantSuggests int
	}{
		{
			name:         "all strong",
			slides:       []remedial.SlidePerformance{slide(95, 90, 120), slide(88, 92, 100)},
			contains:     []string{"Strong in pronunciation (92), accuracy (91), and reading speed (100)", "next level"},
			notContains:  []string{"Needs more work"},
			wantSuggests: 1,
		},
		{
			name:         "weak speed only",
			slides:       []remedial.SlidePerformance{slide(90, 88, 40)},
			contains:     []string{"Strong in pronunciation (90) and accuracy (88)", "Needs more work on reading speed (40)", "timed re-readings"},
			wantSuggests: 1,
		},
		{
			name:         "all weak, weakest first",
			slides:       []remedial.SlidePerformance{slide(60, 40, 50)},
			contains:     []string{"Needs more work on accuracy (40), reading speed (50), and pronunciation (60)"},
			wantSuggests: 3,
		},
		{
			name:         "math says correctness",
			slides:       []remedial.SlidePerformance{slide(0, 0, 90)},
			math:         true,
			contains:     []string{"correctness (0)", "number facts"},
			notContains:  []string{"accuracy"},
			wantSuggests: 2,
		},
		{
			name:         "middle band",
			slides:       []remedial.SlidePerformance{slide(80, 80, 80)},
			contains:     []string{"Steady performance"},
			wantSuggests: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := remedial.BuildRemarks(tt.slides, tt.math, 100)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("remark %q missing %q", got, want)
				}
			}
			for _, bad := range tt.notContains {
				if strings.Contains(got, bad) {
					t.Errorf("remark %q must not contain %q", got, bad)
				}
			}
			if n := suggestionCount(got); n != tt.wantSuggests {
				t.Errorf("suggestions: got %d, want %d in %q", n, tt.wantSuggests, got)
			}
		})
	}
}

func TestBuildRemarks_Empty(t *testing.T) {
	if got := remedial.BuildRemarks(nil, false, 100); got == "" {
		t.Error("expected a remark for an empty session")
	}
}
