package remedial

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Remark thresholds on a 0–100 area score.
const (
	weakBelow     = 75
	strongAtLeast = 85

	maxSuggestions = 3
)

type area struct {
	name       string
	score      float64
	suggestion string
}

// BuildRemarks summarises a session's strong and weak areas and suggests up
// to three practice actions. The areas are mean pronunciation, mean accuracy
// (called correctness for math), and mean reading speed as a percentage of
// targetWPM capped at 100.
func BuildRemarks(slides []SlidePerformance, isMath bool, targetWPM int) string {
	if len(slides) == 0 {
		return "No flashcards were scored in this session."
	}
	if targetWPM <= 0 {
		targetWPM = 100
	}

	var pron, acc, speed float64
	for _, s := range slides {
		pron += float64(s.Pronunciation)
		acc += float64(s.Accuracy)
		speed += min(100, float64(s.ReadingSpeedWPM)/float64(targetWPM)*100)
	}
	n := float64(len(slides))

	accuracy := area{
		name:       "accuracy",
		score:      acc / n,
		suggestion: "Re-read the missed words with the teacher, pointing to each word while reading.",
	}
	if isMath {
		accuracy = area{
			name:       "correctness",
			score:      acc / n,
			suggestion: "Review the number facts answered incorrectly using counters or short drills.",
		}
	}
	areas := []area{
		{
			name:       "pronunciation",
			score:      pron / n,
			suggestion: "Practice sounding out each syllable slowly before reading the whole word.",
		},
		accuracy,
		{
			name:       "reading speed",
			score:      speed / n,
			suggestion: "Do short timed re-readings of familiar cards to build speed.",
		},
	}

	var strong, weak []area
	for _, a := range areas {
		switch {
		case a.score >= strongAtLeast:
			strong = append(strong, a)
		case a.score < weakBelow:
			weak = append(weak, a)
		}
	}
	slices.SortStableFunc(weak, func(a, b area) int { return cmp.Compare(a.score, b.score) })

	var b strings.Builder
	if len(strong) > 0 {
		fmt.Fprintf(&b, "Strong in %s. ", describe(strong))
	}
	if len(weak) > 0 {
		fmt.Fprintf(&b, "Needs more work on %s. ", describe(weak))
	}
	if len(strong) == 0 && len(weak) == 0 {
		b.WriteString("Steady performance across pronunciation, " + accuracy.name + ", and reading speed. ")
	}

	var suggestions []string
	for _, a := range weak {
		suggestions = append(suggestions, a.suggestion)
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "Move on to more challenging cards at the next level.")
		if len(strong) < len(areas) {
			suggestions = append(suggestions, "Keep a short daily reading routine to hold these gains.")
		}
	}
	suggestions = suggestions[:min(len(suggestions), maxSuggestions)]

	b.WriteString("Suggested practice:")
	for i, s := range suggestions {
		fmt.Fprintf(&b, " %d) %s", i+1, s)
	}
	return b.String()
}

func describe(areas []area) string {
	parts := make([]string, len(areas))
	for i, a := range areas {
		parts[i] = fmt.Sprintf("%s (%d)", a.name, int(math.Round(a.score)))
	}
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
