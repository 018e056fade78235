package reading

import (
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// ExactThreshold is the minimum similarity for an exact word match.
	ExactThreshold = 95.0

	// SoftThreshold is the minimum similarity for a partial word match.
	SoftThreshold = 60.0

	// SoftWeight is the credit a soft match earns towards word accuracy.
	SoftWeight = 0.6

	// alignWindow is how far, in words, a recognized word may sit from the
	// expected position and still be considered.
	alignWindow = 2
)

// MatchKind classifies how well an expected word was read.
type MatchKind int

const (
	Miss MatchKind = iota
	Soft
	Exact
)

// String returns the match kind name.
func (k MatchKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Soft:
		return "soft"
	default:
		return "miss"
	}
}

// WordMatch is the alignment outcome for one expected word.
type WordMatch struct {
	Expected   string
	Recognized string // best candidate, possibly two recognized words joined
	Similarity float64
	Kind       MatchKind
}

// Alignment is the result of aligning a recognized reading with its target.
type Alignment struct {
	Matches []WordMatch
	Exact   int
	Soft    int
	Missed  int
}

// Total is the number of expected words.
func (a Alignment) Total() int { return len(a.Matches) }

// WordAccuracy is (exact + 0.6·soft) / total × 100, or 0 with no expected
// words.
func (a Alignment) WordAccuracy() float64 {
	if a.Total() == 0 {
		return 0
	}
	return (float64(a.Exact) + SoftWeight*float64(a.Soft)) / float64(a.Total()) * 100
}

// Completeness is the share of expected words that were matched at all.
func (a Alignment) Completeness() float64 {
	if a.Total() == 0 {
		return 0
	}
	return float64(a.Exact+a.Soft) / float64(a.Total()) * 100
}

// Similarity returns max(0, len(expected) − editDistance) / len(expected) × 100,
// with lengths in runes. It is 100 only for identical strings and 0 when
// expected is empty.
func Similarity(expected, recognized string) float64 {
	n := utf8.RuneCountInString(expected)
	if n == 0 {
		return 0
	}
	d := matchr.Levenshtein(expected, recognized)
	return math.Max(0, float64(n-d)) / float64(n) * 100
}

// Align pairs each expected word with the closest recognized candidate in the
// window [i-2, i+2]. Candidates are single recognized words and adjacent
// recognized pairs joined without a space, which catches a word the
// recognizer split in two ("nag laro" for "naglalaro"). For English, a word
// that misses on spelling but shares its primary Double Metaphone code with
// the candidate is credited as a soft match.
func Align(expected, recognized []Token, p Profile) Alignment {
	a := Alignment{Matches: make([]WordMatch, 0, len(expected))}
	for i, exp := range expected {
		m := WordMatch{Expected: exp.Word}
		best := -1
		for _, cand := range candidates(recognized, i) {
			d := matchr.Levenshtein(exp.Word, cand)
			if best < 0 || d < best {
				best = d
				m.Recognized = cand
			}
		}
		if best >= 0 {
			m.Similarity = Similarity(exp.Word, m.Recognized)
		}

		switch {
		case m.Similarity >= ExactThreshold:
			m.Kind = Exact
			a.Exact++
		case m.Similarity >= SoftThreshold:
			m.Kind = Soft
			a.Soft++
		case p == ProfileEnglish && best >= 0 && soundsAlike(exp.Word, m.Recognized):
			m.Kind = Soft
			a.Soft++
		default:
			a.Missed++
		}
		a.Matches = append(a.Matches, m)
	}
	return a
}

func candidates(recognized []Token, i int) []string {
	lo := max(0, i-alignWindow)
	hi := min(len(recognized)-1, i+alignWindow)
	var out []string
	for j := lo; j <= hi; j++ {
		out = append(out, recognized[j].Word)
		if j+1 <= hi {
			out = append(out, recognized[j].Word+recognized[j+1].Word)
		}
	}
	return out
}

func soundsAlike(a, b string) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	pa, _ := matchr.DoubleMetaphone(a)
	pb, _ := matchr.DoubleMetaphone(b)
	return pa != "" && pa == pb
}

// PhonemeAccuracy compares the flattened phoneme sequences positionally. The
// expected unit at i matches when the recognized unit at i-1, i, or i+1 is
// equal to it. The result is matches / expected units × 100, or 0 when there
// are no expected units.
func PhonemeAccuracy(expected, recognized []Token) float64 {
	exp := flattenPhonemes(expected)
	if len(exp) == 0 {
		return 0
	}
	rec := flattenPhonemes(recognized)
	matches := 0
	for i, ph := range exp {
		for _, j := range [3]int{i, i - 1, i + 1} {
			if j >= 0 && j < len(rec) && rec[j] == ph {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(exp)) * 100
}
