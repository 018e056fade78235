package scoring

// Band is the qualitative label for an average score.
type Band string

const (
	BandExcellent        Band = "Excellent"
	BandVeryGood         Band = "Very Good"
	BandGood             Band = "Good"
	BandFair             Band = "Fair"
	BandNeedsImprovement Band = "Needs Improvement"
)

// BandFor maps a 0–100 score to its band. A score on a boundary belongs to
// the better band, so 90 is Excellent.
func BandFor(score int) Band {
	switch {
	case score >= 90:
		return BandExcellent
	case score >= 80:
		return BandVeryGood
	case score >= 70:
		return BandGood
	case score >= 60:
		return BandFair
	default:
		return BandNeedsImprovement
	}
}

// Remark returns the fixed feedback line shown to the student for b.
func (b Band) Remark() string {
	switch b {
	case BandExcellent:
		return "Excellent reading! Every word came through clearly."
	case BandVeryGood:
		return "Very good! Just a few words to polish."
	case BandGood:
		return "Good job. Keep practicing the harder words."
	case BandFair:
		return "Fair try. Read slowly and say each sound."
	default:
		return "Let's practice this one again together."
	}
}

// Rank orders bands from worst (0) to best (4).
func (b Band) Rank() int {
	switch b {
	case BandExcellent:
		return 4
	case BandVeryGood:
		return 3
	case BandGood:
		return 2
	case BandFair:
		return 1
	default:
		return 0
	}
}
