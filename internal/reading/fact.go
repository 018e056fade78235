package reading

import (
	"strconv"
)

// EvaluateFact computes the answer to a single-operation arithmetic fact such
// as "5 + 3", "12 ÷ 4 =", or "seven times six". Division must be exact.
// ok is false for anything that is not "number operator number".
func EvaluateFact(text string) (answer string, ok bool) {
	toks := Normalize(text, ProfileMath)
	if n := len(toks); n > 0 && toks[n-1].Word == "=" {
		toks = toks[:n-1]
	}
	if len(toks) != 3 {
		return "", false
	}
	a, errA := strconv.Atoi(toks[0].Word)
	b, errB := strconv.Atoi(toks[2].Word)
	if errA != nil || errB != nil {
		return "", false
	}

	var v int
	switch toks[1].Word {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "×":
		v = a * b
	case "÷":
		if b == 0 || a%b != 0 {
			return "", false
		}
		v = a / b
	default:
		return "", false
	}
	return strconv.Itoa(v), true
}

// RecognizedAnswer picks the answer out of a recognized math response: the
// last number spoken, so "five plus three is eight" yields "8".
func RecognizedAnswer(text string) (string, bool) {
	return lastNumber(Normalize(text, ProfileMath))
}

func lastNumber(toks []Token) (string, bool) {
	for i := len(toks) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(toks[i].Word); err == nil {
			return toks[i].Word, true
		}
	}
	return "", false
}
