package reading

import (
	"strconv"
	"strings"
	"unicode"
)

// Token is one normalized word with its approximate phoneme units.
type Token struct {
	Word     string
	Phonemes []string
}

// Words returns the bare word strings of tokens.
func Words(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Word
	}
	return out
}

// Normalize lowercases text, strips characters the profile does not read,
// splits it into tokens, and attaches phoneme units. Empty input yields nil.
func Normalize(text string, p Profile) []Token {
	if p.IsMath() {
		return normalizeMath(text)
	}
	var out []Token
	for _, w := range splitLetters(text) {
		out = append(out, Token{Word: w, Phonemes: Phonemes(w, p)})
	}
	return out
}

// splitLetters returns the lowercase letter runs of text. Accented vowels are
// folded to their base letter; ñ is kept as a letter of its own.
func splitLetters(text string) []string {
	var (
		words []string
		b     strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		r = foldAccent(r)
		if isLetter(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return words
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || r == 'ñ'
}

func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'â', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'í', 'ì', 'î', 'ï':
		return 'i'
	case 'ó', 'ò', 'ô', 'ö':
		return 'o'
	case 'ú', 'ù', 'û', 'ü':
		return 'u'
	}
	return r
}

// ── math ──

// normalizeMath keeps digit runs and operator symbols. Spelled-out numbers
// and operators (English and Filipino) are converted so "five plus three"
// and "5 + 3" normalize identically. Other words are dropped.
func normalizeMath(text string) []Token {
	var raw []string
	var num strings.Builder
	var word strings.Builder
	flushNum := func() {
		if num.Len() > 0 {
			raw = append(raw, num.String())
			num.Reset()
		}
	}
	flushWord := func() {
		if word.Len() > 0 {
			raw = append(raw, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsDigit(r):
			flushWord()
			num.WriteRune(r)
		case isLetter(foldAccent(r)):
			flushNum()
			word.WriteRune(foldAccent(r))
		case r == ',' && num.Len() > 0:
			// thousands separator
		default:
			flushNum()
			flushWord()
			if op, ok := operatorSymbol(string(r)); ok {
				raw = append(raw, op)
			}
		}
	}
	flushNum()
	flushWord()

	var out []Token
	for i := 0; i < len(raw); i++ {
		w := raw[i]
		if isDigits(w) {
			out = append(out, numberToken(w))
			continue
		}
		if op, ok := operatorSymbol(w); ok {
			out = append(out, Token{Word: op, Phonemes: []string{op}})
			continue
		}
		if n, ok := numberWords[w]; ok {
			// "twenty one" → 21
			if n >= 20 && n%10 == 0 && i+1 < len(raw) {
				if u, ok := numberWords[raw[i+1]]; ok && u > 0 && u < 10 {
					n += u
					i++
				}
			}
			out = append(out, numberToken(strconv.Itoa(n)))
		}
	}
	return out
}

// numberToken strips leading zeros so "08" and "8" compare equal.
func numberToken(digits string) Token {
	n := strings.TrimLeft(digits, "0")
	if n == "" {
		n = "0"
	}
	return Token{Word: n, Phonemes: []string{n}}
}

func operatorSymbol(s string) (string, bool) {
	switch s {
	case "+", "plus", "dagdag", "at":
		return "+", true
	case "-", "−", "minus", "bawas", "less":
		return "-", true
	case "×", "*", "x", "times", "multiplied", "beses":
		return "×", true
	case "÷", "/", "divided", "over", "hati":
		return "÷", true
	case "=", "equals", "is", "ay":
		return "=", true
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

var numberWords = map[string]int{
	// English
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90, "hundred": 100,
	// Filipino
	"wala": 0, "isa": 1, "dalawa": 2, "tatlo": 3, "apat": 4, "lima": 5,
	"anim": 6, "pito": 7, "walo": 8, "siyam": 9, "sampu": 10,
	// Spanish-derived counting common in Filipino classrooms
	"uno": 1, "dos": 2, "tres": 3, "kuwatro": 4, "kwatro": 4, "singko": 5,
	"sais": 6, "siyete": 7, "otso": 8, "nuwebe": 9, "diyes": 10,
}
