package reading

import "strings"

var digraphs = map[Profile][]string{
	ProfileFilipino: {"ng", "ny", "ts"},
	ProfileEnglish:  {"ch", "sh", "th", "ph", "ng", "ck", "wh", "qu"},
}

// Phonemes approximates the sound units of a lowercase word:
//
//   - a run of vowels becomes one uppercase unit ("ai" → "AI");
//   - a known digraph of the profile becomes one unit ("ng" → "NG");
//   - any other run of consonants is uppercased as one unit ("gl" → "GL").
//
// The math profile has no letter-to-sound step; the word is its own unit.
func Phonemes(word string, p Profile) []string {
	if word == "" {
		return nil
	}
	if p.IsMath() {
		return []string{word}
	}

	rs := []rune(word)
	var (
		out  []string
		cons []rune
	)
	flushCons := func() {
		if len(cons) > 0 {
			out = append(out, strings.ToUpper(string(cons)))
			cons = cons[:0]
		}
	}

	for i := 0; i < len(rs); {
		if isVowel(rs, i, p) {
			flushCons()
			j := i
			for j < len(rs) && isVowel(rs, j, p) {
				j++
			}
			out = append(out, strings.ToUpper(string(rs[i:j])))
			i = j
			continue
		}
		if dg, ok := digraphAt(rs, i, p); ok {
			flushCons()
			out = append(out, strings.ToUpper(dg))
			i += 2
			continue
		}
		cons = append(cons, rs[i])
		i++
	}
	flushCons()
	return out
}

func isVowel(rs []rune, i int, p Profile) bool {
	switch rs[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	case 'y':
		// English "y" is a vowel sound except word-initially ("yes" vs "happy").
		return p == ProfileEnglish && i > 0
	}
	return false
}

func digraphAt(rs []rune, i int, p Profile) (string, bool) {
	if i+1 >= len(rs) {
		return "", false
	}
	pair := string(rs[i : i+2])
	for _, d := range digraphs[p] {
		if d == pair {
			return d, true
		}
	}
	return "", false
}

// flattenPhonemes concatenates the phoneme units of tokens in order.
func flattenPhonemes(tokens []Token) []string {
	var out []string
	for _, t := range tokens {
		out = append(out, t.Phonemes...)
	}
	return out
}
