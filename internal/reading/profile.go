// Package reading turns expected and recognized text into comparable token
// sequences and scores how closely a reading matched its target.
//
// Text is normalized per [Profile]: letter profiles (English, Filipino) yield
// lowercase words with an approximate phoneme breakdown, while the math
// profile yields digits and operator symbols. [Align] pairs expected words
// with recognized words inside a small positional window and classifies each
// pair by edit-distance similarity; [PhonemeAccuracy] compares the flattened
// phoneme streams with one position of slack.
package reading

import (
	"fmt"
	"strings"
)

// Profile selects the normalization and letter-to-sound rules for a text.
type Profile string

const (
	ProfileEnglish  Profile = "english"
	ProfileFilipino Profile = "filipino"
	ProfileMath     Profile = "math"
)

// IsValid reports whether p is a known profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileEnglish, ProfileFilipino, ProfileMath:
		return true
	}
	return false
}

// IsMath reports whether p scores number facts instead of reading.
func (p Profile) IsMath() bool { return p == ProfileMath }

// ParseProfile accepts a profile name case-insensitively.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("reading: unknown profile %q; valid values: english, filipino, math", s)
	}
	return p, nil
}

// ProfileForSubject maps a subject name as stored by the school system to a
// profile. Unrecognised subjects default to English.
func ProfileForSubject(subject string) Profile {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "math"), strings.Contains(s, "numeracy"), strings.Contains(s, "matematika"):
		return ProfileMath
	case strings.Contains(s, "filipino"), strings.Contains(s, "tagalog"):
		return ProfileFilipino
	default:
		return ProfileEnglish
	}
}

// Item is one flashcard: the text the student is asked to read or answer.
type Item struct {
	Text string `yaml:"text" json:"text"`

	// Highlights are substrings the card emphasises (e.g., a target
	// digraph). They bias recognition but do not change scoring.
	Highlights []string `yaml:"highlights,omitempty" json:"highlights,omitempty"`

	Profile Profile `yaml:"profile" json:"profile"`
}

// Words returns the normalized expected tokens for the item.
func (it Item) Words() []Token {
	return Normalize(it.Text, it.Profile)
}

// ExpectedAnswer returns the answer a math card is looking for: the value of
// the fact when Text is an arithmetic expression, otherwise the last number
// in Text. ok is false when Text holds no number at all.
func (it Item) ExpectedAnswer() (answer string, ok bool) {
	if a, ok := EvaluateFact(it.Text); ok {
		return a, true
	}
	return lastNumber(Normalize(it.Text, ProfileMath))
}
