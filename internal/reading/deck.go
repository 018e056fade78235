package reading

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Deck is a flashcard deck as stored in a deck YAML file.
//
// Example:
//
//	subject: Filipino
//	cards:
//	  - text: "Ang bata ay naglalaro."
//	    highlights: ["ng"]
//	  - text: "5 + 3"
//	    profile: math
//
// A card without a profile inherits the deck's Profile, which in turn
// defaults to [ProfileForSubject] of Subject.
type Deck struct {
	Subject string  `yaml:"subject"`
	Profile Profile `yaml:"profile,omitempty"`
	Cards   []Item  `yaml:"cards"`
}

// LoadDeck reads and parses a deck YAML file from disk.
func LoadDeck(path string) (*Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading: open deck %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadDeckFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading: parse deck %q: %w", path, err)
	}
	return d, nil
}

// LoadDeckFromReader parses deck YAML from r, fills in card profiles, and
// validates the result.
func LoadDeckFromReader(r io.Reader) (*Deck, error) {
	var d Deck
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("reading: decode deck yaml: %w", err)
	}

	if d.Profile == "" {
		d.Profile = ProfileForSubject(d.Subject)
	}
	var errs []error
	if !d.Profile.IsValid() {
		errs = append(errs, fmt.Errorf("profile %q is invalid", d.Profile))
	}
	if len(d.Cards) == 0 {
		errs = append(errs, errors.New("deck has no cards"))
	}
	for i := range d.Cards {
		c := &d.Cards[i]
		if c.Profile == "" {
			c.Profile = d.Profile
		}
		if strings.TrimSpace(c.Text) == "" {
			errs = append(errs, fmt.Errorf("cards[%d]: text is required", i))
		}
		if !c.Profile.IsValid() {
			errs = append(errs, fmt.Errorf("cards[%d]: profile %q is invalid", i, c.Profile))
		}
		if c.Profile.IsMath() {
			if _, ok := c.ExpectedAnswer(); !ok {
				errs = append(errs, fmt.Errorf("cards[%d]: math card %q has no number", i, c.Text))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("reading: invalid deck: %w", err)
	}
	return &d, nil
}
