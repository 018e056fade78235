package reading_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basa-ph/basa/internal/reading"
)

func TestLoadDeckFromReader(t *testing.T) {
	t.Parallel()
	const src = `
subject: Filipino
cards:
  - text: "Ang bata ay naglalaro."
    highlights: ["ng"]
  - text: "5 + 3"
    profile: math
`
	d, err := reading.LoadDeckFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadDeckFromReader: %v", err)
	}
	if d.Profile != reading.ProfileFilipino {
		t.Errorf("deck profile = %q, want filipino from the subject", d.Profile)
	}
	if len(d.Cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(d.Cards))
	}
	if d.Cards[0].Profile != reading.ProfileFilipino || len(d.Cards[0].Highlights) != 1 {
		t.Errorf("card 0 = %+v", d.Cards[0])
	}
	if d.Cards[1].Profile != reading.ProfileMath {
		t.Errorf("card 1 profile = %q, want math", d.Cards[1].Profile)
	}
}

func TestLoadDeckFromReader_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no cards", "subject: English\ncards: []\n", "no cards"},
		{"blank text", "subject: English\ncards:\n  - text: \"  \"\n", "cards[0]: text is required"},
		{"bad profile", "cards:\n  - text: hi\n    profile: klingon\n", "cards[0]: profile \"klingon\" is invalid"},
		{"math without number", "profile: math\ncards:\n  - text: plus\n", "has no number"},
		{"unknown field", "subject: English\ncolour: red\ncards:\n  - text: hi\n", "colour"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := reading.LoadDeckFromReader(strings.NewReader(tc.src))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadDeck_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deck.yaml")
	if err := os.WriteFile(path, []byte("subject: Mathematics\ncards:\n  - text: \"2 x 4\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := reading.LoadDeck(path)
	if err != nil {
		t.Fatalf("LoadDeck: %v", err)
	}
	if d.Cards[0].Profile != reading.ProfileMath {
		t.Errorf("profile = %q, want math", d.Cards[0].Profile)
	}

	if _, err := reading.LoadDeck(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadDeck_Example(t *testing.T) {
	t.Parallel()
	d, err := reading.LoadDeck("../../configs/deck-example.yaml")
	if err != nil {
		t.Fatalf("example deck does not load: %v", err)
	}
	if len(d.Cards) != 4 || d.Cards[3].Profile != reading.ProfileMath {
		t.Errorf("deck = %+v", d)
	}
}
