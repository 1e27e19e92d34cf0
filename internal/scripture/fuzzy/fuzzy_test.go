package fuzzy_test

import (
	"math"
	"testing"

	"github.com/MrWong99/lectern/internal/scripture/fuzzy"
)

func near(got, want float64) bool { return math.Abs(got-want) < 0.01 }

func TestEdit_Score(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"genesis", "genesis", 100},
		{"genisis", "genesis", 100 * (1 - 1.0/7)},
		{"jonn", "john", 75},
		{"mathew", "matthew", 100 * (1 - 1.0/7)},
		{"abc", "xyz", 0},
		{"", "", 100},
		{"", "ruth", 0},
	}
	for _, tc := range tests {
		if got := (fuzzy.Edit{}).Score(tc.a, tc.b); !near(got, tc.want) {
			t.Errorf("Edit.Score(%q, %q): got=%.2f, want %.2f", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEdit_Symmetric(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{{"genisis", "genesis"}, {"revelations", "revelation"}, {"banana", "nahum"}}
	for _, p := range pairs {
		ab := (fuzzy.Edit{}).Score(p[0], p[1])
		ba := (fuzzy.Edit{}).Score(p[1], p[0])
		if ab != ba {
			t.Errorf("Edit.Score not symmetric for %q/%q: %.2f vs %.2f", p[0], p[1], ab, ba)
		}
	}
}

func TestJaroWinkler_Score(t *testing.T) {
	t.Parallel()

	if got := (fuzzy.JaroWinkler{}).Score("john", "john"); got != 100 {
		t.Errorf("JaroWinkler.Score(john, john): got=%.2f, want 100", got)
	}
	if got := (fuzzy.JaroWinkler{}).Score("martha", "marhta"); got < 95 || got > 97 {
		t.Errorf("JaroWinkler.Score(martha, marhta): got=%.2f, want ~96.1", got)
	}
	if got := (fuzzy.JaroWinkler{}).Score("banana", "genesis"); got >= 80 {
		t.Errorf("JaroWinkler.Score(banana, genesis): got=%.2f, want < 80", got)
	}
}

func TestPhonetic_LiftsSoundAlikes(t *testing.T) {
	t.Parallel()
	p := fuzzy.NewPhonetic(fuzzy.Edit{})

	base := (fuzzy.Edit{}).Score("filipians", "philippians")
	if base >= 80 {
		t.Fatalf("precondition: Edit.Score(filipians, philippians) = %.2f, expected below 80", base)
	}
	got := p.Score("filipians", "philippians")
	if got < 80 {
		t.Errorf("Phonetic.Score(filipians, philippians): got=%.2f, want >= 80", got)
	}
	if got < base {
		t.Errorf("Phonetic.Score must never lower the base score: %.2f < %.2f", got, base)
	}
}

func TestPhonetic_LeavesShortInputsAlone(t *testing.T) {
	t.Parallel()
	p := fuzzy.NewPhonetic(nil)

	for _, pair := range [][2]string{{"is", "isaiah"}, {"jon", "john"}, {"act", "acts"}, {"look", "luke"}, {"jail", "joel"}} {
		want := (fuzzy.Edit{}).Score(pair[0], pair[1])
		if got := p.Score(pair[0], pair[1]); got != want {
			t.Errorf("Phonetic.Score(%q, %q): got=%.2f, want base %.2f", pair[0], pair[1], got, want)
		}
	}
}

func TestPhonetic_FloorRejectsDistantStrings(t *testing.T) {
	t.Parallel()
	strict := fuzzy.NewPhonetic(fuzzy.Edit{}, fuzzy.WithFloor(0.99))

	base := (fuzzy.Edit{}).Score("filipians", "philippians")
	if got := strict.Score("filipians", "philippians"); got != base {
		t.Errorf("Phonetic.Score with floor 0.99: got=%.2f, want base %.2f", got, base)
	}
}

func TestPhonetic_Exact(t *testing.T) {
	t.Parallel()
	if got := fuzzy.NewPhonetic(nil).Score("song of solomon", "song of solomon"); got != 100 {
		t.Errorf("Phonetic.Score(identical): got=%.2f, want 100", got)
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{"phonetic", false},
		{"edit", false},
		{"Jaro-Winkler", false},
		{"soundex", true},
	}
	for _, tc := range tests {
		s, err := fuzzy.ByName(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ByName(%q): expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("ByName(%q): unexpected error: %v", tc.name, err)
			continue
		}
		if got := s.Score("ruth", "ruth"); got != 100 {
			t.Errorf("ByName(%q).Score(ruth, ruth): got=%.2f, want 100", tc.name, got)
		}
	}
}
