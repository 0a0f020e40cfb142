package usecase

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimilarity_IdenticalNames(t *testing.T) {
	if got := Similarity("Jon Smith", nil, "Jon Smith", nil); !almostEqual(got, 1) {
		t.Fatalf("expected 1.0 for identical names, got %f", got)
	}
}

func TestSimilarity_CaseAndWhitespaceInsensitive(t *testing.T) {
	if got := Similarity("  JON   smith ", nil, "jon smith", nil); !almostEqual(got, 1) {
		t.Fatalf("expected 1.0 after normalization, got %f", got)
	}
}

func TestSimilarity_DiacriticsFolded(t *testing.T) {
	if got := Similarity("Ana García", nil, "Ana Garcia", nil); !almostEqual(got, 1) {
		t.Fatalf("expected 1.0 after diacritic folding, got %f", got)
	}
}

func TestSimilarity_NameEditDistanceRatio(t *testing.T) {
	// One substitution over four runes: 1 - 1/4.
	if got := Similarity("abcd", nil, "abcx", nil); !almostEqual(got, 0.75) {
		t.Fatalf("expected 0.75, got %f", got)
	}
}

func TestSimilarity_SharedAttributeBonuses(t *testing.T) {
	rec := map[string]string{"birth_date": "1990-01-01", "country": "England"}

	// Both shared attributes match: full bonus on top of the name weight.
	ent := map[string]string{"birth_date": "1990-01-01", "country": "England"}
	if got := Similarity("Jon Smith", rec, "Jon Smith", ent); !almostEqual(got, 1) {
		t.Fatalf("expected 1.0 with full bonuses, got %f", got)
	}

	// One of two shared attributes matches: 0.8 + 0.2*(1/2).
	ent = map[string]string{"birth_date": "1990-01-01", "country": "Wales"}
	if got := Similarity("Jon Smith", rec, "Jon Smith", ent); !almostEqual(got, 0.9) {
		t.Fatalf("expected 0.9 with half bonuses, got %f", got)
	}

	// No shared attributes match: name weight only.
	ent = map[string]string{"birth_date": "1985-05-05", "country": "Wales"}
	if got := Similarity("Jon Smith", rec, "Jon Smith", ent); !almostEqual(got, 0.8) {
		t.Fatalf("expected 0.8 with zero bonuses, got %f", got)
	}
}

func TestSimilarity_AttributesOnlyCountWhenBothSidesCarryThem(t *testing.T) {
	rec := map[string]string{"birth_date": "1990-01-01"}

	// The entity side has no birth date: score falls back to the name
	// ratio alone rather than penalizing the missing attribute.
	if got := Similarity("Jon Smith", rec, "Jon Smith", nil); !almostEqual(got, 1) {
		t.Fatalf("expected 1.0 when no attribute is shared, got %f", got)
	}
}

func TestSimilarity_EmptyNamesScoreZero(t *testing.T) {
	if got := Similarity("", nil, "Jon Smith", nil); got != 0 {
		t.Fatalf("expected 0 for empty name, got %f", got)
	}
}

func TestSimilarity_UnrelatedNamesScoreLow(t *testing.T) {
	got := Similarity("Borussia Dortmund", nil, "Real Madrid", nil)
	if got > 0.5 {
		t.Fatalf("expected low score for unrelated names, got %f", got)
	}
}
