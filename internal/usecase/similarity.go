package usecase

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

// bonusAttributes are the attribute keys that strengthen a name match when
// both sides carry them with equal values.
var bonusAttributes = []string{"birth_date", "founded", "country"}

const (
	nameWeight  = 0.8
	bonusWeight = 0.2
)

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Similarity scores how likely two attribute sets describe the same
// real-world entity, in [0,1]. It is a pure function: a normalized
// Levenshtein ratio over folded names, blended with exact-match bonuses on
// shared discriminating attributes. When the two sides share no bonus
// attribute, the name ratio alone is the score.
func Similarity(recName string, recAttrs map[string]string, entName string, entAttrs map[string]string) float64 {
	name := nameRatio(recName, entName)

	shared, matched := 0, 0
	for _, key := range bonusAttributes {
		rv, rok := recAttrs[key]
		ev, eok := entAttrs[key]
		if !rok || !eok || rv == "" || ev == "" {
			continue
		}
		shared++
		if strings.EqualFold(strings.TrimSpace(rv), strings.TrimSpace(ev)) {
			matched++
		}
	}

	if shared == 0 {
		return clamp01(name)
	}

	score := nameWeight*name + bonusWeight*(float64(matched)/float64(shared))
	return clamp01(score)
}

func nameRatio(a, b string) float64 {
	fa := foldName(a)
	fb := foldName(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1
	}

	dist := levenshtein.ComputeDistance(fa, fb)
	longest := len([]rune(fa))
	if l := len([]rune(fb)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

func foldName(name string) string {
	folded, _, err := transform.String(diacriticFolder, name)
	if err != nil {
		folded = name
	}
	return record.NormalizedName(folded)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
