package banmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinExamples(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"Ash", "Ash", 0},
		{"Ash", "Ashe", 1},
		{"", "Misty", 5},
		{"Brock", "", 5},
		{"kitten", "sitting", 3},
		{"ポケモン", "ポケモソ", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
		})
	}
}

func TestLevenshteinMetricProperties(t *testing.T) {
	words := []string{"", "a", "Ash", "Ashe", "Ashley", "Brock", "Brack", "rock", "Misty", "mist"}

	for _, x := range words {
		assert.Equal(t, 0, Levenshtein(x, x), "identity for %q", x)
		for _, y := range words {
			dxy := Levenshtein(x, y)
			assert.Equal(t, dxy, Levenshtein(y, x), "symmetry for %q %q", x, y)
			for _, z := range words {
				assert.LessOrEqual(t, Levenshtein(x, z), dxy+Levenshtein(y, z), "triangle for %q %q %q", x, y, z)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "pokemon", Normalize("Pokémon"))
	assert.Equal(t, "ashketchum", Normalize("  Ash  KETCHUM "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, Normalize("Élise"), Normalize("elise"))
}
