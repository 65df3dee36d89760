package banmatch

import (
	"errors"
	"fmt"
	"math"

	"raidbot/internal/domain"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknownLanguage means a ban entry names a language that has no weight
// formula. The two data sets are out of sync and the check cannot proceed.
var ErrUnknownLanguage = errors.New("ban entry language has no weight formula")

// Check matches name against the enabled entries of list. weights maps a
// language tag to its per-character mismatch weight expression.
func Check(name string, list []domain.BanEntry, weights map[string]string) (domain.MatchResult, error) {
	candidate := Normalize(name)

	for i := range list {
		entry := list[i]
		if !entry.Enabled {
			continue
		}

		banned := Normalize(entry.Name)
		distance := Levenshtein(candidate, banned)
		if distance == 0 {
			return domain.MatchResult{
				Candidate: name,
				Matched:   true,
				Kind:      domain.MatchExact,
				Distance:  distance,
				Entry:     &entry,
			}, nil
		}

		formula, ok := weights[entry.Language]
		if !ok {
			return domain.MatchResult{}, fmt.Errorf("%w: entry %q language %q", ErrUnknownLanguage, entry.Name, entry.Language)
		}
		p, err := Evaluate(formula)
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("language %q: %w", entry.Language, err)
		}
		if p < 0 || p > 1 {
			return domain.MatchResult{}, fmt.Errorf("%w: language %q weight %v outside [0,1]", ErrInvalidExpression, entry.Language, p)
		}

		n := len([]rune(banned))
		k := n - distance
		log10p := Log10Tail(p, n, k)
		if log10p <= entry.Log10p {
			return domain.MatchResult{
				Candidate: name,
				Matched:   true,
				Kind:      domain.MatchSimilar,
				Distance:  distance,
				Entry:     &entry,
				Log10p:    &log10p,
			}, nil
		}
	}

	return domain.MatchResult{Candidate: name, Kind: domain.MatchNone}, nil
}

// Log10Tail returns log10(1 - BinomialCDF(p, n, k-1)), the log probability of
// k or more agreeing characters out of n by chance.
func Log10Tail(p float64, n, k int) float64 {
	cdf := distuv.Binomial{N: float64(n), P: p}.CDF(float64(k - 1))
	return math.Log10(1 - cdf)
}
