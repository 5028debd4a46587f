package coordinator

import (
	"math"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

// HoeffdingPermutations returns the number of permutations after which every
// Monte Carlo Shapley estimate is within epsilon of its true value with probability
// at least 1-delta, for a utility whose range is bounded by r.
func HoeffdingPermutations(epsilon, delta, r float64) (int, error) {
	if epsilon <= 0 || delta <= 0 || delta >= 1 || r <= 0 {
		return 0, zerr.With(zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "invalid hoeffding parameters"),
			"epsilon", epsilon), "delta", delta), "range", r)
	}
	return int(math.Ceil(math.Log(2/delta) * 2 * r * r / (epsilon * epsilon))), nil
}

// HoeffdingBudget converts the Hoeffding bound into a utility-call budget over n points.
// Every permutation yields n samples of two calls each.
func HoeffdingBudget(n int, epsilon, delta, r float64) (int, error) {
	perms, err := HoeffdingPermutations(epsilon, delta, r)
	if err != nil {
		return 0, err
	}
	return perms * n * callsPerSample, nil
}
