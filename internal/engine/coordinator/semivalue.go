package coordinator

import (
	"math"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/combin"
)

// Coefficient weighs a marginal contribution by the size k of the subset it was
// measured on, out of n points. It returns the natural log of the weight so that
// merging can combine it with the sampler's log weight before leaving log space.
type Coefficient func(n, k int) float64

// ShapleyCoefficient returns ln(1 / (n · C(n-1, k))).
func ShapleyCoefficient(n, k int) float64 {
	return -logPermutations(n, k)
}

// BanzhafCoefficient returns ln(1 / 2^(n-1)).
func BanzhafCoefficient(n, _ int) float64 {
	return -logPowerset(n)
}

// BetaCoefficient returns the log of the Beta(alpha, beta) semivalue coefficient
// B(k+beta, n-k-1+alpha) / B(alpha, beta). Beta(1, 1) is the Shapley value.
func BetaCoefficient(alpha, beta float64) Coefficient {
	norm := mathext.Lbeta(alpha, beta)
	return func(n, k int) float64 {
		return mathext.Lbeta(float64(k)+beta, float64(n-k-1)+alpha) - norm
	}
}

// NewCoefficient resolves a semivalue by name.
func NewCoefficient(algorithm string, alpha, beta float64) (Coefficient, error) {
	switch algorithm {
	case "", domain.AlgorithmShapley:
		return ShapleyCoefficient, nil
	case domain.AlgorithmBanzhaf:
		return BanzhafCoefficient, nil
	case domain.AlgorithmBeta:
		if alpha <= 0 || beta <= 0 {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "beta parameters must be positive"),
				"alpha", alpha), "beta", beta)
		}
		return BetaCoefficient(alpha, beta), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownAlgorithm, "cannot resolve semivalue"), "algorithm", algorithm)
	}
}

// logPermutations returns ln(n · C(n-1, k)).
func logPermutations(n, k int) float64 {
	return math.Log(float64(n)) + combin.LogGeneralizedBinomial(float64(n-1), float64(k))
}

// logPowerset returns ln(2^(n-1)).
func logPowerset(n int) float64 {
	return float64(n-1) * math.Ln2
}
