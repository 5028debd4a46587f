package domain

import "math"

// ValueEstimate is the running aggregate of the marginal contributions observed for a data point.
type ValueEstimate struct {
	Index    int     `json:"index"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Count    int     `json:"count"`
}

// Update folds a new observation into the estimate using Welford's algorithm.
func (v *ValueEstimate) Update(x float64) {
	v.Count++
	delta := x - v.Mean
	newMean := v.Mean + delta/float64(v.Count)
	v.Variance += ((x-v.Mean)*(x-newMean) - v.Variance) / float64(v.Count)
	v.Mean = newMean
}

// StdErr returns the standard error of the mean, or +Inf with fewer than two observations.
func (v ValueEstimate) StdErr() float64 {
	if v.Count < 2 {
		return math.Inf(1)
	}
	return math.Sqrt(v.Variance / float64(v.Count))
}
