package domain

import "time"

// RunStatus is the state of a valuation run.
type RunStatus string

const (
	// StatusInitializing is the state before sampling starts.
	StatusInitializing RunStatus = "Initializing"
	// StatusSampling indicates the run is generating and merging samples.
	StatusSampling RunStatus = "Sampling"
	// StatusConverged indicates the stopping criterion was met.
	StatusConverged RunStatus = "Converged"
	// StatusBudgetExhausted indicates the run stopped on its evaluation, update or time budget.
	StatusBudgetExhausted RunStatus = "BudgetExhausted"
	// StatusFinalizing indicates the run is assembling its result.
	StatusFinalizing RunStatus = "Finalizing"
	// StatusCancelled indicates the caller cancelled the run.
	StatusCancelled RunStatus = "Cancelled"
	// StatusFailed indicates the run aborted.
	StatusFailed RunStatus = "Failed"
)

// Terminal reports whether the status ends sampling.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusConverged, StatusBudgetExhausted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Semivalue names.
const (
	AlgorithmShapley = "shapley"
	AlgorithmBanzhaf = "banzhaf"
	AlgorithmBeta    = "beta-shapley"
)

// Sampler names.
const (
	SamplerPermutation   = "permutation"
	SamplerUniform       = "uniform"
	SamplerAntithetic    = "antithetic"
	SamplerDeterministic = "deterministic"
)

// RunConfig holds the parameters of a single valuation run.
type RunConfig struct {
	Algorithm string
	// Alpha and Beta parameterize the beta-shapley semivalue.
	Alpha float64
	Beta  float64

	Sampler string
	Seed    uint64

	// NJobs is the number of concurrent workers the run may keep busy.
	NJobs int
	// Budget is the maximum number of utility calls requested by the sampler. Zero means unbounded.
	Budget int
	// Precision is the standard-error target for every estimate. Zero disables it.
	Precision   float64
	MinUpdates  int
	MaxUpdates  int
	MaxDuration time.Duration

	CacheTTL      time.Duration
	RetryLimit    int
	RetryBackoff  time.Duration
	ResultTimeout time.Duration
	StrictErrors  bool

	// UtilityConfig holds extra parameters folded into every fingerprint.
	UtilityConfig map[string]string
}

// ValuationResult is the outcome of a valuation run.
type ValuationResult struct {
	Algorithm string                `json:"algorithm"`
	Sampler   string                `json:"sampler"`
	Values    map[int]ValueEstimate `json:"values"`
	Status    RunStatus             `json:"status"`

	Evaluations int `json:"evaluations"`
	Updates     int `json:"updates"`
	CacheHits   int `json:"cache_hits"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Retries     int `json:"retries"`

	// TargetMet reports whether the run stopped on its configured target.
	TargetMet bool `json:"target_met"`
	// LowConfidence is set when a precision target was configured but not reached.
	LowConfidence bool          `json:"low_confidence"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Ranked returns the estimates sorted by descending mean, ties broken by index.
func (r *ValuationResult) Ranked() []ValueEstimate {
	out := make([]ValueEstimate, 0, len(r.Values))
	for _, v := range r.Values {
		out = append(out, v)
	}
	sortEstimates(out)
	return out
}
