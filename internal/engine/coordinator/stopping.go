package coordinator

import (
	"time"

	"go.trai.ch/dval/internal/core/domain"
)

// callsPerSample is the number of utility calls one marginal contribution needs.
const callsPerSample = 2

// Progress is a snapshot of a run handed to stopping criteria.
type Progress struct {
	// Evaluations counts the utility calls of every sample merged or skipped so far.
	Evaluations int
	Updates     int
	Elapsed     time.Duration
	// Values is indexed by dataset position. Criteria must not modify it.
	Values []domain.ValueEstimate
}

// Criterion decides whether sampling continues.
// Check returns StatusSampling to continue, or StatusConverged / StatusBudgetExhausted to stop.
type Criterion interface {
	Check(p Progress) domain.RunStatus
}

// CriterionFunc adapts a function to Criterion.
type CriterionFunc func(p Progress) domain.RunStatus

// Check calls f.
func (f CriterionFunc) Check(p Progress) domain.RunStatus {
	return f(p)
}

// MaxEvaluations stops once another sample would exceed budget utility calls.
func MaxEvaluations(budget int) Criterion {
	return CriterionFunc(func(p Progress) domain.RunStatus {
		if p.Evaluations+callsPerSample > budget {
			return domain.StatusBudgetExhausted
		}
		return domain.StatusSampling
	})
}

// MaxUpdates stops after n merged samples.
func MaxUpdates(n int) Criterion {
	return CriterionFunc(func(p Progress) domain.RunStatus {
		if p.Updates >= n {
			return domain.StatusBudgetExhausted
		}
		return domain.StatusSampling
	})
}

// MaxDuration stops once the run has been sampling for d.
func MaxDuration(d time.Duration) Criterion {
	return CriterionFunc(func(p Progress) domain.RunStatus {
		if p.Elapsed >= d {
			return domain.StatusBudgetExhausted
		}
		return domain.StatusSampling
	})
}

// StandardError converges once every estimate has at least minCount updates
// and a standard error at or below threshold.
func StandardError(threshold float64, minCount int) Criterion {
	minCount = max(minCount, 2)
	return CriterionFunc(func(p Progress) domain.RunStatus {
		if len(p.Values) == 0 {
			return domain.StatusSampling
		}
		for _, v := range p.Values {
			if v.Count < minCount || v.StdErr() > threshold {
				return domain.StatusSampling
			}
		}
		return domain.StatusConverged
	})
}

// Any stops as soon as one criterion does. Convergence wins over budget exhaustion.
func Any(criteria ...Criterion) Criterion {
	return CriterionFunc(func(p Progress) domain.RunStatus {
		status := domain.StatusSampling
		for _, c := range criteria {
			switch c.Check(p) {
			case domain.StatusConverged:
				return domain.StatusConverged
			case domain.StatusBudgetExhausted:
				status = domain.StatusBudgetExhausted
			default:
			}
		}
		return status
	})
}

// CriteriaFor builds the stopping rule configured by cfg, or nil if cfg configures none.
func CriteriaFor(cfg domain.RunConfig) Criterion {
	var criteria []Criterion
	if cfg.Budget > 0 {
		criteria = append(criteria, MaxEvaluations(cfg.Budget))
	}
	if cfg.Precision > 0 {
		criteria = append(criteria, StandardError(cfg.Precision, cfg.MinUpdates))
	}
	if cfg.MaxUpdates > 0 {
		criteria = append(criteria, MaxUpdates(cfg.MaxUpdates))
	}
	if cfg.MaxDuration > 0 {
		criteria = append(criteria, MaxDuration(cfg.MaxDuration))
	}
	switch len(criteria) {
	case 0:
		return nil
	case 1:
		return criteria[0]
	default:
		return Any(criteria...)
	}
}
