package domain

import (
	"fmt"

	"go.trai.ch/zerr"
)

var (
	// ErrEvaluation is returned when a utility function fails or returns an invalid score.
	ErrEvaluation = zerr.New("utility evaluation failed")

	// ErrInvalidScore is returned when a utility function returns NaN or an infinite score.
	ErrInvalidScore = zerr.New("utility returned a non-finite score")

	// ErrCacheUnavailable is reported when the result cache backend cannot be reached.
	// It is logged and never returned to callers of a valuation run.
	ErrCacheUnavailable = zerr.New("result cache unavailable")

	// ErrTimeout is returned when a work item does not complete within the requested bound.
	ErrTimeout = zerr.New("work item timed out")

	// ErrConvergenceFailure is reported when the budget is exhausted before the precision target is met.
	ErrConvergenceFailure = zerr.New("budget exhausted before convergence")

	// ErrStrictAbort is returned when a persistent evaluation failure aborts a run in strict mode.
	ErrStrictAbort = zerr.New("valuation aborted in strict mode")

	// ErrQueueFull is returned when an executor rejects a submission because its queue is at capacity.
	ErrQueueFull = zerr.New("executor queue is full")

	// ErrExecutorClosed is returned when submitting to an executor that has been shut down.
	ErrExecutorClosed = zerr.New("executor is shut down")

	// ErrWorkPanicked is returned when a work item panics during execution.
	ErrWorkPanicked = zerr.New("work item panicked")

	// ErrNoStoppingCriterion is returned when a run has neither a budget nor any other stopping rule.
	ErrNoStoppingCriterion = zerr.New("no stopping criterion configured")

	// ErrInvalidDataset is returned when a dataset is empty or malformed.
	ErrInvalidDataset = zerr.New("invalid dataset")

	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrUnknownUtility is returned when a utility kind is not registered.
	ErrUnknownUtility = zerr.New("unknown utility")

	// ErrInvalidSubset is returned when a subset refers to points outside the dataset.
	ErrInvalidSubset = zerr.New("subset index out of range")

	// ErrUtilityMismatch is returned when a remote worker serves a different utility than requested.
	ErrUtilityMismatch = zerr.New("utility identity mismatch")

	// ErrUnknownAlgorithm is returned when the configured semivalue is not supported.
	ErrUnknownAlgorithm = zerr.New("unknown valuation algorithm")

	// ErrUnknownSampler is returned when the configured sampler is not supported.
	ErrUnknownSampler = zerr.New("unknown sampler")

	// ErrUnknownCacheBackend is returned when the configured cache backend is not supported.
	ErrUnknownCacheBackend = zerr.New("unknown cache backend")

	// ErrUnknownExecutorBackend is returned when the configured executor backend is not supported.
	ErrUnknownExecutorBackend = zerr.New("unknown executor backend")

	// ErrNoWorkers is returned when the remote executor is selected without worker addresses.
	ErrNoWorkers = zerr.New("remote executor requires at least one worker address")

	// ErrStoreOpenFailed is returned when a persistent cache store cannot be opened.
	ErrStoreOpenFailed = zerr.New("failed to open cache store")

	// ErrStoreReadFailed is returned when a cache entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache entry")

	// ErrStoreWriteFailed is returned when a cache entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache entry")

	// ErrDatasetReadFailed is returned when the dataset file cannot be read.
	ErrDatasetReadFailed = zerr.New("failed to read dataset")
)

// EvaluationError reports a failed utility evaluation together with the subset it was evaluated on.
// It matches ErrEvaluation through errors.Is and unwraps to the root cause.
type EvaluationError struct {
	Subset    Subset
	UtilityID string
	Cause     error
}

// NewEvaluationError creates an EvaluationError for the given subset and cause.
func NewEvaluationError(utilityID string, subset Subset, cause error) *EvaluationError {
	return &EvaluationError{Subset: subset, UtilityID: utilityID, Cause: cause}
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: utility %q on subset %s: %v", ErrEvaluation.Error(), e.UtilityID, e.Subset, e.Cause)
}

// Unwrap returns the root cause of the failure.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}
