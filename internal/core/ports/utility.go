// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/dval/internal/core/domain"
)

// Utility is a set-valued scoring function: it maps a subset of the dataset to a scalar.
//
//go:generate mockgen -source=utility.go -destination=mocks/mock_utility.go -package=mocks
type Utility interface {
	// Identity returns a stable identifier of the function and its configuration.
	// Two utilities with the same identity must score equal subsets equally.
	Identity() string

	// Evaluate scores the subset. The empty subset is a valid input.
	Evaluate(ctx context.Context, subset domain.Subset) (float64, error)
}
