package utility

import (
	"context"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
)

// Func adapts a plain function to ports.Utility.
type Func struct {
	id string
	fn func(ctx context.Context, subset domain.Subset) (float64, error)
}

var _ ports.Utility = Func{}

// NewFunc creates a Func with the given identity.
func NewFunc(id string, fn func(ctx context.Context, subset domain.Subset) (float64, error)) Func {
	return Func{id: id, fn: fn}
}

// Identity returns the function identity.
func (f Func) Identity() string {
	return f.id
}

// Evaluate calls the function.
func (f Func) Evaluate(ctx context.Context, subset domain.Subset) (float64, error) {
	return f.fn(ctx, subset)
}
