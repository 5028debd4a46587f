package model

import (
	"context"
	"strconv"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

// Cardinality scores a subset by its size.
type Cardinality struct {
	id string
}

func newCardinality(ds *domain.Dataset, _ map[string]string) (ports.Utility, error) {
	return &Cardinality{id: identity(KindCardinality, ds)}, nil
}

// Identity returns the utility identity.
func (c *Cardinality) Identity() string { return c.id }

// Evaluate returns the number of points in subset.
func (c *Cardinality) Evaluate(_ context.Context, subset domain.Subset) (float64, error) {
	return float64(subset.Len()), nil
}

// LabelSum scores a subset by the sum of its labels.
type LabelSum struct {
	id string
	ds *domain.Dataset
}

func newLabelSum(ds *domain.Dataset, _ map[string]string) (ports.Utility, error) {
	return &LabelSum{id: identity(KindLabelSum, ds), ds: ds}, nil
}

// Identity returns the utility identity.
func (l *LabelSum) Identity() string { return l.id }

// Evaluate returns the sum of the labels in subset.
func (l *LabelSum) Evaluate(_ context.Context, subset domain.Subset) (float64, error) {
	var sum float64
	for _, i := range subset.Indices() {
		sum += l.ds.Point(i).Label
	}
	return sum, nil
}

func intParam(params map[string]string, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "utility parameter is not an integer"),
			"param", key), "value", raw)
	}
	return v, nil
}
