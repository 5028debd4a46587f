package model

import (
	"cmp"
	"context"
	"slices"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
	"gonum.org/v1/gonum/floats"
)

const defaultNeighbours = 3

// KNN scores a subset by the test accuracy of a k-nearest-neighbour classifier
// fitted on it. The empty subset scores zero.
type KNN struct {
	id string
	ds *domain.Dataset
	k  int
}

func newKNN(ds *domain.Dataset, params map[string]string) (ports.Utility, error) {
	k, err := intParam(params, "k", defaultNeighbours)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "k must be positive"), "k", k)
	}
	if len(ds.Test()) == 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidDataset, "knn needs a test split"), "dataset", ds.Name())
	}
	return &KNN{id: identity(KindKNN, ds), ds: ds, k: k}, nil
}

// Identity returns the utility identity.
func (m *KNN) Identity() string { return m.id }

// Evaluate returns the fraction of test points classified correctly.
func (m *KNN) Evaluate(ctx context.Context, subset domain.Subset) (float64, error) {
	if subset.IsEmpty() {
		return 0, nil
	}

	train := subset.Indices()
	test := m.ds.Test()
	correct := 0
	for _, p := range test {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if m.predict(train, p.Features) == p.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(test)), nil
}

type neighbour struct {
	dist  float64
	label float64
}

func (m *KNN) predict(train []int, x []float64) float64 {
	neighbours := make([]neighbour, len(train))
	for i, idx := range train {
		p := m.ds.Point(idx)
		neighbours[i] = neighbour{dist: distance(p.Features, x), label: p.Label}
	}
	slices.SortStableFunc(neighbours, func(a, b neighbour) int {
		return cmp.Compare(a.dist, b.dist)
	})

	votes := make(map[float64]int)
	for _, n := range neighbours[:min(m.k, len(neighbours))] {
		votes[n.label]++
	}

	best, bestVotes := 0.0, -1
	for label, v := range votes {
		if v > bestVotes || (v == bestVotes && label < best) {
			best, bestVotes = label, v
		}
	}
	return best
}

// distance is the Euclidean distance over the features both points carry.
func distance(a, b []float64) float64 {
	n := min(len(a), len(b))
	return floats.Distance(a[:n], b[:n], 2)
}
