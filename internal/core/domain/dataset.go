package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// Point is a single training example.
type Point struct {
	Features []float64
	Label    float64
}

// Dataset is an ordered, immutable collection of training points.
// The optional test split is used by utilities that score a model trained on a subset.
type Dataset struct {
	name  string
	train []Point
	test  []Point
}

// NewDataset creates a Dataset. The training split must not be empty.
func NewDataset(name string, train, test []Point) (*Dataset, error) {
	if len(train) == 0 {
		return nil, zerr.With(zerr.Wrap(ErrInvalidDataset, "training split is empty"), "dataset", name)
	}
	return &Dataset{
		name:  name,
		train: slices.Clone(train),
		test:  slices.Clone(test),
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// Len returns the number of training points.
func (d *Dataset) Len() int {
	return len(d.train)
}

// Point returns the training point at idx.
func (d *Dataset) Point(idx int) Point {
	return d.train[idx]
}

// Indices returns all training indices in order.
func (d *Dataset) Indices() []int {
	out := make([]int, len(d.train))
	for i := range out {
		out[i] = i
	}
	return out
}

// Test returns the held-out split.
func (d *Dataset) Test() []Point {
	return d.test
}
