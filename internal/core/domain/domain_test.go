package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/core/domain"
)

func TestNewSubset_SortsAndDeduplicates(t *testing.T) {
	s := domain.NewSubset(3, 1, 2, 3, 1)

	assert.Equal(t, []int{1, 2, 3}, s.Indices())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "{1,2,3}", s.String())
	assert.True(t, s.Equal(domain.NewSubset(1, 2, 3)))
}

func TestSubset_Empty(t *testing.T) {
	s := domain.NewSubset()

	assert.True(t, s.IsEmpty())
	assert.Equal(t, "{}", s.String())
	assert.Empty(t, s.Indices())
}

func TestSubset_With(t *testing.T) {
	s := domain.NewSubset(0, 4)

	grown := s.With(2)
	assert.Equal(t, []int{0, 2, 4}, grown.Indices())
	assert.Equal(t, []int{0, 4}, s.Indices(), "receiver must not change")
	assert.True(t, grown.Contains(2))
	assert.False(t, s.Contains(2))
	assert.Equal(t, s, s.With(4))
}

func TestSubset_IndicesIsCopy(t *testing.T) {
	s := domain.NewSubset(1, 2)
	idx := s.Indices()
	idx[0] = 99

	assert.Equal(t, []int{1, 2}, s.Indices())
}

func TestValueEstimate_Update(t *testing.T) {
	var v domain.ValueEstimate
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		v.Update(x)
	}

	assert.Equal(t, 8, v.Count)
	assert.InDelta(t, 5.0, v.Mean, 1e-12)
	assert.InDelta(t, 4.0, v.Variance, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), v.StdErr(), 1e-12)
}

func TestValueEstimate_StdErrUndefined(t *testing.T) {
	var v domain.ValueEstimate
	v.Update(1)

	assert.True(t, math.IsInf(v.StdErr(), 1))
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := domain.CacheEntry{Score: 1, CreatedAt: now, TTL: time.Minute}

	assert.False(t, entry.Expired(now.Add(59*time.Second)))
	assert.True(t, entry.Expired(now.Add(time.Minute)))

	forever := domain.CacheEntry{Score: 1, CreatedAt: now}
	assert.False(t, forever.Expired(now.Add(1000*time.Hour)))
	assert.True(t, forever.ExpiresAt().IsZero())
}

func TestEvaluationError(t *testing.T) {
	cause := errors.New("boom")
	err := domain.NewEvaluationError("size", domain.NewSubset(2, 1), cause)

	require.ErrorIs(t, err, domain.ErrEvaluation)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "{1,2}")
	assert.Contains(t, err.Error(), "boom")
}

func TestNewDataset(t *testing.T) {
	_, err := domain.NewDataset("empty", nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidDataset)

	ds, err := domain.NewDataset("toy", []domain.Point{{Label: 1}, {Label: 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []int{0, 1}, ds.Indices())
	assert.InDelta(t, 2.0, ds.Point(1).Label, 0)
}

func TestValuationResult_Ranked(t *testing.T) {
	r := &domain.ValuationResult{Values: map[int]domain.ValueEstimate{
		0: {Index: 0, Mean: 1},
		1: {Index: 1, Mean: 3},
		2: {Index: 2, Mean: 1},
	}}

	ranked := r.Ranked()
	require.Len(t, ranked, 3)
	assert.Equal(t, []int{1, 0, 2}, []int{ranked[0].Index, ranked[1].Index, ranked[2].Index})
}
