package utility_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/adapters/cache"
	"go.trai.ch/dval/internal/adapters/fingerprint"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports/mocks"
	"go.trai.ch/dval/internal/engine/utility"
	"go.uber.org/mock/gomock"
)

// countingSize scores a subset by its size and counts invocations.
func countingSize(calls *atomic.Int64) utility.Func {
	return utility.NewFunc("size", func(_ context.Context, s domain.Subset) (float64, error) {
		calls.Add(1)
		return float64(s.Len()), nil
	})
}

func TestWrapper_CachesScores(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	w := utility.New(countingSize(&calls), cache.NewMemory(0), fingerprint.NewHasher())

	first, err := w.Evaluate(ctx, domain.NewSubset(3, 1, 2))
	require.NoError(t, err)
	second, err := w.Evaluate(ctx, domain.NewSubset(1, 2, 3))
	require.NoError(t, err)

	assert.InDelta(t, 3.0, first, 0)
	assert.InDelta(t, first, second, 0)
	assert.Equal(t, int64(1), calls.Load(), "second call is served from the cache")
	assert.Equal(t, utility.Stats{Hits: 1, Misses: 1, Evaluations: 1}, w.Stats())
}

func TestWrapper_CacheOnAndOffAgree(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	cached := utility.New(countingSize(&calls), cache.NewMemory(0), fingerprint.NewHasher())
	uncached := utility.New(countingSize(&calls), nil, fingerprint.NewHasher())

	subsets := []domain.Subset{
		domain.NewSubset(),
		domain.NewSubset(0),
		domain.NewSubset(2, 0),
		domain.NewSubset(0, 1, 2, 3),
	}
	for _, s := range subsets {
		for range 2 {
			a, err := cached.Evaluate(ctx, s)
			require.NoError(t, err)
			b, err := uncached.Evaluate(ctx, s)
			require.NoError(t, err)
			assert.InDelta(t, a, b, 0, "subset %s", s)
		}
	}
	assert.Equal(t, int64(len(subsets)), cached.Stats().Evaluations)
	assert.Equal(t, int64(2*len(subsets)), uncached.Stats().Evaluations)
}

func TestWrapper_EmptySubset(t *testing.T) {
	var calls atomic.Int64
	w := utility.New(countingSize(&calls), cache.NewMemory(0), fingerprint.NewHasher())

	score, err := w.Evaluate(context.Background(), domain.NewSubset())
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestWrapper_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("model diverged")
	var calls atomic.Int64
	u := utility.NewFunc("flaky", func(context.Context, domain.Subset) (float64, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 1, nil
	})
	store := cache.NewMemory(0)
	w := utility.New(u, store, fingerprint.NewHasher())

	_, err := w.Evaluate(ctx, domain.NewSubset(1, 2))
	require.ErrorIs(t, err, domain.ErrEvaluation)
	require.ErrorIs(t, err, boom)

	var evalErr *domain.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, []int{1, 2}, evalErr.Subset.Indices())
	assert.Equal(t, "flaky", evalErr.UtilityID)
	assert.Equal(t, 0, store.Len())

	score, err := w.Evaluate(ctx, domain.NewSubset(1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 0)
}

func TestWrapper_RejectsNonFiniteScores(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		u := utility.NewFunc("bad", func(context.Context, domain.Subset) (float64, error) { return bad, nil })
		w := utility.New(u, cache.NewMemory(0), fingerprint.NewHasher())

		_, err := w.Evaluate(context.Background(), domain.NewSubset(0))
		require.ErrorIs(t, err, domain.ErrEvaluation)
		require.ErrorIs(t, err, domain.ErrInvalidScore)
	}
}

func TestWrapper_PanicIsEvaluationError(t *testing.T) {
	points := []float64{1, 2}
	u := utility.NewFunc("index", func(_ context.Context, s domain.Subset) (float64, error) {
		var sum float64
		for _, idx := range s.Indices() {
			sum += points[idx]
		}
		return sum, nil
	})
	store := cache.NewMemory(0)
	w := utility.New(u, store, fingerprint.NewHasher())

	_, err := w.Evaluate(context.Background(), domain.NewSubset(7))
	require.ErrorIs(t, err, domain.ErrEvaluation)
	require.ErrorIs(t, err, domain.ErrWorkPanicked)

	var evalErr *domain.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.True(t, evalErr.Subset.Equal(domain.NewSubset(7)))
	assert.Equal(t, 0, store.Len(), "a panic is never cached")
	assert.Equal(t, int64(1), w.Stats().Failures)

	score, err := w.Evaluate(context.Background(), domain.NewSubset(0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, score, 0)
}

func TestWrapper_ValidatesIndices(t *testing.T) {
	var calls atomic.Int64
	w := utility.New(countingSize(&calls), nil, fingerprint.NewHasher(), utility.WithPoints(2))
	assert.Equal(t, 2, w.Points())

	for _, s := range []domain.Subset{domain.NewSubset(2), domain.NewSubset(-1, 0)} {
		_, err := w.Evaluate(context.Background(), s)
		require.ErrorIs(t, err, domain.ErrEvaluation)
		require.ErrorIs(t, err, domain.ErrInvalidSubset)
	}
	assert.Zero(t, calls.Load(), "out of range subsets never reach the utility")

	_, err := w.Evaluate(context.Background(), domain.NewSubset(0, 1))
	require.NoError(t, err)
	assert.NoError(t, w.Validate(domain.NewSubset()))
}

func TestWrapper_CacheErrorsDegradeToEvaluation(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockResultCache(ctrl)
	backend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")).Times(2)
	backend.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")).Times(2)

	var calls atomic.Int64
	w := utility.New(countingSize(&calls), backend, fingerprint.NewHasher())

	for range 2 {
		score, err := w.Evaluate(context.Background(), domain.NewSubset(4, 5))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, score, 0)
	}
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, int64(4), w.Stats().CacheErrors)
}

func TestWrapper_PutCarriesTTLAndFingerprint(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockResultCache(ctrl)
	fp := mocks.NewMockFingerprinter(ctrl)

	fp.EXPECT().Fingerprint(domain.UtilityCall{
		Subset:    domain.NewSubset(1),
		UtilityID: "size",
		Config:    map[string]string{"k": "3"},
	}).Return(domain.Fingerprint("abc")).AnyTimes()
	backend.EXPECT().Get(gomock.Any(), domain.Fingerprint("abc")).Return(nil, nil)
	backend.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e domain.CacheEntry) error {
		assert.Equal(t, domain.Fingerprint("abc"), e.Fingerprint)
		assert.Equal(t, time.Hour, e.TTL)
		assert.InDelta(t, 1.0, e.Score, 0)
		return nil
	})

	var calls atomic.Int64
	w := utility.New(countingSize(&calls), backend, fp,
		utility.WithTTL(time.Hour),
		utility.WithConfig(map[string]string{"k": "3"}),
	)

	_, err := w.Evaluate(context.Background(), domain.NewSubset(1))
	require.NoError(t, err)
}

func TestWrapper_Bypass(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockResultCache(ctrl)

	var calls atomic.Int64
	w := utility.New(countingSize(&calls), backend, fingerprint.NewHasher(), utility.WithBypass())

	for range 3 {
		_, err := w.Evaluate(context.Background(), domain.NewSubset(0))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), calls.Load())
}

func TestWrapper_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mocks.NewMockMetrics(ctrl)
	metrics.EXPECT().CacheLookup(gomock.Any(), "miss")
	metrics.EXPECT().CacheLookup(gomock.Any(), "hit")
	metrics.EXPECT().Evaluation(gomock.Any(), gomock.Any(), nil)

	var calls atomic.Int64
	w := utility.New(countingSize(&calls), cache.NewMemory(0), fingerprint.NewHasher(), utility.WithMetrics(metrics))

	for range 2 {
		_, err := w.Evaluate(context.Background(), domain.NewSubset(0))
		require.NoError(t, err)
	}
}
