package daemon_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/adapters/cache"
	"go.trai.ch/dval/internal/adapters/daemon"
	"go.trai.ch/dval/internal/adapters/fingerprint"
	"go.trai.ch/dval/internal/adapters/pool"
	"go.trai.ch/dval/internal/adapters/telemetry"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/dval/internal/core/ports/mocks"
	"go.trai.ch/dval/internal/engine/coordinator"
	"go.trai.ch/dval/internal/engine/utility"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// network routes daemon addresses to in-memory listeners.
type network struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

func newNetwork() *network {
	return &network{listeners: make(map[string]*bufconn.Listener)}
}

func (n *network) listen(name string) *bufconn.Listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	lis := bufconn.Listen(bufSize)
	n.listeners[name] = lis
	return lis
}

func (n *network) dialer() daemon.DialOption {
	return daemon.WithDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		n.mu.Lock()
		lis, ok := n.listeners[addr]
		n.mu.Unlock()
		if !ok {
			return nil, errors.New("no daemon at " + addr)
		}
		return lis.DialContext(ctx)
	})
}

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	log := mocks.NewMockLogger(gomock.NewController(t))
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return log
}

// startDaemon serves c under name and returns a stop function that is also run on cleanup.
func startDaemon(
	t *testing.T,
	nw *network,
	name string,
	c ports.ResultCache,
	opts ...daemon.ServerOption,
) func() {
	t.Helper()
	lis := nw.listen(name)
	srv := daemon.NewServer(c, daemon.NewLifecycle(0), quietLogger(t), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, lis)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

func dial(t *testing.T, nw *network, name string) *daemon.Client {
	t.Helper()
	client, err := daemon.Dial("passthrough:///"+name, nw.dialer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var size = utility.NewFunc("size", func(_ context.Context, s domain.Subset) (float64, error) {
	return float64(s.Len()), nil
})

func TestClient_RoundTrip(t *testing.T) {
	nw := newNetwork()
	startDaemon(t, nw, "cache", cache.NewMemory(0))
	client := dial(t, nw, "cache")
	ctx := context.Background()

	require.NoError(t, client.Check(ctx, daemon.CacheServiceName))

	got, err := client.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, got, "unknown fingerprints miss")

	created := time.Now().Add(-time.Minute).Truncate(time.Microsecond)
	require.NoError(t, client.Put(ctx, domain.CacheEntry{Fingerprint: "fp-1", Score: 0.75, CreatedAt: created, TTL: time.Hour}))

	got, err = client.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.Fingerprint("fp-1"), got.Fingerprint)
	assert.InDelta(t, 0.75, got.Score, 0)
	assert.Equal(t, time.Hour, got.TTL)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestClient_ExpiredEntryMisses(t *testing.T) {
	nw := newNetwork()
	startDaemon(t, nw, "cache", cache.NewMemory(0))
	client := dial(t, nw, "cache")
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, domain.CacheEntry{
		Fingerprint: "old",
		Score:       1,
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		TTL:         time.Hour,
	}))

	got, err := client.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_ClearAndStats(t *testing.T) {
	nw := newNetwork()
	store := cache.NewMemory(0)
	startDaemon(t, nw, "cache", store)
	client := dial(t, nw, "cache")
	ctx := context.Background()

	for _, fp := range []domain.Fingerprint{"a", "b", "c"} {
		require.NoError(t, client.Put(ctx, domain.CacheEntry{Fingerprint: fp, Score: 1}))
	}

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Zero(t, stats.IdleRemaining, "idle shutdown is disabled")

	require.NoError(t, client.Clear(ctx))
	assert.Zero(t, store.Len())
}

func TestClient_Evaluate(t *testing.T) {
	nw := newNetwork()
	worker := utility.New(size, cache.NewMemory(0), fingerprint.NewHasher())
	startDaemon(t, nw, "worker", cache.NewMemory(0), daemon.WithEvaluator(worker))
	startDaemon(t, nw, "cache-only", cache.NewMemory(0))
	ctx := context.Background()

	client := dial(t, nw, "worker")
	require.NoError(t, client.Check(ctx, daemon.EvaluatorServiceName))

	score, err := client.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(4, 1, 7), UtilityID: "size"})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, score, 0)
	assert.Equal(t, int64(1), worker.Stats().Evaluations)

	_, err = client.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(1), UtilityID: "knn@0123"})
	require.ErrorIs(t, err, domain.ErrUtilityMismatch)

	_, err = client.Evaluate(ctx, domain.UtilityCall{
		Subset:    domain.NewSubset(1),
		UtilityID: "size",
		Config:    map[string]string{"k": "5"},
	})
	require.ErrorIs(t, err, domain.ErrUtilityMismatch, "a different utility config is a different utility")

	plain := dial(t, nw, "cache-only")
	require.Error(t, plain.Check(ctx, daemon.EvaluatorServiceName))
	_, err = plain.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(1), UtilityID: "size"})
	require.Error(t, err)
}

func TestServer_WorkerSurvivesBadSubsets(t *testing.T) {
	nw := newNetwork()
	values := []float64{1, 2}
	index := utility.NewFunc("index", func(_ context.Context, s domain.Subset) (float64, error) {
		var sum float64
		for _, i := range s.Indices() {
			sum += values[i]
		}
		return sum, nil
	})
	bounded := utility.New(index, cache.NewMemory(0), fingerprint.NewHasher(), utility.WithPoints(len(values)))
	unbounded := utility.New(index, cache.NewMemory(0), fingerprint.NewHasher())
	startDaemon(t, nw, "bounded", cache.NewMemory(0), daemon.WithEvaluator(bounded))
	startDaemon(t, nw, "unbounded", cache.NewMemory(0), daemon.WithEvaluator(unbounded))
	ctx := context.Background()

	client := dial(t, nw, "bounded")
	_, err := client.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(7), UtilityID: "index"})
	require.ErrorIs(t, err, domain.ErrInvalidSubset)
	assert.Zero(t, bounded.Stats().Evaluations, "rejected before the utility runs")

	// Without a point count the out-of-range index panics inside the utility.
	other := dial(t, nw, "unbounded")
	_, err = other.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(7), UtilityID: "index"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrWorkPanicked.Error())

	for _, c := range []*daemon.Client{client, other} {
		require.NoError(t, c.Check(ctx, daemon.EvaluatorServiceName))
		score, err := c.Evaluate(ctx, domain.UtilityCall{Subset: domain.NewSubset(0, 1), UtilityID: "index"})
		require.NoError(t, err)
		assert.InDelta(t, 3.0, score, 0)
	}
}

func TestGuard_DaemonGoesAway(t *testing.T) {
	nw := newNetwork()
	stop := startDaemon(t, nw, "cache", cache.NewMemory(0))
	client := dial(t, nw, "cache")
	ctx := context.Background()

	log := mocks.NewMockLogger(gomock.NewController(t))
	log.EXPECT().Warn(gomock.Any()).Times(1)
	guard := cache.NewGuard(client, log, cache.GuardOptions{OpTimeout: time.Second, Cooldown: time.Hour})

	require.NoError(t, guard.Put(ctx, domain.CacheEntry{Fingerprint: "fp", Score: 2}))
	got, err := guard.Get(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)

	stop()

	got, err = guard.Get(ctx, "fp")
	require.NoError(t, err, "failures degrade to misses")
	assert.Nil(t, got)
	assert.True(t, guard.Degraded())

	require.NoError(t, guard.Put(ctx, domain.CacheEntry{Fingerprint: "fp", Score: 3}))
}

func TestRemoteExecutor_RoundRobin(t *testing.T) {
	nw := newNetwork()
	shared := cache.NewMemory(0)
	w1 := utility.New(size, shared, fingerprint.NewHasher())
	w2 := utility.New(size, shared, fingerprint.NewHasher())
	startDaemon(t, nw, "w1", shared, daemon.WithEvaluator(w1))
	startDaemon(t, nw, "w2", shared, daemon.WithEvaluator(w2))

	exec, err := daemon.NewRemoteExecutor([]string{"passthrough:///w1", "passthrough:///w2"}, pool.Options{}, nw.dialer())
	require.NoError(t, err)
	defer func() { _ = exec.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, exec.Check(ctx))

	var handles []ports.Handle
	for i := range 6 {
		members := make([]int, i)
		for j := range members {
			members[j] = j
		}
		h, err := exec.Submit(ctx, &domain.WorkItem{Call: domain.UtilityCall{Subset: domain.NewSubset(members...), UtilityID: "size"}})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for i, h := range handles {
		score, err := h.Result(ctx, 5*time.Second)
		require.NoError(t, err)
		assert.InDelta(t, float64(i), score, 0)
	}
	assert.Equal(t, int64(3), w1.Stats().Evaluations)
	assert.Equal(t, int64(3), w2.Stats().Evaluations)
}

func TestRemoteExecutor_FailuresAreEvaluationErrors(t *testing.T) {
	nw := newNetwork()
	worker := utility.New(size, cache.NewMemory(0), fingerprint.NewHasher())
	startDaemon(t, nw, "w1", cache.NewMemory(0), daemon.WithEvaluator(worker))

	exec, err := daemon.NewRemoteExecutor([]string{"passthrough:///w1"}, pool.Options{}, nw.dialer())
	require.NoError(t, err)
	defer func() { _ = exec.Shutdown(context.Background()) }()

	ctx := context.Background()
	h, err := exec.Submit(ctx, &domain.WorkItem{Call: domain.UtilityCall{Subset: domain.NewSubset(2), UtilityID: "label-sum@ff"}})
	require.NoError(t, err)

	_, err = h.Result(ctx, 5*time.Second)
	require.ErrorIs(t, err, domain.ErrEvaluation)
	require.ErrorIs(t, err, domain.ErrUtilityMismatch)

	var evalErr *domain.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.True(t, evalErr.Subset.Contains(2))
}

func TestNewRemoteExecutor_NeedsWorkers(t *testing.T) {
	_, err := daemon.NewRemoteExecutor(nil, pool.Options{})
	require.ErrorIs(t, err, domain.ErrNoWorkers)
}

func TestRemoteExecutor_Valuate(t *testing.T) {
	nw := newNetwork()
	shared := cache.NewMemory(0)
	for _, name := range []string{"w1", "w2"} {
		startDaemon(t, nw, name, shared, daemon.WithEvaluator(utility.New(size, shared, fingerprint.NewHasher())))
	}

	exec, err := daemon.NewRemoteExecutor([]string{"passthrough:///w1", "passthrough:///w2"}, pool.Options{Workers: 4}, nw.dialer())
	require.NoError(t, err)
	defer func() { _ = exec.Shutdown(context.Background()) }()

	points := make([]domain.Point, 4)
	ds, err := domain.NewDataset("remote", points, nil)
	require.NoError(t, err)

	c := coordinator.New(exec, nil, fingerprint.NewHasher(), quietLogger(t), telemetry.NewNoOpTracer(), nil)
	res, err := c.Valuate(context.Background(), ds, size, domain.RunConfig{Budget: 40, NJobs: 2, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusBudgetExhausted, res.Status)
	assert.Equal(t, 20, res.Updates)
	for _, v := range res.Values {
		assert.InDelta(t, 1.0, v.Mean, 1e-9)
	}
	assert.Positive(t, shared.Len(), "workers fill the shared cache")
}
