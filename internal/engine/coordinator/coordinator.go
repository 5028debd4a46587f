// Package coordinator drives a valuation run: it samples subsets, dispatches their
// utility calls to an executor and folds the marginal contributions into per-point estimates.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/dval/internal/engine/utility"
	"go.trai.ch/zerr"
)

// Option configures a single Valuate call.
type Option func(*runOptions)

type runOptions struct {
	criterion Criterion
	sampler   Sampler
}

// WithCriterion replaces the stopping rule derived from the run configuration.
func WithCriterion(c Criterion) Option {
	return func(o *runOptions) {
		o.criterion = c
	}
}

// WithSampler replaces the sampler named in the run configuration.
func WithSampler(s Sampler) Option {
	return func(o *runOptions) {
		o.sampler = s
	}
}

// Coordinator runs valuations against an executor and a result cache.
type Coordinator struct {
	executor      ports.Executor
	cache         ports.ResultCache
	fingerprinter ports.Fingerprinter
	logger        ports.Logger
	tracer        ports.Tracer
	metrics       ports.Metrics
}

// New creates a Coordinator. A nil cache runs every evaluation directly; a nil metrics
// recorder disables metrics.
func New(
	executor ports.Executor,
	cache ports.ResultCache,
	fingerprinter ports.Fingerprinter,
	logger ports.Logger,
	tracer ports.Tracer,
	metrics ports.Metrics,
) *Coordinator {
	return &Coordinator{
		executor:      executor,
		cache:         cache,
		fingerprinter: fingerprinter,
		logger:        logger,
		tracer:        tracer,
		metrics:       metrics,
	}
}

// Valuate estimates the value of every point in dataset under u.
//
// The returned result is non-nil whenever sampling started, including on cancellation;
// a strict-mode abort returns no result.
func (c *Coordinator) Valuate(
	ctx context.Context,
	dataset *domain.Dataset,
	u ports.Utility,
	cfg domain.RunConfig,
	opts ...Option,
) (*domain.ValuationResult, error) {
	if dataset == nil || dataset.Len() == 0 {
		return nil, zerr.Wrap(domain.ErrInvalidDataset, "nothing to valuate")
	}

	ctx, span := c.tracer.Start(ctx, "valuate",
		ports.WithAttribute("algorithm", cfg.Algorithm),
		ports.WithAttribute("points", dataset.Len()),
	)
	defer span.End()

	r, err := c.newRun(ctx, dataset, u, cfg, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer r.cancel()

	err = r.loop()
	res := r.finalize()
	span.SetAttribute("status", string(res.Status))
	span.SetAttribute("evaluations", res.Evaluations)

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, domain.ErrStrictAbort):
		span.RecordError(err)
		return nil, err
	default:
		span.RecordError(err)
		return res, err
	}
}

type sampleState struct {
	sample  Sample
	scores  [callsPerSample]float64
	have    [callsPerSample]bool
	dropped bool
}

type call struct {
	state   *sampleState
	slot    int
	subset  domain.Subset
	backoff backoff.BackOff
}

type outcome struct {
	call  *call
	score float64
	err   error
}

type run struct {
	c         *Coordinator
	parent    context.Context //nolint:containedctx // the caller's context decides cancellation
	ctx       context.Context //nolint:containedctx // governs submitted work, cancelled when the run ends
	cancel    context.CancelFunc
	cfg       domain.RunConfig
	n         int
	wrapper   *utility.Wrapper
	sampler   Sampler
	coef      Coefficient
	criterion Criterion
	window    int
	start     time.Time

	status    domain.RunStatus
	values    []domain.ValueEstimate
	inflight  int
	requested int
	accounted int
	updates   int
	skipped   int
	failed    int
	retries   int
	exhausted bool

	resultsCh chan outcome
	retryCh   chan *call
}

func (c *Coordinator) newRun(
	ctx context.Context,
	dataset *domain.Dataset,
	u ports.Utility,
	cfg domain.RunConfig,
	opts []Option,
) (*run, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	coef, err := NewCoefficient(cfg.Algorithm, cfg.Alpha, cfg.Beta)
	if err != nil {
		return nil, err
	}

	sampler := o.sampler
	if sampler == nil {
		sampler, err = NewSampler(cfg.Sampler, dataset.Indices(), cfg.Seed)
		if err != nil {
			return nil, err
		}
	}

	criterion := o.criterion
	if criterion == nil {
		criterion = CriteriaFor(cfg)
	}
	if criterion == nil {
		if _, finite := sampler.(*DeterministicSampler); !finite {
			return nil, zerr.With(zerr.Wrap(domain.ErrNoStoppingCriterion, "set a budget, precision, update or time limit"),
				"sampler", sampler.Name())
		}
		criterion = CriterionFunc(func(Progress) domain.RunStatus { return domain.StatusSampling })
	}

	if cfg.NJobs <= 0 {
		cfg.NJobs = 1
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = domain.DefaultResultTimeout
	}

	n := dataset.Len()
	wrapOpts := []utility.Option{
		utility.WithConfig(cfg.UtilityConfig),
		utility.WithTTL(cfg.CacheTTL),
		utility.WithPoints(n),
	}
	if c.metrics != nil {
		wrapOpts = append(wrapOpts, utility.WithMetrics(c.metrics))
	}

	values := make([]domain.ValueEstimate, n)
	for i := range values {
		values[i].Index = i
	}

	runCtx, cancel := context.WithCancel(ctx)
	return &run{
		c:         c,
		parent:    ctx,
		ctx:       runCtx,
		cancel:    cancel,
		cfg:       cfg,
		n:         n,
		wrapper:   utility.New(u, c.cache, c.fingerprinter, wrapOpts...),
		sampler:   sampler,
		coef:      coef,
		criterion: criterion,
		window:    callsPerSample * cfg.NJobs,
		status:    domain.StatusInitializing,
		values:    values,
		resultsCh: make(chan outcome),
		retryCh:   make(chan *call),
	}, nil
}

func (r *run) loop() error {
	r.c.logger.Info(fmt.Sprintf("valuating %d points with %s/%s, %d jobs",
		r.n, algorithmName(r.cfg.Algorithm), r.sampler.Name(), r.cfg.NJobs))
	if r.c.cache == nil {
		if _, ok := r.sampler.(*PermutationSampler); ok {
			r.c.logger.Warn("permutation sampling without a result cache re-evaluates every repeated prefix")
		}
	}

	r.start = time.Now()
	r.transition(domain.StatusSampling)

	var deadline <-chan time.Time
	if r.cfg.MaxDuration > 0 {
		timer := time.NewTimer(r.cfg.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	r.fill()
	for r.status == domain.StatusSampling {
		if r.inflight == 0 && !r.canAdmit() {
			if r.exhausted {
				r.transition(domain.StatusConverged)
			} else {
				r.transition(domain.StatusBudgetExhausted)
			}
			break
		}

		select {
		case o := <-r.resultsCh:
			if err := r.handle(o); err != nil {
				r.transition(domain.StatusFailed)
				return err
			}
		case cl := <-r.retryCh:
			if !cl.state.dropped {
				r.submit(cl)
			}
		case <-deadline:
			r.check()
		case <-r.parent.Done():
			r.transition(domain.StatusCancelled)
			return zerr.With(zerr.Wrap(r.parent.Err(), "valuation cancelled"), "status", string(domain.StatusCancelled))
		}

		r.fill()
	}
	return nil
}

func (r *run) transition(status domain.RunStatus) {
	r.status = status
	r.c.logger.Info(fmt.Sprintf("valuation %s", status))
}

func (r *run) canAdmit() bool {
	if r.exhausted {
		return false
	}
	return r.cfg.Budget <= 0 || r.requested+callsPerSample <= r.cfg.Budget
}

func (r *run) fill() {
	for r.status == domain.StatusSampling && r.inflight < r.window && r.canAdmit() {
		sample, ok := r.sampler.Next()
		if !ok {
			r.exhausted = true
			return
		}

		st := &sampleState{sample: sample}
		r.inflight++
		r.requested += callsPerSample
		r.submit(&call{state: st, slot: 0, subset: sample.Subset.With(sample.Index)})
		r.submit(&call{state: st, slot: 1, subset: sample.Subset})
	}
}

func (r *run) submit(cl *call) {
	subset := cl.subset
	item := &domain.WorkItem{
		Call: r.wrapper.Call(subset),
		Run: func(ctx context.Context) (float64, error) {
			ctx, span := r.c.tracer.Start(ctx, "evaluate", ports.WithAttribute("subset.size", subset.Len()))
			defer span.End()
			score, err := r.wrapper.Evaluate(ctx, subset)
			if err != nil {
				span.RecordError(err)
			}
			return score, err
		},
	}

	h, err := r.c.executor.Submit(r.ctx, item)
	if err != nil {
		go r.deliver(outcome{call: cl, err: err})
		return
	}

	go func() {
		score, err := h.Result(r.ctx, r.cfg.ResultTimeout)
		r.deliver(outcome{call: cl, score: score, err: err})
	}()
}

func (r *run) deliver(o outcome) {
	select {
	case r.resultsCh <- o:
	case <-r.ctx.Done():
	}
}

func (r *run) handle(o outcome) error {
	st := o.call.state
	if st.dropped {
		return nil
	}
	if o.err != nil {
		return r.retry(o.call, o.err)
	}

	st.scores[o.call.slot] = o.score
	st.have[o.call.slot] = true
	if !st.have[0] || !st.have[1] {
		return nil
	}

	r.merge(st)
	return nil
}

func (r *run) merge(st *sampleState) {
	k := st.sample.Subset.Len()
	// Coefficient and sampler weight can each overflow on their own for large n; only their product is bounded.
	marginal := (st.scores[0] - st.scores[1]) * math.Exp(r.coef(r.n, k)+r.sampler.LogWeight(r.n, k))
	r.values[st.sample.Index].Update(marginal)

	r.inflight--
	r.updates++
	r.accounted += callsPerSample
	r.check()
}

func (r *run) retry(cl *call, cause error) error {
	if r.ctx.Err() != nil {
		return nil
	}

	if cl.backoff == nil {
		initial := r.cfg.RetryBackoff
		if initial <= 0 {
			initial = domain.DefaultRetryBackoff
		}
		cl.backoff = backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initial),
			backoff.WithMaxElapsedTime(0),
		), uint64(max(r.cfg.RetryLimit, 0)))
	}

	wait := cl.backoff.NextBackOff()
	if wait == backoff.Stop {
		return r.skip(cl, cause)
	}

	r.retries++
	time.AfterFunc(wait, func() {
		select {
		case r.retryCh <- cl:
		case <-r.ctx.Done():
		}
	})
	return nil
}

func (r *run) skip(cl *call, cause error) error {
	st := cl.state
	if r.cfg.StrictErrors {
		abort := zerr.With(zerr.With(zerr.Wrap(domain.ErrStrictAbort, "evaluation failed after retries"),
			"index", st.sample.Index), "subset", cl.subset.String())
		return errors.Join(abort, cause)
	}

	st.dropped = true
	r.inflight--
	r.skipped++
	r.failed++
	r.accounted += callsPerSample
	r.c.logger.Warn(fmt.Sprintf("skipping sample for point %d on subset %s: %v", st.sample.Index, cl.subset, cause))
	r.check()
	return nil
}

func (r *run) check() {
	if r.status != domain.StatusSampling {
		return
	}
	status := r.criterion.Check(Progress{
		Evaluations: r.accounted,
		Updates:     r.updates,
		Elapsed:     time.Since(r.start),
		Values:      r.values,
	})
	if status != domain.StatusSampling {
		r.transition(status)
	}
}

func (r *run) finalize() *domain.ValuationResult {
	final := r.status
	if final == domain.StatusInitializing {
		final = domain.StatusFailed
	}
	if !final.Terminal() {
		final = domain.StatusFailed
	}
	if final == domain.StatusConverged || final == domain.StatusBudgetExhausted {
		r.transition(domain.StatusFinalizing)
	}
	r.cancel()

	res := &domain.ValuationResult{
		Algorithm:   algorithmName(r.cfg.Algorithm),
		Sampler:     r.sampler.Name(),
		Values:      make(map[int]domain.ValueEstimate, r.n),
		Status:      final,
		Evaluations: r.requested,
		Updates:     r.updates,
		CacheHits:   int(r.wrapper.Stats().Hits),
		Skipped:     r.skipped,
		Failed:      r.failed,
		Retries:     r.retries,
		Elapsed:     time.Since(r.start),
	}
	for i, v := range r.values {
		res.Values[i] = v
	}

	switch final {
	case domain.StatusConverged:
		res.TargetMet = true
	case domain.StatusBudgetExhausted:
		if r.cfg.Precision > 0 && !r.precisionMet() {
			res.LowConfidence = true
			r.c.logger.Warn(fmt.Sprintf("%v: standard error target %g not reached after %d updates; results are low confidence",
				domain.ErrConvergenceFailure, r.cfg.Precision, r.updates))
		} else {
			res.TargetMet = true
		}
	default:
	}
	return res
}

func (r *run) precisionMet() bool {
	return StandardError(r.cfg.Precision, r.cfg.MinUpdates).Check(Progress{Values: r.values}) == domain.StatusConverged
}

func algorithmName(algorithm string) string {
	if algorithm == "" {
		return domain.AlgorithmShapley
	}
	return algorithm
}
