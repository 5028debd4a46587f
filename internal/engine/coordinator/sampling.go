package coordinator

import (
	"math/rand/v2"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxPowersetBits bounds the complement size the deterministic sampler enumerates.
const maxPowersetBits = 30

// Sample asks for the marginal contribution of Index to Subset.
type Sample struct {
	Index  int
	Subset domain.Subset
}

// Sampler yields samples and the importance weight that corrects for their distribution.
type Sampler interface {
	Name() string
	// Next returns the next sample, or false when the sampler is exhausted.
	Next() (Sample, bool)
	// LogWeight is the log of the inverse probability of drawing a subset of size k out of n points.
	LogWeight(n, k int) float64
}

// NewSampler resolves a sampler by name over the given indices.
func NewSampler(name string, indices []int, seed uint64) (Sampler, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // sampling, not security
	switch name {
	case "", domain.SamplerPermutation:
		return &PermutationSampler{indices: indices, rng: rng}, nil
	case domain.SamplerUniform:
		return &UniformSampler{indices: indices, rng: rng}, nil
	case domain.SamplerAntithetic:
		return &AntitheticSampler{UniformSampler: UniformSampler{indices: indices, rng: rng}}, nil
	case domain.SamplerDeterministic:
		if len(indices)-1 > maxPowersetBits {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "dataset too large for the deterministic sampler"),
				"points", len(indices))
		}
		return &DeterministicSampler{indices: indices}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownSampler, "cannot resolve sampler"), "sampler", name)
	}
}

// PermutationSampler draws random permutations and yields every prefix.
type PermutationSampler struct {
	indices []int
	rng     *rand.Rand
	perm    []int
	pos     int
}

// Name returns the sampler name.
func (s *PermutationSampler) Name() string { return domain.SamplerPermutation }

// Next returns the point at the current position and the prefix preceding it.
func (s *PermutationSampler) Next() (Sample, bool) {
	if len(s.indices) == 0 {
		return Sample{}, false
	}
	if s.pos == len(s.perm) {
		s.perm = make([]int, len(s.indices))
		for i, j := range s.rng.Perm(len(s.indices)) {
			s.perm[i] = s.indices[j]
		}
		s.pos = 0
	}
	sample := Sample{Index: s.perm[s.pos], Subset: domain.NewSubset(s.perm[:s.pos]...)}
	s.pos++
	return sample, true
}

// LogWeight returns ln(n · C(n-1, k)).
func (s *PermutationSampler) LogWeight(n, k int) float64 {
	return logPermutations(n, k)
}

// UniformSampler cycles through the points and draws a uniform subset of each complement.
type UniformSampler struct {
	indices []int
	rng     *rand.Rand
	next    int
}

// Name returns the sampler name.
func (s *UniformSampler) Name() string { return domain.SamplerUniform }

// Next returns the next point with a random subset of the others.
func (s *UniformSampler) Next() (Sample, bool) {
	if len(s.indices) == 0 {
		return Sample{}, false
	}
	idx := s.indices[s.next]
	s.next = (s.next + 1) % len(s.indices)

	var members []int
	for _, j := range s.indices {
		if j != idx && s.rng.IntN(2) == 1 {
			members = append(members, j)
		}
	}
	return Sample{Index: idx, Subset: domain.NewSubset(members...)}, true
}

// LogWeight returns ln(2^(n-1)).
func (s *UniformSampler) LogWeight(n, _ int) float64 {
	return logPowerset(n)
}

// AntitheticSampler yields each uniform subset followed by its complement.
type AntitheticSampler struct {
	UniformSampler
	pending *Sample
}

// Name returns the sampler name.
func (s *AntitheticSampler) Name() string { return domain.SamplerAntithetic }

// Next alternates between a fresh uniform sample and its complement.
func (s *AntitheticSampler) Next() (Sample, bool) {
	if s.pending != nil {
		out := *s.pending
		s.pending = nil
		return out, true
	}
	sample, ok := s.UniformSampler.Next()
	if !ok {
		return sample, false
	}
	var rest []int
	for _, j := range s.indices {
		if j != sample.Index && !sample.Subset.Contains(j) {
			rest = append(rest, j)
		}
	}
	s.pending = &Sample{Index: sample.Index, Subset: domain.NewSubset(rest...)}
	return sample, true
}

// DeterministicSampler enumerates the powerset of every complement exactly once.
type DeterministicSampler struct {
	indices []int
	point   int
	mask    uint64
}

// Name returns the sampler name.
func (s *DeterministicSampler) Name() string { return domain.SamplerDeterministic }

// Next returns the next subset of the current point's complement.
func (s *DeterministicSampler) Next() (Sample, bool) {
	n := len(s.indices)
	if n == 0 || s.point >= n {
		return Sample{}, false
	}
	idx := s.indices[s.point]
	others := make([]int, 0, n-1)
	for _, j := range s.indices {
		if j != idx {
			others = append(others, j)
		}
	}

	var members []int
	for bit, j := range others {
		if s.mask&(1<<uint(bit)) != 0 {
			members = append(members, j)
		}
	}

	s.mask++
	if s.mask == 1<<uint(len(others)) {
		s.mask = 0
		s.point++
	}
	return Sample{Index: idx, Subset: domain.NewSubset(members...)}, true
}

// LogWeight returns ln(2^(n-1)).
func (s *DeterministicSampler) LogWeight(n, _ int) float64 {
	return logPowerset(n)
}

// Len returns the total number of samples the sampler yields.
func (s *DeterministicSampler) Len() int {
	n := len(s.indices)
	if n == 0 {
		return 0
	}
	return n << uint(n-1)
}
