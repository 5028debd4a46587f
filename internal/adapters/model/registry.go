// Package model provides the built-in utilities and the CSV dataset loader.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"
	"sync"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

// Built-in utility kinds.
const (
	KindCardinality = "cardinality"
	KindKNN         = "knn"
	KindLabelSum    = "label-sum"
)

// Factory builds a utility over a dataset.
type Factory func(ds *domain.Dataset, params map[string]string) (ports.Utility, error)

// Registry resolves utility kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a Registry holding the built-in utilities.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindCardinality, newCardinality)
	r.Register(KindLabelSum, newLabelSum)
	r.Register(KindKNN, newKNN)
	return r
}

// Register adds or replaces the factory of kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Build creates the utility of kind over ds.
func (r *Registry) Build(kind string, ds *domain.Dataset, params map[string]string) (ports.Utility, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrUnknownUtility, "cannot build utility"),
			"kind", kind), "known", r.Kinds())
	}
	return f(ds, params)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// identity combines a utility kind with the digest of the data it scores,
// so that different datasets never share cache entries.
func identity(kind string, ds *domain.Dataset) string {
	return kind + "@" + Digest(ds)[:16]
}

// Digest returns the hex SHA-256 of the dataset's training and test points.
func Digest(ds *domain.Dataset) string {
	h := sha256.New()
	var buf [8]byte
	writePoints := func(points []domain.Point) {
		binary.BigEndian.PutUint64(buf[:], uint64(len(points)))
		h.Write(buf[:])
		for _, p := range points {
			binary.BigEndian.PutUint64(buf[:], uint64(len(p.Features)))
			h.Write(buf[:])
			for _, f := range p.Features {
				binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
				h.Write(buf[:])
			}
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Label))
			h.Write(buf[:])
		}
	}

	train := make([]domain.Point, ds.Len())
	for i := range train {
		train[i] = ds.Point(i)
	}
	writePoints(train)
	writePoints(ds.Test())
	return hex.EncodeToString(h.Sum(nil))
}
