// Package cache implements in-process result caches and the guard that keeps
// cache failures away from valuation runs.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
)

const shardCount = 16

var _ ports.ResultCache = (*Memory)(nil)

// Memory is an in-process LRU cache with per-entry TTL.
// Keys are spread over shards by xxhash so concurrent workers rarely contend on one lock.
type Memory struct {
	shards [shardCount]*shard
}

type shard struct {
	mu       sync.Mutex
	items    map[domain.Fingerprint]*list.Element
	order    *list.List // front is most recently used
	capacity int
}

// NewMemory creates a memory cache holding at most maxEntries entries.
// A non-positive maxEntries means unbounded.
func NewMemory(maxEntries int) *Memory {
	perShard := 0
	if maxEntries > 0 {
		perShard = (maxEntries + shardCount - 1) / shardCount
	}

	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{
			items:    make(map[domain.Fingerprint]*list.Element),
			order:    list.New(),
			capacity: perShard,
		}
	}
	return m
}

func (m *Memory) shardFor(fp domain.Fingerprint) *shard {
	return m.shards[xxhash.Sum64String(string(fp))%shardCount]
}

// Get returns the entry for fp, or nil if it is missing or expired.
func (m *Memory) Get(_ context.Context, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	s := m.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[fp]
	if !ok {
		return nil, nil
	}

	entry := el.Value.(domain.CacheEntry) //nolint:forcetypeassert // only entries are stored
	if entry.Expired(time.Now()) {
		s.remove(el)
		return nil, nil
	}

	s.order.MoveToFront(el)
	return &entry, nil
}

// Put stores the entry, evicting the least recently used entry of its shard when full.
func (m *Memory) Put(_ context.Context, entry domain.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s := m.shardFor(entry.Fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[entry.Fingerprint]; ok {
		el.Value = entry
		s.order.MoveToFront(el)
		return nil
	}

	s.items[entry.Fingerprint] = s.order.PushFront(entry)
	if s.capacity > 0 && s.order.Len() > s.capacity {
		s.remove(s.order.Back())
	}
	return nil
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) error {
	for _, s := range m.shards {
		s.mu.Lock()
		s.items = make(map[domain.Fingerprint]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
	return nil
}

// Prune removes expired entries and returns how many were dropped.
func (m *Memory) Prune(_ context.Context) (int, error) {
	now := time.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for el := s.order.Front(); el != nil; {
			next := el.Next()
			if el.Value.(domain.CacheEntry).Expired(now) { //nolint:forcetypeassert // only entries are stored
				s.remove(el)
				removed++
			}
			el = next
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += s.order.Len()
		s.mu.Unlock()
	}
	return n
}

func (s *shard) remove(el *list.Element) {
	entry := s.order.Remove(el).(domain.CacheEntry) //nolint:forcetypeassert // only entries are stored
	delete(s.items, entry.Fingerprint)
}
