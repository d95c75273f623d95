// Package cache memoizes expensive per-URL computations in a persistent key/value store.
package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Namespaces used by the enrichment stages.
const (
	Scrape  = "scrape_cache"
	Parser  = "parser_cache"
	NER     = "ner_cache"
	Subject = "subject_cache"
	Tweet   = "tweet_cache"
)

// ErrNoStore may be returned by a compute function together with a usable
// value that must not be cached.
var ErrNoStore = errors.New("cache: do not store")

// Store is a namespaced string store. *database.DB implements it.
type Store interface {
	CacheGet(ctx context.Context, namespace, key string) (string, bool, error)
	CachePut(ctx context.Context, namespace, key, content string) error
}

// Option adjusts a Lookup.
type Option func(*lookupOptions)

type lookupOptions struct {
	accept func(string) bool
}

// AcceptIf treats cached content failing fn as a miss.
func AcceptIf(fn func(string) bool) Option {
	return func(o *lookupOptions) { o.accept = fn }
}

// Lookup returns the cached value for namespace+key, or runs compute and
// stores its result. The bool reports a cache hit. A failed compute is
// not stored, so the next call retries it.
func Lookup(
	ctx context.Context,
	s Store,
	namespace, key string,
	compute func(context.Context) (string, error),
	opts ...Option,
) (string, bool, error) {
	var o lookupOptions
	for _, opt := range opts {
		opt(&o)
	}

	cached, ok, err := s.CacheGet(ctx, namespace, key)
	if err != nil {
		// A broken cache read degrades to recomputation.
		zap.L().Warn("cache read failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	if ok && (o.accept == nil || o.accept(cached)) {
		return cached, true, nil
	}

	value, err := compute(ctx)
	if errors.Is(err, ErrNoStore) {
		return value, false, nil
	}
	if err != nil {
		return "", false, err
	}

	if err := s.CachePut(ctx, namespace, key, value); err != nil {
		zap.L().Warn("cache write failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return value, false, nil
}

// Memory is an in-process Store keeping the longest value per key.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) CacheGet(_ context.Context, namespace, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[namespace+" "+key]
	return v, ok && v != "", nil
}

func (m *Memory) CachePut(_ context.Context, namespace, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := namespace + " " + key
	if len(content) < len(m.data[k]) {
		return nil
	}
	m.data[k] = content
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
