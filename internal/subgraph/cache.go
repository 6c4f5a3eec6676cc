package subgraph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Benny93/ocelgraph-go/internal/graph"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocelgraph",
	Subsystem: "subgraph",
	Name:      "cache_requests_total",
	Help:      "Subgraph cache lookups by result.",
}, []string{"result"})

// cacheKey includes the build generation; a graph computed for one build is
// never returned for another.
type cacheKey struct {
	generation string
	opts       Options
}

// Cache memoizes Extract results.
type Cache struct {
	lru *lru.Cache[cacheKey, *Graph]
}

// NewCache creates a cache holding up to size graphs.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[cacheKey, *Graph](size)
	if err != nil {
		return nil, fmt.Errorf("creating subgraph cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Extract returns the cached graph for (l, opts) or computes it.
// Errors are not cached.
func (c *Cache) Extract(l *graph.LinkedLog, opts Options) (*Graph, error) {
	key := cacheKey{generation: l.Generation(), opts: opts}
	if g, ok := c.lru.Get(key); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return g, nil
	}
	cacheRequests.WithLabelValues("miss").Inc()

	g, err := Extract(l, opts)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, g)
	return g, nil
}

// Len returns the number of cached graphs.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached graph.
func (c *Cache) Purge() { c.lru.Purge() }
