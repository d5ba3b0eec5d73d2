// Package cellcache provides the bounded cache in front of lazily-fetched
// cell values. Entries are keyed by (column, row, encoding) and pinned to a
// dataset generation: a stored entry from another generation counts as a
// miss and is refetched in place. Concurrent requests for the same key share
// one in-flight fetch.
package cellcache

import (
	"context"
	"errors"
	"sync"

	"github.com/facet-org/facet/pkg/problem"
)

// DefaultCapacity bounds the cache when no explicit capacity is configured.
const DefaultCapacity = 100

// Fetcher retrieves one out-of-band cell value from the dataset source.
type Fetcher interface {
	FetchCell(ctx context.Context, column string, row int, generation int64, encoding string) (any, error)
}

type cacheKey struct {
	column   string
	row      int
	encoding string
}

type entry struct {
	generation int64
	done       chan struct{}
	value      any
	problem    *problem.Problem
}

// Cache is a bounded cell value cache. Eviction is by insertion order in
// batches of roughly a tenth of the capacity; read hits do not reorder
// entries, so the policy is an approximate LRU, kept that way on purpose.
type Cache struct {
	mu       sync.Mutex
	fetcher  Fetcher
	capacity int
	entries  map[cacheKey]*entry
	order    []cacheKey
}

// New creates a cache over the given fetcher. A non-positive capacity
// selects DefaultCapacity.
func New(fetcher Fetcher, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		fetcher:  fetcher,
		capacity: capacity,
		entries:  make(map[cacheKey]*entry),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Get returns the cell value for (column, row, encoding) under the given
// generation, fetching on miss. Waiters for the same key resolve together.
// Fetch failures come back as a *problem.Problem and are not cached, so a
// later Get retries. A caller whose context ends merely stops waiting; the
// underlying fetch completes and populates the entry for later readers.
func (c *Cache) Get(ctx context.Context, column string, row int, generation int64, encoding string) (any, error) {
	if c.fetcher == nil {
		return nil, problem.New(problem.TypeUnavailable, "no cell fetcher configured", "")
	}
	key := cacheKey{column: column, row: row, encoding: encoding}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.generation == generation {
		c.mu.Unlock()
		return c.await(ctx, e)
	}

	// Miss, or an entry pinned to another generation. A replaced stale
	// entry keeps its insertion position.
	fresh := &entry{generation: generation, done: make(chan struct{})}
	if !ok {
		c.evictForInsertLocked()
		c.order = append(c.order, key)
	}
	c.entries[key] = fresh
	c.mu.Unlock()

	go c.fetch(key, fresh)
	return c.await(ctx, fresh)
}

func (c *Cache) await(ctx context.Context, e *entry) (any, error) {
	select {
	case <-e.done:
		if e.problem != nil {
			return nil, e.problem
		}
		return e.value, nil
	case <-ctx.Done():
		return nil, problem.From(ctx.Err())
	}
}

func (c *Cache) fetch(key cacheKey, e *entry) {
	// Detached from any caller's context: abandoning a request must not
	// cancel the fetch other waiters may be sharing.
	value, err := c.fetcher.FetchCell(context.Background(), key.column, key.row, e.generation, key.encoding)

	c.mu.Lock()
	if err != nil {
		e.problem = normalizeFetchError(err)
		if current, ok := c.entries[key]; ok && current == e {
			c.removeLocked(key)
		}
	} else {
		e.value = value
	}
	c.mu.Unlock()
	close(e.done)
}

func normalizeFetchError(err error) *problem.Problem {
	var p *problem.Problem
	if errors.As(err, &p) {
		return p
	}
	return problem.New(problem.TypeFetch, "cell fetch failed", err.Error())
}

// evictForInsertLocked makes room for one new key. Eviction removes the
// oldest tenth of the capacity in one batch to amortize its cost.
func (c *Cache) evictForInsertLocked() {
	if len(c.entries) < c.capacity {
		return
	}
	n := c.capacity / 10
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	remaining := make([]cacheKey, len(c.order)-n)
	copy(remaining, c.order[n:])
	c.order = remaining
}

func (c *Cache) removeLocked(key cacheKey) {
	delete(c.entries, key)
	for i, existing := range c.order {
		if existing == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
