package dispatch

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/evanphx/yukon/registry"
)

type cacheEntry struct {
	binding *registry.Binding
	epoch   uint64
}

// Cache memoizes recently resolved bindings for one processor. The owning
// processor is the only writer; it needs no locking of its own. Staleness
// is detected by comparing the entry's epoch against the registry epoch
// rather than by cross-processor invalidation, so convergence after a
// registry change is eventual, not immediate. That trade is deliberate: it
// keeps the hot path free of inter-processor synchronization.
type Cache struct {
	entries *lru.Cache

	// frequency and timing counters, read concurrently by the fast-path
	// rebuild coordinator via atomic loads
	counters sync.Map // uint32 -> *counter

	hits   uint64
	misses uint64
}

type counter struct {
	calls uint64
	ns    uint64
}

func newCache(capacity int) *Cache {
	entries, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}

	return &Cache{entries: entries}
}

// Lookup returns the cached binding for num if it is still valid under the
// given registry epoch. A stale entry counts as a miss and is dropped.
func (c *Cache) Lookup(num uint32, epoch uint64) (*registry.Binding, bool) {
	val, ok := c.entries.Get(num)
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	e := val.(cacheEntry)

	if e.epoch != epoch {
		c.entries.Remove(num)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)

	return e.binding, true
}

// Fill inserts a binding resolved at the given epoch, evicting the least
// recently used entry at capacity.
func (c *Cache) Fill(num uint32, b *registry.Binding, epoch uint64) {
	c.entries.Add(num, cacheEntry{binding: b, epoch: epoch})
}

func (c *Cache) counter(num uint32) *counter {
	if v, ok := c.counters.Load(num); ok {
		return v.(*counter)
	}

	v, _ := c.counters.LoadOrStore(num, &counter{})

	return v.(*counter)
}

func (c *Cache) recordCall(num uint32, ns uint64) {
	ctr := c.counter(num)

	atomic.AddUint64(&ctr.calls, 1)
	atomic.AddUint64(&ctr.ns, ns)
}

// frequencies snapshots the per-syscall call counts. Values may lag the
// owning processor slightly; the promotion heuristic tolerates that.
func (c *Cache) frequencies() map[uint32]uint64 {
	out := make(map[uint32]uint64)

	c.counters.Range(func(k, v interface{}) bool {
		out[k.(uint32)] = atomic.LoadUint64(&v.(*counter).calls)
		return true
	})

	return out
}

func (c *Cache) timings() map[uint32]uint64 {
	out := make(map[uint32]uint64)

	c.counters.Range(func(k, v interface{}) bool {
		out[k.(uint32)] = atomic.LoadUint64(&v.(*counter).ns)
		return true
	})

	return out
}

func (c *Cache) stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}
