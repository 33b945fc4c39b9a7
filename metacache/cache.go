// Package metacache implements the per-DN metadata cache of §4.3: an
// LRU-by-access map with a dirty set that pins entries against eviction, a
// tombstone set that prevents a concurrent read from resurrecting a
// freshly-deleted id, and pending-read coalescing for concurrent misses on
// the same id. Grounded on the teacher's cluster/lom_cache_hk.go LRU+dirty
// idiom, generalized from a bounded-memory cache to metacache's
// bounded-entry-count cache.
package metacache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// entry is one cached metadata object.
type entry struct {
	id    string
	obj   map[string]interface{}
	dirty bool
	elem  *list.Element // position in the LRU list
}

// pendingRead coalesces concurrent store reads for the same id (§4.3,
// §4.4's "same dedup rule" note).
type pendingRead struct {
	done chan struct{}
	obj  map[string]interface{}
	err  error
}

// Cache is the per-DN metadata cache. All methods assume the cooperative
// single-event-loop scheduling model of §5: callers must not interleave
// goroutines that mutate the same id without going through Cache's own
// locking, which exists here because Go's runtime, unlike the source's
// single-threaded interpreter, really can run handlers in parallel.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // MRU at Front
	dirty    map[string]time.Time
	deleted  map[string]struct{}
	maxItems int

	pendingMu sync.Mutex
	pending   map[string]*pendingRead

	store objstore.Client

	onHit, onMiss func()
}

// SetHooks wires optional hit/miss callbacks (datanode's Context.WireStats
// uses this to feed stats.Registry.CacheHit/CacheMiss without this package
// importing stats).
func (c *Cache) SetHooks(onHit, onMiss func()) {
	c.onHit, c.onMiss = onHit, onMiss
}

func New(store objstore.Client, maxItems int) *Cache {
	if maxItems <= 0 {
		maxItems = 100000
	}
	return &Cache{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		dirty:    make(map[string]time.Time),
		deleted:  make(map[string]struct{}),
		maxItems: maxItems,
		pending:  make(map[string]*pendingRead),
		store:    store,
	}
}

// Get returns the cached object for id, promoting it to MRU; on a cache
// miss it reads through to the object store, coalescing concurrent misses
// on the same blob key (§4.3).
func (c *Cache) Get(ctx context.Context, id string) (map[string]interface{}, error) {
	if obj, ok := c.getLocal(id); ok {
		if c.onHit != nil {
			c.onHit()
		}
		return obj, nil
	}
	if c.onMiss != nil {
		c.onMiss()
	}
	if c.isDeleted(id) {
		return nil, cmn.NewGoneError(id)
	}
	return c.readThrough(ctx, id)
}

func (c *Cache) getLocal(id string) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.obj, true
}

func (c *Cache) isDeleted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deleted[id]
	return ok
}

func (c *Cache) readThrough(ctx context.Context, id string) (map[string]interface{}, error) {
	key := cmn.S3Key(id)

	c.pendingMu.Lock()
	if pr, ok := c.pending[key]; ok {
		c.pendingMu.Unlock()
		select {
		case <-pr.done:
			if pr.err != nil {
				return nil, pr.err
			}
			return pr.obj, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pr := &pendingRead{done: make(chan struct{})}
	c.pending[key] = pr
	c.pendingMu.Unlock()

	var obj map[string]interface{}
	err := c.store.GetJSON(ctx, key, &obj)
	if objstore.IsNotFound(err) {
		err = cmn.NewNotFoundError(id, "id %q not found", id)
	} else if err != nil {
		err = cmn.NewServiceUnavailableError("reading %q: %v", id, err)
	}

	pr.obj, pr.err = obj, err
	close(pr.done)
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()

	if err != nil {
		return nil, err
	}
	c.insert(id, obj, false)
	return obj, nil
}

// Set inserts or overwrites id's cached object and marks it dirty (§4.3).
func (c *Cache) Set(id string, obj map[string]interface{}) {
	c.insert(id, obj, true)
}

func (c *Cache) insert(id string, obj map[string]interface{}, dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deleted, id)

	if e, ok := c.entries[id]; ok {
		e.obj = obj
		e.dirty = dirty
		c.lru.MoveToFront(e.elem)
	} else {
		e := &entry{id: id, obj: obj, dirty: dirty}
		e.elem = c.lru.PushFront(id)
		c.entries[id] = e
	}
	if dirty {
		c.dirty[id] = time.Now()
	}
	c.evictIfNeeded()
}

// evictIfNeeded drops non-dirty entries from the LRU tail until the cache
// is back under maxItems; dirty entries are pinned (§4.3).
func (c *Cache) evictIfNeeded() {
	for len(c.entries) > c.maxItems {
		evicted := false
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			id := e.Value.(string)
			ent := c.entries[id]
			if ent.dirty {
				continue
			}
			c.lru.Remove(e)
			delete(c.entries, id)
			evicted = true
			break
		}
		if !evicted {
			return // everything left is dirty; nothing more can be evicted
		}
	}
}

// SetDirty marks an already-cached id dirty without changing its value.
func (c *Cache) SetDirty(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.dirty = true
		c.dirty[id] = time.Now()
	}
}

// ClearDirty unmarks id as dirty, used by the background syncer after a
// successful flush (§4.5).
func (c *Cache) ClearDirty(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.dirty = false
	}
	delete(c.dirty, id)
}

// Delete removes id from the cache and dirty set and tombstones it so a
// concurrent read does not resurrect it before the delete propagates
// (§4.3).
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		c.lru.Remove(e.elem)
		delete(c.entries, id)
	}
	delete(c.dirty, id)
	c.deleted[id] = struct{}{}
}

// ConfirmDeleted removes id's tombstone once the blob is confirmed gone
// from the store (§4.3).
func (c *Cache) ConfirmDeleted(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deleted, id)
}

// SnapshotDirty returns and clears the current dirty set in one atomic
// step, the hand-off the background syncer needs (§4.5): any mutation that
// lands between the snapshot and the return of this call re-marks the id,
// so a subsequent pass re-flushes it — no write is lost.
func (c *Cache) SnapshotDirty(olderThan time.Time) map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time)
	for id, ts := range c.dirty {
		if ts.Before(olderThan) {
			out[id] = ts
			delete(c.dirty, id)
		}
	}
	return out
}

// Peek returns the cached object for id without going to the store or
// promoting it, used by the syncer to read back what to flush.
func (c *Cache) Peek(id string) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Len reports the current entry count, for tests and /info introspection.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DirtyLen reports the current dirty-set size.
func (c *Cache) DirtyLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}
