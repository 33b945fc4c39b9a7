// Package chunkcache implements the per-DN chunk cache of §4.4: a
// byte-budgeted LRU of decoded N-d chunk arrays, dirty-pinned against
// eviction, with cooperative backoff when no room can be made, and the
// single getChunk read path that dedups concurrent fetches and synthesizes
// a fill-value array on a deliberate cache-miss-with-init. Grounded on the
// teacher's cluster/lom_cache_hk.go memory-pressure-aware eviction idiom,
// generalized from an LRU-by-atime walk to an LRU-by-access list.
package chunkcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hsds-go/hsds/chunkcodec"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// Array is one decoded chunk: raw little-endian packed element bytes, C
// order, of the shape the dataset's layout prescribes (§6).
type Array struct {
	Shape []int64
	Data  []byte
}

func (a *Array) sizeBytes() int64 { return int64(len(a.Data)) }

type entry struct {
	id    string
	arr   *Array
	dirty bool
	elem  *list.Element
}

type pendingRead struct {
	start time.Time
	done  chan struct{}
	arr   *Array
	err   error
}

// Cache is the per-DN chunk cache. memTarget is in bytes (§4.4), not
// entries.
type Cache struct {
	entries   map[string]*entry
	lru       *list.List
	dirty     map[string]time.Time
	memUsed   int64
	memTarget int64
	maxWait   time.Duration

	pending map[string]*pendingRead

	store objstore.Client

	mu sync.Mutex

	onHit, onMiss func()
}

// SetHooks wires optional hit/miss callbacks (datanode's Context.WireStats
// uses this to feed stats.Registry.CacheHit/CacheMiss without this package
// importing stats).
func (c *Cache) SetHooks(onHit, onMiss func()) {
	c.onHit, c.onMiss = onHit, onMiss
}

func New(store objstore.Client, memTarget int64, maxWait time.Duration) *Cache {
	if memTarget <= 0 {
		memTarget = 256 << 20 // 256 MiB
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &Cache{
		entries:   make(map[string]*entry),
		lru:       list.New(),
		dirty:     make(map[string]time.Time),
		memTarget: memTarget,
		maxWait:   maxWait,
		pending:   make(map[string]*pendingRead),
		store:     store,
	}
}

func (c *Cache) lock()   { c.mu.Lock() }
func (c *Cache) unlock() { c.mu.Unlock() }

// ChunkDescriptor carries everything getChunk needs from the owning
// dataset's JSON to read-through, decompress, and reshape a chunk (§4.7's
// "Parse the dataset descriptor").
type ChunkDescriptor struct {
	LayoutDims   []int64
	ElemSize     int
	FillBytes    []byte
	DeflateLevel int // <0 means uncompressed
}

func (d ChunkDescriptor) chunkElemCount() int64 {
	n := int64(1)
	for _, dim := range d.LayoutDims {
		n *= dim
	}
	return n
}

// GetChunk is the single read path of §4.4: cache hit, else pending-read
// coalesce, else store read (decompress+reshape+install), else either a
// miss (chunkInit=false) or a freshly allocated fill-value array
// (chunkInit=true).
func (c *Cache) GetChunk(ctx context.Context, chunkID string, desc ChunkDescriptor, chunkInit bool) (*Array, error) {
	if arr, ok := c.peekAndPromote(chunkID); ok {
		if c.onHit != nil {
			c.onHit()
		}
		return arr, nil
	}
	if c.onMiss != nil {
		c.onMiss()
	}

	arr, found, err := c.joinOrStartRead(ctx, chunkID, desc)
	if err != nil {
		return nil, err
	}
	if found {
		return arr, nil
	}

	if !chunkInit {
		return nil, cmn.NewNotFoundError(chunkID, "chunk %q has never been written", chunkID)
	}
	fresh := c.allocFill(desc)
	c.install(chunkID, fresh, true)
	return fresh, nil
}

func (c *Cache) peekAndPromote(chunkID string) (*Array, bool) {
	c.lock()
	defer c.unlock()
	e, ok := c.entries[chunkID]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.arr, true
}

// joinOrStartRead implements the pending-reads wait-loop of §4.4 step 2:
// if a read for chunkID is already in flight, wait up to 2s for it to
// finish, then read from the store ourselves; otherwise perform the store
// read ourselves straight away.
func (c *Cache) joinOrStartRead(ctx context.Context, chunkID string, desc ChunkDescriptor) (*Array, bool, error) {
	c.lock()
	if pr, ok := c.pending[chunkID]; ok {
		c.unlock()
		return c.waitOnPending(ctx, chunkID, desc, pr)
	}
	pr := &pendingRead{start: time.Now(), done: make(chan struct{})}
	c.pending[chunkID] = pr
	c.unlock()

	arr, err := c.readThrough(ctx, chunkID, desc)
	pr.arr, pr.err = arr, err
	close(pr.done)

	c.lock()
	delete(c.pending, chunkID)
	c.unlock()

	if objstore.IsNotFound(err) || cmn.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return arr, true, nil
}

func (c *Cache) waitOnPending(ctx context.Context, chunkID string, desc ChunkDescriptor, pr *pendingRead) (*Array, bool, error) {
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-pr.done:
		if pr.err != nil {
			if objstore.IsNotFound(pr.err) || cmn.IsNotFound(pr.err) {
				return nil, false, nil
			}
			return nil, false, pr.err
		}
		return pr.arr, true, nil
	case <-timer.C:
		// the in-flight read is taking too long: re-check the cache, then
		// read from the store ourselves.
		if arr, ok := c.peekAndPromote(chunkID); ok {
			return arr, true, nil
		}
		arr, err := c.readThrough(ctx, chunkID, desc)
		if objstore.IsNotFound(err) || cmn.IsNotFound(err) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return arr, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) readThrough(ctx context.Context, chunkID string, desc ChunkDescriptor) (*Array, error) {
	key := cmn.Hash5(chunkID) + "-" + chunkID
	data, _, _, _, err := c.store.Get(ctx, key)
	if objstore.IsNotFound(err) {
		return nil, cmn.NewNotFoundError(chunkID, "chunk %q not found", chunkID)
	}
	if err != nil {
		return nil, cmn.NewServiceUnavailableError("reading chunk %q: %v", chunkID, err)
	}
	if desc.DeflateLevel >= 0 {
		data, err = chunkcodec.Decode(data)
		if err != nil {
			return nil, cmn.NewInternalError("decoding chunk %q: %v", chunkID, err)
		}
	}
	arr := &Array{Shape: desc.LayoutDims, Data: data}
	c.install(chunkID, arr, false)
	return arr, nil
}

func (c *Cache) allocFill(desc ChunkDescriptor) *Array {
	n := desc.chunkElemCount()
	data := make([]byte, n*int64(desc.ElemSize))
	if len(desc.FillBytes) > 0 {
		for i := int64(0); i < n; i++ {
			copy(data[i*int64(desc.ElemSize):], desc.FillBytes)
		}
	}
	return &Array{Shape: desc.LayoutDims, Data: data}
}

// install inserts arr into the cache, evicting non-dirty LRU entries until
// memUsed is back under memTarget (§4.4). Blocking past MaxWaitTime when
// nothing is evictable is the caller's (handler's) responsibility via
// WaitForRoom; install itself never blocks.
func (c *Cache) install(chunkID string, arr *Array, dirty bool) {
	c.lock()
	defer c.unlock()
	if e, ok := c.entries[chunkID]; ok {
		c.memUsed -= e.arr.sizeBytes()
		e.arr = arr
		e.dirty = e.dirty || dirty
		c.lru.MoveToFront(e.elem)
	} else {
		e := &entry{id: chunkID, arr: arr, dirty: dirty}
		e.elem = c.lru.PushFront(chunkID)
		c.entries[chunkID] = e
	}
	c.memUsed += arr.sizeBytes()
	if dirty {
		c.dirty[chunkID] = time.Now()
	}
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.memUsed > c.memTarget {
		evicted := false
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			id := e.Value.(string)
			ent := c.entries[id]
			if ent.dirty {
				continue
			}
			c.lru.Remove(e)
			delete(c.entries, id)
			c.memUsed -= ent.arr.sizeBytes()
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// WaitForRoom blocks, yielding cooperatively, until memUsed<=memTarget or
// MaxWaitTime elapses; callers that time out must fail the originating
// request with ServiceUnavailable (§4.4, §5).
func (c *Cache) WaitForRoom(ctx context.Context) error {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.lock()
		ok := c.memUsed <= c.memTarget
		c.unlock()
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return cmn.NewServiceUnavailableError("chunk cache could not make room within MaxWaitTime")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetDirty / ClearDirty parallel metacache (§4.4).
func (c *Cache) SetDirty(chunkID string) {
	c.lock()
	defer c.unlock()
	if e, ok := c.entries[chunkID]; ok {
		e.dirty = true
		c.dirty[chunkID] = time.Now()
	}
}

func (c *Cache) ClearDirty(chunkID string) {
	c.lock()
	defer c.unlock()
	if e, ok := c.entries[chunkID]; ok {
		e.dirty = false
	}
	delete(c.dirty, chunkID)
}

// Put installs a chunk array freshly mutated by a write handler, marking it
// dirty (§4.7 PUT).
func (c *Cache) Put(chunkID string, arr *Array) {
	c.install(chunkID, arr, true)
}

func (c *Cache) Peek(chunkID string) (*Array, bool) {
	c.lock()
	defer c.unlock()
	e, ok := c.entries[chunkID]
	if !ok {
		return nil, false
	}
	return e.arr, true
}

// Delete removes chunkID from the cache, used by the async-GC DELETE path
// (§4.7).
func (c *Cache) Delete(chunkID string) {
	c.lock()
	defer c.unlock()
	if e, ok := c.entries[chunkID]; ok {
		c.lru.Remove(e.elem)
		c.memUsed -= e.arr.sizeBytes()
		delete(c.entries, chunkID)
	}
	delete(c.dirty, chunkID)
}

// SnapshotDirty parallels metacache's: snapshot-then-clear, so the syncer
// never races a concurrent re-dirty (§4.5).
func (c *Cache) SnapshotDirty(olderThan time.Time) map[string]time.Time {
	c.lock()
	defer c.unlock()
	out := make(map[string]time.Time)
	for id, ts := range c.dirty {
		if ts.Before(olderThan) {
			out[id] = ts
			delete(c.dirty, id)
		}
	}
	return out
}

func (c *Cache) MemUsed() int64 {
	c.lock()
	defer c.unlock()
	return c.memUsed
}

func (c *Cache) Len() int {
	c.lock()
	defer c.unlock()
	return len(c.entries)
}
