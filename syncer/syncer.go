// Package syncer implements the per-DN background syncer of §4.5: a
// cooperative task that walks the dirty set and persists entries older than
// s3_sync_interval, using the snapshot-then-clear pattern so a concurrent
// mutation that lands mid-flush re-marks the id for the next pass instead
// of being silently lost. Grounded on the teacher's cluster/lom_cache_hk.go
// housekeeping idiom (CAS-guarded periodic sweep, "hk.Reg"-style
// registration) generalized from LRU eviction to dirty-set persistence.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/chunkcodec"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/metacache"
	"github.com/hsds-go/hsds/objstore"

	"github.com/golang/glog"
)

// DeflateLevelLookup resolves a chunk id's dataset's configured deflate
// level (the "deflate_map" of §4.5); <0 means uncompressed.
type DeflateLevelLookup func(chunkID string) int

// GCNotifier is the async-GC collaborator's batch-notify endpoint (§4.5's
// "PUT /objects" call); out of scope per spec.md §1, so a nil notifier is
// a legal no-op configuration.
type GCNotifier interface {
	NotifyPersisted(ctx context.Context, ids []string) error
}

// Syncer owns one DN's background flush loop.
type Syncer struct {
	store     objstore.Client
	metaCache *metacache.Cache
	chunkCache *chunkcache.Cache
	deflate   DeflateLevelLookup
	gc        GCNotifier
	interval  time.Duration

	pendingWrites sync.Map // key -> *pendingWrite
}

type pendingWrite struct {
	done chan struct{}
}

func New(store objstore.Client, meta *metacache.Cache, chunks *chunkcache.Cache, deflate DeflateLevelLookup, gc GCNotifier, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Syncer{store: store, metaCache: meta, chunkCache: chunks, deflate: deflate, gc: gc, interval: interval}
}

// Run blocks, flushing on each tick, until ctx is canceled. Intended to run
// as one background goroutine per DN process.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushOnce(ctx)
		}
	}
}

// flushOnce performs exactly one pass: snapshot both dirty sets, then
// persist each eligible id (§4.5).
func (s *Syncer) flushOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.interval)

	var flushed []string

	if s.metaCache != nil {
		for id := range s.metaCache.SnapshotDirty(cutoff) {
			if s.flushMeta(ctx, id) {
				flushed = append(flushed, id)
			}
		}
	}
	if s.chunkCache != nil {
		for id := range s.chunkCache.SnapshotDirty(cutoff) {
			if s.flushChunk(ctx, id) {
				flushed = append(flushed, id)
			}
		}
	}

	if len(flushed) > 0 && s.gc != nil {
		if err := s.gc.NotifyPersisted(ctx, flushed); err != nil {
			glog.Warningf("syncer: GC notify failed for %d ids: %v", len(flushed), err)
		}
	}
}

// flushMeta persists one metadata entry; on transient failure it
// re-inserts the id into the dirty set at the current time so the next
// pass retries it (§4.5).
func (s *Syncer) flushMeta(ctx context.Context, id string) bool {
	obj, ok := s.metaCache.Peek(id)
	if !ok {
		return false // deleted between snapshot and flush; nothing to persist
	}
	release := s.acquireWriteSlot(cmn.S3Key(id))
	defer release()

	if _, _, err := s.store.PutJSON(ctx, cmn.S3Key(id), obj); err != nil {
		glog.Warningf("syncer: persisting metadata %q failed, re-queuing: %v", id, err)
		s.metaCache.SetDirty(id)
		return false
	}
	s.metaCache.ClearDirty(id)
	return true
}

// flushChunk persists one chunk array, applying the dataset's deflate
// level if configured (§4.5).
func (s *Syncer) flushChunk(ctx context.Context, chunkID string) bool {
	arr, ok := s.chunkCache.Peek(chunkID)
	if !ok {
		return false
	}
	release := s.acquireWriteSlot(chunkID)
	defer release()

	data := arr.Data
	level := -1
	if s.deflate != nil {
		level = s.deflate(chunkID)
	}
	if level >= 0 {
		encoded, err := chunkcodec.Encode(data, level)
		if err != nil {
			glog.Warningf("syncer: compressing chunk %q failed, re-queuing: %v", chunkID, err)
			s.chunkCache.SetDirty(chunkID)
			return false
		}
		data = encoded
	}

	key := cmn.Hash5(chunkID) + "-" + chunkID
	if _, _, err := s.store.Put(ctx, key, data); err != nil {
		glog.Warningf("syncer: persisting chunk %q failed, re-queuing: %v", chunkID, err)
		s.chunkCache.SetDirty(chunkID)
		return false
	}
	s.chunkCache.ClearDirty(chunkID)
	return true
}

// acquireWriteSlot serializes writes to the same key (§4.5's
// pending-writes map): if a write for key is already in flight, wait up to
// 2s; if still contended, proceed anyway, since store writes are
// idempotent on key. Writes to different keys are never serialized against
// each other.
func (s *Syncer) acquireWriteSlot(key string) (release func()) {
	pw := &pendingWrite{done: make(chan struct{})}
	actual, loaded := s.pendingWrites.LoadOrStore(key, pw)
	if loaded {
		existing := actual.(*pendingWrite)
		select {
		case <-existing.done:
		case <-time.After(2 * time.Second):
		}
		s.pendingWrites.Store(key, pw)
	}
	return func() {
		close(pw.done)
		s.pendingWrites.Delete(key)
	}
}
