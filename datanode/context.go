// Package datanode implements the DN's chunk and metadata handlers of
// §4.7/§4.8: partition-owned storage for groups, datasets, datatypes,
// domains, links, attributes, and chunk arrays, backed by the per-DN
// metadata/chunk caches and the background syncer. Grounded on the
// teacher's targetrunner (ais/target.go): a context struct threading
// config/caches/store through a set of narrow HTTP handlers, guarded by a
// must-own-this-key check before any mutation (aistore's equivalent is
// "does this target own this object's mirror").
package datanode

import (
	"context"

	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/metacache"
	"github.com/hsds-go/hsds/objstore"
	"github.com/hsds-go/hsds/stats"
)

// Context bundles a data node's process-local state: its own slot number
// and the current data-node count (for the ownership guard, §4.1 invariant
// 1), the metadata/chunk caches (§4.3/§4.4), the object-store client, and
// configuration.
type Context struct {
	Number  int // this DN's assigned slot, per §4.10
	DNCount int // current size of the data-node ring
	Meta    *metacache.Cache
	Chunks  *chunkcache.Cache
	Store   objstore.Client
	Config  *cmn.Config
	Stats   *stats.Registry
}

// WireStats connects c's caches to reg, so cache hit/miss ratios show up
// alongside the HTTP-level counters (§4.10). A nil reg is fine: every
// stats.Registry method on a nil receiver is a no-op.
func (c *Context) WireStats(reg *stats.Registry) {
	c.Stats = reg
	c.Meta.SetHooks(func() { reg.CacheHit("meta") }, func() { reg.CacheMiss("meta") })
	c.Chunks.SetHooks(func() { reg.CacheHit("chunk") }, func() { reg.CacheMiss("chunk") })
}

// Owns reports whether this DN is responsible for id under the current
// ring size, per §4.1 invariant 1 / Testable Property 1.
func (c *Context) Owns(id string) bool {
	if c.DNCount <= 0 {
		return false
	}
	return cmn.Partition(id, c.DNCount) == c.Number
}

// SetRing updates the DN's view of the cluster's data-node count, called
// whenever a §4.10 /nodestate poll reports a change.
func (c *Context) SetRing(number, count int) {
	c.Number = number
	c.DNCount = count
}

// PutJSON persists v to the store and updates the cache in one step, so the
// write is durable before the background syncer next runs. No handler in
// this package calls it: domain creation writes its key with Store.PutJSON
// directly, and the metadata handlers call Meta.Set and let the syncer
// (§4.5) persist asynchronously.
func (c *Context) PutJSON(ctx context.Context, id string, v interface{}) error {
	if _, _, err := c.Store.PutJSON(ctx, cmn.S3Key(id), v); err != nil {
		return err
	}
	c.Meta.Set(id, toMap(v))
	c.Meta.ClearDirty(id)
	return nil
}

func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	buf, _ := json.Marshal(v)
	var m map[string]interface{}
	_ = json.Unmarshal(buf, &m)
	return m
}
