package metacache

import (
	"context"
	"testing"
	"time"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

func TestGetMissThenHit(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	store.PutJSON(ctx, cmn.S3Key("g-x"), map[string]interface{}{"id": "g-x"})

	c := New(store, 10)
	obj, err := c.Get(ctx, "g-x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj["id"] != "g-x" {
		t.Fatalf("got %v", obj)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", c.Len())
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 10)
	_, err := c.Get(ctx, "g-missing")
	if !cmn.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteThenGetIsGone(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 10)
	c.Set("g-x", map[string]interface{}{"id": "g-x"})
	c.Delete("g-x")

	_, err := c.Get(ctx, "g-x")
	if !cmn.IsGone(err) {
		t.Fatalf("expected Gone, got %v", err)
	}
}

func TestDirtyEntriesAreNotEvicted(t *testing.T) {
	c := New(objstore.NewMemStore(), 2)
	c.Set("g-1", map[string]interface{}{})
	c.Set("g-2", map[string]interface{}{})
	c.Set("g-3", map[string]interface{}{}) // all three dirty: cache target of 2 is unenforceable

	if c.Len() != 3 {
		t.Fatalf("expected all dirty entries retained, got %d", c.Len())
	}
}

func TestNonDirtyEntriesAreEvicted(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	for _, id := range []string{"g-1", "g-2", "g-3"} {
		store.PutJSON(ctx, cmn.S3Key(id), map[string]interface{}{"id": id})
	}
	c := New(store, 2)
	c.Get(ctx, "g-1")
	c.Get(ctx, "g-2")
	c.Get(ctx, "g-3") // none dirty: evicts g-1

	if c.Len() != 2 {
		t.Fatalf("expected eviction down to 2, got %d", c.Len())
	}
	if _, ok := c.Peek("g-1"); ok {
		t.Fatalf("expected g-1 to have been evicted")
	}
}

func TestSnapshotDirtyClearsAtomically(t *testing.T) {
	c := New(objstore.NewMemStore(), 10)
	c.Set("g-1", map[string]interface{}{})

	snap := c.SnapshotDirty(time.Now().Add(time.Second))
	if len(snap) != 1 {
		t.Fatalf("expected 1 dirty id in snapshot, got %d", len(snap))
	}
	if c.DirtyLen() != 0 {
		t.Fatalf("expected dirty set cleared after snapshot, got %d", c.DirtyLen())
	}
}

func TestSnapshotDirtyRespectsAge(t *testing.T) {
	c := New(objstore.NewMemStore(), 10)
	c.Set("g-1", map[string]interface{}{})

	snap := c.SnapshotDirty(time.Now().Add(-time.Hour))
	if len(snap) != 0 {
		t.Fatalf("expected no ids older than cutoff, got %d", len(snap))
	}
	if c.DirtyLen() != 1 {
		t.Fatalf("expected dirty id to remain, got %d", c.DirtyLen())
	}
}
