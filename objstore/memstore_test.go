package objstore

import (
	"context"
	"testing"
)

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Fatalf("expected missing key to not exist")
	}
	if _, _, _, _, err := m.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if _, _, err := m.Put(ctx, "k", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, _, _, size, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" || size != 5 {
		t.Fatalf("got %q size %d", data, size)
	}

	rng, err := m.GetRange(ctx, "k", 1, 3)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(rng) != "ell" {
		t.Fatalf("GetRange = %q, want ell", rng)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected NotFound on double delete, got %v", err)
	}
}

func TestMemStoreList(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	m.Put(ctx, "u/a/1", []byte("x"))
	m.Put(ctx, "u/a/2", []byte("y"))
	m.Put(ctx, "u/b/1", []byte("z"))

	entries, err := m.List(ctx, "u/a/", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}
