package chunkcache

import (
	"context"
	"testing"
	"time"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

func descFor(elemSize int) ChunkDescriptor {
	return ChunkDescriptor{LayoutDims: []int64{2, 2}, ElemSize: elemSize, DeflateLevel: -1}
}

func TestGetChunkMissNoInit(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 1<<20, time.Second)
	_, err := c.GetChunk(ctx, "c-x_0_0", descFor(4), false)
	if !cmn.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetChunkMissWithInitFillsZero(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 1<<20, time.Second)
	arr, err := c.GetChunk(ctx, "c-x_0_0", descFor(4), true)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if len(arr.Data) != 2*2*4 {
		t.Fatalf("got %d bytes, want 16", len(arr.Data))
	}
	for _, b := range arr.Data {
		if b != 0 {
			t.Fatalf("expected zero-filled chunk")
		}
	}
}

func TestGetChunkHitAfterPut(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 1<<20, time.Second)
	c.Put("c-x_0_0", &Array{Shape: []int64{2, 2}, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}})

	arr, err := c.GetChunk(ctx, "c-x_0_0", descFor(4), false)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if arr.Data[0] != 1 {
		t.Fatalf("got %v", arr.Data)
	}
}

func TestMemoryBoundRespectedForNonDirty(t *testing.T) {
	c := New(objstore.NewMemStore(), 20, time.Second) // tiny target: 20 bytes

	c.install("c-x_0_0", &Array{Data: make([]byte, 16)}, false)
	c.ClearDirty("c-x_0_0")
	c.install("c-x_0_1", &Array{Data: make([]byte, 16)}, false)
	c.ClearDirty("c-x_0_1")

	// inserting a second non-dirty 16-byte chunk must evict the first to
	// stay within the 20-byte target (§4.4 invariant 5).
	if c.Len() != 1 {
		t.Fatalf("expected eviction to bound cache to 1 entry, got %d (memUsed=%d)", c.Len(), c.MemUsed())
	}
	if c.MemUsed() > 20 {
		t.Fatalf("memUsed %d exceeds target 20", c.MemUsed())
	}
}

func TestWaitForRoomTimesOutWhenAllDirty(t *testing.T) {
	ctx := context.Background()
	c := New(objstore.NewMemStore(), 10, 50*time.Millisecond)
	c.Put("c-x_0_0", &Array{Data: make([]byte, 1000)}) // dirty, pinned, over target

	err := c.WaitForRoom(ctx)
	if cmn.StatusOf(err) != 503 {
		t.Fatalf("expected a ServiceUnavailable error, got %v", err)
	}
}
