package datanode

import (
	"context"
	"testing"
	"time"

	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/dtype"
	"github.com/hsds-go/hsds/metacache"
	"github.com/hsds-go/hsds/objstore"
	"github.com/hsds-go/hsds/selection"
)

func newTestContext() *Context {
	store := objstore.NewMemStore()
	return &Context{
		Number:  0,
		DNCount: 1,
		Meta:    metacache.New(store, 100),
		Chunks:  chunkcache.New(store, 1<<20, time.Second),
		Store:   store,
		Config:  &cmn.Config{},
	}
}

func TestCreateAndGetObject(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	id, err := CreateObject(ctx, c, "/home/test", "groups", map[string]interface{}{}, "alice")
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	obj, err := GetObject(ctx, c, id)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if obj["owner"] != "alice" {
		t.Fatalf("expected owner alice, got %v", obj["owner"])
	}
	ids, err := ListCollection(ctx, c.Store, "/home/test", "groups", "", 0)
	if err != nil {
		t.Fatalf("ListCollection: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected index to contain %q, got %v", id, ids)
	}
}

func TestCreateObjectWithLinkRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	parentID, err := CreateObject(ctx, c, "/home/test", "groups", map[string]interface{}{}, "alice")
	if err != nil {
		t.Fatalf("CreateObject parent: %v", err)
	}
	newBody := func() map[string]interface{} {
		return map[string]interface{}{"link": map[string]interface{}{"id": parentID, "name": "child"}}
	}
	if _, err := CreateObject(ctx, c, "/home/test", "groups", newBody(), "alice"); err != nil {
		t.Fatalf("CreateObject with link: %v", err)
	}
	if _, err := CreateObject(ctx, c, "/home/test", "groups", newBody(), "alice"); err == nil {
		t.Fatalf("expected duplicate link name to be rejected")
	}
}

func TestDeleteObjectThenGetIsGone(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	id, err := CreateObject(ctx, c, "/home/test", "groups", map[string]interface{}{}, "alice")
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if err := DeleteObject(ctx, c, "/home/test", "groups", id); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := GetObject(ctx, c, id); !cmn.IsGone(err) {
		t.Fatalf("expected Gone after delete, got %v", err)
	}
}

func TestPutAndGetAttribute(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	id, err := CreateObject(ctx, c, "/home/test", "groups", map[string]interface{}{}, "alice")
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if err := PutAttribute(ctx, c, id, "units", map[string]interface{}{"value": "meters"}); err != nil {
		t.Fatalf("PutAttribute: %v", err)
	}
	attr, err := GetAttribute(ctx, c, id, "units")
	if err != nil {
		t.Fatalf("GetAttribute: %v", err)
	}
	if attr["value"] != "meters" {
		t.Fatalf("expected meters, got %v", attr["value"])
	}
}

func TestPutChunkThenGetChunkRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	dsetID, err := CreateObject(ctx, c, "/home/test", "datasets", map[string]interface{}{"domain": "/home/test"}, "alice")
	if err != nil {
		t.Fatalf("CreateObject dataset: %v", err)
	}
	chunkID := cmn.NewChunkID(dsetID, []int{0, 0})
	elemType := &dtype.Type{Class: dtype.ClassAtomic, Size: 4, ByteOrder: dtype.LittleEndian}
	req := ChunkRequest{
		ChunkID:    chunkID,
		LayoutDims: []int64{2, 2},
		Type:       elemType,
		ChunkSel: []selection.Slice{
			{Start: 0, Stop: 2, Step: 1},
			{Start: 0, Stop: 2, Step: 1},
		},
	}
	payload := make([]byte, 4*4)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	if err := PutChunk(ctx, c, req, payload); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}
	got, err := GetChunk(ctx, c, req)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected round-tripped bytes %v, got %v", payload, got)
	}
}

func TestGetChunkMissReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	chunkID := cmn.NewChunkID(cmn.NewUUID(cmn.PrefixDataset), []int{0})
	req := ChunkRequest{
		ChunkID:    chunkID,
		LayoutDims: []int64{4},
		Type:       &dtype.Type{Class: dtype.ClassAtomic, Size: 4, ByteOrder: dtype.LittleEndian},
		ChunkSel:   []selection.Slice{{Start: 0, Stop: 4, Step: 1}},
	}
	if _, err := GetChunk(ctx, c, req); !cmn.IsNotFound(err) {
		t.Fatalf("expected NotFound for never-written chunk, got %v", err)
	}
}

func TestGetChunkQueryMatchesCompoundRecords(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	dsetID, err := CreateObject(ctx, c, "/home/test", "datasets", map[string]interface{}{"domain": "/home/test"}, "alice")
	if err != nil {
		t.Fatalf("CreateObject dataset: %v", err)
	}
	chunkID := cmn.NewChunkID(dsetID, []int{0})
	recType := &dtype.Type{
		Class: dtype.ClassCompound,
		Fields: []dtype.Field{
			{Name: "x1", Type: &dtype.Type{Class: dtype.ClassFixedStr, Length: 4}},
			{Name: "y2", Type: &dtype.Type{Class: dtype.ClassAtomic, Size: 4, ByteOrder: dtype.LittleEndian}},
		},
	}
	elemSize := recType.ElementSize() // 4 (string) + 4 (int32) = 8
	req := ChunkRequest{
		ChunkID:    chunkID,
		LayoutDims: []int64{3},
		Type:       recType,
		ChunkSel:   []selection.Slice{{Start: 0, Stop: 3, Step: 1}},
	}
	payload := make([]byte, 3*elemSize)
	order := recType.Fields[1].Type.ByteOrderOf()
	setRecord := func(i int, x1 string, y2 int32) {
		off := i * elemSize
		copy(payload[off:off+4], x1)
		order.PutUint32(payload[off+4:off+8], uint32(y2))
	}
	setRecord(0, "hi", 10)
	setRecord(1, "hi", 43)
	setRecord(2, "lo", 99)

	if err := PutChunk(ctx, c, req, payload); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	result, err := GetChunkQuery(ctx, c, req, `x1 == "hi" AND y2 > 42`)
	if err != nil {
		t.Fatalf("GetChunkQuery: %v", err)
	}
	if len(result.Indices) != 1 || result.Indices[0] != 1 {
		t.Fatalf("expected only record 1 to match, got indices %v", result.Indices)
	}
}

func TestOwnershipRejectsMisroutedChunk(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()
	c.DNCount = 4
	c.Number = 0
	// find an id this DN (slot 0 of 4) does not own.
	var foreign string
	for i := 0; i < 1000; i++ {
		cand := cmn.NewChunkID(cmn.NewUUID(cmn.PrefixDataset), []int{i})
		if cmn.Partition(cand, 4) != 0 {
			foreign = cand
			break
		}
	}
	req := ChunkRequest{ChunkID: foreign, LayoutDims: []int64{4}, Type: &dtype.Type{Class: dtype.ClassAtomic, Size: 4}}
	if _, err := GetChunk(ctx, c, req); cmn.StatusOf(err) != 400 {
		t.Fatalf("expected 400 for misrouted chunk, got %v", err)
	}
}
