package datanode

import (
	"context"

	"github.com/hsds-go/hsds/boolexpr"
	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/dtype"
	"github.com/hsds-go/hsds/selection"
)

// ChunkRequest carries the query-param dataset descriptor the SN attaches
// to every chunk sub-request (§4.6 step 3, §4.7 "Parse the dataset
// descriptor").
type ChunkRequest struct {
	ChunkID      string
	LayoutDims   []int64
	Type         *dtype.Type
	FillValue    interface{}
	DeflateLevel int // <0 = uncompressed
	ChunkSel     []selection.Slice
}

func (r ChunkRequest) descriptor() chunkcache.ChunkDescriptor {
	return chunkcache.ChunkDescriptor{
		LayoutDims:   r.LayoutDims,
		ElemSize:     r.Type.ElementSize(),
		FillBytes:    r.Type.FillBytes(r.FillValue),
		DeflateLevel: r.DeflateLevel,
	}
}

// GetChunk implements the GET branch of §4.7: fetch the chunk array (no
// chunk-init on a miss, a pure 404 the SN reads as "use fill value"),
// returning the sub-array bytes chunkSel selects.
func GetChunk(ctx context.Context, c *Context, req ChunkRequest) ([]byte, error) {
	if !c.Owns(req.ChunkID) {
		return nil, cmn.NewBadRequestError("this data node does not own chunk %q", req.ChunkID)
	}
	arr, err := c.Chunks.GetChunk(ctx, req.ChunkID, req.descriptor(), false)
	if err != nil {
		return nil, err
	}
	return ReadSubArray(arr, req.ChunkSel, req.Type.ElementSize()), nil
}

// QueryResult is a GET chunk query=<bool-expr> response (§4.7): the
// chunk-relative linear index and decoded value of each record the
// expression matched.
type QueryResult struct {
	Indices []int64       `json:"indices"`
	Values  []interface{} `json:"values"`
}

// GetChunkQuery implements §4.7's query=<bool-expr> GET branch: "evaluate
// the boolean expression against the chunk slice and return matching
// indices+values" (glossary, BoolParser). Rank-1 only, per spec.
func GetChunkQuery(ctx context.Context, c *Context, req ChunkRequest, expr string) (*QueryResult, error) {
	if len(req.LayoutDims) != 1 {
		return nil, cmn.NewBadRequestError("query selections require a rank-1 chunk, got rank %d", len(req.LayoutDims))
	}
	if !c.Owns(req.ChunkID) {
		return nil, cmn.NewBadRequestError("this data node does not own chunk %q", req.ChunkID)
	}
	parsed, err := boolexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	arr, err := c.Chunks.GetChunk(ctx, req.ChunkID, req.descriptor(), false)
	if err != nil {
		return nil, err
	}
	elemSize := req.Type.ElementSize()
	result := &QueryResult{}
	var walkErr error
	forEachCoord(req.ChunkSel, arr.Shape, func(linear int64) {
		if walkErr != nil {
			return
		}
		off := linear * int64(elemSize)
		raw := arr.Data[off : off+int64(elemSize)]
		record, err := req.Type.DecodeElement(raw)
		if err != nil {
			walkErr = err
			return
		}
		fields, ok := record.(map[string]interface{})
		if !ok {
			fields = map[string]interface{}{"value": record}
		}
		matched, err := parsed.Evaluate(fields)
		if err != nil {
			walkErr = err
			return
		}
		if matched {
			result.Indices = append(result.Indices, linear)
			value, _ := req.Type.DecodeElement(raw)
			result.Values = append(result.Values, value)
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return result, nil
}

// PutChunk implements the PUT branch of §4.7: fetch-or-initialize the chunk
// (chunkInit=true, since a write always has something to write into), apply
// the sub-array write, mark dirty.
func PutChunk(ctx context.Context, c *Context, req ChunkRequest, data []byte) error {
	if !c.Owns(req.ChunkID) {
		return cmn.NewBadRequestError("this data node does not own chunk %q", req.ChunkID)
	}
	if err := c.Chunks.WaitForRoom(ctx); err != nil {
		return err
	}
	arr, err := c.Chunks.GetChunk(ctx, req.ChunkID, req.descriptor(), true)
	if err != nil {
		return err
	}
	if err := WriteSubArray(arr, req.ChunkSel, req.Type.ElementSize(), data); err != nil {
		return err
	}
	c.Chunks.Put(req.ChunkID, arr)
	return appendChunkIndex(ctx, c, req.ChunkID)
}

// appendChunkIndex records a newly-written chunk in its domain's chunk
// index, so a later dataset DELETE can sweep it (§4.8, SPEC_FULL.md
// Expansion C). The domain is recovered from the owning dataset's JSON.
func appendChunkIndex(ctx context.Context, c *Context, chunkID string) error {
	datasetID, err := cmn.DatasetOf(chunkID)
	if err != nil {
		return err
	}
	dset, err := c.Meta.Get(ctx, datasetID)
	if err != nil {
		return err
	}
	domain, _ := dset["domain"].(string)
	if domain == "" {
		return nil
	}
	return appendChunkIndexFile(ctx, c.Store, domain, datasetID, chunkID)
}

// Coord is one N-d point in a POST point-read/point-write payload (§4.7
// POST action=put / read-points).
type Coord struct {
	Point selection.Point
	Value []byte // ElemSize bytes; empty for a read request
}

// PutPoints implements "POST /chunks/<id>?action=put" (§4.7): write each
// (coord,value) pair at its chunk-relative coordinate.
func PutPoints(ctx context.Context, c *Context, req ChunkRequest, points []Coord) error {
	if !c.Owns(req.ChunkID) {
		return cmn.NewBadRequestError("this data node does not own chunk %q", req.ChunkID)
	}
	if err := c.Chunks.WaitForRoom(ctx); err != nil {
		return err
	}
	arr, err := c.Chunks.GetChunk(ctx, req.ChunkID, req.descriptor(), true)
	if err != nil {
		return err
	}
	elemSize := req.Type.ElementSize()
	str := strides(req.LayoutDims)
	for _, p := range points {
		var linear int64
		for i, v := range p.Point {
			linear += v * str[i]
		}
		off := linear * int64(elemSize)
		if off < 0 || off+int64(elemSize) > int64(len(arr.Data)) {
			return cmn.NewBadRequestError("point %v out of bounds for chunk %q", p.Point, req.ChunkID)
		}
		copy(arr.Data[off:off+int64(elemSize)], p.Value)
	}
	c.Chunks.Put(req.ChunkID, arr)
	return appendChunkIndex(ctx, c, req.ChunkID)
}

// GetPoints implements "POST /chunks/<id>" read-points (§4.7): return the
// value at each requested coordinate, or fill bytes if the chunk was never
// written.
func GetPoints(ctx context.Context, c *Context, req ChunkRequest, points []selection.Point) ([][]byte, error) {
	if !c.Owns(req.ChunkID) {
		return nil, cmn.NewBadRequestError("this data node does not own chunk %q", req.ChunkID)
	}
	desc := req.descriptor()
	arr, err := c.Chunks.GetChunk(ctx, req.ChunkID, desc, false)
	if cmn.IsNotFound(err) {
		fill := req.Type.FillBytes(req.FillValue)
		out := make([][]byte, len(points))
		for i := range out {
			out[i] = fill
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	str := strides(req.LayoutDims)
	elemSize := req.Type.ElementSize()
	out := make([][]byte, len(points))
	for i, p := range points {
		var linear int64
		for j, v := range p {
			linear += v * str[j]
		}
		off := linear * int64(elemSize)
		out[i] = arr.Data[off : off+int64(elemSize)]
	}
	return out, nil
}

// DeleteChunk implements the DELETE branch of §4.7: invoked only by the
// async-GC collaborator, removes the chunk from cache (the blob itself is
// deleted by that collaborator, per spec).
func DeleteChunk(c *Context, chunkID string) error {
	if !c.Owns(chunkID) {
		return cmn.NewBadRequestError("this data node does not own chunk %q", chunkID)
	}
	c.Chunks.Delete(chunkID)
	return nil
}
