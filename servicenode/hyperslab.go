package servicenode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hsds-go/hsds/chunklayout"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/dtype"
	"github.com/hsds-go/hsds/selection"
)

// DatasetDescriptor is the subset of a dataset's JSON the hyperslab engine
// needs (§4.6): its id, element type, current shape, chunk layout, fill
// value, and deflate level.
type DatasetDescriptor struct {
	ID           string
	Shape        []int64
	LayoutDims   []int64
	Type         *dtype.Type
	FillValue    interface{}
	DeflateLevel int
}

// Read implements the hyperslab read engine of §4.6: enumerate the chunks
// sel intersects, fan a GET out to each owning DN concurrently, and
// reassemble the sub-array bytes into one packed row-major output buffer.
// A 404 from any one chunk is not an error (step 5): that slab is left at
// the dataset's fill value, which the caller's output buffer is
// pre-filled with.
func Read(ctx context.Context, c *Context, d DatasetDescriptor, sel []selection.Slice) ([]byte, error) {
	if err := checkChunkBudget(c, sel, d.LayoutDims); err != nil {
		return nil, err
	}
	elemSize := d.Type.ElementSize()
	shape := selection.Shape(sel)
	out := allocFilled(shape, elemSize, d.Type.FillBytes(d.FillValue))
	outStrides := strides(shape)

	indices := chunklayout.EnumerateChunkIndices(sel, d.LayoutDims)
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			chunkSel, dataSel, err := chunklayout.ChunkSelections(sel, idx, d.LayoutDims)
			if err != nil {
				return err
			}
			chunkID := cmn.NewChunkID(d.ID, idx)
			data, err := readChunk(gctx, c, chunkID, d, chunkSel)
			if cmn.IsNotFound(err) {
				return nil // fill value already in place
			}
			if err != nil {
				return err
			}
			copyInto(out, outStrides, dataSel, data, elemSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Write implements the hyperslab write engine of §4.6: translate data's
// user-array coordinates into each intersected chunk's chunk-relative
// selection and PUT the corresponding sub-array to its owning DN,
// concurrently, aborting on the first failure (step 4).
func Write(ctx context.Context, c *Context, d DatasetDescriptor, sel []selection.Slice, data []byte) error {
	if err := checkChunkBudget(c, sel, d.LayoutDims); err != nil {
		return err
	}
	elemSize := d.Type.ElementSize()
	shape := selection.Shape(sel)
	inStrides := strides(shape)

	indices := chunklayout.EnumerateChunkIndices(sel, d.LayoutDims)
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			chunkSel, dataSel, err := chunklayout.ChunkSelections(sel, idx, d.LayoutDims)
			if err != nil {
				return err
			}
			chunkID := cmn.NewChunkID(d.ID, idx)
			sub := extractFrom(data, inStrides, dataSel, elemSize)
			return putChunk(gctx, c, chunkID, d, chunkSel, sub)
		})
	}
	return g.Wait()
}

func checkChunkBudget(c *Context, sel []selection.Slice, layoutDims []int64) error {
	n := chunklayout.NumChunks(sel, layoutDims)
	max := int64(c.Config.MaxChunksPerRequest)
	if max > 0 && n > max {
		return cmn.NewPayloadTooLargeError("selection spans %d chunks, exceeds max_chunks_per_request=%d", n, max)
	}
	return nil
}

func chunkQuery(d DatasetDescriptor, chunkSel []selection.Slice) url.Values {
	q := url.Values{}
	q.Set("layout", joinInts(d.LayoutDims))
	if buf, err := d.Type.Marshal(); err == nil {
		q.Set("type", string(buf))
	}
	q.Set("deflate", strconv.Itoa(d.DeflateLevel))
	if chunkSel != nil {
		q.Set("select", encodeSelect(chunkSel))
	}
	return q
}

func readChunk(ctx context.Context, c *Context, chunkID string, d DatasetDescriptor, chunkSel []selection.Slice) ([]byte, error) {
	base, err := c.dataNodeURL(chunkID)
	if err != nil {
		return nil, err
	}
	path := withQuery("/chunks/"+chunkID, chunkQuery(d, chunkSel))
	resp, err := doDN(ctx, c, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}
	if e := resp.err(); e != nil {
		return nil, e
	}
	return resp.Body, nil
}

func putChunk(ctx context.Context, c *Context, chunkID string, d DatasetDescriptor, chunkSel []selection.Slice, data []byte) error {
	base, err := c.dataNodeURL(chunkID)
	if err != nil {
		return err
	}
	path := withQuery("/chunks/"+chunkID, chunkQuery(d, chunkSel))
	resp, err := doDN(ctx, c, http.MethodPut, base+path, data)
	if err != nil {
		return err
	}
	return resp.err()
}

func joinInts(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ",")
}

func encodeSelect(sel []selection.Slice) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range sel {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(s.Start, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(s.Stop, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(s.Step, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// strides/allocFilled/copyInto/extractFrom implement the row-major
// reassembly §4.6 step 3 describes ("data_sel translated into the
// user-array coordinate system"), mirroring datanode's arrayio.go on the
// user-array side instead of the chunk side.

func strides(shape []int64) []int64 {
	out := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = acc
		acc *= shape[i]
	}
	return out
}

func allocFilled(shape []int64, elemSize int, fill []byte) []byte {
	total := int64(1)
	for _, s := range shape {
		total *= s
	}
	out := make([]byte, total*int64(elemSize))
	if len(fill) > 0 {
		for i := int64(0); i < total; i++ {
			copy(out[i*int64(elemSize):], fill)
		}
	}
	return out
}

// forEachRelativeCoord walks every coordinate dataSel selects (dataSel's
// Step is always 1: §4.6 step 3 expresses it in already-stepped output
// indices), invoking fn with each tuple's linear offset against str.
func forEachRelativeCoord(dataSel []selection.Slice, str []int64, fn func(linear int64)) {
	nd := len(dataSel)
	idx := make([]int64, nd)
	for i := range idx {
		idx[i] = dataSel[i].Start
	}
	total := int64(1)
	for _, s := range dataSel {
		total *= s.Count()
	}
	for n := int64(0); n < total; n++ {
		var linear int64
		for i, v := range idx {
			linear += v * str[i]
		}
		fn(linear)
		for pos := nd - 1; pos >= 0; pos-- {
			idx[pos]++
			if idx[pos] < dataSel[pos].Stop {
				break
			}
			idx[pos] = dataSel[pos].Start
		}
	}
}

func copyInto(out []byte, outStrides []int64, dataSel []selection.Slice, chunkData []byte, elemSize int) {
	pos := int64(0)
	forEachRelativeCoord(dataSel, outStrides, func(linear int64) {
		off := linear * int64(elemSize)
		copy(out[off:off+int64(elemSize)], chunkData[pos:pos+int64(elemSize)])
		pos += int64(elemSize)
	})
}

func extractFrom(in []byte, inStrides []int64, dataSel []selection.Slice, elemSize int) []byte {
	var out []byte
	forEachRelativeCoord(dataSel, inStrides, func(linear int64) {
		off := linear * int64(elemSize)
		out = append(out, in[off:off+int64(elemSize)]...)
	})
	return out
}
