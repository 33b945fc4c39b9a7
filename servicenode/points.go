package servicenode

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/selection"
)

// pointWrite is one (coordinate, value) pair from a POST .../value
// action=put body (§4.6 step 6, §4.7 "incoming payload is a packed
// (coord, value) array").
type pointWrite struct {
	Point selection.Point
	Value []byte
}

type chunkPointsRequest struct {
	Action string      `json:"action"`
	Points [][]int64   `json:"points"`
	Values []string    `json:"values,omitempty"`
}

type chunkPointsResponse struct {
	Values []string `json:"values"`
}

// chunkIndexForPoint and chunkRelativePoint translate a dataset-coordinate
// point into its owning chunk's tile index and that chunk's local
// coordinate, the point-selection analogue of chunklayout's slice-based
// EnumerateChunkIndices/ChunkSelections (§4.6 step 6: "the same dispatch is
// used but each point is routed to the single chunk containing its
// coordinate").
func chunkIndexForPoint(p selection.Point, layoutDims []int64) []int {
	idx := make([]int, len(p))
	for i, v := range p {
		idx[i] = int(v / layoutDims[i])
	}
	return idx
}

func chunkRelativePoint(p selection.Point, idx []int, layoutDims []int64) selection.Point {
	rel := make(selection.Point, len(p))
	for i, v := range p {
		rel[i] = v - int64(idx[i])*layoutDims[i]
	}
	return rel
}

func chunkGroupKey(idx []int) string {
	b := make([]byte, 0, len(idx)*4)
	for _, v := range idx {
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	return string(b)
}

// WritePoints implements §4.6 step 6 / §4.7's POST action=put: group the
// incoming points by owning chunk and fan one POST per chunk out
// concurrently.
func WritePoints(ctx context.Context, c *Context, d DatasetDescriptor, points []pointWrite) error {
	groups := map[string][]int{} // group key -> chunk idx, first occurrence wins
	byGroup := map[string][]pointWrite{}
	for _, pw := range points {
		idx := chunkIndexForPoint(pw.Point, d.LayoutDims)
		key := chunkGroupKey(idx)
		if _, ok := groups[key]; !ok {
			groups[key] = idx
		}
		byGroup[key] = append(byGroup[key], pw)
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, idx := range groups {
		idx := idx
		pts := byGroup[key]
		g.Go(func() error {
			chunkID := cmn.NewChunkID(d.ID, idx)
			body := chunkPointsRequest{Action: "put"}
			for _, pw := range pts {
				rel := chunkRelativePoint(pw.Point, idx, d.LayoutDims)
				body.Points = append(body.Points, []int64(rel))
				body.Values = append(body.Values, base64.StdEncoding.EncodeToString(pw.Value))
			}
			return postPointsToChunk(gctx, c, chunkID, d, &body, nil)
		})
	}
	return g.Wait()
}

// ReadPoints implements §4.6 step 6 / §4.7's read-points branch: group by
// owning chunk, fan out concurrently, and reassemble the per-point values
// in the caller's original order. A point whose chunk was never written
// comes back as the dataset's fill value (§ invariant 3), since the DN's
// GetPoints already returns fill bytes on a chunk miss.
func ReadPoints(ctx context.Context, c *Context, d DatasetDescriptor, points []selection.Point) ([][]byte, error) {
	type slot struct {
		groupKey string
		pos      int
	}
	groups := map[string][]int{}
	byGroup := map[string][]selection.Point{}
	slots := make([]slot, len(points))
	for i, p := range points {
		idx := chunkIndexForPoint(p, d.LayoutDims)
		key := chunkGroupKey(idx)
		if _, ok := groups[key]; !ok {
			groups[key] = idx
		}
		rel := chunkRelativePoint(p, idx, d.LayoutDims)
		byGroup[key] = append(byGroup[key], rel)
		slots[i] = slot{groupKey: key, pos: len(byGroup[key]) - 1}
	}

	results := make(map[string][][]byte, len(groups))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for key, idx := range groups {
		key, idx := key, idx
		pts := byGroup[key]
		g.Go(func() error {
			chunkID := cmn.NewChunkID(d.ID, idx)
			body := chunkPointsRequest{}
			for _, p := range pts {
				body.Points = append(body.Points, []int64(p))
			}
			var resp chunkPointsResponse
			if err := postPointsToChunk(gctx, c, chunkID, d, &body, &resp); err != nil {
				return err
			}
			values := make([][]byte, len(resp.Values))
			for i, v := range resp.Values {
				decoded, err := base64.StdEncoding.DecodeString(v)
				if err != nil {
					return cmn.NewInternalError("decoding chunk response value: %v", err)
				}
				values[i] = decoded
			}
			mu.Lock()
			results[key] = values
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]byte, len(points))
	for i, s := range slots {
		out[i] = results[s.groupKey][s.pos]
	}
	return out, nil
}

func postPointsToChunk(ctx context.Context, c *Context, chunkID string, d DatasetDescriptor, body *chunkPointsRequest, out *chunkPointsResponse) error {
	base, err := c.dataNodeURL(chunkID)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return cmn.NewInternalError("encoding points request: %v", err)
	}
	path := withQuery("/chunks/"+chunkID, chunkQuery(d, nil))
	resp, err := doDN(ctx, c, http.MethodPost, base+path, buf)
	if err != nil {
		return err
	}
	if e := resp.err(); e != nil {
		return e
	}
	if out != nil {
		return json.Unmarshal(resp.Body, out)
	}
	return nil
}
