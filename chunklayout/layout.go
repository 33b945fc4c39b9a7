// Package chunklayout implements the chunk-geometry arithmetic of §4.1/§4.6:
// turning a dataset's chunk layout plus a user hyperslab selection into the
// set of chunk ids it intersects, and the chunk-relative / user-array-
// relative sub-selections needed to dispatch and reassemble each chunk's
// contribution.
package chunklayout

import (
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/selection"
)

// Min/Max chunk byte sizes a dataset's layout must keep the per-chunk byte
// count within, when auto-computed (glossary: "Layout").
const (
	DefaultChunkMin = 1 << 20 // 1 MiB
	DefaultChunkMax = 4 << 20 // 4 MiB
)

// ChunkCounts returns, per dimension, the number of chunk intervals sel
// intersects (counting partial left/right fragments), per §4.6 step 1.
func ChunkCounts(sel []selection.Slice, layoutDims []int64) []int64 {
	counts := make([]int64, len(sel))
	for i, s := range sel {
		if s.Count() == 0 {
			counts[i] = 0
			continue
		}
		last := s.Start
		if s.Step > 1 {
			last = s.Start + (s.Count()-1)*s.Step
		} else {
			last = s.Stop - 1
		}
		firstChunk := s.Start / layoutDims[i]
		lastChunk := last / layoutDims[i]
		counts[i] = lastChunk - firstChunk + 1
	}
	return counts
}

// NumChunks returns the total chunk count sel would dispatch to, the
// product of ChunkCounts (§4.6 step 1).
func NumChunks(sel []selection.Slice, layoutDims []int64) int64 {
	counts := ChunkCounts(sel, layoutDims)
	n := int64(1)
	for _, c := range counts {
		n *= c
	}
	return n
}

// EnumerateChunkIndices returns every tile-index tuple (the Cartesian
// product of per-dimension chunk ranges) sel intersects, per §4.6 step 2.
func EnumerateChunkIndices(sel []selection.Slice, layoutDims []int64) [][]int {
	nd := len(sel)
	ranges := make([][2]int64, nd) // [firstChunk, lastChunk] inclusive
	for i, s := range sel {
		if s.Count() == 0 {
			return nil
		}
		var last int64
		if s.Step > 1 {
			last = s.Start + (s.Count()-1)*s.Step
		} else {
			last = s.Stop - 1
		}
		ranges[i] = [2]int64{s.Start / layoutDims[i], last / layoutDims[i]}
	}

	var out [][]int
	idx := make([]int64, nd)
	for i := range idx {
		idx[i] = ranges[i][0]
	}
	for {
		tuple := make([]int, nd)
		for i, v := range idx {
			tuple[i] = int(v)
		}
		out = append(out, tuple)

		// odometer increment
		pos := nd - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] <= ranges[pos][1] {
				break
			}
			idx[pos] = ranges[pos][0]
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}

// ChunkExtent returns the dataset-coordinate [start,stop) each dimension of
// chunk index idx covers, given layoutDims.
func ChunkExtent(idx []int, layoutDims []int64) []selection.Slice {
	out := make([]selection.Slice, len(idx))
	for i, ix := range idx {
		start := int64(ix) * layoutDims[i]
		out[i] = selection.Slice{Start: start, Stop: start + layoutDims[i], Step: 1}
	}
	return out
}

// ChunkSelections computes, for one chunk index, the chunk-relative
// selection (chunk_sel: intersection of sel with the chunk's extent,
// expressed in chunk-local coordinates) and the user-array-relative
// selection (data_sel: the same intersection expressed in the caller's
// output-array coordinates), per §4.6 step 3.
func ChunkSelections(sel []selection.Slice, idx []int, layoutDims []int64) (chunkSel, dataSel []selection.Slice, err error) {
	nd := len(sel)
	chunkSel = make([]selection.Slice, nd)
	dataSel = make([]selection.Slice, nd)
	for i := 0; i < nd; i++ {
		chunkStart := int64(idx[i]) * layoutDims[i]
		chunkStop := chunkStart + layoutDims[i]

		// first selected coordinate >= chunkStart that lies on the step grid
		s := sel[i]
		first := s.Start
		if first < chunkStart {
			// advance to the first grid point inside the chunk
			delta := chunkStart - first
			steps := (delta + s.Step - 1) / s.Step
			first = first + steps*s.Step
		}
		if first >= chunkStop || first >= s.Stop {
			return nil, nil, cmn.NewInternalError("chunk %v does not intersect selection dimension %d", idx, i)
		}
		// last grid point still inside both the chunk and the selection
		last := first
		for last+s.Step < chunkStop && last+s.Step < s.Stop {
			last += s.Step
		}

		chunkSel[i] = selection.Slice{Start: first - chunkStart, Stop: last - chunkStart + 1, Step: s.Step}
		dataIdx0 := (first - s.Start) / s.Step
		count := (last-first)/s.Step + 1
		dataSel[i] = selection.Slice{Start: dataIdx0, Stop: dataIdx0 + count, Step: 1}
	}
	return chunkSel, dataSel, nil
}

// ChunkGridShape computes ceil(dims/layout) per dimension — the bound a
// chunk id's embedded tile-index tuple must lie inside (§3 invariant 5).
func ChunkGridShape(dims, layoutDims []int64) []int64 {
	out := make([]int64, len(dims))
	for i := range dims {
		out[i] = (dims[i] + layoutDims[i] - 1) / layoutDims[i]
	}
	return out
}

// IndexInBounds reports whether idx lies inside the chunk grid for dims and
// layoutDims (§3 invariant 5).
func IndexInBounds(idx []int, dims, layoutDims []int64) bool {
	grid := ChunkGridShape(dims, layoutDims)
	if len(idx) != len(grid) {
		return false
	}
	for i, g := range grid {
		if idx[i] < 0 || int64(idx[i]) >= g {
			return false
		}
	}
	return true
}

// AutoChunkLayout computes a chunk geometry that keeps the per-chunk byte
// size within [minBytes,maxBytes], halving dimensions round-robin starting
// from dims until the target is met (glossary: "Layout").
func AutoChunkLayout(dims []int64, elemSize int, minBytes, maxBytes int64) []int64 {
	layout := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			layout[i] = 1 // unlimited dimension: start with a minimal chunk extent
		} else {
			layout[i] = d
		}
	}
	chunkBytes := func() int64 {
		n := int64(elemSize)
		for _, l := range layout {
			n *= l
		}
		return n
	}
	dim := 0
	for chunkBytes() > maxBytes {
		if layout[dim%len(layout)] > 1 {
			layout[dim%len(layout)] = (layout[dim%len(layout)] + 1) / 2
		}
		dim++
		if dim > 10000 {
			break // safety valve against pathological shapes
		}
	}
	for chunkBytes() < minBytes && dim > 0 {
		dim--
		layout[dim%len(layout)] *= 2
	}
	return layout
}
