package chunklayout

import (
	"testing"

	"github.com/hsds-go/hsds/selection"
)

func TestNumChunksSimple(t *testing.T) {
	// dataset shape=[45,54], layout=[10,10], full selection
	sel := []selection.Slice{selection.Full(45), selection.Full(54)}
	layout := []int64{10, 10}
	n := NumChunks(sel, layout)
	// ceil(45/10)=5, ceil(54/10)=6 -> 30
	if n != 30 {
		t.Fatalf("NumChunks = %d, want 30", n)
	}
}

func TestEnumerateChunkIndicesCount(t *testing.T) {
	sel := []selection.Slice{selection.Full(45), selection.Full(54)}
	layout := []int64{10, 10}
	idxs := EnumerateChunkIndices(sel, layout)
	if int64(len(idxs)) != NumChunks(sel, layout) {
		t.Fatalf("enumerate count %d != NumChunks %d", len(idxs), NumChunks(sel, layout))
	}
}

// TestCoverageReassembly exercises invariant 4: the union of chunk
// coverages equals the selection, the images are pairwise disjoint, and
// reassembly reproduces the original flattened index set.
func TestCoverageReassembly(t *testing.T) {
	dims := []int64{45, 54}
	layout := []int64{10, 10}
	sel := []selection.Slice{
		{Start: 2, Stop: 40, Step: 1},
		{Start: 5, Stop: 50, Step: 1},
	}
	shape := selection.Shape(sel)
	total := int(shape[0] * shape[1])

	covered := make([]bool, total)
	idxs := EnumerateChunkIndices(sel, layout)
	for _, idx := range idxs {
		if !IndexInBounds(idx, dims, layout) {
			t.Fatalf("chunk index %v out of grid bounds", idx)
		}
		chunkSel, dataSel, err := ChunkSelections(sel, idx, layout)
		if err != nil {
			t.Fatalf("ChunkSelections: %v", err)
		}
		// chunkSel count must equal dataSel count (same number of elements).
		cc := chunkSel[0].Count() * chunkSel[1].Count()
		dc := dataSel[0].Count() * dataSel[1].Count()
		if cc != dc {
			t.Fatalf("chunk %v: chunkSel count %d != dataSel count %d", idx, cc, dc)
		}
		for r := dataSel[0].Start; r < dataSel[0].Stop; r++ {
			for c := dataSel[1].Start; c < dataSel[1].Stop; c++ {
				flat := int(r*shape[1] + c)
				if covered[flat] {
					t.Fatalf("position (%d,%d) covered by more than one chunk", r, c)
				}
				covered[flat] = true
			}
		}
	}
	for i, ok := range covered {
		if !ok {
			t.Fatalf("position %d never covered by any chunk", i)
		}
	}
}

func TestAutoChunkLayoutWithinBounds(t *testing.T) {
	dims := []int64{10000, 10000}
	layout := AutoChunkLayout(dims, 4, DefaultChunkMin, DefaultChunkMax)
	bytes := int64(4)
	for _, l := range layout {
		bytes *= l
	}
	if bytes > DefaultChunkMax {
		t.Fatalf("chunk size %d exceeds max %d", bytes, DefaultChunkMax)
	}
}

func TestChunkGridShape(t *testing.T) {
	grid := ChunkGridShape([]int64{45, 54}, []int64{10, 10})
	if grid[0] != 5 || grid[1] != 6 {
		t.Fatalf("grid = %v, want [5 6]", grid)
	}
}
