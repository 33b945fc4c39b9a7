package datanode

import (
	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/selection"
)

// strides returns the row-major (C-order) element strides for dims, per §6
// "Data Model: Array" — the last dimension varies fastest.
func strides(dims []int64) []int64 {
	out := make([]int64, len(dims))
	acc := int64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		out[i] = acc
		acc *= dims[i]
	}
	return out
}

// forEachCoord walks every coordinate tuple sel selects, row-major, calling
// fn with each tuple's linear element offset (relative to dims' strides).
func forEachCoord(sel []selection.Slice, dims []int64, fn func(linear int64)) {
	nd := len(sel)
	idx := make([]int64, nd)
	for i := range idx {
		idx[i] = sel[i].Start
	}
	str := strides(dims)
	total := int64(1)
	for _, s := range sel {
		total *= s.Count()
	}
	for n := int64(0); n < total; n++ {
		var linear int64
		for i, v := range idx {
			linear += v * str[i]
		}
		fn(linear)

		for pos := nd - 1; pos >= 0; pos-- {
			idx[pos] += sel[pos].Step
			if idx[pos] < sel[pos].Stop {
				break
			}
			idx[pos] = sel[pos].Start
		}
	}
}

// ReadSubArray extracts the sub-array sel selects out of arr (whose shape
// is the dataset's chunk layout), packing it row-major with elemSize bytes
// per element (§4.6 step 3's chunk_sel, §4.7 GET).
func ReadSubArray(arr *chunkcache.Array, sel []selection.Slice, elemSize int) []byte {
	var out []byte
	forEachCoord(sel, arr.Shape, func(linear int64) {
		off := linear * int64(elemSize)
		out = append(out, arr.Data[off:off+int64(elemSize)]...)
	})
	return out
}

// WriteSubArray writes data (packed row-major, elemSize bytes/element) into
// arr at the coordinates sel selects (§4.7 PUT: "chunk_arr[chunk_sel] =
// input").
func WriteSubArray(arr *chunkcache.Array, sel []selection.Slice, elemSize int, data []byte) error {
	var want int64 = 1
	for _, s := range sel {
		want *= s.Count()
	}
	if int64(len(data)) != want*int64(elemSize) {
		return cmn.NewBadRequestError("input array carries %d bytes, selection expects %d", len(data), want*int64(elemSize))
	}
	pos := int64(0)
	forEachCoord(sel, arr.Shape, func(linear int64) {
		off := linear * int64(elemSize)
		copy(arr.Data[off:off+int64(elemSize)], data[pos:pos+int64(elemSize)])
		pos += int64(elemSize)
	})
	return nil
}
