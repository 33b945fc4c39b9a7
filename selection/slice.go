// Package selection implements the hyperslab selection type of §4.6:
// per-dimension (start,stop,step) slices, parsed from the SN's "?select="
// query parameter, plus point-list selections for the POST value endpoints.
package selection

import (
	"strconv"
	"strings"

	"github.com/hsds-go/hsds/cmn"
)

// Slice is one dimension's (start,stop,step) hyperslab, half-open
// [Start,Stop) stepped by Step (Step>=1).
type Slice struct {
	Start int64
	Stop  int64
	Step  int64
}

// Count returns the number of elements this slice selects.
func (s Slice) Count() int64 {
	if s.Stop <= s.Start {
		return 0
	}
	return (s.Stop - s.Start + s.Step - 1) / s.Step
}

// Full returns the slice selecting the entire dimension of extent dim.
func Full(dim int64) Slice { return Slice{Start: 0, Stop: dim, Step: 1} }

// ParseSelect parses the "?select=" query parameter's
// "[start:stop:step, start:stop:step, ...]" syntax against dims, defaulting
// any omitted slice to the whole dimension (§4.6, §6 value endpoints).
func ParseSelect(raw string, dims []int64) ([]Slice, error) {
	if raw == "" {
		out := make([]Slice, len(dims))
		for i, d := range dims {
			out[i] = Full(d)
		}
		return out, nil
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	parts := strings.Split(raw, ",")
	if len(parts) != len(dims) {
		return nil, cmn.NewBadRequestError("selection has %d dimensions, dataset has %d", len(parts), len(dims))
	}
	out := make([]Slice, len(parts))
	for i, p := range parts {
		sl, err := parseOneDim(strings.TrimSpace(p), dims[i])
		if err != nil {
			return nil, err
		}
		out[i] = sl
	}
	return out, nil
}

func parseOneDim(p string, dim int64) (Slice, error) {
	if p == "" {
		return Full(dim), nil
	}
	fields := strings.Split(p, ":")
	sl := Slice{Start: 0, Stop: dim, Step: 1}
	parse := func(s string, dst *int64) error {
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return cmn.NewBadRequestError("malformed selection field %q", s)
		}
		*dst = n
		return nil
	}
	switch len(fields) {
	case 1:
		if err := parse(fields[0], &sl.Start); err != nil {
			return Slice{}, err
		}
		sl.Stop = sl.Start + 1
	case 2:
		if err := parse(fields[0], &sl.Start); err != nil {
			return Slice{}, err
		}
		if err := parse(fields[1], &sl.Stop); err != nil {
			return Slice{}, err
		}
	case 3:
		if err := parse(fields[0], &sl.Start); err != nil {
			return Slice{}, err
		}
		if err := parse(fields[1], &sl.Stop); err != nil {
			return Slice{}, err
		}
		if err := parse(fields[2], &sl.Step); err != nil {
			return Slice{}, err
		}
	default:
		return Slice{}, cmn.NewBadRequestError("malformed selection term %q", p)
	}
	if sl.Step <= 0 {
		sl.Step = 1
	}
	if sl.Start < 0 || sl.Stop > dim || sl.Start > sl.Stop {
		return Slice{}, cmn.NewBadRequestError("selection [%d:%d:%d] out of bounds for dimension of extent %d",
			sl.Start, sl.Stop, sl.Step, dim)
	}
	return sl, nil
}

// Shape returns the element-count shape of sel.
func Shape(sel []Slice) []int64 {
	shape := make([]int64, len(sel))
	for i, s := range sel {
		shape[i] = s.Count()
	}
	return shape
}

// Point is one N-d coordinate used by the point read/write path (§4.6 step
// 6, POST .../value).
type Point []int64
