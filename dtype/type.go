// Package dtype implements the tagged-variant H5 type system called for by
// spec.md §9's Design Notes: the source carries this via run-time reflection
// over JSON blobs; here every query-param "dset" descriptor is parsed into
// one concrete Type variant instead.
package dtype

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/hsds-go/hsds/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Class enumerates the variant tags of the Type sum type.
type Class string

const (
	ClassAtomic     Class = "atomic"
	ClassCompound   Class = "compound"
	ClassVlen       Class = "vlen"
	ClassFixedStr   Class = "fixedstr"
	ClassVarStr     Class = "varstr"
	ClassArray      Class = "array"
	ClassCommitted  Class = "committed"
)

// ByteOrder mirrors the HDF5 "LE"/"BE" tags.
type ByteOrder string

const (
	LittleEndian ByteOrder = "LE"
	BigEndian    ByteOrder = "BE"
)

// Field is one member of a Compound type.
type Field struct {
	Name string `json:"name"`
	Type *Type  `json:"type"`
}

// Type is the tagged variant spec.md §9 prescribes:
//
//	Type = Atomic{base,byteOrder,size}
//	     | Compound{fields[]}
//	     | Vlen{elem}
//	     | FixedString{len,cset,pad}
//	     | VarString{cset,pad}
//	     | Array{elem,dims}
//	     | Committed{id}
//
// Exactly one of the per-class fields is meaningful for a given Class; the
// rest are zero. This mirrors the source's single reflected-JSON "type"
// object while giving Go callers an exhaustive switch on Class.
type Type struct {
	Class Class `json:"class"`

	// Atomic
	Base      string    `json:"base,omitempty"` // e.g. "H5T_STD_I32LE"
	ByteOrder ByteOrder `json:"byteOrder,omitempty"`
	Size      int       `json:"size,omitempty"` // element byte-width

	// Compound
	Fields []Field `json:"fields,omitempty"`

	// Vlen / Array element type
	Elem *Type `json:"elem,omitempty"`

	// FixedString / VarString
	Length int    `json:"length,omitempty"`
	CSet   string `json:"cset,omitempty"` // "ascii" | "utf8"
	Pad    string `json:"pad,omitempty"`  // "nullterm" | "nullpad" | "spacepad"

	// Array
	Dims []int `json:"dims,omitempty"`

	// Committed
	CommittedID string `json:"committedId,omitempty"`
}

// ElementSize returns the byte-width of one element of t, as the chunk
// layout and chunk codec need for reshape/allocate (§6).
func (t *Type) ElementSize() int {
	switch t.Class {
	case ClassAtomic:
		return t.Size
	case ClassFixedStr:
		return t.Length
	case ClassVarStr, ClassVlen:
		return 8 // stored as a vlen descriptor (pointer+length), fixed-width in the chunk
	case ClassCompound:
		sz := 0
		for _, f := range t.Fields {
			sz += f.Type.ElementSize()
		}
		return sz
	case ClassArray:
		n := 1
		for _, d := range t.Dims {
			n *= d
		}
		return n * t.Elem.ElementSize()
	case ClassCommitted:
		return 0 // resolved by the caller via the committed-type id
	default:
		return 0
	}
}

// ByteOrderOf reports the binary.ByteOrder to use when packing/unpacking
// Atomic elements of t.
func (t *Type) ByteOrderOf() binary.ByteOrder {
	if t.ByteOrder == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Parse decodes a JSON "dset" type descriptor (the opaque payload spec.md
// §1 treats as an external collaborator) into a Type.
func Parse(raw []byte) (*Type, error) {
	var t Type
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, cmn.NewBadRequestError("malformed type descriptor: %v", err)
	}
	if t.Class == "" {
		t.Class = ClassAtomic
		if t.Size == 0 {
			t.Size = 4
		}
	}
	return &t, nil
}

// Marshal encodes t back to its JSON wire form.
func (t *Type) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// FillBytes packs fillValue (as decoded from a dataset's creationProperties,
// or nil) into one element's worth of bytes for t, per §4.4 step 5 ("a fresh
// array ... filled with the dataset's fill value (or zero)").
func (t *Type) FillBytes(fillValue interface{}) []byte {
	buf := make([]byte, t.ElementSize())
	if fillValue == nil || t.Class != ClassAtomic {
		return buf // zero value
	}
	order := t.ByteOrderOf()
	switch v := fillValue.(type) {
	case float64:
		switch t.Size {
		case 1:
			buf[0] = byte(int64(v))
		case 2:
			order.PutUint16(buf, uint16(int64(v)))
		case 4:
			order.PutUint32(buf, uint32(int64(v)))
		case 8:
			order.PutUint64(buf, uint64(int64(v)))
		}
	}
	return buf
}

// DecodeElement decodes one element of t (exactly t.ElementSize() bytes, as
// laid out in a chunk array) into a native Go value: a float64 for an
// Atomic element, a trimmed string for a FixedStr element, or a
// field-name-keyed map for a Compound element. This is the query engine's
// (§4.7 query=<bool-expr>) only way to name fields inside chunk bytes —
// everywhere else in this module chunk data stays opaque.
func (t *Type) DecodeElement(raw []byte) (interface{}, error) {
	if len(raw) != t.ElementSize() {
		return nil, cmn.NewBadRequestError("element is %d bytes, type expects %d", len(raw), t.ElementSize())
	}
	switch t.Class {
	case ClassAtomic:
		return decodeAtomicElement(t, raw)
	case ClassFixedStr:
		return decodeFixedString(t, raw), nil
	case ClassCompound:
		rec := make(map[string]interface{}, len(t.Fields))
		off := 0
		for _, f := range t.Fields {
			sz := f.Type.ElementSize()
			v, err := f.Type.DecodeElement(raw[off : off+sz])
			if err != nil {
				return nil, err
			}
			rec[f.Name] = v
			off += sz
		}
		return rec, nil
	default:
		return nil, cmn.NewBadRequestError("query selection is not supported for type class %q", t.Class)
	}
}

func decodeAtomicElement(t *Type, raw []byte) (interface{}, error) {
	order := t.ByteOrderOf()
	isFloat := strings.Contains(t.Base, "F32") || strings.Contains(t.Base, "F64")
	switch {
	case isFloat && t.Size == 4:
		return float64(math.Float32frombits(order.Uint32(raw))), nil
	case isFloat && t.Size == 8:
		return math.Float64frombits(order.Uint64(raw)), nil
	case t.Size == 1:
		return float64(int8(raw[0])), nil
	case t.Size == 2:
		return float64(int16(order.Uint16(raw))), nil
	case t.Size == 4:
		return float64(int32(order.Uint32(raw))), nil
	case t.Size == 8:
		return float64(int64(order.Uint64(raw))), nil
	default:
		return nil, cmn.NewBadRequestError("unsupported atomic element size %d", t.Size)
	}
}

// decodeFixedString trims a fixed-width string element per its pad
// convention ("nullterm"/"nullpad" stop at the first NUL, "spacepad" trims
// trailing spaces), defaulting to NUL-termination.
func decodeFixedString(t *Type, raw []byte) string {
	if t.Pad == "spacepad" {
		return strings.TrimRight(string(raw), " ")
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}
