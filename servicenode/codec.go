package servicenode

import (
	"encoding/base64"
	"math"
	"strings"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/dtype"
)

// valueEnvelope is the wire body for the hyperslab/point value endpoints
// (§6 "GET|PUT /datasets/<id>/value"): either a JSON array of native values
// or a base64-packed byte string, never both.
type valueEnvelope struct {
	Value       []interface{} `json:"value,omitempty"`
	ValueBase64 string        `json:"value_base64,omitempty"`
}

// decodeValueBody turns a value envelope into a packed byte buffer in t's
// element encoding, honoring whichever of Value/ValueBase64 is present.
func decodeValueBody(t *dtype.Type, body valueEnvelope) ([]byte, error) {
	if body.ValueBase64 != "" {
		return base64.StdEncoding.DecodeString(body.ValueBase64)
	}
	return encodeAtomicValues(t, body.Value)
}

// encodeValueBody packs raw into an envelope, preferring a native JSON
// array for atomic numeric types (readable in test fixtures) and falling
// back to base64 for anything this module doesn't decode natively.
func encodeValueBody(t *dtype.Type, raw []byte) valueEnvelope {
	if t.Class == dtype.ClassAtomic {
		if vals, ok := decodeAtomicValues(t, raw); ok {
			return valueEnvelope{Value: vals}
		}
	}
	return valueEnvelope{ValueBase64: base64.StdEncoding.EncodeToString(raw)}
}

// encodeAtomicValues packs a JSON-decoded array of numbers into t's
// element byte encoding (§9 Design Notes' tagged Atomic variant).
func encodeAtomicValues(t *dtype.Type, values []interface{}) ([]byte, error) {
	elemSize := t.ElementSize()
	out := make([]byte, 0, elemSize*len(values))
	order := t.ByteOrderOf()
	isFloat := strings.Contains(t.Base, "F32") || strings.Contains(t.Base, "F64")
	for _, rawV := range values {
		f, ok := rawV.(float64)
		if !ok {
			return nil, cmn.NewBadRequestError("value element %v is not numeric", rawV)
		}
		buf := make([]byte, elemSize)
		switch {
		case isFloat && elemSize == 4:
			order.PutUint32(buf, math.Float32bits(float32(f)))
		case isFloat && elemSize == 8:
			order.PutUint64(buf, math.Float64bits(f))
		case elemSize == 1:
			buf[0] = byte(int64(f))
		case elemSize == 2:
			order.PutUint16(buf, uint16(int64(f)))
		case elemSize == 4:
			order.PutUint32(buf, uint32(int64(f)))
		case elemSize == 8:
			order.PutUint64(buf, uint64(int64(f)))
		default:
			return nil, cmn.NewBadRequestError("unsupported atomic element size %d", elemSize)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// decodeAtomicValues is encodeAtomicValues's inverse; ok is false for an
// atomic size this module doesn't natively decode (callers fall back to
// base64 in that case).
func decodeAtomicValues(t *dtype.Type, raw []byte) ([]interface{}, bool) {
	elemSize := t.ElementSize()
	if elemSize <= 0 || len(raw)%elemSize != 0 {
		return nil, false
	}
	order := t.ByteOrderOf()
	isFloat := strings.Contains(t.Base, "F32") || strings.Contains(t.Base, "F64")
	n := len(raw) / elemSize
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		elem := raw[i*elemSize : (i+1)*elemSize]
		switch {
		case isFloat && elemSize == 4:
			out[i] = float64(math.Float32frombits(order.Uint32(elem)))
		case isFloat && elemSize == 8:
			out[i] = math.Float64frombits(order.Uint64(elem))
		case elemSize == 1:
			out[i] = float64(int8(elem[0]))
		case elemSize == 2:
			out[i] = float64(int16(order.Uint16(elem)))
		case elemSize == 4:
			out[i] = float64(int32(order.Uint32(elem)))
		case elemSize == 8:
			out[i] = float64(int64(order.Uint64(elem)))
		default:
			return nil, false
		}
	}
	return out, true
}
