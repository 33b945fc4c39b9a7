// Package chunkcodec implements the chunk compression codec of §6: a raw
// zlib deflate stream, level taken from a dataset's
// creationProperties.filters[*].level. The codec itself is an external
// collaborator per spec.md §1 (invoked as encode(bytes,level)->bytes /
// decode); this package is the concrete implementation that collaborator
// satisfies, using klauspost's faster drop-in zlib rather than stdlib's.
package chunkcodec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/hsds-go/hsds/cmn"
)

// Encode deflates data at the given zlib level (0 means "store", 1-9 as
// usual); level<0 leaves data unmodified ("no compression configured").
func Encode(data []byte, level int) ([]byte, error) {
	if level < 0 {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, cmn.NewInternalError("zlib writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, cmn.NewInternalError("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, cmn.NewInternalError("zlib close: %v", err)
	}
	return buf.Bytes(), nil
}

// Decode inflates a raw zlib stream previously produced by Encode.
// compressed=false callers should not call Decode at all; this package only
// knows how to reverse its own Encode.
func Decode(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, cmn.NewInternalError("zlib reader: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.NewInternalError("zlib read: %v", err)
	}
	return out, nil
}
