package chunkcodec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := bytes.Repeat([]byte("abcdefgh"), 1000)
	enc, err := Encode(orig, 6)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) >= len(orig) {
		t.Fatalf("expected compression to shrink repetitive input")
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec, orig) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEncodeNegativeLevelIsNoop(t *testing.T) {
	orig := []byte("hello")
	enc, err := Encode(orig, -1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(enc, orig) {
		t.Fatalf("expected passthrough, got %v", enc)
	}
}
