package dtype

import "testing"

func TestParseAtomicDefault(t *testing.T) {
	ty, err := Parse([]byte(`{"base":"H5T_STD_I32LE","size":4}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ty.Class != ClassAtomic {
		t.Fatalf("Class = %q, want atomic", ty.Class)
	}
	if ty.ElementSize() != 4 {
		t.Fatalf("ElementSize = %d, want 4", ty.ElementSize())
	}
}

func TestCompoundElementSize(t *testing.T) {
	ty := &Type{
		Class: ClassCompound,
		Fields: []Field{
			{Name: "x", Type: &Type{Class: ClassAtomic, Size: 4}},
			{Name: "y", Type: &Type{Class: ClassAtomic, Size: 8}},
		},
	}
	if got := ty.ElementSize(); got != 12 {
		t.Fatalf("ElementSize = %d, want 12", got)
	}
}

func TestArrayElementSize(t *testing.T) {
	ty := &Type{
		Class: ClassArray,
		Dims:  []int{2, 3},
		Elem:  &Type{Class: ClassAtomic, Size: 4},
	}
	if got := ty.ElementSize(); got != 24 {
		t.Fatalf("ElementSize = %d, want 24", got)
	}
}

func TestFillBytesZeroWhenNil(t *testing.T) {
	ty := &Type{Class: ClassAtomic, Size: 4}
	b := ty.FillBytes(nil)
	for _, c := range b {
		if c != 0 {
			t.Fatalf("expected all-zero fill, got %v", b)
		}
	}
}

func TestFillBytesInt32(t *testing.T) {
	ty := &Type{Class: ClassAtomic, Size: 4}
	b := ty.FillBytes(float64(-1))
	want := []byte{0xff, 0xff, 0xff, 0xff}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("FillBytes = %v, want %v", b, want)
		}
	}
}
