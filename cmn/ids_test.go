package cmn

import "testing"

func TestPartitionDeterministic(t *testing.T) {
	id := "d-0d1f0a26-7c7e-4b9e-8a9a-6e6f6d6f6d6f"
	want := Partition(id, 8)
	for i := 0; i < 100; i++ {
		if got := Partition(id, 8); got != want {
			t.Fatalf("partition not deterministic: got %d want %d", got, want)
		}
	}
	if want < 0 || want >= 8 {
		t.Fatalf("partition %d out of range [0,8)", want)
	}
}

func TestS3Key(t *testing.T) {
	id := "g-abc"
	key := S3Key(id)
	if len(key) != len(Hash5(id))+1+len(id) {
		t.Fatalf("unexpected key shape: %q", key)
	}
	if key[5] != '-' {
		t.Fatalf("expected '-' separator at index 5, got %q", key)
	}
}

func TestDomainKey(t *testing.T) {
	got := DomainKey("/u/test.h6")
	want := "u/test.h6/.domain.json"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestChunkIDRoundTrip(t *testing.T) {
	dset := NewUUID(PrefixDataset)
	chunkID := NewChunkID(dset, []int{2, 0, 7})

	if err := Validate(chunkID, PrefixChunk); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	gotDset, err := DatasetOf(chunkID)
	if err != nil {
		t.Fatalf("DatasetOf: %v", err)
	}
	if gotDset != dset {
		t.Fatalf("DatasetOf = %q, want %q", gotDset, dset)
	}
	gotIdx, err := ChunkIndex(chunkID)
	if err != nil {
		t.Fatalf("ChunkIndex: %v", err)
	}
	want := []int{2, 0, 7}
	if len(gotIdx) != len(want) {
		t.Fatalf("ChunkIndex length = %d, want %d", len(gotIdx), len(want))
	}
	for i := range want {
		if gotIdx[i] != want[i] {
			t.Fatalf("ChunkIndex[%d] = %d, want %d", i, gotIdx[i], want[i])
		}
	}
}

func TestCollectionOf(t *testing.T) {
	cases := map[string]string{
		"g-x": "groups", "d-x": "datasets", "t-x": "datatypes", "c-x_0": "chunks",
	}
	for id, want := range cases {
		if got := CollectionOf(id); got != want {
			t.Fatalf("CollectionOf(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestValidDomainPath(t *testing.T) {
	good := []string{"/u/test.h6", "/u"}
	bad := []string{"", "no-leading-slash", "/u/test.h6/", "/u/../etc"}
	for _, p := range good {
		if !ValidDomainPath(p) {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	for _, p := range bad {
		if ValidDomainPath(p) {
			t.Fatalf("expected %q to be invalid", p)
		}
	}
}
