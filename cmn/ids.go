package cmn

import (
	"crypto/md5" //nolint:gosec // spec-mandated shard digest, not a security primitive
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Collection prefixes, as enumerated in §3's Data Model table.
const (
	PrefixGroup    = "g"
	PrefixDataset  = "d"
	PrefixDatatype = "t"
	PrefixChunk    = "c"
)

// HeadPointerKey is the fixed object-store key the head node publishes its
// coordinates under (§3).
const HeadPointerKey = "headnode"

// Hash5 returns the first 5 hex digits of MD5(id), per §4.1. This is the
// shard key used both for DN ownership (Partition) and for the object-store
// key prefix (S3Key); it carries no semantic meaning beyond distribution.
func Hash5(id string) string {
	sum := md5.Sum([]byte(id)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:5]
}

// Partition maps id to a node index in [0,n) via int(Hash5(id), 16) mod n.
// The same function is used by every peer, so ownership is deterministic
// from the id alone (§3 invariant 1, §4.1).
func Partition(id string, n int) int {
	if n <= 0 {
		return 0
	}
	v, _ := strconv.ParseUint(Hash5(id), 16, 64)
	return int(v % uint64(n))
}

// S3Key returns the object-store blob key for a non-chunk, non-domain id:
// md5hex(id)[:5] + "-" + id (§3 invariant 2).
func S3Key(id string) string {
	return Hash5(id) + "-" + id
}

// DomainKey returns the object-store blob key for a domain path: the path
// with its leading "/" stripped and "/.domain.json" appended (§3 invariant
// 2). domainPath must start with "/".
func DomainKey(domainPath string) string {
	return strings.TrimPrefix(domainPath, "/") + "/.domain.json"
}

// CollectionOf returns the collection name ("groups"/"datasets"/"datatypes"/
// "chunks") implied by id's leading letter (§4.1).
func CollectionOf(id string) string {
	if id == "" {
		return ""
	}
	switch id[0:1] {
	case PrefixGroup:
		return "groups"
	case PrefixDataset:
		return "datasets"
	case PrefixDatatype:
		return "datatypes"
	case PrefixChunk:
		return "chunks"
	default:
		return ""
	}
}

// NewChunkID builds a chunk id "c-<dsetuuid>_<i0>_<i1>_..." from a dataset
// id "d-<uuid>" and its tile index tuple (§3 Data Model, §4.1).
func NewChunkID(datasetID string, index []int) string {
	var b strings.Builder
	b.WriteString(PrefixChunk)
	b.WriteByte('-')
	b.WriteString(strings.TrimPrefix(datasetID, PrefixDataset+"-"))
	for _, i := range index {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// DatasetOf strips a chunk id's "_i0_i1_..." suffix and rewrites its prefix
// from "c-" to "d-", recovering the owning dataset id (§4.1).
func DatasetOf(chunkID string) (string, error) {
	if err := Validate(chunkID, PrefixChunk); err != nil {
		return "", err
	}
	body := chunkID[2:] // strip "c-"
	idx := strings.IndexByte(body, '_')
	uuidPart := body
	if idx >= 0 {
		uuidPart = body[:idx]
	}
	return PrefixDataset + "-" + uuidPart, nil
}

// ChunkIndex parses a chunk id's "_"-separated integer tuple (§4.1).
func ChunkIndex(chunkID string) ([]int, error) {
	if err := Validate(chunkID, PrefixChunk); err != nil {
		return nil, err
	}
	body := chunkID[2:]
	parts := strings.Split(body, "_")
	if len(parts) < 2 {
		return nil, NewBadRequestError("chunk id %q carries no tile index", chunkID)
	}
	idx := make([]int, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, NewBadRequestError("chunk id %q has a non-integer tile index %q", chunkID, p)
		}
		idx = append(idx, n)
	}
	return idx, nil
}

// Validate checks that id has a well-formed "<prefix>-<uuid>[...]" shape and,
// if expectedPrefix is non-empty, that its collection prefix matches (§4.1).
func Validate(id, expectedPrefix string) error {
	if len(id) < 3 || id[1] != '-' {
		return NewBadRequestError("malformed id %q", id)
	}
	prefix := id[0:1]
	if expectedPrefix != "" && prefix != expectedPrefix {
		return NewBadRequestError("id %q is not a %q id", id, expectedPrefix)
	}
	switch prefix {
	case PrefixGroup, PrefixDataset, PrefixDatatype, PrefixChunk:
	default:
		return NewBadRequestError("malformed id %q: unknown prefix %q", id, prefix)
	}
	body := id[2:]
	if i := strings.IndexByte(body, '_'); i >= 0 {
		body = body[:i]
	}
	if _, err := uuid.Parse(body); err != nil {
		return NewBadRequestError("malformed id %q: %q is not a uuid", id, body)
	}
	return nil
}

// NewUUID mints a new id of the given prefix, e.g. NewUUID(PrefixGroup)
// returns "g-<uuid>" (§3 Data Model).
func NewUUID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// ValidDomainPath reports whether p is a well-formed domain path: starts
// with "/", has no trailing "/", and contains no doubled dots (§4.9 step 1).
func ValidDomainPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if len(p) > 1 && p[len(p)-1] == '/' {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}
