package datanode

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// indexKey returns the object-store key of a domain's per-collection index
// file: "<domain>/.groups.txt", "/.datasets.txt", "/.datatypes.txt" (§7's
// object-store blob layout note), one id per line, maintained alongside the
// collection itself so the SN's listing path (§4.9 step 7) never has to
// scan the store. This module keeps one id per line rather than the fuller
// "<id> <etag> <lastModified> <size>" row §7 describes — simplification
// noted in DESIGN.md, since nothing downstream of ListCollection needs
// those columns.
func indexKey(domain, collection string) string {
	return strings.TrimPrefix(domain, "/") + "/." + collection + ".txt"
}

// chunkIndexKey returns a per-dataset chunk index file's key,
// "<domain>/.<dsetuuid>.chunks.txt" (§7), so a dataset delete's chunk sweep
// never has to read every chunk ever written to the domain.
func chunkIndexKey(domain, datasetID string) string {
	return strings.TrimPrefix(domain, "/") + "/." + datasetID + ".chunks.txt"
}

// appendIndex adds id to its domain's collection index file, a no-op if
// already present. Read-modify-write is safe here because each domain's
// index file is itself partition-owned by the same DN that owns the
// domain key (both hash off the domain path), so concurrent writers never
// race across nodes — only within this node's own event loop, which the
// HTTP handler serializes per request.
func appendIndex(ctx context.Context, store objstore.Client, domain, collection, id string) error {
	return appendIndexKey(ctx, store, indexKey(domain, collection), id)
}

// removeIndex deletes id from its domain's collection index file.
func removeIndex(ctx context.Context, store objstore.Client, domain, collection, id string) error {
	return removeIndexKey(ctx, store, indexKey(domain, collection), id)
}

func readIndex(ctx context.Context, store objstore.Client, domain, collection string) ([]string, error) {
	return readIndexKey(ctx, store, indexKey(domain, collection))
}

func writeIndex(ctx context.Context, store objstore.Client, domain, collection string, ids []string) error {
	return writeIndexKey(ctx, store, indexKey(domain, collection), ids)
}

// appendChunkIndexFile / readChunkIndexFile / writeChunkIndexFile parallel
// the above for the per-dataset chunk index (chunkIndexKey).
func appendChunkIndexFile(ctx context.Context, store objstore.Client, domain, datasetID, chunkID string) error {
	return appendIndexKey(ctx, store, chunkIndexKey(domain, datasetID), chunkID)
}

func readChunkIndexFile(ctx context.Context, store objstore.Client, domain, datasetID string) ([]string, error) {
	return readIndexKey(ctx, store, chunkIndexKey(domain, datasetID))
}

func writeChunkIndexFile(ctx context.Context, store objstore.Client, domain, datasetID string, ids []string) error {
	return writeIndexKey(ctx, store, chunkIndexKey(domain, datasetID), ids)
}

func appendIndexKey(ctx context.Context, store objstore.Client, key, id string) error {
	ids, err := readIndexKey(ctx, store, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return writeIndexKey(ctx, store, key, ids)
}

func removeIndexKey(ctx context.Context, store objstore.Client, key, id string) error {
	ids, err := readIndexKey(ctx, store, key)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return writeIndexKey(ctx, store, key, out)
}

func readIndexKey(ctx context.Context, store objstore.Client, key string) ([]string, error) {
	data, _, _, _, err := store.Get(ctx, key)
	if objstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cmn.Wrap(err, "reading index %q", key)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func writeIndexKey(ctx context.Context, store objstore.Client, key string, ids []string) error {
	sort.Strings(ids)
	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	_, _, err := store.Put(ctx, key, buf.Bytes())
	return err
}

// ListCollection implements §4.9 step 7: read the domain's collection index
// file and apply the optional Marker/Limit pagination.
func ListCollection(ctx context.Context, store objstore.Client, domain, collection, marker string, limit int) ([]string, error) {
	ids, err := readIndex(ctx, store, domain, collection)
	if err != nil {
		return nil, err
	}
	return paginate(ids, marker, limit), nil
}

// paginate applies §4.9 step 7's Marker/Limit pagination to a sorted id
// list: Marker is the last-seen id, exclusive; Limit caps the page size.
func paginate(ids []string, marker string, limit int) []string {
	if marker != "" {
		i := sort.SearchStrings(ids, marker)
		if i < len(ids) && ids[i] == marker {
			i++
		}
		ids = ids[i:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
