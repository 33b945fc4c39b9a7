package datanode

import (
	"context"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// LinkSpec is the optional "link" clause on a POST body (§4.8): atomically
// attach the newly created object to a parent group under name.
type LinkSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func prefixForCollection(collection string) (string, error) {
	switch collection {
	case "groups":
		return cmn.PrefixGroup, nil
	case "datasets":
		return cmn.PrefixDataset, nil
	case "datatypes":
		return cmn.PrefixDatatype, nil
	default:
		return "", cmn.NewBadRequestError("unknown collection %q", collection)
	}
}

// GetObject implements "GET /<coll>/<id>" (§4.8): a thin pass-through to the
// metadata cache, which already distinguishes a plain cache/store miss
// (404, cmn.NewNotFoundError) from a tombstoned id (410, cmn.NewGoneError).
func GetObject(ctx context.Context, c *Context, id string) (map[string]interface{}, error) {
	return c.Meta.Get(ctx, id)
}

// CreateObject implements "POST /<coll>" (§4.8): mint a new id, store body
// under it, and — if body carries a "link" clause — atomically attach it to
// the named parent group, rejecting a duplicate link name with 409.
func CreateObject(ctx context.Context, c *Context, domain, collection string, body map[string]interface{}, owner string) (string, error) {
	prefix, err := prefixForCollection(collection)
	if err != nil {
		return "", err
	}
	// The SN mints the id before routing here (so the chosen DN is, by
	// construction, the one hash(id) selects); a caller hitting this DN
	// route directly without one gets a locally-minted id instead.
	id, _ := body["id"].(string)
	if id == "" {
		id = cmn.NewUUID(prefix)
	} else if err := cmn.Validate(id, prefix); err != nil {
		return "", cmn.NewBadRequestError("pre-assigned id %q invalid for collection %q: %v", id, collection, err)
	}
	body["id"] = id
	body["domain"] = domain
	if _, ok := body["created"]; !ok {
		body["created"] = nowString()
	}
	if owner != "" {
		if _, ok := body["owner"]; !ok {
			body["owner"] = owner
		}
	}

	var link *LinkSpec
	if raw, ok := body["link"]; ok {
		l, err := parseLinkSpec(raw)
		if err != nil {
			return "", err
		}
		link = l
		delete(body, "link")
	}

	if link != nil {
		parent, err := c.Meta.Get(ctx, link.ID)
		if err != nil {
			return "", cmn.Wrap(err, "resolving link parent %q", link.ID)
		}
		links, _ := parent["links"].(map[string]interface{})
		if links == nil {
			links = map[string]interface{}{}
		}
		if _, exists := links[link.Name]; exists {
			return "", cmn.NewConflictError("link %q already exists on %q", link.Name, link.ID)
		}
		links[link.Name] = map[string]interface{}{"id": id, "class": "H5L_TYPE_HARD"}
		parent["links"] = links
		c.Meta.Set(link.ID, parent)
	}

	c.Meta.Set(id, body)
	if err := appendIndex(ctx, c.Store, domain, collection, id); err != nil {
		return "", err
	}
	return id, nil
}

func parseLinkSpec(raw interface{}) (*LinkSpec, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, cmn.NewBadRequestError("malformed link clause")
	}
	id, _ := m["id"].(string)
	name, _ := m["name"].(string)
	if id == "" || name == "" {
		return nil, cmn.NewBadRequestError("link clause requires id and name")
	}
	return &LinkSpec{ID: id, Name: name}, nil
}

// DeleteObject implements "DELETE /<coll>/<id>" (§4.8): tombstone the
// cache entry, delete the blob from the store (a blob the syncer never
// flushed is not an error), remove it from its domain's collection index,
// and — for datasets — sweep their chunk blobs too. The deletion runs
// inline; no GC collaborator is notified. The id stays tombstoned, so a
// later GET of it answers 410.
func DeleteObject(ctx context.Context, c *Context, domain, collection, id string) error {
	c.Meta.Delete(id)
	if err := c.Store.Delete(ctx, cmn.S3Key(id)); err != nil && !objstore.IsNotFound(err) {
		return cmn.Wrap(err, "deleting %q", id)
	}
	if err := removeIndex(ctx, c.Store, domain, collection, id); err != nil {
		return err
	}
	if collection == "datasets" {
		return sweepChunks(ctx, c, domain, id)
	}
	return nil
}

// sweepChunks removes every chunk blob belonging to a deleted dataset,
// using that dataset's own chunk index file to avoid a store-wide scan
// (§7's per-dataset "<domain>/.<dsetuuid>.chunks.txt").
func sweepChunks(ctx context.Context, c *Context, domain, datasetID string) error {
	ids, err := readChunkIndexFile(ctx, c.Store, domain, datasetID)
	if err != nil {
		return err
	}
	for _, chunkID := range ids {
		c.Chunks.Delete(chunkID)
		if err := c.Store.Delete(ctx, cmn.Hash5(chunkID)+"-"+chunkID); err != nil {
			return cmn.Wrap(err, "sweeping chunk %q", chunkID)
		}
	}
	return writeChunkIndexFile(ctx, c.Store, domain, datasetID, nil)
}

// UpdateObject merges patch into id's stored JSON and writes it back
// (§4.9's "PUT /datasets/<id>/shape" resize operation, and the analogous
// group/datatype field updates): unlike CreateObject this never mints a
// new id or touches a collection index, since the object already exists.
func UpdateObject(ctx context.Context, c *Context, id string, patch map[string]interface{}) (map[string]interface{}, error) {
	obj, err := c.Meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		obj[k] = v
	}
	obj["lastModified"] = nowString()
	c.Meta.Set(id, obj)
	return obj, nil
}
