package datanode

import (
	"context"
	"path"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// Domains are keyed by their human path (cmn.DomainKey), not the opaque
// "<prefix>-<uuid>" scheme groups/datasets/datatypes use, so they bypass
// the generic metadata cache (which is keyed by cmn.S3Key) and talk to the
// object store directly. Domain reads are infrequent enough (one per SN
// request pipeline invocation, §4.9 step 3) that this costs little, and it
// sidesteps teaching the shared cache two incompatible key schemes.

// GetDomain implements the DN side of "GET /domains?domain=<d>" (§4.8, §4.9
// step 3).
func GetDomain(ctx context.Context, c *Context, domainPath string) (map[string]interface{}, error) {
	if !cmn.ValidDomainPath(domainPath) {
		return nil, cmn.NewBadRequestError("malformed domain path %q", domainPath)
	}
	var obj map[string]interface{}
	err := c.Store.GetJSON(ctx, cmn.DomainKey(domainPath), &obj)
	if objstore.IsNotFound(err) {
		return nil, cmn.NewNotFoundError(domainPath, "no domain %q", domainPath)
	}
	if err != nil {
		return nil, cmn.Wrap(err, "reading domain %q", domainPath)
	}
	return obj, nil
}

// CreateDomain implements "PUT /domains?domain=<d>" (§4.8): fails 409 if
// the key already exists.
func CreateDomain(ctx context.Context, c *Context, domainPath string, owner string, acls map[string]interface{}) (map[string]interface{}, error) {
	if !cmn.ValidDomainPath(domainPath) {
		return nil, cmn.NewBadRequestError("malformed domain path %q", domainPath)
	}
	key := cmn.DomainKey(domainPath)
	exists, err := c.Store.Exists(ctx, key)
	if err != nil {
		return nil, cmn.Wrap(err, "checking domain %q", domainPath)
	}
	if exists {
		return nil, cmn.NewConflictError("domain %q already exists", domainPath)
	}
	root := cmn.NewUUID(cmn.PrefixGroup)
	obj := map[string]interface{}{
		"root":    root,
		"owner":   owner,
		"created": nowString(),
		"acls":    acls,
	}
	if _, _, err := c.Store.PutJSON(ctx, key, obj); err != nil {
		return nil, cmn.Wrap(err, "creating domain %q", domainPath)
	}
	rootGroup := map[string]interface{}{
		"id":      root,
		"domain":  domainPath,
		"created": nowString(),
		"links":   map[string]interface{}{},
	}
	c.Meta.Set(root, rootGroup)
	if err := appendIndex(ctx, c.Store, domainPath, "groups", root); err != nil {
		return nil, err
	}
	if parent := parentDomain(domainPath); parent != "" {
		if err := appendIndexKey(ctx, c.Store, childDomainIndexKey(parent), domainPath); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// UpdateDomain merges patch into domainPath's stored JSON (§4.9's
// "GET|PUT|DELETE /acls/<user>": an ACL edit is a merge-patch of the
// domain's "acls" field, never a full recreate).
func UpdateDomain(ctx context.Context, c *Context, domainPath string, patch map[string]interface{}) (map[string]interface{}, error) {
	obj, err := GetDomain(ctx, c, domainPath)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		obj[k] = v
	}
	obj["lastModified"] = nowString()
	if _, _, err := c.Store.PutJSON(ctx, cmn.DomainKey(domainPath), obj); err != nil {
		return nil, cmn.Wrap(err, "updating domain %q", domainPath)
	}
	return obj, nil
}

// DeleteDomain implements "DELETE /domains?domain=<d>" (§4.8).
func DeleteDomain(ctx context.Context, c *Context, domainPath string) error {
	if !cmn.ValidDomainPath(domainPath) {
		return cmn.NewBadRequestError("malformed domain path %q", domainPath)
	}
	if err := c.Store.Delete(ctx, cmn.DomainKey(domainPath)); err != nil {
		return err
	}
	if parent := parentDomain(domainPath); parent != "" {
		return removeIndexKey(ctx, c.Store, childDomainIndexKey(parent), domainPath)
	}
	return nil
}

// parentDomain returns domainPath's parent path, or "" at the root
// ("/home/test" -> "/home"; "/home" -> "").
func parentDomain(domainPath string) string {
	parent := path.Dir(domainPath)
	if parent == "/" || parent == "." || parent == domainPath {
		return ""
	}
	return parent
}

func childDomainIndexKey(parent string) string {
	return parent + "/.domains.txt"
}

// ListChildDomains implements "GET /domains?domain=<parent>" (§4.9 step 7's
// pagination applied to a parent domain's children, per spec.md's
// topleveldomains.txt convention generalized to any parent path).
func ListChildDomains(ctx context.Context, store objstore.Client, parent, marker string, limit int) ([]string, error) {
	ids, err := readIndexKey(ctx, store, childDomainIndexKey(parent))
	if err != nil {
		return nil, err
	}
	return paginate(ids, marker, limit), nil
}
