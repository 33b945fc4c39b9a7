package servicenode

import (
	"context"
	"strings"

	"github.com/hsds-go/hsds/cmn"
)

// maxLinkHops bounds the SOFT/EXTERNAL link indirection a single h5path
// resolution may chase, so a link cycle fails with a clean error instead of
// recursing forever.
const maxLinkHops = 16

// TraverseH5Path implements SPEC_FULL.md Expansion C item 4: resolve an
// h5path against domain's link tree, returning the id of the object it
// names. A path is split on "/" and each segment is looked up in the
// current group's links{} map (§3 invariant 6); a HARD link continues at
// its id, a SOFT link re-resolves its own h5path from domain's root, and
// an EXTERNAL link re-resolves its h5path from h5domain's root instead. A
// missing segment, or a non-final segment that isn't a group, is the same
// "dangling link" 404 spec.md §7 describes.
func TraverseH5Path(ctx context.Context, c *Context, domain, h5path string) (string, error) {
	return traverseFrom(ctx, c, domain, h5path, 0)
}

func traverseFrom(ctx context.Context, c *Context, domain, h5path string, depth int) (string, error) {
	if depth > maxLinkHops {
		return "", cmn.NewNotFoundError(h5path, "h5path %q nests too many soft/external links", h5path)
	}
	rec, err := ResolveDomain(ctx, c, domain)
	if err != nil {
		return "", err
	}
	current := rec.Root
	segments := splitH5Path(h5path)
	for i, seg := range segments {
		if cmn.CollectionOf(current) != "groups" {
			return "", cmn.NewNotFoundError(h5path, "h5path %q traverses through a non-group object", h5path)
		}
		var link map[string]interface{}
		path := "/groups/" + current + "/links/" + seg
		if err := getDNJSON(ctx, c, current, path, &link); err != nil {
			return "", err
		}
		target, err := resolveLinkTarget(ctx, c, domain, link, depth, h5path)
		if err != nil {
			return "", err
		}
		_ = i
		current = target
	}
	return current, nil
}

// resolveLinkTarget returns the object id a single link entry names,
// chasing SOFT/EXTERNAL indirection as needed.
func resolveLinkTarget(ctx context.Context, c *Context, domain string, link map[string]interface{}, depth int, origPath string) (string, error) {
	class, _ := link["class"].(string)
	switch class {
	case "H5L_TYPE_SOFT":
		target, _ := link["h5path"].(string)
		if target == "" {
			return "", cmn.NewNotFoundError(origPath, "h5path %q hits a soft link with no h5path", origPath)
		}
		return traverseFrom(ctx, c, domain, target, depth+1)
	case "H5L_TYPE_EXTERNAL":
		extDomain, _ := link["h5domain"].(string)
		target, _ := link["h5path"].(string)
		if extDomain == "" || target == "" {
			return "", cmn.NewNotFoundError(origPath, "h5path %q hits an external link missing h5domain/h5path", origPath)
		}
		return traverseFrom(ctx, c, extDomain, target, depth+1)
	default: // "H5L_TYPE_HARD" and any unrecognized class default to hard-link shape
		id, _ := link["id"].(string)
		if id == "" {
			return "", cmn.NewNotFoundError(origPath, "h5path %q hits a link with no id", origPath)
		}
		return id, nil
	}
}

// splitH5Path turns an absolute or relative h5path into its non-empty
// segments; "/" or "" resolves to the root itself (zero segments).
func splitH5Path(h5path string) []string {
	var out []string
	for _, seg := range strings.Split(h5path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
