// Package servicenode implements the public-facing SN request pipeline and
// hyperslab read/write engine of §4.6/§4.9: domain/ACL resolution, routing
// object-specific operations to the owning DN, and concurrent chunk
// fan-out for value reads/writes. Grounded on the teacher's proxy
// (ais/proxy.go): a stateless-by-design front end that authenticates,
// authorizes, and dispatches to the target that owns an object, then
// fans a multi-object request out across targets concurrently
// (ais/prxtxn.go's dispatch-to-owner idiom generalizes directly to
// dispatch-to-owning-DN here).
package servicenode

import (
	"net/http"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
	"github.com/hsds-go/hsds/stats"
)

// ViewFunc returns the SN's current snapshot of the cluster view, refreshed
// by its own /nodestate poll loop (§4.10); kept as a function rather than a
// field so tests can swap in a fixed view without a live head node.
type ViewFunc func() *clustermap.View

// Context bundles an SN's process-local state.
type Context struct {
	View   ViewFunc
	Store  objstore.Client // for collection-index listing (§4.9 step 7), read directly rather than via a DN round-trip
	Users  *authn.UserStore
	Client *http.Client
	Config *cmn.Config
	Stats  *stats.Registry
}

func NewContext(view ViewFunc, store objstore.Client, users *authn.UserStore, c *cmn.Config) *Context {
	return &Context{
		View:   view,
		Store:  store,
		Users:  users,
		Client: &http.Client{Timeout: c.Timeout},
		Config: c,
	}
}

// dataNodeURL resolves the DN owning id via the current cluster view
// (§4.1 invariant 1).
func (c *Context) dataNodeURL(id string) (string, error) {
	view := c.View()
	if view == nil {
		return "", cmn.NewServiceUnavailableError("cluster view not yet available")
	}
	node, err := view.DataNodeFor(id)
	if err != nil {
		return "", err
	}
	return node.URL(), nil
}
