package servicenode

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/chunklayout"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/datanode"
	"github.com/hsds-go/hsds/dtype"
	"github.com/hsds-go/hsds/selection"
)

// Routes builds the SN's public HTTP surface (§6, §4.9). Grounded on the
// teacher's proxy route table (ais/proxy.go), which dispatches on a fixed
// path-prefix set in front of one pipeline (auth, bucket/object ownership
// resolution, dispatch) — generalized here to domain/ACL resolution plus
// object-route-to-owning-DN or hyperslab/point dispatch.
func Routes(c *Context) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", instrumented(c, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		handleDomainRoot(w, r, c)
	}))
	mux.HandleFunc("/domains", instrumented(c, func(w http.ResponseWriter, r *http.Request) { handleListDomains(w, r, c) }))
	mux.HandleFunc("/acls/", instrumented(c, func(w http.ResponseWriter, r *http.Request) { handleACL(w, r, c) }))
	for _, coll := range []string{"groups", "datasets", "datatypes"} {
		coll := coll
		mux.HandleFunc("/"+coll, instrumented(c, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				handleCreateObject(w, r, c, coll)
				return
			}
			handleListObjects(w, r, c, coll)
		}))
		mux.HandleFunc("/"+coll+"/", instrumented(c, func(w http.ResponseWriter, r *http.Request) {
			handleObjectPath(w, r, c, coll)
		}))
	}
	return mux
}

// instrumented wraps next with the §4.10 request-count/latency stats
// (nil-safe: c.Stats.ObserveRequest on a nil *stats.Registry is a no-op).
func instrumented(c *Context, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		c.Stats.ObserveRequest(r.Method, statusClass(rec.status), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	default:
		return "5xx"
	}
}

func queryOf(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

// pipelinePrelude runs §4.9 steps 1-4 (ParseDomain, Authenticate,
// ResolveDomain, Authorize) and returns the resolved domain and record, or
// writes the appropriate error response and returns ok=false.
func pipelinePrelude(w http.ResponseWriter, r *http.Request, c *Context, action authn.Action) (domain string, rec *DomainRecord, user string, ok bool) {
	ctx := r.Context()
	domain, err := ParseDomain(r)
	if err != nil {
		writeErr(w, err)
		return "", nil, "", false
	}
	user, err = Authenticate(r, c.Users, c.Config.AllowNoAuth)
	if err != nil {
		writeErr(w, err)
		return "", nil, "", false
	}
	rec, err = ResolveDomain(ctx, c, domain)
	if err != nil {
		writeErr(w, err)
		return "", nil, "", false
	}
	if err := Authorize(rec, user, action); err != nil {
		writeErr(w, err)
		return "", nil, "", false
	}
	return domain, rec, user, true
}

func handleDomainRoot(w http.ResponseWriter, r *http.Request, c *Context) {
	ctx := r.Context()
	domain, err := ParseDomain(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	user, err := Authenticate(r, c.Users, c.Config.AllowNoAuth)
	if err != nil {
		writeErr(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := ResolveDomain(ctx, c, domain)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := Authorize(rec, user, authn.ActionRead); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPut:
		var out map[string]interface{}
		body := map[string]interface{}{"domain": domain, "owner": user}
		if err := putDNJSON(ctx, c, domain, withQuery("/domains", queryOf("domain", domain)), body, &out); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodDelete:
		rec, err := ResolveDomain(ctx, c, domain)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := Authorize(rec, user, authn.ActionDelete); err != nil {
			writeErr(w, err)
			return
		}
		if err := deleteDN(ctx, c, domain, withQuery("/domains", queryOf("domain", domain))); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /", r.Method))
	}
}

func handleListDomains(w http.ResponseWriter, r *http.Request, c *Context) {
	domain, _, _, ok := pipelinePrelude(w, r, c, authn.ActionRead)
	if !ok {
		return
	}
	marker := r.URL.Query().Get("marker")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	children, err := datanode.ListChildDomains(r.Context(), c.Store, domain, marker, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": children})
}

// handleACL implements "GET|PUT|DELETE /acls/<user>" (§6, §4.9 step 4's
// ActionReadACL/ActionUpdateACL gates).
func handleACL(w http.ResponseWriter, r *http.Request, c *Context) {
	targetUser := strings.TrimPrefix(r.URL.Path, "/acls/")
	if targetUser == "" {
		writeErr(w, cmn.NewBadRequestError("missing user name"))
		return
	}
	action := authn.ActionReadACL
	if r.Method != http.MethodGet {
		action = authn.ActionUpdateACL
	}
	domain, rec, _, ok := pipelinePrelude(w, r, c, action)
	if !ok {
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		entry, exists := rec.ACLs[targetUser]
		if !exists {
			writeErr(w, cmn.NewNotFoundError(targetUser, "no ACL entry for %q", targetUser))
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodPut:
		var entry authn.Entry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding ACL body: %v", err))
			return
		}
		if rec.ACLs == nil {
			rec.ACLs = authn.ACLs{}
		}
		rec.ACLs[targetUser] = entry
		if err := patchDNJSON(ctx, c, domain, withQuery("/domains", queryOf("domain", domain)), map[string]interface{}{"acls": rec.ACLs}, nil); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		delete(rec.ACLs, targetUser)
		if err := patchDNJSON(ctx, c, domain, withQuery("/domains", queryOf("domain", domain)), map[string]interface{}{"acls": rec.ACLs}, nil); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /acls/%s", r.Method, targetUser))
	}
}

// collectionPrefix mirrors datanode's (unexported) prefixForCollection,
// needed here since the SN is the one minting the id (§4.2's "the owning
// DN is whichever hash(id) selects", which only holds if the id is picked
// before the DN is chosen).
func collectionPrefix(collection string) (string, error) {
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

func handleListObjects(w http.ResponseWriter, r *http.Request, c *Context, coll string) {
	if r.Method != http.MethodGet {
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /%s", r.Method, coll))
		return
	}
	domain, _, _, ok := pipelinePrelude(w, r, c, authn.ActionRead)
	if !ok {
		return
	}
	if h5path := r.URL.Query().Get("h5path"); h5path != "" {
		handleGetByPath(w, r, c, domain, coll, h5path)
		return
	}
	marker := r.URL.Query().Get("marker")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	ids, err := datanode.ListCollection(r.Context(), c.Store, domain, coll, marker, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{coll: ids})
}

// handleGetByPath implements the h5path query-param form of "GET
// /groups|/datasets|/datatypes" (SPEC_FULL.md Expansion C item 4): resolve
// h5path against domain's link tree and return the object it names, 404 if
// the path is dangling or resolves outside coll.
func handleGetByPath(w http.ResponseWriter, r *http.Request, c *Context, domain, coll, h5path string) {
	id, err := TraverseH5Path(r.Context(), c, domain, h5path)
	if err != nil {
		writeErr(w, err)
		return
	}
	if cmn.CollectionOf(id) != coll {
		writeErr(w, cmn.NewNotFoundError(h5path, "h5path %q does not resolve to a %s", h5path, coll))
		return
	}
	var obj map[string]interface{}
	if err := getDNJSON(r.Context(), c, id, "/"+coll+"/"+id, &obj); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// handleCreateObject implements "POST /groups|/datasets|/datatypes" (§6):
// mints the id here (not on the DN — see collectionPrefix), normalizes a
// dataset's shape/layout, and dispatches the create to id's owning DN.
func handleCreateObject(w http.ResponseWriter, r *http.Request, c *Context, coll string) {
	domain, _, user, ok := pipelinePrelude(w, r, c, authn.ActionCreate)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, cmn.NewBadRequestError("decoding body: %v", err))
		return
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	prefix, err := collectionPrefix(coll)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := cmn.NewUUID(prefix)
	body["id"] = id
	body["domain"] = domain
	body["owner"] = user

	if coll == "datasets" {
		if err := normalizeDatasetCreate(body); err != nil {
			writeErr(w, err)
			return
		}
	}

	ctx := r.Context()
	var out map[string]interface{}
	if err := postDNJSON(ctx, c, id, "/"+coll, body, &out); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// normalizeDatasetCreate fills in a dataset create body's shape/layout
// (§4.1's Data Model invariant 4: "layout.dims[i] <= maxdims[i] when
// maxdims[i]>0"), auto-computing a chunk layout via chunklayout.AutoChunkLayout
// when the caller didn't supply creationProperties.layout (§6's
// "creationProperties?" being optional).
func normalizeDatasetCreate(body map[string]interface{}) error {
	dims, err := intsFrom(body["shape"])
	if err != nil {
		return cmn.NewBadRequestError("malformed shape: %v", err)
	}
	maxdims, _ := intsFrom(body["maxdims"])
	if maxdims == nil {
		maxdims = append([]int64(nil), dims...)
	}
	typeBuf, err := json.Marshal(body["type"])
	if err != nil {
		return cmn.NewBadRequestError("malformed type: %v", err)
	}
	t, err := dtype.Parse(typeBuf)
	if err != nil {
		return err
	}

	layoutDims := chunklayout.AutoChunkLayout(dims, t.ElementSize(), chunklayout.DefaultChunkMin, chunklayout.DefaultChunkMax)
	if cp, ok := body["creationProperties"].(map[string]interface{}); ok {
		if raw, ok := cp["layout"].(map[string]interface{}); ok {
			if ld, err := intsFrom(raw["dims"]); err == nil && ld != nil {
				layoutDims = ld
			}
		}
	}

	body["shape"] = map[string]interface{}{"dims": dims, "maxdims": maxdims}
	body["layout"] = map[string]interface{}{"dims": layoutDims}
	return nil
}

func intsFrom(raw interface{}) ([]int64, error) {
	arr, ok := raw.([]interface{})
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, cmn.NewBadRequestError("expected an array of dimensions")
	}
	out := make([]int64, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, cmn.NewBadRequestError("dimension %v is not numeric", v)
		}
		out[i] = int64(f)
	}
	return out, nil
}

// handleObjectPath dispatches every "/<coll>/<id>[/...]" request: the plain
// object, its links/attributes sub-resources, and — for datasets — the
// shape/type/value endpoints (§6).
func handleObjectPath(w http.ResponseWriter, r *http.Request, c *Context, coll string) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/"+coll+"/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if parts[0] == "" {
		writeErr(w, cmn.NewBadRequestError("missing object id"))
		return
	}
	id := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		handlePlainObject(w, r, c, coll, id)
		return
	}
	switch rest[0] {
	case "links":
		handleSubResource(w, r, c, coll, id, "links", rest[1:])
	case "attributes":
		handleSubResource(w, r, c, coll, id, "attributes", rest[1:])
	case "shape":
		if coll != "datasets" {
			writeErr(w, cmn.NewBadRequestError("/shape only valid under /datasets"))
			return
		}
		handleDatasetShape(w, r, c, id)
	case "type":
		if coll != "datasets" {
			writeErr(w, cmn.NewBadRequestError("/type only valid under /datasets"))
			return
		}
		handleDatasetType(w, r, c, id)
	case "value":
		if coll != "datasets" {
			writeErr(w, cmn.NewBadRequestError("/value only valid under /datasets"))
			return
		}
		handleDatasetValue(w, r, c, id)
	default:
		writeErr(w, cmn.NewBadRequestError("unknown sub-resource %q", rest[0]))
	}
}

func handlePlainObject(w http.ResponseWriter, r *http.Request, c *Context, coll, id string) {
	action := authn.ActionRead
	if r.Method == http.MethodDelete {
		action = authn.ActionDelete
	}
	domain, _, _, ok := pipelinePrelude(w, r, c, action)
	if !ok {
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		var obj map[string]interface{}
		if err := getDNJSON(ctx, c, id, "/"+coll+"/"+id, &obj); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case http.MethodDelete:
		if err := deleteDN(ctx, c, id, withQuery("/"+coll+"/"+id, queryOf("domain", domain))); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on %s/%s", r.Method, coll, id))
	}
}

// handleSubResource proxies a group/dataset/datatype's links or attributes
// endpoint straight through to the owning DN (§6's "GET|PUT|DELETE
// /groups/<id>/links/<title>" and the analogous attributes route).
func handleSubResource(w http.ResponseWriter, r *http.Request, c *Context, coll, id, kind string, rest []string) {
	action := authn.ActionRead
	if r.Method == http.MethodPut || r.Method == http.MethodDelete {
		action = authn.ActionUpdate
	}
	_, _, _, ok := pipelinePrelude(w, r, c, action)
	if !ok {
		return
	}
	ctx := r.Context()
	path := "/" + coll + "/" + id + "/" + kind
	if len(rest) > 0 {
		path += "/" + rest[0]
	}

	switch r.Method {
	case http.MethodGet:
		var out interface{}
		if err := getDNJSON(ctx, c, id, path, &out); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPut:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding body: %v", err))
			return
		}
		var out interface{}
		if err := putDNJSON(ctx, c, id, path, body, &out); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if err := deleteDN(ctx, c, id, path); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported", r.Method))
	}
}

func handleDatasetShape(w http.ResponseWriter, r *http.Request, c *Context, id string) {
	action := authn.ActionRead
	if r.Method == http.MethodPut {
		action = authn.ActionUpdate
	}
	_, _, _, ok := pipelinePrelude(w, r, c, action)
	if !ok {
		return
	}
	ctx := r.Context()
	var obj map[string]interface{}
	if err := getDNJSON(ctx, c, id, "/datasets/"+id, &obj); err != nil {
		writeErr(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, obj["shape"])
	case http.MethodPut:
		var body struct {
			Shape []int64 `json:"shape"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding shape body: %v", err))
			return
		}
		shapeObj, _ := obj["shape"].(map[string]interface{})
		maxdims, _ := intsFrom(shapeObj["maxdims"])
		for i, d := range body.Shape {
			if i < len(maxdims) && maxdims[i] > 0 && d > maxdims[i] {
				writeErr(w, cmn.NewBadRequestError("resize dimension %d (%d) exceeds maxdims %d", i, d, maxdims[i]))
				return
			}
		}
		newShape := map[string]interface{}{"dims": body.Shape, "maxdims": shapeObj["maxdims"]}
		var out map[string]interface{}
		if err := putDNJSON(ctx, c, id, "/datasets/"+id, map[string]interface{}{"shape": newShape}, &out); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out["shape"])
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /datasets/%s/shape", r.Method, id))
	}
}

func handleDatasetType(w http.ResponseWriter, r *http.Request, c *Context, id string) {
	if r.Method != http.MethodGet {
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /datasets/%s/type", r.Method, id))
		return
	}
	_, _, _, ok := pipelinePrelude(w, r, c, authn.ActionRead)
	if !ok {
		return
	}
	var obj map[string]interface{}
	if err := getDNJSON(r.Context(), c, id, "/datasets/"+id, &obj); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj["type"])
}

// datasetDescriptorFromJSON extracts the subset of a dataset's stored JSON
// the hyperslab/point engines need, per §9's Type variant and §3's chunk
// layout fields.
func datasetDescriptorFromJSON(id string, obj map[string]interface{}) (DatasetDescriptor, []int64, error) {
	shapeObj, _ := obj["shape"].(map[string]interface{})
	dims, err := intsFrom(shapeObj["dims"])
	if err != nil {
		return DatasetDescriptor{}, nil, err
	}
	maxdims, _ := intsFrom(shapeObj["maxdims"])

	layoutObj, _ := obj["layout"].(map[string]interface{})
	layoutDims, err := intsFrom(layoutObj["dims"])
	if err != nil || layoutDims == nil {
		layoutDims = dims
	}

	typeBuf, err := json.Marshal(obj["type"])
	if err != nil {
		return DatasetDescriptor{}, nil, cmn.NewBadRequestError("malformed stored type: %v", err)
	}
	t, err := dtype.Parse(typeBuf)
	if err != nil {
		return DatasetDescriptor{}, nil, err
	}

	var fillValue interface{}
	deflate := -1
	if cp, ok := obj["creationProperties"].(map[string]interface{}); ok {
		fillValue = cp["fillValue"]
		if filters, ok := cp["filters"].([]interface{}); ok && len(filters) > 0 {
			if f0, ok := filters[0].(map[string]interface{}); ok {
				if lvl, ok := f0["level"].(float64); ok {
					deflate = int(lvl)
				}
			}
		}
	}

	return DatasetDescriptor{
		ID:           id,
		Shape:        dims,
		LayoutDims:   layoutDims,
		Type:         t,
		FillValue:    fillValue,
		DeflateLevel: deflate,
	}, maxdims, nil
}

func handleDatasetValue(w http.ResponseWriter, r *http.Request, c *Context, id string) {
	action := authn.ActionRead
	if r.Method != http.MethodGet {
		action = authn.ActionUpdate
	}
	_, _, _, ok := pipelinePrelude(w, r, c, action)
	if !ok {
		return
	}
	ctx := r.Context()
	var obj map[string]interface{}
	if err := getDNJSON(ctx, c, id, "/datasets/"+id, &obj); err != nil {
		writeErr(w, err)
		return
	}
	d, _, err := datasetDescriptorFromJSON(id, obj)
	if err != nil {
		writeErr(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sel, err := selection.ParseSelect(r.URL.Query().Get("select"), d.Shape)
		if err != nil {
			writeErr(w, err)
			return
		}
		data, err := Read(ctx, c, d, sel)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, encodeValueBody(d.Type, data))
	case http.MethodPut:
		var body valueEnvelope
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding value body: %v", err))
			return
		}
		sel, err := selection.ParseSelect(r.URL.Query().Get("select"), d.Shape)
		if err != nil {
			writeErr(w, err)
			return
		}
		data, err := decodeValueBody(d.Type, body)
		if err != nil {
			writeErr(w, err)
			return
		}
		wantLen := d.Type.ElementSize()
		for _, s := range sel {
			wantLen *= int(s.Count())
		}
		if len(data) != wantLen {
			writeErr(w, cmn.NewBadRequestError("value has %d bytes, selection expects %d", len(data), wantLen))
			return
		}
		if err := Write(ctx, c, d, sel, data); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		handlePointValue(w, r, c, d)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /datasets/%s/value", r.Method, id))
	}
}

// pointValueBody is the POST .../value payload (§4.7's "packed (coord,
// value) array" / "packed coord array").
type pointValueBody struct {
	Action string          `json:"action"`
	Points []selection.Point `json:"points"`
	Value  []interface{}   `json:"value,omitempty"`
}

func handlePointValue(w http.ResponseWriter, r *http.Request, c *Context, d DatasetDescriptor) {
	var body pointValueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, cmn.NewBadRequestError("decoding points body: %v", err))
		return
	}
	ctx := r.Context()
	if body.Action == "put" {
		if len(body.Value) != len(body.Points) {
			writeErr(w, cmn.NewBadRequestError("points/value length mismatch"))
			return
		}
		writes := make([]pointWrite, len(body.Points))
		for i, p := range body.Points {
			buf, err := encodeAtomicValues(d.Type, []interface{}{body.Value[i]})
			if err != nil {
				writeErr(w, err)
				return
			}
			writes[i] = pointWrite{Point: p, Value: buf}
		}
		if err := WritePoints(ctx, c, d, writes); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	values, err := ReadPoints(ctx, c, d, body.Points)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		decoded, _ := decodeAtomicValues(d.Type, v)
		if len(decoded) == 1 {
			out[i] = decoded[0]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": out})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, cmn.StatusOf(err), map[string]string{"error": err.Error()})
}
