package datanode

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/dtype"
	"github.com/hsds-go/hsds/selection"
)

// Routes builds the DN's HTTP surface (§4.7, §4.8). Grounded on the
// teacher's targetrunner route table (ais/target.go), which dispatches on
// a fixed set of path prefixes in front of a single context struct — here
// generalized to groups/datasets/datatypes/domains/chunks instead of
// aistore's buckets/objects.
func Routes(c *Context) *http.ServeMux {
	mux := http.NewServeMux()
	for _, coll := range []string{"groups", "datasets", "datatypes"} {
		coll := coll
		mux.HandleFunc("/"+coll+"/", instrumented(c, ownershipGuarded(c, func(w http.ResponseWriter, r *http.Request) {
			handleCollectionItem(w, r, c, coll)
		})))
		mux.HandleFunc("/"+coll, instrumented(c, func(w http.ResponseWriter, r *http.Request) {
			handleCollectionCreate(w, r, c, coll)
		}))
	}
	mux.HandleFunc("/domains", instrumented(c, func(w http.ResponseWriter, r *http.Request) { handleDomain(w, r, c) }))
	mux.HandleFunc("/chunks/", instrumented(c, ownershipGuarded(c, func(w http.ResponseWriter, r *http.Request) {
		handleChunk(w, r, c)
	})))
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

// ownershipGuarded rejects a request for an id this DN does not own with
// 400, per §4.1 invariant 1 / Testable Property 1: "a misrouted request is
// rejected, never silently served".
func ownershipGuarded(c *Context, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := secondPathSegment(r.URL.Path)
		if id != "" && !c.Owns(id) {
			writeErr(w, cmn.NewBadRequestError("this data node does not own %q", id))
			return
		}
		next(w, r)
	}
}

// secondPathSegment returns a path's second "/"-separated component: the
// object id in "/<coll>/<id>[/...]" (§4.1 invariant 1's ownership check
// always targets the object id, never a trailing /links or /attributes
// sub-resource).
func secondPathSegment(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func lastPathSegment(p string) string {
	p = strings.TrimSuffix(p, "/")
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return p
	}
	return p[i+1:]
}

func handleCollectionItem(w http.ResponseWriter, r *http.Request, c *Context, coll string) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// parts[0]==coll, parts[1]==id, optional parts[2]=="links"|"attributes", parts[3]=title/name
	if len(parts) < 2 {
		writeErr(w, cmn.NewBadRequestError("missing object id"))
		return
	}
	id := parts[1]
	switch {
	case len(parts) >= 3 && parts[2] == "links":
		handleLinks(w, r, c, id, parts[3:])
		return
	case len(parts) >= 3 && parts[2] == "attributes":
		handleAttributes(w, r, c, id, parts[3:])
		return
	}

	switch r.Method {
	case http.MethodGet:
		obj, err := GetObject(r.Context(), c, id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case http.MethodDelete:
		domain := r.URL.Query().Get("domain")
		if err := DeleteObject(r.Context(), c, domain, coll, id); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPut:
		var patch map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding patch body: %v", err))
			return
		}
		obj, err := UpdateObject(r.Context(), c, id, patch)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, obj)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on %s/%s", r.Method, coll, id))
	}
}

func handleCollectionCreate(w http.ResponseWriter, r *http.Request, c *Context, coll string) {
	if r.Method != http.MethodPost {
		writeErr(w, cmn.NewBadRequestError("POST required"))
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, cmn.NewBadRequestError("decoding body: %v", err))
		return
	}
	domain := r.URL.Query().Get("domain")
	owner := r.Header.Get("X-User")
	id, err := CreateObject(r.Context(), c, domain, coll, body, owner)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func handleLinks(w http.ResponseWriter, r *http.Request, c *Context, groupID string, rest []string) {
	ctx := r.Context()
	if len(rest) == 0 {
		links, err := ListLinks(ctx, c, groupID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, links)
		return
	}
	title := rest[0]
	switch r.Method {
	case http.MethodGet:
		link, err := GetLink(ctx, c, groupID, title)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	case http.MethodPut:
		var target map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding link body: %v", err))
			return
		}
		if err := PutLink(ctx, c, groupID, title, target); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if err := DeleteLink(ctx, c, groupID, title); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on link %q", r.Method, title))
	}
}

func handleAttributes(w http.ResponseWriter, r *http.Request, c *Context, id string, rest []string) {
	ctx := r.Context()
	if len(rest) == 0 {
		attrs, err := ListAttributes(ctx, c, id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attrs)
		return
	}
	name := rest[0]
	switch r.Method {
	case http.MethodGet:
		attr, err := GetAttribute(ctx, c, id, name)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attr)
	case http.MethodPut:
		var value map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding attribute body: %v", err))
			return
		}
		if err := PutAttribute(ctx, c, id, name, value); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if err := DeleteAttribute(ctx, c, id, name); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on attribute %q", r.Method, name))
	}
}

func handleDomain(w http.ResponseWriter, r *http.Request, c *Context) {
	domain := r.URL.Query().Get("domain")
	if domain != "" && !c.Owns(domain) {
		writeErr(w, cmn.NewBadRequestError("this data node does not own domain %q", domain))
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		obj, err := GetDomain(ctx, c, domain)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case http.MethodPut:
		owner := r.Header.Get("X-User")
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var acls map[string]interface{}
		if body != nil {
			acls, _ = body["acls"].(map[string]interface{})
			if bodyOwner, ok := body["owner"].(string); ok && bodyOwner != "" {
				owner = bodyOwner
			}
		}
		obj, err := CreateDomain(ctx, c, domain, owner, acls)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, obj)
	case http.MethodDelete:
		if err := DeleteDomain(ctx, c, domain); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		var patch map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeErr(w, cmn.NewBadRequestError("decoding patch body: %v", err))
			return
		}
		obj, err := UpdateDomain(ctx, c, domain, patch)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on /domains", r.Method))
	}
}

func handleChunk(w http.ResponseWriter, r *http.Request, c *Context) {
	chunkID := lastPathSegment(r.URL.Path)
	req, err := parseChunkRequest(r, chunkID)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		if query := r.URL.Query().Get("query"); query != "" {
			result, err := GetChunkQuery(ctx, c, *req, query)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
		data, err := GetChunk(ctx, c, *req)
		if cmn.IsNotFound(err) {
			c.Stats.ChunkFillMiss()
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		c.Stats.ChunkRead(len(data))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeErr(w, cmn.NewBadRequestError("reading body: %v", err))
			return
		}
		if err := PutChunk(ctx, c, *req, data); err != nil {
			writeErr(w, err)
			return
		}
		c.Stats.ChunkWrite(len(data))
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if err := DeleteChunk(c, chunkID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		handleChunkPoints(w, r, c, *req)
	default:
		writeErr(w, cmn.NewBadRequestError("method %s not supported on chunk %q", r.Method, chunkID))
	}
}

// pointsRequest is the POST /chunks/<id> body (§4.7): action=="put" carries
// a packed (coord,value) array to write; an absent/other action carries a
// packed coord array to read. Values are base64 since the surrounding
// envelope is JSON but chunk values are opaque bytes.
type pointsRequest struct {
	Action string     `json:"action"`
	Points [][]int64  `json:"points"`
	Values []string   `json:"values,omitempty"`
}

type pointsResponse struct {
	Values []string `json:"values"`
}

// handleChunkPoints implements §4.7's POST branch: "action=put" writes each
// (coord,value) pair at its chunk-relative coordinate; otherwise the
// payload is a packed coord array and the response is the value at each.
func handleChunkPoints(w http.ResponseWriter, r *http.Request, c *Context, req ChunkRequest) {
	var body pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, cmn.NewBadRequestError("decoding points body: %v", err))
		return
	}
	ctx := r.Context()
	if body.Action == "put" {
		if len(body.Values) != len(body.Points) {
			writeErr(w, cmn.NewBadRequestError("points/values length mismatch"))
			return
		}
		coords := make([]Coord, len(body.Points))
		for i, p := range body.Points {
			val, err := base64.StdEncoding.DecodeString(body.Values[i])
			if err != nil {
				writeErr(w, cmn.NewBadRequestError("malformed value encoding: %v", err))
				return
			}
			coords[i] = Coord{Point: selection.Point(p), Value: val}
		}
		if err := PutPoints(ctx, c, req, coords); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}

	points := make([]selection.Point, len(body.Points))
	for i, p := range body.Points {
		points[i] = selection.Point(p)
	}
	values, err := GetPoints(ctx, c, req, points)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := pointsResponse{Values: make([]string, len(values))}
	for i, v := range values {
		out.Values[i] = base64.StdEncoding.EncodeToString(v)
	}
	writeJSON(w, http.StatusOK, out)
}

// parseChunkRequest decodes the dataset descriptor query parameters the SN
// attaches to every chunk sub-request (§4.6 step 3, §4.7).
func parseChunkRequest(r *http.Request, chunkID string) (*ChunkRequest, error) {
	q := r.URL.Query()
	layoutDims, err := parseDims(q.Get("layout"))
	if err != nil {
		return nil, err
	}
	t, err := dtype.Parse([]byte(q.Get("type")))
	if err != nil {
		return nil, cmn.NewBadRequestError("parsing type descriptor: %v", err)
	}
	deflate := -1
	if v := q.Get("deflate"); v != "" {
		deflate, err = strconv.Atoi(v)
		if err != nil {
			return nil, cmn.NewBadRequestError("malformed deflate level %q", v)
		}
	}
	var fill interface{}
	if v := q.Get("fill"); v != "" {
		_ = json.Unmarshal([]byte(v), &fill)
	}
	chunkSel, err := selection.ParseSelect(q.Get("select"), layoutDims)
	if err != nil {
		return nil, err
	}
	return &ChunkRequest{
		ChunkID:      chunkID,
		LayoutDims:   layoutDims,
		Type:         t,
		FillValue:    fill,
		DeflateLevel: deflate,
		ChunkSel:     chunkSel,
	}, nil
}

func parseDims(raw string) ([]int64, error) {
	if raw == "" {
		return nil, cmn.NewBadRequestError("missing layout query parameter")
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, cmn.NewBadRequestError("malformed layout dimension %q", p)
		}
		out[i] = n
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, cmn.StatusOf(err), map[string]string{"error": err.Error()})
}
