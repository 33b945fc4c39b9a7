package servicenode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/datanode"
	"github.com/hsds-go/hsds/metacache"
	"github.com/hsds-go/hsds/objstore"
)

// testCluster stands up one real in-process DN (via httptest, exercising
// the actual datanode.Routes mux) and one SN context routed at it, so these
// tests drive real HTTP round trips end to end rather than calling Go
// functions directly (§8's Testable Properties are request-response
// scenarios, not unit-level API calls).
type testCluster struct {
	dn  *httptest.Server
	sn  *httptest.Server
	cli *http.Client
}

func newTestCluster(t *testing.T, allowNoAuth bool) *testCluster {
	t.Helper()
	store := objstore.NewMemStore()
	dnCtx := &datanode.Context{
		Number:  0,
		DNCount: 1,
		Meta:    metacache.New(store, 1000),
		Chunks:  chunkcache.New(store, 1<<24, time.Second),
		Store:   store,
		Config:  &cmn.Config{},
	}
	dnSrv := httptest.NewServer(datanode.Routes(dnCtx))

	host, portStr, err := splitHostPort(dnSrv.URL)
	if err != nil {
		t.Fatalf("splitting DN url %q: %v", dnSrv.URL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing DN port: %v", err)
	}
	view := &clustermap.View{
		Nodes:        []clustermap.Node{{ID: "dn-0", Host: host, Port: port, Type: clustermap.TypeData, Number: 0}},
		ClusterState: clustermap.StateReady,
	}

	users := authn.NewUserStore()
	if err := users.AddUser("alice", "wonderland"); err != nil {
		t.Fatalf("adding user: %v", err)
	}
	if err := users.AddUser("bob", "builder"); err != nil {
		t.Fatalf("adding user: %v", err)
	}

	snCtx := NewContext(func() *clustermap.View { return view }, store, users, &cmn.Config{
		Timeout:     5 * time.Second,
		AllowNoAuth: allowNoAuth,
	})
	snSrv := httptest.NewServer(Routes(snCtx))

	t.Cleanup(func() {
		dnSrv.Close()
		snSrv.Close()
	})
	return &testCluster{dn: dnSrv, sn: snSrv, cli: &http.Client{Timeout: 5 * time.Second}}
}

func splitHostPort(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	host := u.Hostname()
	return host, u.Port(), nil
}

func (tc *testCluster) do(t *testing.T, method, path string, user, pass string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, tc.sn.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	}
	resp, err := tc.cli.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createDomain(t *testing.T, tc *testCluster, domain, owner, pass string) {
	t.Helper()
	resp := tc.do(t, http.MethodPut, "/?domain="+url.QueryEscape(domain), owner, pass, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating domain %q: status %d", domain, resp.StatusCode)
	}
}

func TestCreateDomainThenGetRoot(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	resp := tc.do(t, http.MethodGet, "/?domain=/home/alice", "alice", "wonderland", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec DomainRecord
	decodeJSON(t, resp, &rec)
	if rec.Owner != "alice" {
		t.Fatalf("expected owner alice, got %q", rec.Owner)
	}
}

func TestCreateAndListGroups(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	resp := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "alice", "wonderland", map[string]interface{}{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating group: status %d", resp.StatusCode)
	}
	var created map[string]interface{}
	decodeJSON(t, resp, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected created group to carry an id, got %v", created)
	}

	resp = tc.do(t, http.MethodGet, "/groups?domain=/home/alice", "alice", "wonderland", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing groups: status %d", resp.StatusCode)
	}
	var listed map[string][]string
	decodeJSON(t, resp, &listed)
	found := false
	for _, g := range listed["groups"] {
		if g == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected listing to contain %q, got %v", id, listed["groups"])
	}
}

func TestPermissionDeniedForNonOwnerWithoutACL(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	resp := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "bob", "builder", map[string]interface{}{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bob (no ACL entry, not owner), got %d", resp.StatusCode)
	}
}

func TestACLGrantsAccessToNonOwner(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	resp := tc.do(t, http.MethodPut, "/acls/bob?domain=/home/alice", "alice", "wonderland", map[string]interface{}{
		"create": true, "read": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("granting bob an ACL entry: status %d", resp.StatusCode)
	}

	resp2 := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "bob", "builder", map[string]interface{}{})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("expected bob's grant to permit group creation, got %d", resp2.StatusCode)
	}
}

func TestDatasetValueRoundTrip1D(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	createBody := map[string]interface{}{
		"type":  map[string]interface{}{"class": "atomic", "base": "H5T_STD_I32LE", "byteOrder": "LE", "size": 4},
		"shape": []interface{}{float64(8)},
	}
	resp := tc.do(t, http.MethodPost, "/datasets?domain=/home/alice", "alice", "wonderland", createBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating dataset: status %d", resp.StatusCode)
	}
	var created map[string]interface{}
	decodeJSON(t, resp, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected created dataset to carry an id, got %v", created)
	}

	values := []interface{}{1, 2, 3, 4, 5, 6, 7, 8}
	putResp := tc.do(t, http.MethodPut, "/datasets/"+id+"/value?domain=/home/alice", "alice", "wonderland", map[string]interface{}{
		"value": values,
	})
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("writing dataset value: status %d", putResp.StatusCode)
	}

	getResp := tc.do(t, http.MethodGet, "/datasets/"+id+"/value?domain=/home/alice", "alice", "wonderland", nil)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("reading dataset value: status %d", getResp.StatusCode)
	}
	var out map[string]interface{}
	decodeJSON(t, getResp, &out)
	got, _ := out["value"].([]interface{})
	if len(got) != len(values) {
		t.Fatalf("expected %d values back, got %d (%v)", len(values), len(got), got)
	}
	for i, v := range got {
		f, ok := v.(float64)
		if !ok || int(f) != values[i].(int) {
			t.Fatalf("value[%d]: expected %v, got %v", i, values[i], v)
		}
	}
}

func TestDatasetShapeResizeRejectsBeyondMaxdims(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	createBody := map[string]interface{}{
		"type":    map[string]interface{}{"class": "atomic", "base": "H5T_STD_I32LE", "byteOrder": "LE", "size": 4},
		"shape":   []interface{}{float64(4)},
		"maxdims": []interface{}{float64(10)},
	}
	resp := tc.do(t, http.MethodPost, "/datasets?domain=/home/alice", "alice", "wonderland", createBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating dataset: status %d", resp.StatusCode)
	}
	var created map[string]interface{}
	decodeJSON(t, resp, &created)
	id := created["id"].(string)

	okResp := tc.do(t, http.MethodPut, "/datasets/"+id+"/shape?domain=/home/alice", "alice", "wonderland", map[string]interface{}{
		"shape": []int64{8},
	})
	defer okResp.Body.Close()
	if okResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected resize within maxdims to succeed, got %d", okResp.StatusCode)
	}

	badResp := tc.do(t, http.MethodPut, "/datasets/"+id+"/shape?domain=/home/alice", "alice", "wonderland", map[string]interface{}{
		"shape": []int64{20},
	})
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected resize beyond maxdims to be rejected with 400, got %d", badResp.StatusCode)
	}
}

func TestCreateLinkThenDuplicateNameConflicts(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	rootResp := tc.do(t, http.MethodGet, "/?domain=/home/alice", "alice", "wonderland", nil)
	var rec DomainRecord
	decodeJSON(t, rootResp, &rec)

	child := map[string]interface{}{"link": map[string]interface{}{"id": rec.Root, "name": "widgets"}}
	resp := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "alice", "wonderland", child)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating linked child: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	dupResp := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "alice", "wonderland", child)
	defer dupResp.Body.Close()
	if dupResp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate link name, got %d", dupResp.StatusCode)
	}
}

func TestGetByH5PathResolvesLinkedChild(t *testing.T) {
	tc := newTestCluster(t, false)
	createDomain(t, tc, "/home/alice", "alice", "wonderland")

	rootResp := tc.do(t, http.MethodGet, "/?domain=/home/alice", "alice", "wonderland", nil)
	var rec DomainRecord
	decodeJSON(t, rootResp, &rec)

	child := map[string]interface{}{"link": map[string]interface{}{"id": rec.Root, "name": "widgets"}}
	createResp := tc.do(t, http.MethodPost, "/groups?domain=/home/alice", "alice", "wonderland", child)
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("creating linked child: status %d", createResp.StatusCode)
	}
	var created map[string]interface{}
	decodeJSON(t, createResp, &created)
	childID, _ := created["id"].(string)

	resp := tc.do(t, http.MethodGet, "/groups?domain=/home/alice&h5path="+url.QueryEscape("/widgets"), "alice", "wonderland", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected h5path lookup to succeed, got %d", resp.StatusCode)
	}
	var obj map[string]interface{}
	decodeJSON(t, resp, &obj)
	if obj["id"] != childID {
		t.Fatalf("expected h5path to resolve to %q, got %v", childID, obj["id"])
	}

	danglingResp := tc.do(t, http.MethodGet, "/groups?domain=/home/alice&h5path="+url.QueryEscape("/nope"), "alice", "wonderland", nil)
	defer danglingResp.Body.Close()
	if danglingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected dangling h5path to 404, got %d", danglingResp.StatusCode)
	}
}

func TestAllowNoAuthFallsBackToDefaultUser(t *testing.T) {
	tc := newTestCluster(t, true)
	resp := tc.do(t, http.MethodPut, "/?domain=/home/anon", "", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected anonymous domain creation to succeed under allow_noauth, got %d", resp.StatusCode)
	}
}
