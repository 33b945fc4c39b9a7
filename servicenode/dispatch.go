package servicenode

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"

	"github.com/hsds-go/hsds/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// dnResponse is a completed round-trip to a DN: status and raw body.
type dnResponse struct {
	Status int
	Body   []byte
}

// err translates a non-2xx DN response into a cmn.Error carrying the
// same status, per §7's propagation policy: "SN handlers pass the first
// failed sub-request's status through unchanged".
func (r *dnResponse) err() error {
	if r.Status >= 200 && r.Status < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(r.Body, &body)
	msg := body.Error
	if msg == "" {
		msg = string(r.Body)
	}
	return cmn.NewErrorWithStatus(r.Status, msg)
}

// doDN issues an HTTP request to a DN's object-owning URL and buffers the
// response (§4.6 step 3: "a single HTTP request to the owning DN").
func doDN(ctx context.Context, c *Context, method, rawURL string, body []byte) (*dnResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, cmn.NewInternalError("building DN request: %v", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, cmn.NewServiceUnavailableError("DN request to %s failed: %v", rawURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cmn.NewServiceUnavailableError("reading DN response from %s: %v", rawURL, err)
	}
	return &dnResponse{Status: resp.StatusCode, Body: data}, nil
}

// getDNJSON resolves id's owning DN, issues a GET against path, and decodes
// the JSON response into v.
func getDNJSON(ctx context.Context, c *Context, id, path string, v interface{}) error {
	base, err := c.dataNodeURL(id)
	if err != nil {
		return err
	}
	resp, err := doDN(ctx, c, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if e := resp.err(); e != nil {
		return e
	}
	if v != nil {
		return json.Unmarshal(resp.Body, v)
	}
	return nil
}

// postDNJSON resolves id's owning DN and POSTs body (JSON-encoded) to path.
func postDNJSON(ctx context.Context, c *Context, id, path string, body interface{}, out interface{}) error {
	base, err := c.dataNodeURL(id)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return cmn.NewInternalError("encoding request body: %v", err)
	}
	resp, err := doDN(ctx, c, http.MethodPost, base+path, buf)
	if err != nil {
		return err
	}
	if e := resp.err(); e != nil {
		return e
	}
	if out != nil {
		return json.Unmarshal(resp.Body, out)
	}
	return nil
}

// putDNJSON resolves id's owning DN and PUTs body (JSON-encoded) to path.
func putDNJSON(ctx context.Context, c *Context, id, path string, body interface{}, out interface{}) error {
	return sendDNJSON(ctx, c, http.MethodPut, id, path, body, out)
}

// patchDNJSON resolves id's owning DN and PATCHes body (JSON-encoded) to
// path — used for the domain ACL merge-patch (§4.9 step 4's PUT|DELETE
// /acls/<user>, which never recreates the whole domain record).
func patchDNJSON(ctx context.Context, c *Context, id, path string, body interface{}, out interface{}) error {
	return sendDNJSON(ctx, c, http.MethodPatch, id, path, body, out)
}

func sendDNJSON(ctx context.Context, c *Context, method, id, path string, body interface{}, out interface{}) error {
	base, err := c.dataNodeURL(id)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return cmn.NewInternalError("encoding request body: %v", err)
	}
	resp, err := doDN(ctx, c, method, base+path, buf)
	if err != nil {
		return err
	}
	if e := resp.err(); e != nil {
		return e
	}
	if out != nil {
		return json.Unmarshal(resp.Body, out)
	}
	return nil
}

// deleteDN resolves id's owning DN and DELETEs path.
func deleteDN(ctx context.Context, c *Context, id, path string) error {
	base, err := c.dataNodeURL(id)
	if err != nil {
		return err
	}
	resp, err := doDN(ctx, c, http.MethodDelete, base+path, nil)
	if err != nil {
		return err
	}
	return resp.err()
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
