package servicenode

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/cmn"
)

// ParseDomain implements §4.9 step 1: the domain query param, the host
// query param, or the Host header, in that order, validated per
// cmn.ValidDomainPath.
func ParseDomain(r *http.Request) (string, error) {
	d := r.URL.Query().Get("domain")
	if d == "" {
		d = r.URL.Query().Get("host")
	}
	if d == "" {
		d = dottedHostToPath(r.Host)
	}
	if !cmn.ValidDomainPath(d) {
		return "", cmn.NewBadRequestError("malformed or missing domain %q", d)
	}
	return d, nil
}

// dottedHostToPath turns a dotted DNS-style domain ("test.home")
// into its hierarchical path form ("/home/test"), the convention the
// source's domain-name scheme uses to map a virtual host onto a domain
// path. Trailing hsds.io cluster suffixes are stripped by the caller's
// reverse-proxy layer before this ever runs; here we just reverse the
// dot-separated labels.
func dottedHostToPath(host string) string {
	host = strings.SplitN(host, ":", 2)[0]
	if host == "" {
		return ""
	}
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return "/" + strings.Join(labels, "/")
}

// Authenticate implements §4.9 step 2: HTTP Basic credentials, or anonymous
// "default" access when allow_noauth is set.
func Authenticate(r *http.Request, users *authn.UserStore, allowNoAuth bool) (string, error) {
	user, pass, ok := basicAuth(r)
	if !ok {
		if allowNoAuth {
			return "default", nil
		}
		return "", cmn.NewUnauthorizedError("missing credentials")
	}
	if !users.Authenticate(user, pass) {
		return "", cmn.NewUnauthorizedError("invalid credentials for %q", user)
	}
	return user, nil
}

// basicAuth is a narrow re-implementation of net/http's Request.BasicAuth
// kept local since this module never imports the full net/http client-side
// auth helpers elsewhere; behavior matches RFC 7617.
func basicAuth(r *http.Request) (string, string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// DomainRecord is the subset of a domain's JSON the pipeline needs: its
// owner and ACL table (§4.9 steps 3/4).
type DomainRecord struct {
	Root  string     `json:"root"`
	Owner string     `json:"owner"`
	ACLs  authn.ACLs `json:"acls"`
}

// ResolveDomain implements §4.9 step 3: route GET /domains?domain=<d> to
// the DN owning the domain key.
func ResolveDomain(ctx context.Context, c *Context, domain string) (*DomainRecord, error) {
	var rec DomainRecord
	path := withQuery("/domains", url.Values{"domain": {domain}})
	if err := getDNJSON(ctx, c, domain, path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Authorize implements §4.9 step 4: evaluate the ACL against the requested
// action, with the domain's owner always permitted (§3 invariant 7).
func Authorize(rec *DomainRecord, user string, action authn.Action) error {
	return authn.EvaluateAsOwner(rec.ACLs, rec.Owner, user, action)
}
