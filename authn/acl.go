// Package authn implements the authentication and ACL collaborators of
// §4.9: the (user,password)->bool credential check (treated as an external
// collaborator per spec.md §1, here backed by a local bcrypt user store)
// and ACL evaluation against the six-flag permission record of §3
// invariant 7. Grounded on the teacher's own authn package, which performs
// the analogous token-based inter-node auth for aistore.
package authn

import (
	"github.com/hsds-go/hsds/cmn"
)

// Action is one of the six permissions an ACL entry grants (§4.9 step 4).
type Action string

const (
	ActionCreate    Action = "create"
	ActionRead      Action = "read"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionReadACL   Action = "readACL"
	ActionUpdateACL Action = "updateACL"
)

// Entry is one ACL row: a map username -> six-flag permission record (§3
// invariant 7, glossary "ACL").
type Entry struct {
	Create    bool `json:"create"`
	Read      bool `json:"read"`
	Update    bool `json:"update"`
	Delete    bool `json:"delete"`
	ReadACL   bool `json:"readACL"`
	UpdateACL bool `json:"updateACL"`
}

func (e Entry) allows(a Action) bool {
	switch a {
	case ActionCreate:
		return e.Create
	case ActionRead:
		return e.Read
	case ActionUpdate:
		return e.Update
	case ActionDelete:
		return e.Delete
	case ActionReadACL:
		return e.ReadACL
	case ActionUpdateACL:
		return e.UpdateACL
	default:
		return false
	}
}

// ACLs is the domain record's acls map (§3 Data Model: Domain blob).
type ACLs map[string]Entry

// defaultUser is the fallback entry key used when a caller has no entry of
// their own (§4.9 step 4: "missing user entry falls back to `default`").
const defaultUser = "default"

// Evaluate checks whether user may perform action against acls, returning
// a cmn Forbidden error on denial (§4.9 step 4, §7).
func Evaluate(acls ACLs, user string, action Action) error {
	if e, ok := acls[user]; ok {
		if e.allows(action) {
			return nil
		}
		return cmn.NewForbiddenError("user %q is not permitted to %s", user, action)
	}
	if e, ok := acls[defaultUser]; ok && e.allows(action) {
		return nil
	}
	return cmn.NewForbiddenError("user %q is not permitted to %s", user, action)
}

// Owner is always granted every permission regardless of its ACL entry
// (mirrors the universal "owner can do everything" convention implicit in
// §3's domain lifecycle).
func EvaluateAsOwner(acls ACLs, owner, user string, action Action) error {
	if user == owner {
		return nil
	}
	return Evaluate(acls, user, action)
}

// InheritFrom copies parent's ACLs for a newly created child domain; the
// child's map is independently mutable thereafter (§3 invariant 7).
func InheritFrom(parent ACLs) ACLs {
	child := make(ACLs, len(parent))
	for k, v := range parent {
		child[k] = v
	}
	return child
}
