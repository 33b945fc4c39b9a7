package authn

import "testing"

func TestEvaluateUserEntry(t *testing.T) {
	acls := ACLs{"alice": {Read: true, Create: true}}
	if err := Evaluate(acls, "alice", ActionRead); err != nil {
		t.Fatalf("expected alice to read: %v", err)
	}
	if err := Evaluate(acls, "alice", ActionDelete); err == nil {
		t.Fatalf("expected alice delete to be denied")
	}
}

func TestEvaluateFallsBackToDefault(t *testing.T) {
	acls := ACLs{"default": {Read: true}}
	if err := Evaluate(acls, "bob", ActionRead); err != nil {
		t.Fatalf("expected default entry to grant read: %v", err)
	}
	if err := Evaluate(acls, "bob", ActionDelete); err == nil {
		t.Fatalf("expected delete denied with no default grant")
	}
}

func TestEvaluateAsOwnerBypassesACL(t *testing.T) {
	acls := ACLs{}
	if err := EvaluateAsOwner(acls, "alice", "alice", ActionDelete); err != nil {
		t.Fatalf("expected owner bypass: %v", err)
	}
	if err := EvaluateAsOwner(acls, "alice", "bob", ActionDelete); err == nil {
		t.Fatalf("expected non-owner to be denied with empty ACL")
	}
}

func TestInheritFromCopiesIndependently(t *testing.T) {
	parent := ACLs{"alice": {Read: true}}
	child := InheritFrom(parent)
	child["alice"] = Entry{Read: false}
	if parent["alice"].Read != true {
		t.Fatalf("expected parent ACL to be unaffected by child mutation")
	}
}
