package objstore

import "fmt"

// StoreErrKind is the object-store's own three-way failure taxonomy
// (§4.2), distinct from (and narrower than) the node-level cmn.Kind
// taxonomy of §7. DN/SN handlers translate a StoreErr into the right
// cmn error per §7's propagation policy.
type StoreErrKind int

const (
	NotFound StoreErrKind = iota
	Transient
	Fatal
)

type StoreErr struct {
	Kind StoreErrKind
	Key  string
	Err  error
}

func (e *StoreErr) Error() string {
	return fmt.Sprintf("objstore: %s: %v", e.Key, e.Err)
}

func (e *StoreErr) Unwrap() error { return e.Err }

func NewNotFoundErr(key string) error {
	return &StoreErr{Kind: NotFound, Key: key, Err: fmt.Errorf("key not found")}
}

func NewTransientErr(key string, err error) error {
	return &StoreErr{Kind: Transient, Key: key, Err: err}
}

func NewFatalErr(key string, err error) error {
	return &StoreErr{Kind: Fatal, Key: key, Err: err}
}

func IsNotFound(err error) bool {
	se, ok := err.(*StoreErr)
	return ok && se.Kind == NotFound
}

func IsTransient(err error) bool {
	se, ok := err.(*StoreErr)
	return ok && se.Kind == Transient
}
