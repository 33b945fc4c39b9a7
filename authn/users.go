package authn

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/hsds-go/hsds/cmn"
)

// UserStore is the (user,password)->bool collaborator of spec.md §1,
// backed here by an in-memory bcrypt-hashed password table. A production
// deployment may swap this for an LDAP/OIDC-backed implementation without
// the SN pipeline (§4.9 step 2) needing to change.
type UserStore struct {
	mu    sync.RWMutex
	users map[string][]byte // username -> bcrypt hash
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string][]byte)}
}

func (s *UserStore) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return cmn.NewInternalError("hashing password for %q: %v", username, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = hash
	return nil
}

// Authenticate implements the (user,password)->bool collaborator.
func (s *UserStore) Authenticate(username, password string) bool {
	s.mu.RLock()
	hash, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
