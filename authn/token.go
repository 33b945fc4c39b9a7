package authn

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hsds-go/hsds/cmn"
)

// RegistrationClaims is the signed token a worker presents when it first
// contacts the head node (§4.10's "POST /register"), extending the bare
// {id,port,node_type} body with a tamper-evident signature so the HN can
// trust a worker's self-reported identity across the cluster's private
// network.
type RegistrationClaims struct {
	jwt.RegisteredClaims
	NodeType string `json:"node_type"`
}

// Signer mints and verifies registration tokens with a single shared
// cluster secret (an HN-distributed symmetric key, out of this module's
// scope to rotate).
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) *Signer { return &Signer{secret: secret} }

func (s *Signer) Sign(nodeID, nodeType string, ttl time.Duration) (string, error) {
	claims := RegistrationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nodeID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		NodeType: nodeType,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", cmn.NewInternalError("signing registration token: %v", err)
	}
	return signed, nil
}

func (s *Signer) Verify(tokenStr string) (*RegistrationClaims, error) {
	claims := &RegistrationClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, cmn.NewUnauthorizedError("invalid registration token: %v", err)
	}
	return claims, nil
}
