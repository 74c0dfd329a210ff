package api

import (
	"net/http"
	"strings"

	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/security"
)

// Claims identifies an authenticated caller. The query engine uses the
// public key for the ownership filter; jobs are scoped by DID address.
type Claims struct {
	PublicKey  string `json:"publicKey"`
	DIDAddress string `json:"didAddress"`
	UserID     string `json:"userId,omitempty"`
}

// Authenticator verifies bearer tokens. Implementations back onto an
// external identity service or a static token set.
type Authenticator interface {
	// VerifyBearer returns the caller behind a token, or nil when the
	// token is unknown or expired. A bad token means unauthenticated,
	// never an error.
	VerifyBearer(token string) *Claims
}

// StaticAuthenticator resolves tokens from a fixed token-to-public-key
// map, the API_BEARER_TOKENS setting. It serves deployments without an
// external identity service and the test suites.
type StaticAuthenticator struct {
	tokens map[string]string
}

// NewStaticAuthenticator builds an authenticator over a token map.
func NewStaticAuthenticator(tokens map[string]string) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

// VerifyBearer looks the token up and derives the caller's DID address
// from the mapped public key.
func (a *StaticAuthenticator) VerifyBearer(token string) *Claims {
	publicKey, ok := a.tokens[token]
	if !ok || publicKey == "" {
		return nil
	}
	return &Claims{
		PublicKey:  publicKey,
		DIDAddress: security.DIDAddressForKey(publicKey),
	}
}

// authenticate reads the Authorization header. Absent, malformed, and
// unknown tokens all come back nil; query handlers treat that as an
// anonymous caller rather than an error.
func (s *Server) authenticate(r *http.Request) *Claims {
	if s.cfg.Auth == nil {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil
	}
	return s.cfg.Auth.VerifyBearer(token)
}

// callerOf converts claims into the query engine's caller identity.
func callerOf(claims *Claims) *query.Caller {
	if claims == nil {
		return nil
	}
	return &query.Caller{
		PublicKey:  claims.PublicKey,
		DIDAddress: claims.DIDAddress,
		UserID:     claims.UserID,
	}
}
