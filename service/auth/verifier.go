package auth

import (
	"context"
	"time"
)

// Claims is what a verified credential asserts about its holder.
type Claims struct {
	Subject   string
	Email     string
	Username  string
	ExpiresAt time.Time
}

// TokenVerifier checks an opaque bearer credential and returns its claims.
// Implementations own the cryptography; the resolver owns the mapping to a
// gateway identity and the failure taxonomy.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}
