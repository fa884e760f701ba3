package auth

import (
	"context"
	"errors"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
)

// Identity is derived once per connection from a verified credential and is
// immutable for the connection's lifetime.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Resolver turns a raw handshake credential into an Identity. A failure here
// is terminal for the connection attempt: the caller closes the transport
// and the client must reconnect with a fresh credential.
type Resolver struct {
	verifier TokenVerifier
}

func NewResolver(verifier TokenVerifier) *Resolver {
	return &Resolver{verifier: verifier}
}

// Authenticate strips an optional "Bearer " prefix, verifies the credential
// and builds the identity. DisplayName falls back to the local part of the
// email when the credential carries no username.
func (r *Resolver) Authenticate(ctx context.Context, rawCredential string) (Identity, error) {
	token := StripBearer(rawCredential)
	if token == "" {
		return Identity{}, errs.ErrAuthMissing
	}

	claims, err := r.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Identity{}, errs.ErrAuthExpired.WithDetail(err.Error())
		}
		return Identity{}, errs.ErrAuthInvalid.WithDetail(err.Error())
	}
	if claims.Subject == "" {
		return Identity{}, errs.ErrAuthInvalid.WithDetail("subject claim missing")
	}

	name := claims.Username
	if name == "" {
		name = emailLocalPart(claims.Email)
	}
	return Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: name,
	}, nil
}

// StripBearer removes a scheme prefix ("Bearer xxx" -> "xxx"), case
// insensitively, and trims surrounding whitespace.
func StripBearer(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 7 && strings.EqualFold(s[:7], "bearer ") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}

func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
