// Package auth resolves the caller's identity from a bearer token.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// Guest identity values recorded on orders placed without signing in.
const (
	GuestUserID = "guest"
	GuestEmail  = "guest@zaya.com"
	GuestName   = "Guest"
)

var (
	// ErrUnauthorized is returned when a presented token does not resolve to a user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned by Repository when no user has the hash.
	ErrUserNotFound = errors.New("user not found")
)

// Identity is a signed-in user.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	IsAdmin     bool
	// TokenHash is the stored HMAC of the user's access token.
	TokenHash string
}

// Repository provides lookup of identities by their token HMAC.
type Repository interface {
	FindByTokenHash(ctx context.Context, hash string) (*Identity, error)
}

// Authenticator verifies access tokens against the Repository.
type Authenticator struct {
	users  Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given HMAC pepper.
func NewAuthenticator(users Repository, pepper []byte) *Authenticator {
	return &Authenticator{users: users, pepper: pepper}
}

// HashToken returns the hex HMAC-SHA256 of token under pepper.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves token to an Identity. The stored hash is compared in
// constant time against the computed one.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	hexHash := HashToken(a.pepper, token)

	id, err := a.users.FindByTokenHash(ctx, hexHash)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil, ErrUnauthorized
	case err != nil:
		return nil, errors.Wrap(err, "find user")
	}

	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(id.TokenHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return id, nil
}
