package banksdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is what the backend puts in an access credential. It is read
// for display only: expiry is discovered when a request is rejected, never
// from ExpiresAt.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// ErrNotSignedIn is returned when no access credential is stored.
var ErrNotSignedIn = errors.New("not signed in")

// ParseAccessClaims decodes token without verifying its signature. The
// client holds no verification key.
func ParseAccessClaims(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode access credential: %w", err)
	}
	return &claims, nil
}

// AccessClaims decodes the stored access credential.
func (s *Session) AccessClaims(ctx context.Context) (*AccessClaims, error) {
	token, err := s.store.Get(ctx, KindAccess)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotSignedIn
	}
	return ParseAccessClaims(token)
}
