package banktest

import (
	"errors"
	"fmt"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

const mfaChallengeTTL = 5 * time.Minute

var (
	errTokenInvalid = errors.New("token is invalid or expired")
	errTokenType    = errors.New("token has wrong type")
)

// accessClaims mirrors the claims the backend adds to SimpleJWT's defaults.
type accessClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type refreshGrant struct {
	userID      string
	expiresAt   time.Time
	blacklisted bool
}

type mfaChallenge struct {
	userID    string
	expiresAt time.Time
}

// issuePairLocked mints a fresh pair for u. Callers hold s.mu.
func (s *Server) issuePairLocked(u *user) (tokenPair, error) {
	access, err := s.issueAccessLocked(u)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := s.issueRefreshLocked(u.ID)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Server) issueAccessLocked(u *user) (string, error) {
	now := s.now()
	jti := idx.NewAt(now).String()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		UserID:    u.ID,
		Email:     u.Email,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
		},
	}).SignedString(s.opts.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	s.live[jti] = u.ID
	return token, nil
}

// issueRefreshLocked returns an opaque refresh credential. Only its
// fingerprint is kept.
func (s *Server) issueRefreshLocked(userID string) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	s.grants[cryptox.FingerprintToken(raw)] = &refreshGrant{
		userID:    userID,
		expiresAt: s.now().Add(s.opts.RefreshTTL),
	}
	return raw, nil
}

// verifyAccess is the bearer check for protected routes.
func (s *Server) verifyAccess(raw string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.opts.SigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errTokenInvalid, err)
	}
	if claims.TokenType != "access" {
		return "", errTokenType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if userID, ok := s.live[claims.ID]; !ok || userID != claims.UserID {
		return "", errTokenInvalid
	}
	if s.data.userByID(claims.UserID) == nil {
		return "", errUnknownUser
	}
	return claims.UserID, nil
}

// renewLocked trades a refresh credential for a new access credential, and
// a new refresh credential when rotation is on.
func (s *Server) renewLocked(raw string) (tokenPair, error) {
	fp := cryptox.FingerprintToken(raw)
	grant, ok := s.grants[fp]
	if !ok || grant.blacklisted || !s.now().Before(grant.expiresAt) {
		return tokenPair{}, errTokenInvalid
	}

	u := s.data.userByID(grant.userID)
	if u == nil {
		return tokenPair{}, errTokenInvalid
	}

	access, err := s.issueAccessLocked(u)
	if err != nil {
		return tokenPair{}, err
	}
	pair := tokenPair{Access: access}

	if s.opts.RotateRefresh {
		grant.blacklisted = true
		if pair.Refresh, err = s.issueRefreshLocked(u.ID); err != nil {
			return tokenPair{}, err
		}
	}
	return pair, nil
}

// blacklistLocked revokes raw. It reports whether raw was a live grant.
func (s *Server) blacklistLocked(raw string) bool {
	grant, ok := s.grants[cryptox.FingerprintToken(raw)]
	if !ok || grant.blacklisted {
		return false
	}
	grant.blacklisted = true
	return true
}

func (s *Server) challengeLocked(u *user) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	s.challenges[token] = mfaChallenge{userID: u.ID, expiresAt: s.now().Add(mfaChallengeTTL)}
	return token, nil
}

// redeemChallengeLocked consumes a challenge. A challenge survives a wrong
// code so the user can retry until it expires.
func (s *Server) redeemChallengeLocked(token string) (*user, bool) {
	ch, ok := s.challenges[token]
	if !ok || !s.now().Before(ch.expiresAt) {
		delete(s.challenges, token)
		return nil, false
	}
	u := s.data.userByID(ch.userID)
	return u, u != nil
}
