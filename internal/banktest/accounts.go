package banktest

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Account seeds a user.
type Account struct {
	Username string
	Email    string
	Password string

	// Face is the base64 payload of a still that face sign-in recognizes.
	Face string

	Verified bool
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(a Account) (string, error) {
	if a.Email == "" || a.Username == "" || a.Password == "" {
		return "", errors.New("banktest: account needs username, email and password")
	}

	hash, err := cryptox.HashPassword(a.Password)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.userByEmail(a.Email) != nil {
		return "", fmt.Errorf("banktest: email %q already registered", a.Email)
	}

	u := &user{
		ID:           s.data.objectID(),
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: hash,
		IsVerified:   a.Verified,
	}
	s.data.users = append(s.data.users, u)

	if a.Face != "" {
		s.faces[cryptox.FingerprintToken(a.Face)] = u.ID
	}
	return u.ID, nil
}

// RegisterFace makes face sign-in recognize payload as email.
func (s *Server) RegisterFace(email, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByEmail(email)
	if u == nil {
		return errUnknownUser
	}
	s.faces[cryptox.FingerprintToken(payload)] = u.ID
	return nil
}

// EnableTOTP turns on the second factor for email and returns the shared
// secret an authenticator would be provisioned with.
func (s *Server) EnableTOTP(email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "SecureDigitalCard",
		AccountName: email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByEmail(email)
	if u == nil {
		return "", errUnknownUser
	}
	u.TOTPSecret = key.Secret()
	return key.Secret(), nil
}

// AddCard gives the account behind email a card with the default daily
// limit and returns the card id.
func (s *Server) AddCard(email, holder, number, cvv, expiry string) (string, error) {
	if !cardNumberRe.MatchString(number) || !cvvRe.MatchString(cvv) || !expiryRe.MatchString(expiry) {
		return "", errors.New("banktest: malformed card")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByEmail(email)
	if u == nil {
		return "", errUnknownUser
	}
	c, err := s.newCardLocked(u.ID, holder, number, cvv, expiry, defaultDailyLimit)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(c.ID), nil
}
