package banktest

import (
	"fmt"
	"net/http"
	"net/mail"
	"path"
	"strings"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/pquerna/otp/totp"
)

const maxPictureSize = 5 << 20

type userJSON struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	IsVerified       bool   `json:"is_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	ProfilePicture   string `json:"profile_picture,omitempty"`
}

func toUserJSON(r *http.Request, u *user) userJSON {
	out := userJSON{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		IsVerified:       u.IsVerified,
		TwoFactorEnabled: u.twoFactor(),
	}
	if u.ProfilePicture != "" {
		out.ProfilePicture = "http://" + r.Host + u.ProfilePicture
	}
	return out
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	missing := fieldErrors{}
	if body.Email == "" {
		missing.add("email", "This field is required.")
	}
	if body.Password == "" {
		missing.add("password", "This field is required.")
	}
	if len(missing) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, missing)
		return
	}

	ip := httpx.IPKeyExtractor(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByEmail(body.Email)
	if u == nil || cryptox.VerifyPassword(body.Password, u.PasswordHash) != nil {
		if u != nil {
			s.data.audit(u.ID, ActionFailedLogin, ip, 50, map[string]any{"method": "password"}, s.now())
		}
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	if u.twoFactor() {
		token, err := s.challengeLocked(u)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":       "mfa_required",
			"mfa_token":   token,
			"mfa_methods": []string{"totp"},
		})
		return
	}

	s.signInLocked(w, r, u, "password", false)
}

func (s *Server) handleMFA(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		MFAToken string `json:"mfa_token"`
		Code     string `json:"code"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.redeemChallengeLocked(body.MFAToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "MFA session expired")
		return
	}
	if !totp.Validate(body.Code, u.TOTPSecret) {
		s.data.audit(u.ID, ActionFailedLogin, httpx.IPKeyExtractor(r), 50, map[string]any{"method": "totp"}, s.now())
		writeError(w, http.StatusBadRequest, "Invalid code")
		return
	}

	delete(s.challenges, body.MFAToken)
	s.signInLocked(w, r, u, "totp", false)
}

func (s *Server) handleFaceLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		Image string `json:"image"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil || body.Image == "" {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}

	// Data URLs and bare base64 identify the same still.
	payload := body.Image
	if _, data, ok := strings.Cut(payload, ","); ok && strings.HasPrefix(payload, "data:") {
		payload = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByID(s.faces[cryptox.FingerprintToken(payload)])
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Face not recognized")
		return
	}
	s.signInLocked(w, r, u, "face", true)
}

// signInLocked issues a pair, records the sign-in and writes the token
// response.
func (s *Server) signInLocked(w http.ResponseWriter, r *http.Request, u *user, method string, embedUser bool) {
	pair, err := s.issuePairLocked(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	ip := httpx.IPKeyExtractor(r)
	s.data.audit(u.ID, ActionLogin, ip, 10, map[string]any{"method": method}, s.now())
	s.data.trackDevice(u.ID, ip, r.UserAgent(), s.now())

	if !embedUser {
		httpx.WriteJSON(w, http.StatusOK, pair)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		tokenPair
		User userJSON `json:"user"`
	}{pair, toUserJSON(r, u)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil || body.Refresh == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, fieldErrors{"refresh": {"This field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshFail != 0 {
		writeTokenInvalid(w, s.refreshFail)
		return
	}

	pair, err := s.renewLocked(body.Refresh)
	if err != nil {
		writeTokenInvalid(w, http.StatusUnauthorized)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Password2 string `json:"password2"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := fieldErrors{}
	if body.Username == "" {
		errs.add("username", "This field is required.")
	}
	if addr, err := mail.ParseAddress(body.Email); err != nil || addr.Address != body.Email {
		errs.add("email", "Enter a valid email address.")
	}
	if body.Password == "" {
		errs.add("password", "This field is required.")
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}
	if body.Password != body.Password2 {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"password": "Password fields didn't match."})
		return
	}

	hash, err := cryptox.HashPassword(body.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.userByUsername(body.Username) != nil {
		errs.add("username", "A user with that username already exists.")
	}
	if s.data.userByEmail(body.Email) != nil {
		errs.add("email", "user with this email already exists.")
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}

	u := &user{
		ID:           s.data.objectID(),
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: hash,
	}
	s.data.users = append(s.data.users, u)
	httpx.WriteJSON(w, http.StatusCreated, toUserJSON(r, u))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByID(httpx.UserIDFromContext(r.Context()))
	httpx.WriteJSON(w, http.StatusOK, toUserJSON(r, u))
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByID(httpx.UserIDFromContext(r.Context()))

	errs := fieldErrors{}
	if body.Username != nil {
		if other := s.data.userByUsername(*body.Username); other != nil && other != u {
			errs.add("username", "A user with that username already exists.")
		}
	}
	if body.Email != nil {
		if other := s.data.userByEmail(*body.Email); other != nil && other != u {
			errs.add("email", "user with this email already exists.")
		}
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}

	if body.Username != nil {
		u.Username = *body.Username
	}
	if body.Email != nil {
		u.Email = *body.Email
	}
	httpx.WriteJSON(w, http.StatusOK, toUserJSON(r, u))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.NewPassword) < 8 {
		httpx.WriteJSON(w, http.StatusBadRequest, fieldErrors{"new_password": {"Password must be at least 8 characters long"}})
		return
	}

	s.mu.Lock()
	u := s.data.userByID(httpx.UserIDFromContext(r.Context()))
	current := u.PasswordHash
	s.mu.Unlock()

	if cryptox.VerifyPassword(body.OldPassword, current) != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, fieldErrors{"old_password": {"Old password is incorrect"}})
		return
	}

	hash, err := cryptox.HashPassword(body.NewPassword)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	u.PasswordHash = hash
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

var pictureTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

func (s *Server) handleUploadPicture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPictureSize+1<<16)

	file, header, err := r.FormFile("profile_picture")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No profile picture provided")
		return
	}
	defer file.Close()

	ext, ok := pictureTypes[header.Header.Get("Content-Type")]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid file type. Only JPEG, PNG, and GIF are allowed.")
		return
	}
	if header.Size > maxPictureSize {
		writeError(w, http.StatusBadRequest, "File too large. Maximum size is 5MB.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByID(httpx.UserIDFromContext(r.Context()))
	u.ProfilePicture = path.Join("/media/profile_pics", fmt.Sprintf("%s_%d%s", u.ID, s.data.id(), ext))
	httpx.WriteJSON(w, http.StatusOK, toUserJSON(r, u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = httpx.DecodeJSON(w, r, &body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.Refresh != "" {
		s.blacklistLocked(body.Refresh)
	}
	s.data.audit(httpx.UserIDFromContext(r.Context()), ActionLogout, httpx.IPKeyExtractor(r), 0, nil, s.now())
	w.WriteHeader(http.StatusResetContent)
}
