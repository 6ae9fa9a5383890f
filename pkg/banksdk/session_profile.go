package banksdk

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

// Profile operations

const (
	ChangePasswordPath = "/auth/change-password/"
	ProfilePicturePath = "/auth/upload-profile-picture/"

	// MaxProfilePictureSize is the largest avatar the backend accepts.
	MaxProfilePictureSize = 5 << 20
)

var pictureTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// UpdateProfile applies the non-nil fields of in and refreshes the cached
// user.
func (s *Session) UpdateProfile(ctx context.Context, in ProfileUpdate) (*User, error) {
	errs := make(map[string]string)
	if in.Email != nil {
		validateEmail(errs, "email", *in.Email)
	}
	if in.Username != nil && strings.TrimSpace(*in.Username) == "" {
		errs["username"] = reasonRequired
	}
	if err := newValidationError(errs); err != nil {
		return nil, err
	}

	req, err := NewJSONRequest(http.MethodPatch, ProfilePath, in)
	if err != nil {
		return nil, err
	}

	var user User
	if err := s.do(ctx, req, &user); err != nil {
		return nil, fieldErrors(err)
	}
	s.setUser(&user)
	return cloneUser(&user), nil
}

// ChangePassword replaces the account password. The current credentials
// stay valid.
func (s *Session) ChangePassword(ctx context.Context, in ChangePasswordRequest) error {
	if err := newValidationError(validateNewPassword(in)); err != nil {
		return err
	}

	req, err := NewJSONRequest(http.MethodPost, ChangePasswordPath, in)
	if err != nil {
		return err
	}
	if err := s.do(ctx, req, nil); err != nil {
		return fieldErrors(err)
	}
	return nil
}

// UploadProfilePicture sets the avatar from raw image bytes. The type is
// sniffed from the content, not from filename.
func (s *Session) UploadProfilePicture(ctx context.Context, filename string, data []byte) (*User, error) {
	contentType, err := checkPicture(data)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profile_picture"; filename=%q`, pictureName(filename, contentType)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req := NewRequest(http.MethodPost, ProfilePicturePath)
	req.Body = body.Bytes()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var user User
	if err := s.do(ctx, req, &user); err != nil {
		return nil, fieldErrors(err)
	}
	s.setUser(&user)
	return cloneUser(&user), nil
}

func checkPicture(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ValidationError{Fields: map[string]string{"profile_picture": "No profile picture provided"}}
	}
	if len(data) > MaxProfilePictureSize {
		return "", &ValidationError{Fields: map[string]string{"profile_picture": "File too large. Maximum size is 5MB."}}
	}
	contentType := http.DetectContentType(data)
	if !pictureTypes[contentType] {
		return "", &ValidationError{Fields: map[string]string{"profile_picture": "Invalid file type. Only JPEG, PNG, and GIF are allowed."}}
	}
	return contentType, nil
}

func pictureName(filename, contentType string) string {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "avatar"
	}
	if filepath.Ext(name) == "" {
		name += "." + strings.TrimPrefix(contentType, "image/")
	}
	return name
}
