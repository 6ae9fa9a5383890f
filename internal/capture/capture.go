// Package capture acquires still frames for face sign-in and encodes them as
// the JPEG data URLs the backend expects.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Formats accepted from disk or from a camera command.
	_ "image/gif"
	_ "image/png"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
)

const (
	// MaxFrameSize bounds a single frame read from disk or a command.
	MaxFrameSize = 10 << 20

	jpegQuality = 85
)

var (
	ErrUnavailable = errors.New("camera unavailable")
	ErrFailed      = errors.New("capture failed")
	ErrTimeout     = errors.New("capture timed out")
	ErrBadFrame    = errors.New("frame is not a decodable image")
)

// CameraError is returned by every Capturer in this package. Match the
// reason with errors.Is against the Err* values.
type CameraError struct {
	Source string
	Err    error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Source, e.Err)
}

func (e *CameraError) Unwrap() error { return e.Err }

func cameraError(source string, reason error, cause error) error {
	if cause == nil {
		return &CameraError{Source: source, Err: reason}
	}
	return &CameraError{Source: source, Err: fmt.Errorf("%w: %v", reason, cause)}
}

// encodeFrame decodes any supported image and re-encodes it as JPEG.
func encodeFrame(source string, frame []byte) (banksdk.EncodedImage, error) {
	if len(frame) == 0 {
		return "", cameraError(source, ErrBadFrame, errors.New("empty frame"))
	}
	if len(frame) > MaxFrameSize {
		return "", cameraError(source, ErrBadFrame, fmt.Errorf("frame larger than %d bytes", MaxFrameSize))
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", cameraError(source, ErrBadFrame, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", cameraError(source, ErrBadFrame, err)
	}
	return banksdk.NewJPEGImage(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
