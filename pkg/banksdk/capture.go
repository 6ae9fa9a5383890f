package banksdk

import (
	"context"
	"strings"
)

// jpegDataURLPrefix is the header of every image a capture device produces.
const jpegDataURLPrefix = "data:image/jpeg;base64,"

// EncodedImage is a still frame as a data URL, e.g.
// "data:image/jpeg;base64,/9j/4AAQ...". The session forwards it verbatim.
type EncodedImage string

// NewJPEGImage wraps base64 encoded JPEG bytes in a data URL.
func NewJPEGImage(b64 string) EncodedImage {
	return EncodedImage(jpegDataURLPrefix + b64)
}

func (i EncodedImage) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// Payload returns the base64 part of the data URL, or the whole value when
// it carries no data URL header.
func (i EncodedImage) Payload() string {
	if _, after, ok := strings.Cut(string(i), ";base64,"); ok {
		return after
	}
	return string(i)
}

// Capturer acquires a camera frame and encodes it. Implementations report
// device problems with their own error type; the session never inspects it.
type Capturer interface {
	CaptureStillImage(ctx context.Context) (EncodedImage, error)
}

type CapturerFunc func(ctx context.Context) (EncodedImage, error)

func (f CapturerFunc) CaptureStillImage(ctx context.Context) (EncodedImage, error) {
	return f(ctx)
}
