package capture

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
)

// FileCapturer reads a still from disk. It stands in for a camera on
// machines without one.
type FileCapturer struct {
	Path string
}

var _ banksdk.Capturer = FileCapturer{}

func (c FileCapturer) CaptureStillImage(ctx context.Context) (banksdk.EncodedImage, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", cameraError(c.Path, ErrUnavailable, err)
	}
	if err != nil {
		return "", cameraError(c.Path, ErrFailed, err)
	}
	defer f.Close()

	frame, err := io.ReadAll(io.LimitReader(f, MaxFrameSize+1))
	if err != nil {
		return "", cameraError(c.Path, ErrFailed, err)
	}
	return encodeFrame(c.Path, frame)
}
