package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		img.Set(x, x, color.RGBA{G: 200, A: 255})
	}
	return img
}

func writeFrame(t *testing.T, name string, encode func(*bytes.Buffer) error) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, encode(&buf))

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func requireJPEGDataURL(t *testing.T, img banksdk.EncodedImage) {
	t.Helper()

	require.True(t, strings.HasPrefix(string(img), "data:image/jpeg;base64,"), string(img)[:min(len(img), 40)])

	raw, err := base64.StdEncoding.DecodeString(img.Payload())
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 8, decoded.Bounds().Dx())
}

func TestFileCapturer(t *testing.T) {
	t.Parallel()

	formats := map[string]func(*bytes.Buffer) error{
		"frame.png": func(b *bytes.Buffer) error { return png.Encode(b, testImage()) },
		"frame.jpg": func(b *bytes.Buffer) error { return jpeg.Encode(b, testImage(), nil) },
		"frame.gif": func(b *bytes.Buffer) error { return gif.Encode(b, testImage(), nil) },
	}

	for name, encode := range formats {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := writeFrame(t, name, encode)
			img, err := FileCapturer{Path: path}.CaptureStillImage(context.Background())
			require.NoError(t, err)
			requireJPEGDataURL(t, img)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := FileCapturer{Path: filepath.Join(t.TempDir(), "nope.jpg")}.CaptureStillImage(context.Background())

		var camErr *CameraError
		require.ErrorAs(t, err, &camErr)
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("not an image", func(t *testing.T) {
		t.Parallel()

		path := writeFrame(t, "notes.txt", func(b *bytes.Buffer) error {
			_, err := b.WriteString("hello")
			return err
		})
		_, err := FileCapturer{Path: path}.CaptureStillImage(context.Background())
		require.ErrorIs(t, err, ErrBadFrame)
	})
}

func TestCommandCapturer(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX utilities")
	}

	t.Run("frame on stdout", func(t *testing.T) {
		t.Parallel()

		path := writeFrame(t, "frame.png", func(b *bytes.Buffer) error { return png.Encode(b, testImage()) })
		c := &CommandCapturer{Command: "cat", Args: []string{path}, Logger: slogx.Discard()}

		img, err := c.CaptureStillImage(context.Background())
		require.NoError(t, err)
		requireJPEGDataURL(t, img)
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()

		c := &CommandCapturer{Command: "no-such-camera-tool-xyz", Logger: slogx.Discard()}
		_, err := c.CaptureStillImage(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("non zero exit", func(t *testing.T) {
		t.Parallel()

		c := &CommandCapturer{Command: "false", Logger: slogx.Discard()}
		_, err := c.CaptureStillImage(context.Background())

		var camErr *CameraError
		require.ErrorAs(t, err, &camErr)
		require.ErrorIs(t, err, ErrFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		c := &CommandCapturer{Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond, Logger: slogx.Discard()}
		_, err := c.CaptureStillImage(context.Background())
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("garbage frame", func(t *testing.T) {
		t.Parallel()

		c := &CommandCapturer{Command: "echo", Args: []string{"not a jpeg"}, Logger: slogx.Discard()}
		_, err := c.CaptureStillImage(context.Background())
		require.ErrorIs(t, err, ErrBadFrame)
	})

	t.Run("unconfigured", func(t *testing.T) {
		t.Parallel()

		_, err := (&CommandCapturer{}).CaptureStillImage(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
