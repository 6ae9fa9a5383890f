package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
)

// DefaultCommandTimeout bounds a capture command that sets no timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandCapturer runs an external program that writes one image frame to
// stdout, e.g.
//
//	ffmpeg -f v4l2 -i /dev/video0 -frames:v 1 -f image2pipe -vcodec mjpeg -
//	fswebcam --no-banner -
type CommandCapturer struct {
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

var _ banksdk.Capturer = (*CommandCapturer)(nil)

func (c *CommandCapturer) CaptureStillImage(ctx context.Context) (banksdk.EncodedImage, error) {
	source := c.Command
	if source == "" {
		return "", cameraError("command", ErrUnavailable, errors.New("no capture command configured"))
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdout = &limitedBuffer{buf: &stdout, max: MaxFrameSize + 1}
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: 4 << 10}

	started := time.Now()
	err := cmd.Run()

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "capture command finished",
		"command", c.Command,
		"duration", time.Since(started),
		"bytes", stdout.Len(),
		"err", err,
	)

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "", cameraError(source, ErrUnavailable, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", cameraError(source, ErrTimeout, fmt.Errorf("after %s", timeout))
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", cameraError(source, ErrFailed, err)
	}
	return encodeFrame(source, stdout.Bytes())
}

// limitedBuffer keeps at most max bytes and silently drops the rest so a
// runaway command cannot exhaust memory.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
