package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestIDHeader carries the correlation id between client and backend.
const RequestIDHeader = "X-Request-ID"

// Transport is an http.RoundTripper that logs every outbound request at
// debug level and failures at warn. Headers are never logged.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := t.Logger.With(
		"req_id", req.Header.Get(RequestIDHeader),
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_client_error", "error", err, "duration_ms", elapsed)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logger.Log(req.Context(), level, "http_client_request",
		"status", resp.StatusCode,
		"duration_ms", elapsed,
	)
	return resp, nil
}
