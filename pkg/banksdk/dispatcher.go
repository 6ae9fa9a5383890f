package banksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/idx"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"golang.org/x/oauth2"
)

// maxResponseBody bounds how much of a response body is buffered.
const maxResponseBody = 10 << 20

// Request is a backend call that can be sent more than once. The body is
// held as bytes so a replay after renewal re-sends exactly the same payload.
type Request struct {
	Method string
	Path   string // relative to the base URL, e.g. "/cards/"
	Query  url.Values
	Body   []byte
	Header http.Header

	// Anonymous requests never carry a credential and are never renewed.
	// Login, registration and the renewal exchange itself use it.
	Anonymous bool

	// ID is sent as X-Request-ID. It is assigned on first send and kept
	// for the replay so both attempts correlate in backend logs.
	ID idx.ID

	retried    bool
	credential string
}

func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: make(http.Header)}
}

// NewJSONRequest encodes v as the request body.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req := NewRequest(method, path)
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Retried reports whether the request has already been through one renewal.
func (r *Request) Retried() bool { return r.retried }

// Response is a buffered 2xx backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Sender sends one request and returns its response. A non-2xx response is
// reported as *HTTPError.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Dispatcher is the innermost Sender. It attaches whatever access credential
// is stored at the moment of sending; it never retries.
type Dispatcher struct {
	baseURL string
	client  *http.Client
	store   CredentialStore
}

func NewDispatcher(baseURL string, client *http.Client, store CredentialStore) (*Dispatcher, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &Dispatcher{baseURL: baseURL, client: client, store: store}, nil
}

func (d *Dispatcher) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.ID.IsZero() {
		req.ID = idx.New()
	}

	target := d.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(slogx.RequestIDHeader, req.ID.String())

	req.credential = ""
	if !req.Anonymous {
		token, err := d.store.Get(ctx, KindAccess)
		if err != nil {
			return nil, fmt.Errorf("failed to read access credential: %w", err)
		}
		if token != "" {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
			req.credential = token
		}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method: req.Method,
			Path:   req.Path,
			Status: resp.StatusCode,
			Body:   respBody,
		}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}
