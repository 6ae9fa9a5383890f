package banksdk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestDispatcherSend(t *testing.T) {
	t.Parallel()

	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		switch r.URL.Path {
		case "/api/missing/":
			writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		default:
			writeTestJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
		}
	}))
	t.Cleanup(srv.Close)

	store := NewMemoryStore()
	d, err := NewDispatcher(srv.URL+"/api/", srv.Client(), store)
	require.NoError(t, err)

	t.Run("attaches stored access credential", func(t *testing.T) {
		require.NoError(t, store.Set(context.Background(), KindAccess, "tok-1"))
		t.Cleanup(func() { _ = store.Clear(context.Background()) })

		req, err := NewJSONRequest(http.MethodPost, "/cards/", map[string]string{"a": "b"})
		require.NoError(t, err)
		req.Query = map[string][]string{"ordering": {"-timestamp"}}

		resp, err := d.Send(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)

		var out map[string]string
		require.NoError(t, resp.Decode(&out))
		require.Equal(t, "yes", out["ok"])

		require.Equal(t, "/api/cards/", got.URL.Path)
		require.Equal(t, "-timestamp", got.URL.Query().Get("ordering"))
		require.Equal(t, "Bearer tok-1", got.Header.Get("Authorization"))
		require.Equal(t, "application/json", got.Header.Get("Content-Type"))
		require.Equal(t, req.ID.String(), got.Header.Get(slogx.RequestIDHeader))
		require.JSONEq(t, `{"a":"b"}`, gotBody)
		require.Equal(t, "tok-1", req.credential)
	})

	t.Run("anonymous carries no credential", func(t *testing.T) {
		require.NoError(t, store.Set(context.Background(), KindAccess, "tok-1"))
		t.Cleanup(func() { _ = store.Clear(context.Background()) })

		req := NewRequest(http.MethodGet, "/auth/register/")
		req.Anonymous = true

		_, err := d.Send(context.Background(), req)
		require.NoError(t, err)
		require.Empty(t, got.Header.Get("Authorization"))
	})

	t.Run("no credential stored", func(t *testing.T) {
		_, err := d.Send(context.Background(), NewRequest(http.MethodGet, "/cards/"))
		require.NoError(t, err)
		require.Empty(t, got.Header.Get("Authorization"))
	})

	t.Run("non 2xx is an HTTPError", func(t *testing.T) {
		_, err := d.Send(context.Background(), NewRequest(http.MethodGet, "/missing/"))

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		require.Equal(t, http.StatusNotFound, httpErr.Status)
		require.Equal(t, "Not found.", httpErr.Detail())
		require.Equal(t, "/missing/", httpErr.Path)
		require.True(t, IsStatus(err, http.StatusNotFound))
		require.Contains(t, err.Error(), "HTTP 404")
	})
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher("not a url", nil, NewMemoryStore())
	require.Error(t, err)

	_, err = NewDispatcher("http://localhost:8000/api", nil, nil)
	require.Error(t, err)
}

func TestResponseDecodeEmptyBody(t *testing.T) {
	t.Parallel()

	out := map[string]string{"kept": "yes"}
	require.NoError(t, (&Response{Body: []byte("  ")}).Decode(&out))
	require.Equal(t, "yes", out["kept"])

	require.Error(t, (&Response{Body: []byte("{")}).Decode(&out))
}

func TestHTTPErrorDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Authentication credentials were not provided."}`, "Authentication credentials were not provided."},
		{"error", `{"error":"Face not recognized"}`, "Face not recognized"},
		{"field errors", `{"email":["Enter a valid email address."]}`, ""},
		{"not json", `<html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := &HTTPError{Method: "GET", Path: "/x/", Status: 400, Body: []byte(tt.body)}
			require.Equal(t, tt.want, err.Detail())
		})
	}
}
