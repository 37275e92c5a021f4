package httputil_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/lplay/httputil"
)

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestReadResponseBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)

	body, err := httputil.ReadResponseBody(context.Background(), get(t, srv.URL+"/full"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))

	_, err = httputil.ReadResponseBody(context.Background(), get(t, srv.URL+"/empty"))
	require.ErrorIs(t, err, httputil.ErrEmptyBody)
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	codes := map[string]int{"/ok": 200, "/missing": 404, "/busy": 429, "/broken": 502}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(codes[r.URL.Path])
	}))
	t.Cleanup(srv.Close)

	require.NoError(t, httputil.CheckStatus(get(t, srv.URL+"/ok")))

	testCases := []struct {
		path      string
		retryable bool
	}{
		{path: "/missing", retryable: false},
		{path: "/busy", retryable: true},
		{path: "/broken", retryable: true},
	}
	for _, tc := range testCases {
		err := httputil.CheckStatus(get(t, srv.URL+tc.path))
		var statusErr *httputil.StatusError
		require.ErrorAs(t, err, &statusErr, tc.path)
		assert.Equal(t, codes[tc.path], statusErr.StatusCode)
		assert.Equal(t, tc.retryable, statusErr.Retryable(), tc.path)
	}
}
