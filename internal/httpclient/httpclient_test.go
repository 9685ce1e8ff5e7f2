package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New(Options{})

	assert.Equal(t, 180*time.Second, c.Timeout)
	_, ok := c.Transport.(*userAgentTransport)
	assert.True(t, ok)
}

func TestUserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Options{PreferIPv4: true, Timeout: 5 * time.Second})

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{DefaultUserAgent, "custom"}, got)
}
