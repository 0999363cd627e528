package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	v := Version()
	assert.NotEmpty(t, v)
	assert.Equal(t, strings.TrimSpace(version), v, "version must not carry the embed's trailing newline")
}

func TestSessionClient(t *testing.T) {
	var sawCookie bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0", "session client should look like a browser")
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "abc"})
		case "/check":
			if c, err := r.Cookie("portal_session"); err == nil && c.Value == "abc" {
				sawCookie = true
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := SessionClient(5 * time.Second)
	require.NotNil(t, client.Jar, "session client needs a cookie jar")

	for _, path := range []string{"/set", "/check"} {
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.True(t, sawCookie, "cookie from login should be replayed on the next request")
}
