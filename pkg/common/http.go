package common

import (
	_ "embed"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// browserUserAgent is what the portal sees. The vendor serves a reduced
// page (and sometimes a bot interstitial) to non-browser agents, so the
// session client identifies as a desktop browser.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// Version reports the build version baked into the binary.
func Version() string {
	return strings.TrimSpace(version)
}

// SessionClient returns an http client suitable for a logged-in portal
// session: browser user-agent and an in-memory cookie jar so the login
// cookies ride along on every subsequent request.
func SessionClient(timeout time.Duration) *http.Client {
	// cookiejar.New only errors on a bad PublicSuffixList; nil is fine.
	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: browserUserAgent,
		},
		Jar:     jar,
		Timeout: timeout,
	}
}
