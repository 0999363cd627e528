package portal

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/levenlabs/go-lflag"
	"github.com/pumpwatch/pumpwatch/pkg/common"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

const (
	defaultBaseURL = "https://portaal.eplucon.de"

	loginPath    = "/login"
	heatpumpPath = "/e-control/heatpump"
	dataPath     = "/e-control/ajax/graphicsdata"
)

// Source produces one complete sensor snapshot per call. It is what the
// poller consumes; Client is the real portal-backed implementation and
// Mock exists for tests.
type Source interface {
	// CurrentSnapshot runs one full poll cycle (login if needed, fetch,
	// parse, normalize) and returns the resulting snapshot.
	CurrentSnapshot(ctx context.Context) (types.SensorSnapshot, error)
}

type authState int

const (
	stateUnauthenticated authState = iota
	stateAuthenticated
	stateExpired
)

// Client scrapes the vendor portal for one account. All session state
// (cookies, auth state, account module index) lives here; there is no
// process-wide singleton. Methods are serialized by the mutex, so a caller
// cannot overlap a fetch with a re-login.
type Client struct {
	client  *http.Client
	baseURL string
	creds   types.Credentials

	mu          sync.Mutex
	state       authState
	moduleIndex string

	reauths atomic.Int64
}

// ReauthCount reports how many times the session had to be re-established
// after an observed expiry. Exported for metrics.
func (c *Client) ReauthCount() int64 {
	return c.reauths.Load()
}

// New returns a Client for the given account.
func New(creds types.Credentials, settings types.Settings) *Client {
	c := &Client{}
	c.apply(creds, settings)
	return c
}

// Configured sets up a Client from flags. The returned value is only
// usable after lflag.Configure has run.
func Configured() *Client {
	c := &Client{}

	baseURL := lflag.String("portal-base-url", defaultBaseURL, "Base URL of the vendor portal")
	email := lflag.RequiredString("portal-email", "Email address of the portal account")
	password := lflag.RequiredString("portal-password", "Password of the portal account")
	timeout := lflag.Duration("portal-timeout", types.DefaultRequestTimeout, "Timeout for each portal HTTP request")

	lflag.Do(func() {
		c.apply(types.Credentials{Email: *email, Password: *password}, types.Settings{
			BaseURL:        *baseURL,
			RequestTimeout: *timeout,
		})
	})

	return c
}

// apply binds account and settings to the client. New and Configured both
// funnel through here so flags and direct construction behave identically.
func (c *Client) apply(creds types.Credentials, settings types.Settings) {
	settings = settings.Normalize()
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.creds = creds
	c.client = common.SessionClient(settings.RequestTimeout)
}

// Close tears the session down: cookies, auth state and the module index
// are discarded. The next CurrentSnapshot performs a fresh login.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}

// resetLocked drops all session state. Must be called with c.mu held.
func (c *Client) resetLocked() {
	c.state = stateUnauthenticated
	c.moduleIndex = ""
	if c.client != nil && c.client.Jar != nil {
		jar, _ := cookiejar.New(nil)
		c.client.Jar = jar
	}
}
