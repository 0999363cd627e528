package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pumpwatch/pumpwatch/pkg/log"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

const (
	// fetchAttempts bounds transport-level retries within one cycle.
	fetchAttempts = 3
	// fetchBackoff is the initial delay between retries; it doubles each
	// attempt.
	fetchBackoff = 500 * time.Millisecond
)

// sessionExpiredIndicators: an HTML body containing any of these is the
// login page, which the portal serves instead of data once the session
// cookie lapses.
var sessionExpiredIndicators = []string{"login", "sign in", "wachtwoord", "inloggen"}

// CurrentSnapshot runs one poll cycle: login if needed, fetch the raw
// dashboard payload, parse it and normalize it into a snapshot. A snapshot
// is only returned when the fetch went through a valid session: on expiry
// exactly one re-login happens, and a second consecutive expiry fails the
// cycle rather than looping.
func (c *Client) CurrentSnapshot(ctx context.Context) (types.SensorSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx = log.Component(ctx, "portal")

	if c.state != stateAuthenticated || c.moduleIndex == "" {
		if err := c.login(ctx); err != nil {
			return types.SensorSnapshot{}, err
		}
	}

	raw, err := c.fetchRaw(ctx)
	if errors.Is(err, errSessionExpired) {
		log.Ctx(ctx).InfoContext(ctx, "session expired, re-authenticating")
		c.state = stateExpired
		c.reauths.Add(1)
		c.resetLocked()
		if lerr := c.login(ctx); lerr != nil {
			return types.SensorSnapshot{}, lerr
		}
		raw, err = c.fetchRaw(ctx)
		if errors.Is(err, errSessionExpired) {
			c.state = stateExpired
			return types.SensorSnapshot{}, &FetchError{Err: errors.New("session expired again after re-authentication")}
		}
	}
	if err != nil {
		return types.SensorSnapshot{}, err
	}

	fields, err := parsePayload(raw)
	if err != nil {
		return types.SensorSnapshot{}, err
	}

	return normalize(ctx, fields), nil
}

// fetchRaw issues the authenticated data request. It retries transport
// failures and non-2xx answers with doubling backoff, but reports session
// expiry immediately so the caller can re-login instead of burning the
// retry budget on a dead session.
func (c *Client) fetchRaw(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	params.Set("account_module_index", c.moduleIndex)

	var lastErr error
	backoff := fetchBackoff
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := c.newGetRequest(ctx, dataPath, params)
		if err != nil {
			return nil, &FetchError{Err: err}
		}
		// The endpoint only answers AJAX-shaped requests.
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		req.Header.Set("Referer", c.baseURL+heatpumpPath)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errSessionExpired
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if redirectedToLogin(resp, body) {
			return nil, errSessionExpired
		}
		return body, nil
	}
	return nil, &FetchError{Err: lastErr}
}

// redirectedToLogin detects the expired-session shape: the redirect chain
// ended on the login page, or the "data" is an HTML login form.
func redirectedToLogin(resp *http.Response, body []byte) bool {
	if resp.Request != nil && strings.HasPrefix(resp.Request.URL.Path, loginPath) {
		return true
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/html") && containsAny(string(body), sessionExpiredIndicators) {
		return true
	}
	return false
}

func (c *Client) newGetRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (c *Client) newPostFormRequest(ctx context.Context, endpoint string, data url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body := strings.NewReader(data.Encode())
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
