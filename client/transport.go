package client

import (
	"book-club-api/model"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	refreshPath = "/auth/refresh"

	// A refresh that has not resolved within this window is treated as a
	// terminal failure; it is never retried automatically.
	defaultRefreshTimeout = 10 * time.Second
)

// Client is the token transport: every outbound request from application code
// goes through Do. It holds the current access token in memory only, drives
// the refresh endpoint when the token expires, and fans a single refresh out
// to every request that failed in the same expiry window.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	refreshTimeout time.Duration

	mu          sync.Mutex // guards accessToken and observers
	accessToken string
	observers   []func(Event)

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client's cookie jar
// is preserved if the replacement has none, since the jar is the only channel
// carrying the refresh credential.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Jar == nil {
			hc.Jar = c.httpClient.Jar
		}
		c.httpClient = hc
	}
}

// WithRefreshTimeout overrides the bound on a single refresh attempt.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Jar: jar},
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPClient exposes the underlying HTTP client, including the cookie jar
// that carries the refresh credential.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// AccessToken returns the access token currently held in memory.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// clearAccessToken drops the token and reports whether one was held.
func (c *Client) clearAccessToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.accessToken != ""
	c.accessToken = ""
	return held
}

// NewRequest builds a request against the client's base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

// Do performs the request, attaching the current access token. On a 401 it
// runs the single-flight refresh and replays the request exactly once with
// the renewed token. A second 401 after a successful refresh is surfaced
// as-is together with an EventUnauthorized notification; it never triggers
// another refresh.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token := c.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// The refresh call's own 401 must never recurse into another refresh.
	if resp.StatusCode != http.StatusUnauthorized || strings.HasSuffix(req.URL.Path, refreshPath) {
		return resp, nil
	}

	// The response body will not reach the caller; release the connection.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	newToken, err := c.refreshIfStale(token)
	if err != nil {
		return nil, err
	}

	retry, err := c.replayableRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+newToken)

	resp, err = c.httpClient.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.emit(EventUnauthorized)
	}
	return resp, nil
}

// replayableRequest clones the request with a fresh body for the retry.
func (c *Client) replayableRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot replay request with unrepeatable body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

// refreshIfStale returns a token strictly newer than the one the request
// failed with. If another request already completed a refresh, its result is
// reused without a second network call.
func (c *Client) refreshIfStale(failedToken string) (string, error) {
	if current := c.AccessToken(); current != "" && current != failedToken {
		return current, nil
	}
	return c.refresh()
}

// refresh performs the single-flight token renewal. Any number of concurrent
// callers share one network call; each gets the same result. On failure the
// session is torn down and every caller receives ErrSessionExpired.
func (c *Client) refresh() (string, error) {
	token, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		// The flight outlives any individual waiter, so it runs on its own
		// context rather than the first caller's.
		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.teardown()
			return nil, ErrSessionExpired
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			c.teardown()
			return nil, ErrSessionExpired
		}

		var body model.TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
			c.teardown()
			return nil, ErrSessionExpired
		}

		c.setAccessToken(body.AccessToken)
		return body.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// teardown clears the in-memory token and notifies subscribers. The
// notification fires only when a session actually existed, so a silent
// restore attempt on a cold start stays silent.
func (c *Client) teardown() {
	if c.clearAccessToken() {
		c.emit(EventSessionExpired)
	}
}
