package clan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "clanbridge/pkg/domain-errors"
)

const (
	defaultLoginURL = "https://developer.clashofclans.com/api/login"
	defaultBaseURL  = "https://api.clashofclans.com/v1"
)

// HTTPClient implements API against the public clan service. The developer
// portal login yields a short-lived JWT which authenticates roster reads;
// expiry is read from the token itself so liveness checks stay local.
type HTTPClient struct {
	httpc    *http.Client
	loginURL string
	baseURL  string
	email    string
	password string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// HTTPOption tweaks the client, mostly for tests.
type HTTPOption func(*HTTPClient)

// WithEndpoints overrides the login and base URLs.
func WithEndpoints(loginURL, baseURL string) HTTPOption {
	return func(c *HTTPClient) {
		c.loginURL = loginURL
		c.baseURL = baseURL
	}
}

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(httpc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.httpc = httpc
	}
}

// NewHTTPClient constructs a client with credentials from the environment.
func NewHTTPClient(email, password string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		httpc:    &http.Client{Timeout: 30 * time.Second},
		loginURL: defaultLoginURL,
		baseURL:  defaultBaseURL,
		email:    email,
		password: password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	TemporaryAPIToken string `json:"temporaryAPIToken"`
}

// Login authenticates against the developer portal and caches the session
// token plus its expiry.
func (c *HTTPClient) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Email: c.email, Password: c.password})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return transportError(err, "clan API login")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeExternalAuth, "clan API rejected credentials")
	default:
		return dErrors.Newf(dErrors.CodeExternalTransient, "clan API login returned %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&lr); err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternalTransient, "decode login response")
	}
	if lr.TemporaryAPIToken == "" {
		return dErrors.New(dErrors.CodeExternalAuth, "login succeeded but no session token issued")
	}

	c.mu.Lock()
	c.token = lr.TemporaryAPIToken
	c.expires = tokenExpiry(lr.TemporaryAPIToken)
	c.mu.Unlock()
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// was just handed to us over TLS and only gates our own liveness check.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Unparseable tokens get a conservative one hour lifetime.
		return time.Now().Add(time.Hour)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(time.Hour)
	}
	return exp.Time
}

// SessionExpires reports when the cached token lapses. Zero means never
// logged in.
func (c *HTTPClient) SessionExpires() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expires
}

// Clan fetches the roster snapshot for a normalized clan tag.
func (c *HTTPClient) Clan(ctx context.Context, tag string) (*Snapshot, error) {
	c.mu.Lock()
	token := c.token
	expires := c.expires
	c.mu.Unlock()

	if token == "" || time.Now().After(expires) {
		return nil, dErrors.New(dErrors.CodeExternalAuth, "clan API session expired")
	}

	endpoint := fmt.Sprintf("%s/clans/%s", c.baseURL, url.PathEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build clan request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, transportError(err, "clan lookup")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, dErrors.Newf(dErrors.CodeExternalNotFound, "clan %s not found", tag)
	case http.StatusForbidden, http.StatusUnauthorized:
		return nil, dErrors.New(dErrors.CodeExternalAuth, "clan API rejected session")
	case http.StatusTooManyRequests:
		return nil, dErrors.New(dErrors.CodeExternalTransient, "clan API rate limited")
	default:
		return nil, dErrors.Newf(dErrors.CodeExternalTransient, "clan API returned %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&snap); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalTransient, "decode clan response")
	}
	return &snap, nil
}

func transportError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeExternalTransient, op+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeExternalTransient, op+" failed")
}
