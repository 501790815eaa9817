// Package credential implements the Credential Service Client (spec.md
// §4.8): it resolves opaque credential keys bound to Credential-kind job
// parameters into secret values, by authenticating against a session-token
// endpoint and then querying the per-key credential endpoint.
package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
)

// SharedCache is the optional distributed cache backing resolved values
// across worker processes. Satisfied by *redis.Client (package
// internal/redis); declared as an interface here so tests can substitute an
// in-memory fake without a live Redis instance, and so credential does not
// import internal/redis directly.
type SharedCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config holds the credential service's connection configuration. BaseURL,
// User and Password are read from the environment by the config package;
// Config carries them across the package boundary rather than reading
// os.Getenv itself.
type Config struct {
	BaseURL  string
	User     string
	Password string

	// Timeout is the HTTP request timeout (default: 10s).
	Timeout time.Duration

	// SharedCacheTTL bounds how long a resolved value is kept in the
	// optional shared cache (default: 5m). Unrelated to the session
	// token's own advertised lifetime.
	SharedCacheTTL time.Duration
}

type sessionToken struct {
	value     string
	expiresAt time.Time
}

func (t sessionToken) valid() bool {
	return t.value != "" && time.Now().Before(t.expiresAt)
}

// Client resolves credential keys against the external HTTP credential
// service. A session token is obtained lazily on first use and cached for
// its advertised lifetime, guarded by a mutex since the bound worker may
// resolve credentials from more than one goroutine (media pipeline frame
// callbacks, progress-reporting channel handles).
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu    sync.Mutex
	token sessionToken

	cache SharedCache // optional, may be nil

	// correlationID, when set, is sent as X-Correlation-ID on every
	// request this Client makes, so the credential service's own logs can
	// be joined against the calling worker process's log stream
	// (SPEC_FULL.md's "Correlation IDs" ambient component).
	correlationID string
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithSharedCache attaches an optional distributed cache so a value
// resolved by one worker process can be reused by others without
// re-authenticating against the credential service.
func WithSharedCache(cache SharedCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithCorrelationID tags every outgoing HTTP request with id via the
// X-Correlation-ID header. Typically set to the bound process's
// logger.Logger.CorrelationID() by the CLI bootstrap.
func WithCorrelationID(id string) Option {
	return func(c *Client) { c.correlationID = id }
}

// NewClient constructs a Client from cfg. BaseURL, User and Password are
// required; a RuntimeError is returned if any is empty, matching §4.8's
// "missing env configuration → RuntimeError".
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.User == "" || cfg.Password == "" {
		return nil, mcaierr.RuntimeError("credential service not configured: base URL, user and password are all required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SharedCacheTTL == 0 {
		cfg.SharedCacheTTL = 5 * time.Minute
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// sessionResponse is the session endpoint's response envelope.
type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// credentialResponse is the per-key credential endpoint's response
// envelope; only .data.value is consumed.
type credentialResponse struct {
	Data struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Resolve implements param.CredentialResolver: it returns the secret value
// bound to key, authenticating against the session endpoint first if no
// cached token is valid. A resolution that fails is retried exactly once:
// after a transport error on the credential request, or after forcing
// re-authentication when the cached token was rejected.
func (c *Client) Resolve(key string) (string, error) {
	ctx := context.Background()

	if c.cache != nil {
		if value, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return value, nil
		}
	}

	value, err := c.resolveViaService(ctx, key, false)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, value, c.cfg.SharedCacheTTL)
	}
	return value, nil
}

func (c *Client) resolveViaService(ctx context.Context, key string, retried bool) (string, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/credentials/" + url.PathEscape(key))
	if err != nil {
		return "", mcaierr.RuntimeError("invalid credential service URL: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", mcaierr.RuntimeError("failed to build credential request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	c.tagCorrelationID(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if !retried {
			return c.resolveViaService(ctx, key, true)
		}
		return "", mcaierr.RuntimeError("credential service unreachable: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body credentialResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", mcaierr.RuntimeError("malformed credential response for %q: %v", key, err)
		}
		return body.Data.Value, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		if !retried {
			c.invalidateToken()
			return c.resolveViaService(ctx, key, true)
		}
		return "", mcaierr.RuntimeError("credential service rejected session token resolving %q", key)

	case http.StatusNotFound:
		return "", mcaierr.RuntimeError("unknown credential key %q", key)

	default:
		return "", mcaierr.RuntimeError("credential service returned status %d resolving %q", resp.StatusCode, key)
	}
}

// currentToken returns the cached session token if still valid, else
// authenticates against the session endpoint and caches the result.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.valid() {
		return c.token.value, nil
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/session"
	form := url.Values{"user": {c.cfg.User}, "password": {c.cfg.Password}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", mcaierr.RuntimeError("failed to build session request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	c.tagCorrelationID(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", mcaierr.RuntimeError("credential session endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", mcaierr.RuntimeError("credential session authentication failed with status %d", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", mcaierr.RuntimeError("malformed session response: %v", err)
	}
	if body.Token == "" {
		return "", mcaierr.RuntimeError("credential session response carried no token")
	}

	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.token = sessionToken{value: body.Token, expiresAt: time.Now().Add(ttl)}
	return c.token.value, nil
}

// tagCorrelationID sets X-Correlation-ID on req if this Client was
// constructed with WithCorrelationID. A no-op otherwise.
func (c *Client) tagCorrelationID(req *http.Request) {
	if c.correlationID != "" {
		req.Header.Set("X-Correlation-ID", c.correlationID)
	}
}

// invalidateToken forces the next currentToken call to re-authenticate.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = sessionToken{}
}
