package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
)

// fakeCache is an in-memory SharedCache for tests that don't need a live
// Redis instance.
type fakeCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// fakeService models the session + per-key endpoints the credential client
// talks to. sessionCalls counts how many times /session was hit, so tests
// can assert the token is cached rather than re-fetched per Resolve call.
type fakeService struct {
	mu                sync.Mutex
	sessionCalls      int
	rejectedTokens    map[string]bool
	values            map[string]string
	lastCorrelationID string
}

func newFakeService(values map[string]string) *fakeService {
	return &fakeService{rejectedTokens: make(map[string]bool), values: values}
}

func (s *fakeService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/session" && r.Method == http.MethodPost:
			s.mu.Lock()
			s.sessionCalls++
			s.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token":"tok-` + time.Now().Format("150405.000000000") + `","expires_in":3600}`))

		case len(r.URL.Path) > len("/credentials/") && r.URL.Path[:len("/credentials/")] == "/credentials/":
			key := r.URL.Path[len("/credentials/"):]
			auth := r.Header.Get("Authorization")
			s.mu.Lock()
			rejected := s.rejectedTokens[auth]
			s.lastCorrelationID = r.Header.Get("X-Correlation-ID")
			s.mu.Unlock()
			if rejected {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			value, ok := s.values[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"value":"` + value + `"}}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, svc *fakeService, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		User:     "worker",
		Password: "secret",
	}, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestResolveReturnsCredentialValue(t *testing.T) {
	svc := newFakeService(map[string]string{"s3-bucket": "my-secret-bucket"})
	client := newTestClient(t, svc)

	value, err := client.Resolve("s3-bucket")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "my-secret-bucket" {
		t.Errorf("value = %q, want %q", value, "my-secret-bucket")
	}
}

func TestResolveUnknownKeyIsRuntimeError(t *testing.T) {
	svc := newFakeService(map[string]string{})
	client := newTestClient(t, svc)

	_, err := client.Resolve("missing-key")
	if err == nil {
		t.Fatal("expected an error for an unknown credential key")
	}
	if !mcaierr.Is(err, mcaierr.KindRuntime) {
		t.Errorf("expected a KindRuntime error, got %v", err)
	}
}

func TestSessionTokenIsCachedAcrossResolves(t *testing.T) {
	svc := newFakeService(map[string]string{"a": "1", "b": "2"})
	client := newTestClient(t, svc)

	if _, err := client.Resolve("a"); err != nil {
		t.Fatalf("Resolve a: %v", err)
	}
	if _, err := client.Resolve("b"); err != nil {
		t.Fatalf("Resolve b: %v", err)
	}

	svc.mu.Lock()
	calls := svc.sessionCalls
	svc.mu.Unlock()
	if calls != 1 {
		t.Errorf("session endpoint called %d times, want 1 (token should be cached)", calls)
	}
}

func TestRejectedTokenIsRetriedOnce(t *testing.T) {
	svc := newFakeService(map[string]string{"k": "v"})
	client := newTestClient(t, svc)

	// Prime a token, then mark it rejected so the next Resolve must
	// re-authenticate and retry exactly once.
	if _, err := client.Resolve("k"); err != nil {
		t.Fatalf("initial Resolve: %v", err)
	}

	client.mu.Lock()
	staleAuth := "Bearer " + client.token.value
	client.mu.Unlock()
	svc.mu.Lock()
	svc.rejectedTokens[staleAuth] = true
	svc.mu.Unlock()

	value, err := client.Resolve("k")
	if err != nil {
		t.Fatalf("Resolve after token rejection: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q, want %q", value, "v")
	}
}

func TestMissingConfigIsRuntimeError(t *testing.T) {
	_, err := NewClient(Config{})
	if err == nil {
		t.Fatal("expected an error for empty config")
	}
	if !mcaierr.Is(err, mcaierr.KindRuntime) {
		t.Errorf("expected a KindRuntime error, got %v", err)
	}
}

func TestResolveUsesSharedCacheBeforeService(t *testing.T) {
	svc := newFakeService(map[string]string{"k": "from-service"})
	cache := newFakeCache()
	cache.items["k"] = "from-cache"

	client := newTestClient(t, svc, WithSharedCache(cache))

	value, err := client.Resolve("k")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "from-cache" {
		t.Errorf("value = %q, want %q (shared cache should be consulted first)", value, "from-cache")
	}

	svc.mu.Lock()
	calls := svc.sessionCalls
	svc.mu.Unlock()
	if calls != 0 {
		t.Errorf("session endpoint called %d times, want 0 when cache hits", calls)
	}
}

func TestResolvePopulatesSharedCacheOnMiss(t *testing.T) {
	svc := newFakeService(map[string]string{"k": "from-service"})
	cache := newFakeCache()

	client := newTestClient(t, svc, WithSharedCache(cache))

	if _, err := client.Resolve("k"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	value, ok, err := cache.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("cache Get: %v", err)
	}
	if !ok {
		t.Fatal("expected the resolved value to be written to the shared cache")
	}
	if value != "from-service" {
		t.Errorf("cached value = %q, want %q", value, "from-service")
	}
}

func TestResolveTagsRequestsWithCorrelationID(t *testing.T) {
	svc := newFakeService(map[string]string{"k": "v"})
	client := newTestClient(t, svc, WithCorrelationID("corr-abc-123"))

	if _, err := client.Resolve("k"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	svc.mu.Lock()
	got := svc.lastCorrelationID
	svc.mu.Unlock()

	if got != "corr-abc-123" {
		t.Errorf("X-Correlation-ID seen by service = %q, want %q", got, "corr-abc-123")
	}
}
