package reputation

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	t.Setenv("TEST_SCANNER_REP_KEY", "abc123")
	cache := blobcache.New(t.TempDir())
	limiter := ratelimit.New(rate.Inf, 1)
	return New("env:TEST_SCANNER_REP_KEY", limiter, cache, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestNew_UnresolvableSecretDisablesClient(t *testing.T) {
	cache := blobcache.New(t.TempDir())
	limiter := ratelimit.New(rate.Inf, 1)
	c := New("env:DOES_NOT_EXIST_SCANNER_REP_KEY", limiter, cache)
	assert.True(t, c.Disabled())

	rec, err := c.Lookup(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLookup_404IsUnknownNotAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	rec, err := c.Lookup(t.Context(), "198.51.100.1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "unknown", rec.Classification)
}

func TestLookup_401DisablesClientForProcessLifetime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.Lookup(t.Context(), "198.51.100.2")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, c.Disabled())

	rec, err := c.Lookup(t.Context(), "198.51.100.3")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLookup_SuccessfulResponseIsParsedAndCached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"noise":false,"riot":true,"classification":"benign","name":"Example DNS","last_seen":"2024-11-05"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	rec, err := c.Lookup(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "benign", rec.Classification)
	assert.True(t, rec.RIOT)
	require.NotNil(t, rec.LastSeen)

	rec2, err := c.Lookup(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, 1, calls, "second lookup must be served from cache")
}

func TestLookup_429RetriesThenGivesUp(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cache := blobcache.New(t.TempDir())
	limiter := ratelimit.New(rate.Inf, 1)
	t.Setenv("TEST_SCANNER_REP_KEY_429", "abc123")
	c := New("env:TEST_SCANNER_REP_KEY_429", limiter, cache, WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	_, err := c.lookupAPI(t.Context(), "203.0.113.5")
	assert.NoError(t, err)
	assert.Equal(t, maxRetries, calls, "must retry up to maxRetries on 429")
}

func TestRemainingQuota_ExhaustedBlocksAPICall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"classification":"benign"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server)

	key := quotaKeyPrefix + nowUTCDate()
	c.cache.StoreJSON(cacheService, key, &quotaCounter{Count: DailyQuota, Date: nowUTCDate()})

	rec, err := c.Lookup(t.Context(), "203.0.113.9")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 0, calls, "must not call API once quota is exhausted")
	assert.Equal(t, int64(1), c.stats.QuotaExceeded)
}

func TestRemainingQuota_OneBelowLimitStillAllowsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"classification":"benign"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	key := quotaKeyPrefix + nowUTCDate()
	c.cache.StoreJSON(cacheService, key, &quotaCounter{Count: DailyQuota - 1, Date: nowUTCDate()})

	rec, err := c.Lookup(t.Context(), "203.0.113.10")
	require.NoError(t, err)
	require.NotNil(t, rec)
}
