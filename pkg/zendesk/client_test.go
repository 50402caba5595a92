package zendesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/remote"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(config.ZendeskConfig{Subdomain: "test", User: "u@test", APIToken: "tok"})
	c.OverrideForTest(server.URL, nil)
	return c
}

func TestDoSendsBasicAuth(t *testing.T) {
	var gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.get(context.Background(), "/anything", nil))
	assert.Contains(t, gotAuth, "Basic ")
	// user/token:token, base64 encoded
	assert.Equal(t, "Basic dUB0ZXN0L3Rva2VuOnRvaw==", gotAuth)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	var out map[string]bool
	require.NoError(t, c.get(context.Background(), "/x", &out))
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, out["ok"])
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := c.get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(maxAttempts), calls.Load())
	assert.True(t, remote.IsTransient(err))
}

func TestDoHonorsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.get(context.Background(), "/x", nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo4xxIsPermanentAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid query"}`))
	}))

	err := c.get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, remote.IsPermanent(err))
	assert.Contains(t, err.Error(), "invalid query")
}

func TestDo404IsDetectable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := c.get(context.Background(), "/custom_objects/missing", nil)
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))
}

func TestResolveHandlesAbsoluteURLs(t *testing.T) {
	c := NewClient(config.ZendeskConfig{Subdomain: "acme"})
	assert.Equal(t, "https://acme.zendesk.com/api/v2/search.json", c.resolve("/search.json"))
	assert.Equal(t, "https://other.example/page2", c.resolve("https://other.example/page2"))
}

func TestPostMarshalsBody(t *testing.T) {
	var received map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{}`))
	}))

	err := c.post(context.Background(), "/things", map[string]any{"name": "n"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "n", received["name"])
}
