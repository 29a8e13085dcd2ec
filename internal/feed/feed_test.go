package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url, "test-key", "SF", 2*time.Second, mustZone(t))
	require.NoError(t, err)
	return c
}

func TestFetchCarriesCredentials(t *testing.T) {
	var gotKey, gotAgency string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		gotAgency = r.URL.Query().Get("agency")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "SF", gotAgency)
}

func TestFetchNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchSnapshotEmptyFeedIsNotAnError(t *testing.T) {
	raw := marshalFeed(t) // header only, zero entities
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, skipped, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, records)
}

func TestFetchSnapshotDecodes(t *testing.T) {
	raw := marshalFeed(t, fullEntity("1", "1001", 1741204800), fullEntity("2", "1002", 1741204801))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, skipped, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, records, 2)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("http://example.com", "", "SF", time.Second, nil)
	assert.Error(t, err)
}
