package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmedkamals/geostream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		id       string
		status   int
		expected error
	}{
		{"Unauthorized is an invalid key.", http.StatusUnauthorized, geostream.ErrInvalidAPIKey},
		{"Forbidden is an invalid key.", http.StatusForbidden, geostream.ErrInvalidAPIKey},
		{"Too many requests is a usage limit.", http.StatusTooManyRequests, geostream.ErrUsageLimitReached},
		{"Not found is not found.", http.StatusNotFound, geostream.ErrNotFound},
		{"Server errors are internal.", http.StatusBadGateway, geostream.ErrInternal},
		{"Other client errors are internal.", http.StatusBadRequest, geostream.ErrInternal},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.id, func(t *testing.T) {
			t.Parallel()
			assert.True(t, errors.Is(StatusError("test", testCase.status), testCase.expected))
		})
	}

	assert.NoError(t, StatusError("test", http.StatusOK))
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "geostream-test", r.Header.Get("User-Agent"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(WithRetries(3, time.Millisecond), WithUserAgent("geostream-test"))

	body, err := client.Get(context.Background(), "test.Get", server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(WithRetries(3, time.Millisecond))

	_, err := client.Get(context.Background(), "test.Get", server.URL)
	assert.True(t, errors.Is(err, geostream.ErrUsageLimitReached))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(WithRetries(2, time.Millisecond))

	_, err := client.Get(context.Background(), "test.Get", server.URL)
	assert.True(t, errors.Is(err, geostream.ErrInternal))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientRateLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(WithRequestsPerMinute(1))

	_, err := client.Get(context.Background(), "test.Get", server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Get(ctx, "test.Get", server.URL)
	assert.True(t, errors.Is(err, geostream.ErrUsageLimitReached))
}
