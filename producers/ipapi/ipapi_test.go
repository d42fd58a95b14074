package ipapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/producers/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
	"status": "success",
	"country": "Germany",
	"countryCode": "DE",
	"region": "BE",
	"regionName": "Berlin",
	"city": "Berlin",
	"zip": "10115",
	"lat": 52.5200,
	"lon": 13.4050,
	"timezone": "Europe/Berlin",
	"isp": "Example ISP",
	"query": "203.0.113.7"
}`

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		id       string
		body     string
		expected error
	}{
		{"Should parse a successful lookup.", successBody, nil},
		{"Should reject malformed bodies.", `{"status":`, geostream.ErrParsing},
		{"Should map failed lookups to internal errors.", `{"status":"fail","message":"reserved range"}`, geostream.ErrInternal},
		{"Should reject lookups without coordinates.", `{"status":"success","city":"Berlin"}`, geostream.ErrParsing},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.id, func(t *testing.T) {
			t.Parallel()

			location, err := Parse([]byte(testCase.body))
			if testCase.expected != nil {
				assert.True(t, errors.Is(err, testCase.expected), "unexpected error %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "203.0.113.7", location.IP)
			assert.Equal(t, "Berlin", location.City)
			assert.Equal(t, "DE", location.CountryCode)
			assert.InDelta(t, 52.52, location.Coordinate.Latitude, 1e-9)
			assert.InDelta(t, 13.405, location.Coordinate.Longitude, 1e-9)
		})
	}
}

func TestLookupThroughPool(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/203.0.113.7", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	service := New(server.URL, "secret", transport.New())
	pool := geostream.NewPool(geostream.WithDefaultQueue(geostream.InlineQueue))
	defer pool.Close()

	request := service.Request("203.0.113.7")
	require.NoError(t, pool.Add(request))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	location, err := request.Async(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Berlin", location.City)
	assert.False(t, pool.IsQueued(request))
}

func TestLookupInvalidKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	pool := geostream.NewPool(geostream.WithDefaultQueue(geostream.InlineQueue))
	defer pool.Close()

	request := New(server.URL, "wrong", transport.New()).Request("")
	require.NoError(t, pool.Add(request))

	_, err := request.Async(context.Background())
	assert.True(t, errors.Is(err, geostream.ErrInvalidAPIKey))
}

func TestLookupCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	pool := geostream.NewPool(geostream.WithDefaultQueue(geostream.InlineQueue))
	defer pool.Close()

	request := New(server.URL, "", transport.New()).Request("")
	require.NoError(t, pool.Add(request))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := request.Async(ctx)
	assert.True(t, errors.Is(err, geostream.ErrCancelled))
	assert.Equal(t, geostream.StateExpired, request.State())
}
