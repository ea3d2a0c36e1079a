package segments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.jw6.us/james/segtrack/internal/strava"
)

func stravaServer(t *testing.T, h http.HandlerFunc) *strava.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return strava.New(strava.Config{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 100, Timeout: time.Second, ShortTimeout: time.Second})
}

func TestFetchSurvivesDeprecatedLeaderboard(t *testing.T) {
	client := stravaServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/segments/12345":
			_, _ = w.Write([]byte(`{"id":12345,"name":"Hill Climb","distance":4310,"elevation_high":150,"elevation_low":50}`))
		case "/segments/12345/leaderboard":
			w.WriteHeader(http.StatusGone)
		case "/segments/12345/all_efforts":
			w.WriteHeader(http.StatusPaymentRequired)
		default:
			http.NotFound(w, r)
		}
	})
	f := NewFetcher(client, DefaultGAPModel)

	for i := 0; i < 20; i++ {
		snap, err := f.Fetch(context.Background(), 12345, "tok")
		require.NoError(t, err, "fetch %d", i)
		assert.Equal(t, "Hill Climb", snap.SegmentName)
		assert.Nil(t, snap.CrownHolder)
		assert.Nil(t, snap.PersonalBestTime)
	}
}

func TestSustainedRateLimitKeepsServingStoredRow(t *testing.T) {
	client := stravaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	fb := NewFallback(NewFetcher(client, DefaultGAPModel), newMemSegments(cachedRow()))

	for i := 0; i < 15; i++ {
		snap, err := fb.Fetch(context.Background(), 12345, "tok")
		require.NoError(t, err, "fetch %d", i)
		assert.Equal(t, SourceCache, snap.Source)
		assert.Equal(t, "25:10", *snap.PersonalBestTime)
	}
}
