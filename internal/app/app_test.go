package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitea.jw6.us/james/segtrack/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{BaseURL: "https://segs.example.com/"}
	cfg.Strava.ClientID = "id"
	cfg.Strava.ClientSecret = "secret"
	cfg.Strava.APIURL = "http://strava.test/api/v3"
	cfg.Strava.OAuthURL = "http://strava.test/oauth"
	cfg.Strava.RedirectPath = "/auth/strava/callback"
	cfg.Strava.Scope = "activity:read_all"
	cfg.Strava.RatePerSecond = 2
	cfg.Strava.RateBurst = 4
	cfg.Strava.Timeout = 7 * time.Second
	cfg.Strava.ShortTimeout = 3 * time.Second
	cfg.Token.RefreshMargin = time.Minute
	return cfg
}

func TestClientConfig(t *testing.T) {
	c := clientConfig(testConfig())
	assert.Equal(t, "http://strava.test/api/v3", c.BaseURL)
	assert.Equal(t, 2.0, c.RatePerSecond)
	assert.Equal(t, 4, c.Burst)
	assert.Equal(t, 7*time.Second, c.Timeout)
	assert.Equal(t, 3*time.Second, c.ShortTimeout)
}

func TestAuthConfig(t *testing.T) {
	c := authConfig(testConfig())
	assert.Equal(t, "id", c.ClientID)
	assert.Equal(t, "https://segs.example.com/auth/strava/callback", c.RedirectURL)
	assert.Equal(t, "http://strava.test/oauth", c.OAuthURL)
	assert.Equal(t, time.Minute, c.RefreshMargin)
}
