// Package strava is a small bearer-token client for the Strava v3 API.
//
// Every call waits on a shared outbound rate budget, runs behind a circuit
// breaker, and maps provider statuses onto failure kinds:
//
//	404 -> failure.KindNotFound
//	401 -> failure.KindAuthExpired
//	429 -> failure.KindRateLimited
//	other non-2xx -> failure.KindProvider with a body excerpt
package strava

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/metrics"
)

const (
	bodyExcerptLen = 200
	maxBodyBytes   = 4 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	RatePerSecond float64
	Burst         int
	// Timeout bounds required calls, ShortTimeout best-effort ones.
	Timeout      time.Duration
	ShortTimeout time.Duration
	HTTPClient   *http.Client
}

// Client calls the Strava API.
type Client struct {
	baseURL      string
	http         *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	timeout      time.Duration
	shortTimeout time.Duration
}

// New builds a client. Zero values fall back to Strava's production URL and
// 10s/5s timeouts.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.strava.com/api/v3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         cfg.HTTPClient,
		limiter:      rate.NewLimiter(limit, cfg.Burst),
		breaker:      gobreaker.NewCircuitBreaker[[]byte](breakerSettings("strava")),
		timeout:      cfg.Timeout,
		shortTimeout: cfg.ShortTimeout,
	}
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A missing segment, a stale token, or a spent quota says nothing
		// about provider health. 429s must stay RateLimited so the stored
		// row can be served; the outbound limiter owns the budget.
		IsSuccessful: func(err error) bool {
			switch failure.KindOf(err) {
			case failure.KindUnknown:
				return err == nil
			case failure.KindNotFound, failure.KindAuthExpired, failure.KindRateLimited:
				return true
			default:
				return false
			}
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, float64(to))
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
}

// Segment fetches segment detail.
func (c *Client) Segment(ctx context.Context, token string, id int64) (*SegmentDetail, error) {
	body, err := c.get(ctx, "segment", required, token, fmt.Sprintf("/segments/%d", id), nil)
	if err != nil {
		return nil, err
	}
	var detail SegmentDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, decodeError(err)
	}
	if err := json.Unmarshal(body, &detail.Raw); err != nil {
		return nil, decodeError(err)
	}
	return &detail, nil
}

// Leaderboard fetches the top leaderboard entry. Strava deprecated this
// endpoint, so callers treat every failure as "no crown data".
func (c *Client) Leaderboard(ctx context.Context, token string, id int64) ([]LeaderboardEntry, error) {
	body, err := c.get(ctx, "leaderboard", bestEffort, token, fmt.Sprintf("/segments/%d/leaderboard", id), url.Values{"per_page": {"1"}})
	if err != nil {
		return nil, err
	}
	var lb leaderboard
	if err := json.Unmarshal(body, &lb); err != nil {
		return nil, decodeError(err)
	}
	return lb.Entries, nil
}

// Efforts fetches up to 200 of the athlete's efforts on the segment.
func (c *Client) Efforts(ctx context.Context, token string, id int64) ([]Effort, error) {
	body, err := c.get(ctx, "efforts", required, token, fmt.Sprintf("/segments/%d/all_efforts", id), url.Values{"per_page": {"200"}})
	if err != nil {
		return nil, err
	}
	var efforts []Effort
	if err := json.Unmarshal(body, &efforts); err != nil {
		return nil, decodeError(err)
	}
	return efforts, nil
}

// Athlete fetches the authenticated athlete.
func (c *Client) Athlete(ctx context.Context, token string) (*Athlete, error) {
	body, err := c.get(ctx, "athlete", bestEffort, token, "/athlete", nil)
	if err != nil {
		return nil, err
	}
	var a Athlete
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, decodeError(err)
	}
	return &a, nil
}

// callClass separates calls a fetch depends on from lookups whose failure
// only blanks optional fields.
type callClass int

const (
	required callClass = iota
	// bestEffort calls use the short timeout and bypass the breaker, so a
	// deprecated endpoint answering 410 forever cannot open it.
	bestEffort
)

func (c *Client) get(ctx context.Context, endpoint string, class callClass, token, path string, query url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.call(ctx, class, token, path, query)
	outcome := "ok"
	if err != nil {
		outcome = failure.KindOf(err).String()
	}
	metrics.ObserveProvider(endpoint, outcome, start)
	logging.Ctx(ctx).Debug().Str("endpoint", endpoint).Str("path", path).Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("strava call")
	return body, err
}

func (c *Client) call(ctx context.Context, class callClass, token, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &failure.Error{Kind: failure.KindTimeout, Msg: "waiting for strava rate budget", Err: err}
	}

	if class == bestEffort {
		callCtx, cancel := context.WithTimeout(ctx, c.shortTimeout)
		defer cancel()
		return c.do(callCtx, token, path, query)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.do(callCtx, token, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &failure.Error{Kind: failure.KindProvider, Status: http.StatusServiceUnavailable, Msg: "strava temporarily unavailable", Err: err}
	}
	return body, err
}

func (c *Client) do(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build strava request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func statusError(status int, body []byte) error {
	switch status {
	case http.StatusNotFound:
		return failure.ErrNotFound
	case http.StatusUnauthorized:
		return failure.ErrAuthExpired
	case http.StatusTooManyRequests:
		return failure.ErrRateLimited
	default:
		return failure.Provider(status, excerpt(body))
	}
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &failure.Error{Kind: failure.KindTimeout, Msg: failure.ErrTimeout.Msg, Err: err}
	}
	return &failure.Error{Kind: failure.KindProvider, Msg: "strava request failed", Err: err}
}

func decodeError(err error) error {
	return &failure.Error{Kind: failure.KindProvider, Status: http.StatusOK, Msg: "decode strava response", Err: err}
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "Unknown error"
	}
	runes := []rune(text)
	if len(runes) > bodyExcerptLen {
		return string(runes[:bodyExcerptLen])
	}
	return text
}

// ParseID parses a positive segment id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, failure.Validation(fmt.Sprintf("invalid segment id %q", raw), err)
	}
	return id, nil
}
