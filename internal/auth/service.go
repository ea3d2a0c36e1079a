package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/metrics"
	"gitea.jw6.us/james/segtrack/internal/store"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

const (
	defaultRefreshMargin = 5 * time.Minute
	refreshTimeout       = 10 * time.Second
)

// AthleteSource looks up the athlete behind an access token.
type AthleteSource interface {
	Athlete(ctx context.Context, token string) (*strava.Athlete, error)
}

// Config describes the Strava OAuth application.
type Config struct {
	ClientID     string
	ClientSecret string
	// OAuthURL is the base of /authorize and /token.
	OAuthURL      string
	RedirectURL   string
	Scope         string
	RefreshMargin time.Duration
	// HTTPClient is used for token endpoint calls. Defaults to a 10s timeout client.
	HTTPClient *http.Client
}

// Service owns the Strava credential lifecycle: connect, refresh, disconnect.
type Service struct {
	oauth    *oauth2.Config
	scope    string
	margin   time.Duration
	client   *http.Client
	creds    store.CredentialRepository
	athletes AthleteSource
	states   *StateStore
	now      func() time.Time
}

func NewService(cfg Config, creds store.CredentialRepository, athletes AthleteSource) *Service {
	base := strings.TrimRight(cfg.OAuthURL, "/")
	if base == "" {
		base = "https://www.strava.com/oauth"
	}
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: refreshTimeout}
	}

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		scope:    cfg.Scope,
		margin:   margin,
		client:   client,
		creds:    creds,
		athletes: athletes,
		states:   NewStateStore(),
		now:      time.Now,
	}
}

// EnsureValidToken returns a usable access token for cred, refreshing it
// through the token endpoint when it expires within the refresh margin.
//
// There is no lock around the refresh. Overlapping requests may both refresh
// and the last Save wins; both tokens are valid, so for a single-user
// deployment the race only costs an extra provider round-trip.
func (s *Service) EnsureValidToken(ctx context.Context, cred *store.Credential) (string, bool) {
	if !cred.Connected() {
		return "", false
	}
	if cred.ExpiresAt == nil || cred.ExpiresAt.After(s.now().Add(s.margin)) {
		return *cred.AccessToken, true
	}

	log := logging.Ctx(ctx)
	if cred.RefreshToken == nil || *cred.RefreshToken == "" {
		metrics.TokenRefresh("no_refresh_token")
		log.Warn().Str("tenant", cred.Tenant).Msg("access token expired and no refresh token stored")
		return "", false
	}

	tok, err := s.refresh(ctx, *cred.RefreshToken)
	if err != nil {
		metrics.TokenRefresh("error")
		ev := log.Warn().Err(err).Str("tenant", cred.Tenant)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			ev = ev.Int("status", re.Response.StatusCode)
		}
		ev.Msg("token refresh failed")
		return "", false
	}
	metrics.TokenRefresh("ok")

	updated := *cred
	updated.AccessToken = &tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = &tok.RefreshToken
	}
	updated.ExpiresAt = expiryOf(tok)

	if err := s.creds.Save(ctx, updated); err != nil {
		log.Error().Err(err).Str("tenant", cred.Tenant).Msg("persist refreshed token")
	}
	*cred = updated
	return tok.AccessToken, true
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	return s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// AccessToken loads the credential of the tenant in ctx and returns a valid token.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	tenant := TenantFromContext(ctx)
	cred, err := s.creds.Get(ctx, tenant)
	if errors.Is(err, store.ErrNotFound) {
		return "", failure.ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if !cred.Connected() {
		return "", failure.ErrNotConnected
	}

	token, ok := s.EnsureValidToken(ctx, cred)
	if !ok {
		return "", failure.ErrAuthExpired
	}
	return token, nil
}

// AuthorizeURL returns the Strava consent URL with a fresh state nonce.
func (s *Service) AuthorizeURL() string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("approval_prompt", "force")}
	if s.scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", s.scope))
	}
	return s.oauth.AuthCodeURL(s.states.Issue(), opts...)
}

// Exchange completes the authorization code flow and stores the credential.
func (s *Service) Exchange(ctx context.Context, code, state string) error {
	if strings.TrimSpace(code) == "" {
		return failure.Validation("missing authorization code", nil)
	}
	if !s.states.Consume(state) {
		return failure.Validation("invalid or expired oauth state", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	tok, err := s.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, s.client), code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return failure.Provider(re.Response.StatusCode, string(re.Body))
		}
		return &failure.Error{Kind: failure.KindProvider, Msg: "token exchange failed", Err: err}
	}

	athleteID, ok := athleteIDOf(tok)
	if !ok {
		return failure.Validation("token response missing athlete id", nil)
	}

	cred := store.Credential{
		Tenant:      TenantFromContext(ctx),
		AthleteID:   &athleteID,
		AccessToken: &tok.AccessToken,
		ExpiresAt:   expiryOf(tok),
	}
	if tok.RefreshToken != "" {
		cred.RefreshToken = &tok.RefreshToken
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	logging.Ctx(ctx).Info().Int64("athlete_id", athleteID).Str("tenant", cred.Tenant).Msg("strava connected")
	return nil
}

// Status is the connection state shown to the user.
type Status struct {
	Connected   bool    `json:"connected"`
	AthleteName *string `json:"athlete_name"`
}

// Status reports whether a valid token is obtainable. The athlete name is best-effort.
func (s *Service) Status(ctx context.Context) (Status, error) {
	token, err := s.AccessToken(ctx)
	if errors.Is(err, failure.ErrNotConnected) || errors.Is(err, failure.ErrAuthExpired) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	st := Status{Connected: true}
	if a, err := s.athletes.Athlete(ctx, token); err == nil {
		if name := a.FullName(); name != "" {
			st.AthleteName = &name
		}
	} else {
		logging.Ctx(ctx).Debug().Err(err).Msg("athlete name lookup failed")
	}
	return st, nil
}

// AthleteInfo describes the connected athlete.
type AthleteInfo struct {
	AthleteID   int64  `json:"athlete_id"`
	AthleteName string `json:"athlete_name"`
	Firstname   string `json:"firstname"`
	Lastname    string `json:"lastname"`
}

func (s *Service) Athlete(ctx context.Context) (*AthleteInfo, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.athletes.Athlete(ctx, token)
	if err != nil {
		return nil, err
	}
	return &AthleteInfo{AthleteID: a.ID, AthleteName: a.FullName(), Firstname: a.Firstname, Lastname: a.Lastname}, nil
}

// Disconnect clears the stored tokens of the tenant in ctx.
func (s *Service) Disconnect(ctx context.Context) error {
	tenant := TenantFromContext(ctx)
	if err := s.creds.Clear(ctx, tenant); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("tenant", tenant).Msg("strava disconnected")
	return nil
}

// expiryOf prefers Strava's absolute expires_at over the computed expiry.
func expiryOf(tok *oauth2.Token) *time.Time {
	if secs, ok := numberOf(tok.Extra("expires_at")); ok && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	if !tok.Expiry.IsZero() {
		t := tok.Expiry.UTC()
		return &t
	}
	return nil
}

func athleteIDOf(tok *oauth2.Token) (int64, bool) {
	athlete, ok := tok.Extra("athlete").(map[string]any)
	if !ok {
		return 0, false
	}
	id, ok := numberOf(athlete["id"])
	return id, ok && id > 0
}

func numberOf(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
