// Package app assembles the services shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"gitea.jw6.us/james/segtrack/internal/auth"
	"gitea.jw6.us/james/segtrack/internal/config"
	"gitea.jw6.us/james/segtrack/internal/segments"
	"gitea.jw6.us/james/segtrack/internal/store"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

type App struct {
	Pool     *pgxpool.Pool
	Store    *store.Store
	Strava   *strava.Client
	Auth     *auth.Service
	Segments *segments.Service
}

// New connects to the database, applies pending migrations, and wires the
// Strava client, credential lifecycle, and segment service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tokens, err := store.NewTokenCipher(cfg.Token.Secret)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}

	pool, err := store.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	st := store.New(pool, tokens)

	client := strava.New(clientConfig(cfg))
	authSvc := auth.NewService(authConfig(cfg), st.Credentials, client)
	fetcher := segments.NewFetcher(client, segments.GAPModel{UphillK: cfg.GAP.UphillK, DownhillK: cfg.GAP.DownhillK})

	return &App{
		Pool:     pool,
		Store:    st,
		Strava:   client,
		Auth:     authSvc,
		Segments: segments.NewService(authSvc, fetcher, st.Segments),
	}, nil
}

func clientConfig(cfg *config.Config) strava.Config {
	return strava.Config{
		BaseURL:       cfg.Strava.APIURL,
		RatePerSecond: cfg.Strava.RatePerSecond,
		Burst:         cfg.Strava.RateBurst,
		Timeout:       cfg.Strava.Timeout,
		ShortTimeout:  cfg.Strava.ShortTimeout,
	}
}

func authConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		ClientID:      cfg.Strava.ClientID,
		ClientSecret:  cfg.Strava.ClientSecret,
		OAuthURL:      cfg.Strava.OAuthURL,
		RedirectURL:   cfg.RedirectURL(),
		Scope:         cfg.Strava.Scope,
		RefreshMargin: cfg.Token.RefreshMargin,
	}
}

func (a *App) Close() {
	a.Pool.Close()
}
