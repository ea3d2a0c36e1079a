package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnvVar points at an optional YAML file loaded between defaults and env.
const ConfigFileEnvVar = "APP_CONFIG_FILE"

type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	BaseURL     string `koanf:"base_url"`
	FrontendURL string `koanf:"frontend_url"`

	DB struct {
		DSN      string `koanf:"dsn"`
		Host     string `koanf:"host"`
		Port     string `koanf:"port"`
		Name     string `koanf:"name"`
		User     string `koanf:"user"`
		Password string `koanf:"password"`
		SSLMode  string `koanf:"sslmode"`
	} `koanf:"db"`

	Strava struct {
		ClientID      string        `koanf:"client_id"`
		ClientSecret  string        `koanf:"client_secret"`
		APIURL        string        `koanf:"api_url"`
		OAuthURL      string        `koanf:"oauth_url"`
		RedirectPath  string        `koanf:"redirect_path"`
		Scope         string        `koanf:"scope"`
		RatePerSecond float64       `koanf:"rate_per_second"`
		RateBurst     int           `koanf:"rate_burst"`
		Timeout       time.Duration `koanf:"timeout"`
		ShortTimeout  time.Duration `koanf:"short_timeout"`
	} `koanf:"strava"`

	GAP struct {
		UphillK   float64 `koanf:"uphill_k"`
		DownhillK float64 `koanf:"downhill_k"`
	} `koanf:"gap"`

	Token struct {
		// Secret enables sealing of stored OAuth tokens when non-empty.
		Secret        string        `koanf:"secret"`
		RefreshMargin time.Duration `koanf:"refresh_margin"`
	} `koanf:"token"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	PrometheusEnabled bool     `koanf:"prometheus_enabled"`
	AllowedOrigins    []string `koanf:"allowed_origins"`
	TrustedProxies    []string `koanf:"trusted_proxies"`
}

func defaults() Config {
	var cfg Config
	cfg.ListenAddr = ":8080"
	cfg.BaseURL = "http://localhost:8080"
	cfg.FrontendURL = "http://localhost:5173"
	cfg.DB.Port = "5432"
	cfg.DB.SSLMode = "disable"
	cfg.Strava.APIURL = "https://www.strava.com/api/v3"
	cfg.Strava.OAuthURL = "https://www.strava.com/oauth"
	cfg.Strava.RedirectPath = "/auth/strava/callback"
	cfg.Strava.Scope = "activity:read_all"
	cfg.Strava.RatePerSecond = 1.5
	cfg.Strava.RateBurst = 5
	cfg.Strava.Timeout = 10 * time.Second
	cfg.Strava.ShortTimeout = 5 * time.Second
	cfg.GAP.UphillK = 0.04
	cfg.GAP.DownhillK = 0.02
	cfg.Token.RefreshMargin = 5 * time.Minute
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"}
	return cfg
}

// envKeys maps APP_* variables onto koanf paths. Unlisted variables are ignored.
var envKeys = map[string]string{
	"APP_LISTEN_ADDR":                 "listen_addr",
	"APP_BASE_URL":                    "base_url",
	"APP_FRONTEND_URL":                "frontend_url",
	"APP_DB_DSN":                      "db.dsn",
	"APP_DB_HOST":                     "db.host",
	"APP_DB_PORT":                     "db.port",
	"APP_DB_NAME":                     "db.name",
	"APP_DB_USER":                     "db.user",
	"APP_DB_PASSWORD":                 "db.password",
	"APP_DB_SSLMODE":                  "db.sslmode",
	"APP_STRAVA_CLIENT_ID":            "strava.client_id",
	"APP_STRAVA_CLIENT_SECRET":        "strava.client_secret",
	"APP_STRAVA_API_URL":              "strava.api_url",
	"APP_STRAVA_OAUTH_URL":            "strava.oauth_url",
	"APP_STRAVA_REDIRECT_PATH":        "strava.redirect_path",
	"APP_STRAVA_SCOPE":                "strava.scope",
	"APP_STRAVA_RATE_PER_SECOND":      "strava.rate_per_second",
	"APP_STRAVA_RATE_BURST":           "strava.rate_burst",
	"APP_STRAVA_TIMEOUT":              "strava.timeout",
	"APP_STRAVA_SHORT_TIMEOUT":        "strava.short_timeout",
	"APP_GAP_UPHILL_K":                "gap.uphill_k",
	"APP_GAP_DOWNHILL_K":              "gap.downhill_k",
	"APP_TOKEN_SECRET":                "token.secret",
	"APP_TOKEN_REFRESH_MARGIN":        "token.refresh_margin",
	"APP_LOG_LEVEL":                   "log.level",
	"APP_LOG_FORMAT":                  "log.format",
	"APP_PROMETHEUS_ENDPOINT_ENABLED": "prometheus_enabled",
	"APP_ALLOWED_ORIGINS":             "allowed_origins",
	"APP_TRUSTED_PROXIES":             "trusted_proxies",
}

var listKeys = []string{"allowed_origins", "trusted_proxies"}

// Load reads defaults, then the optional YAML file, then APP_* env vars.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("APP_", ".", func(key string) string {
		return envKeys[key]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for _, key := range listKeys {
		if raw, ok := k.Get(key).(string); ok {
			if err := k.Set(key, splitList(raw)); err != nil {
				return nil, fmt.Errorf("set %s: %w", key, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DB.DSN == "" {
		cfg.DB.DSN = cfg.assembleDSN()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) assembleDSN() string {
	if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" || c.DB.Password == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if c.Strava.ClientID == "" || c.Strava.ClientSecret == "" {
		return errors.New("strava oauth configuration is required: APP_STRAVA_CLIENT_ID and APP_STRAVA_CLIENT_SECRET")
	}
	if c.Strava.RatePerSecond <= 0 || c.Strava.RateBurst <= 0 {
		return fmt.Errorf("strava rate budget must be positive (got %v/s burst %d)", c.Strava.RatePerSecond, c.Strava.RateBurst)
	}
	if c.Token.Secret != "" && len(c.Token.Secret) < 32 {
		return fmt.Errorf("APP_TOKEN_SECRET must be at least 32 characters long (got %d)", len(c.Token.Secret))
	}
	if c.GAP.UphillK < 0 || c.GAP.DownhillK < 0 {
		return errors.New("gap coefficients must not be negative")
	}
	return nil
}

// RedirectURL is the absolute OAuth callback registered with Strava.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.Strava.RedirectPath
}

func splitList(v string) []string {
	var result []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
