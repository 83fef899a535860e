// Package config holds wallkit's runtime settings. Values come from flags or
// WALLKIT_* environment variables, with .env files loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwtkit "github.com/PaulFidika/wallkit/jwt"
	"github.com/PaulFidika/wallkit/ratelimit"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	PolicyEvents = "events"
	PolicyRedis  = "redis"

	RecorderAsync = "async"
	RecorderQueue = "queue"
)

// Config is embedded into kong commands.
type Config struct {
	Listen      string `help:"HTTP listen address." default:":8080" env:"WALLKIT_LISTEN"`
	Store       string `help:"Backing store (postgres, memory)." enum:"postgres,memory" default:"postgres" env:"WALLKIT_STORE"`
	DatabaseURL string `name:"database-url" help:"Postgres connection string." env:"DATABASE_URL"`
	DBSchema    string `name:"db-schema" help:"Postgres schema holding wallkit tables." default:"public" env:"WALLKIT_DB_SCHEMA"`
	RedisURL    string `name:"redis-url" help:"Redis URL for the limiter and entitlement cache." env:"REDIS_URL"`

	JWTSecret   string   `name:"jwt-secret" help:"Shared secret for HS256 bearer tokens." env:"WALLKIT_JWT_SECRET"`
	JWTAudience string   `name:"jwt-audience" help:"Required aud of HS256 tokens." default:"authenticated" env:"WALLKIT_JWT_AUDIENCE"`
	Issuers     []string `name:"issuer" help:"JWKS issuer as issuer=...,audience=...,jwks=... (repeatable)." sep:";" env:"WALLKIT_ISSUERS"`

	SigningSecret   string        `name:"signing-secret" help:"Secret for download URL signatures." env:"WALLKIT_SIGNING_SECRET"`
	BaseURL         string        `name:"base-url" help:"Public base URL used in signed links." default:"http://localhost:8080" env:"WALLKIT_BASE_URL"`
	GrantTTL        time.Duration `name:"grant-ttl" help:"Lifetime of issued download URLs." default:"10m" env:"WALLKIT_GRANT_TTL"`
	SignatureLength int           `name:"signature-length" help:"Hex characters kept from the signature." default:"32" env:"WALLKIT_SIGNATURE_LENGTH"`

	RateLimit           int           `name:"rate-limit" help:"Free-tier grants per window." default:"10" env:"WALLKIT_RATE_LIMIT"`
	RateLimitWindow     time.Duration `name:"rate-limit-window" help:"Free-tier rate limit window." default:"1h" env:"WALLKIT_RATE_LIMIT_WINDOW"`
	RateLimitPolicy     string        `name:"rate-limit-policy" help:"How grants are counted (events, redis)." enum:"events,redis" default:"events" env:"WALLKIT_RATE_LIMIT_POLICY"`
	RateLimitFailClosed bool          `name:"rate-limit-fail-closed" help:"Deny grants when the limit cannot be checked." env:"WALLKIT_RATE_LIMIT_FAIL_CLOSED"`

	Recorder        string        `help:"Usage recording mode (async, queue)." enum:"async,queue" default:"async" env:"WALLKIT_RECORDER"`
	RecorderTimeout time.Duration `name:"recorder-timeout" help:"Timeout for background usage writes." default:"5s" env:"WALLKIT_RECORDER_TIMEOUT"`

	EntitlementCacheTTL time.Duration `name:"entitlement-cache-ttl" help:"Entitlement cache lifetime, 0 disables." default:"30s" env:"WALLKIT_ENTITLEMENT_CACHE_TTL"`
	ReconcileSchedule   string        `name:"reconcile-schedule" help:"Cron spec for download counter reconciliation, empty disables." default:"@every 15m" env:"WALLKIT_RECONCILE_SCHEDULE"`

	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info" env:"WALLKIT_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (text, json)." enum:"text,json" default:"text" env:"WALLKIT_LOG_FORMAT"`
}

// LoadEnvFiles loads .env.local then .env. Missing files are ignored and
// existing environment variables win.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Validate checks settings that kong cannot express on its own. kong calls
// it after parsing; server.New calls it again for configs built in code.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SigningSecret) == "" {
		errs = append(errs, errors.New("signing secret is required"))
	}
	if c.JWTSecret == "" && len(c.Issuers) == 0 {
		errs = append(errs, errors.New("either a jwt secret or at least one issuer is required"))
	}
	if _, err := c.AcceptIssuers(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.RateLimitPolicy {
	case PolicyEvents:
	case PolicyRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("rate limit policy redis needs a redis url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit policy %q", c.RateLimitPolicy))
	}
	switch c.Recorder {
	case RecorderAsync:
	case RecorderQueue:
		if c.Store != StorePostgres {
			errs = append(errs, errors.New("recorder queue needs the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown recorder %q", c.Recorder))
	}
	if c.Store == StorePostgres && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required for the postgres store"))
	}
	if c.SignatureLength < 16 || c.SignatureLength > 64 {
		errs = append(errs, fmt.Errorf("signature length must be between 16 and 64, got %d", c.SignatureLength))
	}
	if c.GrantTTL <= 0 {
		errs = append(errs, errors.New("grant ttl must be positive"))
	}
	if err := c.RateLimitSettings().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RateLimitSettings returns the configured defaults for the grant limiter.
func (c *Config) RateLimitSettings() ratelimit.Settings {
	return ratelimit.Settings{Limit: c.RateLimit, Window: c.RateLimitWindow, FailClosed: c.RateLimitFailClosed}
}

// AcceptConfig builds the bearer token verifier settings.
func (c *Config) AcceptConfig() (jwtkit.AcceptConfig, error) {
	issuers, err := c.AcceptIssuers()
	if err != nil {
		return jwtkit.AcceptConfig{}, err
	}
	return jwtkit.AcceptConfig{HS256Secret: c.JWTSecret, HS256Audience: c.JWTAudience, Issuers: issuers}, nil
}

// AcceptIssuers parses the --issuer values.
func (c *Config) AcceptIssuers() ([]jwtkit.IssuerAccept, error) {
	out := make([]jwtkit.IssuerAccept, 0, len(c.Issuers))
	for _, raw := range c.Issuers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var ia jwtkit.IssuerAccept
		for _, part := range strings.Split(raw, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				return nil, fmt.Errorf("issuer %q: expected key=value, got %q", raw, part)
			}
			switch strings.TrimSpace(k) {
			case "issuer":
				ia.Issuer = strings.TrimSpace(v)
			case "audience":
				ia.Audience = strings.TrimSpace(v)
			case "jwks":
				ia.JWKSURL = strings.TrimSpace(v)
			default:
				return nil, fmt.Errorf("issuer %q: unknown key %q", raw, k)
			}
		}
		if ia.Issuer == "" || ia.JWKSURL == "" {
			return nil, fmt.Errorf("issuer %q: issuer and jwks are required", raw)
		}
		out = append(out, ia)
	}
	return out, nil
}
