package config

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	var cfg Config
	p, err := kong.New(&cfg, kong.Name("wallkit"))
	require.NoError(t, err)
	_, err = p.Parse(args)
	require.NoError(t, err)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t, "--signing-secret=s", "--jwt-secret=j", "--database-url=postgres://localhost/db")
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 10*time.Minute, cfg.GrantTTL)
	assert.Equal(t, 32, cfg.SignatureLength)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, PolicyEvents, cfg.RateLimitPolicy)
	assert.Equal(t, RecorderAsync, cfg.Recorder)
	assert.False(t, cfg.RateLimitFailClosed)
	assert.NoError(t, cfg.Validate())
}

func TestEnv(t *testing.T) {
	t.Setenv("WALLKIT_SIGNING_SECRET", "s")
	t.Setenv("WALLKIT_JWT_SECRET", "j")
	t.Setenv("WALLKIT_STORE", "memory")
	t.Setenv("WALLKIT_RATE_LIMIT", "25")
	cfg := parse(t)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 25, cfg.RateLimit)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string][]string{
		"no signing secret": {"--jwt-secret=j", "--store=memory"},
		"no verifier":       {"--signing-secret=s", "--store=memory"},
		"postgres no url":   {"--signing-secret=s", "--jwt-secret=j"},
		"redis policy":      {"--signing-secret=s", "--jwt-secret=j", "--store=memory", "--rate-limit-policy=redis"},
		"queue on memory":   {"--signing-secret=s", "--jwt-secret=j", "--store=memory", "--recorder=queue"},
		"short signature":   {"--signing-secret=s", "--jwt-secret=j", "--store=memory", "--signature-length=8"},
		"zero limit":        {"--signing-secret=s", "--jwt-secret=j", "--store=memory", "--rate-limit=0"},
		"bad issuer":        {"--signing-secret=s", "--store=memory", "--issuer=issuer=https://a"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			// kong runs Validate during Parse, so either step may report it.
			var cfg Config
			p, err := kong.New(&cfg, kong.Name("wallkit"))
			require.NoError(t, err)
			if _, err = p.Parse(args); err == nil {
				err = cfg.Validate()
			}
			assert.Error(t, err)
		})
	}
}

func TestAcceptIssuers(t *testing.T) {
	cfg := parse(t,
		"--signing-secret=s", "--store=memory",
		"--issuer=issuer=https://a.example.com,audience=wallkit,jwks=https://a.example.com/jwks.json;issuer=https://b.example.com,jwks=https://b.example.com/jwks.json",
	)
	require.NoError(t, cfg.Validate())
	ac, err := cfg.AcceptConfig()
	require.NoError(t, err)
	require.Len(t, ac.Issuers, 2)
	assert.Equal(t, "https://a.example.com", ac.Issuers[0].Issuer)
	assert.Equal(t, "wallkit", ac.Issuers[0].Audience)
	assert.Equal(t, "https://b.example.com/jwks.json", ac.Issuers[1].JWKSURL)
}
