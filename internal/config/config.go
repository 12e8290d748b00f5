// Package config loads bantayd settings: defaults first, then a .env file,
// then BANTAY_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lborres/bantay/core"
)

type Config struct {
	Addr     string
	BasePath string

	DatabaseURL string
	RedisURL    string

	Secret         string
	TrustedOrigins []string
	PublicURL      string

	SessionIdle         time.Duration
	SessionMax          time.Duration
	TokenTTL            time.Duration
	ResetTTL            time.Duration
	RequireVerification bool
	Abilities           []string

	CookieName   string
	CookieDomain string
	CookieSecure bool

	SweepInterval time.Duration

	LogLevel string
	LogDev   bool

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SMTPEncryption string
	MailShowLinks  bool

	AdminEmail    string
	AdminPassword string
}

// LoadDefaults populates Config with development defaults. The secret is
// left empty on purpose so a deployment cannot start without one.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.BasePath = "/api/auth"
	c.SessionIdle = 2 * time.Hour
	c.SessionMax = 24 * time.Hour
	c.ResetTTL = time.Hour
	c.CookieName = "bantay_session"
	c.CookieSecure = true
	c.SweepInterval = 5 * time.Minute
	c.LogLevel = "info"
	c.SMTPPort = 587
	c.SMTPEncryption = "starttls"
}

// Load builds a Config from every source in order. args excludes the
// program name.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	// a missing .env is fine
	_ = godotenv.Load()

	if err := applyEnv(cfg, envLookup); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Secret == "" {
		errs = append(errs, fmt.Errorf("BANTAY_SECRET: %w", core.ErrSecretRequired))
	} else if len(c.Secret) < 32 {
		errs = append(errs, fmt.Errorf("BANTAY_SECRET: %w - minimum of 32 characters", core.ErrSecretTooShort))
	}
	if c.SessionMax < c.SessionIdle {
		errs = append(errs, errors.New("session max lifetime is shorter than the idle timeout"))
	}
	for _, o := range c.TrustedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("trusted origin %q needs an http(s) scheme", o))
		}
	}
	return errors.Join(errs...)
}

// Policy translates the settings into the gateway policy.
func (c *Config) Policy() core.Policy {
	p := core.DefaultPolicy()
	p.TrustedOrigins = c.TrustedOrigins
	p.PublicURL = c.PublicURL
	p.Session.IdleTimeout = c.SessionIdle
	p.Session.MaxLifetime = c.SessionMax
	p.Token.TTL = c.TokenTTL
	p.ResetArtifactTTL = c.ResetTTL
	p.RequireEmailVerification = c.RequireVerification
	p.Abilities = c.Abilities
	return p.WithDefaults()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
