package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type lookupFunc func(key string) (string, bool)

var envLookup lookupFunc = os.LookupEnv

// applyEnv overlays BANTAY_* variables. Unset variables keep the current
// value; malformed ones are an error.
func applyEnv(c *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("BANTAY_ADDR", &c.Addr)
	e.str("BANTAY_BASE_PATH", &c.BasePath)
	e.str("BANTAY_DATABASE_URL", &c.DatabaseURL)
	e.str("BANTAY_REDIS_URL", &c.RedisURL)
	e.str("BANTAY_SECRET", &c.Secret)
	e.list("BANTAY_TRUSTED_ORIGINS", &c.TrustedOrigins)
	e.str("BANTAY_PUBLIC_URL", &c.PublicURL)
	e.duration("BANTAY_SESSION_IDLE", &c.SessionIdle)
	e.duration("BANTAY_SESSION_MAX", &c.SessionMax)
	e.duration("BANTAY_TOKEN_TTL", &c.TokenTTL)
	e.duration("BANTAY_RESET_TTL", &c.ResetTTL)
	e.boolean("BANTAY_REQUIRE_VERIFICATION", &c.RequireVerification)
	e.list("BANTAY_ABILITIES", &c.Abilities)
	e.str("BANTAY_COOKIE_NAME", &c.CookieName)
	e.str("BANTAY_COOKIE_DOMAIN", &c.CookieDomain)
	e.boolean("BANTAY_COOKIE_SECURE", &c.CookieSecure)
	e.duration("BANTAY_SWEEP_INTERVAL", &c.SweepInterval)
	e.str("BANTAY_LOG_LEVEL", &c.LogLevel)
	e.boolean("BANTAY_LOG_DEV", &c.LogDev)
	e.str("BANTAY_SMTP_HOST", &c.SMTPHost)
	e.integer("BANTAY_SMTP_PORT", &c.SMTPPort)
	e.str("BANTAY_SMTP_USERNAME", &c.SMTPUsername)
	e.str("BANTAY_SMTP_PASSWORD", &c.SMTPPassword)
	e.str("BANTAY_SMTP_FROM", &c.SMTPFrom)
	e.str("BANTAY_SMTP_FROM_NAME", &c.SMTPFromName)
	e.str("BANTAY_SMTP_ENCRYPTION", &c.SMTPEncryption)
	e.boolean("BANTAY_MAIL_SHOW_LINKS", &c.MailShowLinks)
	e.str("BANTAY_ADMIN_EMAIL", &c.AdminEmail)
	e.str("BANTAY_ADMIN_PASSWORD", &c.AdminPassword)

	return e.err
}

// envReader keeps the first parse error so callers check once.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	return e.lookup(key)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = splitList(v)
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = d
	}
}
