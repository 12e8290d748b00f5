package core

import "time"

// Action names a rate-limited operation.
type Action string

const (
	ActionLogin          Action = "login"
	ActionTwoFactor      Action = "two-factor"
	ActionPasswordReset  Action = "password-reset"
	ActionResetRedeem    Action = "password-reset-redeem"
	ActionPasswordChange Action = "password-change"
	ActionAuthenticate   Action = "authenticate"
	ActionVerifyResend   Action = "verification-resend"
)

type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// SessionConfig bounds cookie sessions. IdleTimeout slides on every resolve;
// MaxLifetime caps it from creation.
type SessionConfig struct {
	IdleTimeout time.Duration
	MaxLifetime time.Duration

	// TouchInterval is the minimum expiry extension worth a storage write.
	TouchInterval time.Duration
}

type TokenConfig struct {
	// TTL of zero issues tokens that never expire.
	TTL         time.Duration
	DefaultName string
}

// Policy is the explicit configuration a Gateway is built with. Nothing in
// the gateway reads process-wide state.
type Policy struct {
	TrustedOrigins []string
	Session        SessionConfig
	Token          TokenConfig
	RateLimits     map[Action]RateLimitPolicy

	ResetArtifactTTL time.Duration

	RequireEmailVerification bool
	VerificationTTL          time.Duration

	PasswordMinLength int
	PasswordMaxLength int

	// Abilities lists the token abilities clients may request. Empty accepts any.
	Abilities []string

	// PublicURL is the frontend base used to compose links in notifications.
	PublicURL string
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		IdleTimeout:   2 * time.Hour,
		MaxLifetime:   24 * time.Hour,
		TouchInterval: time.Minute,
	}
}

func DefaultRateLimits() map[Action]RateLimitPolicy {
	perMinute := RateLimitPolicy{MaxAttempts: 5, Window: time.Minute}
	return map[Action]RateLimitPolicy{
		ActionLogin:          perMinute,
		ActionTwoFactor:      perMinute,
		ActionPasswordReset:  perMinute,
		ActionResetRedeem:    perMinute,
		ActionPasswordChange: perMinute,
		ActionVerifyResend:   {MaxAttempts: 3, Window: 10 * time.Minute},
		ActionAuthenticate:   {MaxAttempts: 60, Window: time.Minute},
	}
}

func DefaultPolicy() Policy {
	return Policy{
		Session:           DefaultSessionConfig(),
		Token:             TokenConfig{DefaultName: "api"},
		RateLimits:        DefaultRateLimits(),
		ResetArtifactTTL:  time.Hour,
		VerificationTTL:   time.Hour,
		PasswordMinLength: 8,
		PasswordMaxLength: 128,
	}
}

// Limit returns the policy for action, falling back to the login policy.
func (p Policy) Limit(action Action) RateLimitPolicy {
	if l, ok := p.RateLimits[action]; ok && l.MaxAttempts > 0 && l.Window > 0 {
		return l
	}
	if l, ok := DefaultRateLimits()[action]; ok {
		return l
	}
	return DefaultRateLimits()[ActionLogin]
}

// WithDefaults fills every zero field from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.Session.IdleTimeout <= 0 {
		p.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if p.Session.MaxLifetime <= 0 {
		p.Session.MaxLifetime = d.Session.MaxLifetime
	}
	if p.Session.MaxLifetime < p.Session.IdleTimeout {
		p.Session.MaxLifetime = p.Session.IdleTimeout
	}
	if p.Session.TouchInterval <= 0 {
		p.Session.TouchInterval = d.Session.TouchInterval
	}
	if p.Token.DefaultName == "" {
		p.Token.DefaultName = d.Token.DefaultName
	}
	if p.RateLimits == nil {
		p.RateLimits = d.RateLimits
	}
	if p.ResetArtifactTTL <= 0 {
		p.ResetArtifactTTL = d.ResetArtifactTTL
	}
	if p.VerificationTTL <= 0 {
		p.VerificationTTL = d.VerificationTTL
	}
	if p.PasswordMinLength <= 0 {
		p.PasswordMinLength = d.PasswordMinLength
	}
	if p.PasswordMaxLength <= 0 {
		p.PasswordMaxLength = d.PasswordMaxLength
	}
	return p
}
