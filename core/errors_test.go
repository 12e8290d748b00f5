package core

import (
	"fmt"
	"testing"
	"time"
)

func TestTooManyAttemptsError_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		retry time.Duration
		want  int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{59 * time.Second, 59},
		{time.Minute, 60},
	}

	for _, test := range tests {
		t.Run(test.retry.String(), func(t *testing.T) {
			err := &TooManyAttemptsError{RetryAfter: test.retry}
			if got := err.RetryAfterSeconds(); got != test.want {
				t.Errorf("RetryAfterSeconds() = %d, want %d", got, test.want)
			}
		})
	}
}

func TestIsTooManyAttempts(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", &TooManyAttemptsError{RetryAfter: 30 * time.Second})

	got, ok := IsTooManyAttempts(wrapped)
	if !ok || got.RetryAfter != 30*time.Second {
		t.Errorf("IsTooManyAttempts() = %v, %v", got, ok)
	}
	if _, ok := IsTooManyAttempts(ErrInvalidCredentials); ok {
		t.Error("plain error should not match")
	}
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{Session: SessionConfig{IdleTimeout: 3 * time.Hour, MaxLifetime: time.Hour}}.WithDefaults()

	if p.Session.MaxLifetime != 3*time.Hour {
		t.Errorf("MaxLifetime = %v, should be raised to the idle timeout", p.Session.MaxLifetime)
	}
	if p.PasswordMinLength != 8 || p.ResetArtifactTTL != time.Hour {
		t.Errorf("defaults not applied: %+v", p)
	}
	if got := p.Limit(ActionLogin); got.MaxAttempts != 5 || got.Window != time.Minute {
		t.Errorf("Limit(login) = %+v", got)
	}
	if got := p.Limit(Action("unknown")); got != DefaultRateLimits()[ActionLogin] {
		t.Errorf("Limit(unknown) = %+v, want login fallback", got)
	}
}

func TestToken_CanAndExpired(t *testing.T) {
	now := time.Now()
	exp := now.Add(time.Minute)
	tok := &Token{Abilities: []string{"profile:read"}, ExpiresAt: &exp}

	if !tok.Can("profile:read") || tok.Can("profile:write") {
		t.Error("scoped Can mismatch")
	}
	if tok.Expired(now) || !tok.Expired(exp) {
		t.Error("Expired boundary mismatch")
	}
	if !(&Token{Abilities: []string{"*"}}).Can("anything") {
		t.Error("wildcard should grant everything")
	}
	if !(&Principal{}).Can("admin") {
		t.Error("session principal carries full access")
	}
}
