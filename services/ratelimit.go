package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lborres/bantay/core"
)

// RateLimiter counts attempts per action and key against the policy limits.
type RateLimiter struct {
	store  core.RateLimitStore
	policy core.Policy
	now    func() time.Time
}

func NewRateLimiter(store core.RateLimitStore, policy core.Policy) *RateLimiter {
	return &RateLimiter{store: store, policy: policy, now: time.Now}
}

// LimitKey combines the subject (usually an email) with the client address.
// Either part may be empty.
func LimitKey(subject, address string) string {
	return strings.ToLower(strings.TrimSpace(subject)) + "|" + strings.TrimSpace(address)
}

func bucketKey(action core.Action, key string) string {
	return string(action) + ":" + key
}

// Check counts one attempt and fails with *core.TooManyAttemptsError when the
// bucket was already full. The check and the increment are one atomic step.
func (l *RateLimiter) Check(ctx context.Context, action core.Action, key string) error {
	limit := l.policy.Limit(action)

	bucket, allowed, err := l.store.Hit(ctx, bucketKey(action, key), limit.MaxAttempts, limit.Window)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !allowed {
		return l.tooMany(bucket)
	}
	return nil
}

// RecordFailure counts an attempt without gating on it.
func (l *RateLimiter) RecordFailure(ctx context.Context, action core.Action, key string) error {
	limit := l.policy.Limit(action)

	if _, err := l.store.Increment(ctx, bucketKey(action, key), limit.Window); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Blocked reports whether the bucket is full without counting anything.
func (l *RateLimiter) Blocked(ctx context.Context, action core.Action, key string) error {
	limit := l.policy.Limit(action)

	bucket, ok, err := l.store.Peek(ctx, bucketKey(action, key))
	if err != nil {
		return fmt.Errorf("failed to read rate limit: %w", err)
	}
	if ok && bucket.Attempts >= limit.MaxAttempts {
		return l.tooMany(bucket)
	}
	return nil
}

func (l *RateLimiter) Reset(ctx context.Context, action core.Action, key string) error {
	if err := l.store.Clear(ctx, bucketKey(action, key)); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

func (l *RateLimiter) tooMany(bucket core.RateLimitBucket) error {
	retry := bucket.ResetsAt().Sub(l.now())
	if retry < time.Second {
		retry = time.Second
	}
	return &core.TooManyAttemptsError{RetryAfter: retry}
}
