package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/logging"
)

// GatewayDeps are the collaborators a Gateway is built from.
type GatewayDeps struct {
	Storage        core.StorageAdapter
	RateLimitStore core.RateLimitStore
	Cache          core.Cache // optional
	Notifier       core.Notifier
	PasswordHasher crypto.PasswordHandler
	Signer         *crypto.LinkSigner
	Logger         logging.Logger
}

// Gateway is the single entry point for every authentication operation.
type Gateway struct {
	policy      core.Policy
	origins     core.OriginPolicy
	storage     core.StorageAdapter
	credentials *CredentialStore
	limiter     *RateLimiter
	sessions    *SessionIssuer
	tokens      *TokenIssuer
	notifier    core.Notifier
	signer      *crypto.LinkSigner
	locks       *IdentityLocker
	logger      logging.Logger
	now         func() time.Time
}

// Ensure Gateway implements AuthHandler
var _ core.AuthHandler = (*Gateway)(nil)

func NewGateway(policy core.Policy, deps GatewayDeps) (*Gateway, error) {
	if deps.Storage == nil {
		return nil, core.ErrStorageRequired
	}
	if deps.RateLimitStore == nil || deps.PasswordHasher == nil || deps.Signer == nil {
		return nil, errors.New("gateway requires a rate limit store, a password hasher and a link signer")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{logger: deps.Logger}
	}

	policy = policy.WithDefaults()
	origins := core.NewOriginPolicy(policy.TrustedOrigins)
	logger := deps.Logger.With("component", "gateway")

	return &Gateway{
		policy:      policy,
		origins:     origins,
		storage:     deps.Storage,
		credentials: NewCredentialStore(deps.Storage, deps.PasswordHasher, policy, logger),
		limiter:     NewRateLimiter(deps.RateLimitStore, policy),
		sessions:    NewSessionIssuer(policy.Session, origins, deps.Storage, deps.Cache, logger),
		tokens:      NewTokenIssuer(policy.Token, deps.Storage, logger),
		notifier:    deps.Notifier,
		signer:      deps.Signer,
		locks:       NewIdentityLocker(),
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (g *Gateway) Policy() core.Policy {
	return g.policy
}

func (g *Gateway) Origins() core.OriginPolicy {
	return g.origins
}

// Register creates an identity. It never signs the caller in.
func (g *Gateway) Register(ctx context.Context, input core.RegisterInput) (*core.RegisterResult, error) {
	identity, err := g.credentials.CreateIdentity(ctx, input)
	if err != nil {
		return nil, err
	}

	g.logger.Info(ctx, "identity registered", "identity_id", identity.ID, "provenance", identity.Provenance)

	pending := g.policy.RequireEmailVerification && !identity.Verified()
	if pending {
		g.sendVerification(ctx, identity)
	}

	return &core.RegisterResult{Identity: identity, Pending: pending}, nil
}

// Login runs the credential check behind the rate limiter and issues a
// session for trusted origins or a bearer token for everything else.
func (g *Gateway) Login(ctx context.Context, input core.LoginInput) (*core.LoginResult, error) {
	email := NormalizeEmail(input.Email)
	limitKey := LimitKey(email, input.IPAddress)

	if err := g.limiter.Check(ctx, core.ActionLogin, limitKey); err != nil {
		if _, ok := core.IsTooManyAttempts(err); ok {
			g.logger.Warn(ctx, "login throttled", "ip", input.IPAddress)
		}
		return nil, err
	}

	flow := g.origins.Classify(input.Origin)

	unlock := g.lockByEmail(ctx, email)
	defer unlock()

	identity, err := g.credentials.VerifyPassword(ctx, email, input.Password)
	if err != nil {
		return nil, err
	}

	if g.policy.RequireEmailVerification && !identity.Verified() {
		return nil, core.ErrUnverified
	}

	result := &core.LoginResult{Identity: identity, Flow: flow}
	switch flow {
	case core.FlowSession:
		issued, err := g.sessions.Issue(ctx, identity, input.Origin, SessionMeta{IPAddress: input.IPAddress, UserAgent: input.UserAgent})
		if err != nil {
			return nil, err
		}
		result.Session = issued
	default:
		issued, err := g.tokens.Issue(ctx, identity, input.TokenName, nil)
		if err != nil {
			return nil, err
		}
		result.Token = issued
	}

	if err := g.limiter.Reset(ctx, core.ActionLogin, limitKey); err != nil {
		g.logger.Warn(ctx, "failed to reset login limiter", "error", err)
	}

	g.logger.Info(ctx, "login succeeded", "identity_id", identity.ID, "flow", flow)
	return result, nil
}

// lockByEmail takes the shared identity lock for the account behind email,
// if there is one. The returned func is always safe to call.
func (g *Gateway) lockByEmail(ctx context.Context, email string) func() {
	identity, err := g.storage.GetIdentityByEmail(ctx, email)
	if err != nil {
		return func() {}
	}
	return g.locks.RLock(identity.ID)
}

// Logout revokes whatever artifact the credential carries. Unknown or
// already revoked artifacts are not an error.
func (g *Gateway) Logout(ctx context.Context, credential core.Credential) error {
	var errs []error
	if credential.Bearer != "" {
		errs = append(errs, g.tokens.Revoke(ctx, credential.Bearer))
	}
	if credential.Session != "" {
		errs = append(errs, g.sessions.Revoke(ctx, credential.Session))
	}
	return errors.Join(errs...)
}

// LogoutAll revokes every session and token of the principal's identity.
func (g *Gateway) LogoutAll(ctx context.Context, principal *core.Principal) error {
	id := principal.Identity.ID
	sessions, err := g.sessions.RevokeAll(ctx, id)
	if err != nil {
		return err
	}
	tokens, err := g.tokens.RevokeAll(ctx, id)
	if err != nil {
		return err
	}
	g.logger.Info(ctx, "identity logged out everywhere", "identity_id", id, "sessions", sessions, "tokens", tokens)
	return nil
}

// Authenticate resolves an inbound credential into a principal. A bearer
// token wins over a session cookie. Session cookies only count when the
// request comes from a trusted origin.
func (g *Gateway) Authenticate(ctx context.Context, credential core.Credential) (*core.Principal, error) {
	if credential.Empty() {
		g.logger.Debug(ctx, "credential rejected", "reason", core.ErrMissingCredential.Error())
		return nil, core.ErrUnauthorized
	}

	limitKey := LimitKey("", credential.IPAddress)
	if err := g.limiter.Blocked(ctx, core.ActionAuthenticate, limitKey); err != nil {
		return nil, err
	}

	principal, err := g.resolve(ctx, credential)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			if rerr := g.limiter.RecordFailure(ctx, core.ActionAuthenticate, limitKey); rerr != nil {
				g.logger.Warn(ctx, "failed to record authentication failure", "error", rerr)
			}
		}
		return nil, err
	}
	return principal, nil
}

func (g *Gateway) resolve(ctx context.Context, credential core.Credential) (*core.Principal, error) {
	principal := &core.Principal{}
	var identityID string

	if credential.Bearer != "" {
		token, err := g.tokens.Resolve(ctx, credential.Bearer)
		if err != nil {
			return nil, err
		}
		principal.Token = token
		identityID = token.IdentityID
	} else {
		if !g.origins.Trusted(credential.Origin) {
			g.logger.Warn(ctx, "session cookie from untrusted origin", "origin", credential.Origin)
			return nil, core.ErrUnauthorized
		}
		session, err := g.sessions.Resolve(ctx, credential.Session)
		if err != nil {
			if errors.Is(err, core.ErrSessionInvalid) || errors.Is(err, core.ErrSessionExpired) {
				g.logger.Warn(ctx, "session rejected", "reason", err.Error())
				return nil, core.ErrUnauthorized
			}
			return nil, err
		}
		principal.Session = session
		identityID = session.IdentityID
	}

	identity, err := g.storage.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			g.logger.Warn(ctx, "credential of missing identity", "identity_id", identityID)
			return nil, core.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if identity.Disabled() {
		g.logger.Warn(ctx, "credential of disabled identity", "identity_id", identity.ID)
		return nil, core.ErrUnauthorized
	}

	principal.Identity = identity
	return principal, nil
}

// RequestPasswordReset issues a reset artifact when email belongs to an
// active identity. The outcome is never revealed to the caller.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email, ipAddress string) error {
	email = NormalizeEmail(email)
	if err := g.limiter.Check(ctx, core.ActionPasswordReset, LimitKey(email, ipAddress)); err != nil {
		return err
	}

	identity, err := g.storage.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			g.logger.Info(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity.Disabled() {
		g.logger.Info(ctx, "password reset requested for disabled identity", "identity_id", identity.ID)
		return nil
	}

	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	artifactID, err := crypto.NewID()
	if err != nil {
		return fmt.Errorf("failed to generate reset id: %w", err)
	}

	now := g.now()
	artifact := &core.ResetArtifact{
		ID:         artifactID,
		IdentityID: identity.ID,
		TokenHash:  pair.Hash,
		ExpiresAt:  now.Add(g.policy.ResetArtifactTTL),
		CreatedAt:  now,
	}
	if err := g.storage.ReplaceResetArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to store reset artifact: %w", err)
	}

	g.notify(ctx, core.Notification{
		Kind: core.NotifyPasswordReset,
		To:   identity.Email,
		Name: identity.Name,
		Payload: map[string]string{
			"token":   pair.Token,
			"link":    g.link("/reset-password", pair.Token),
			"minutes": strconv.Itoa(int(g.policy.ResetArtifactTTL / time.Minute)),
		},
	})
	g.logger.Info(ctx, "password reset artifact issued", "identity_id", identity.ID)
	return nil
}

// ResetPassword redeems a reset artifact. The artifact is consumed before the
// password changes, and the change ends every session and token.
func (g *Gateway) ResetPassword(ctx context.Context, input core.ResetPasswordInput) error {
	if err := g.limiter.Check(ctx, core.ActionResetRedeem, LimitKey("", input.IPAddress)); err != nil {
		return err
	}
	if input.Token == "" {
		return core.ErrExpiredOrUsedArtifact
	}
	if err := g.credentials.ValidatePassword(input.Password); err != nil {
		return err
	}

	artifact, err := g.storage.ConsumeResetArtifact(ctx, crypto.HashToken(input.Token), g.now())
	if err != nil {
		if errors.Is(err, core.ErrExpiredOrUsedArtifact) {
			g.logger.Warn(ctx, "reset artifact rejected", "reason", "expired, used or unknown")
			return core.ErrExpiredOrUsedArtifact
		}
		return fmt.Errorf("failed to consume reset artifact: %w", err)
	}

	unlock := g.locks.Lock(artifact.IdentityID)
	defer unlock()

	identity, err := g.storage.GetIdentityByID(ctx, artifact.IdentityID)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			return core.ErrExpiredOrUsedArtifact
		}
		return fmt.Errorf("failed to get identity: %w", err)
	}
	if identity.Disabled() {
		return core.ErrExpiredOrUsedArtifact
	}

	if err := g.credentials.UpdatePassword(ctx, identity, input.Password); err != nil {
		return err
	}
	g.sessions.Forget(identity.ID)

	g.passwordChanged(ctx, identity)
	g.logger.Info(ctx, "password reset", "identity_id", identity.ID)
	return nil
}

// ChangePassword replaces the password of a signed-in identity. Every session
// and token, including the one used for this call, is revoked.
func (g *Gateway) ChangePassword(ctx context.Context, principal *core.Principal, input core.ChangePasswordInput) error {
	id := principal.Identity.ID
	limitKey := LimitKey(id, input.IPAddress)
	if err := g.limiter.Check(ctx, core.ActionPasswordChange, limitKey); err != nil {
		return err
	}
	if err := g.credentials.ValidatePassword(input.Password); err != nil {
		return err
	}

	unlock := g.locks.Lock(id)
	defer unlock()

	identity, err := g.storage.GetIdentityByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get identity: %w", err)
	}
	if err := g.credentials.CheckPassword(ctx, identity, input.CurrentPassword); err != nil {
		return err
	}

	if err := g.credentials.UpdatePassword(ctx, identity, input.Password); err != nil {
		return err
	}
	g.sessions.Forget(id)

	if err := g.limiter.Reset(ctx, core.ActionPasswordChange, limitKey); err != nil {
		g.logger.Warn(ctx, "failed to reset password change limiter", "error", err)
	}

	g.passwordChanged(ctx, identity)
	g.logger.Info(ctx, "password changed", "identity_id", id)
	return nil
}

// VerifyEmail redeems a signed verification link. Links issued for an older
// email address of the identity are rejected.
func (g *Gateway) VerifyEmail(ctx context.Context, token string) (*core.Identity, error) {
	identityID, email, err := g.signer.ParseVerification(token)
	if err != nil {
		g.logger.Warn(ctx, "verification link rejected", "error", err)
		return nil, core.ErrInvalidVerification
	}

	identity, err := g.storage.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			return nil, core.ErrInvalidVerification
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if NormalizeEmail(email) != identity.Email {
		return nil, core.ErrInvalidVerification
	}

	if err := g.credentials.MarkVerified(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (g *Gateway) ResendVerification(ctx context.Context, principal *core.Principal) error {
	identity := principal.Identity
	if identity.Verified() {
		return nil
	}
	if err := g.limiter.Check(ctx, core.ActionVerifyResend, LimitKey(identity.ID, "")); err != nil {
		return err
	}
	g.sendVerification(ctx, identity)
	return nil
}

func (g *Gateway) Profile(ctx context.Context, principal *core.Principal) (*core.Identity, error) {
	identity, err := g.storage.GetIdentityByID(ctx, principal.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// UpdateProfile applies the non-nil fields of input. Email, role and password
// are not editable here.
func (g *Gateway) UpdateProfile(ctx context.Context, principal *core.Principal, input core.ProfileInput) (*core.Identity, error) {
	unlock := g.locks.Lock(principal.Identity.ID)
	defer unlock()

	identity, err := g.storage.GetIdentityByID(ctx, principal.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len([]rune(name)) > maxNameLength {
			return nil, core.ErrNameTooLong
		}
		identity.Name = name
	}
	if input.Phone != nil {
		identity.Phone = truncate(strings.TrimSpace(*input.Phone), maxProfileLength)
	}
	if input.Address != nil {
		identity.Address = truncate(strings.TrimSpace(*input.Address), maxProfileLength)
	}
	if input.Locale != nil {
		if err := validateLocale(*input.Locale); err != nil {
			return nil, err
		}
		identity.Locale = *input.Locale
	}
	identity.UpdatedAt = g.now()

	if err := g.storage.UpdateProfile(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return identity, nil
}

// CreateToken issues an additional named token. A token-authenticated caller
// cannot mint abilities its own token lacks.
func (g *Gateway) CreateToken(ctx context.Context, principal *core.Principal, input core.CreateTokenInput) (*core.IssuedToken, error) {
	abilities := slices.Compact(slices.Sorted(slices.Values(input.Abilities)))
	if len(g.policy.Abilities) > 0 {
		for _, a := range abilities {
			if a != "*" && !slices.Contains(g.policy.Abilities, a) {
				return nil, core.ErrUnknownAbility
			}
		}
	}

	if principal.Token != nil && len(principal.Token.Abilities) > 0 {
		if len(abilities) == 0 {
			return nil, core.ErrForbidden
		}
		for _, a := range abilities {
			if a == "*" || !principal.Token.Can(a) {
				return nil, core.ErrForbidden
			}
		}
	}

	name := strings.TrimSpace(input.Name)
	if len([]rune(name)) > maxNameLength {
		return nil, core.ErrNameTooLong
	}

	issued, err := g.tokens.Issue(ctx, principal.Identity, name, abilities)
	if err != nil {
		return nil, err
	}
	g.logger.Info(ctx, "token created", "identity_id", principal.Identity.ID, "token_id", issued.Token.ID)
	return issued, nil
}

func (g *Gateway) ListTokens(ctx context.Context, principal *core.Principal) ([]*core.Token, error) {
	return g.tokens.List(ctx, principal.Identity.ID)
}

func (g *Gateway) RevokeToken(ctx context.Context, principal *core.Principal, tokenID string) error {
	return g.tokens.RevokeByID(ctx, principal.Identity.ID, tokenID)
}

// RequireAdmin is a pure check over the identity handed in.
func (g *Gateway) RequireAdmin(identity *core.Identity) error {
	if !core.HasRole(identity, core.RoleAdmin) {
		return core.ErrForbidden
	}
	return nil
}

func (g *Gateway) GetIdentity(ctx context.Context, principal *core.Principal, id string) (*core.Identity, error) {
	if err := g.RequireAdmin(principal.Identity); err != nil {
		return nil, err
	}
	return g.storage.GetIdentityByID(ctx, id)
}

// DisableIdentity soft-disables id and revokes everything it holds. Admins
// cannot disable themselves.
func (g *Gateway) DisableIdentity(ctx context.Context, principal *core.Principal, id string) error {
	if err := g.RequireAdmin(principal.Identity); err != nil {
		return err
	}
	if id == principal.Identity.ID {
		return core.ErrForbidden
	}

	unlock := g.locks.Lock(id)
	defer unlock()

	changed, err := g.storage.DisableIdentity(ctx, id, g.now())
	if err != nil {
		return fmt.Errorf("failed to disable identity: %w", err)
	}
	if !changed {
		return nil
	}

	if _, err := g.sessions.RevokeAll(ctx, id); err != nil {
		return err
	}
	if _, err := g.tokens.RevokeAll(ctx, id); err != nil {
		return err
	}

	g.logger.Info(ctx, "identity disabled", "identity_id", id, "by", principal.Identity.ID)
	return nil
}

// Seed creates an identity outside the registration flow, e.g. the first
// admin. Seeded identities are verified immediately.
func (g *Gateway) Seed(ctx context.Context, input core.RegisterInput) (*core.Identity, error) {
	if input.Provenance == "" {
		input.Provenance = core.ProvenanceSeed
	}
	identity, err := g.credentials.CreateIdentity(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := g.credentials.MarkVerified(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (g *Gateway) sendVerification(ctx context.Context, identity *core.Identity) {
	token, err := g.signer.SignVerification(identity.ID, identity.Email, g.policy.VerificationTTL)
	if err != nil {
		g.logger.Error(ctx, "failed to sign verification link", "identity_id", identity.ID, "error", err)
		return
	}
	g.notify(ctx, core.Notification{
		Kind: core.NotifyVerifyEmail,
		To:   identity.Email,
		Name: identity.Name,
		Payload: map[string]string{
			"token":   token,
			"link":    g.link("/verify-email", token),
			"minutes": strconv.Itoa(int(g.policy.VerificationTTL / time.Minute)),
		},
	})
}

func (g *Gateway) passwordChanged(ctx context.Context, identity *core.Identity) {
	g.notify(ctx, core.Notification{
		Kind: core.NotifyPasswordChanged,
		To:   identity.Email,
		Name: identity.Name,
	})
}

// notify never fails the calling operation.
func (g *Gateway) notify(ctx context.Context, n core.Notification) {
	n.QueuedAt = g.now()
	if err := g.notifier.Notify(ctx, n); err != nil {
		g.logger.Error(ctx, "failed to enqueue notification", "kind", n.Kind, "error", err)
	}
}

func (g *Gateway) link(path, token string) string {
	base := strings.TrimRight(g.policy.PublicURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

type discardNotifier struct {
	logger logging.Logger
}

func (d discardNotifier) Notify(ctx context.Context, n core.Notification) error {
	d.logger.Warn(ctx, "no notifier configured, dropping notification", "kind", n.Kind)
	return nil
}
