package core

import "context"

// Flow is the kind of auth artifact a client receives.
type Flow string

const (
	FlowSession Flow = "session"
	FlowToken   Flow = "token"
)

// RegisterInput contains the data needed to create a new identity
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Locale   string `json:"locale"`

	Role       Role       `json:"-"`
	Provenance Provenance `json:"-"`
}

// RegisterResult reports the created identity. Pending is true while the
// email address still awaits verification.
type RegisterResult struct {
	Identity *Identity `json:"identity"`
	Pending  bool      `json:"pending"`
}

// LoginInput contains the credentials plus the client facts the gateway
// classifies and throttles on.
type LoginInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	TokenName string `json:"tokenName"`

	Origin    string `json:"-"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// IssuedSession pairs a stored session with the raw cookie value
type IssuedSession struct {
	Session *Session `json:"session"`
	Handle  string   `json:"-"` // The raw handle (not the hash)
}

// IssuedToken pairs a stored token with its plain-text value, which is only
// ever available at issuance.
type IssuedToken struct {
	Token          *Token `json:"token"`
	PlainTextToken string `json:"plainTextToken"`
}

// LoginResult carries exactly one of Session or Token, depending on Flow.
type LoginResult struct {
	Identity *Identity      `json:"identity"`
	Flow     Flow           `json:"flow"`
	Session  *IssuedSession `json:"-"`
	Token    *IssuedToken   `json:"token,omitempty"`
}

// Credential is whatever the client presented on a request.
type Credential struct {
	Bearer    string
	Session   string
	Origin    string
	IPAddress string
	UserAgent string
}

func (c Credential) Empty() bool {
	return c.Bearer == "" && c.Session == ""
}

type ResetPasswordInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`

	IPAddress string `json:"-"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`

	IPAddress string `json:"-"`
}

// ProfileInput is a partial update; nil fields are left untouched.
type ProfileInput struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Locale  *string `json:"locale"`
}

type CreateTokenInput struct {
	Name      string   `json:"name"`
	Abilities []string `json:"abilities"`
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, credential Credential) error
	LogoutAll(ctx context.Context, principal *Principal) error
	Authenticate(ctx context.Context, credential Credential) (*Principal, error)

	RequestPasswordReset(ctx context.Context, email, ipAddress string) error
	ResetPassword(ctx context.Context, input ResetPasswordInput) error
	ChangePassword(ctx context.Context, principal *Principal, input ChangePasswordInput) error

	VerifyEmail(ctx context.Context, token string) (*Identity, error)
	ResendVerification(ctx context.Context, principal *Principal) error

	Profile(ctx context.Context, principal *Principal) (*Identity, error)
	UpdateProfile(ctx context.Context, principal *Principal, input ProfileInput) (*Identity, error)

	CreateToken(ctx context.Context, principal *Principal, input CreateTokenInput) (*IssuedToken, error)
	ListTokens(ctx context.Context, principal *Principal) ([]*Token, error)
	RevokeToken(ctx context.Context, principal *Principal, tokenID string) error

	RequireAdmin(identity *Identity) error
	GetIdentity(ctx context.Context, principal *Principal, id string) (*Identity, error)
	DisableIdentity(ctx context.Context, principal *Principal, id string) error
}
