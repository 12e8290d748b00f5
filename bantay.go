// Package bantay wires a hybrid session/token authentication gateway from a
// storage adapter and an HTTP adapter.
package bantay

import (
	"fmt"
	"time"

	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/cache"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/logging"
	"github.com/lborres/bantay/services"
)

// interfaces
type (
	StorageAdapter = core.StorageAdapter
	RateLimitStore = core.RateLimitStore
	Cache          = core.Cache
	Notifier       = core.Notifier
	HTTPAdapter    = core.HTTPAdapter
	AuthHandler    = core.AuthHandler

	PasswordHandler = crypto.PasswordHandler
	Logger          = logging.Logger
)

// structs
type (
	Policy          = core.Policy
	SessionConfig   = core.SessionConfig
	TokenConfig     = core.TokenConfig
	RateLimitPolicy = core.RateLimitPolicy
	CacheConfig     = core.CacheConfig
	Action          = core.Action
)

type (
	Identity     = core.Identity
	Session      = core.Session
	Token        = core.Token
	Principal    = core.Principal
	Credential   = core.Credential
	LoginResult  = core.LoginResult
	IssuedToken  = core.IssuedToken
	Notification = core.Notification
	Endpoint     = core.Endpoint
)

const (
	defaultBasePath  = "/api/auth"
	defaultSecretLen = 32
)

// Constructors & helpers (convenience re-exports)
var (
	NewSessionCache      = cache.NewSessionCache
	NewArgon2            = crypto.NewArgon2
	NewBcrypt            = crypto.NewBcrypt
	DefaultPolicy        = core.DefaultPolicy
	DefaultSessionConfig = core.DefaultSessionConfig
	DefaultRateLimits    = core.DefaultRateLimits
	IsTooManyAttempts    = core.IsTooManyAttempts
)

var (
	ErrDuplicateEmail        = core.ErrDuplicateEmail
	ErrIdentityNotFound      = core.ErrIdentityNotFound
	ErrInvalidCredentials    = core.ErrInvalidCredentials
	ErrForbidden             = core.ErrForbidden
	ErrUnverified            = core.ErrUnverified
	ErrUnauthorized          = core.ErrUnauthorized
	ErrExpiredOrUsedArtifact = core.ErrExpiredOrUsedArtifact
	ErrInvalidVerification   = core.ErrInvalidVerification
)

var (
	ErrEmailRequired    = core.ErrEmailRequired
	ErrInvalidEmail     = core.ErrInvalidEmail
	ErrPasswordRequired = core.ErrPasswordRequired
	ErrPasswordTooShort = core.ErrPasswordTooShort
	ErrPasswordTooLong  = core.ErrPasswordTooLong
)

var (
	ErrStorageRequired = core.ErrStorageRequired
	ErrHTTPRequired    = core.ErrHTTPRequired
	ErrSecretRequired  = core.ErrSecretRequired
	ErrSecretTooShort  = core.ErrSecretTooShort
)

type Config struct {
	// Secret signs verification links. At least 32 characters.
	Secret string

	Storage StorageAdapter
	HTTP    HTTPAdapter

	// RateLimitStore defaults to an in-process store, which is only correct
	// for a single instance.
	RateLimitStore RateLimitStore

	CacheAdapter Cache
	DisableCache bool

	Notifier       Notifier
	PasswordHasher PasswordHandler
	Logger         Logger

	Policy   Policy
	BasePath string
}

type Bantay struct {
	*services.Gateway

	BasePath string
}

func New(config Config) (*Bantay, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPRequired
	}

	// Set Defaults

	cacheAdapter := config.CacheAdapter
	if cacheAdapter == nil && !config.DisableCache {
		cacheAdapter = NewSessionCache(CacheConfig{
			TTL:     30 * time.Second,
			MaxSize: 1000,
		})
	}

	limits := config.RateLimitStore
	if limits == nil {
		limits = memory.NewRateLimitStore()
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = NewArgon2()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	gateway, err := services.NewGateway(config.Policy, services.GatewayDeps{
		Storage:        config.Storage,
		RateLimitStore: limits,
		Cache:          cacheAdapter,
		Notifier:       config.Notifier,
		PasswordHasher: passwordHasher,
		Signer:         crypto.NewLinkSigner(config.Secret),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	b := &Bantay{Gateway: gateway, BasePath: basePath}

	if err := config.HTTP.RegisterRoutes(b, basePath); err != nil {
		return nil, err
	}

	return b, nil
}
