// Package fiber exposes a bantay gateway over HTTP with Fiber v3.
package fiber

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/logging"
	"github.com/lborres/bantay/services"
)

const DefaultCookieName = "bantay_session"

type Config struct {
	CookieName   string
	CookieDomain string
	CookieSecure bool
	// CookieSameSite defaults to fiber.CookieSameSiteLaxMode.
	CookieSameSite string

	Logger logging.Logger
}

type Adapter struct {
	app      *fiber.App
	config   Config
	registry *services.EndpointRegistry
	custom   map[string]fiber.Handler
	handler  core.AuthHandler
	logger   logging.Logger
}

var _ core.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App, config Config) *Adapter {
	if config.CookieName == "" {
		config.CookieName = DefaultCookieName
	}
	if config.CookieSameSite == "" {
		config.CookieSameSite = fiber.CookieSameSiteLaxMode
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Adapter{
		app:      app,
		config:   config,
		registry: services.NewEndpointRegistry(),
		custom:   make(map[string]fiber.Handler),
		logger:   config.Logger.With("component", "http"),
	}
}

// Extend registers extra endpoints with their handlers, keyed by operation
// ID. Call it before RegisterRoutes.
func (a *Adapter) Extend(endpoints []core.Endpoint, handlers map[string]fiber.Handler) error {
	if err := a.registry.Extend(endpoints); err != nil {
		return err
	}
	for op, h := range handlers {
		a.custom[op] = h
	}
	return nil
}

// Endpoints lists every endpoint the adapter will mount.
func (a *Adapter) Endpoints() []*core.Endpoint {
	return a.registry.Endpoints()
}

// RegisterRoutes mounts every registered endpoint under basePath with its
// guard in front.
func (a *Adapter) RegisterRoutes(handler core.AuthHandler, basePath string) error {
	if handler == nil {
		return fmt.Errorf("register routes: nil handler")
	}
	a.handler = handler

	handlers := a.handlers()
	for op, h := range a.custom {
		handlers[op] = h
	}

	api := a.app.Group(basePath)
	api.Use(a.requestContext)

	for _, ep := range a.registry.Endpoints() {
		h, ok := handlers[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("no handler for operation %q (%s %s)", ep.Metadata.OperationID, ep.Method, ep.Path)
		}

		if ep.Guard == core.GuardPublic {
			api.Add([]string{ep.Method}, ep.Path, h)
			continue
		}
		api.Add([]string{ep.Method}, ep.Path, a.guard(ep), h)
	}

	return nil
}

func (a *Adapter) handlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpHealth:               a.health,
		services.OpRegister:             a.register,
		services.OpLogin:                a.login,
		services.OpLogout:               a.logout,
		services.OpLogoutAll:            a.logoutAll,
		services.OpRequestPasswordReset: a.requestPasswordReset,
		services.OpResetPassword:        a.resetPassword,
		services.OpChangePassword:       a.changePassword,
		services.OpVerifyEmail:          a.verifyEmail,
		services.OpResendVerification:   a.resendVerification,
		services.OpGetProfile:           a.profile,
		services.OpUpdateProfile:        a.updateProfile,
		services.OpListTokens:           a.listTokens,
		services.OpCreateToken:          a.createToken,
		services.OpRevokeToken:          a.revokeToken,
		services.OpAdminGetIdentity:     a.adminGetIdentity,
		services.OpAdminDisableIdentity: a.adminDisableIdentity,
	}
}

func (a *Adapter) setSessionCookie(c fiber.Ctx, handle string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     a.config.CookieName,
		Value:    handle,
		Path:     "/",
		Domain:   a.config.CookieDomain,
		Expires:  expires,
		Secure:   a.config.CookieSecure,
		HTTPOnly: true,
		SameSite: a.config.CookieSameSite,
	})
}

func (a *Adapter) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.config.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   a.config.CookieSecure,
		HTTPOnly: true,
		SameSite: a.config.CookieSameSite,
	})
}
