package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/logging"
)

type localsKey int

const principalKey localsKey = iota

// Principal returns the principal the guard stored for this request.
func Principal(c fiber.Ctx) (*core.Principal, bool) {
	p, ok := c.Locals(principalKey).(*core.Principal)
	return p, ok && p != nil
}

// requestContext carries the request id into the context handed to the
// gateway so its log lines can be correlated.
func (a *Adapter) requestContext(c fiber.Ctx) error {
	if id := requestid.FromContext(c); id != "" {
		c.SetContext(logging.WithRequestID(c.Context(), id))
	}
	return c.Next()
}

// guard authenticates the request and enforces the endpoint's guard and
// token ability before the handler runs.
func (a *Adapter) guard(ep *core.Endpoint) fiber.Handler {
	return func(c fiber.Ctx) error {
		credential := credential(c, a.config.CookieName)

		principal, err := a.handler.Authenticate(c.Context(), credential)
		if err != nil {
			return a.writeError(c, err)
		}

		if ep.Guard == core.GuardAdmin {
			if err := a.handler.RequireAdmin(principal.Identity); err != nil {
				return a.writeError(c, err)
			}
		}
		if ep.Ability != "" && !principal.Can(ep.Ability) {
			return a.writeError(c, core.ErrForbidden)
		}

		// slide the browser cookie along with the session
		if principal.Session != nil {
			a.setSessionCookie(c, credential.Session, principal.Session.ExpiresAt)
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// Protected guards an application route outside the auth API. A token
// credential must carry ability when one is given. Use it after
// RegisterRoutes.
func (a *Adapter) Protected(ability string) fiber.Handler {
	return a.guard(&core.Endpoint{Guard: core.GuardAuthenticated, Ability: ability})
}

// credential collects what the client presented. The gateway decides which
// part counts: a bearer token wins, a cookie needs a trusted origin.
func credential(c fiber.Ctx, cookieName string) core.Credential {
	cred := core.Credential{
		Session:   c.Cookies(cookieName),
		Origin:    requestOrigin(c),
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		cred.Bearer = strings.TrimSpace(authHeader[7:])
	}
	return cred
}

// requestOrigin prefers Origin and falls back to Referer.
func requestOrigin(c fiber.Ctx) string {
	if origin := c.Get(fiber.HeaderOrigin); origin != "" {
		return origin
	}
	return c.Get(fiber.HeaderReferer)
}
