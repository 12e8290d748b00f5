package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
)

func (a *Adapter) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (a *Adapter) register(c fiber.Ctx) error {
	var input core.RegisterInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}

	result, err := a.handler.Register(c.Context(), input)
	if err != nil {
		return a.writeError(c, err)
	}

	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(result)
}

// login answers a trusted origin with an HttpOnly cookie and everyone else
// with a bearer token in the body.
func (a *Adapter) login(c fiber.Ctx) error {
	var input core.LoginInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}
	input.Origin = requestOrigin(c)
	input.IPAddress = c.IP()
	input.UserAgent = c.Get(fiber.HeaderUserAgent)

	result, err := a.handler.Login(c.Context(), input)
	if err != nil {
		return a.writeError(c, err)
	}

	if result.Session != nil {
		a.setSessionCookie(c, result.Session.Handle, result.Session.Session.ExpiresAt)
		return c.JSON(fiber.Map{
			"identity":  result.Identity,
			"flow":      result.Flow,
			"expiresAt": result.Session.Session.ExpiresAt,
		})
	}
	return c.JSON(result)
}

func (a *Adapter) logout(c fiber.Ctx) error {
	if err := a.handler.Logout(c.Context(), credential(c, a.config.CookieName)); err != nil {
		return a.writeError(c, err)
	}
	a.clearSessionCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) logoutAll(c fiber.Ctx) error {
	principal, _ := Principal(c)
	if err := a.handler.LogoutAll(c.Context(), principal); err != nil {
		return a.writeError(c, err)
	}
	a.clearSessionCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) requestPasswordReset(c fiber.Ctx) error {
	var input struct {
		Email string `json:"email"`
	}
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}

	if err := a.handler.RequestPasswordReset(c.Context(), input.Email, c.IP()); err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "if the address is registered, a reset link is on its way"})
}

func (a *Adapter) resetPassword(c fiber.Ctx) error {
	var input core.ResetPasswordInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}
	input.IPAddress = c.IP()

	if err := a.handler.ResetPassword(c.Context(), input); err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "password reset"})
}

// changePassword ends every session, the caller's included.
func (a *Adapter) changePassword(c fiber.Ctx) error {
	principal, _ := Principal(c)

	var input core.ChangePasswordInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}
	input.IPAddress = c.IP()

	if err := a.handler.ChangePassword(c.Context(), principal, input); err != nil {
		return a.writeError(c, err)
	}
	a.clearSessionCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) verifyEmail(c fiber.Ctx) error {
	var input struct {
		Token string `json:"token"`
	}
	if token := c.Query("token"); token != "" {
		input.Token = token
	} else if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}

	identity, err := a.handler.VerifyEmail(c.Context(), input.Token)
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(identity)
}

func (a *Adapter) resendVerification(c fiber.Ctx) error {
	principal, _ := Principal(c)
	if err := a.handler.ResendVerification(c.Context(), principal); err != nil {
		return a.writeError(c, err)
	}
	return c.SendStatus(http.StatusAccepted)
}

func (a *Adapter) profile(c fiber.Ctx) error {
	principal, _ := Principal(c)
	identity, err := a.handler.Profile(c.Context(), principal)
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(identity)
}

func (a *Adapter) updateProfile(c fiber.Ctx) error {
	principal, _ := Principal(c)

	var input core.ProfileInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}

	identity, err := a.handler.UpdateProfile(c.Context(), principal, input)
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(identity)
}

func (a *Adapter) listTokens(c fiber.Ctx) error {
	principal, _ := Principal(c)
	tokens, err := a.handler.ListTokens(c.Context(), principal)
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(fiber.Map{"tokens": tokens})
}

func (a *Adapter) createToken(c fiber.Ctx) error {
	principal, _ := Principal(c)

	var input core.CreateTokenInput
	if err := c.Bind().Body(&input); err != nil {
		return a.writeError(c, errInvalidBody)
	}

	issued, err := a.handler.CreateToken(c.Context(), principal, input)
	if err != nil {
		return a.writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(issued)
}

func (a *Adapter) revokeToken(c fiber.Ctx) error {
	principal, _ := Principal(c)
	if err := a.handler.RevokeToken(c.Context(), principal, c.Params("id")); err != nil {
		return a.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) adminGetIdentity(c fiber.Ctx) error {
	principal, _ := Principal(c)
	identity, err := a.handler.GetIdentity(c.Context(), principal, c.Params("id"))
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(identity)
}

func (a *Adapter) adminDisableIdentity(c fiber.Ctx) error {
	principal, _ := Principal(c)
	if err := a.handler.DisableIdentity(c.Context(), principal, c.Params("id")); err != nil {
		return a.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
