package fiber

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
)

// statusTable maps gateway errors to HTTP statuses. The sentinel's own
// message is what the client sees, so wrapped internal detail never leaks.
var statusTable = []struct {
	err    error
	status int
}{
	{core.ErrUnauthorized, http.StatusUnauthorized},
	{core.ErrInvalidCredentials, http.StatusUnauthorized},

	{core.ErrForbidden, http.StatusForbidden},
	{core.ErrUnverified, http.StatusForbidden},

	{core.ErrIdentityNotFound, http.StatusNotFound},
	{core.ErrTokenNotFound, http.StatusNotFound},

	{core.ErrDuplicateEmail, http.StatusConflict},
	{core.ErrExpiredOrUsedArtifact, http.StatusGone},

	{core.ErrEmailRequired, http.StatusBadRequest},
	{core.ErrInvalidEmail, http.StatusBadRequest},
	{core.ErrPasswordRequired, http.StatusBadRequest},
	{core.ErrPasswordTooShort, http.StatusBadRequest},
	{core.ErrPasswordTooLong, http.StatusBadRequest},
	{core.ErrNameTooLong, http.StatusBadRequest},
	{core.ErrUnknownAbility, http.StatusBadRequest},
	{core.ErrInvalidLocale, http.StatusBadRequest},
	{core.ErrInvalidRole, http.StatusBadRequest},
	{core.ErrInvalidVerification, http.StatusBadRequest},
}

var errInvalidBody = errors.New("invalid request body")

// mapError returns the status and client-facing message for err.
func mapError(err error) (int, string) {
	if errors.Is(err, errInvalidBody) {
		return http.StatusBadRequest, errInvalidBody.Error()
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (a *Adapter) writeError(c fiber.Ctx, err error) error {
	if tooMany, ok := core.IsTooManyAttempts(err); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(tooMany.RetryAfterSeconds()))
		return c.Status(http.StatusTooManyRequests).JSON(core.ErrorResponse{
			Error: "too many attempts",
			Code:  http.StatusTooManyRequests,
		})
	}

	status, message := mapError(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(c.Context(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(core.ErrorResponse{Error: message, Code: status})
}
