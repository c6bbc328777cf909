package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/calimero-network/MeroSign/internal/model"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusAndCode maps the domain error taxonomy to an HTTP status and a
// stable machine-readable code.
func statusAndCode(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, model.ErrAlreadyExists):
		return fiber.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, model.ErrAlreadyJoined):
		return fiber.StatusConflict, "ALREADY_JOINED"
	case errors.Is(err, model.ErrAlreadySigned):
		return fiber.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, model.ErrUnauthorized):
		return fiber.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, model.ErrConsentRequired):
		return fiber.StatusPreconditionFailed, "CONSENT_REQUIRED"
	case errors.Is(err, model.ErrNotReady):
		return fiber.StatusConflict, "NOT_READY"
	case errors.Is(err, model.ErrNotApproved):
		return fiber.StatusConflict, "NOT_APPROVED"
	case errors.Is(err, model.ErrInsufficientBalance):
		return fiber.StatusConflict, "INSUFFICIENT_BALANCE"
	case errors.Is(err, model.ErrOverflow):
		return fiber.StatusUnprocessableEntity, "OVERFLOW"
	case errors.Is(err, model.ErrInvalidInput):
		return fiber.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, model.ErrWrongContextKind):
		return fiber.StatusBadRequest, "WRONG_CONTEXT_KIND"
	case errors.Is(err, model.ErrTemporarilyUnavailable):
		return fiber.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE"
	case errors.Is(err, model.ErrCorruptStore):
		return fiber.StatusInternalServerError, "CORRUPT_STORE"
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// requestIDFromCtx extracts the request id previously stored by RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response. The message is the
// sentinel mapping only; wrapped internals are not leaked.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// domainError maps a domain error onto the response.
func domainError(c *fiber.Ctx, err error) error {
	status, code := statusAndCode(err)
	return writeError(c, status, code, err.Error())
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses for errors escaping the handlers.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
