package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/payments"
	"github.com/congo-pay/walletledger/internal/wallet"
	"github.com/congo-pay/walletledger/internal/webapi"
)

// ErrorHandler maps handler errors onto the JSON error envelope.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status, code := classify(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("request_id", middleware.RequestIDFrom(c)),
				zap.Error(err),
			)
			if status == http.StatusInternalServerError {
				msg = "internal server error"
			}
		}
		return webapi.Fail(c, status, code, msg)
	}
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, statusCode(fe.Code)
	case errors.Is(err, wallet.ErrUnknownCurrency):
		return http.StatusBadRequest, "unknown_currency"
	case errors.Is(err, wallet.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, identity.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPIN):
		return http.StatusBadRequest, "invalid_identity"
	case errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized, "invalid_token"
	}
	return payments.ErrorCode(err)
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	}
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
