package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/webapi"
)

// TokenVerifier resolves an access token to the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.User, error)
}

// JWTAuth returns a middleware that validates bearer access tokens, checks
// the token version and stores the caller as the request principal.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		user, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or revoked token")
		}

		webapi.SetPrincipal(c, webapi.Principal{UserID: user.ID, Manager: user.CanApprove()})
		c.Locals("token_version", user.TokenVersion)
		return c.Next()
	}
}

// RequireManager rejects callers that may not approve transactions.
func RequireManager() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := webapi.CurrentPrincipal(c)
		if err != nil {
			return err
		}
		if !p.CanApprove() {
			return fiber.NewError(http.StatusForbidden, "manager role required")
		}
		return c.Next()
	}
}
