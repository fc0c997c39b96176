// Package webapi holds the request binding, error envelope and principal
// helpers shared by the HTTP handlers.
package webapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ErrorBody is the JSON error envelope returned by every endpoint.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Fail writes the error envelope with the given status.
func Fail(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(ErrorBody{Code: code, Error: msg})
}

// BindAndValidate parses the request body into T and runs struct validation.
// The returned error is a *fiber.Error carrying status 400.
func BindAndValidate[T any](c *fiber.Ctx) (T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return input, fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return input, fiber.NewError(fiber.StatusBadRequest, "validation failed: "+verrs[0].Field()+" "+verrs[0].Tag())
		}
		return input, fiber.NewError(fiber.StatusBadRequest, "validation failed: "+err.Error())
	}
	return input, nil
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string
	Manager bool
}

// ActorID identifies the caller in approval records.
func (p Principal) ActorID() string { return p.UserID }

// CanApprove reports whether the caller may resolve held transactions.
func (p Principal) CanApprove() bool { return p.Manager }

const principalKey = "principal"

// SetPrincipal stores the caller on the request context.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
	c.Locals("user_id", p.UserID)
}

// CurrentPrincipal returns the caller, or a 401 error when unauthenticated.
func CurrentPrincipal(c *fiber.Ctx) (Principal, error) {
	p, ok := c.Locals(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return p, nil
}
