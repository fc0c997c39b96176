package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/wallet"
	"github.com/congo-pay/walletledger/internal/webapi"
)

// RegisterWalletMeRoute exposes the caller's profile together with their
// wallets and balances.
func RegisterWalletMeRoute(r fiber.Router, wallets *wallet.Service, ids *identity.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		p, err := webapi.CurrentPrincipal(c)
		if err != nil {
			return err
		}
		user, err := ids.Get(c.UserContext(), p.UserID)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		ws, err := wallets.ListByOwner(c.UserContext(), user.ID)
		if err != nil {
			return err
		}
		out := make([]fiber.Map, 0, len(ws))
		for _, w := range ws {
			out = append(out, fiber.Map{
				"id":                w.ID,
				"account_number":    w.AccountNumber,
				"currency":          w.Currency,
				"balance":           w.Balance.StringFixed(2),
				"frozen_amount":     w.FrozenAmount.StringFixed(2),
				"available_balance": w.Available().StringFixed(2),
				"created_at":        w.CreatedAt,
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user": fiber.Map{
				"id":            user.ID,
				"email":         user.Email,
				"role":          user.Role,
				"token_version": user.TokenVersion,
				"created_at":    user.CreatedAt,
			},
			"wallets": out,
		})
	})
}
