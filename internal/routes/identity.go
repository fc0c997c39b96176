package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/wallet"
	"github.com/congo-pay/walletledger/internal/webapi"
)

const defaultWalletCurrency = "USD"

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	PIN      string `json:"pin" validate:"required,min=4,max=12,numeric"`
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// RegisterIdentityRoutes wires registration and auto-provisions a first
// wallet for the new customer.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, logger *zap.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		req, err := webapi.BindAndValidate[registerRequest](c)
		if err != nil {
			return err
		}
		currency := req.Currency
		if currency == "" {
			currency = defaultWalletCurrency
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, PIN: req.PIN})
		if err != nil {
			return err
		}
		var walletID, account string
		w, err := wallets.Create(c.UserContext(), wallet.CreateInput{OwnerID: user.ID, Currency: currency})
		if err != nil {
			logger.Warn("wallet provisioning failed", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			walletID, account = w.ID, w.AccountNumber
		}
		logger.Info("identity.register completed",
			zap.String("user_id", user.ID),
			zap.String("wallet_id", walletID),
			zap.Int("status", http.StatusCreated),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":        user.ID,
			"email":          user.Email,
			"role":           user.Role,
			"wallet_id":      walletID,
			"account_number": account,
		})
	})
}
