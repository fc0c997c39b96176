package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/payments"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// RegisterPaymentRoutes wires the customer transaction endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	group := r.Group("/transactions")
	group.Post("/deposit", h.Deposit)
	group.Post("/withdraw", h.Withdraw)
	group.Post("/transfer", h.Transfer)
}

// RegisterManagerRoutes wires the approval queue and oversight endpoints.
// The router must already enforce the manager role.
func RegisterManagerRoutes(r fiber.Router, h *payments.Handler, wallets *wallet.Handler) {
	r.Get("/transactions/pending", h.Pending)
	r.Post("/transactions/:id/approve", h.Approve)
	r.Post("/transactions/:id/reject", h.Reject)
	r.Get("/transactions", h.History)
	r.Get("/fraud-flags", h.FraudFlags)
	r.Get("/wallets", wallets.ListAll)
}
