package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/payments"
	"github.com/congo-pay/walletledger/internal/webapi"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

type walletResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	Balance       string    `json:"balance"`
	FrozenAmount  string    `json:"frozen_amount"`
	Available     string    `json:"available_balance"`
	IsFrozen      bool      `json:"is_frozen"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewWallet(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:            w.ID,
		OwnerID:       w.OwnerID,
		AccountNumber: w.AccountNumber,
		Currency:      w.Currency,
		Balance:       w.Balance.StringFixed(2),
		FrozenAmount:  w.FrozenAmount.StringFixed(2),
		Available:     w.Available().StringFixed(2),
		IsFrozen:      w.IsFrozen(),
		CreatedAt:     w.CreatedAt,
	}
}

func viewWallets(ws []ledger.Wallet) []walletResponse {
	out := make([]walletResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, viewWallet(w))
	}
	return out
}

// Create provisions a wallet for the authenticated owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	req, err := webapi.BindAndValidate[createRequest](c)
	if err != nil {
		return err
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{OwnerID: p.UserID, Currency: req.Currency})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(viewWallet(w))
}

// List returns the caller's wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	ws, err := h.service.ListByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallets": viewWallets(ws)})
}

// ListAll returns every wallet. Managers only.
func (h *Handler) ListAll(c *fiber.Ctx) error {
	ws, err := h.service.ListAll(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallets": viewWallets(ws)})
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	b, err := h.service.Balance(c.UserContext(), p, c.Params("walletId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":         b.WalletID,
		"currency":          b.Currency,
		"balance":           b.Balance.StringFixed(2),
		"frozen_amount":     b.Frozen.StringFixed(2),
		"available_balance": b.Available.StringFixed(2),
		"is_frozen":         b.IsFrozen,
		"timestamp":         b.AsOf,
	})
}

type entryResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"entry_type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"timestamp"`
}

// Ledger returns the wallet's ledger entries.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	walletID := c.Params("walletId")
	entries, err := h.service.GetLedger(c.UserContext(), p, walletID)
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			Type:          string(e.Type),
			Amount:        e.Amount.StringFixed(2),
			BalanceAfter:  e.BalanceAfter.StringFixed(2),
			CreatedAt:     e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "entries": out})
}

// Dashboard returns the caller's overview.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.service.Dashboard(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"wallets":      viewWallets(d.Wallets),
		"transactions": payments.ViewTransactions(d.Transactions),
		"fraud_flags":  payments.ViewFraudFlags(d.FraudFlags),
	})
}

// Currencies lists supported currencies.
func (h *Handler) Currencies(c *fiber.Ctx) error {
	cs, err := h.service.Currencies(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]fiber.Map, 0, len(cs))
	for _, cur := range cs {
		out = append(out, fiber.Map{"code": cur.Code, "name": cur.Name})
	}
	return c.JSON(fiber.Map{"currencies": out})
}
