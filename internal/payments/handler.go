package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/webapi"
)

// Handler exposes transaction and approval endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	WalletID string          `json:"wallet_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note" validate:"max=255"`
}

type transferRequest struct {
	SourceWalletID string          `json:"source_wallet_id" validate:"required"`
	TargetWalletID string          `json:"target_wallet_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note" validate:"max=255"`
}

// TransactionView is the JSON shape of a transaction.
type TransactionView struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	SourceWalletID  string     `json:"source_wallet_id"`
	TargetWalletID  string     `json:"target_wallet_id,omitempty"`
	Amount          string     `json:"amount"`
	ConvertedAmount *string    `json:"converted_amount,omitempty"`
	Note            string     `json:"note,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// ViewTransaction renders a transaction for the API.
func ViewTransaction(t ledger.Transaction) TransactionView {
	v := TransactionView{
		ID:             t.ID,
		Type:           string(t.Type),
		Status:         string(t.Status),
		SourceWalletID: t.SourceWalletID,
		TargetWalletID: t.TargetWalletID,
		Amount:         t.Amount.StringFixed(2),
		Note:           t.Note,
		ApprovedBy:     t.ApprovedBy,
		CreatedAt:      t.CreatedAt,
		ProcessedAt:    t.ProcessedAt,
	}
	if t.ConvertedAmount.Valid {
		s := t.ConvertedAmount.Decimal.StringFixed(2)
		v.ConvertedAmount = &s
	}
	return v
}

// ViewTransactions renders a list of transactions.
func ViewTransactions(txns []ledger.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		out = append(out, ViewTransaction(t))
	}
	return out
}

func created(c *fiber.Ctx, txn ledger.Transaction) error {
	status := http.StatusCreated
	if txn.Status == ledger.StatusPending {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(ViewTransaction(txn))
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	req, err := webapi.BindAndValidate[depositRequest](c)
	if err != nil {
		return err
	}
	txn, err := h.service.Deposit(c.UserContext(), DepositInput{RequestorID: p.UserID, WalletID: req.WalletID, Amount: req.Amount, Note: req.Note})
	if err != nil {
		return err
	}
	return created(c, txn)
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	req, err := webapi.BindAndValidate[depositRequest](c)
	if err != nil {
		return err
	}
	txn, err := h.service.Withdraw(c.UserContext(), WithdrawInput{RequestorID: p.UserID, WalletID: req.WalletID, Amount: req.Amount, Note: req.Note})
	if err != nil {
		return err
	}
	return created(c, txn)
}

// Transfer moves funds from one of the caller's wallets to any wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	req, err := webapi.BindAndValidate[transferRequest](c)
	if err != nil {
		return err
	}
	txn, err := h.service.Transfer(c.UserContext(), TransferInput{
		RequestorID:    p.UserID,
		SourceWalletID: req.SourceWalletID,
		TargetWalletID: req.TargetWalletID,
		Amount:         req.Amount,
		Note:           req.Note,
	})
	if err != nil {
		return err
	}
	return created(c, txn)
}

// Pending lists transactions awaiting approval.
func (h *Handler) Pending(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	txns, err := h.service.ListPending(c.UserContext(), p, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transactions": ViewTransactions(txns)})
}

// Approve settles a held transaction.
func (h *Handler) Approve(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	txn, err := h.service.Approve(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ViewTransaction(txn))
}

// Reject releases a held transaction.
func (h *Handler) Reject(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	txn, err := h.service.Reject(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ViewTransaction(txn))
}

// History lists transactions for the wallet in the "wallet" query parameter.
func (h *Handler) History(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	walletID := c.Query("wallet")
	if walletID == "" {
		return fiber.NewError(http.StatusBadRequest, "wallet query parameter is required")
	}
	txns, err := h.service.History(c.UserContext(), p, walletID, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "transactions": ViewTransactions(txns)})
}

// FraudFlagView is the JSON shape of a fraud flag.
type FraudFlagView struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Rule          string    `json:"rule"`
	Reason        string    `json:"reason"`
	FlaggedAt     time.Time `json:"flagged_at"`
}

// ViewFraudFlags renders fraud flags for the API.
func ViewFraudFlags(flags []ledger.FraudFlag) []FraudFlagView {
	out := make([]FraudFlagView, 0, len(flags))
	for _, f := range flags {
		out = append(out, FraudFlagView{ID: f.ID, UserID: f.UserID, TransactionID: f.TransactionID, Rule: f.Rule, Reason: f.Reason, FlaggedAt: f.FlaggedAt})
	}
	return out
}

// FraudFlags lists raised flags, optionally filtered by user and rule.
func (h *Handler) FraudFlags(c *fiber.Ctx) error {
	p, err := webapi.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	flags, err := h.service.ListFraudFlags(c.UserContext(), p, ledger.FraudFlagFilter{
		UserID: c.Query("user"),
		Rule:   c.Query("rule"),
		Limit:  c.QueryInt("limit", 100),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"fraud_flags": ViewFraudFlags(flags)})
}
