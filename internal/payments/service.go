package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/conversion"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/notification"
)

// FraudMonitor is consulted after every created or resolved transaction.
type FraudMonitor interface {
	Evaluate(ctx context.Context, txn ledger.Transaction, owner string)
	EvaluateResolved(ctx context.Context, txn ledger.Transaction, owner string)
}

// Contacts resolves a user id to a notification address.
type Contacts interface {
	ContactAddress(ctx context.Context, userID string) (string, error)
}

// Config holds engine tunables.
type Config struct {
	// LargeTransactionThreshold: amounts strictly above it wait for approval.
	LargeTransactionThreshold decimal.Decimal
}

// Service is the transaction engine and approval workflow.
type Service struct {
	store     ledger.Store
	converter conversion.Converter
	monitor   FraudMonitor
	notifier  notification.Notifier
	contacts  Contacts
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// Deps aggregates the collaborators of the engine. Monitor, Notifier and
// Contacts are optional.
type Deps struct {
	Store     ledger.Store
	Converter conversion.Converter
	Monitor   FraudMonitor
	Notifier  notification.Notifier
	Contacts  Contacts
	Logger    *zap.Logger
}

// NewService constructs the engine.
func NewService(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	converter := d.Converter
	if converter == nil {
		converter = conversion.NewTable(nil, false)
	}
	return &Service{
		store:     d.Store,
		converter: converter,
		monitor:   d.Monitor,
		notifier:  d.Notifier,
		contacts:  d.Contacts,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// DepositInput captures a deposit request.
type DepositInput struct {
	RequestorID string
	WalletID    string
	Amount      decimal.Decimal
	Note        string
}

// WithdrawInput captures a withdrawal request.
type WithdrawInput struct {
	RequestorID string
	WalletID    string
	Amount      decimal.Decimal
	Note        string
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	RequestorID    string
	SourceWalletID string
	TargetWalletID string
	Amount         decimal.Decimal
	Note           string
}

// Deposit credits a wallet, or holds the request for approval when large.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (ledger.Transaction, error) {
	return s.submit(ctx, request{typ: ledger.TypeDeposit, requestor: in.RequestorID, sourceID: in.WalletID, amount: in.Amount, note: in.Note})
}

// Withdraw debits a wallet, or freezes the amount pending approval when large.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (ledger.Transaction, error) {
	return s.submit(ctx, request{typ: ledger.TypeWithdraw, requestor: in.RequestorID, sourceID: in.WalletID, amount: in.Amount, note: in.Note})
}

// Transfer moves funds between two wallets, converting currency when needed.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (ledger.Transaction, error) {
	return s.submit(ctx, request{
		typ:       ledger.TypeTransfer,
		requestor: in.RequestorID,
		sourceID:  in.SourceWalletID,
		targetID:  in.TargetWalletID,
		amount:    in.Amount,
		note:      in.Note,
	})
}

type request struct {
	typ       ledger.TransactionType
	requestor string
	sourceID  string
	targetID  string
	amount    decimal.Decimal
	note      string
}

func (r request) debits() bool {
	return r.typ == ledger.TypeWithdraw || r.typ == ledger.TypeTransfer
}

func (s *Service) submit(ctx context.Context, req request) (ledger.Transaction, error) {
	start := time.Now()
	op := "create_" + string(req.typ)
	txn, source, target, err := s.create(ctx, req)
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		_, code := ErrorCode(err)
		metrics.EngineErrors.WithLabelValues(op, code).Inc()
		s.logger.Info("transaction refused",
			zap.String("type", string(req.typ)),
			zap.String("source_wallet_id", req.sourceID),
			zap.String("code", code),
			zap.Error(err),
		)
		return ledger.Transaction{}, err
	}

	metrics.TransactionsCreated.WithLabelValues(string(txn.Type), string(txn.Status)).Inc()
	s.logger.Info("transaction created",
		zap.String("transaction_id", txn.ID),
		zap.String("type", string(txn.Type)),
		zap.String("status", string(txn.Status)),
		zap.String("amount", txn.Amount.StringFixed(2)),
	)

	if s.monitor != nil {
		s.monitor.Evaluate(ctx, txn, source.OwnerID)
	}
	s.notifyCreated(ctx, txn, source, target)
	return txn, nil
}

func (s *Service) create(ctx context.Context, req request) (ledger.Transaction, ledger.Wallet, ledger.Wallet, error) {
	var none ledger.Wallet
	if !req.amount.IsPositive() || !req.amount.Equal(req.amount.Round(2)) {
		return ledger.Transaction{}, none, none, ErrInvalidAmount
	}
	if req.typ == ledger.TypeTransfer && (req.targetID == "" || req.targetID == req.sourceID) {
		return ledger.Transaction{}, none, none, ErrInvalidTarget
	}

	source, err := s.store.GetWallet(ctx, req.sourceID)
	if err != nil {
		return ledger.Transaction{}, none, none, err
	}
	if req.requestor != "" && source.OwnerID != req.requestor {
		return ledger.Transaction{}, none, none, ErrNotOwner
	}
	if req.debits() && source.Available().LessThan(req.amount) {
		return ledger.Transaction{}, none, none, ErrInsufficientFunds
	}

	var (
		target    ledger.Wallet
		converted decimal.NullDecimal
	)
	if req.typ == ledger.TypeTransfer {
		target, err = s.store.GetWallet(ctx, req.targetID)
		if err != nil {
			return ledger.Transaction{}, none, none, err
		}
		amount, err := conversion.Convert(s.converter, req.amount, source.Currency, target.Currency)
		if err != nil {
			return ledger.Transaction{}, none, none, err
		}
		converted = decimal.NewNullDecimal(amount)
	}

	var txn ledger.Transaction
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		wallets, err := tx.LockWallets(ctx, req.sourceID, req.targetID)
		if err != nil {
			return err
		}
		src, dst := wallets[req.sourceID], wallets[req.targetID]
		if req.debits() && src.Available().LessThan(req.amount) {
			return ErrInsufficientFunds
		}

		now := s.now().UTC()
		txn = ledger.Transaction{
			ID:              uuid.NewString(),
			SourceWalletID:  req.sourceID,
			TargetWalletID:  req.targetID,
			Type:            req.typ,
			Amount:          req.amount,
			ConvertedAmount: converted,
			Note:            req.note,
			CreatedAt:       now,
		}

		if req.amount.GreaterThan(s.cfg.LargeTransactionThreshold) {
			txn.Status = ledger.StatusPending
			placeHold(&txn, src, dst)
			if err := tx.InsertTransaction(ctx, txn); err != nil {
				return err
			}
			for _, w := range []*ledger.Wallet{src, dst} {
				if w == nil {
					continue
				}
				if err := tx.SaveWallet(ctx, *w); err != nil {
					return err
				}
			}
			source, target = *src, derefWallet(dst)
			return nil
		}

		txn.Status = ledger.StatusApproved
		txn.ProcessedAt = &now
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		if err := settle(ctx, tx, txn, src, dst, now); err != nil {
			return err
		}
		source, target = *src, derefWallet(dst)
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, none, none, err
	}
	return txn, source, target, nil
}

func derefWallet(w *ledger.Wallet) ledger.Wallet {
	if w == nil {
		return ledger.Wallet{}
	}
	return *w
}

func (s *Service) address(ctx context.Context, userID string) string {
	if s.contacts == nil {
		return userID
	}
	addr, err := s.contacts.ContactAddress(ctx, userID)
	if err != nil || addr == "" {
		return userID
	}
	return addr
}

func (s *Service) send(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", zap.String("kind", msg.Kind), zap.Error(err))
	}
}

func (s *Service) notifyCreated(ctx context.Context, txn ledger.Transaction, source, target ledger.Wallet) {
	label := typeLabel(txn.Type)
	if txn.Status == ledger.StatusPending {
		s.send(ctx, notification.Message{
			Kind:        notification.KindTransactionHeld,
			Destination: s.address(ctx, source.OwnerID),
			Subject:     fmt.Sprintf("%s Pending Approval", label),
			Body:        describe(txn, source, "is awaiting manager approval"),
		})
		return
	}
	s.send(ctx, notification.Message{
		Kind:        notification.KindTransactionApproved,
		Destination: s.address(ctx, source.OwnerID),
		Subject:     fmt.Sprintf("%s Approved", label),
		Body:        describe(txn, source, "has been completed"),
	})
	if txn.Type == ledger.TypeTransfer && target.OwnerID != "" {
		s.notifyReceived(ctx, txn, target)
	}
}

func (s *Service) notifyReceived(ctx context.Context, txn ledger.Transaction, target ledger.Wallet) {
	s.send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: s.address(ctx, target.OwnerID),
		Subject:     "Transfer Received",
		Body: fmt.Sprintf("You received %s %s from wallet %s.\n\nTransaction ID: %s\n",
			creditAmount(txn).StringFixed(2), target.Currency, txn.SourceWalletID, txn.ID),
	})
}

func typeLabel(t ledger.TransactionType) string {
	switch t {
	case ledger.TypeDeposit:
		return "Deposit"
	case ledger.TypeWithdraw:
		return "Withdraw"
	default:
		return "Transfer"
	}
}

func describe(txn ledger.Transaction, w ledger.Wallet, outcome string) string {
	return fmt.Sprintf("Your %s request %s.\n\nTransaction ID: %s\nAmount: %s %s\nStatus: %s\nWallet: %s\n",
		typeLabel(txn.Type), outcome, txn.ID, txn.Amount.StringFixed(2), w.Currency, txn.Status, w.AccountNumber)
}
