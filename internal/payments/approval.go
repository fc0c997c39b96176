package payments

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/notification"
)

// Actor is whoever resolves a held transaction.
type Actor interface {
	ActorID() string
	CanApprove() bool
}

type decision string

const (
	decisionApprove decision = "approve"
	decisionReject  decision = "reject"
)

// Approve settles a PENDING transaction after releasing its hold. If the
// funds are no longer available the whole resolution rolls back and the
// transaction stays PENDING.
func (s *Service) Approve(ctx context.Context, actor Actor, txnID string) (ledger.Transaction, error) {
	return s.resolve(ctx, actor, txnID, decisionApprove)
}

// Reject releases the hold of a PENDING transaction without moving funds.
func (s *Service) Reject(ctx context.Context, actor Actor, txnID string) (ledger.Transaction, error) {
	return s.resolve(ctx, actor, txnID, decisionReject)
}

func (s *Service) resolve(ctx context.Context, actor Actor, txnID string, d decision) (ledger.Transaction, error) {
	start := time.Now()
	op := string(d)
	txn, source, target, err := s.applyDecision(ctx, actor, txnID, d)
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		_, code := ErrorCode(err)
		metrics.EngineErrors.WithLabelValues(op, code).Inc()
		s.logger.Info("resolution refused",
			zap.String("transaction_id", txnID),
			zap.String("decision", op),
			zap.String("code", code),
			zap.Error(err),
		)
		return ledger.Transaction{}, err
	}

	metrics.TransactionsResolved.WithLabelValues(string(txn.Type), op).Inc()
	s.logger.Info("transaction resolved",
		zap.String("transaction_id", txn.ID),
		zap.String("status", string(txn.Status)),
		zap.String("approved_by", txn.ApprovedBy),
	)

	if s.monitor != nil {
		s.monitor.EvaluateResolved(ctx, txn, source.OwnerID)
	}
	s.notifyResolved(ctx, txn, source, target)
	return txn, nil
}

func (s *Service) applyDecision(ctx context.Context, actor Actor, txnID string, d decision) (ledger.Transaction, ledger.Wallet, ledger.Wallet, error) {
	var none ledger.Wallet
	if actor == nil || !actor.CanApprove() {
		return ledger.Transaction{}, none, none, ErrForbidden
	}

	var (
		txn            ledger.Transaction
		source, target ledger.Wallet
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		txn, err = tx.LockTransaction(ctx, txnID)
		if err != nil {
			return err
		}
		if txn.Status != ledger.StatusPending {
			return ErrInvalidState
		}
		wallets, err := tx.LockWallets(ctx, txn.WalletIDs()...)
		if err != nil {
			return err
		}
		src, dst := wallets[txn.SourceWalletID], wallets[txn.TargetWalletID]
		if err := releaseHold(txn, src, dst); err != nil {
			return err
		}

		now := s.now().UTC()
		txn.ApprovedBy = actor.ActorID()
		txn.ProcessedAt = &now
		if d == decisionApprove {
			txn.Status = ledger.StatusApproved
			if err := settle(ctx, tx, txn, src, dst, now); err != nil {
				return err
			}
		} else {
			txn.Status = ledger.StatusRejected
			for _, w := range []*ledger.Wallet{src, dst} {
				if w == nil {
					continue
				}
				if err := tx.SaveWallet(ctx, *w); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
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

func (s *Service) notifyResolved(ctx context.Context, txn ledger.Transaction, source, target ledger.Wallet) {
	label := typeLabel(txn.Type)
	if txn.Status == ledger.StatusRejected {
		s.send(ctx, notification.Message{
			Kind:        notification.KindTransactionRejected,
			Destination: s.address(ctx, source.OwnerID),
			Subject:     label + " Rejected",
			Body:        describe(txn, source, "was rejected by a manager and the held funds were released"),
		})
		return
	}
	s.send(ctx, notification.Message{
		Kind:        notification.KindTransactionApproved,
		Destination: s.address(ctx, source.OwnerID),
		Subject:     label + " Approved",
		Body:        describe(txn, source, "was approved by a manager"),
	})
	if txn.Type == ledger.TypeTransfer && target.OwnerID != "" {
		s.notifyReceived(ctx, txn, target)
	}
}

// ListPending returns transactions awaiting a manager decision, newest first.
func (s *Service) ListPending(ctx context.Context, actor Actor, limit int) ([]ledger.Transaction, error) {
	if actor == nil || !actor.CanApprove() {
		return nil, ErrForbidden
	}
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{Status: ledger.StatusPending, Limit: limit})
}

// History lists transactions touching a wallet, newest first. Managers see
// any wallet; other actors only their own.
func (s *Service) History(ctx context.Context, actor Actor, walletID string, limit int) ([]ledger.Transaction, error) {
	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if actor == nil || (!actor.CanApprove() && actor.ActorID() != w.OwnerID) {
		return nil, ErrNotOwner
	}
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{WalletID: walletID, Limit: limit})
}

// ListFraudFlags exposes raised flags to managers.
func (s *Service) ListFraudFlags(ctx context.Context, actor Actor, filter ledger.FraudFlagFilter) ([]ledger.FraudFlag, error) {
	if actor == nil || !actor.CanApprove() {
		return nil, ErrForbidden
	}
	return s.store.ListFraudFlags(ctx, filter)
}
