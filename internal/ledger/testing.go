package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that credits a wallet through an approved
// deposit so the seeded funds are backed by a ledger entry.
func SeedBalance(ctx context.Context, s Store, walletID string, amount decimal.Decimal) error {
	return s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		wallets, err := tx.LockWallets(ctx, walletID)
		if err != nil {
			return err
		}
		w := wallets[walletID]
		now := time.Now().UTC()
		txn := Transaction{
			ID:             uuid.NewString(),
			SourceWalletID: walletID,
			Type:           TypeDeposit,
			Amount:         amount,
			Status:         StatusApproved,
			Note:           "seed",
			CreatedAt:      now,
			ProcessedAt:    &now,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		w.Balance = w.Balance.Add(amount)
		if err := tx.SaveWallet(ctx, *w); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, Entry{
			ID:            NewSortableID(now),
			TransactionID: txn.ID,
			WalletID:      walletID,
			Type:          EntryCredit,
			Amount:        amount,
			BalanceAfter:  w.Balance,
			CreatedAt:     now,
		})
	})
}

// FailCommits makes every subsequent commit of the in-memory store fail with err.
// Passing nil restores normal behaviour.
func FailCommits(s *InMemory, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.commitHook = nil
		return
	}
	s.commitHook = func() error { return err }
}
