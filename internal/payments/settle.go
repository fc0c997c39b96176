package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// settle applies the balance mutation of an approved transaction and writes
// one ledger entry per leg. It is the only place balances change and must run
// inside the unit of work that sets the transaction to APPROVED.
func settle(ctx context.Context, tx ledger.Tx, txn ledger.Transaction, source, target *ledger.Wallet, at time.Time) error {
	switch txn.Type {
	case ledger.TypeDeposit:
		return post(ctx, tx, txn.ID, source, ledger.EntryCredit, txn.Amount, at)
	case ledger.TypeWithdraw:
		if source.Available().LessThan(txn.Amount) {
			return ErrInsufficientFunds
		}
		return post(ctx, tx, txn.ID, source, ledger.EntryDebit, txn.Amount, at)
	case ledger.TypeTransfer:
		if target == nil {
			return ErrInvalidTarget
		}
		if source.Available().LessThan(txn.Amount) {
			return ErrInsufficientFunds
		}
		if err := post(ctx, tx, txn.ID, source, ledger.EntryDebit, txn.Amount, at); err != nil {
			return err
		}
		return post(ctx, tx, txn.ID, target, ledger.EntryCredit, creditAmount(txn), at)
	default:
		return fmt.Errorf("unknown transaction type %q", txn.Type)
	}
}

func post(ctx context.Context, tx ledger.Tx, txnID string, w *ledger.Wallet, kind ledger.EntryType, amount decimal.Decimal, at time.Time) error {
	if kind == ledger.EntryDebit {
		w.Balance = w.Balance.Sub(amount)
	} else {
		w.Balance = w.Balance.Add(amount)
	}
	if err := tx.SaveWallet(ctx, *w); err != nil {
		return err
	}
	return tx.AppendEntry(ctx, ledger.Entry{
		ID:            ledger.NewSortableID(at),
		TransactionID: txnID,
		WalletID:      w.ID,
		Type:          kind,
		Amount:        amount,
		BalanceAfter:  w.Balance,
		CreatedAt:     at,
	})
}

// creditAmount is what the target of a transfer receives.
func creditAmount(txn ledger.Transaction) decimal.Decimal {
	if txn.ConvertedAmount.Valid {
		return txn.ConvertedAmount.Decimal
	}
	return txn.Amount
}

// placeHold freezes funds for a transaction entering PENDING and records the
// held shares on the transaction. Debit legs hold the full amount, which the
// caller has already checked against the available balance. Credit legs hold
// at most what the wallet has available so available never goes negative.
func placeHold(txn *ledger.Transaction, source, target *ledger.Wallet) {
	switch txn.Type {
	case ledger.TypeDeposit:
		txn.HeldSource = cappedHold(txn.Amount, source)
	case ledger.TypeWithdraw:
		txn.HeldSource = txn.Amount
	case ledger.TypeTransfer:
		txn.HeldSource = txn.Amount
		txn.HeldTarget = cappedHold(creditAmount(*txn), target)
	}
	source.FrozenAmount = source.FrozenAmount.Add(txn.HeldSource)
	if target != nil {
		target.FrozenAmount = target.FrozenAmount.Add(txn.HeldTarget)
	}
}

func cappedHold(want decimal.Decimal, w *ledger.Wallet) decimal.Decimal {
	available := decimal.Max(w.Available(), decimal.Zero)
	return decimal.Min(want, available)
}

// releaseHold undoes exactly what placeHold froze for txn.
func releaseHold(txn ledger.Transaction, source, target *ledger.Wallet) error {
	if err := unfreeze(source, txn.HeldSource); err != nil {
		return err
	}
	if target != nil {
		return unfreeze(target, txn.HeldTarget)
	}
	return nil
}

func unfreeze(w *ledger.Wallet, amount decimal.Decimal) error {
	next := w.FrozenAmount.Sub(amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: wallet %s frozen %s cannot release %s", ErrInvalidState, w.ID, w.FrozenAmount, amount)
	}
	w.FrozenAmount = next
	return nil
}
