package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnreconciled means a wallet's entries do not replay to its balance.
var ErrUnreconciled = errors.New("ledger entries do not match wallet balance")

// Replay sums signed entry amounts in order and checks each balance_after snapshot.
func Replay(entries []Entry) (decimal.Decimal, error) {
	running := decimal.Zero
	for _, e := range entries {
		running = running.Add(e.Signed())
		if !running.Equal(e.BalanceAfter) {
			return running, fmt.Errorf("%w: entry %s expected balance_after %s, replay gives %s",
				ErrUnreconciled, e.ID, e.BalanceAfter, running)
		}
	}
	return running, nil
}

// Verify replays the wallet's entries against its stored balance.
func Verify(ctx context.Context, s Store, walletID string) error {
	w, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return err
	}
	entries, err := s.ListEntries(ctx, walletID)
	if err != nil {
		return err
	}
	replayed, err := Replay(entries)
	if err != nil {
		return err
	}
	if !replayed.Equal(w.Balance) {
		return fmt.Errorf("%w: wallet %s balance %s, replay gives %s", ErrUnreconciled, walletID, w.Balance, replayed)
	}
	return nil
}
