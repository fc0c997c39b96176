package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/conversion"
	"github.com/congo-pay/walletledger/internal/fraud"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/notification"
)

type testNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *testNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Kind)
	}
	return out
}

var (
	manager  = identity.User{ID: "manager-1", Role: identity.RoleManager}
	customer = identity.User{ID: "customer-1", Role: identity.RoleCustomer}
)

type fixture struct {
	store    *ledger.InMemory
	svc      *Service
	notifier *testNotifier
}

func newFixture(t *testing.T, opts ...func(*Deps)) fixture {
	t.Helper()
	store := ledger.NewInMemory()
	notifier := &testNotifier{}
	deps := Deps{
		Store:     store,
		Converter: conversion.NewTable(conversion.DefaultRates(), true),
		Notifier:  notifier,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := NewService(deps, Config{LargeTransactionThreshold: decimal.NewFromInt(100_000)})
	return fixture{store: store, svc: svc, notifier: notifier}
}

func (f fixture) wallet(t *testing.T, owner, currency string, balance int64) ledger.Wallet {
	t.Helper()
	ctx := context.Background()
	w := ledger.Wallet{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Currency:      currency,
		AccountNumber: uuid.NewString()[:16],
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateWallet(ctx, w))
	if balance > 0 {
		require.NoError(t, ledger.SeedBalance(ctx, f.store, w.ID, decimal.NewFromInt(balance)))
	}
	got, err := f.store.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	return got
}

func (f fixture) reload(t *testing.T, id string) ledger.Wallet {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (f fixture) entriesFor(t *testing.T, walletID, txnID string) []ledger.Entry {
	t.Helper()
	all, err := f.store.ListEntries(context.Background(), walletID)
	require.NoError(t, err)
	var out []ledger.Entry
	for _, e := range all {
		if e.TransactionID == txnID {
			out = append(out, e)
		}
	}
	return out
}

func amt(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, amt(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestTransferBelowThresholdAutoApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 1_000_000)
	b := f.wallet(t, "bob", "INR", 0)

	txn, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("50000")})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusApproved, txn.Status)
	require.NotNil(t, txn.ProcessedAt)
	require.True(t, txn.ConvertedAmount.Valid)
	assertDecimal(t, "50000", txn.ConvertedAmount.Decimal)
	assertDecimal(t, "950000", f.reload(t, a.ID).Balance)
	assertDecimal(t, "50000", f.reload(t, b.ID).Balance)

	debit := f.entriesFor(t, a.ID, txn.ID)
	credit := f.entriesFor(t, b.ID, txn.ID)
	require.Len(t, debit, 1)
	require.Len(t, credit, 1)
	assert.Equal(t, ledger.EntryDebit, debit[0].Type)
	assert.Equal(t, ledger.EntryCredit, credit[0].Type)
	assertDecimal(t, "950000", debit[0].BalanceAfter)

	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))
	require.NoError(t, ledger.Verify(ctx, f.store, b.ID))
	assert.Equal(t, []string{notification.KindTransactionApproved, notification.KindTransferReceived}, f.notifier.kinds())
}

func TestLargeWithdrawalHeldThenApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 2_000_000)

	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("200000")})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, txn.Status)
	assert.Nil(t, txn.ProcessedAt)

	held := f.reload(t, a.ID)
	assertDecimal(t, "2000000", held.Balance)
	assertDecimal(t, "200000", held.FrozenAmount)
	assertDecimal(t, "1800000", held.Available())
	assert.True(t, held.IsFrozen())
	assert.Empty(t, f.entriesFor(t, a.ID, txn.ID))

	approved, err := f.svc.Approve(ctx, manager, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, approved.Status)
	assert.Equal(t, manager.ID, approved.ApprovedBy)
	require.NotNil(t, approved.ProcessedAt)

	after := f.reload(t, a.ID)
	assertDecimal(t, "1800000", after.Balance)
	assertDecimal(t, "0", after.FrozenAmount)
	assert.False(t, after.IsFrozen())

	entries := f.entriesFor(t, a.ID, txn.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryDebit, entries[0].Type)
	assertDecimal(t, "1800000", entries[0].BalanceAfter)
	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))

	assert.Equal(t, []string{notification.KindTransactionHeld, notification.KindTransactionApproved}, f.notifier.kinds())
}

func TestLargeWithdrawalRejectedReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 2_000_000)

	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("200000")})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, manager, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRejected, rejected.Status)

	after := f.reload(t, a.ID)
	assertDecimal(t, "2000000", after.Balance)
	assertDecimal(t, "0", after.FrozenAmount)
	assert.Empty(t, f.entriesFor(t, a.ID, txn.ID))
	assert.Contains(t, f.notifier.kinds(), notification.KindTransactionRejected)
}

func TestResolvingTwiceIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 2_000_000)

	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("150000")})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, manager, txn.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, manager, txn.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Reject(ctx, manager, txn.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Len(t, f.entriesFor(t, a.ID, txn.ID), 1)
	assertDecimal(t, "1850000", f.reload(t, a.ID).Balance)

	// auto-approved rows are born terminal
	small, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("10")})
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, manager, small.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApprovalRequiresManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 2_000_000)
	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("300000")})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, customer, txn.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Reject(ctx, nil, txn.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ListPending(ctx, customer, 10)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(ctx, manager, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := f.svc.ListPending(ctx, manager, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID, pending[0].ID)
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 1_000)
	b := f.wallet(t, "bob", "INR", 0)

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero amount", func() error {
			_, err := f.svc.Deposit(ctx, DepositInput{RequestorID: "alice", WalletID: a.ID, Amount: decimal.Zero})
			return err
		}, ErrInvalidAmount},
		{"negative amount", func() error {
			_, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("-5")})
			return err
		}, ErrInvalidAmount},
		{"three decimals", func() error {
			_, err := f.svc.Deposit(ctx, DepositInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("1.005")})
			return err
		}, ErrInvalidAmount},
		{"transfer to self", func() error {
			_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: a.ID, Amount: amt("1")})
			return err
		}, ErrInvalidTarget},
		{"missing target", func() error {
			_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, Amount: amt("1")})
			return err
		}, ErrInvalidTarget},
		{"not owner", func() error {
			_, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "mallory", WalletID: a.ID, Amount: amt("1")})
			return err
		}, ErrNotOwner},
		{"insufficient", func() error {
			_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("1000.01")})
			return err
		}, ErrInsufficientFunds},
		{"unknown wallet", func() error {
			_, err := f.svc.Deposit(ctx, DepositInput{RequestorID: "alice", WalletID: uuid.NewString(), Amount: amt("1")})
			return err
		}, ErrNotFound},
		{"unknown target", func() error {
			_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: uuid.NewString(), Amount: amt("1")})
			return err
		}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), tc.want)
		})
	}

	assertDecimal(t, "1000", f.reload(t, a.ID).Balance)
	assertDecimal(t, "0", f.reload(t, b.ID).Balance)
	txns, err := f.store.ListTransactions(ctx, ledger.TransactionFilter{WalletID: a.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 1, "only the seed deposit exists")
}

func TestTransferConvertsCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 10_000)
	b := f.wallet(t, "bob", "USD", 0)

	txn, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("1000")})
	require.NoError(t, err)
	assertDecimal(t, "12", txn.ConvertedAmount.Decimal)
	assertDecimal(t, "9000", f.reload(t, a.ID).Balance)
	assertDecimal(t, "12", f.reload(t, b.ID).Balance)
}

func TestTransferStrictConversionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "EUR", 10_000)
	b := f.wallet(t, "bob", "BTC", 0)

	_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("100")})
	assert.ErrorIs(t, err, ErrConversionUnavailable)
	assertDecimal(t, "10000", f.reload(t, a.ID).Balance)
}

func TestHeldTransferCapsTargetHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 1_000_000)
	b := f.wallet(t, "bob", "INR", 1_000)

	txn, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("200000")})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, txn.Status)
	assertDecimal(t, "200000", txn.HeldSource)
	assertDecimal(t, "1000", txn.HeldTarget)

	target := f.reload(t, b.ID)
	assertDecimal(t, "1000", target.FrozenAmount)
	assertDecimal(t, "0", target.Available())

	_, err = f.svc.Approve(ctx, manager, txn.ID)
	require.NoError(t, err)

	source, target := f.reload(t, a.ID), f.reload(t, b.ID)
	assertDecimal(t, "800000", source.Balance)
	assertDecimal(t, "0", source.FrozenAmount)
	assertDecimal(t, "201000", target.Balance)
	assertDecimal(t, "0", target.FrozenAmount)
	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))
	require.NoError(t, ledger.Verify(ctx, f.store, b.ID))
}

func TestHeldDepositApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 0)

	txn, err := f.svc.Deposit(ctx, DepositInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("150000")})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, txn.Status)
	assertDecimal(t, "0", txn.HeldSource)
	assertDecimal(t, "0", f.reload(t, a.ID).Balance)

	_, err = f.svc.Approve(ctx, manager, txn.ID)
	require.NoError(t, err)
	assertDecimal(t, "150000", f.reload(t, a.ID).Balance)
	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))
}

func TestRejectReleasesOnlyItsOwnHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 500_000)

	first, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("150000")})
	require.NoError(t, err)
	second, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("120000")})
	require.NoError(t, err)
	assertDecimal(t, "270000", f.reload(t, a.ID).FrozenAmount)

	// a third large withdrawal cannot reuse held funds
	_, err = f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("240000")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.svc.Reject(ctx, manager, first.ID)
	require.NoError(t, err)
	assertDecimal(t, "120000", f.reload(t, a.ID).FrozenAmount)

	_, err = f.svc.Approve(ctx, manager, second.ID)
	require.NoError(t, err)
	w := f.reload(t, a.ID)
	assertDecimal(t, "380000", w.Balance)
	assertDecimal(t, "0", w.FrozenAmount)
}

func TestCommitFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 10_000)
	b := f.wallet(t, "bob", "INR", 0)

	ledger.FailCommits(f.store, errors.New("disk full"))
	_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "alice", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("100")})
	require.ErrorIs(t, err, ErrPersistence)
	ledger.FailCommits(f.store, nil)

	assertDecimal(t, "10000", f.reload(t, a.ID).Balance)
	assertDecimal(t, "0", f.reload(t, b.ID).Balance)
	entries, err := f.store.ListEntries(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.notifier.kinds())
}

func TestConcurrentTransfersConserveFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 50_000)
	b := f.wallet(t, "bob", "INR", 50_000)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := TransferInput{SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("250")}
			if i%2 == 1 {
				in.SourceWalletID, in.TargetWalletID = b.ID, a.ID
			}
			_, err := f.svc.Transfer(ctx, in)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	wa, wb := f.reload(t, a.ID), f.reload(t, b.ID)
	assertDecimal(t, "100000", wa.Balance.Add(wb.Balance))
	assertDecimal(t, "50000", wa.Balance)
	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))
	require.NoError(t, ledger.Verify(ctx, f.store, b.ID))
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 1_000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Withdraw(ctx, WithdrawInput{WalletID: a.ID, Amount: amt("100")})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	w := f.reload(t, a.ID)
	assertDecimal(t, "0", w.Balance)
	assert.False(t, w.Available().IsNegative())
}

func TestConcurrentResolutionSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 1_000_000)
	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("400000")})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Approve(ctx, manager, txn.ID)
			} else {
				_, err = f.svc.Reject(ctx, manager, txn.ID)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInvalidState)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	w := f.reload(t, a.ID)
	assertDecimal(t, "0", w.FrozenAmount)
	assert.LessOrEqual(t, len(f.entriesFor(t, a.ID, txn.ID)), 1)
	require.NoError(t, ledger.Verify(ctx, f.store, a.ID))
}

func TestFraudFlagsAfterCreationAndApproval(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Monitor = fraud.NewMonitor(d.Store, nil, nil, fraud.Config{
			AmountLimit:  decimal.NewFromInt(500_000),
			TxnCount:     100,
			Window:       10 * time.Minute,
			AdminAddress: "admin@walletapp.com",
		}, zap.NewNop())
	})
	ctx := context.Background()
	a := f.wallet(t, "alice", "INR", 2_000_000)

	txn, err := f.svc.Withdraw(ctx, WithdrawInput{RequestorID: "alice", WalletID: a.ID, Amount: amt("600000")})
	require.NoError(t, err)

	flags, err := f.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "alice", Rule: fraud.RuleHighValue})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, txn.ID, flags[0].TransactionID)

	_, err = f.svc.Approve(ctx, manager, txn.ID)
	require.NoError(t, err)

	flags, err = f.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "alice", Rule: fraud.RuleHighValue})
	require.NoError(t, err)
	assert.Len(t, flags, 1, "re-evaluation on approval is deduplicated")

	flags, err = f.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "alice", Rule: fraud.RuleLargeWithdrawals})
	require.NoError(t, err)
	assert.Len(t, flags, 1)
}

func TestVelocityFlagOnThirdTransaction(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Monitor = fraud.NewMonitor(d.Store, nil, nil, fraud.Config{
			AmountLimit: decimal.NewFromInt(500_000),
			TxnCount:    3,
			Window:      10 * time.Minute,
		}, nil)
	})
	ctx := context.Background()
	a := f.wallet(t, "carol", "INR", 0)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Deposit(ctx, DepositInput{RequestorID: "carol", WalletID: a.ID, Amount: amt("10")})
		require.NoError(t, err)
		flags, err := f.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "carol", Rule: fraud.RuleVelocity})
		require.NoError(t, err)
		if i < 2 {
			assert.Empty(t, flags, "no flag after transaction %d", i+1)
		} else {
			assert.Len(t, flags, 1, "one flag after transaction %d", i+1)
		}
	}
}

func TestHistoryVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "customer-1", "INR", 5_000)
	b := f.wallet(t, "bob", "INR", 0)
	_, err := f.svc.Transfer(ctx, TransferInput{RequestorID: "customer-1", SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: amt("10")})
	require.NoError(t, err)

	txns, err := f.svc.History(ctx, manager, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, ledger.TypeTransfer, txns[0].Type)

	_, err = f.svc.History(ctx, customer, b.ID, 10)
	assert.ErrorIs(t, err, ErrNotOwner)
	own, err := f.svc.History(ctx, customer, a.ID, 10)
	require.NoError(t, err)
	assert.Len(t, own, 2)
}

func TestErrorCodes(t *testing.T) {
	cases := map[error]string{
		ErrInsufficientFunds:     "insufficient_funds",
		ErrInvalidTarget:         "invalid_target",
		ErrInvalidAmount:         "invalid_amount",
		ErrNotFound:              "not_found",
		ErrInvalidState:          "invalid_state",
		ErrConversionUnavailable: "conversion_unavailable",
		ErrForbidden:             "forbidden",
		ErrNotOwner:              "not_owner",
		ErrPersistence:           "persistence_failure",
	}
	for err, want := range cases {
		_, code := ErrorCode(err)
		assert.Equal(t, want, code)
	}
	_, code := ErrorCode(errors.New("boom"))
	assert.Equal(t, "internal_error", code)
}
