package fraud

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

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/notification"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (c *captureNotifier) Send(_ context.Context, m notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

type staticContacts map[string]string

func (s staticContacts) ContactAddress(_ context.Context, userID string) (string, error) {
	if addr, ok := s[userID]; ok {
		return addr, nil
	}
	return "", errors.New("unknown user")
}

var testConfig = Config{
	AmountLimit:  decimal.NewFromInt(500_000),
	TxnCount:     3,
	Window:       10 * time.Minute,
	AdminAddress: "admin@walletapp.com",
}

func newWallet(t *testing.T, s *ledger.InMemory, owner string) ledger.Wallet {
	t.Helper()
	w := ledger.Wallet{ID: uuid.NewString(), OwnerID: owner, Currency: "INR", AccountNumber: uuid.NewString()[:16], CreatedAt: time.Now()}
	require.NoError(t, s.CreateWallet(context.Background(), w))
	return w
}

func insertTxn(t *testing.T, s *ledger.InMemory, txn ledger.Transaction) ledger.Transaction {
	t.Helper()
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, txn)
	})
	require.NoError(t, err)
	return txn
}

func TestHighValueFlagIsDeduplicated(t *testing.T) {
	store := ledger.NewInMemory()
	notifier := &captureNotifier{}
	m := NewMonitor(store, staticContacts{"alice": "alice@example.com"}, notifier, testConfig, zap.NewNop())
	w := newWallet(t, store, "alice")

	txn := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeWithdraw, Amount: decimal.NewFromInt(500_000), Status: ledger.StatusPending})

	assert.True(t, m.CheckHighValue(context.Background(), txn, "alice"))
	assert.False(t, m.CheckHighValue(context.Background(), txn, "alice"))

	flags, err := store.ListFraudFlags(context.Background(), ledger.FraudFlagFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, RuleHighValue, flags[0].Rule)
	assert.Equal(t, txn.ID, flags[0].TransactionID)

	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, "alice@example.com", notifier.msgs[0].Destination)
	assert.Equal(t, "admin@walletapp.com", notifier.msgs[1].Destination)
	assert.Equal(t, notification.KindFraudAlert, notifier.msgs[0].Kind)
}

func TestHighValueBelowLimitNotFlagged(t *testing.T) {
	store := ledger.NewInMemory()
	m := NewMonitor(store, nil, nil, testConfig, nil)
	w := newWallet(t, store, "bob")
	txn := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeDeposit, Amount: decimal.RequireFromString("499999.99"), Status: ledger.StatusApproved})

	assert.False(t, m.CheckHighValue(context.Background(), txn, "bob"))
}

func TestVelocityFlagsThirdTransactionOnce(t *testing.T) {
	store := ledger.NewInMemory()
	m := NewMonitor(store, nil, &captureNotifier{}, testConfig, nil)
	w := newWallet(t, store, "carol")
	ctx := context.Background()

	var txns []ledger.Transaction
	for i := 0; i < 4; i++ {
		txn := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeDeposit, Amount: decimal.NewFromInt(100), Status: ledger.StatusApproved})
		txns = append(txns, txn)
		flagged := m.CheckVelocity(ctx, txn, "carol")
		switch i {
		case 2:
			assert.True(t, flagged, "third transaction must be flagged")
		default:
			assert.False(t, flagged, "transaction %d must not be flagged", i+1)
		}
	}

	// re-evaluating the flagged transaction is a no-op
	assert.False(t, m.CheckVelocity(ctx, txns[2], "carol"))

	flags, err := store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "carol", Rule: RuleVelocity})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "3 transactions within 10 minutes", flags[0].Reason)
}

func TestVelocityIgnoresTransactionsOutsideWindow(t *testing.T) {
	store := ledger.NewInMemory()
	m := NewMonitor(store, nil, nil, testConfig, nil)
	w := newWallet(t, store, "dave")
	old := time.Now().Add(-time.Hour)
	insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeDeposit, Amount: decimal.NewFromInt(1), Status: ledger.StatusApproved, CreatedAt: old})
	insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeDeposit, Amount: decimal.NewFromInt(1), Status: ledger.StatusApproved, CreatedAt: old})
	txn := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeDeposit, Amount: decimal.NewFromInt(1), Status: ledger.StatusApproved})

	assert.False(t, m.CheckVelocity(context.Background(), txn, "dave"))
}

func TestLargeWithdrawalsOverTwentyFourHours(t *testing.T) {
	store := ledger.NewInMemory()
	m := NewMonitor(store, nil, nil, testConfig, nil)
	w := newWallet(t, store, "erin")
	ctx := context.Background()

	recent := time.Now().Add(-2 * time.Hour)
	stale := time.Now().Add(-48 * time.Hour)
	insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeWithdraw, Amount: decimal.NewFromInt(400_000), Status: ledger.StatusApproved, ProcessedAt: &stale})
	first := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeWithdraw, Amount: decimal.NewFromInt(300_000), Status: ledger.StatusApproved, ProcessedAt: &recent})

	assert.False(t, m.CheckLargeWithdrawals(ctx, first, "erin"))

	now := time.Now()
	second := insertTxn(t, store, ledger.Transaction{SourceWalletID: w.ID, Type: ledger.TypeWithdraw, Amount: decimal.NewFromInt(250_000), Status: ledger.StatusApproved, ProcessedAt: &now})
	assert.True(t, m.CheckLargeWithdrawals(ctx, second, "erin"))

	flags, err := store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: "erin"})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, RuleLargeWithdrawals, flags[0].Rule)
}

type failingStore struct{ ledger.Store }

func (failingStore) CountTransactionsByOwnerSince(context.Context, string, time.Time) (int, error) {
	return 0, ledger.ErrPersistence
}

func (failingStore) AddFraudFlag(context.Context, ledger.FraudFlag) (bool, error) {
	return false, ledger.ErrPersistence
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	m := NewMonitor(failingStore{}, nil, nil, testConfig, nil)
	txn := ledger.Transaction{ID: "t1", Amount: decimal.NewFromInt(900_000)}

	assert.NotPanics(t, func() { m.Evaluate(context.Background(), txn, "frank") })
	assert.False(t, m.CheckHighValue(context.Background(), txn, "frank"))
}
