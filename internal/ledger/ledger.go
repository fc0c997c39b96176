package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned for unknown wallet, transaction or currency ids.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps failures of the underlying store. No partial state
	// is visible when it is returned from WithTx.
	ErrPersistence = errors.New("persistence failure")

	// ErrDuplicateAccountNumber signals an account number collision on wallet creation.
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
)

// TransactionType enumerates the supported money movements.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeWithdraw TransactionType = "WITHDRAW"
	TypeTransfer TransactionType = "TRANSFER"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// EntryType marks a ledger entry as a credit or a debit.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Currency is immutable reference data.
type Currency struct {
	Code string
	Name string
}

// Wallet is a per-user, per-currency balance holding account.
type Wallet struct {
	ID            string
	OwnerID       string
	Currency      string
	AccountNumber string
	Balance       decimal.Decimal
	FrozenAmount  decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available is the spendable part of the balance.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.FrozenAmount)
}

// IsFrozen reports whether any funds are held against pending transactions.
func (w Wallet) IsFrozen() bool {
	return w.FrozenAmount.IsPositive()
}

// Transaction is a single money movement request and its resolution.
//
// HeldSource and HeldTarget record what was frozen at creation so that
// resolving the transaction releases exactly that share.
type Transaction struct {
	ID              string
	SourceWalletID  string
	TargetWalletID  string
	Type            TransactionType
	Amount          decimal.Decimal
	ConvertedAmount decimal.NullDecimal
	Status          Status
	HeldSource      decimal.Decimal
	HeldTarget      decimal.Decimal
	Note            string
	ApprovedBy      string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// WalletIDs returns the wallets the transaction touches.
func (t Transaction) WalletIDs() []string {
	if t.TargetWalletID == "" {
		return []string{t.SourceWalletID}
	}
	return []string{t.SourceWalletID, t.TargetWalletID}
}

// Entry is an append-only audit record of one balance change.
type Entry struct {
	ID            string
	TransactionID string
	WalletID      string
	Type          EntryType
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}

// Signed returns the entry amount with debits negated.
func (e Entry) Signed() decimal.Decimal {
	if e.Type == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// FraudFlag is an advisory record raised by the fraud monitor.
type FraudFlag struct {
	ID            string
	UserID        string
	TransactionID string
	Rule          string
	Reason        string
	FlaggedAt     time.Time
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	Status   Status
	WalletID string // matches source or target
	OwnerID  string // matches the owner of source or target
	Limit    int
}

// FraudFlagFilter narrows ListFraudFlags.
type FraudFlagFilter struct {
	UserID string
	Rule   string
	Since  time.Time
	Limit  int
}

// Tx is the set of writes available inside one atomic unit of work.
type Tx interface {
	// LockWallets takes exclusive row locks in ascending id order and returns
	// mutable copies keyed by id.
	LockWallets(ctx context.Context, ids ...string) (map[string]*Wallet, error)
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	InsertTransaction(ctx context.Context, txn Transaction) error
	UpdateTransaction(ctx context.Context, txn Transaction) error
	SaveWallet(ctx context.Context, w Wallet) error
	AppendEntry(ctx context.Context, e Entry) error
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	UpsertCurrency(ctx context.Context, c Currency) error
	GetCurrency(ctx context.Context, code string) (Currency, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)

	CreateWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)
	ListWalletsByOwner(ctx context.Context, ownerID string) ([]Wallet, error)
	ListWallets(ctx context.Context, limit int) ([]Wallet, error)

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	ListEntries(ctx context.Context, walletID string) ([]Entry, error)

	CountTransactionsByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	SumApprovedWithdrawalsSince(ctx context.Context, walletID string, since time.Time) (decimal.Decimal, error)

	// AddFraudFlag stores the flag unless one already exists for the same
	// (user, transaction, reason). created is false for a suppressed duplicate.
	AddFraudFlag(ctx context.Context, flag FraudFlag) (created bool, err error)
	ListFraudFlags(ctx context.Context, filter FraudFlagFilter) ([]FraudFlag, error)
}
