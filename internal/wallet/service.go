package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/ledger"
)

const (
	accountNumberDigits = 16
	accountNumberTries  = 5
	dashboardTxnLimit   = 10
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrNotOwner        = errors.New("not owner of wallet")
)

// Viewer is whoever reads a wallet. Managers may read any wallet.
type Viewer interface {
	ActorID() string
	CanApprove() bool
}

// Service exposes wallet operations backed by the ledger store.
type Service struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions a wallet with a freshly generated account number.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Wallet, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Currency))
	if _, err := s.store.GetCurrency(ctx, code); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Wallet{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, input.Currency)
		}
		return ledger.Wallet{}, err
	}

	now := time.Now().UTC()
	w := ledger.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Currency:  code,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 1; ; attempt++ {
		number, err := newAccountNumber()
		if err != nil {
			return ledger.Wallet{}, err
		}
		w.AccountNumber = number
		err = s.store.CreateWallet(ctx, w)
		if err == nil {
			break
		}
		if !errors.Is(err, ledger.ErrDuplicateAccountNumber) || attempt == accountNumberTries {
			return ledger.Wallet{}, err
		}
		s.logger.Debug("account number collision, retrying", zap.Int("attempt", attempt))
	}

	s.logger.Info("wallet created",
		zap.String("wallet_id", w.ID),
		zap.String("owner_id", w.OwnerID),
		zap.String("currency", w.Currency),
	)
	return w, nil
}

func newAccountNumber() (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < accountNumberDigits; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// Get retrieves a wallet the viewer may see.
func (s *Service) Get(ctx context.Context, viewer Viewer, id string) (ledger.Wallet, error) {
	w, err := s.store.GetWallet(ctx, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if viewer != nil && !viewer.CanApprove() && viewer.ActorID() != w.OwnerID {
		return ledger.Wallet{}, ErrNotOwner
	}
	return w, nil
}

// ListByOwner returns the owner's wallets, oldest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Wallet, error) {
	return s.store.ListWalletsByOwner(ctx, ownerID)
}

// ListAll returns every wallet for managers.
func (s *Service) ListAll(ctx context.Context, limit int) ([]ledger.Wallet, error) {
	return s.store.ListWallets(ctx, limit)
}

// Balance returns balance, frozen and available amounts.
func (s *Service) Balance(ctx context.Context, viewer Viewer, id string) (Balance, error) {
	w, err := s.Get(ctx, viewer, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		WalletID:  w.ID,
		Currency:  w.Currency,
		Balance:   w.Balance,
		Frozen:    w.FrozenAmount,
		Available: w.Available(),
		IsFrozen:  w.IsFrozen(),
		AsOf:      time.Now().UTC(),
	}, nil
}

// GetLedger returns the wallet's ledger entries in posting order.
func (s *Service) GetLedger(ctx context.Context, viewer Viewer, id string) ([]ledger.Entry, error) {
	if _, err := s.Get(ctx, viewer, id); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, id)
}

// Dashboard gathers the owner's wallets, latest transactions and fraud flags.
func (s *Service) Dashboard(ctx context.Context, ownerID string) (Dashboard, error) {
	wallets, err := s.store.ListWalletsByOwner(ctx, ownerID)
	if err != nil {
		return Dashboard{}, err
	}
	txns, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{OwnerID: ownerID, Limit: dashboardTxnLimit})
	if err != nil {
		return Dashboard{}, err
	}
	flags, err := s.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: ownerID})
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Wallets: wallets, Transactions: txns, FraudFlags: flags}, nil
}

// Currencies lists the supported currencies.
func (s *Service) Currencies(ctx context.Context) ([]ledger.Currency, error) {
	return s.store.ListCurrencies(ctx)
}

// InstallCurrencies upserts reference currencies.
func (s *Service) InstallCurrencies(ctx context.Context, currencies []ledger.Currency) error {
	for _, c := range currencies {
		if err := s.store.UpsertCurrency(ctx, c); err != nil {
			return fmt.Errorf("install currency %s: %w", c.Code, err)
		}
	}
	return nil
}
