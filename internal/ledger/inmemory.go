package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// InMemory is a concurrency-safe Store useful for unit tests and local development.
// Row locks are per-key mutexes; writes made inside WithTx are staged and only
// become visible when the unit of work commits.
type InMemory struct {
	mu           sync.RWMutex
	currencies   map[string]Currency
	wallets      map[string]Wallet
	accountNums  map[string]struct{}
	transactions map[string]Transaction
	entries      []Entry
	flags        []FraudFlag
	flagKeys     map[string]struct{}

	rowLocks sync.Map

	// commitHook lets tests simulate a failing commit.
	commitHook func() error
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		currencies:   make(map[string]Currency),
		wallets:      make(map[string]Wallet),
		accountNums:  make(map[string]struct{}),
		transactions: make(map[string]Transaction),
		flagKeys:     make(map[string]struct{}),
	}
}

func (s *InMemory) rowLock(key string) *sync.Mutex {
	m, _ := s.rowLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// WithTx runs fn as one atomic unit of work.
func (s *InMemory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		store:   s,
		held:    make(map[string]*sync.Mutex),
		wallets: make(map[string]*Wallet),
		txns:    make(map[string]Transaction),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *InMemory) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
		}
	}
	for id, w := range tx.wallets {
		s.wallets[id] = *w
	}
	for id, t := range tx.txns {
		s.transactions[id] = t
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

type memTx struct {
	store     *InMemory
	held      map[string]*sync.Mutex
	heldOrder []string
	wallets   map[string]*Wallet
	txns      map[string]Transaction
	entries   []Entry
}

func (t *memTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.store.rowLock(key)
	m.Lock()
	t.held[key] = m
	t.heldOrder = append(t.heldOrder, key)
}

func (t *memTx) release() {
	for i := len(t.heldOrder) - 1; i >= 0; i-- {
		t.held[t.heldOrder[i]].Unlock()
	}
}

func (t *memTx) LockWallets(_ context.Context, ids ...string) (map[string]*Wallet, error) {
	sorted := uniqueSorted(ids)
	out := make(map[string]*Wallet, len(sorted))
	for _, id := range sorted {
		t.lock("wallet:" + id)
		if w, ok := t.wallets[id]; ok {
			out[id] = w
			continue
		}
		t.store.mu.RLock()
		w, ok := t.store.wallets[id]
		t.store.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
		staged := w
		t.wallets[id] = &staged
		out[id] = &staged
	}
	return out, nil
}

func (t *memTx) LockTransaction(_ context.Context, id string) (Transaction, error) {
	t.lock("txn:" + id)
	if txn, ok := t.txns[id]; ok {
		return txn, nil
	}
	t.store.mu.RLock()
	txn, ok := t.store.transactions[id]
	t.store.mu.RUnlock()
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return txn, nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn Transaction) error {
	t.store.mu.RLock()
	_, exists := t.store.transactions[txn.ID]
	t.store.mu.RUnlock()
	if _, staged := t.txns[txn.ID]; exists || staged {
		return fmt.Errorf("%w: transaction %s already exists", ErrPersistence, txn.ID)
	}
	t.txns[txn.ID] = txn
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, txn Transaction) error {
	if _, ok := t.held["txn:"+txn.ID]; !ok {
		if _, staged := t.txns[txn.ID]; !staged {
			return fmt.Errorf("%w: transaction %s updated without lock", ErrPersistence, txn.ID)
		}
	}
	t.txns[txn.ID] = txn
	return nil
}

func (t *memTx) SaveWallet(_ context.Context, w Wallet) error {
	if _, ok := t.held["wallet:"+w.ID]; !ok {
		return fmt.Errorf("%w: wallet %s saved without lock", ErrPersistence, w.ID)
	}
	w.UpdatedAt = time.Now().UTC()
	staged := w
	t.wallets[w.ID] = &staged
	return nil
}

func (t *memTx) AppendEntry(_ context.Context, e Entry) error {
	if _, ok := t.held["wallet:"+e.WalletID]; !ok {
		return fmt.Errorf("%w: entry for unlocked wallet %s", ErrPersistence, e.WalletID)
	}
	t.entries = append(t.entries, e)
	return nil
}

func (s *InMemory) UpsertCurrency(_ context.Context, c Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.Code] = c
	return nil
}

func (s *InMemory) GetCurrency(_ context.Context, code string) (Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.currencies[code]
	if !ok {
		return Currency{}, fmt.Errorf("currency %s: %w", code, ErrNotFound)
	}
	return c, nil
}

func (s *InMemory) ListCurrencies(_ context.Context) ([]Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Currency, 0, len(s.currencies))
	for _, c := range s.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemory) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.ID]; exists {
		return fmt.Errorf("%w: wallet %s already exists", ErrPersistence, w.ID)
	}
	if _, taken := s.accountNums[w.AccountNumber]; taken {
		return ErrDuplicateAccountNumber
	}
	s.wallets[w.ID] = w
	s.accountNums[w.AccountNumber] = struct{}{}
	return nil
}

func (s *InMemory) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	return w, nil
}

func (s *InMemory) ListWalletsByOwner(_ context.Context, ownerID string) ([]Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Wallet
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) ListWallets(_ context.Context, limit int) ([]Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *InMemory) ListTransactions(_ context.Context, f TransactionFilter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, t := range s.transactions {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.WalletID != "" && t.SourceWalletID != f.WalletID && t.TargetWalletID != f.WalletID {
			continue
		}
		if f.OwnerID != "" && !s.ownsEitherSide(f.OwnerID, t) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) ownsEitherSide(ownerID string, t Transaction) bool {
	if w, ok := s.wallets[t.SourceWalletID]; ok && w.OwnerID == ownerID {
		return true
	}
	if w, ok := s.wallets[t.TargetWalletID]; ok && w.OwnerID == ownerID {
		return true
	}
	return false
}

func (s *InMemory) ListEntries(_ context.Context, walletID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) CountTransactionsByOwnerSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, t := range s.transactions {
		w, ok := s.wallets[t.SourceWalletID]
		if !ok || w.OwnerID != ownerID {
			continue
		}
		if !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) SumApprovedWithdrawalsSince(_ context.Context, walletID string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, t := range s.transactions {
		if t.SourceWalletID != walletID || t.Type != TypeWithdraw || t.Status != StatusApproved {
			continue
		}
		if t.ProcessedAt == nil || t.ProcessedAt.Before(since) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (s *InMemory) AddFraudFlag(_ context.Context, flag FraudFlag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := flag.UserID + "\x00" + flag.TransactionID + "\x00" + flag.Reason
	if _, exists := s.flagKeys[key]; exists {
		return false, nil
	}
	s.flagKeys[key] = struct{}{}
	s.flags = append(s.flags, flag)
	return true, nil
}

func (s *InMemory) ListFraudFlags(_ context.Context, f FraudFlagFilter) ([]FraudFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FraudFlag
	for i := len(s.flags) - 1; i >= 0; i-- {
		flag := s.flags[i]
		if f.UserID != "" && flag.UserID != f.UserID {
			continue
		}
		if f.Rule != "" && flag.Rule != f.Rule {
			continue
		}
		if !f.Since.IsZero() && flag.FlaggedAt.Before(f.Since) {
			continue
		}
		out = append(out, flag)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
