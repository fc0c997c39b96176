package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

// PostgresStore persists the ledger in PostgreSQL. Balance mutations run in a
// single database transaction holding SELECT ... FOR UPDATE row locks.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// WithTx runs fn inside a database transaction and commits when it returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const walletColumns = `id, owner_id, currency, account_number, balance, frozen_amount, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.AccountNumber, &w.Balance, &w.FrozenAmount, &w.CreatedAt, &w.UpdatedAt)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, err
}

func (t *pgTx) LockWallets(ctx context.Context, ids ...string) (map[string]*Wallet, error) {
	sorted := uniqueSorted(ids)
	rows, err := t.tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, persistErr("lock wallets", err)
	}
	defer rows.Close()

	out := make(map[string]*Wallet, len(sorted))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, persistErr("scan wallet", err)
		}
		out[w.ID] = &w
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("lock wallets", err)
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
	}
	return out, nil
}

const transactionColumns = `id, source_wallet_id, COALESCE(target_wallet_id, ''), type, amount, converted_amount, status,
        held_source, held_target, note, COALESCE(approved_by, ''), created_at, processed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.SourceWalletID, &t.TargetWalletID, &t.Type, &t.Amount, &t.ConvertedAmount, &t.Status,
		&t.HeldSource, &t.HeldTarget, &t.Note, &t.ApprovedBy, &t.CreatedAt, &t.ProcessedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	if t.ProcessedAt != nil {
		p := t.ProcessedAt.UTC()
		t.ProcessedAt = &p
	}
	return t, err
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	txn, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return Transaction{}, persistErr("lock transaction", err)
	}
	return txn, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (id, source_wallet_id, target_wallet_id, type, amount, converted_amount,
        status, held_source, held_target, note, approved_by, created_at, processed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.SourceWalletID, nullable(txn.TargetWalletID), string(txn.Type), txn.Amount, txn.ConvertedAmount,
		string(txn.Status), txn.HeldSource, txn.HeldTarget, txn.Note, nullable(txn.ApprovedBy), txn.CreatedAt.UTC(), txn.ProcessedAt)
	if err != nil {
		return persistErr("insert transaction", err)
	}
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, txn Transaction) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions SET status = $2, approved_by = $3, processed_at = $4, note = $5
        WHERE id = $1`, txn.ID, string(txn.Status), nullable(txn.ApprovedBy), txn.ProcessedAt, txn.Note)
	if err != nil {
		return persistErr("update transaction", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) SaveWallet(ctx context.Context, w Wallet) error {
	_, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, frozen_amount = $3, updated_at = now() WHERE id = $1`,
		w.ID, w.Balance, w.FrozenAmount)
	if err != nil {
		return persistErr("save wallet", err)
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e Entry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ledger_entries (id, transaction_id, wallet_id, entry_type, amount, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TransactionID, e.WalletID, string(e.Type), e.Amount, e.BalanceAfter, e.CreatedAt.UTC())
	if err != nil {
		return persistErr("append entry", err)
	}
	return nil
}

// UpsertCurrency inserts or renames a currency.
func (s *PostgresStore) UpsertCurrency(ctx context.Context, c Currency) error {
	_, err := s.db.Exec(ctx, `INSERT INTO currencies (code, name) VALUES ($1, $2)
        ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`, c.Code, c.Name)
	if err != nil {
		return persistErr("upsert currency", err)
	}
	return nil
}

// GetCurrency fetches a currency by code.
func (s *PostgresStore) GetCurrency(ctx context.Context, code string) (Currency, error) {
	var c Currency
	if err := s.db.QueryRow(ctx, `SELECT code, name FROM currencies WHERE code = $1`, code).Scan(&c.Code, &c.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Currency{}, fmt.Errorf("currency %s: %w", code, ErrNotFound)
		}
		return Currency{}, persistErr("get currency", err)
	}
	return c, nil
}

// ListCurrencies returns all currencies ordered by code.
func (s *PostgresStore) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := s.db.Query(ctx, `SELECT code, name FROM currencies ORDER BY code`)
	if err != nil {
		return nil, persistErr("list currencies", err)
	}
	defer rows.Close()
	var out []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, persistErr("scan currency", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateWallet inserts a wallet row.
func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.OwnerID, w.Currency, w.AccountNumber, w.Balance, w.FrozenAmount, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "account_number") {
			return ErrDuplicateAccountNumber
		}
		return persistErr("create wallet", err)
	}
	return nil
}

// GetWallet fetches a wallet without locking it.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	w, err := scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
		return Wallet{}, persistErr("get wallet", err)
	}
	return w, nil
}

// ListWalletsByOwner returns the owner's wallets, oldest first.
func (s *PostgresStore) ListWalletsByOwner(ctx context.Context, ownerID string) ([]Wallet, error) {
	rows, err := s.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, persistErr("list wallets", err)
	}
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, persistErr("scan wallet", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListWallets returns all wallets, oldest first.
func (s *PostgresStore) ListWallets(ctx context.Context, limit int) ([]Wallet, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, persistErr("list wallets", err)
	}
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, persistErr("scan wallet", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetTransaction fetches a transaction by id.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return Transaction{}, persistErr("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.WalletID != "" {
		args = append(args, f.WalletID)
		where = append(where, fmt.Sprintf("(source_wallet_id = $%d OR target_wallet_id = $%d)", len(args), len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf(`(source_wallet_id IN (SELECT id FROM wallets WHERE owner_id = $%d)
            OR target_wallet_id IN (SELECT id FROM wallets WHERE owner_id = $%d))`, len(args), len(args)))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list transactions", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, persistErr("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEntries returns a wallet's ledger entries in posting order.
func (s *PostgresStore) ListEntries(ctx context.Context, walletID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, transaction_id, wallet_id, entry_type, amount, balance_after, created_at
        FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, persistErr("list entries", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Type, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, persistErr("scan entry", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountTransactionsByOwnerSince counts transactions sourced from any wallet of the owner.
func (s *PostgresStore) CountTransactionsByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions t
        INNER JOIN wallets w ON w.id = t.source_wallet_id
        WHERE w.owner_id = $1 AND t.created_at >= $2`, ownerID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, persistErr("count transactions", err)
	}
	return n, nil
}

// SumApprovedWithdrawalsSince totals approved withdrawals processed since the given time.
func (s *PostgresStore) SumApprovedWithdrawalsSince(ctx context.Context, walletID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
        WHERE source_wallet_id = $1 AND type = 'WITHDRAW' AND status = 'APPROVED' AND processed_at >= $2`,
		walletID, since.UTC()).Scan(&total)
	if err != nil {
		return decimal.Zero, persistErr("sum withdrawals", err)
	}
	return total, nil
}

// AddFraudFlag inserts a flag; the unique index makes concurrent duplicates converge.
func (s *PostgresStore) AddFraudFlag(ctx context.Context, flag FraudFlag) (bool, error) {
	cmd, err := s.db.Exec(ctx, `INSERT INTO fraud_flags (id, user_id, transaction_id, rule, reason, flagged_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, transaction_id, reason) DO NOTHING`,
		flag.ID, flag.UserID, flag.TransactionID, flag.Rule, flag.Reason, flag.FlaggedAt.UTC())
	if err != nil {
		return false, persistErr("add fraud flag", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// ListFraudFlags returns flags newest first.
func (s *PostgresStore) ListFraudFlags(ctx context.Context, f FraudFlagFilter) ([]FraudFlag, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Rule != "" {
		args = append(args, f.Rule)
		where = append(where, fmt.Sprintf("rule = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		where = append(where, fmt.Sprintf("flagged_at >= $%d", len(args)))
	}
	query := `SELECT id, user_id, transaction_id, rule, reason, flagged_at FROM fraud_flags`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY flagged_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list fraud flags", err)
	}
	defer rows.Close()
	var out []FraudFlag
	for rows.Next() {
		var fl FraudFlag
		if err := rows.Scan(&fl.ID, &fl.UserID, &fl.TransactionID, &fl.Rule, &fl.Reason, &fl.FlaggedAt); err != nil {
			return nil, persistErr("scan fraud flag", err)
		}
		fl.FlaggedAt = fl.FlaggedAt.UTC()
		out = append(out, fl)
	}
	return out, rows.Err()
}
