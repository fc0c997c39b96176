package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/notification"
)

const (
	RuleHighValue         = "high_value"
	RuleVelocity          = "velocity"
	RuleLargeWithdrawals  = "withdrawals_24h"
	largeWithdrawalWindow = 24 * time.Hour
)

// Store is the subset of the ledger store the monitor reads and writes.
type Store interface {
	CountTransactionsByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	SumApprovedWithdrawalsSince(ctx context.Context, walletID string, since time.Time) (decimal.Decimal, error)
	AddFraudFlag(ctx context.Context, flag ledger.FraudFlag) (bool, error)
	ListFraudFlags(ctx context.Context, filter ledger.FraudFlagFilter) ([]ledger.FraudFlag, error)
}

// Contacts resolves a user id to a notification address.
type Contacts interface {
	ContactAddress(ctx context.Context, userID string) (string, error)
}

// Config carries the rule thresholds.
type Config struct {
	AmountLimit  decimal.Decimal
	TxnCount     int
	Window       time.Duration
	AdminAddress string
}

// Monitor evaluates transactions against the fraud rules. Flags are advisory:
// every failure is logged and swallowed.
type Monitor struct {
	store    Store
	contacts Contacts
	notifier notification.Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewMonitor builds a monitor. contacts and notifier may be nil.
func NewMonitor(store Store, contacts Contacts, notifier notification.Notifier, cfg Config, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{store: store, contacts: contacts, notifier: notifier, cfg: cfg, logger: logger, now: time.Now}
}

// Evaluate runs the rules that apply to a newly created transaction.
func (m *Monitor) Evaluate(ctx context.Context, txn ledger.Transaction, owner string) {
	m.CheckHighValue(ctx, txn, owner)
	m.CheckVelocity(ctx, txn, owner)
}

// EvaluateResolved runs the rules that apply once a held transaction is approved or rejected.
func (m *Monitor) EvaluateResolved(ctx context.Context, txn ledger.Transaction, owner string) {
	m.CheckHighValue(ctx, txn, owner)
	if txn.Type == ledger.TypeWithdraw && txn.Status == ledger.StatusApproved {
		m.CheckLargeWithdrawals(ctx, txn, owner)
	}
}

// CheckHighValue flags a transaction whose amount reaches the limit.
func (m *Monitor) CheckHighValue(ctx context.Context, txn ledger.Transaction, owner string) bool {
	if txn.Amount.LessThan(m.cfg.AmountLimit) {
		return false
	}
	reason := fmt.Sprintf("High-value transaction over %s", m.cfg.AmountLimit.StringFixed(2))
	body := fmt.Sprintf("A suspicious transaction was flagged on your wallet.\n\nTransaction ID: %s\nAmount: %s\nDate: %s\nReason: %s\n\nIf this wasn't you, please contact support.",
		txn.ID, txn.Amount.StringFixed(2), txn.CreatedAt.Format("2006-01-02 15:04:05"), reason)
	return m.flag(ctx, RuleHighValue, owner, txn.ID, reason, "Fraud Alert: High-Value Transaction", body)
}

// CheckVelocity flags the owner when the trailing window holds too many transactions.
// One flag is raised per burst: a later transaction inside the window of an
// existing velocity flag is not flagged again.
func (m *Monitor) CheckVelocity(ctx context.Context, txn ledger.Transaction, owner string) bool {
	if m.cfg.TxnCount <= 0 || m.cfg.Window <= 0 {
		return false
	}
	since := m.now().Add(-m.cfg.Window)
	count, err := m.store.CountTransactionsByOwnerSince(ctx, owner, since)
	if err != nil {
		m.logger.Warn("fraud velocity count failed", zap.String("transaction_id", txn.ID), zap.Error(err))
		return false
	}
	if count < m.cfg.TxnCount {
		return false
	}
	recent, err := m.store.ListFraudFlags(ctx, ledger.FraudFlagFilter{UserID: owner, Rule: RuleVelocity, Since: since, Limit: 1})
	if err != nil {
		m.logger.Warn("fraud velocity lookup failed", zap.String("transaction_id", txn.ID), zap.Error(err))
		return false
	}
	if len(recent) > 0 {
		return false
	}
	minutes := int(m.cfg.Window / time.Minute)
	reason := fmt.Sprintf("%d transactions within %d minutes", count, minutes)
	body := fmt.Sprintf("Multiple transactions were detected in a short time window.\n\nUser: %s\nCount: %d transactions\nTime Frame: %d minutes\nLatest Tx ID: %s\n\nIf this activity seems suspicious, please review immediately.",
		owner, count, minutes, txn.ID)
	return m.flag(ctx, RuleVelocity, owner, txn.ID, reason, "Fraud Alert: Suspicious Transaction Pattern", body)
}

// CheckLargeWithdrawals flags a wallet whose approved withdrawals over the
// trailing 24 hours exceed the limit.
func (m *Monitor) CheckLargeWithdrawals(ctx context.Context, txn ledger.Transaction, owner string) bool {
	total, err := m.store.SumApprovedWithdrawalsSince(ctx, txn.SourceWalletID, m.now().Add(-largeWithdrawalWindow))
	if err != nil {
		m.logger.Warn("fraud withdrawal sum failed", zap.String("wallet_id", txn.SourceWalletID), zap.Error(err))
		return false
	}
	if !total.GreaterThan(m.cfg.AmountLimit) {
		return false
	}
	reason := fmt.Sprintf("Withdrawals exceeded %s in 24 hours", m.cfg.AmountLimit.StringFixed(2))
	body := fmt.Sprintf("Approved withdrawals on wallet %s total %s in the last 24 hours.\n\nLatest Tx ID: %s",
		txn.SourceWalletID, total.StringFixed(2), txn.ID)
	return m.flag(ctx, RuleLargeWithdrawals, owner, txn.ID, reason, "Fraud Alert: Large Withdrawals", body)
}

func (m *Monitor) flag(ctx context.Context, rule, owner, txnID, reason, subject, body string) bool {
	now := m.now().UTC()
	created, err := m.store.AddFraudFlag(ctx, ledger.FraudFlag{
		ID:            ledger.NewSortableID(now),
		UserID:        owner,
		TransactionID: txnID,
		Rule:          rule,
		Reason:        reason,
		FlaggedAt:     now,
	})
	if err != nil {
		m.logger.Warn("fraud flag not stored", zap.String("rule", rule), zap.String("transaction_id", txnID), zap.Error(err))
		return false
	}
	if !created {
		return false
	}

	metrics.FraudFlags.WithLabelValues(rule).Inc()
	m.logger.Info("fraud flag raised",
		zap.String("rule", rule),
		zap.String("user_id", owner),
		zap.String("transaction_id", txnID),
		zap.String("reason", reason),
	)
	m.alert(ctx, owner, subject, body)
	return true
}

func (m *Monitor) alert(ctx context.Context, owner, subject, body string) {
	if m.notifier == nil {
		return
	}
	destination := owner
	if m.contacts != nil {
		if addr, err := m.contacts.ContactAddress(ctx, owner); err == nil && addr != "" {
			destination = addr
		}
	}
	recipients := []string{destination}
	if m.cfg.AdminAddress != "" {
		recipients = append(recipients, m.cfg.AdminAddress)
	}
	for _, to := range recipients {
		msg := notification.Message{Kind: notification.KindFraudAlert, Destination: to, Subject: subject, Body: body}
		if err := m.notifier.Send(ctx, msg); err != nil {
			m.logger.Warn("fraud alert not sent", zap.String("destination", to), zap.Error(err))
		}
	}
}
