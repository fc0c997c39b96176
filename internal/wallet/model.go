package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Balance is a point-in-time view of a wallet's funds.
type Balance struct {
	WalletID  string
	Currency  string
	Balance   decimal.Decimal
	Frozen    decimal.Decimal
	Available decimal.Decimal
	IsFrozen  bool
	AsOf      time.Time
}

// Dashboard is the owner's overview.
type Dashboard struct {
	Wallets      []ledger.Wallet
	Transactions []ledger.Transaction
	FraudFlags   []ledger.FraudFlag
}

// DefaultCurrencies is the reference data installed at startup.
var DefaultCurrencies = []ledger.Currency{
	{Code: "INR", Name: "Indian Rupee"},
	{Code: "USD", Name: "US Dollar"},
	{Code: "EUR", Name: "Euro"},
	{Code: "BTC", Name: "Bitcoin"},
}
