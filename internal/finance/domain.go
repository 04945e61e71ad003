// Package finance is the multi-currency ledger: accounts, transactions,
// and FIFO currency lots. Foreign-currency funds enter as lots priced
// in the base currency and leave by consuming the oldest lots first,
// so the cost basis of every outflow is reconstructible.
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies where money is held.
type AccountType string

const (
	AccountBank           AccountType = "bank"
	AccountCash           AccountType = "cash"
	AccountCryptoExchange AccountType = "crypto_exchange"
	AccountPaymentGateway AccountType = "payment_gateway"
)

// Valid reports whether the account type is known.
func (t AccountType) Valid() bool {
	switch t {
	case AccountBank, AccountCash, AccountCryptoExchange, AccountPaymentGateway:
		return true
	}
	return false
}

// Account holds a balance in exactly one currency.
type Account struct {
	ID        string
	Name      string
	Type      AccountType
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Category classifies a transaction and fixes which accounts it needs:
// sale_income credits one account, expense debits one, transfer does
// both, adjustment touches exactly one side in either direction.
type Category string

const (
	CategorySaleIncome Category = "sale_income"
	CategoryExpense    Category = "expense"
	CategoryTransfer   Category = "transfer"
	CategoryAdjustment Category = "adjustment"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	switch c {
	case CategorySaleIncome, CategoryExpense, CategoryTransfer, CategoryAdjustment:
		return true
	}
	return false
}

// Transaction is one committed ledger entry. Amount is always
// positive; direction comes from which accounts are set.
type Transaction struct {
	ID            string
	Category      Category
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Description   string
	Date          time.Time
}

// Lot is a parcel of foreign currency received at a known base-currency
// rate. Remaining shrinks as outflows consume it.
type Lot struct {
	ID           string
	AccountID    string
	Currency     string
	Amount       decimal.Decimal
	Remaining    decimal.Decimal
	ExchangeRate decimal.Decimal
	Date         time.Time
}

// Consumption records how much one transaction took from one lot.
// ExchangeRate snapshots the lot's acquisition rate so the cost basis
// of the outflow survives later lot edits.
type Consumption struct {
	ID            string
	TransactionID string
	LotID         string
	Amount        decimal.Decimal
	ExchangeRate  decimal.Decimal
}

// PostInput describes a transaction to post. ExchangeRate is required
// whenever foreign currency flows into an account, since the incoming
// lot must be priced.
type PostInput struct {
	Category      Category
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Description   string
	Date          time.Time
}

// CreateAccountInput describes a new account.
type CreateAccountInput struct {
	Name           string
	Type           AccountType
	Currency       string
	InitialBalance decimal.Decimal
	ExchangeRate   decimal.Decimal
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	AccountID string
	Category  Category
	Limit     int
}
