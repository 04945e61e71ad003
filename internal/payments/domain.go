// Package payments aggregates cash-on-delivery order outcomes into
// weekly carrier settlements. Each carrier accrues one settlement per
// Monday-aligned week; delivered orders add what the carrier owes, and
// returned orders add the return commission the retailer owes back.
package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus is the lifecycle state of a weekly settlement.
type SettlementStatus string

const (
	StatusPending SettlementStatus = "pending"
	StatusPaid    SettlementStatus = "paid"
)

// Settlement is one carrier's accrual for one week.
type Settlement struct {
	ID               string
	CarrierID        string
	WeekStart        time.Time
	WeekEnd          time.Time
	Deliveries       int
	DeliveriesAmount decimal.Decimal
	Returns          int
	ReturnsAmount    decimal.Decimal
	NetAmount        decimal.Decimal
	PreviousBalance  decimal.Decimal
	FinalAmount      decimal.Decimal
	Status           SettlementStatus
	WalletID         string
	PaidDate         *time.Time
	Notes            string
}

// ContributionType distinguishes what an order added to a settlement.
type ContributionType string

const (
	ContributionDelivery ContributionType = "delivery"
	ContributionReturn   ContributionType = "return"
)

// Contribution records what one order contributed to a settlement, so
// the accrual can be audited and reversed order by order.
type Contribution struct {
	ID           string
	SettlementID string
	OrderID      string
	Type         ContributionType
	Amount       decimal.Decimal
	OrderTotal   decimal.Decimal
	Commission   decimal.Decimal
}

// OrderSnapshot carries the order fields settlement accrual needs.
type OrderSnapshot struct {
	OrderID      string
	CarrierID    string
	Total        decimal.Decimal
	DeliveryCost decimal.Decimal
	ReturnCost   decimal.Decimal
}

// SettleInput marks a settlement paid into a wallet account.
type SettleInput struct {
	SettlementID string
	WalletID     string
	PaidDate     time.Time
	Notes        string
}

// BatchSettleInput pays a set of settlements into one wallet.
type BatchSettleInput struct {
	SettlementIDs []string
	WalletID      string
	PaidDate      time.Time
	Notes         string
}

// SettleResult is the outcome for one settlement in a batch.
type SettleResult struct {
	SettlementID string
	Paid         bool
	Amount       decimal.Decimal
	Reason       string
}

// BatchResult reports a batch settle: one result per requested
// settlement and the total amount actually moved.
type BatchResult struct {
	Results     []SettleResult
	TotalAmount decimal.Decimal
}

// WeekStart returns the Monday 00:00 UTC opening the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -daysSinceMonday)
}

// WeekEnd returns the Sunday closing the week opened by weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 6)
}
