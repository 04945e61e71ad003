// Package orders owns the order lifecycle and orchestrates its side
// effects. A status transition and everything it implies (carrier
// costs, settlement accrual, stock movements) commit in one database
// transaction or not at all.
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/payments"
)

// Status is an order's lifecycle state. Carriers in this market report
// a wider vocabulary than the money-bearing states; the extra statuses
// are tracked but carry no accounting effect.
type Status string

const (
	StatusNew         Status = "new"
	StatusConfirmed   Status = "confirmed"
	StatusDispatched  Status = "dispatched"
	StatusDelivered   Status = "delivered"
	StatusReturned    Status = "returned"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNovelty     Status = "novelty"
	StatusNoReport    Status = "no_report"
	StatusNoStock     Status = "no_stock"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusConfirmed, StatusDispatched, StatusDelivered,
		StatusReturned, StatusCancelled, StatusRescheduled, StatusNovelty,
		StatusNoReport, StatusNoStock:
		return true
	}
	return false
}

// RequiresItems reports whether entering the status needs the order to
// have items. Goods cannot be dispatched, delivered or returned if the
// order lists nothing.
func (s Status) RequiresItems() bool {
	switch s {
	case StatusDispatched, StatusDelivered, StatusReturned:
		return true
	}
	return false
}

// Outcome maps the status onto the settlement lens.
func (s Status) Outcome() payments.Outcome {
	switch s {
	case StatusDelivered:
		return payments.OutcomeDelivered
	case StatusReturned:
		return payments.OutcomeReturned
	}
	return payments.OutcomeNone
}

// Customer is a buyer, found or created by phone number.
type Customer struct {
	ID          string
	FullName    string
	Phone       string
	Email       string
	Department  string
	Address     string
	Reference   string
	Active      bool
	TotalOrders int
	TotalSpent  decimal.Decimal
	CreatedAt   time.Time
}

// Order is the aggregate root. Costs are zero until a priced outcome
// sets them.
type Order struct {
	ID                   string
	CustomerID           string
	CarrierID            string
	Status               Status
	Total                decimal.Decimal
	DeliveryCost         decimal.Decimal
	ReturnCost           decimal.Decimal
	PriorityShipping     bool
	PriorityShippingCost decimal.Decimal
	ExternalOrderID      string
	UTMSource            string
	UTMMedium            string
	UTMCampaign          string
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Tracking is the delivery-facing view of an order: current status,
// the carrier's tracking code, and the running status note log.
type Tracking struct {
	OrderID      string
	Status       Status
	TrackingCode string
	Notes        string
	ReminderSent bool
	FollowUpSent bool
	UpdatedAt    time.Time
}

// Item is one order line. ProductName is the name as sold, kept even
// if the catalog entry is later renamed.
type Item struct {
	ID          string
	OrderID     string
	VariantID   string
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

// Snapshot projects the order into what settlement accrual needs.
func (o Order) Snapshot() payments.OrderSnapshot {
	return payments.OrderSnapshot{
		OrderID:      o.ID,
		CarrierID:    o.CarrierID,
		Total:        o.Total,
		DeliveryCost: o.DeliveryCost,
		ReturnCost:   o.ReturnCost,
	}
}

// NormalizeDepartment maps storefront department spellings onto the
// canonical form, e.g. LA_PAZ to LA PAZ.
func NormalizeDepartment(d string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(d), "_", " "))
}

// totalTolerance absorbs storefront rounding when reconciling the
// order total against the item subtotals.
var totalTolerance = decimal.RequireFromString("0.01")

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status          Status
	CarrierID       string
	CustomerID      string
	ExternalOrderID string
	Limit           int
}
