// Package carriers manages cash-on-delivery carriers, their per-department
// rate cards, and the delivery/return cost quotes derived from them.
package carriers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Carrier is a courier company that delivers orders and collects cash.
type Carrier struct {
	ID        string
	Name      string
	Phone     string
	Active    bool
	CreatedAt time.Time
}

// Rate is a carrier's commission card for one department. Express
// applies instead of Delivery when the shipment is priority.
type Rate struct {
	ID         string
	CarrierID  string
	Department string
	Delivery   decimal.Decimal
	Express    decimal.Decimal
	Return     decimal.Decimal
}

// Event is the shipment outcome a quote prices.
type Event string

const (
	EventNone      Event = ""
	EventDelivered Event = "delivered"
	EventReturned  Event = "returned"
)

// Cost is the result of a quote. Exactly one of DeliveryCost and
// ReturnCost is non-zero for a priced event.
type Cost struct {
	DeliveryCost decimal.Decimal
	ReturnCost   decimal.Decimal
	PriorityCost decimal.Decimal
}

// CreateCarrierInput describes a new carrier.
type CreateCarrierInput struct {
	Name  string
	Phone string
}

// UpsertRateInput sets a carrier's commissions for one department.
type UpsertRateInput struct {
	CarrierID  string
	Department string
	Delivery   decimal.Decimal
	Express    decimal.Decimal
	Return     decimal.Decimal
}
