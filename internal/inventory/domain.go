// Package inventory tracks per-variant, per-department stock through an
// append-only movement journal. Stock is never edited in place; every
// change is a movement and the stock record is the running balance.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementPurchase    MovementKind = "purchase"
	MovementSale        MovementKind = "sale"
	MovementReturn      MovementKind = "return"
	MovementAdjustment  MovementKind = "adjustment"
	MovementTransferIn  MovementKind = "transfer_in"
	MovementTransferOut MovementKind = "transfer_out"
)

// Direction reports the sign the kind applies to stock: +1 inbound,
// -1 outbound, 0 when the sign comes from the quantity itself.
func (k MovementKind) Direction() int {
	switch k {
	case MovementPurchase, MovementReturn, MovementTransferIn:
		return 1
	case MovementSale, MovementTransferOut:
		return -1
	case MovementAdjustment:
		return 0
	}
	return 0
}

// Valid reports whether the kind is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementPurchase, MovementSale, MovementReturn,
		MovementAdjustment, MovementTransferIn, MovementTransferOut:
		return true
	}
	return false
}

// Movement is one journal entry. Quantity is the signed delta applied
// to the stock record.
type Movement struct {
	ID          string
	Kind        MovementKind
	VariantID   string
	Department  string
	Quantity    decimal.Decimal
	ReferenceID string
	Note        string
	CreatedAt   time.Time
}

// Record is the running stock balance of a variant in a department.
type Record struct {
	ID         string
	VariantID  string
	Department string
	Quantity   decimal.Decimal
	UpdatedAt  time.Time
}

// PostInput describes a single movement to post.
type PostInput struct {
	Kind        MovementKind
	VariantID   string
	Department  string
	Quantity    decimal.Decimal
	ReferenceID string
	Note        string
}

// TransferInput moves stock of one variant between two departments.
type TransferInput struct {
	VariantID      string
	FromDepartment string
	ToDepartment   string
	Quantity       decimal.Decimal
	Note           string
}

// TransferResult holds the paired movements of a transfer. Both share
// the same reference id.
type TransferResult struct {
	ReferenceID string
	Out         Movement
	In          Movement
}

// StockFilter narrows stock queries.
type StockFilter struct {
	VariantID  string
	Department string
}
