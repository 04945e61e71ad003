// Package sequence issues prefixed, zero-padded sequential identifiers.
// Every entity kind owns a durable counter; ids look like ORD00000042.
package sequence

import (
	"fmt"
)

// Kind identifies an entity family with its own counter.
type Kind string

const (
	KindOrder        Kind = "order"
	KindCustomer     Kind = "customer"
	KindCarrier      Kind = "carrier"
	KindRate         Kind = "rate"
	KindMovement     Kind = "movement"
	KindInventory    Kind = "inventory"
	KindSettlement   Kind = "settlement"
	KindContribution Kind = "contribution"
	KindTransaction  Kind = "transaction"
	KindAccount      Kind = "account"
	KindLot          Kind = "lot"
	KindConsumption  Kind = "consumption"
	KindProduct      Kind = "product"
)

var prefixes = map[Kind]string{
	KindOrder:        "ORD",
	KindCustomer:     "CUS",
	KindCarrier:      "CAR",
	KindRate:         "RATE",
	KindMovement:     "MOV",
	KindInventory:    "INV",
	KindSettlement:   "PAY",
	KindContribution: "PORD",
	KindTransaction:  "TXN",
	KindAccount:      "ACC",
	KindLot:          "LOT",
	KindConsumption:  "CON",
	KindProduct:      "PRD",
}

// Prefix returns the id prefix for the kind, or empty for an unknown kind.
func (k Kind) Prefix() string {
	return prefixes[k]
}

// Format renders the nth identifier of a kind.
func Format(k Kind, n int64) (string, error) {
	prefix, ok := prefixes[k]
	if !ok {
		return "", fmt.Errorf("sequence: unknown kind %q", k)
	}
	return fmt.Sprintf("%s%08d", prefix, n), nil
}

// ItemSuffix derives a child identifier from its parent, e.g. ORD00000001-001.
func ItemSuffix(parentID string, n int) string {
	return fmt.Sprintf("%s-%03d", parentID, n)
}
