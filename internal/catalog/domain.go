// Package catalog resolves the products named on incoming orders.
// Storefront payloads identify items loosely (platform ids, SKUs, bare
// names), so resolution cascades through identifiers and auto-creates
// what it cannot find.
package catalog

import "time"

// Product is a parent product; variants hang off it.
type Product struct {
	ID         string
	Name       string
	ExternalID string
	Category   string
	Active     bool
	CreatedAt  time.Time
}

// Variant is the sellable unit referenced by order items and stock.
type Variant struct {
	ID         string
	ProductID  string
	Name       string
	SKU        string
	ExternalID string
	Active     bool
	CreatedAt  time.Time
}

// VariantQuery carries the identifiers an order item may name a
// variant by. Name is the only required field.
type VariantQuery struct {
	ExternalProductID string
	ExternalVariantID string
	Name              string
	SKU               string
}

const defaultCategory = "ROPA_Y_MODA"
