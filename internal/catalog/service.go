package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store exposes catalog persistence bound to the caller's transaction.
type Store interface {
	NextProductID(ctx context.Context) (string, error)
	FindVariantByExternalID(ctx context.Context, externalID string) (*Variant, error)
	FindVariantBySKU(ctx context.Context, sku string) (*Variant, error)
	FindVariantByName(ctx context.Context, name string) (*Variant, error)
	UpdateVariantRefs(ctx context.Context, id, externalID, sku string) error
	FindProductByExternalID(ctx context.Context, externalID string) (*Product, error)
	FindProductByName(ctx context.Context, name string) (*Product, error)
	UpdateProductExternalID(ctx context.Context, id, externalID string) error
	InsertProduct(ctx context.Context, p Product) error
	InsertVariant(ctx context.Context, v Variant) error
	CountProductVariants(ctx context.Context, productID string) (int, error)
	LastSKUWithPrefix(ctx context.Context, prefix string) (string, error)
}

// Resolver finds or creates variants for order items.
type Resolver struct{}

// FindOrCreateVariant resolves a variant through the identifier
// cascade: external variant id, then SKU, then exact name. A miss on
// all three creates the product and variant. Matches found by a weaker
// identifier get the stronger identifiers backfilled. The second
// return reports whether the variant was created.
func (r Resolver) FindOrCreateVariant(ctx context.Context, s Store, q VariantQuery) (Variant, bool, error) {
	if q.Name == "" {
		return Variant{}, false, shared.NewValidationError("product_name", "product name required")
	}

	if q.ExternalVariantID != "" {
		v, err := s.FindVariantByExternalID(ctx, q.ExternalVariantID)
		if err != nil {
			return Variant{}, false, err
		}
		if v != nil {
			return *v, false, nil
		}
	}

	if q.SKU != "" {
		v, err := s.FindVariantBySKU(ctx, q.SKU)
		if err != nil {
			return Variant{}, false, err
		}
		if v != nil {
			if q.ExternalVariantID != "" && v.ExternalID == "" {
				v.ExternalID = q.ExternalVariantID
				if err := s.UpdateVariantRefs(ctx, v.ID, v.ExternalID, v.SKU); err != nil {
					return Variant{}, false, err
				}
			}
			return *v, false, nil
		}
	}

	v, err := s.FindVariantByName(ctx, q.Name)
	if err != nil {
		return Variant{}, false, err
	}
	if v != nil {
		changed := false
		if q.ExternalVariantID != "" && v.ExternalID == "" {
			v.ExternalID = q.ExternalVariantID
			changed = true
		}
		if q.SKU != "" && v.SKU == "" {
			v.SKU = q.SKU
			changed = true
		}
		if changed {
			if err := s.UpdateVariantRefs(ctx, v.ID, v.ExternalID, v.SKU); err != nil {
				return Variant{}, false, err
			}
		}
		return *v, false, nil
	}

	created, err := r.createVariant(ctx, s, q)
	if err != nil {
		return Variant{}, false, err
	}
	return created, true, nil
}

func (Resolver) createVariant(ctx context.Context, s Store, q VariantQuery) (Variant, error) {
	product, err := findOrCreateProduct(ctx, s, q.Name, q.ExternalProductID)
	if err != nil {
		return Variant{}, err
	}

	sku := q.SKU
	if sku == "" {
		sku, err = generateSKU(ctx, s, q.Name)
		if err != nil {
			return Variant{}, err
		}
	}

	n, err := s.CountProductVariants(ctx, product.ID)
	if err != nil {
		return Variant{}, err
	}
	variant := Variant{
		ID:         fmt.Sprintf("%s-%d", product.ID, n+1),
		ProductID:  product.ID,
		Name:       q.Name,
		SKU:        sku,
		ExternalID: q.ExternalVariantID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.InsertVariant(ctx, variant); err != nil {
		return Variant{}, err
	}
	return variant, nil
}

func findOrCreateProduct(ctx context.Context, s Store, name, externalID string) (Product, error) {
	if externalID != "" {
		p, err := s.FindProductByExternalID(ctx, externalID)
		if err != nil {
			return Product{}, err
		}
		if p != nil {
			return *p, nil
		}
	}

	p, err := s.FindProductByName(ctx, name)
	if err != nil {
		return Product{}, err
	}
	if p != nil {
		if externalID != "" && p.ExternalID == "" {
			p.ExternalID = externalID
			if err := s.UpdateProductExternalID(ctx, p.ID, externalID); err != nil {
				return Product{}, err
			}
		}
		return *p, nil
	}

	id, err := s.NextProductID(ctx)
	if err != nil {
		return Product{}, err
	}
	product := Product{
		ID:         id,
		Name:       name,
		ExternalID: externalID,
		Category:   defaultCategory,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.InsertProduct(ctx, product); err != nil {
		return Product{}, err
	}
	return product, nil
}

var skuClean = regexp.MustCompile(`[^A-Z0-9]`)

// generateSKU derives a SKU from the product name, numbered within the
// name's prefix: "Chompa Roja" becomes CHOMPAROJA-001, then -002.
func generateSKU(ctx context.Context, s Store, name string) (string, error) {
	prefix := skuClean.ReplaceAllString(strings.ToUpper(name), "")
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	if prefix == "" {
		prefix = "ITEM"
	}

	last, err := s.LastSKUWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	next := 1
	if last != "" {
		if idx := strings.LastIndex(last, "-"); idx >= 0 {
			if n, err := strconv.Atoi(last[idx+1:]); err == nil {
				next = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%03d", prefix, next), nil
}
