package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore persists products and variants in PostgreSQL.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextProductID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindProduct)
}

const variantColumns = `id, product_id, name, sku, external_id, active, created_at`

func scanVariant(row pgx.Row) (*Variant, error) {
	var (
		v        Variant
		sku      *string
		external *string
	)
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &sku, &external, &v.Active, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan variant: %w", err)
	}
	if sku != nil {
		v.SKU = *sku
	}
	if external != nil {
		v.ExternalID = *external
	}
	return &v, nil
}

func (s *SQLStore) FindVariantByExternalID(ctx context.Context, externalID string) (*Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE external_id = $1`
	return scanVariant(s.q.QueryRow(ctx, query, externalID))
}

func (s *SQLStore) FindVariantBySKU(ctx context.Context, sku string) (*Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE sku = $1`
	return scanVariant(s.q.QueryRow(ctx, query, sku))
}

func (s *SQLStore) FindVariantByName(ctx context.Context, name string) (*Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE name = $1 LIMIT 1`
	return scanVariant(s.q.QueryRow(ctx, query, name))
}

func (s *SQLStore) FindVariantByID(ctx context.Context, id string) (*Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`
	return scanVariant(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) UpdateVariantRefs(ctx context.Context, id, externalID, sku string) error {
	const query = `UPDATE product_variants SET external_id = NULLIF($2, ''), sku = NULLIF($3, '') WHERE id = $1`

	_, err := s.q.Exec(ctx, query, id, externalID, sku)
	if err != nil {
		return fmt.Errorf("catalog: update variant refs: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p        Product
		external *string
	)
	err := row.Scan(&p.ID, &p.Name, &external, &p.Category, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan product: %w", err)
	}
	if external != nil {
		p.ExternalID = *external
	}
	return &p, nil
}

func (s *SQLStore) FindProductByExternalID(ctx context.Context, externalID string) (*Product, error) {
	const query = `SELECT id, name, external_id, category, active, created_at FROM products WHERE external_id = $1`
	return scanProduct(s.q.QueryRow(ctx, query, externalID))
}

func (s *SQLStore) FindProductByName(ctx context.Context, name string) (*Product, error) {
	const query = `SELECT id, name, external_id, category, active, created_at FROM products WHERE name = $1 LIMIT 1`
	return scanProduct(s.q.QueryRow(ctx, query, name))
}

func (s *SQLStore) UpdateProductExternalID(ctx context.Context, id, externalID string) error {
	const query = `UPDATE products SET external_id = NULLIF($2, '') WHERE id = $1`

	_, err := s.q.Exec(ctx, query, id, externalID)
	if err != nil {
		return fmt.Errorf("catalog: update product external id: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertProduct(ctx context.Context, p Product) error {
	const query = `
INSERT INTO products (id, name, external_id, category, active, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`

	_, err := s.q.Exec(ctx, query, p.ID, p.Name, p.ExternalID, p.Category, p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("catalog: insert product: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertVariant(ctx context.Context, v Variant) error {
	const query = `
INSERT INTO product_variants (id, product_id, name, sku, external_id, active, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`

	_, err := s.q.Exec(ctx, query, v.ID, v.ProductID, v.Name, v.SKU, v.ExternalID, v.Active, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("catalog: insert variant: %w", err)
	}
	return nil
}

func (s *SQLStore) CountProductVariants(ctx context.Context, productID string) (int, error) {
	const query = `SELECT COUNT(*) FROM product_variants WHERE product_id = $1`

	var n int
	if err := s.q.QueryRow(ctx, query, productID).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count variants: %w", err)
	}
	return n, nil
}

func (s *SQLStore) LastSKUWithPrefix(ctx context.Context, prefix string) (string, error) {
	const query = `
SELECT sku FROM product_variants
WHERE sku LIKE $1 || '-%'
ORDER BY sku DESC
LIMIT 1`

	var sku string
	err := s.q.QueryRow(ctx, query, prefix).Scan(&sku)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: last sku: %w", err)
	}
	return sku, nil
}
