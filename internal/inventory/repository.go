package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore persists movements and stock records in PostgreSQL. Bind it
// to a pool for standalone reads or to a pgx.Tx for transactional work.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextMovementID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindMovement)
}

func (s *SQLStore) NextRecordID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindInventory)
}

func (s *SQLStore) FindMovementByReference(ctx context.Context, referenceID, variantID, department string) (*Movement, error) {
	const query = `
SELECT id, kind, variant_id, department, quantity, reference_id, note, created_at
FROM inventory_movements
WHERE reference_id = $1 AND variant_id = $2 AND department = $3`

	var m Movement
	err := s.q.QueryRow(ctx, query, referenceID, variantID, department).Scan(
		&m.ID, &m.Kind, &m.VariantID, &m.Department, &m.Quantity, &m.ReferenceID, &m.Note, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: find movement by reference: %w", err)
	}
	return &m, nil
}

func (s *SQLStore) InsertMovement(ctx context.Context, m Movement) error {
	const query = `
INSERT INTO inventory_movements (id, kind, variant_id, department, quantity, reference_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.q.Exec(ctx, query,
		m.ID, string(m.Kind), m.VariantID, m.Department, m.Quantity, m.ReferenceID, m.Note, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inventory: insert movement: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordForUpdate(ctx context.Context, variantID, department string) (*Record, error) {
	const query = `
SELECT id, variant_id, department, quantity, updated_at
FROM stock_records
WHERE variant_id = $1 AND department = $2
FOR UPDATE`

	var rec Record
	err := s.q.QueryRow(ctx, query, variantID, department).Scan(
		&rec.ID, &rec.VariantID, &rec.Department, &rec.Quantity, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: lock stock record: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) InsertRecord(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO stock_records (id, variant_id, department, quantity, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, rec.ID, rec.VariantID, rec.Department, rec.Quantity, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inventory: insert stock record: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateRecordQuantity(ctx context.Context, id string, qty decimal.Decimal, at time.Time) error {
	const query = `UPDATE stock_records SET quantity = $2, updated_at = $3 WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, id, qty, at)
	if err != nil {
		return fmt.Errorf("inventory: update stock record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListRecords lists stock records, optionally narrowed by variant and
// department.
func (s *SQLStore) ListRecords(ctx context.Context, filter StockFilter) ([]Record, error) {
	query := `
SELECT id, variant_id, department, quantity, updated_at
FROM stock_records
WHERE ($1 = '' OR variant_id = $1)
  AND ($2 = '' OR department = $2)
ORDER BY variant_id, department`

	rows, err := s.q.Query(ctx, query, filter.VariantID, filter.Department)
	if err != nil {
		return nil, fmt.Errorf("inventory: list stock records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.VariantID, &rec.Department, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("inventory: scan stock record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: list stock records: %w", err)
	}
	return records, nil
}
