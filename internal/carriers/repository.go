package carriers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore persists carriers and rates in PostgreSQL.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextCarrierID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindCarrier)
}

func (s *SQLStore) NextRateID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindRate)
}

func (s *SQLStore) InsertCarrier(ctx context.Context, c Carrier) error {
	const query = `
INSERT INTO carriers (id, name, phone, active, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, c.ID, c.Name, c.Phone, c.Active, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("carriers: insert carrier: %w", err)
	}
	return nil
}

func (s *SQLStore) scanCarrier(row pgx.Row) (*Carrier, error) {
	var c Carrier
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("carriers: scan carrier: %w", err)
	}
	return &c, nil
}

func (s *SQLStore) GetCarrier(ctx context.Context, id string) (*Carrier, error) {
	const query = `SELECT id, name, phone, active, created_at FROM carriers WHERE id = $1`
	return s.scanCarrier(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) CarrierForUpdate(ctx context.Context, id string) (*Carrier, error) {
	const query = `SELECT id, name, phone, active, created_at FROM carriers WHERE id = $1 FOR UPDATE`
	return s.scanCarrier(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) ListCarriers(ctx context.Context, activeOnly bool) ([]Carrier, error) {
	const query = `
SELECT id, name, phone, active, created_at
FROM carriers
WHERE NOT $1 OR active
ORDER BY id`

	rows, err := s.q.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("carriers: list carriers: %w", err)
	}
	defer rows.Close()

	var out []Carrier
	for rows.Next() {
		var c Carrier
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("carriers: scan carrier: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetCarrierActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE carriers SET active = $2 WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("carriers: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("carriers: set active: carrier %s not found", id)
	}
	return nil
}

func (s *SQLStore) FindRate(ctx context.Context, carrierID, department string) (*Rate, error) {
	const query = `
SELECT id, carrier_id, department, commission_delivery, commission_express, commission_return
FROM carrier_rates
WHERE carrier_id = $1 AND department = $2`

	var r Rate
	err := s.q.QueryRow(ctx, query, carrierID, department).Scan(
		&r.ID, &r.CarrierID, &r.Department, &r.Delivery, &r.Express, &r.Return,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("carriers: find rate: %w", err)
	}
	return &r, nil
}

func (s *SQLStore) UpsertRate(ctx context.Context, r Rate) error {
	const query = `
INSERT INTO carrier_rates (id, carrier_id, department, commission_delivery, commission_express, commission_return)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (carrier_id, department) DO UPDATE SET
	commission_delivery = EXCLUDED.commission_delivery,
	commission_express = EXCLUDED.commission_express,
	commission_return = EXCLUDED.commission_return`

	_, err := s.q.Exec(ctx, query, r.ID, r.CarrierID, r.Department, r.Delivery, r.Express, r.Return)
	if err != nil {
		return fmt.Errorf("carriers: upsert rate: %w", err)
	}
	return nil
}

func (s *SQLStore) ListRates(ctx context.Context, carrierID string) ([]Rate, error) {
	const query = `
SELECT id, carrier_id, department, commission_delivery, commission_express, commission_return
FROM carrier_rates
WHERE carrier_id = $1
ORDER BY department`

	rows, err := s.q.Query(ctx, query, carrierID)
	if err != nil {
		return nil, fmt.Errorf("carriers: list rates: %w", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var r Rate
		if err := rows.Scan(&r.ID, &r.CarrierID, &r.Department, &r.Delivery, &r.Express, &r.Return); err != nil {
			return nil, fmt.Errorf("carriers: scan rate: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOpenOrders counts the carrier's orders that are still in flight.
// Delivered, returned and cancelled orders are settled outcomes.
func (s *SQLStore) CountOpenOrders(ctx context.Context, carrierID string) (int64, error) {
	const query = `
SELECT COUNT(*)
FROM orders
WHERE carrier_id = $1 AND status NOT IN ('delivered', 'returned', 'cancelled')`

	var n int64
	if err := s.q.QueryRow(ctx, query, carrierID).Scan(&n); err != nil {
		return 0, fmt.Errorf("carriers: count open orders: %w", err)
	}
	return n, nil
}

func (s *SQLStore) CountPendingSettlements(ctx context.Context, carrierID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM carrier_settlements WHERE carrier_id = $1 AND status = 'pending'`

	var n int64
	if err := s.q.QueryRow(ctx, query, carrierID).Scan(&n); err != nil {
		return 0, fmt.Errorf("carriers: count pending settlements: %w", err)
	}
	return n, nil
}
