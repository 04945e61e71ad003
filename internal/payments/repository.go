package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore persists settlements and contributions in PostgreSQL.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextSettlementID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindSettlement)
}

func (s *SQLStore) NextContributionID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindContribution)
}

func (s *SQLStore) CarrierActive(ctx context.Context, carrierID string) (bool, error) {
	const query = `SELECT active FROM carriers WHERE id = $1`

	var active bool
	err := s.q.QueryRow(ctx, query, carrierID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("payments: carrier active: %w", err)
	}
	return active, nil
}

const settlementColumns = `
id, carrier_id, week_start, week_end,
deliveries, deliveries_amount, returns, returns_amount,
net_amount, previous_balance, final_amount,
status, wallet_id, paid_date, notes`

func scanSettlement(row pgx.Row) (*Settlement, error) {
	var (
		st       Settlement
		walletID *string
		notes    *string
	)
	err := row.Scan(
		&st.ID, &st.CarrierID, &st.WeekStart, &st.WeekEnd,
		&st.Deliveries, &st.DeliveriesAmount, &st.Returns, &st.ReturnsAmount,
		&st.NetAmount, &st.PreviousBalance, &st.FinalAmount,
		&st.Status, &walletID, &st.PaidDate, &notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("payments: scan settlement: %w", err)
	}
	if walletID != nil {
		st.WalletID = *walletID
	}
	if notes != nil {
		st.Notes = *notes
	}
	return &st, nil
}

func (s *SQLStore) SettlementForWeek(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error) {
	query := `SELECT ` + settlementColumns + `
FROM carrier_settlements
WHERE carrier_id = $1 AND week_start = $2
FOR UPDATE`
	return scanSettlement(s.q.QueryRow(ctx, query, carrierID, weekStart))
}

func (s *SQLStore) LatestSettlementBefore(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error) {
	query := `SELECT ` + settlementColumns + `
FROM carrier_settlements
WHERE carrier_id = $1 AND week_start < $2
ORDER BY week_start DESC
LIMIT 1`
	return scanSettlement(s.q.QueryRow(ctx, query, carrierID, weekStart))
}

func (s *SQLStore) SettlementForUpdate(ctx context.Context, id string) (*Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM carrier_settlements WHERE id = $1 FOR UPDATE`
	return scanSettlement(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) GetSettlement(ctx context.Context, id string) (*Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM carrier_settlements WHERE id = $1`
	return scanSettlement(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) ListSettlements(ctx context.Context, carrierID string, limit int) ([]Settlement, error) {
	query := `SELECT ` + settlementColumns + `
FROM carrier_settlements
WHERE carrier_id = $1
ORDER BY week_start DESC
LIMIT $2`

	rows, err := s.q.Query(ctx, query, carrierID, limit)
	if err != nil {
		return nil, fmt.Errorf("payments: list settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertSettlement(ctx context.Context, st Settlement) error {
	const query = `
INSERT INTO carrier_settlements (
	id, carrier_id, week_start, week_end,
	deliveries, deliveries_amount, returns, returns_amount,
	net_amount, previous_balance, final_amount, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.q.Exec(ctx, query,
		st.ID, st.CarrierID, st.WeekStart, st.WeekEnd,
		st.Deliveries, st.DeliveriesAmount, st.Returns, st.ReturnsAmount,
		st.NetAmount, st.PreviousBalance, st.FinalAmount, string(st.Status),
	)
	if err != nil {
		return fmt.Errorf("payments: insert settlement: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateSettlementTotals(ctx context.Context, st Settlement) error {
	const query = `
UPDATE carrier_settlements SET
	deliveries = $2, deliveries_amount = $3,
	returns = $4, returns_amount = $5,
	net_amount = $6, final_amount = $7
WHERE id = $1`

	_, err := s.q.Exec(ctx, query,
		st.ID, st.Deliveries, st.DeliveriesAmount,
		st.Returns, st.ReturnsAmount, st.NetAmount, st.FinalAmount,
	)
	if err != nil {
		return fmt.Errorf("payments: update settlement: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteSettlement(ctx context.Context, id string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM settlement_contributions WHERE settlement_id = $1`, id); err != nil {
		return fmt.Errorf("payments: delete contributions: %w", err)
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM carrier_settlements WHERE id = $1`, id); err != nil {
		return fmt.Errorf("payments: delete settlement: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkPaid(ctx context.Context, id, walletID string, paidDate time.Time, notes string) error {
	const query = `
UPDATE carrier_settlements SET
	status = 'paid', wallet_id = $2, paid_date = $3, notes = $4
WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, id, walletID, paidDate, notes)
	if err != nil {
		return fmt.Errorf("payments: mark paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payments: mark paid: settlement %s not found", id)
	}
	return nil
}

func (s *SQLStore) InsertContribution(ctx context.Context, c Contribution) error {
	const query = `
INSERT INTO settlement_contributions (
	id, settlement_id, order_id, contribution_type,
	amount, order_total, commission
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q.Exec(ctx, query,
		c.ID, c.SettlementID, c.OrderID, string(c.Type), c.Amount, c.OrderTotal, c.Commission,
	)
	if err != nil {
		return fmt.Errorf("payments: insert contribution: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteContribution(ctx context.Context, orderID string, typ ContributionType) (*Contribution, error) {
	const query = `
DELETE FROM settlement_contributions
WHERE order_id = $1 AND contribution_type = $2
RETURNING id, settlement_id, order_id, contribution_type, amount, order_total, commission`

	var c Contribution
	err := s.q.QueryRow(ctx, query, orderID, string(typ)).Scan(
		&c.ID, &c.SettlementID, &c.OrderID, &c.Type, &c.Amount, &c.OrderTotal, &c.Commission)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("payments: delete contribution: %w", err)
	}
	return &c, nil
}

func (s *SQLStore) ListContributions(ctx context.Context, settlementID string) ([]Contribution, error) {
	const query = `
SELECT id, settlement_id, order_id, contribution_type, amount, order_total, commission
FROM settlement_contributions
WHERE settlement_id = $1
ORDER BY id`

	rows, err := s.q.Query(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("payments: list contributions: %w", err)
	}
	defer rows.Close()

	var out []Contribution
	for rows.Next() {
		var c Contribution
		if err := rows.Scan(&c.ID, &c.SettlementID, &c.OrderID, &c.Type, &c.Amount, &c.OrderTotal, &c.Commission); err != nil {
			return nil, fmt.Errorf("payments: scan contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
