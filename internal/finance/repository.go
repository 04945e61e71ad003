package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore persists the ledger in PostgreSQL.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextAccountID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindAccount)
}

func (s *SQLStore) NextTransactionID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindTransaction)
}

func (s *SQLStore) NextLotID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindLot)
}

func (s *SQLStore) NextConsumptionID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindConsumption)
}

func (s *SQLStore) InsertAccount(ctx context.Context, a Account) error {
	const query = `
INSERT INTO accounts (id, name, account_type, currency, balance, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.q.Exec(ctx, query, a.ID, a.Name, string(a.Type), a.Currency, a.Balance, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("finance: insert account: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Currency, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finance: scan account: %w", err)
	}
	return &a, nil
}

func (s *SQLStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	const query = `SELECT id, name, account_type, currency, balance, created_at FROM accounts WHERE id = $1`
	return scanAccount(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) AccountForUpdate(ctx context.Context, id string) (*Account, error) {
	const query = `SELECT id, name, account_type, currency, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(s.q.QueryRow(ctx, query, id))
}

func (s *SQLStore) ListAccounts(ctx context.Context) ([]Account, error) {
	const query = `SELECT id, name, account_type, currency, balance, created_at FROM accounts ORDER BY id`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("finance: list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = $2 WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("finance: update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finance: update balance: account %s not found", id)
	}
	return nil
}

const transactionColumns = `
id, category, from_account_id, to_account_id, amount, currency,
exchange_rate, reference_type, reference_id, description, transaction_date`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t        Transaction
		from, to *string
		refType  *string
		refID    *string
		desc     *string
	)
	err := row.Scan(
		&t.ID, &t.Category, &from, &to, &t.Amount, &t.Currency,
		&t.ExchangeRate, &refType, &refID, &desc, &t.Date,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finance: scan transaction: %w", err)
	}
	if from != nil {
		t.FromAccountID = *from
	}
	if to != nil {
		t.ToAccountID = *to
	}
	if refType != nil {
		t.ReferenceType = *refType
	}
	if refID != nil {
		t.ReferenceID = *refID
	}
	if desc != nil {
		t.Description = *desc
	}
	return &t, nil
}

func (s *SQLStore) InsertTransaction(ctx context.Context, t Transaction) error {
	const query = `
INSERT INTO financial_transactions (
	id, category, from_account_id, to_account_id, amount, currency,
	exchange_rate, reference_type, reference_id, description, transaction_date
) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)`

	_, err := s.q.Exec(ctx, query,
		t.ID, string(t.Category), t.FromAccountID, t.ToAccountID, t.Amount, t.Currency,
		t.ExchangeRate, t.ReferenceType, t.ReferenceID, t.Description, t.Date,
	)
	if err != nil {
		return fmt.Errorf("finance: insert transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) FindTransactionByReference(ctx context.Context, referenceType, referenceID string) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + `
FROM financial_transactions
WHERE reference_type = $1 AND reference_id = $2
LIMIT 1`
	return scanTransaction(s.q.QueryRow(ctx, query, referenceType, referenceID))
}

func (s *SQLStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
FROM financial_transactions
WHERE ($1 = '' OR from_account_id = $1 OR to_account_id = $1)
  AND ($2 = '' OR category = $2)
ORDER BY transaction_date DESC, id DESC
LIMIT $3`

	rows, err := s.q.Query(ctx, query, filter.AccountID, string(filter.Category), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("finance: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertLot(ctx context.Context, l Lot) error {
	const query = `
INSERT INTO currency_lots (id, account_id, currency, amount, remaining, exchange_rate, lot_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q.Exec(ctx, query, l.ID, l.AccountID, l.Currency, l.Amount, l.Remaining, l.ExchangeRate, l.Date)
	if err != nil {
		return fmt.Errorf("finance: insert lot: %w", err)
	}
	return nil
}

func scanLot(row pgx.Row) (*Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.AccountID, &l.Currency, &l.Amount, &l.Remaining, &l.ExchangeRate, &l.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finance: scan lot: %w", err)
	}
	return &l, nil
}

func (s *SQLStore) GetLot(ctx context.Context, id string) (*Lot, error) {
	const query = `SELECT id, account_id, currency, amount, remaining, exchange_rate, lot_date FROM currency_lots WHERE id = $1`
	return scanLot(s.q.QueryRow(ctx, query, id))
}

// OpenLotsForUpdate returns consumable lots oldest first. Ties on the
// acquisition date break by id, which is also acquisition order.
func (s *SQLStore) OpenLotsForUpdate(ctx context.Context, accountID, currency string) ([]Lot, error) {
	const query = `
SELECT id, account_id, currency, amount, remaining, exchange_rate, lot_date
FROM currency_lots
WHERE account_id = $1 AND currency = $2 AND remaining > 0
ORDER BY lot_date ASC, id ASC
FOR UPDATE`

	rows, err := s.q.Query(ctx, query, accountID, currency)
	if err != nil {
		return nil, fmt.Errorf("finance: open lots: %w", err)
	}
	defer rows.Close()

	var out []Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateLotRemaining(ctx context.Context, id string, remaining decimal.Decimal) error {
	const query = `UPDATE currency_lots SET remaining = $2 WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, id, remaining)
	if err != nil {
		return fmt.Errorf("finance: update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finance: update lot: lot %s not found", id)
	}
	return nil
}

func (s *SQLStore) InsertConsumption(ctx context.Context, c Consumption) error {
	const query = `
INSERT INTO lot_consumptions (id, transaction_id, lot_id, consumed_amount, exchange_rate)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, c.ID, c.TransactionID, c.LotID, c.Amount, c.ExchangeRate)
	if err != nil {
		return fmt.Errorf("finance: insert consumption: %w", err)
	}
	return nil
}

func (s *SQLStore) SumLotConsumptions(ctx context.Context, lotID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(consumed_amount), 0) FROM lot_consumptions WHERE lot_id = $1`

	var sum decimal.Decimal
	if err := s.q.QueryRow(ctx, query, lotID).Scan(&sum); err != nil {
		return decimal.Decimal{}, fmt.Errorf("finance: sum consumptions: %w", err)
	}
	return sum, nil
}

func (s *SQLStore) ListLots(ctx context.Context, accountID string) ([]Lot, error) {
	const query = `
SELECT id, account_id, currency, amount, remaining, exchange_rate, lot_date
FROM currency_lots
WHERE account_id = $1
ORDER BY lot_date ASC, id ASC`

	rows, err := s.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("finance: list lots: %w", err)
	}
	defer rows.Close()

	var out []Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
