package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
)

// SQLStore implements Store on a pgx pool or transaction.
type SQLStore struct {
	q       db.DBTX
	counter *sequence.Counter
}

func NewStore(q db.DBTX) *SQLStore {
	return &SQLStore{q: q, counter: sequence.NewCounter(q)}
}

func (s *SQLStore) NextOrderID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindOrder)
}

func (s *SQLStore) NextCustomerID(ctx context.Context) (string, error) {
	return s.counter.Next(ctx, sequence.KindCustomer)
}

const orderColumns = `id, customer_id, COALESCE(carrier_id, ''), status, total,
	delivery_cost, return_cost, priority_shipping, priority_shipping_cost,
	COALESCE(external_order_id, ''), COALESCE(utm_source, ''),
	COALESCE(utm_medium, ''), COALESCE(utm_campaign, ''),
	COALESCE(notes, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.CarrierID, &o.Status, &o.Total,
		&o.DeliveryCost, &o.ReturnCost, &o.PriorityShipping, &o.PriorityShippingCost,
		&o.ExternalOrderID, &o.UTMSource, &o.UTMMedium, &o.UTMCampaign,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLStore) FindOrderByExternalID(ctx context.Context, externalID string) (*Order, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE external_order_id = $1`, externalID)
	return scanOrder(row)
}

func (s *SQLStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *SQLStore) OrderForUpdate(ctx context.Context, id string) (*Order, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (s *SQLStore) InsertOrder(ctx context.Context, o Order) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO orders (id, customer_id, carrier_id, status, total,
			delivery_cost, return_cost, priority_shipping, priority_shipping_cost,
			external_order_id, utm_source, utm_medium, utm_campaign, notes,
			created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9,
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''),
			NULLIF($14, ''), $15, $16)`,
		o.ID, o.CustomerID, o.CarrierID, o.Status, o.Total,
		o.DeliveryCost, o.ReturnCost, o.PriorityShipping, o.PriorityShippingCost,
		o.ExternalOrderID, o.UTMSource, o.UTMMedium, o.UTMCampaign, o.Notes,
		o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *SQLStore) UpdateOrderOutcome(ctx context.Context, o Order) error {
	_, err := s.q.Exec(ctx, `
		UPDATE orders
		SET status = $2, delivery_cost = $3, return_cost = $4,
			priority_shipping_cost = $5, notes = NULLIF($6, ''), updated_at = $7
		WHERE id = $1`,
		o.ID, o.Status, o.DeliveryCost, o.ReturnCost,
		o.PriorityShippingCost, o.Notes, o.UpdatedAt)
	return err
}

func (s *SQLStore) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR carrier_id = $2)
		  AND ($3 = '' OR customer_id = $3)
		  AND ($4 = '' OR external_order_id = $4)
		ORDER BY created_at DESC
		LIMIT $5`,
		string(f.Status), f.CarrierID, f.CustomerID, f.ExternalOrderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const trackingColumns = `order_id, status, COALESCE(tracking_code, ''),
	COALESCE(notes, ''), reminder_sent, follow_up_sent, updated_at`

func (s *SQLStore) GetTracking(ctx context.Context, orderID string) (*Tracking, error) {
	var t Tracking
	err := s.q.QueryRow(ctx,
		`SELECT `+trackingColumns+` FROM order_tracking WHERE order_id = $1`, orderID).
		Scan(&t.OrderID, &t.Status, &t.TrackingCode, &t.Notes,
			&t.ReminderSent, &t.FollowUpSent, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) InsertTracking(ctx context.Context, t Tracking) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO order_tracking (order_id, status, tracking_code, notes,
			reminder_sent, follow_up_sent, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)`,
		t.OrderID, t.Status, t.TrackingCode, t.Notes,
		t.ReminderSent, t.FollowUpSent, t.UpdatedAt)
	return err
}

func (s *SQLStore) UpdateTracking(ctx context.Context, t Tracking) error {
	_, err := s.q.Exec(ctx, `
		UPDATE order_tracking
		SET status = $2, tracking_code = NULLIF($3, ''), notes = NULLIF($4, ''),
			reminder_sent = $5, follow_up_sent = $6, updated_at = $7
		WHERE order_id = $1`,
		t.OrderID, t.Status, t.TrackingCode, t.Notes,
		t.ReminderSent, t.FollowUpSent, t.UpdatedAt)
	return err
}

func (s *SQLStore) InsertItem(ctx context.Context, it Item) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO order_items (id, order_id, variant_id, product_name,
			quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		it.ID, it.OrderID, it.VariantID, it.ProductName,
		it.Quantity, it.UnitPrice, it.Subtotal)
	return err
}

const itemColumns = `id, order_id, variant_id, product_name, quantity, unit_price, subtotal`

func (s *SQLStore) ListItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *SQLStore) RecentCustomerItems(ctx context.Context, customerID string, since time.Time) ([]Item, error) {
	rows, err := s.q.Query(ctx, `
		SELECT i.id, i.order_id, i.variant_id, i.product_name,
			i.quantity, i.unit_price, i.subtotal
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.customer_id = $1 AND o.created_at >= $2`,
		customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const customerColumns = `id, full_name, phone, COALESCE(email, ''), department,
	COALESCE(address, ''), COALESCE(reference, ''), active, total_orders,
	total_spent, created_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.Department,
		&c.Address, &c.Reference, &c.Active, &c.TotalOrders,
		&c.TotalSpent, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLStore) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	return scanCustomer(row)
}

func (s *SQLStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

func (s *SQLStore) InsertCustomer(ctx context.Context, c Customer) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO customers (id, full_name, phone, email, department,
			address, reference, active, total_orders, total_spent, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''),
			$8, $9, $10, $11)`,
		c.ID, c.FullName, c.Phone, c.Email, c.Department,
		c.Address, c.Reference, c.Active, c.TotalOrders, c.TotalSpent, c.CreatedAt)
	return err
}

func (s *SQLStore) UpdateCustomerContact(ctx context.Context, c Customer) error {
	_, err := s.q.Exec(ctx, `
		UPDATE customers
		SET full_name = $2, email = NULLIF($3, ''), department = $4,
			address = NULLIF($5, ''), reference = NULLIF($6, '')
		WHERE id = $1`,
		c.ID, c.FullName, c.Email, c.Department, c.Address, c.Reference)
	return err
}

func (s *SQLStore) UpdateCustomerStats(ctx context.Context, id string, spent decimal.Decimal) error {
	_, err := s.q.Exec(ctx, `
		UPDATE customers
		SET total_orders = total_orders + 1, total_spent = total_spent + $2
		WHERE id = $1`,
		id, spent)
	return err
}
