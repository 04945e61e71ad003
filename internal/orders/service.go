package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/carriers"
	"github.com/altiplano-erp/altiplano-erp/internal/catalog"
	"github.com/altiplano-erp/altiplano-erp/internal/inventory"
	"github.com/altiplano-erp/altiplano-erp/internal/payments"
	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store is the persistence port for orders and customers.
type Store interface {
	NextOrderID(ctx context.Context) (string, error)
	NextCustomerID(ctx context.Context) (string, error)

	FindOrderByExternalID(ctx context.Context, externalID string) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	OrderForUpdate(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o Order) error
	UpdateOrderOutcome(ctx context.Context, o Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)

	GetTracking(ctx context.Context, orderID string) (*Tracking, error)
	InsertTracking(ctx context.Context, t Tracking) error
	UpdateTracking(ctx context.Context, t Tracking) error

	InsertItem(ctx context.Context, it Item) error
	ListItems(ctx context.Context, orderID string) ([]Item, error)
	// RecentCustomerItems returns items on the customer's orders
	// created at or after the given instant.
	RecentCustomerItems(ctx context.Context, customerID string, since time.Time) ([]Item, error)

	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	InsertCustomer(ctx context.Context, c Customer) error
	UpdateCustomerContact(ctx context.Context, c Customer) error
	UpdateCustomerStats(ctx context.Context, id string, spent decimal.Decimal) error
}

// CarrierSource is the slice of the carriers component the
// orchestrator reads.
type CarrierSource interface {
	GetCarrier(ctx context.Context, id string) (*carriers.Carrier, error)
	FindRate(ctx context.Context, carrierID, department string) (*carriers.Rate, error)
}

// Deps bundles the component ports an order operation touches. All
// stores must be bound to the same transaction.
type Deps struct {
	Orders      Store
	Catalog     catalog.Store
	Inventory   inventory.Store
	Carriers    CarrierSource
	Settlements payments.Store
}

// CustomerInput is the buyer contact block on an incoming order.
type CustomerInput struct {
	FullName   string `json:"full_name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Department string `json:"department" validate:"required"`
	Address    string `json:"address"`
	Reference  string `json:"reference"`
}

// ItemInput is one incoming order line. Product identification follows
// the catalog resolution cascade.
type ItemInput struct {
	ExternalProductID string          `json:"external_product_id"`
	ExternalVariantID string          `json:"external_variant_id"`
	ProductName       string          `json:"product_name" validate:"required"`
	SKU               string          `json:"sku"`
	Quantity          decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// CreateInput is an order as received from a storefront.
type CreateInput struct {
	ExternalOrderID  string          `json:"external_order_id"`
	Customer         CustomerInput   `json:"customer" validate:"required"`
	Items            []ItemInput     `json:"items" validate:"required,min=1,dive"`
	Total            decimal.Decimal `json:"total"`
	CarrierID        string          `json:"carrier_id"`
	PriorityShipping bool            `json:"priority_shipping"`
	UTMSource        string          `json:"utm_source"`
	UTMMedium        string          `json:"utm_medium"`
	UTMCampaign      string          `json:"utm_campaign"`
	Notes            string          `json:"notes"`
}

// CreateResult reports what creating an order did. Warnings surface
// non-fatal observations (replays, auto-created products) to the
// storefront.
type CreateResult struct {
	Order           Order
	Items           []Item
	Customer        Customer
	AlreadyExisted  bool
	VariantsCreated int
	Warnings        []string
}

// StatusUpdate is one transition request. TrackingCode and the
// reminder flags update the tracking record when set.
type StatusUpdate struct {
	Status       Status
	Notes        string
	TrackingCode string
	ReminderSent *bool
	FollowUpSent *bool
}

// duplicateWindow is how far back the duplicate order guard looks.
const duplicateWindow = 24 * time.Hour

// createOrder ingests a storefront order. Replays on external order id
// return the stored order untouched.
func createOrder(ctx context.Context, d Deps, in CreateInput, now time.Time) (CreateResult, error) {
	if len(in.Items) == 0 {
		return CreateResult{}, &shared.ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, it := range in.Items {
		if it.Quantity.LessThanOrEqual(decimal.Zero) {
			return CreateResult{}, &shared.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}
		if it.UnitPrice.IsNegative() {
			return CreateResult{}, &shared.ValidationError{Field: fmt.Sprintf("items[%d].unit_price", i), Reason: "must not be negative"}
		}
	}
	if in.Total.IsNegative() {
		return CreateResult{}, &shared.ValidationError{Field: "total", Reason: "must not be negative"}
	}

	if in.ExternalOrderID != "" {
		existing, err := d.Orders.FindOrderByExternalID(ctx, in.ExternalOrderID)
		if err != nil {
			return CreateResult{}, err
		}
		if existing != nil {
			items, err := d.Orders.ListItems(ctx, existing.ID)
			if err != nil {
				return CreateResult{}, err
			}
			cust, err := d.Orders.GetCustomer(ctx, existing.CustomerID)
			if err != nil {
				return CreateResult{}, err
			}
			res := CreateResult{
				Order:          *existing,
				Items:          items,
				AlreadyExisted: true,
				Warnings:       []string{fmt.Sprintf("duplicate: order %s already ingested", in.ExternalOrderID)},
			}
			if cust != nil {
				res.Customer = *cust
			}
			return res, nil
		}
	}

	if in.CarrierID != "" {
		c, err := d.Carriers.GetCarrier(ctx, in.CarrierID)
		if err != nil {
			return CreateResult{}, err
		}
		if c == nil {
			return CreateResult{}, &shared.NotFoundError{Entity: "carrier", ID: in.CarrierID}
		}
	}

	customer, err := findOrCreateCustomer(ctx, d.Orders, in.Customer, now)
	if err != nil {
		return CreateResult{}, err
	}

	resolver := catalog.Resolver{}
	variants := make([]catalog.Variant, len(in.Items))
	created := 0
	for i, it := range in.Items {
		v, madeNew, err := resolver.FindOrCreateVariant(ctx, d.Catalog, catalog.VariantQuery{
			ExternalProductID: it.ExternalProductID,
			ExternalVariantID: it.ExternalVariantID,
			Name:              it.ProductName,
			SKU:               it.SKU,
		})
		if err != nil {
			return CreateResult{}, err
		}
		variants[i] = v
		if madeNew {
			created++
		}
	}

	if err := checkDuplicateOrder(ctx, d.Orders, customer.ID, in.Items, variants, now); err != nil {
		return CreateResult{}, err
	}

	orderID, err := d.Orders.NextOrderID(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	order := Order{
		ID:               orderID,
		CustomerID:       customer.ID,
		CarrierID:        in.CarrierID,
		Status:           StatusNew,
		Total:            in.Total,
		PriorityShipping: in.PriorityShipping,
		ExternalOrderID:  in.ExternalOrderID,
		UTMSource:        in.UTMSource,
		UTMMedium:        in.UTMMedium,
		UTMCampaign:      in.UTMCampaign,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	items := make([]Item, len(in.Items))
	var sum decimal.Decimal
	for i, it := range in.Items {
		subtotal := it.Quantity.Mul(it.UnitPrice)
		items[i] = Item{
			ID:          sequence.ItemSuffix(orderID, i+1),
			OrderID:     orderID,
			VariantID:   variants[i].ID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    subtotal,
		}
		sum = sum.Add(subtotal)
	}
	if sum.Sub(in.Total).Abs().GreaterThan(totalTolerance) {
		return CreateResult{}, &shared.ValidationError{
			Field:  "total",
			Reason: fmt.Sprintf("order total %s does not match item subtotals %s", in.Total, sum),
		}
	}

	if err := d.Orders.InsertOrder(ctx, order); err != nil {
		return CreateResult{}, err
	}
	for _, it := range items {
		if err := d.Orders.InsertItem(ctx, it); err != nil {
			return CreateResult{}, err
		}
	}
	if err := d.Orders.InsertTracking(ctx, Tracking{
		OrderID:   orderID,
		Status:    StatusNew,
		UpdatedAt: now,
	}); err != nil {
		return CreateResult{}, err
	}
	if err := d.Orders.UpdateCustomerStats(ctx, customer.ID, in.Total); err != nil {
		return CreateResult{}, err
	}
	customer.TotalOrders++
	customer.TotalSpent = customer.TotalSpent.Add(in.Total)

	res := CreateResult{Order: order, Items: items, Customer: customer, VariantsCreated: created}
	if created > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d products were auto-created", created))
	}
	return res, nil
}

// findOrCreateCustomer looks the buyer up by phone and refreshes their
// contact details from the incoming order. Inactive customers are
// refused.
func findOrCreateCustomer(ctx context.Context, s Store, in CustomerInput, now time.Time) (Customer, error) {
	phone := strings.TrimSpace(in.Phone)
	dept := NormalizeDepartment(in.Department)

	existing, err := s.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return Customer{}, err
	}
	if existing != nil {
		if !existing.Active {
			return Customer{}, &shared.ValidationError{Field: "customer", Reason: "customer is inactive"}
		}
		existing.FullName = in.FullName
		existing.Department = dept
		if in.Email != "" {
			existing.Email = in.Email
		}
		if in.Address != "" {
			existing.Address = in.Address
		}
		if in.Reference != "" {
			existing.Reference = in.Reference
		}
		if err := s.UpdateCustomerContact(ctx, *existing); err != nil {
			return Customer{}, err
		}
		return *existing, nil
	}

	id, err := s.NextCustomerID(ctx)
	if err != nil {
		return Customer{}, err
	}
	c := Customer{
		ID:         id,
		FullName:   in.FullName,
		Phone:      phone,
		Email:      in.Email,
		Department: dept,
		Address:    in.Address,
		Reference:  in.Reference,
		Active:     true,
		CreatedAt:  now,
	}
	if err := s.InsertCustomer(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// checkDuplicateOrder refuses an order when the same customer already
// ordered the same variant in the same quantity inside the window.
// Storefronts in this market resubmit on flaky connections.
func checkDuplicateOrder(ctx context.Context, s Store, customerID string, in []ItemInput, variants []catalog.Variant, now time.Time) error {
	recent, err := s.RecentCustomerItems(ctx, customerID, now.Add(-duplicateWindow))
	if err != nil {
		return err
	}
	for i, it := range in {
		for _, r := range recent {
			if r.VariantID == variants[i].ID && r.Quantity.Equal(it.Quantity) {
				return &shared.ValidationError{
					Field:  "items",
					Reason: fmt.Sprintf("duplicate order: %s x%s already ordered in the last 24h", it.ProductName, it.Quantity),
				}
			}
		}
	}
	return nil
}

// updateStatus moves an order to a new status and applies everything
// the transition implies: shipping costs from the carrier rate card,
// settlement accrual, and stock movements on delivery or return.
func updateStatus(ctx context.Context, d Deps, agg payments.Aggregator, ledger inventory.Ledger, orderID string, upd StatusUpdate, now time.Time) (Order, error) {
	newStatus := upd.Status
	if !newStatus.Valid() {
		return Order{}, &shared.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	order, err := d.Orders.OrderForUpdate(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order == nil {
		return Order{}, &shared.NotFoundError{Entity: "order", ID: orderID}
	}

	items, err := d.Orders.ListItems(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if newStatus.RequiresItems() && len(items) == 0 {
		return Order{}, &shared.ValidationError{Field: "status", Reason: fmt.Sprintf("order has no items, cannot mark %s", newStatus)}
	}

	customer, err := d.Orders.GetCustomer(ctx, order.CustomerID)
	if err != nil {
		return Order{}, err
	}
	if customer == nil {
		return Order{}, &shared.NotFoundError{Entity: "customer", ID: order.CustomerID}
	}

	tracking, err := d.Orders.GetTracking(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	trackingMissing := tracking == nil
	if trackingMissing {
		tracking = &Tracking{OrderID: orderID, Status: order.Status}
	}

	oldStatus := order.Status
	order.Status = newStatus
	tracking.Status = newStatus
	if upd.Notes != "" {
		tracking.Notes = appendNote(tracking.Notes, newStatus, upd.Notes)
	}
	if upd.TrackingCode != "" {
		tracking.TrackingCode = upd.TrackingCode
	}
	if upd.ReminderSent != nil {
		tracking.ReminderSent = *upd.ReminderSent
	}
	if upd.FollowUpSent != nil {
		tracking.FollowUpSent = *upd.FollowUpSent
	}
	tracking.UpdatedAt = now

	if err := applyShippingCosts(ctx, d.Carriers, order, customer.Department); err != nil {
		return Order{}, err
	}

	if _, err := agg.ApplyTransition(ctx, d.Settlements, order.Snapshot(), oldStatus.Outcome(), newStatus.Outcome(), now); err != nil {
		return Order{}, err
	}

	if err := applyStockMovements(ctx, d.Inventory, ledger, *order, items, customer.Department, oldStatus, newStatus); err != nil {
		return Order{}, err
	}

	order.UpdatedAt = now
	if err := d.Orders.UpdateOrderOutcome(ctx, *order); err != nil {
		return Order{}, err
	}
	if trackingMissing {
		err = d.Orders.InsertTracking(ctx, *tracking)
	} else {
		err = d.Orders.UpdateTracking(ctx, *tracking)
	}
	if err != nil {
		return Order{}, err
	}
	return *order, nil
}

func appendNote(existing string, status Status, note string) string {
	entry := fmt.Sprintf("[%s] %s", status, note)
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}

// applyShippingCosts reprices the order from the carrier's rate card
// for the customer's department. Orders without a carrier, or carriers
// without a rate for the department, cost nothing.
func applyShippingCosts(ctx context.Context, cs CarrierSource, order *Order, department string) error {
	var event carriers.Event
	switch order.Status {
	case StatusDelivered:
		event = carriers.EventDelivered
	case StatusReturned:
		event = carriers.EventReturned
	default:
		event = carriers.EventNone
	}

	var rate *carriers.Rate
	if order.CarrierID != "" {
		var err error
		rate, err = cs.FindRate(ctx, order.CarrierID, department)
		if err != nil {
			return err
		}
	}
	cost := carriers.Quote(rate, event, order.PriorityShipping)
	order.DeliveryCost = cost.DeliveryCost
	order.ReturnCost = cost.ReturnCost
	order.PriorityShippingCost = cost.PriorityCost
	return nil
}

// applyStockMovements posts the stock effects of entering delivered or
// returned. Movements are keyed by order id so a repeated transition
// posts nothing twice.
func applyStockMovements(ctx context.Context, inv inventory.Store, ledger inventory.Ledger, order Order, items []Item, department string, oldStatus, newStatus Status) error {
	if oldStatus == newStatus {
		return nil
	}
	switch newStatus {
	case StatusDelivered:
		// Check every line before moving anything so a short line
		// surfaces without half the order already deducted.
		for _, it := range items {
			prior, err := inv.FindMovementByReference(ctx, order.ID, it.VariantID, department)
			if err != nil {
				return err
			}
			if prior != nil {
				continue
			}
			rec, err := inv.RecordForUpdate(ctx, it.VariantID, department)
			if err != nil && !errors.Is(err, inventory.ErrRecordNotFound) {
				return err
			}
			available := decimal.Zero
			if rec != nil {
				available = rec.Quantity
			}
			if available.LessThan(it.Quantity) {
				return &shared.InsufficientStockError{
					VariantID:  it.VariantID,
					Department: department,
					Requested:  it.Quantity,
					Available:  available,
				}
			}
		}
		for _, it := range items {
			if _, _, err := ledger.Post(ctx, inv, inventory.PostInput{
				Kind:        inventory.MovementSale,
				VariantID:   it.VariantID,
				Department:  department,
				Quantity:    it.Quantity,
				ReferenceID: order.ID,
				Note:        fmt.Sprintf("sale %s", it.ProductName),
			}); err != nil {
				return err
			}
		}
	case StatusReturned:
		for _, it := range items {
			if _, _, err := ledger.Post(ctx, inv, inventory.PostInput{
				Kind:        inventory.MovementReturn,
				VariantID:   it.VariantID,
				Department:  department,
				Quantity:    it.Quantity,
				ReferenceID: order.ID + "-return",
				Note:        fmt.Sprintf("return %s", it.ProductName),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Service runs order operations, each inside a single repeatable-read
// transaction spanning every component the operation touches.
type Service struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	aggregator payments.Aggregator
	ledger     inventory.Ledger
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

func (s *Service) deps(tx pgx.Tx) Deps {
	return Deps{
		Orders:      NewStore(tx),
		Catalog:     catalog.NewStore(tx),
		Inventory:   inventory.NewStore(tx),
		Carriers:    carriers.NewStore(tx),
		Settlements: payments.NewStore(tx),
	}
}

// isExternalIDConflict reports a unique violation on the order's
// external id, raised when two submissions of the same storefront
// order race past the replay lookup.
func isExternalIDConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		strings.Contains(pgErr.ConstraintName, "external")
}

// Create ingests a storefront order.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	var res CreateResult
	run := func() error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			var err error
			res, err = createOrder(ctx, s.deps(tx), in, time.Now().UTC())
			return err
		})
	}
	err := run()
	if err != nil && in.ExternalOrderID != "" && isExternalIDConflict(err) {
		// Lost the insert race. The winner's row is committed, so a
		// second pass resolves through the replay lookup.
		err = run()
	}
	if err != nil {
		return CreateResult{}, err
	}
	if res.AlreadyExisted {
		s.logger.Info("order replayed",
			slog.String("order_id", res.Order.ID),
			slog.String("external_order_id", in.ExternalOrderID))
	} else {
		s.logger.Info("order created",
			slog.String("order_id", res.Order.ID),
			slog.String("customer_id", res.Customer.ID),
			slog.Int("items", len(res.Items)))
	}
	return res, nil
}

// UpdateStatus transitions an order and applies all side effects
// atomically.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, upd StatusUpdate) (Order, error) {
	var order Order
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		order, err = updateStatus(ctx, s.deps(tx), s.aggregator, s.ledger, orderID, upd, time.Now().UTC())
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order status updated",
		slog.String("order_id", orderID),
		slog.String("status", string(upd.Status)))
	return order, nil
}

// Get returns an order with its items and tracking record.
func (s *Service) Get(ctx context.Context, id string) (Order, []Item, *Tracking, error) {
	store := NewStore(s.pool)
	order, err := store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, nil, nil, err
	}
	if order == nil {
		return Order{}, nil, nil, &shared.NotFoundError{Entity: "order", ID: id}
	}
	items, err := store.ListItems(ctx, id)
	if err != nil {
		return Order{}, nil, nil, err
	}
	tracking, err := store.GetTracking(ctx, id)
	if err != nil {
		return Order{}, nil, nil, err
	}
	return *order, items, tracking, nil
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, f OrderFilter) ([]Order, error) {
	return NewStore(s.pool).ListOrders(ctx, f)
}

// GetCustomerByPhone returns a customer by phone number.
func (s *Service) GetCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	c, err := NewStore(s.pool).FindCustomerByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return Customer{}, err
	}
	if c == nil {
		return Customer{}, &shared.NotFoundError{Entity: "customer", ID: phone}
	}
	return *c, nil
}
