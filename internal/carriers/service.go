package carriers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store exposes carrier persistence bound to the caller's transaction.
type Store interface {
	NextCarrierID(ctx context.Context) (string, error)
	NextRateID(ctx context.Context) (string, error)
	InsertCarrier(ctx context.Context, c Carrier) error
	CarrierForUpdate(ctx context.Context, id string) (*Carrier, error)
	GetCarrier(ctx context.Context, id string) (*Carrier, error)
	ListCarriers(ctx context.Context, activeOnly bool) ([]Carrier, error)
	SetCarrierActive(ctx context.Context, id string, active bool) error
	FindRate(ctx context.Context, carrierID, department string) (*Rate, error)
	UpsertRate(ctx context.Context, r Rate) error
	ListRates(ctx context.Context, carrierID string) ([]Rate, error)
	CountOpenOrders(ctx context.Context, carrierID string) (int64, error)
	CountPendingSettlements(ctx context.Context, carrierID string) (int64, error)
}

func createCarrier(ctx context.Context, store Store, in CreateCarrierInput) (Carrier, error) {
	if in.Name == "" {
		return Carrier{}, shared.NewValidationError("name", "carrier name required")
	}
	id, err := store.NextCarrierID(ctx)
	if err != nil {
		return Carrier{}, err
	}
	carrier := Carrier{
		ID:        id,
		Name:      in.Name,
		Phone:     in.Phone,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.InsertCarrier(ctx, carrier); err != nil {
		return Carrier{}, err
	}
	return carrier, nil
}

// deactivateCarrier refuses while the carrier still has open orders or
// pending settlements, since both depend on the carrier staying
// addressable. Deactivating an inactive carrier is a no-op.
func deactivateCarrier(ctx context.Context, store Store, id string) (Carrier, error) {
	c, err := store.CarrierForUpdate(ctx, id)
	if err != nil {
		return Carrier{}, err
	}
	if c == nil {
		return Carrier{}, &shared.NotFoundError{Entity: "carrier", ID: id}
	}
	if !c.Active {
		return *c, nil
	}
	openOrders, err := store.CountOpenOrders(ctx, id)
	if err != nil {
		return Carrier{}, err
	}
	if openOrders > 0 {
		return Carrier{}, shared.NewValidationError("carrier_id", "carrier %s has %d open orders", id, openOrders)
	}
	pending, err := store.CountPendingSettlements(ctx, id)
	if err != nil {
		return Carrier{}, err
	}
	if pending > 0 {
		return Carrier{}, shared.NewValidationError("carrier_id", "carrier %s has %d pending settlements", id, pending)
	}
	if err := store.SetCarrierActive(ctx, id, false); err != nil {
		return Carrier{}, err
	}
	c.Active = false
	return *c, nil
}

func activateCarrier(ctx context.Context, store Store, id string) (Carrier, error) {
	c, err := store.CarrierForUpdate(ctx, id)
	if err != nil {
		return Carrier{}, err
	}
	if c == nil {
		return Carrier{}, &shared.NotFoundError{Entity: "carrier", ID: id}
	}
	if !c.Active {
		if err := store.SetCarrierActive(ctx, id, true); err != nil {
			return Carrier{}, err
		}
		c.Active = true
	}
	return *c, nil
}

func setRate(ctx context.Context, store Store, in UpsertRateInput) (Rate, error) {
	if in.CarrierID == "" || in.Department == "" {
		return Rate{}, shared.NewValidationError("carrier_id", "carrier and department required")
	}
	if in.Delivery.IsNegative() || in.Express.IsNegative() || in.Return.IsNegative() {
		return Rate{}, shared.NewValidationError("delivery", "commissions must not be negative")
	}
	c, err := store.GetCarrier(ctx, in.CarrierID)
	if err != nil {
		return Rate{}, err
	}
	if c == nil {
		return Rate{}, &shared.NotFoundError{Entity: "carrier", ID: in.CarrierID}
	}
	existing, err := store.FindRate(ctx, in.CarrierID, in.Department)
	if err != nil {
		return Rate{}, err
	}
	id := ""
	if existing != nil {
		id = existing.ID
	} else {
		id, err = store.NextRateID(ctx)
		if err != nil {
			return Rate{}, err
		}
	}
	rate := Rate{
		ID:         id,
		CarrierID:  in.CarrierID,
		Department: in.Department,
		Delivery:   in.Delivery,
		Express:    in.Express,
		Return:     in.Return,
	}
	if err := store.UpsertRate(ctx, rate); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

// Service manages carriers and their rate cards.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// Create registers a carrier. New carriers start active.
func (s *Service) Create(ctx context.Context, in CreateCarrierInput) (Carrier, error) {
	var carrier Carrier
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		carrier, err = createCarrier(ctx, NewStore(tx), in)
		return err
	})
	if err != nil {
		return Carrier{}, err
	}
	s.logger.Info("carrier created", slog.String("carrier_id", carrier.ID), slog.String("name", carrier.Name))
	return carrier, nil
}

// Get returns one carrier.
func (s *Service) Get(ctx context.Context, id string) (Carrier, error) {
	c, err := NewStore(s.pool).GetCarrier(ctx, id)
	if err != nil {
		return Carrier{}, err
	}
	if c == nil {
		return Carrier{}, &shared.NotFoundError{Entity: "carrier", ID: id}
	}
	return *c, nil
}

// List returns carriers, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Carrier, error) {
	return NewStore(s.pool).ListCarriers(ctx, activeOnly)
}

// Deactivate turns a carrier off.
func (s *Service) Deactivate(ctx context.Context, id string) (Carrier, error) {
	var carrier Carrier
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		carrier, err = deactivateCarrier(ctx, NewStore(tx), id)
		return err
	})
	if err != nil {
		return Carrier{}, err
	}
	s.logger.Info("carrier deactivated", slog.String("carrier_id", id))
	return carrier, nil
}

// Activate turns a carrier back on. No preconditions apply.
func (s *Service) Activate(ctx context.Context, id string) (Carrier, error) {
	var carrier Carrier
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		carrier, err = activateCarrier(ctx, NewStore(tx), id)
		return err
	})
	if err != nil {
		return Carrier{}, err
	}
	return carrier, nil
}

// SetRate creates or replaces a carrier's rate card for a department.
func (s *Service) SetRate(ctx context.Context, in UpsertRateInput) (Rate, error) {
	var rate Rate
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		rate, err = setRate(ctx, NewStore(tx), in)
		return err
	})
	if err != nil {
		return Rate{}, err
	}
	return rate, nil
}

// Rates lists a carrier's rate cards.
func (s *Service) Rates(ctx context.Context, carrierID string) ([]Rate, error) {
	return NewStore(s.pool).ListRates(ctx, carrierID)
}
