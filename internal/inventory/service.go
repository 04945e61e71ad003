package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store exposes the persistence operations the ledger needs. All
// methods run against whatever transaction the store was bound to.
type Store interface {
	NextMovementID(ctx context.Context) (string, error)
	NextRecordID(ctx context.Context) (string, error)
	FindMovementByReference(ctx context.Context, referenceID, variantID, department string) (*Movement, error)
	InsertMovement(ctx context.Context, m Movement) error
	RecordForUpdate(ctx context.Context, variantID, department string) (*Record, error)
	InsertRecord(ctx context.Context, rec Record) error
	UpdateRecordQuantity(ctx context.Context, id string, qty decimal.Decimal, at time.Time) error
}

// ErrRecordNotFound indicates a missing stock record row.
var ErrRecordNotFound = errors.New("inventory: stock record not found")

// Ledger applies stock movements. It carries no transaction of its
// own; callers hand it a Store bound to their transaction so a
// movement can commit or roll back together with whatever triggered it.
type Ledger struct{}

// Post applies one movement. Movements are idempotent on
// (reference id, variant, department): a replay returns the original
// movement and reports applied=false without touching stock.
func (Ledger) Post(ctx context.Context, s Store, in PostInput) (Movement, bool, error) {
	if !in.Kind.Valid() {
		return Movement{}, false, shared.NewValidationError("kind", "unknown movement kind %q", in.Kind)
	}
	if in.VariantID == "" || in.Department == "" {
		return Movement{}, false, shared.NewValidationError("variant_id", "variant and department required")
	}
	if in.ReferenceID == "" {
		return Movement{}, false, shared.NewValidationError("reference_id", "reference id required")
	}

	delta := in.Quantity
	switch dir := in.Kind.Direction(); {
	case dir != 0:
		if !in.Quantity.IsPositive() {
			return Movement{}, false, shared.NewValidationError("quantity", "quantity must be positive")
		}
		if dir < 0 {
			delta = in.Quantity.Neg()
		}
	default:
		if in.Quantity.IsZero() {
			return Movement{}, false, shared.NewValidationError("quantity", "adjustment quantity must be non-zero")
		}
	}

	existing, err := s.FindMovementByReference(ctx, in.ReferenceID, in.VariantID, in.Department)
	if err != nil {
		return Movement{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	rec, err := s.RecordForUpdate(ctx, in.VariantID, in.Department)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Movement{}, false, err
	}
	now := time.Now().UTC()
	if rec == nil {
		id, err := s.NextRecordID(ctx)
		if err != nil {
			return Movement{}, false, err
		}
		rec = &Record{ID: id, VariantID: in.VariantID, Department: in.Department, Quantity: decimal.Zero, UpdatedAt: now}
		if err := s.InsertRecord(ctx, *rec); err != nil {
			return Movement{}, false, err
		}
	}

	newQty := rec.Quantity.Add(delta)
	if newQty.IsNegative() {
		return Movement{}, false, &shared.InsufficientStockError{
			VariantID:  in.VariantID,
			Department: in.Department,
			Requested:  delta.Neg(),
			Available:  rec.Quantity,
		}
	}

	id, err := s.NextMovementID(ctx)
	if err != nil {
		return Movement{}, false, err
	}
	mv := Movement{
		ID:          id,
		Kind:        in.Kind,
		VariantID:   in.VariantID,
		Department:  in.Department,
		Quantity:    delta,
		ReferenceID: in.ReferenceID,
		Note:        in.Note,
		CreatedAt:   now,
	}
	if err := s.InsertMovement(ctx, mv); err != nil {
		return Movement{}, false, err
	}
	if err := s.UpdateRecordQuantity(ctx, rec.ID, newQty, now); err != nil {
		return Movement{}, false, err
	}
	return mv, true, nil
}

// Transfer moves stock between departments as a paired out/in posting
// under one generated reference. The source is checked before either
// side posts, so a failed transfer leaves nothing behind.
func (l Ledger) Transfer(ctx context.Context, s Store, in TransferInput) (TransferResult, error) {
	if in.VariantID == "" || in.FromDepartment == "" || in.ToDepartment == "" {
		return TransferResult{}, shared.NewValidationError("variant_id", "variant and both departments required")
	}
	if in.FromDepartment == in.ToDepartment {
		return TransferResult{}, shared.NewValidationError("to_department", "source and destination department must differ")
	}
	if !in.Quantity.IsPositive() {
		return TransferResult{}, shared.NewValidationError("quantity", "quantity must be positive")
	}

	ref := fmt.Sprintf("TRF-%s", uuid.NewString())
	out, _, err := l.Post(ctx, s, PostInput{
		Kind:        MovementTransferOut,
		VariantID:   in.VariantID,
		Department:  in.FromDepartment,
		Quantity:    in.Quantity,
		ReferenceID: ref,
		Note:        fmt.Sprintf("Transfer to %s: %s", in.ToDepartment, in.Note),
	})
	if err != nil {
		return TransferResult{}, err
	}
	inMv, _, err := l.Post(ctx, s, PostInput{
		Kind:        MovementTransferIn,
		VariantID:   in.VariantID,
		Department:  in.ToDepartment,
		Quantity:    in.Quantity,
		ReferenceID: ref,
		Note:        fmt.Sprintf("Transfer from %s: %s", in.FromDepartment, in.Note),
	})
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{ReferenceID: ref, Out: out, In: inMv}, nil
}

// Stock returns the on-hand quantity of a variant in a department.
// A missing record reads as zero.
func (Ledger) Stock(ctx context.Context, s Store, variantID, department string) (decimal.Decimal, error) {
	rec, err := s.RecordForUpdate(ctx, variantID, department)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return decimal.Zero, err
	}
	if rec == nil {
		return decimal.Zero, nil
	}
	return rec.Quantity, nil
}

// Service wraps the ledger with its own transaction boundary for
// callers that are not already inside one.
type Service struct {
	pool   *pgxpool.Pool
	ledger Ledger
	logger *slog.Logger
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// Post applies a movement in its own transaction.
func (s *Service) Post(ctx context.Context, in PostInput) (Movement, bool, error) {
	var (
		mv      Movement
		applied bool
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		mv, applied, err = s.ledger.Post(ctx, NewStore(tx), in)
		return err
	})
	if err != nil {
		return Movement{}, false, err
	}
	if applied {
		s.logger.Info("inventory movement posted",
			slog.String("movement_id", mv.ID),
			slog.String("kind", string(mv.Kind)),
			slog.String("variant_id", mv.VariantID),
			slog.String("department", mv.Department),
			slog.String("quantity", mv.Quantity.String()))
	}
	return mv, applied, nil
}

// Transfer moves stock between departments in its own transaction.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	var res TransferResult
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		res, err = s.ledger.Transfer(ctx, NewStore(tx), in)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.logger.Info("inventory transfer posted",
		slog.String("reference_id", res.ReferenceID),
		slog.String("variant_id", in.VariantID),
		slog.String("from", in.FromDepartment),
		slog.String("to", in.ToDepartment))
	return res, nil
}

// Stock lists stock records matching the filter.
func (s *Service) Stock(ctx context.Context, filter StockFilter) ([]Record, error) {
	return NewStore(s.pool).ListRecords(ctx, filter)
}
