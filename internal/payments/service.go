package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store exposes settlement persistence bound to the caller's
// transaction.
type Store interface {
	NextSettlementID(ctx context.Context) (string, error)
	NextContributionID(ctx context.Context) (string, error)
	CarrierActive(ctx context.Context, carrierID string) (bool, error)
	SettlementForWeek(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error)
	LatestSettlementBefore(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error)
	SettlementForUpdate(ctx context.Context, id string) (*Settlement, error)
	GetSettlement(ctx context.Context, id string) (*Settlement, error)
	ListSettlements(ctx context.Context, carrierID string, limit int) ([]Settlement, error)
	InsertSettlement(ctx context.Context, s Settlement) error
	UpdateSettlementTotals(ctx context.Context, s Settlement) error
	DeleteSettlement(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id, walletID string, paidDate time.Time, notes string) error
	InsertContribution(ctx context.Context, c Contribution) error
	// DeleteContribution removes an order's contribution of the given
	// type and returns it, or nil when none was recorded.
	DeleteContribution(ctx context.Context, orderID string, typ ContributionType) (*Contribution, error)
	ListContributions(ctx context.Context, settlementID string) ([]Contribution, error)
}

// TransactionPoster records settlement payouts in the financial
// ledger. It must run on the same transaction as the Store.
type TransactionPoster interface {
	SettlementTransactionExists(ctx context.Context, settlementID string) (bool, error)
	PostSettlementIncome(ctx context.Context, s Settlement) (string, error)
}

// Aggregator accrues order outcomes into weekly settlements. Like the
// other ledger cores it runs on whatever Store it is handed, so the
// order orchestrator can fold accrual into the order's transaction.
type Aggregator struct{}

// ApplyTransition applies the settlement effects of an order status
// transition. Orders without a carrier, carriers that are inactive or
// gone, and transitions with no priced outcome all accrue nothing.
// A settlement whose orders have all been reverted is deleted.
func (Aggregator) ApplyTransition(ctx context.Context, s Store, ord OrderSnapshot, old, new Outcome, at time.Time) (*Settlement, error) {
	if ord.CarrierID == "" {
		return nil, nil
	}
	effects := TransitionEffects(old, new)
	if len(effects) == 0 {
		return nil, nil
	}
	active, err := s.CarrierActive(ctx, ord.CarrierID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, nil
	}

	weekStart := WeekStart(at)
	st, err := s.SettlementForWeek(ctx, ord.CarrierID, weekStart)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st, err = createSettlement(ctx, s, ord.CarrierID, weekStart)
		if err != nil {
			return nil, err
		}
	}

	deliveryContribution := ord.Total.Sub(ord.DeliveryCost)
	for _, effect := range effects {
		switch effect {
		case EffectRemoveDelivery:
			// Subtract what was actually recorded: the order may have
			// been repriced since the contribution was added.
			removed, err := s.DeleteContribution(ctx, ord.OrderID, ContributionDelivery)
			if err != nil {
				return nil, err
			}
			amount := deliveryContribution
			if removed != nil {
				amount = removed.Amount
			}
			st.Deliveries--
			st.DeliveriesAmount = st.DeliveriesAmount.Sub(amount)
		case EffectAddDelivery:
			st.Deliveries++
			st.DeliveriesAmount = st.DeliveriesAmount.Add(deliveryContribution)
			id, err := s.NextContributionID(ctx)
			if err != nil {
				return nil, err
			}
			err = s.InsertContribution(ctx, Contribution{
				ID:           id,
				SettlementID: st.ID,
				OrderID:      ord.OrderID,
				Type:         ContributionDelivery,
				Amount:       deliveryContribution,
				OrderTotal:   ord.Total,
				Commission:   ord.DeliveryCost,
			})
			if err != nil {
				return nil, err
			}
		case EffectRemoveReturn:
			removed, err := s.DeleteContribution(ctx, ord.OrderID, ContributionReturn)
			if err != nil {
				return nil, err
			}
			amount := ord.ReturnCost
			if removed != nil {
				amount = removed.Amount
			}
			st.Returns--
			st.ReturnsAmount = st.ReturnsAmount.Sub(amount)
		case EffectAddReturn:
			st.Returns++
			st.ReturnsAmount = st.ReturnsAmount.Add(ord.ReturnCost)
			id, err := s.NextContributionID(ctx)
			if err != nil {
				return nil, err
			}
			err = s.InsertContribution(ctx, Contribution{
				ID:           id,
				SettlementID: st.ID,
				OrderID:      ord.OrderID,
				Type:         ContributionReturn,
				Amount:       ord.ReturnCost,
				OrderTotal:   ord.Total,
				Commission:   ord.ReturnCost,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	st.NetAmount = st.DeliveriesAmount.Sub(st.ReturnsAmount)
	st.FinalAmount = st.NetAmount.Add(st.PreviousBalance)

	if st.Deliveries <= 0 && st.Returns <= 0 {
		if err := s.DeleteSettlement(ctx, st.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := s.UpdateSettlementTotals(ctx, *st); err != nil {
		return nil, err
	}
	return st, nil
}

// createSettlement opens the carrier's settlement for a week. A
// negative final amount from the most recent prior week carries
// forward as the opening balance; positive history does not.
func createSettlement(ctx context.Context, s Store, carrierID string, weekStart time.Time) (*Settlement, error) {
	prev, err := s.LatestSettlementBefore(ctx, carrierID, weekStart)
	if err != nil {
		return nil, err
	}
	previousBalance := decimal.Zero
	if prev != nil && prev.FinalAmount.IsNegative() {
		previousBalance = prev.FinalAmount
	}
	id, err := s.NextSettlementID(ctx)
	if err != nil {
		return nil, err
	}
	st := Settlement{
		ID:               id,
		CarrierID:        carrierID,
		WeekStart:        weekStart,
		WeekEnd:          WeekEnd(weekStart),
		DeliveriesAmount: decimal.Zero,
		ReturnsAmount:    decimal.Zero,
		NetAmount:        decimal.Zero,
		PreviousBalance:  previousBalance,
		FinalAmount:      previousBalance,
		Status:           StatusPending,
	}
	if err := s.InsertSettlement(ctx, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// settle marks a settlement paid and records the matching income
// transaction. Paying twice is refused, both by status and by the
// ledger reference check.
func settle(ctx context.Context, s Store, poster TransactionPoster, in SettleInput) (Settlement, error) {
	st, err := s.SettlementForUpdate(ctx, in.SettlementID)
	if err != nil {
		return Settlement{}, err
	}
	if st == nil {
		return Settlement{}, &shared.NotFoundError{Entity: "settlement", ID: in.SettlementID}
	}
	if st.Status == StatusPaid {
		return *st, shared.ErrAlreadyApplied
	}
	if in.WalletID == "" {
		return Settlement{}, shared.NewValidationError("wallet_id", "wallet account required to mark settlement paid")
	}
	if !st.FinalAmount.IsPositive() {
		return Settlement{}, shared.NewValidationError("settlement_id",
			"cannot pay settlement %s with final amount %s", st.ID, st.FinalAmount.String())
	}
	exists, err := poster.SettlementTransactionExists(ctx, st.ID)
	if err != nil {
		return Settlement{}, err
	}
	if exists {
		return *st, shared.ErrAlreadyApplied
	}

	paidDate := in.PaidDate
	if paidDate.IsZero() {
		paidDate = time.Now().UTC()
	}
	st.Status = StatusPaid
	st.WalletID = in.WalletID
	st.PaidDate = &paidDate
	st.Notes = in.Notes

	if _, err := poster.PostSettlementIncome(ctx, *st); err != nil {
		return Settlement{}, err
	}
	if err := s.MarkPaid(ctx, st.ID, in.WalletID, paidDate, in.Notes); err != nil {
		return Settlement{}, err
	}
	return *st, nil
}

// settleBatch pays a set of settlements in one pass. Settlements that
// cannot be paid (already paid, non-positive final, missing) are
// reported per id without failing the rest; infrastructure errors
// abort the whole batch.
func settleBatch(ctx context.Context, s Store, poster TransactionPoster, in BatchSettleInput) (BatchResult, error) {
	if in.WalletID == "" {
		return BatchResult{}, shared.NewValidationError("wallet_id", "wallet account required to settle")
	}
	res := BatchResult{TotalAmount: decimal.Zero}
	for _, id := range in.SettlementIDs {
		st, err := settle(ctx, s, poster, SettleInput{
			SettlementID: id,
			WalletID:     in.WalletID,
			PaidDate:     in.PaidDate,
			Notes:        in.Notes,
		})
		switch {
		case err == nil:
			res.Results = append(res.Results, SettleResult{
				SettlementID: id, Paid: true, Amount: st.FinalAmount,
			})
			res.TotalAmount = res.TotalAmount.Add(st.FinalAmount)
		case errors.Is(err, shared.ErrAlreadyApplied):
			res.Results = append(res.Results, SettleResult{SettlementID: id, Reason: "already paid"})
		case shared.IsValidation(err) || shared.IsNotFound(err):
			res.Results = append(res.Results, SettleResult{SettlementID: id, Reason: err.Error()})
		default:
			return BatchResult{}, err
		}
	}
	return res, nil
}

// Description summarizes the settlement for its ledger transaction.
func (s Settlement) Description() string {
	parts := []string{
		"Weekly COD settlement",
		fmt.Sprintf("Carrier: %s", s.CarrierID),
		fmt.Sprintf("Week: %s", s.WeekStart.Format("2006-01-02")),
		fmt.Sprintf("Deliveries: %d (%s)", s.Deliveries, s.DeliveriesAmount.StringFixed(2)),
		fmt.Sprintf("Returns: %d (%s)", s.Returns, s.ReturnsAmount.StringFixed(2)),
	}
	if !s.PreviousBalance.IsZero() {
		parts = append(parts, fmt.Sprintf("Previous balance: %s", s.PreviousBalance.StringFixed(2)))
	}
	parts = append(parts, fmt.Sprintf("Total: %s", s.FinalAmount.StringFixed(2)))
	return strings.Join(parts, " - ")
}

// Service wraps the aggregator with its own transaction boundary.
type Service struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	newPoster func(tx pgx.Tx) TransactionPoster
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger, newPoster func(tx pgx.Tx) TransactionPoster) *Service {
	return &Service{pool: pool, logger: logger, newPoster: newPoster}
}

// Settle marks a settlement paid. The status flip and its ledger
// transaction commit together.
func (s *Service) Settle(ctx context.Context, in SettleInput) (Settlement, error) {
	var st Settlement
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		st, err = settle(ctx, NewStore(tx), s.newPoster(tx), in)
		return err
	})
	if err != nil && !errors.Is(err, shared.ErrAlreadyApplied) {
		return Settlement{}, err
	}
	if err == nil {
		s.logger.Info("settlement paid",
			slog.String("settlement_id", st.ID),
			slog.String("carrier_id", st.CarrierID),
			slog.String("final_amount", st.FinalAmount.String()))
	}
	return st, err
}

// SettleBatch pays several settlements into one wallet. Every payment
// in the batch commits together.
func (s *Service) SettleBatch(ctx context.Context, in BatchSettleInput) (BatchResult, error) {
	var res BatchResult
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		res, err = settleBatch(ctx, NewStore(tx), s.newPoster(tx), in)
		return err
	})
	if err != nil {
		return BatchResult{}, err
	}
	s.logger.Info("settlement batch paid",
		slog.Int("requested", len(in.SettlementIDs)),
		slog.String("total_amount", res.TotalAmount.String()))
	return res, nil
}

// Get returns one settlement with its contributions.
func (s *Service) Get(ctx context.Context, id string) (Settlement, []Contribution, error) {
	store := NewStore(s.pool)
	st, err := store.GetSettlement(ctx, id)
	if err != nil {
		return Settlement{}, nil, err
	}
	if st == nil {
		return Settlement{}, nil, &shared.NotFoundError{Entity: "settlement", ID: id}
	}
	contributions, err := store.ListContributions(ctx, id)
	if err != nil {
		return Settlement{}, nil, err
	}
	return *st, contributions, nil
}

// ListByCarrier returns a carrier's settlements, most recent first.
func (s *Service) ListByCarrier(ctx context.Context, carrierID string, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 10
	}
	return NewStore(s.pool).ListSettlements(ctx, carrierID, limit)
}
