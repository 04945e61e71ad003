package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

type fakeStore struct {
	settlements     map[string]*Settlement
	contributions   map[string]*Contribution
	activeCarriers  map[string]bool
	nextSettlement  int64
	nextContrib     int64
	markPaidCalls   int
	deletedSettleID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settlements:    make(map[string]*Settlement),
		contributions:  make(map[string]*Contribution),
		activeCarriers: make(map[string]bool),
	}
}

func (f *fakeStore) NextSettlementID(ctx context.Context) (string, error) {
	f.nextSettlement++
	return sequence.Format(sequence.KindSettlement, f.nextSettlement)
}

func (f *fakeStore) NextContributionID(ctx context.Context) (string, error) {
	f.nextContrib++
	return sequence.Format(sequence.KindContribution, f.nextContrib)
}

func (f *fakeStore) CarrierActive(ctx context.Context, carrierID string) (bool, error) {
	return f.activeCarriers[carrierID], nil
}

func (f *fakeStore) SettlementForWeek(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error) {
	for _, st := range f.settlements {
		if st.CarrierID == carrierID && st.WeekStart.Equal(weekStart) {
			clone := *st
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LatestSettlementBefore(ctx context.Context, carrierID string, weekStart time.Time) (*Settlement, error) {
	var latest *Settlement
	for _, st := range f.settlements {
		if st.CarrierID != carrierID || !st.WeekStart.Before(weekStart) {
			continue
		}
		if latest == nil || st.WeekStart.After(latest.WeekStart) {
			latest = st
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeStore) SettlementForUpdate(ctx context.Context, id string) (*Settlement, error) {
	return f.GetSettlement(ctx, id)
}

func (f *fakeStore) GetSettlement(ctx context.Context, id string) (*Settlement, error) {
	st, ok := f.settlements[id]
	if !ok {
		return nil, nil
	}
	clone := *st
	return &clone, nil
}

func (f *fakeStore) ListSettlements(ctx context.Context, carrierID string, limit int) ([]Settlement, error) {
	var out []Settlement
	for _, st := range f.settlements {
		if st.CarrierID == carrierID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertSettlement(ctx context.Context, s Settlement) error {
	f.settlements[s.ID] = &s
	return nil
}

func (f *fakeStore) UpdateSettlementTotals(ctx context.Context, s Settlement) error {
	existing := f.settlements[s.ID]
	existing.Deliveries = s.Deliveries
	existing.DeliveriesAmount = s.DeliveriesAmount
	existing.Returns = s.Returns
	existing.ReturnsAmount = s.ReturnsAmount
	existing.NetAmount = s.NetAmount
	existing.FinalAmount = s.FinalAmount
	return nil
}

func (f *fakeStore) DeleteSettlement(ctx context.Context, id string) error {
	delete(f.settlements, id)
	for cid, c := range f.contributions {
		if c.SettlementID == id {
			delete(f.contributions, cid)
		}
	}
	f.deletedSettleID = id
	return nil
}

func (f *fakeStore) MarkPaid(ctx context.Context, id, walletID string, paidDate time.Time, notes string) error {
	st := f.settlements[id]
	st.Status = StatusPaid
	st.WalletID = walletID
	st.PaidDate = &paidDate
	st.Notes = notes
	f.markPaidCalls++
	return nil
}

func (f *fakeStore) InsertContribution(ctx context.Context, c Contribution) error {
	f.contributions[c.ID] = &c
	return nil
}

func (f *fakeStore) DeleteContribution(ctx context.Context, orderID string, typ ContributionType) (*Contribution, error) {
	for id, c := range f.contributions {
		if c.OrderID == orderID && c.Type == typ {
			delete(f.contributions, id)
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListContributions(ctx context.Context, settlementID string) ([]Contribution, error) {
	var out []Contribution
	for _, c := range f.contributions {
		if c.SettlementID == settlementID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakePoster struct {
	posted []Settlement
	exists bool
}

func (p *fakePoster) SettlementTransactionExists(ctx context.Context, settlementID string) (bool, error) {
	return p.exists, nil
}

func (p *fakePoster) PostSettlementIncome(ctx context.Context, s Settlement) (string, error) {
	p.posted = append(p.posted, s)
	return "TXN00000001", nil
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testOrder() OrderSnapshot {
	return OrderSnapshot{
		OrderID:      "ORD00000001",
		CarrierID:    "CAR00000001",
		Total:        money("200.00"),
		DeliveryCost: money("15.00"),
		ReturnCost:   money("10.00"),
	}
}

// A Wednesday; its week opens Monday 2026-08-24.
var midWeek = time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)

func TestWeekStartMondayAlignment(t *testing.T) {
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 7; d++ {
		day := monday.AddDate(0, 0, d).Add(13 * time.Hour)
		require.True(t, WeekStart(day).Equal(monday), "day offset %d", d)
	}
	require.True(t, WeekEnd(monday).Equal(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)))
}

func TestTransitionEffects(t *testing.T) {
	cases := []struct {
		name     string
		old, new Outcome
		want     []Effect
	}{
		{"none to delivered", OutcomeNone, OutcomeDelivered, []Effect{EffectAddDelivery}},
		{"none to returned", OutcomeNone, OutcomeReturned, []Effect{EffectAddReturn}},
		{"delivered to returned", OutcomeDelivered, OutcomeReturned, []Effect{EffectRemoveDelivery, EffectAddReturn}},
		{"returned to delivered", OutcomeReturned, OutcomeDelivered, []Effect{EffectRemoveReturn, EffectAddDelivery}},
		{"delivered to none", OutcomeDelivered, OutcomeNone, []Effect{EffectRemoveDelivery}},
		{"returned to none", OutcomeReturned, OutcomeNone, []Effect{EffectRemoveReturn}},
		{"no change", OutcomeDelivered, OutcomeDelivered, nil},
		{"neither priced", OutcomeNone, OutcomeNone, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, TransitionEffects(tc.old, tc.new))
		})
	}
}

func TestDeliveryAccruesContribution(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true

	st, err := Aggregator{}.ApplyTransition(context.Background(), store, testOrder(), OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, 1, st.Deliveries)
	require.True(t, st.DeliveriesAmount.Equal(money("185.00")), "contribution is total minus delivery cost")
	require.True(t, st.NetAmount.Equal(money("185.00")))
	require.True(t, st.FinalAmount.Equal(money("185.00")))
	require.True(t, st.WeekStart.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)))
	require.Len(t, store.contributions, 1)
	for _, c := range store.contributions {
		require.Equal(t, ContributionDelivery, c.Type)
		require.True(t, c.Amount.Equal(money("185.00")))
		require.True(t, c.Commission.Equal(money("15.00")))
	}
}

func TestReturnAccruesReturnCost(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true

	st, err := Aggregator{}.ApplyTransition(context.Background(), store, testOrder(), OutcomeNone, OutcomeReturned, midWeek)
	require.NoError(t, err)
	require.Equal(t, 1, st.Returns)
	require.True(t, st.ReturnsAmount.Equal(money("10.00")))
	require.True(t, st.NetAmount.Equal(money("-10.00")))
	require.True(t, st.FinalAmount.Equal(money("-10.00")))
}

func TestDeliveredFlipsToReturned(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true
	ctx := context.Background()
	agg := Aggregator{}

	_, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)
	st, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeDelivered, OutcomeReturned, midWeek)
	require.NoError(t, err)

	require.Equal(t, 0, st.Deliveries)
	require.True(t, st.DeliveriesAmount.IsZero())
	require.Equal(t, 1, st.Returns)
	require.True(t, st.ReturnsAmount.Equal(money("10.00")))
	require.True(t, st.FinalAmount.Equal(money("-10.00")))

	// Only the return contribution survives.
	require.Len(t, store.contributions, 1)
	for _, c := range store.contributions {
		require.Equal(t, ContributionReturn, c.Type)
	}
}

func TestRevertedSettlementIsDeleted(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true
	ctx := context.Background()
	agg := Aggregator{}

	_, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)
	st, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeDelivered, OutcomeNone, midWeek)
	require.NoError(t, err)
	require.Nil(t, st)
	require.Empty(t, store.settlements)
	require.Empty(t, store.contributions)
	require.Equal(t, "PAY00000001", store.deletedSettleID)
}

func TestNegativeBalanceCarriesForward(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true
	ctx := context.Background()
	agg := Aggregator{}

	// Week 1 ends negative: only a return.
	_, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeNone, OutcomeReturned, midWeek)
	require.NoError(t, err)

	// Week 2 opens with the negative carry.
	nextWeek := midWeek.AddDate(0, 0, 7)
	other := testOrder()
	other.OrderID = "ORD00000002"
	st, err := agg.ApplyTransition(ctx, store, other, OutcomeNone, OutcomeDelivered, nextWeek)
	require.NoError(t, err)
	require.True(t, st.PreviousBalance.Equal(money("-10.00")))
	require.True(t, st.NetAmount.Equal(money("185.00")))
	require.True(t, st.FinalAmount.Equal(money("175.00")), "final = net + previous balance")
}

func TestPositiveBalanceDoesNotCarry(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = true
	ctx := context.Background()
	agg := Aggregator{}

	_, err := agg.ApplyTransition(ctx, store, testOrder(), OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)

	nextWeek := midWeek.AddDate(0, 0, 7)
	other := testOrder()
	other.OrderID = "ORD00000002"
	st, err := agg.ApplyTransition(ctx, store, other, OutcomeNone, OutcomeDelivered, nextWeek)
	require.NoError(t, err)
	require.True(t, st.PreviousBalance.IsZero())
	require.True(t, st.FinalAmount.Equal(money("185.00")))
}

func TestInactiveCarrierAccruesNothing(t *testing.T) {
	store := newFakeStore()
	store.activeCarriers["CAR00000001"] = false

	st, err := Aggregator{}.ApplyTransition(context.Background(), store, testOrder(), OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)
	require.Nil(t, st)
	require.Empty(t, store.settlements)
}

func TestOrderWithoutCarrierAccruesNothing(t *testing.T) {
	store := newFakeStore()
	ord := testOrder()
	ord.CarrierID = ""

	st, err := Aggregator{}.ApplyTransition(context.Background(), store, ord, OutcomeNone, OutcomeDelivered, midWeek)
	require.NoError(t, err)
	require.Nil(t, st)
}

func seedPendingSettlement(store *fakeStore, final string) *Settlement {
	st := &Settlement{
		ID:               "PAY00000001",
		CarrierID:        "CAR00000001",
		WeekStart:        WeekStart(midWeek),
		WeekEnd:          WeekEnd(WeekStart(midWeek)),
		Deliveries:       2,
		DeliveriesAmount: money(final),
		NetAmount:        money(final),
		PreviousBalance:  decimal.Zero,
		FinalAmount:      money(final),
		Status:           StatusPending,
	}
	store.settlements[st.ID] = st
	return st
}

func TestSettleMarksPaidAndPostsIncome(t *testing.T) {
	store := newFakeStore()
	seedPendingSettlement(store, "370.00")
	poster := &fakePoster{}

	st, err := settle(context.Background(), store, poster, SettleInput{
		SettlementID: "PAY00000001",
		WalletID:     "ACC00000001",
		Notes:        "paid via QR",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, st.Status)
	require.Equal(t, "ACC00000001", st.WalletID)
	require.NotNil(t, st.PaidDate)
	require.Len(t, poster.posted, 1)
	require.True(t, poster.posted[0].FinalAmount.Equal(money("370.00")))
	require.Equal(t, 1, store.markPaidCalls)
}

func TestSettleTwiceIsRefused(t *testing.T) {
	store := newFakeStore()
	seedPendingSettlement(store, "370.00")
	poster := &fakePoster{}
	ctx := context.Background()
	in := SettleInput{SettlementID: "PAY00000001", WalletID: "ACC00000001"}

	_, err := settle(ctx, store, poster, in)
	require.NoError(t, err)
	_, err = settle(ctx, store, poster, in)
	require.True(t, errors.Is(err, shared.ErrAlreadyApplied))
	require.Len(t, poster.posted, 1)
}

func TestSettleRefusedWhenLedgerAlreadyHasTransaction(t *testing.T) {
	store := newFakeStore()
	seedPendingSettlement(store, "370.00")
	poster := &fakePoster{exists: true}

	_, err := settle(context.Background(), store, poster, SettleInput{
		SettlementID: "PAY00000001",
		WalletID:     "ACC00000001",
	})
	require.True(t, errors.Is(err, shared.ErrAlreadyApplied))
	require.Empty(t, poster.posted)
	require.Equal(t, 0, store.markPaidCalls)
}

func TestSettleRequiresPositiveFinalAmount(t *testing.T) {
	store := newFakeStore()
	seedPendingSettlement(store, "-20.00")

	_, err := settle(context.Background(), store, &fakePoster{}, SettleInput{
		SettlementID: "PAY00000001",
		WalletID:     "ACC00000001",
	})
	require.True(t, shared.IsValidation(err))
}

func TestSettleRequiresWallet(t *testing.T) {
	store := newFakeStore()
	seedPendingSettlement(store, "370.00")

	_, err := settle(context.Background(), store, &fakePoster{}, SettleInput{
		SettlementID: "PAY00000001",
	})
	require.True(t, shared.IsValidation(err))
}

func TestSettleUnknownSettlement(t *testing.T) {
	_, err := settle(context.Background(), newFakeStore(), &fakePoster{}, SettleInput{
		SettlementID: "PAY40400000",
		WalletID:     "ACC00000001",
	})
	require.True(t, shared.IsNotFound(err))
}

func seedSettlement(store *fakeStore, id, final string, status SettlementStatus) {
	st := &Settlement{
		ID:               id,
		CarrierID:        "CAR00000001",
		WeekStart:        WeekStart(midWeek),
		WeekEnd:          WeekEnd(WeekStart(midWeek)),
		Deliveries:       1,
		DeliveriesAmount: money(final),
		NetAmount:        money(final),
		PreviousBalance:  decimal.Zero,
		FinalAmount:      money(final),
		Status:           status,
	}
	store.settlements[st.ID] = st
}

func TestSettleBatchPaysEachPending(t *testing.T) {
	store := newFakeStore()
	seedSettlement(store, "PAY00000001", "185.00", StatusPending)
	seedSettlement(store, "PAY00000002", "92.50", StatusPending)
	poster := &fakePoster{}

	res, err := settleBatch(context.Background(), store, poster, BatchSettleInput{
		SettlementIDs: []string{"PAY00000001", "PAY00000002"},
		WalletID:      "ACC00000001",
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.True(t, res.Results[0].Paid)
	require.True(t, res.Results[1].Paid)
	require.True(t, res.TotalAmount.Equal(money("277.50")))
	require.Len(t, poster.posted, 2)
}

func TestSettleBatchSkipsUnpayable(t *testing.T) {
	store := newFakeStore()
	seedSettlement(store, "PAY00000001", "185.00", StatusPending)
	seedSettlement(store, "PAY00000002", "50.00", StatusPaid)
	seedSettlement(store, "PAY00000003", "-20.00", StatusPending)
	poster := &fakePoster{}

	res, err := settleBatch(context.Background(), store, poster, BatchSettleInput{
		SettlementIDs: []string{"PAY00000001", "PAY00000002", "PAY00000003", "PAY00000404"},
		WalletID:      "ACC00000001",
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 4)
	require.True(t, res.Results[0].Paid)
	require.False(t, res.Results[1].Paid)
	require.Equal(t, "already paid", res.Results[1].Reason)
	require.False(t, res.Results[2].Paid)
	require.False(t, res.Results[3].Paid)
	require.True(t, res.TotalAmount.Equal(money("185.00")))
	require.Len(t, poster.posted, 1)
}

func TestSettleBatchRequiresWallet(t *testing.T) {
	store := newFakeStore()
	seedSettlement(store, "PAY00000001", "185.00", StatusPending)

	_, err := settleBatch(context.Background(), store, &fakePoster{}, BatchSettleInput{
		SettlementIDs: []string{"PAY00000001"},
	})
	require.True(t, shared.IsValidation(err))
}
