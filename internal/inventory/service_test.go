package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

type fakeStore struct {
	movements []Movement
	records   map[string]*Record
	nextMov   int64
	nextRec   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*Record)}
}

func recordKey(variantID, department string) string {
	return variantID + "|" + department
}

func (f *fakeStore) NextMovementID(ctx context.Context) (string, error) {
	f.nextMov++
	return sequence.Format(sequence.KindMovement, f.nextMov)
}

func (f *fakeStore) NextRecordID(ctx context.Context) (string, error) {
	f.nextRec++
	return sequence.Format(sequence.KindInventory, f.nextRec)
}

func (f *fakeStore) FindMovementByReference(ctx context.Context, referenceID, variantID, department string) (*Movement, error) {
	for i := range f.movements {
		m := f.movements[i]
		if m.ReferenceID == referenceID && m.VariantID == variantID && m.Department == department {
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertMovement(ctx context.Context, m Movement) error {
	f.movements = append(f.movements, m)
	return nil
}

func (f *fakeStore) RecordForUpdate(ctx context.Context, variantID, department string) (*Record, error) {
	rec, ok := f.records[recordKey(variantID, department)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) InsertRecord(ctx context.Context, rec Record) error {
	f.records[recordKey(rec.VariantID, rec.Department)] = &rec
	return nil
}

func (f *fakeStore) UpdateRecordQuantity(ctx context.Context, id string, qty decimal.Decimal, at time.Time) error {
	for _, rec := range f.records {
		if rec.ID == id {
			rec.Quantity = qty
			rec.UpdatedAt = at
			return nil
		}
	}
	return ErrRecordNotFound
}

func (f *fakeStore) seed(variantID, department string, qty int64) {
	f.nextRec++
	id, _ := sequence.Format(sequence.KindInventory, f.nextRec)
	f.records[recordKey(variantID, department)] = &Record{
		ID:         id,
		VariantID:  variantID,
		Department: department,
		Quantity:   decimal.NewFromInt(qty),
		UpdatedAt:  time.Now().UTC(),
	}
}

func (f *fakeStore) quantity(t *testing.T, variantID, department string) decimal.Decimal {
	t.Helper()
	rec, ok := f.records[recordKey(variantID, department)]
	require.True(t, ok, "no record for %s/%s", variantID, department)
	return rec.Quantity
}

func TestPostSaleDecrementsStock(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 10)

	mv, applied, err := Ledger{}.Post(context.Background(), store, PostInput{
		Kind:        MovementSale,
		VariantID:   "VAR-1",
		Department:  "la-paz",
		Quantity:    decimal.NewFromInt(3),
		ReferenceID: "ORD00000001",
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, "MOV00000001", mv.ID)
	require.True(t, mv.Quantity.Equal(decimal.NewFromInt(-3)))
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(7)))
}

func TestPostPurchaseCreatesRecord(t *testing.T) {
	store := newFakeStore()

	mv, applied, err := Ledger{}.Post(context.Background(), store, PostInput{
		Kind:        MovementPurchase,
		VariantID:   "VAR-9",
		Department:  "cochabamba",
		Quantity:    decimal.NewFromInt(25),
		ReferenceID: "PO-77",
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, mv.Quantity.Equal(decimal.NewFromInt(25)))
	require.True(t, store.quantity(t, "VAR-9", "cochabamba").Equal(decimal.NewFromInt(25)))
}

func TestPostInsufficientStock(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 2)

	_, _, err := Ledger{}.Post(context.Background(), store, PostInput{
		Kind:        MovementSale,
		VariantID:   "VAR-1",
		Department:  "la-paz",
		Quantity:    decimal.NewFromInt(5),
		ReferenceID: "ORD00000002",
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.Requested.Equal(decimal.NewFromInt(5)))
	require.True(t, stockErr.Available.Equal(decimal.NewFromInt(2)))

	// Stock untouched, nothing journaled.
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(2)))
	require.Empty(t, store.movements)
}

func TestPostIdempotentOnReference(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 10)

	in := PostInput{
		Kind:        MovementSale,
		VariantID:   "VAR-1",
		Department:  "la-paz",
		Quantity:    decimal.NewFromInt(4),
		ReferenceID: "ORD00000003",
	}
	first, applied, err := Ledger{}.Post(context.Background(), store, in)
	require.NoError(t, err)
	require.True(t, applied)

	second, applied, err := Ledger{}.Post(context.Background(), store, in)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, first.ID, second.ID)
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(6)))
	require.Len(t, store.movements, 1)
}

func TestPostSameReferenceDifferentDepartment(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 10)
	store.seed("VAR-1", "santa-cruz", 10)

	for _, dept := range []string{"la-paz", "santa-cruz"} {
		_, applied, err := Ledger{}.Post(context.Background(), store, PostInput{
			Kind:        MovementSale,
			VariantID:   "VAR-1",
			Department:  dept,
			Quantity:    decimal.NewFromInt(1),
			ReferenceID: "ORD00000004",
		})
		require.NoError(t, err)
		require.True(t, applied, "department %s should apply independently", dept)
	}
	require.Len(t, store.movements, 2)
}

func TestPostNegativeAdjustment(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 5)

	mv, applied, err := Ledger{}.Post(context.Background(), store, PostInput{
		Kind:        MovementAdjustment,
		VariantID:   "VAR-1",
		Department:  "la-paz",
		Quantity:    decimal.NewFromInt(-2),
		ReferenceID: "ADJ-1",
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, mv.Quantity.Equal(decimal.NewFromInt(-2)))
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(3)))
}

func TestPostValidation(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	cases := []struct {
		name string
		in   PostInput
	}{
		{"unknown kind", PostInput{Kind: "teleport", VariantID: "V", Department: "d", Quantity: decimal.NewFromInt(1), ReferenceID: "R"}},
		{"missing variant", PostInput{Kind: MovementSale, Department: "d", Quantity: decimal.NewFromInt(1), ReferenceID: "R"}},
		{"missing reference", PostInput{Kind: MovementSale, VariantID: "V", Department: "d", Quantity: decimal.NewFromInt(1)}},
		{"zero quantity", PostInput{Kind: MovementSale, VariantID: "V", Department: "d", ReferenceID: "R"}},
		{"negative sale quantity", PostInput{Kind: MovementSale, VariantID: "V", Department: "d", Quantity: decimal.NewFromInt(-1), ReferenceID: "R"}},
		{"zero adjustment", PostInput{Kind: MovementAdjustment, VariantID: "V", Department: "d", ReferenceID: "R"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Ledger{}.Post(ctx, store, tc.in)
			require.True(t, shared.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestTransferMovesStockBetweenDepartments(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 10)

	res, err := Ledger{}.Transfer(context.Background(), store, TransferInput{
		VariantID:      "VAR-1",
		FromDepartment: "la-paz",
		ToDepartment:   "el-alto",
		Quantity:       decimal.NewFromInt(4),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.ReferenceID, "TRF-"))
	require.Equal(t, res.ReferenceID, res.Out.ReferenceID)
	require.Equal(t, res.ReferenceID, res.In.ReferenceID)
	require.True(t, res.Out.Quantity.Equal(decimal.NewFromInt(-4)))
	require.True(t, res.In.Quantity.Equal(decimal.NewFromInt(4)))
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(6)))
	require.True(t, store.quantity(t, "VAR-1", "el-alto").Equal(decimal.NewFromInt(4)))
}

func TestTransferInsufficientSourceLeavesNothing(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 1)

	_, err := Ledger{}.Transfer(context.Background(), store, TransferInput{
		VariantID:      "VAR-1",
		FromDepartment: "la-paz",
		ToDepartment:   "el-alto",
		Quantity:       decimal.NewFromInt(3),
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Empty(t, store.movements)
	require.True(t, store.quantity(t, "VAR-1", "la-paz").Equal(decimal.NewFromInt(1)))
}

func TestTransferSameDepartmentRejected(t *testing.T) {
	store := newFakeStore()

	_, err := Ledger{}.Transfer(context.Background(), store, TransferInput{
		VariantID:      "VAR-1",
		FromDepartment: "la-paz",
		ToDepartment:   "la-paz",
		Quantity:       decimal.NewFromInt(1),
	})
	require.True(t, shared.IsValidation(err))
}

func TestMovementSumMatchesRecord(t *testing.T) {
	store := newFakeStore()
	ledger := Ledger{}
	ctx := context.Background()

	inputs := []PostInput{
		{Kind: MovementPurchase, Quantity: decimal.NewFromInt(20)},
		{Kind: MovementSale, Quantity: decimal.NewFromInt(7)},
		{Kind: MovementReturn, Quantity: decimal.NewFromInt(2)},
		{Kind: MovementAdjustment, Quantity: decimal.NewFromInt(-1)},
	}
	for i, in := range inputs {
		in.VariantID = "VAR-1"
		in.Department = "la-paz"
		in.ReferenceID = fmt.Sprintf("REF-%d", i)
		_, _, err := ledger.Post(ctx, store, in)
		require.NoError(t, err)
	}

	sum := decimal.Zero
	for _, m := range store.movements {
		sum = sum.Add(m.Quantity)
	}
	require.True(t, sum.Equal(store.quantity(t, "VAR-1", "la-paz")))
	require.True(t, sum.Equal(decimal.NewFromInt(14)))
}

func TestRecordNotFoundSentinel(t *testing.T) {
	store := newFakeStore()
	_, err := store.RecordForUpdate(context.Background(), "nope", "nowhere")
	require.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestStockMissingRecordReadsZero(t *testing.T) {
	store := newFakeStore()
	var ledger Ledger

	qty, err := ledger.Stock(context.Background(), store, "VAR-1", "la-paz")

	require.NoError(t, err)
	require.True(t, qty.IsZero())
}

func TestStockReturnsRecordedQuantity(t *testing.T) {
	store := newFakeStore()
	store.seed("VAR-1", "la-paz", 7)
	var ledger Ledger

	qty, err := ledger.Stock(context.Background(), store, "VAR-1", "la-paz")

	require.NoError(t, err)
	require.True(t, qty.Equal(decimal.NewFromInt(7)))
}
