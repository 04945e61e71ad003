package carriers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/altiplano-erp/altiplano-erp/internal/sequence"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

type fakeStore struct {
	carriers           map[string]*Carrier
	rates              map[string]*Rate
	openOrders         map[string]int64
	pendingSettlements map[string]int64
	nextCarrier        int64
	nextRate           int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carriers:           make(map[string]*Carrier),
		rates:              make(map[string]*Rate),
		openOrders:         make(map[string]int64),
		pendingSettlements: make(map[string]int64),
	}
}

func rateKey(carrierID, department string) string { return carrierID + "|" + department }

func (f *fakeStore) NextCarrierID(ctx context.Context) (string, error) {
	f.nextCarrier++
	return sequence.Format(sequence.KindCarrier, f.nextCarrier)
}

func (f *fakeStore) NextRateID(ctx context.Context) (string, error) {
	f.nextRate++
	return sequence.Format(sequence.KindRate, f.nextRate)
}

func (f *fakeStore) InsertCarrier(ctx context.Context, c Carrier) error {
	f.carriers[c.ID] = &c
	return nil
}

func (f *fakeStore) CarrierForUpdate(ctx context.Context, id string) (*Carrier, error) {
	return f.GetCarrier(ctx, id)
}

func (f *fakeStore) GetCarrier(ctx context.Context, id string) (*Carrier, error) {
	c, ok := f.carriers[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (f *fakeStore) ListCarriers(ctx context.Context, activeOnly bool) ([]Carrier, error) {
	var out []Carrier
	for _, c := range f.carriers {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) SetCarrierActive(ctx context.Context, id string, active bool) error {
	f.carriers[id].Active = active
	return nil
}

func (f *fakeStore) FindRate(ctx context.Context, carrierID, department string) (*Rate, error) {
	r, ok := f.rates[rateKey(carrierID, department)]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (f *fakeStore) UpsertRate(ctx context.Context, r Rate) error {
	f.rates[rateKey(r.CarrierID, r.Department)] = &r
	return nil
}

func (f *fakeStore) ListRates(ctx context.Context, carrierID string) ([]Rate, error) {
	var out []Rate
	for _, r := range f.rates {
		if r.CarrierID == carrierID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountOpenOrders(ctx context.Context, carrierID string) (int64, error) {
	return f.openOrders[carrierID], nil
}

func (f *fakeStore) CountPendingSettlements(ctx context.Context, carrierID string) (int64, error) {
	return f.pendingSettlements[carrierID], nil
}

func (f *fakeStore) seedCarrier(id string, active bool) {
	f.carriers[id] = &Carrier{ID: id, Name: "Trans " + id, Active: active, CreatedAt: time.Now().UTC()}
}

func TestCreateCarrierStartsActive(t *testing.T) {
	store := newFakeStore()
	c, err := createCarrier(context.Background(), store, CreateCarrierInput{Name: "Trans Andes", Phone: "70000001"})
	require.NoError(t, err)
	require.Equal(t, "CAR00000001", c.ID)
	require.True(t, c.Active)
}

func TestCreateCarrierRequiresName(t *testing.T) {
	_, err := createCarrier(context.Background(), newFakeStore(), CreateCarrierInput{})
	require.True(t, shared.IsValidation(err))
}

func TestDeactivateCleanCarrier(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", true)

	c, err := deactivateCarrier(context.Background(), store, "CAR00000001")
	require.NoError(t, err)
	require.False(t, c.Active)
	require.False(t, store.carriers["CAR00000001"].Active)
}

func TestDeactivateBlockedByOpenOrders(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", true)
	store.openOrders["CAR00000001"] = 3

	_, err := deactivateCarrier(context.Background(), store, "CAR00000001")
	require.True(t, shared.IsValidation(err))
	require.True(t, store.carriers["CAR00000001"].Active, "carrier must stay active")
}

func TestDeactivateBlockedByPendingSettlements(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", true)
	store.pendingSettlements["CAR00000001"] = 1

	_, err := deactivateCarrier(context.Background(), store, "CAR00000001")
	require.True(t, shared.IsValidation(err))
	require.True(t, store.carriers["CAR00000001"].Active)
}

func TestDeactivateInactiveCarrierIsNoop(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", false)
	store.openOrders["CAR00000001"] = 5 // must not matter for an already inactive carrier

	c, err := deactivateCarrier(context.Background(), store, "CAR00000001")
	require.NoError(t, err)
	require.False(t, c.Active)
}

func TestDeactivateUnknownCarrier(t *testing.T) {
	_, err := deactivateCarrier(context.Background(), newFakeStore(), "CAR99999999")
	require.True(t, shared.IsNotFound(err))
}

func TestActivateCarrier(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", false)

	c, err := activateCarrier(context.Background(), store, "CAR00000001")
	require.NoError(t, err)
	require.True(t, c.Active)
}

func TestSetRateCreatesThenReplaces(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", true)
	ctx := context.Background()

	first, err := setRate(ctx, store, UpsertRateInput{
		CarrierID:  "CAR00000001",
		Department: "la-paz",
		Delivery:   decimal.RequireFromString("15.00"),
		Express:    decimal.RequireFromString("25.00"),
		Return:     decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	require.Equal(t, "RATE00000001", first.ID)

	second, err := setRate(ctx, store, UpsertRateInput{
		CarrierID:  "CAR00000001",
		Department: "la-paz",
		Delivery:   decimal.RequireFromString("18.00"),
		Express:    decimal.RequireFromString("28.00"),
		Return:     decimal.RequireFromString("12.00"),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "replacing a rate keeps its id")
	require.True(t, store.rates[rateKey("CAR00000001", "la-paz")].Delivery.Equal(decimal.RequireFromString("18.00")))
}

func TestSetRateRejectsNegativeCommission(t *testing.T) {
	store := newFakeStore()
	store.seedCarrier("CAR00000001", true)

	_, err := setRate(context.Background(), store, UpsertRateInput{
		CarrierID:  "CAR00000001",
		Department: "la-paz",
		Delivery:   decimal.RequireFromString("-1"),
	})
	require.True(t, shared.IsValidation(err))
}

func TestSetRateUnknownCarrier(t *testing.T) {
	_, err := setRate(context.Background(), newFakeStore(), UpsertRateInput{
		CarrierID:  "CAR42424242",
		Department: "la-paz",
	})
	require.True(t, shared.IsNotFound(err))
}
