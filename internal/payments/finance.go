package payments

import (
	"context"

	"github.com/altiplano-erp/altiplano-erp/internal/finance"
	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
)

const settlementReferenceType = "settlement"

// LedgerPoster records settlement payouts in the financial ledger,
// on the same transaction the settlement update runs on.
type LedgerPoster struct {
	ledger finance.Ledger
	store  finance.Store
}

func NewLedgerPoster(ledger finance.Ledger, q db.DBTX) *LedgerPoster {
	return &LedgerPoster{ledger: ledger, store: finance.NewStore(q)}
}

func (p *LedgerPoster) SettlementTransactionExists(ctx context.Context, settlementID string) (bool, error) {
	txn, err := p.store.FindTransactionByReference(ctx, settlementReferenceType, settlementID)
	if err != nil {
		return false, err
	}
	return txn != nil, nil
}

// PostSettlementIncome credits the wallet with the settlement's final
// amount. Settlements are collected in the base currency.
func (p *LedgerPoster) PostSettlementIncome(ctx context.Context, s Settlement) (string, error) {
	date := s.WeekEnd
	if s.PaidDate != nil {
		date = *s.PaidDate
	}
	txn, err := p.ledger.Post(ctx, p.store, finance.PostInput{
		Category:      finance.CategorySaleIncome,
		ToAccountID:   s.WalletID,
		Amount:        s.FinalAmount,
		Currency:      p.ledger.Base,
		ReferenceType: settlementReferenceType,
		ReferenceID:   s.ID,
		Description:   s.Description(),
		Date:          date,
	})
	if err != nil {
		return "", err
	}
	return txn.ID, nil
}
