package finance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Store exposes ledger persistence bound to the caller's transaction.
type Store interface {
	NextAccountID(ctx context.Context) (string, error)
	NextTransactionID(ctx context.Context) (string, error)
	NextLotID(ctx context.Context) (string, error)
	NextConsumptionID(ctx context.Context) (string, error)
	InsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	AccountForUpdate(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, t Transaction) error
	FindTransactionByReference(ctx context.Context, referenceType, referenceID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	InsertLot(ctx context.Context, l Lot) error
	GetLot(ctx context.Context, id string) (*Lot, error)
	OpenLotsForUpdate(ctx context.Context, accountID, currency string) ([]Lot, error)
	UpdateLotRemaining(ctx context.Context, id string, remaining decimal.Decimal) error
	InsertConsumption(ctx context.Context, c Consumption) error
	SumLotConsumptions(ctx context.Context, lotID string) (decimal.Decimal, error)
	ListLots(ctx context.Context, accountID string) ([]Lot, error)
}

// Ledger posts transactions against accounts. Base is the home
// currency; only non-base currencies are tracked as lots.
type Ledger struct {
	Base string
}

// Post validates and applies one transaction: the entry row, both
// account balances, FIFO lot consumption for foreign outflows, and a
// new lot for foreign inflows, in that order.
func (l Ledger) Post(ctx context.Context, s Store, in PostInput) (Transaction, error) {
	if err := validateShape(in); err != nil {
		return Transaction{}, err
	}

	from, to, err := lockAccounts(ctx, s, in.FromAccountID, in.ToAccountID)
	if err != nil {
		return Transaction{}, err
	}
	if from != nil && to != nil && from.Currency != to.Currency {
		return Transaction{}, &shared.CurrencyMismatchError{From: from.Currency, To: to.Currency}
	}
	for _, acc := range []*Account{from, to} {
		if acc != nil && acc.Currency != in.Currency {
			return Transaction{}, &shared.CurrencyMismatchError{From: in.Currency, To: acc.Currency}
		}
	}

	if from != nil && from.Balance.LessThan(in.Amount) {
		return Transaction{}, &shared.InsufficientBalanceError{
			AccountID: from.ID,
			Balance:   from.Balance,
			Required:  in.Amount,
		}
	}

	foreign := in.Currency != l.Base
	if foreign && to != nil && !in.ExchangeRate.IsPositive() {
		return Transaction{}, shared.NewValidationError("exchange_rate",
			"exchange rate required for incoming %s", in.Currency)
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	id, err := s.NextTransactionID(ctx)
	if err != nil {
		return Transaction{}, err
	}
	txn := Transaction{
		ID:            id,
		Category:      in.Category,
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		ExchangeRate:  in.ExchangeRate,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Description:   in.Description,
		Date:          date,
	}
	if err := s.InsertTransaction(ctx, txn); err != nil {
		return Transaction{}, err
	}

	if from != nil {
		if err := s.UpdateAccountBalance(ctx, from.ID, from.Balance.Sub(in.Amount)); err != nil {
			return Transaction{}, err
		}
	}
	if to != nil {
		if err := s.UpdateAccountBalance(ctx, to.ID, to.Balance.Add(in.Amount)); err != nil {
			return Transaction{}, err
		}
	}

	if foreign && from != nil {
		if err := consumeLotsFIFO(ctx, s, from.ID, in.Currency, in.Amount, txn.ID); err != nil {
			return Transaction{}, err
		}
	}
	if foreign && to != nil {
		lotID, err := s.NextLotID(ctx)
		if err != nil {
			return Transaction{}, err
		}
		lot := Lot{
			ID:           lotID,
			AccountID:    to.ID,
			Currency:     in.Currency,
			Amount:       in.Amount,
			Remaining:    in.Amount,
			ExchangeRate: in.ExchangeRate,
			Date:         date,
		}
		if err := s.InsertLot(ctx, lot); err != nil {
			return Transaction{}, err
		}
	}
	return txn, nil
}

func validateShape(in PostInput) error {
	if !in.Category.Valid() {
		return shared.NewValidationError("category", "unknown category %q", in.Category)
	}
	if !in.Amount.IsPositive() {
		return shared.NewValidationError("amount", "amount must be positive")
	}
	if in.Currency == "" {
		return shared.NewValidationError("currency", "currency required")
	}
	hasFrom := in.FromAccountID != ""
	hasTo := in.ToAccountID != ""
	switch in.Category {
	case CategorySaleIncome:
		if !hasTo || hasFrom {
			return shared.NewValidationError("to_account_id", "sale_income credits exactly one account")
		}
	case CategoryExpense:
		if !hasFrom || hasTo {
			return shared.NewValidationError("from_account_id", "expense debits exactly one account")
		}
	case CategoryTransfer:
		if !hasFrom || !hasTo {
			return shared.NewValidationError("from_account_id", "transfer requires both accounts")
		}
		if in.FromAccountID == in.ToAccountID {
			return shared.NewValidationError("to_account_id", "transfer accounts must differ")
		}
	case CategoryAdjustment:
		if hasFrom == hasTo {
			return shared.NewValidationError("from_account_id", "adjustment touches exactly one account")
		}
	}
	return nil
}

// lockAccounts loads both accounts FOR UPDATE in id order so two
// concurrent transfers over the same pair cannot deadlock.
func lockAccounts(ctx context.Context, s Store, fromID, toID string) (*Account, *Account, error) {
	ids := make([]string, 0, 2)
	if fromID != "" {
		ids = append(ids, fromID)
	}
	if toID != "" {
		ids = append(ids, toID)
	}
	if len(ids) == 2 && ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	loaded := make(map[string]*Account, 2)
	for _, id := range ids {
		acc, err := s.AccountForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if acc == nil {
			return nil, nil, &shared.NotFoundError{Entity: "account", ID: id}
		}
		loaded[id] = acc
	}
	return loaded[fromID], loaded[toID], nil
}

// consumeLotsFIFO drains open lots oldest first until the amount is
// covered, journaling a consumption per lot touched. The account
// balance check has already passed, so running out of lot coverage
// means the lots disagree with the balance.
func consumeLotsFIFO(ctx context.Context, s Store, accountID, currency string, amount decimal.Decimal, transactionID string) error {
	lots, err := s.OpenLotsForUpdate(ctx, accountID, currency)
	if err != nil {
		return err
	}
	remaining := amount
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.Remaining, remaining)
		id, err := s.NextConsumptionID(ctx)
		if err != nil {
			return err
		}
		err = s.InsertConsumption(ctx, Consumption{
			ID:            id,
			TransactionID: transactionID,
			LotID:         lot.ID,
			Amount:        take,
			ExchangeRate:  lot.ExchangeRate,
		})
		if err != nil {
			return err
		}
		if err := s.UpdateLotRemaining(ctx, lot.ID, lot.Remaining.Sub(take)); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return &shared.InsufficientBalanceError{
			AccountID: accountID,
			Balance:   amount.Sub(remaining),
			Required:  amount,
		}
	}
	return nil
}

// createAccount opens an account. A positive opening balance in a
// foreign currency needs a priced opening lot.
func createAccount(ctx context.Context, s Store, base string, in CreateAccountInput) (Account, error) {
	if in.Name == "" {
		return Account{}, shared.NewValidationError("name", "account name required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.NewValidationError("type", "unknown account type %q", in.Type)
	}
	if in.Currency == "" {
		return Account{}, shared.NewValidationError("currency", "currency required")
	}
	if in.InitialBalance.IsNegative() {
		return Account{}, shared.NewValidationError("initial_balance", "initial balance must not be negative")
	}
	foreign := in.Currency != base
	if foreign && in.InitialBalance.IsPositive() && !in.ExchangeRate.IsPositive() {
		return Account{}, shared.NewValidationError("exchange_rate",
			"exchange rate required for opening %s balance", in.Currency)
	}

	id, err := s.NextAccountID(ctx)
	if err != nil {
		return Account{}, err
	}
	now := time.Now().UTC()
	acc := Account{
		ID:        id,
		Name:      in.Name,
		Type:      in.Type,
		Currency:  in.Currency,
		Balance:   in.InitialBalance,
		CreatedAt: now,
	}
	if err := s.InsertAccount(ctx, acc); err != nil {
		return Account{}, err
	}
	if foreign && in.InitialBalance.IsPositive() {
		lotID, err := s.NextLotID(ctx)
		if err != nil {
			return Account{}, err
		}
		lot := Lot{
			ID:           lotID,
			AccountID:    id,
			Currency:     in.Currency,
			Amount:       in.InitialBalance,
			Remaining:    in.InitialBalance,
			ExchangeRate: in.ExchangeRate,
			Date:         now,
		}
		if err := s.InsertLot(ctx, lot); err != nil {
			return Account{}, err
		}
	}
	return acc, nil
}

// recomputeLotRemaining rebuilds a lot's remaining amount from its
// consumption journal. Safe to run repeatedly.
func recomputeLotRemaining(ctx context.Context, s Store, lotID string) (decimal.Decimal, error) {
	lot, err := s.GetLot(ctx, lotID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if lot == nil {
		return decimal.Decimal{}, &shared.NotFoundError{Entity: "lot", ID: lotID}
	}
	consumed, err := s.SumLotConsumptions(ctx, lotID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	remaining := lot.Amount.Sub(consumed)
	if remaining.IsNegative() {
		return decimal.Decimal{}, shared.NewValidationError("lot_id",
			"lot %s over-consumed: %s of %s", lotID, consumed.String(), lot.Amount.String())
	}
	if err := s.UpdateLotRemaining(ctx, lotID, remaining); err != nil {
		return decimal.Decimal{}, err
	}
	return remaining, nil
}

// Service wraps the ledger with its own transaction boundary.
type Service struct {
	pool   *pgxpool.Pool
	ledger Ledger
	logger *slog.Logger
}

func NewService(pool *pgxpool.Pool, baseCurrency string, logger *slog.Logger) *Service {
	return &Service{pool: pool, ledger: Ledger{Base: baseCurrency}, logger: logger}
}

// Ledger returns the transaction-agnostic posting core for callers
// that bring their own transaction.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Post applies a transaction in its own database transaction.
func (s *Service) Post(ctx context.Context, in PostInput) (Transaction, error) {
	var txn Transaction
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		txn, err = s.ledger.Post(ctx, NewStore(tx), in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.logger.Info("transaction posted",
		slog.String("transaction_id", txn.ID),
		slog.String("category", string(txn.Category)),
		slog.String("amount", txn.Amount.String()),
		slog.String("currency", txn.Currency))
	return txn, nil
}

// CreateAccount opens an account.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	var acc Account
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		acc, err = createAccount(ctx, NewStore(tx), s.ledger.Base, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created",
		slog.String("account_id", acc.ID),
		slog.String("currency", acc.Currency))
	return acc, nil
}

// GetAccount returns one account.
func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	acc, err := NewStore(s.pool).GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc == nil {
		return Account{}, &shared.NotFoundError{Entity: "account", ID: id}
	}
	return *acc, nil
}

// ListAccounts returns all accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return NewStore(s.pool).ListAccounts(ctx)
}

// ListTransactions lists ledger entries.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return NewStore(s.pool).ListTransactions(ctx, filter)
}

// ListLots lists an account's currency lots.
func (s *Service) ListLots(ctx context.Context, accountID string) ([]Lot, error) {
	return NewStore(s.pool).ListLots(ctx, accountID)
}

// RecomputeLot rebuilds one lot's remaining amount from its journal.
func (s *Service) RecomputeLot(ctx context.Context, lotID string) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		remaining, err = recomputeLotRemaining(ctx, NewStore(tx), lotID)
		return err
	})
	return remaining, err
}
