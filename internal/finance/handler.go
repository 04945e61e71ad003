package finance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
)

// Handler exposes accounting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.showAccount)
	r.Get("/accounts/{id}/lots", h.listLots)
	r.Get("/transactions", h.listTransactions)
	r.Post("/transactions", h.postTransaction)
	r.Post("/lots/{id}/recompute", h.recomputeLot)
}

type accountResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		Currency:  a.Currency,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
	}
}

type createAccountRequest struct {
	Name           string          `json:"name" validate:"required"`
	Type           string          `json:"type" validate:"required"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Name:           req.Name,
		Type:           AccountType(req.Type),
		Currency:       req.Currency,
		InitialBalance: req.InitialBalance,
		ExchangeRate:   req.ExchangeRate,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(acc))
}

type lotResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Remaining    decimal.Decimal `json:"remaining"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Date         time.Time       `json:"lot_date"`
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.service.ListLots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]lotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, lotResponse{
			ID:           l.ID,
			AccountID:    l.AccountID,
			Currency:     l.Currency,
			Amount:       l.Amount,
			Remaining:    l.Remaining,
			ExchangeRate: l.ExchangeRate,
			Date:         l.Date,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type postTransactionRequest struct {
	Category      string          `json:"category" validate:"required"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description"`
	Date          time.Time       `json:"transaction_date"`
}

type transactionResponse struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	Date          time.Time       `json:"transaction_date"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Category:      string(t.Category),
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		ExchangeRate:  t.ExchangeRate,
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Description:   t.Description,
		Date:          t.Date,
	}
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	txn, err := h.service.Post(r.Context(), PostInput{
		Category:      Category(req.Category),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ExchangeRate:  req.ExchangeRate,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		Date:          req.Date,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns, err := h.service.ListTransactions(r.Context(), TransactionFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Category:  Category(r.URL.Query().Get("category")),
		Limit:     limit,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recomputeLot(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.service.RecomputeLot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"remaining": remaining})
}
