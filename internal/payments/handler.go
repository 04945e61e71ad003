package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
	"github.com/altiplano-erp/altiplano-erp/internal/shared"
)

// Handler exposes settlement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settlements/{id}", h.show)
	r.Post("/settlements/{id}/pay", h.pay)
	r.Get("/carriers/{id}/settlements", h.listByCarrier)
	r.Get("/payments", h.list)
	r.Post("/payments/settle", h.settleBatch)
}

type settlementResponse struct {
	ID               string          `json:"id"`
	CarrierID        string          `json:"carrier_id"`
	WeekStart        string          `json:"week_start"`
	WeekEnd          string          `json:"week_end"`
	Deliveries       int             `json:"deliveries"`
	DeliveriesAmount decimal.Decimal `json:"deliveries_amount"`
	Returns          int             `json:"returns"`
	ReturnsAmount    decimal.Decimal `json:"returns_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	FinalAmount      decimal.Decimal `json:"final_amount"`
	Status           string          `json:"status"`
	WalletID         string          `json:"wallet_id,omitempty"`
	PaidDate         *time.Time      `json:"paid_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

func toSettlementResponse(s Settlement) settlementResponse {
	return settlementResponse{
		ID:               s.ID,
		CarrierID:        s.CarrierID,
		WeekStart:        s.WeekStart.Format("2006-01-02"),
		WeekEnd:          s.WeekEnd.Format("2006-01-02"),
		Deliveries:       s.Deliveries,
		DeliveriesAmount: s.DeliveriesAmount,
		Returns:          s.Returns,
		ReturnsAmount:    s.ReturnsAmount,
		NetAmount:        s.NetAmount,
		PreviousBalance:  s.PreviousBalance,
		FinalAmount:      s.FinalAmount,
		Status:           string(s.Status),
		WalletID:         s.WalletID,
		PaidDate:         s.PaidDate,
		Notes:            s.Notes,
	}
}

type contributionResponse struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	OrderTotal decimal.Decimal `json:"order_total"`
	Commission decimal.Decimal `json:"commission"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	st, contributions, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	outContribs := make([]contributionResponse, 0, len(contributions))
	for _, c := range contributions {
		outContribs = append(outContribs, contributionResponse{
			ID:         c.ID,
			OrderID:    c.OrderID,
			Type:       string(c.Type),
			Amount:     c.Amount,
			OrderTotal: c.OrderTotal,
			Commission: c.Commission,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"settlement":    toSettlementResponse(st),
		"contributions": outContribs,
	})
}

type payRequest struct {
	WalletID string `json:"wallet_id" validate:"required"`
	PaidDate string `json:"paid_date"`
	Notes    string `json:"notes"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	var paidDate time.Time
	if req.PaidDate != "" {
		var err error
		paidDate, err = time.Parse("2006-01-02", req.PaidDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "paid_date must be YYYY-MM-DD")
			return
		}
	}

	st, err := h.service.Settle(r.Context(), SettleInput{
		SettlementID: chi.URLParam(r, "id"),
		WalletID:     req.WalletID,
		PaidDate:     paidDate,
		Notes:        req.Notes,
	})
	if errors.Is(err, shared.ErrAlreadyApplied) {
		httpx.JSON(w, http.StatusOK, toSettlementResponse(st))
		return
	}
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSettlementResponse(st))
}

type batchSettleRequest struct {
	SettlementIDs []string `json:"settlement_ids" validate:"required,min=1"`
	WalletID      string   `json:"wallet_id" validate:"required"`
	PaidDate      string   `json:"paid_date"`
	Notes         string   `json:"notes"`
}

type settleResultResponse struct {
	SettlementID string          `json:"settlement_id"`
	Paid         bool            `json:"paid"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason,omitempty"`
}

func (h *Handler) settleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchSettleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	var paidDate time.Time
	if req.PaidDate != "" {
		var err error
		paidDate, err = time.Parse("2006-01-02", req.PaidDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "paid_date must be YYYY-MM-DD")
			return
		}
	}

	res, err := h.service.SettleBatch(r.Context(), BatchSettleInput{
		SettlementIDs: req.SettlementIDs,
		WalletID:      req.WalletID,
		PaidDate:      paidDate,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	results := make([]settleResultResponse, 0, len(res.Results))
	for _, sr := range res.Results {
		results = append(results, settleResultResponse{
			SettlementID: sr.SettlementID,
			Paid:         sr.Paid,
			Amount:       sr.Amount,
			Reason:       sr.Reason,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":      results,
		"total_amount": res.TotalAmount,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	carrierID := r.URL.Query().Get("carrier")
	if carrierID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "carrier query parameter required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.ListByCarrier(r.Context(), carrierID, limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]settlementResponse, 0, len(list))
	for _, st := range list {
		out = append(out, toSettlementResponse(st))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listByCarrier(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.ListByCarrier(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]settlementResponse, 0, len(list))
	for _, st := range list {
		out = append(out, toSettlementResponse(st))
	}
	httpx.JSON(w, http.StatusOK, out)
}
