package carriers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
)

// Handler exposes carrier endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers carrier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/carriers", h.list)
	r.Post("/carriers", h.create)
	r.Get("/carriers/{id}", h.show)
	r.Post("/carriers/{id}/activate", h.activate)
	r.Post("/carriers/{id}/deactivate", h.deactivate)
	r.Get("/carriers/{id}/rates", h.listRates)
	r.Post("/carriers/{id}/rates", h.setRate)
	r.Put("/carriers/{id}/rates", h.setRate)
}

type carrierResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toCarrierResponse(c Carrier) carrierResponse {
	return carrierResponse{ID: c.ID, Name: c.Name, Phone: c.Phone, Active: c.Active, CreatedAt: c.CreatedAt}
}

type createCarrierRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCarrierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	carrier, err := h.service.Create(r.Context(), CreateCarrierInput{Name: req.Name, Phone: req.Phone})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCarrierResponse(carrier))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]carrierResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCarrierResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	carrier, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCarrierResponse(carrier))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	carrier, err := h.service.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCarrierResponse(carrier))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	carrier, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCarrierResponse(carrier))
}

type rateRequest struct {
	Department string          `json:"department" validate:"required"`
	Delivery   decimal.Decimal `json:"commission_delivery"`
	Express    decimal.Decimal `json:"commission_express"`
	Return     decimal.Decimal `json:"commission_return"`
}

type rateResponse struct {
	ID         string          `json:"id"`
	CarrierID  string          `json:"carrier_id"`
	Department string          `json:"department"`
	Delivery   decimal.Decimal `json:"commission_delivery"`
	Express    decimal.Decimal `json:"commission_express"`
	Return     decimal.Decimal `json:"commission_return"`
}

func toRateResponse(rt Rate) rateResponse {
	return rateResponse{
		ID:         rt.ID,
		CarrierID:  rt.CarrierID,
		Department: rt.Department,
		Delivery:   rt.Delivery,
		Express:    rt.Express,
		Return:     rt.Return,
	}
}

func (h *Handler) setRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	rate, err := h.service.SetRate(r.Context(), UpsertRateInput{
		CarrierID:  chi.URLParam(r, "id"),
		Department: req.Department,
		Delivery:   req.Delivery,
		Express:    req.Express,
		Return:     req.Return,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRateResponse(rate))
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.Rates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]rateResponse, 0, len(rates))
	for _, rt := range rates {
		out = append(out, toRateResponse(rt))
	}
	httpx.JSON(w, http.StatusOK, out)
}
