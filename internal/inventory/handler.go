package inventory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
)

// Handler exposes inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory/movements", h.postMovement)
	r.Post("/inventory/transfers", h.postTransfer)
	r.Get("/inventory/stock", h.listStock)
}

type movementRequest struct {
	Kind        string          `json:"kind" validate:"required"`
	VariantID   string          `json:"variant_id" validate:"required"`
	Department  string          `json:"department" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	ReferenceID string          `json:"reference_id" validate:"required"`
	Note        string          `json:"note"`
}

type movementResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	VariantID   string          `json:"variant_id"`
	Department  string          `json:"department"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReferenceID string          `json:"reference_id"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Applied     bool            `json:"applied"`
}

func toMovementResponse(m Movement, applied bool) movementResponse {
	return movementResponse{
		ID:          m.ID,
		Kind:        string(m.Kind),
		VariantID:   m.VariantID,
		Department:  m.Department,
		Quantity:    m.Quantity,
		ReferenceID: m.ReferenceID,
		Note:        m.Note,
		CreatedAt:   m.CreatedAt,
		Applied:     applied,
	}
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	mv, applied, err := h.service.Post(r.Context(), PostInput{
		Kind:        MovementKind(req.Kind),
		VariantID:   req.VariantID,
		Department:  req.Department,
		Quantity:    req.Quantity,
		ReferenceID: req.ReferenceID,
		Note:        req.Note,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !applied {
		status = http.StatusOK
	}
	httpx.JSON(w, status, toMovementResponse(mv, applied))
}

type transferRequest struct {
	VariantID      string          `json:"variant_id" validate:"required"`
	FromDepartment string          `json:"from_department" validate:"required"`
	ToDepartment   string          `json:"to_department" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	Note           string          `json:"note"`
}

func (h *Handler) postTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	res, err := h.service.Transfer(r.Context(), TransferInput{
		VariantID:      req.VariantID,
		FromDepartment: req.FromDepartment,
		ToDepartment:   req.ToDepartment,
		Quantity:       req.Quantity,
		Note:           req.Note,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"reference_id": res.ReferenceID,
		"out":          toMovementResponse(res.Out, true),
		"in":           toMovementResponse(res.In, true),
	})
}

type stockResponse struct {
	VariantID  string          `json:"variant_id"`
	Department string          `json:"department"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Stock(r.Context(), StockFilter{
		VariantID:  r.URL.Query().Get("variant_id"),
		Department: r.URL.Query().Get("department"),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]stockResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, stockResponse{
			VariantID:  rec.VariantID,
			Department: rec.Department,
			Quantity:   rec.Quantity,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
