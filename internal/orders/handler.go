package orders

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
)

// Handler exposes order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Get("/customers/{phone}", h.getCustomer)
}

type orderResponse struct {
	ID                   string          `json:"id"`
	CustomerID           string          `json:"customer_id"`
	CarrierID            string          `json:"carrier_id,omitempty"`
	Status               string          `json:"status"`
	Total                decimal.Decimal `json:"total"`
	DeliveryCost         decimal.Decimal `json:"delivery_cost"`
	ReturnCost           decimal.Decimal `json:"return_cost"`
	PriorityShipping     bool            `json:"priority_shipping"`
	PriorityShippingCost decimal.Decimal `json:"priority_shipping_cost"`
	ExternalOrderID      string            `json:"external_order_id,omitempty"`
	Notes                string            `json:"notes,omitempty"`
	Items                []itemResponse    `json:"items,omitempty"`
	Tracking             *trackingResponse `json:"tracking,omitempty"`
	Warnings             []string          `json:"warnings,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

type trackingResponse struct {
	Status       string    `json:"status"`
	TrackingCode string    `json:"tracking_code,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	ReminderSent bool      `json:"reminder_sent"`
	FollowUpSent bool      `json:"follow_up_sent"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toTrackingResponse(t *Tracking) *trackingResponse {
	if t == nil {
		return nil
	}
	return &trackingResponse{
		Status:       string(t.Status),
		TrackingCode: t.TrackingCode,
		Notes:        t.Notes,
		ReminderSent: t.ReminderSent,
		FollowUpSent: t.FollowUpSent,
		UpdatedAt:    t.UpdatedAt,
	}
}

type itemResponse struct {
	ID          string          `json:"id"`
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

func toOrderResponse(o Order, items []Item) orderResponse {
	resp := orderResponse{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		CarrierID:            o.CarrierID,
		Status:               string(o.Status),
		Total:                o.Total,
		DeliveryCost:         o.DeliveryCost,
		ReturnCost:           o.ReturnCost,
		PriorityShipping:     o.PriorityShipping,
		PriorityShippingCost: o.PriorityShippingCost,
		ExternalOrderID:      o.ExternalOrderID,
		Notes:                o.Notes,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          it.ID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	res, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyExisted {
		status = http.StatusOK
	}
	resp := toOrderResponse(res.Order, res.Items)
	resp.Warnings = res.Warnings
	httpx.JSON(w, status, resp)
}

type statusRequest struct {
	Status       string `json:"status" validate:"required"`
	Notes        string `json:"notes"`
	TrackingCode string `json:"tracking_code"`
	ReminderSent *bool  `json:"reminder_sent"`
	FollowUpSent *bool  `json:"follow_up_sent"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), StatusUpdate{
		Status:       Status(req.Status),
		Notes:        req.Notes,
		TrackingCode: req.TrackingCode,
		ReminderSent: req.ReminderSent,
		FollowUpSent: req.FollowUpSent,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, items, tracking, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp := toOrderResponse(order, items)
	resp.Tracking = toTrackingResponse(tracking)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := OrderFilter{
		Status:          Status(r.URL.Query().Get("status")),
		CarrierID:       r.URL.Query().Get("carrier_id"),
		CustomerID:      r.URL.Query().Get("customer_id"),
		ExternalOrderID: r.URL.Query().Get("external_order_id"),
	}
	list, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o, nil))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type customerResponse struct {
	ID          string          `json:"id"`
	FullName    string          `json:"full_name"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email,omitempty"`
	Department  string          `json:"department"`
	Address     string          `json:"address,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Active      bool            `json:"active"`
	TotalOrders int             `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCustomerByPhone(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customerResponse{
		ID:          c.ID,
		FullName:    c.FullName,
		Phone:       c.Phone,
		Email:       c.Email,
		Department:  c.Department,
		Address:     c.Address,
		Reference:   c.Reference,
		Active:      c.Active,
		TotalOrders: c.TotalOrders,
		TotalSpent:  c.TotalSpent,
	})
}
