package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
)

// Handler serves order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the order handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permissions.ManageCart))
		r.Post("/checkout", h.checkout)
		r.Get("/mine", h.listMine)
		r.Post("/{id}/cancel", h.cancel)
	})
	r.With(h.rbac.Require(permissions.ViewOrders)).Get("/", h.list)
	r.With(h.rbac.RequireAuthenticated()).Get("/{id}", h.get)
	r.With(h.rbac.Require(permissions.ManageOrders)).Post("/{id}/status", h.updateStatus)
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=1000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered cancelled"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.Checkout(r.Context(), shared.PrincipalFromContext(r.Context()), CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "checkout", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	out, err := h.service.ListMine(r.Context(), shared.PrincipalFromContext(r.Context()).UserID, page, perPage)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list own orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	out, err := h.service.List(r.Context(), ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	o, err := h.service.Get(r.Context(), p, id, p.Can(permissions.ViewOrders))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), shared.PrincipalFromContext(r.Context()).UserID, id, Status(req.Status))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Cancel(r.Context(), shared.PrincipalFromContext(r.Context()).UserID, id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}
