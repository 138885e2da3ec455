package cart

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

// Handler serves the shopper's cart.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the cart handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers cart routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.Require(permissions.ManageCart))
	r.Get("/", h.get)
	r.Delete("/", h.clear)
	r.Post("/items", h.add)
	r.Patch("/items/{id}", h.update)
	r.Delete("/items/{id}", h.remove)
}

type addRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	DesignID  *int64 `json:"design_id" validate:"omitempty,gt=0"`
	Size      string `json:"size" validate:"max=8"`
	Quantity  int    `json:"quantity" validate:"min=1,max=99"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1,max=99"`
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

func userID(r *http.Request) int64 {
	return shared.PrincipalFromContext(r.Context()).UserID
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), userID(r))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get cart", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Add(r.Context(), userID(r), AddInput(req))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "add cart item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.UpdateQuantity(r.Context(), userID(r), id, req.Quantity)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update cart item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Remove(r.Context(), userID(r), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "remove cart item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), userID(r)); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
