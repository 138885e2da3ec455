package users

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

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permissions.ViewUsers))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.With(h.rbac.Require(permissions.EditUsers)).Patch("/{id}", h.updateUser)
	r.With(h.rbac.Require(permissions.EditUsers|permissions.ManageRoles)).Put("/{id}/roles", h.setRoles)
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	IsActive *bool   `json:"is_active"`
}

type setRolesRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,dive,gt=0"`
}

func actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	result, err := h.service.ListUsers(r.Context(), ListFilter{
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), actorID(r), id, UpdateInput{Name: req.Name, IsActive: req.IsActive})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) setRoles(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setRolesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	assigned, err := h.service.SetRoles(r.Context(), actorID(r), id, req.RoleIDs)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "set user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": assigned})
}
