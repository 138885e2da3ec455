package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.Require(permissions.ManageRoles))
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/{id}", h.getRole)
	r.Patch("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
}

// MountPermissionRoutes registers the capability listing.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.With(h.rbac.Require(permissions.ManageRoles)).Get("/", h.listPermissions)
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=64"`
	Description *string  `json:"description" validate:"omitempty,max=255"`
	Permissions []string `json:"permissions"`
}

func parseNames(names []string) (permissions.Permission, error) {
	mask, err := permissions.FromNames(names)
	if err != nil {
		if errors.Is(err, permissions.ErrUnknownName) {
			return permissions.None, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		return permissions.None, err
	}
	return mask, nil
}

func actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mask, err := parseNames(req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), CreateInput{Name: req.Name, Description: req.Description, Permissions: mask})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := UpdateInput{Name: req.Name, Description: req.Description}
	if req.Permissions != nil {
		mask, err := parseNames(req.Permissions)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Permissions = &mask
	}
	role, err := h.service.UpdateRole(r.Context(), actorID(r), id, input)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID(r), id); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"items": h.service.ListPermissions()})
}
