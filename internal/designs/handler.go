package designs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
)

// Handler serves design endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the design handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers design routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(permissions.ViewDesigns)).Get("/", h.listPublished)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permissions.CreateDesigns))
		r.Post("/", h.create)
		r.Get("/mine", h.listMine)
		r.Put("/{id}/image", h.uploadImage)
		r.Post("/{id}/submit", h.act("submit design", h.service.Submit))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permissions.ModerateDesigns))
		r.Get("/moderation", h.listPending)
		r.Post("/{id}/approve", h.act("approve design", h.service.Approve))
		r.Post("/{id}/reject", h.reject)
	})
	r.With(h.rbac.Require(permissions.PublishDesigns)).Post("/{id}/publish", h.act("publish design", h.service.Publish))
	r.With(h.rbac.RequireAuthenticated()).Get("/{id}", h.get)
}

type placementRequest struct {
	Area   string `json:"area" validate:"required,max=32"`
	X      int    `json:"x" validate:"gte=0"`
	Y      int    `json:"y" validate:"gte=0"`
	Width  int    `json:"width" validate:"gt=0"`
	Height int    `json:"height" validate:"gt=0"`
}

type createRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Title     string           `json:"title" validate:"required,max=200"`
	Placement placementRequest `json:"placement" validate:"required"`
}

type rejectRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
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

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	d, err := h.service.Create(r.Context(), p.UserID, CreateInput{
		ProductID: req.ProductID,
		Title:     req.Title,
		Placement: Placement(req.Placement),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create design", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	d, err := h.service.GetVisible(r.Context(), p, id, p.Can(permissions.ModerateDesigns))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get design", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1)
	p := shared.PrincipalFromContext(r.Context())
	d, err := h.service.UploadImage(r.Context(), p.UserID, id, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "upload design image", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type action func(ctx context.Context, actorID, id int64) (Design, error)

func (h *Handler) act(msg string, fn action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		p := shared.PrincipalFromContext(r.Context())
		d, err := fn(r.Context(), p.UserID, id)
		if err != nil {
			httpx.RespondErrorLogged(w, h.logger, msg, err)
			return
		}
		httpx.JSON(w, http.StatusOK, d)
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.act("reject design", func(ctx context.Context, actorID, id int64) (Design, error) {
		return h.service.Reject(ctx, actorID, id, req.Note)
	})(w, r)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	p := shared.PrincipalFromContext(r.Context())
	out, err := h.service.ListMine(r.Context(), p.UserID, page, perPage)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list own designs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listPublished(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	out, err := h.service.ListPublished(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list published designs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	page, perPage := httpx.PageParams(r)
	out, err := h.service.ListPending(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list pending designs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
