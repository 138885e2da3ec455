package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
)

// Handler serves catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers public catalog, tag and product admin routes on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listPublic)
		r.Get("/{slug}", h.getPublic)
		r.Get("/{slug}/print-areas", h.printAreas)
	})
	r.Route("/tags", func(r chi.Router) {
		r.Get("/", h.listTags)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(permissions.ManageTags))
			r.Post("/", h.createTag)
			r.Delete("/{id}", h.deleteTag)
		})
	})
	r.Route("/admin/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(permissions.ViewProducts | permissions.EditProducts))
			r.Get("/", h.listAdmin)
			r.Get("/{id}", h.getAdmin)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(permissions.EditProducts))
			r.Post("/", h.createProduct)
			r.Patch("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
		r.With(h.rbac.Require(permissions.ManageTags)).Put("/{id}/tags", h.setTags)
	})
}

type productRequest struct {
	Slug        string  `json:"slug" validate:"omitempty,max=120"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=4000"`
	Kind        string  `json:"kind" validate:"required,oneof=tshirt hoodie mug tote"`
	BasePrice   float64 `json:"base_price" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
	IsActive    *bool   `json:"is_active"`
}

type productPatchRequest struct {
	Slug        *string  `json:"slug" validate:"omitempty,max=120"`
	Name        *string  `json:"name" validate:"omitempty,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=4000"`
	Kind        *string  `json:"kind" validate:"omitempty,oneof=tshirt hoodie mug tote"`
	BasePrice   *float64 `json:"base_price" validate:"omitempty,gte=0"`
	Currency    *string  `json:"currency" validate:"omitempty,len=3"`
	ImageURL    *string  `json:"image_url" validate:"omitempty,url"`
	IsActive    *bool    `json:"is_active"`
}

type tagRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type setTagsRequest struct {
	TagIDs []int64 `json:"tag_ids" validate:"required,dive,gt=0"`
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

func filterFromQuery(r *http.Request) ListFilter {
	page, perPage := httpx.PageParams(r)
	q := r.URL.Query()
	return ListFilter{
		Search:  q.Get("search"),
		Tag:     q.Get("tag"),
		Kind:    Kind(q.Get("kind")),
		Page:    page,
		PerPage: perPage,
	}
}

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListPublic(r.Context(), filterFromQuery(r))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) listAdmin(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListAdmin(r.Context(), filterFromQuery(r))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list admin products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getPublic(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetPublic(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) printAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.PrintAreasFor(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "print areas", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": areas})
}

func (h *Handler) getAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	product, err := h.service.Create(r.Context(), ProductInput{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Kind:        Kind(req.Kind),
		BasePrice:   req.BasePrice,
		Currency:    req.Currency,
		ImageURL:    req.ImageURL,
		IsActive:    active,
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := ProductPatch{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		Currency:    req.Currency,
		ImageURL:    req.ImageURL,
		IsActive:    req.IsActive,
	}
	if req.Kind != nil {
		kind := Kind(*req.Kind)
		patch.Kind = &kind
	}
	product, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setTags(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setTagsRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.SetProductTags(r.Context(), id, req.TagIDs)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "set product tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": tags})
}

func (h *Handler) createTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !h.decode(w, r, &req) {
		return
	}
	tag, err := h.service.CreateTag(r.Context(), req.Name)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create tag", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tag)
}

func (h *Handler) deleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTag(r.Context(), id); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
