package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
)

// Service implements catalog reads and admin writes.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the catalog service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (f ListFilter) cacheToken() string {
	return strings.Join([]string{
		strings.ToLower(f.Search),
		f.Tag,
		string(f.Kind),
		strconv.Itoa(f.Page),
		strconv.Itoa(f.PerPage),
	}, "|")
}

// cached reads key through Redis, collapsing concurrent misses for the same key.
// Cache failures fall back to loader.
func (s *Service) cached(ctx context.Context, parts []string, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("catalog cache unavailable", slog.Any("error", err))
		return copyInto(ctx, dest, loader)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return rawJSON(raw), nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var le loaderError
			if errors.As(res.Err, &le) {
				return le.err
			}
			s.logger.Warn("catalog cache read failed", slog.String("key", key), slog.Any("error", res.Err))
			return copyInto(ctx, dest, loader)
		}
		return res.Val.(rawJSON).decode(dest)
	}
}

// ListPublic lists active products for shoppers.
func (s *Service) ListPublic(ctx context.Context, filter ListFilter) (shared.Page[Product], error) {
	filter.IncludeInactive = false
	filter = normalizeFilter(filter)
	var page shared.Page[Product]
	err := s.cached(ctx, []string{"catalog", "list", filter.cacheToken()}, &page, wrapLoader(func(ctx context.Context) (any, error) {
		return s.list(ctx, filter)
	}))
	return page, err
}

// ListAdmin lists every product including inactive ones, uncached.
func (s *Service) ListAdmin(ctx context.Context, filter ListFilter) (shared.Page[Product], error) {
	filter.IncludeInactive = true
	return s.list(ctx, normalizeFilter(filter))
}

func normalizeFilter(filter ListFilter) ListFilter {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Tag = strings.TrimSpace(filter.Tag)
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	return filter
}

func (s *Service) list(ctx context.Context, filter ListFilter) (shared.Page[Product], error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return shared.Page[Product]{}, fmt.Errorf("%w: unknown kind %q", httpx.ErrValidation, filter.Kind)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	items, total, err := s.repo.ListProducts(ctx, filter, p.PerPage, p.Offset())
	if err != nil {
		return shared.Page[Product]{}, err
	}
	return shared.Page[Product]{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// GetPublic returns an active product by slug.
func (s *Service) GetPublic(ctx context.Context, slug string) (Product, error) {
	var product Product
	err := s.cached(ctx, []string{"catalog", "product", slug}, &product, wrapLoader(func(ctx context.Context) (any, error) {
		p, err := s.repo.GetProductBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, httpx.ErrNotFound
		}
		return p, nil
	}))
	return product, err
}

// Get returns a product by id regardless of state.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// PrintAreasFor returns the print areas of an active product.
func (s *Service) PrintAreasFor(ctx context.Context, slug string) ([]PrintArea, error) {
	product, err := s.GetPublic(ctx, slug)
	if err != nil {
		return nil, err
	}
	return PrintAreas(product.Kind), nil
}

func validateInput(in *ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	} else {
		in.Slug = Slugify(in.Slug)
	}
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name required", httpx.ErrValidation)
	case in.Slug == "":
		return fmt.Errorf("%w: slug cannot be derived from name", httpx.ErrValidation)
	case !in.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", httpx.ErrValidation, in.Kind)
	case in.BasePrice < 0 || math.IsNaN(in.BasePrice) || math.IsInf(in.BasePrice, 0):
		return fmt.Errorf("%w: base price must be non-negative", httpx.ErrValidation)
	case len(in.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", httpx.ErrValidation)
	}
	in.BasePrice = shared.RoundMoney(in.BasePrice)
	return nil
}

// Create adds a product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateInput(&in); err != nil {
		return Product{}, err
	}
	product, err := s.repo.CreateProduct(ctx, in)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return product, nil
}

// Update applies a patch to a product.
func (s *Service) Update(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	in := ProductInput{
		Slug:        current.Slug,
		Name:        current.Name,
		Description: current.Description,
		Kind:        current.Kind,
		BasePrice:   current.BasePrice,
		Currency:    current.Currency,
		ImageURL:    current.ImageURL,
		IsActive:    current.IsActive,
	}
	if patch.Slug != nil {
		in.Slug = *patch.Slug
	}
	if patch.Name != nil {
		in.Name = *patch.Name
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.Kind != nil {
		in.Kind = *patch.Kind
	}
	if patch.BasePrice != nil {
		in.BasePrice = *patch.BasePrice
	}
	if patch.Currency != nil {
		in.Currency = *patch.Currency
	}
	if patch.ImageURL != nil {
		in.ImageURL = *patch.ImageURL
	}
	if patch.IsActive != nil {
		in.IsActive = *patch.IsActive
	}
	if err := validateInput(&in); err != nil {
		return Product{}, err
	}
	product, err := s.repo.UpdateProduct(ctx, id, in)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return product, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListTags returns every tag.
func (s *Service) ListTags(ctx context.Context) ([]Tag, error) {
	return s.repo.ListTags(ctx)
}

// CreateTag adds a tag named name.
func (s *Service) CreateTag(ctx context.Context, name string) (Tag, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return Tag{}, fmt.Errorf("%w: tag name required", httpx.ErrValidation)
	}
	return s.repo.CreateTag(ctx, name, slug)
}

// DeleteTag removes a tag from the catalog.
func (s *Service) DeleteTag(ctx context.Context, id int64) error {
	if err := s.repo.DeleteTag(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SetProductTags replaces the tags of a product.
func (s *Service) SetProductTags(ctx context.Context, productID int64, tagIDs []int64) (Product, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return Product{}, err
	}
	if err := s.repo.SetProductTags(ctx, productID, dedupe(tagIDs)); err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetProduct(ctx, productID)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump failed", slog.Any("error", err))
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type rawJSON json.RawMessage

func (r rawJSON) decode(dest any) error {
	return json.Unmarshal(r, dest)
}

// loaderError marks failures of the database loader so they are not mistaken for
// cache failures.
type loaderError struct{ err error }

func (e loaderError) Error() string { return e.err.Error() }
func (e loaderError) Unwrap() error { return e.err }

func wrapLoader(fn func(context.Context) (any, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, loaderError{err: err}
		}
		return v, nil
	}
}

func copyInto(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	v, err := loader(ctx)
	if err != nil {
		var le loaderError
		if errors.As(err, &le) {
			return le.err
		}
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
