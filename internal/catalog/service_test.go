package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
)

type memRepo struct {
	mu        sync.Mutex
	products  map[int64]catalog.Product
	tags      map[int64]catalog.Tag
	nextID    int64
	listCalls atomic.Int32
	gate      chan struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[int64]catalog.Product{}, tags: map[int64]catalog.Tag{}}
}

func (m *memRepo) ListProducts(_ context.Context, f catalog.ListFilter, limit, offset int) ([]catalog.Product, int, error) {
	m.listCalls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, p := range m.products {
		if !f.IncludeInactive && !p.IsActive {
			continue
		}
		if f.Kind != "" && p.Kind != f.Kind {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.Tag != "" {
			found := false
			for _, t := range p.Tags {
				found = found || t.Slug == f.Tag
			}
			if !found {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset >= total {
		return []catalog.Product{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memRepo) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, httpx.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, httpx.ErrNotFound
}

func (m *memRepo) CreateProduct(_ context.Context, in catalog.ProductInput) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == in.Slug {
			return catalog.Product{}, httpx.ErrDuplicate
		}
	}
	m.nextID++
	p := catalog.Product{ID: m.nextID, Slug: in.Slug, Name: in.Name, Description: in.Description, Kind: in.Kind,
		BasePrice: in.BasePrice, Currency: in.Currency, ImageURL: in.ImageURL, IsActive: in.IsActive, Tags: []catalog.Tag{}, CreatedAt: time.Now()}
	m.products[p.ID] = p
	return p, nil
}

func (m *memRepo) UpdateProduct(_ context.Context, id int64, in catalog.ProductInput) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, httpx.ErrNotFound
	}
	p.Slug, p.Name, p.Description, p.Kind = in.Slug, in.Name, in.Description, in.Kind
	p.BasePrice, p.Currency, p.ImageURL, p.IsActive = in.BasePrice, in.Currency, in.ImageURL, in.IsActive
	m.products[id] = p
	return p, nil
}

func (m *memRepo) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memRepo) ListTags(context.Context) ([]catalog.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []catalog.Tag{}
	for _, t := range m.tags {
		out = append(out, t)
	}
	return out, nil
}

func (m *memRepo) CreateTag(_ context.Context, name, slug string) (catalog.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := catalog.Tag{ID: m.nextID, Name: name, Slug: slug}
	m.tags[t.ID] = t
	return t, nil
}

func (m *memRepo) DeleteTag(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags, id)
	return nil
}

func (m *memRepo) SetProductTags(_ context.Context, productID int64, tagIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.Tags = []catalog.Tag{}
	for _, id := range tagIDs {
		t, ok := m.tags[id]
		if !ok {
			return httpx.ErrValidation
		}
		p.Tags = append(p.Tags, t)
	}
	m.products[productID] = p
	return nil
}

func newCatalog(t *testing.T) (*catalog.Service, *memRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemRepo()
	return catalog.NewService(repo, catalog.NewCache(client, time.Minute), nil), repo, mr
}

func TestCreateDerivesSlugAndRoundsPrice(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, catalog.ProductInput{Name: "Crème Tee", Kind: catalog.KindTShirt, BasePrice: 19.999, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "creme-tee", p.Slug)
	assert.Equal(t, 20.0, p.BasePrice)
	assert.Equal(t, "USD", p.Currency)

	_, err = svc.Create(ctx, catalog.ProductInput{Name: "Crème Tee", Kind: catalog.KindTShirt})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = svc.Create(ctx, catalog.ProductInput{Name: "Poster", Kind: "poster"})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, catalog.ProductInput{Name: "Cheap", Kind: catalog.KindMug, BasePrice: -1})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, catalog.ProductInput{Name: "!!!", Kind: catalog.KindMug})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPublicListIsCachedUntilWrite(t *testing.T) {
	svc, repo, _ := newCatalog(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, catalog.ProductInput{Name: "Classic Tee", Kind: catalog.KindTShirt, BasePrice: 15, IsActive: true})
	require.NoError(t, err)
	hidden, err := svc.Create(ctx, catalog.ProductInput{Name: "Draft Mug", Kind: catalog.KindMug, BasePrice: 9, IsActive: false})
	require.NoError(t, err)

	page, err := svc.ListPublic(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Classic Tee", page.Items[0].Name)

	_, err = svc.ListPublic(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.listCalls.Load(), "second read served from cache")

	active := true
	_, err = svc.Update(ctx, hidden.ID, catalog.ProductPatch{IsActive: &active})
	require.NoError(t, err)

	page, err = svc.ListPublic(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2, "write bumped the cache version")
	assert.Equal(t, int32(2), repo.listCalls.Load())

	admin, err := svc.ListAdmin(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, admin.Items, 2)
}

func TestPublicListFallsBackWhenRedisDown(t *testing.T) {
	svc, _, mr := newCatalog(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, catalog.ProductInput{Name: "Tote", Kind: catalog.KindTote, BasePrice: 12, IsActive: true})
	require.NoError(t, err)

	mr.Close()
	page, err := svc.ListPublic(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	svc, repo, _ := newCatalog(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, catalog.ProductInput{Name: "Hoodie", Kind: catalog.KindHoodie, BasePrice: 40, IsActive: true})
	require.NoError(t, err)

	repo.gate = make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := svc.ListPublic(ctx, catalog.ListFilter{Kind: catalog.KindHoodie})
			assert.NoError(t, err)
			assert.Len(t, page.Items, 1)
		}()
	}
	require.Eventually(t, func() bool { return repo.listCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	assert.Equal(t, int32(1), repo.listCalls.Load())
}

func TestGetPublicHidesInactive(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, catalog.ProductInput{Name: "Secret Mug", Kind: catalog.KindMug, BasePrice: 9})
	require.NoError(t, err)

	_, err = svc.GetPublic(ctx, "secret-mug")
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.PrintAreasFor(ctx, "secret-mug")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestTagsFilterProducts(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()
	tee, err := svc.Create(ctx, catalog.ProductInput{Name: "Band Tee", Kind: catalog.KindTShirt, BasePrice: 18, IsActive: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, catalog.ProductInput{Name: "Plain Mug", Kind: catalog.KindMug, BasePrice: 8, IsActive: true})
	require.NoError(t, err)

	music, err := svc.CreateTag(ctx, " Music & Bands ")
	require.NoError(t, err)
	assert.Equal(t, "music-bands", music.Slug)

	updated, err := svc.SetProductTags(ctx, tee.ID, []int64{music.ID, music.ID})
	require.NoError(t, err)
	require.Len(t, updated.Tags, 1)

	page, err := svc.ListPublic(ctx, catalog.ListFilter{Tag: "music-bands"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, tee.ID, page.Items[0].ID)

	_, err = svc.ListPublic(ctx, catalog.ListFilter{Kind: "poster"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCatalogRoutes(t *testing.T) {
	svc, _, _ := newCatalog(t)
	_, err := svc.Create(context.Background(), catalog.ProductInput{Name: "Classic Tee", Kind: catalog.KindTShirt, BasePrice: 15, IsActive: true})
	require.NoError(t, err)

	r := chi.NewRouter()
	catalog.NewHandler(nil, svc, rbac.Middleware{}).MountRoutes(r)

	call := func(method, path, body string, p *shared.Principal) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if p != nil {
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
		}
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res.Code
	}
	with := func(mask permissions.Permission) *shared.Principal {
		return &shared.Principal{UserID: 3, PermissionClaim: permissions.FormatClaim(mask), HasPermissionClaim: true}
	}

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/products", "", nil))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/products/classic-tee", "", nil))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/products/classic-tee/print-areas", "", nil))
	assert.Equal(t, http.StatusNotFound, call(http.MethodGet, "/products/nope", "", nil))

	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/admin/products", "", nil))
	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, "/admin/products", "", with(permissions.ViewProducts)))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/admin/products", "", with(permissions.ViewProducts|permissions.EditProducts)))

	body := `{"name":"Travel Mug","kind":"mug","base_price":11.5}`
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/admin/products", body, with(permissions.ModeratorPermissions)))
	assert.Equal(t, http.StatusCreated, call(http.MethodPost, "/admin/products", body, with(permissions.AdminPermissions)))
	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/admin/products", `{"name":"X","kind":"poster"}`, with(permissions.AdminPermissions)))

	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/tags", `{"name":"Retro"}`, with(permissions.CreatorPermissions)))
	assert.Equal(t, http.StatusCreated, call(http.MethodPost, "/tags", `{"name":"Retro"}`, with(permissions.ModeratorPermissions)))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/tags", "", nil))
}
