package cart_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custshop/custshop/internal/cart"
	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
)

type line struct {
	userID int64
	item   cart.Item
}

type memRepo struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	lines    map[int64]*line
	nextID   int64
}

func (m *memRepo) ListItems(_ context.Context, userID int64) ([]cart.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []cart.Item{}
	for id := int64(1); id <= m.nextID; id++ {
		l, ok := m.lines[id]
		if !ok || l.userID != userID {
			continue
		}
		p := m.products[l.item.ProductID]
		it := l.item
		it.ProductName, it.Kind, it.UnitPrice, it.Currency = p.Name, p.Kind, p.BasePrice, p.Currency
		out = append(out, it)
	}
	return out, nil
}

func sameDesign(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memRepo) AddItem(_ context.Context, userID int64, in cart.AddInput) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.lines {
		if l.userID == userID && l.item.ProductID == in.ProductID && l.item.Size == in.Size && sameDesign(l.item.DesignID, in.DesignID) {
			if l.item.Quantity+in.Quantity > cart.MaxQuantity {
				return 0, cart.ErrQuantityLimit
			}
			l.item.Quantity += in.Quantity
			return id, nil
		}
	}
	m.nextID++
	m.lines[m.nextID] = &line{userID: userID, item: cart.Item{ID: m.nextID, ProductID: in.ProductID, DesignID: in.DesignID,
		Size: in.Size, Quantity: in.Quantity, CreatedAt: time.Now(), UpdatedAt: time.Now()}}
	return m.nextID, nil
}

func (m *memRepo) owned(userID, itemID int64) (*line, error) {
	l, ok := m.lines[itemID]
	if !ok || l.userID != userID {
		return nil, httpx.ErrNotFound
	}
	return l, nil
}

func (m *memRepo) UpdateQuantity(_ context.Context, userID, itemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.owned(userID, itemID)
	if err != nil {
		return err
	}
	l.item.Quantity = quantity
	return nil
}

func (m *memRepo) DeleteItem(_ context.Context, userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(userID, itemID); err != nil {
		return err
	}
	delete(m.lines, itemID)
	return nil
}

func (m *memRepo) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.lines {
		if l.userID == userID {
			delete(m.lines, id)
		}
	}
	return nil
}

func (m *memRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, l := range m.lines {
		if l.item.UpdatedAt.Before(cutoff) {
			delete(m.lines, id)
			n++
		}
	}
	return n, nil
}

type productLookup map[int64]catalog.Product

func (p productLookup) Get(_ context.Context, id int64) (catalog.Product, error) {
	prod, ok := p[id]
	if !ok {
		return catalog.Product{}, httpx.ErrNotFound
	}
	return prod, nil
}

// designGate allows design 7 for everyone and design 8 only for user 1.
type designGate struct{}

func (designGate) Orderable(_ context.Context, userID, productID, designID int64) error {
	switch {
	case designID == 7 && productID == 1:
		return nil
	case designID == 8 && productID == 1 && userID == 1:
		return nil
	default:
		return httpx.ErrValidation
	}
}

func newCart() (*cart.Service, *memRepo) {
	products := map[int64]catalog.Product{
		1: {ID: 1, Name: "Classic Tee", Kind: catalog.KindTShirt, BasePrice: 19.99, Currency: "USD", IsActive: true},
		2: {ID: 2, Name: "Mug", Kind: catalog.KindMug, BasePrice: 8.5, Currency: "USD", IsActive: true},
		3: {ID: 3, Name: "Retired Tote", Kind: catalog.KindTote, BasePrice: 12, Currency: "USD", IsActive: false},
	}
	repo := &memRepo{products: products, lines: map[int64]*line{}}
	return cart.NewService(repo, productLookup(products), designGate{}, nil), repo
}

func ptr(v int64) *int64 { return &v }

func TestAddMergesAndPrices(t *testing.T) {
	svc, _ := newCart()
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, cart.AddInput{ProductID: 1, Size: "m", Quantity: 2})
	require.NoError(t, err)
	c, err := svc.Add(ctx, 1, cart.AddInput{ProductID: 1, Size: " M ", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "M", c.Items[0].Size)

	c, err = svc.Add(ctx, 1, cart.AddInput{ProductID: 1, DesignID: ptr(7), Size: "L", Quantity: 1})
	require.NoError(t, err)
	c, err = svc.Add(ctx, 1, cart.AddInput{ProductID: 2, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, c.Items, 3)
	assert.Equal(t, 59.97, c.Items[0].LineTotal)
	assert.Equal(t, 6, c.Count)
	assert.Equal(t, 96.96, c.Subtotal)
	assert.Equal(t, "USD", c.Currency)

	other, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, other.Items)
	assert.Zero(t, other.Subtotal)
}

func TestAddRejectsInvalidLines(t *testing.T) {
	svc, _ := newCart()
	ctx := context.Background()
	cases := map[string]cart.AddInput{
		"zero quantity":    {ProductID: 2, Quantity: 0},
		"too many":         {ProductID: 2, Quantity: 100},
		"unknown product":  {ProductID: 42, Quantity: 1},
		"inactive product": {ProductID: 3, Quantity: 1},
		"missing size":     {ProductID: 1, Quantity: 1},
		"size on mug":      {ProductID: 2, Size: "L", Quantity: 1},
		"foreign design":   {ProductID: 1, DesignID: ptr(8), Size: "S", Quantity: 1},
		"wrong product":    {ProductID: 2, DesignID: ptr(7), Quantity: 1},
	}
	for name, in := range cases {
		_, err := svc.Add(ctx, 2, in)
		assert.ErrorIs(t, err, httpx.ErrValidation, name)
	}

	_, err := svc.Add(ctx, 1, cart.AddInput{ProductID: 1, DesignID: ptr(8), Size: "S", Quantity: 1})
	assert.NoError(t, err, "own approved design")

	_, err = svc.Add(ctx, 2, cart.AddInput{ProductID: 2, Quantity: 60})
	require.NoError(t, err)
	_, err = svc.Add(ctx, 2, cart.AddInput{ProductID: 2, Quantity: 40})
	assert.ErrorIs(t, err, httpx.ErrValidation, "merge past the cap")
	assert.ErrorIs(t, err, cart.ErrQuantityLimit)
}

func TestUpdateRemoveAndClearAreScopedToOwner(t *testing.T) {
	svc, _ := newCart()
	ctx := context.Background()
	c, err := svc.Add(ctx, 1, cart.AddInput{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	id := c.Items[0].ID

	_, err = svc.UpdateQuantity(ctx, 2, id, 5)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	_, err = svc.UpdateQuantity(ctx, 1, id, 0)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	c, err = svc.UpdateQuantity(ctx, 1, id, 5)
	require.NoError(t, err)
	assert.Equal(t, 42.5, c.Subtotal)

	_, err = svc.Remove(ctx, 2, id)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	c, err = svc.Remove(ctx, 1, id)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = svc.Add(ctx, 1, cart.AddInput{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, 1))
	c, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestPurgeStale(t *testing.T) {
	svc, repo := newCart()
	ctx := context.Background()
	_, err := svc.Add(ctx, 1, cart.AddInput{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Add(ctx, 2, cart.AddInput{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	repo.lines[1].item.UpdatedAt = time.Now().Add(-48 * time.Hour)

	n, err := svc.PurgeStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, repo.lines, 1)

	_, err = svc.PurgeStale(ctx, 0)
	assert.Error(t, err)
}

func TestCartRoutes(t *testing.T) {
	svc, _ := newCart()
	r := chi.NewRouter()
	r.Route("/cart", cart.NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	shopper := &shared.Principal{UserID: 1, PermissionClaim: permissions.FormatClaim(permissions.ManageCart | permissions.ViewProducts), HasPermissionClaim: true}
	browser := &shared.Principal{UserID: 2, PermissionClaim: permissions.FormatClaim(permissions.ViewProducts), HasPermissionClaim: true}
	call := func(method, path, body string, p *shared.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if p != nil {
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
		}
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res
	}

	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/cart", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, "/cart", "", browser).Code)

	res := call(http.MethodPost, "/cart/items", `{"product_id":2,"quantity":2}`, shopper)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"subtotal":17`)

	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/cart/items", `{"product_id":2,"quantity":0}`, shopper).Code)
	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/cart/items", `{"product_id":2,"quantity":1,"gift":true}`, shopper).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodPatch, "/cart/items/1", `{"quantity":3}`, shopper).Code)
	assert.Equal(t, http.StatusNotFound, call(http.MethodPatch, "/cart/items/99", `{"quantity":3}`, shopper).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/cart", "", shopper).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodDelete, "/cart/items/1", "", shopper).Code)
	assert.Equal(t, http.StatusNoContent, call(http.MethodDelete, "/cart", "", shopper).Code)
}
