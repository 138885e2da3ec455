package orders_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custshop/custshop/internal/orders"
	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/shared"
	"github.com/custshop/custshop/jobs"
)

type memRepo struct {
	mu       sync.Mutex
	carts    map[int64][]orders.CartLine
	orders   map[int64]orders.Order
	seq      int64
	failItem bool
}

func newMemRepo() *memRepo {
	return &memRepo{carts: map[int64][]orders.CartLine{}, orders: map[int64]orders.Order{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, orders.Repository) error) error {
	m.mu.Lock()
	carts := make(map[int64][]orders.CartLine, len(m.carts))
	for k, v := range m.carts {
		carts[k] = append([]orders.CartLine(nil), v...)
	}
	saved := make(map[int64]orders.Order, len(m.orders))
	for k, v := range m.orders {
		saved[k] = v
	}
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.carts, m.orders = carts, saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) LockCart(_ context.Context, userID int64) ([]orders.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orders.CartLine(nil), m.carts[userID]...), nil
}

func (m *memRepo) ClearCart(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *memRepo) NextNumber(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return orders.FormatNumber(m.seq), nil
}

func (m *memRepo) Create(_ context.Context, o orders.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = int64(len(m.orders) + 1)
	o.Items = []orders.Item{}
	o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *memRepo) InsertItem(_ context.Context, orderID int64, item orders.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failItem {
		return errors.New("disk full")
	}
	o := m.orders[orderID]
	item.ID = int64(len(o.Items) + 1)
	o.Items = append(o.Items, item)
	m.orders[orderID] = o
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, httpx.ErrNotFound
	}
	return o, nil
}

func (m *memRepo) filter(keep func(orders.Order) bool, limit, offset int) ([]orders.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []orders.Order{}
	for id := int64(len(m.orders)); id >= 1; id-- {
		if o, ok := m.orders[id]; ok && keep(o) {
			out = append(out, o)
		}
	}
	total := len(out)
	if offset >= total {
		return []orders.Order{}, total, nil
	}
	return out[offset:min(total, offset+limit)], total, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]orders.Order, int, error) {
	return m.filter(func(o orders.Order) bool { return o.UserID == userID }, limit, offset)
}

func (m *memRepo) List(_ context.Context, status orders.Status, limit, offset int) ([]orders.Order, int, error) {
	return m.filter(func(o orders.Order) bool { return status == "" || o.Status == status }, limit, offset)
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, from, to orders.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return httpx.ErrConflict
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

type memIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdem) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[module+"|"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"|"+key] = true
	return nil
}

func (m *memIdem) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"|"+key)
	return nil
}

type stubMail struct {
	sent []jobs.SendEmailPayload
	err  error
}

func (s *stubMail) EnqueueSendEmail(_ context.Context, p jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, p)
	return &asynq.TaskInfo{ID: "t"}, nil
}

type recordingAudit struct{ logs []shared.AuditLog }

func (r *recordingAudit) Record(_ context.Context, l shared.AuditLog) error {
	r.logs = append(r.logs, l)
	return nil
}

type fixture struct {
	svc   *orders.Service
	repo  *memRepo
	idem  *memIdem
	mail  *stubMail
	audit *recordingAudit
}

func newFixture() fixture {
	f := fixture{repo: newMemRepo(), idem: &memIdem{keys: map[string]bool{}}, mail: &stubMail{}, audit: &recordingAudit{}}
	f.svc = orders.NewService(f.repo, f.idem, f.mail, f.audit, nil)
	return f
}

var buyer = &shared.Principal{UserID: 5, Email: "buyer@example.com"}

func stockCart(f fixture) {
	design := int64(9)
	f.repo.carts[buyer.UserID] = []orders.CartLine{
		{ProductID: 1, ProductName: "Classic Tee", ProductActive: true, DesignID: &design, Size: "M", Quantity: 3, UnitPrice: 19.99, Currency: "USD"},
		{ProductID: 2, ProductName: "Mug", ProductActive: true, Quantity: 2, UnitPrice: 8.5, Currency: "USD"},
	}
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	f := newFixture()
	stockCart(f)

	o, err := f.svc.Checkout(context.Background(), buyer, orders.CheckoutInput{ShippingAddress: " 1 Main St "})
	require.NoError(t, err)
	assert.Equal(t, "CS-000001", o.Number)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "1 Main St", o.ShippingAddress)
	assert.Equal(t, 76.97, o.Subtotal)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 59.97, o.Items[0].LineTotal)
	assert.Empty(t, f.repo.carts[buyer.UserID])

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "buyer@example.com", f.mail.sent[0].To)
	assert.Contains(t, f.mail.sent[0].Subject, "CS-000001")
	assert.Contains(t, f.mail.sent[0].Body, "3 x Classic Tee (M)")
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	assert.ErrorIs(t, err, httpx.ErrValidation, "empty cart")

	stockCart(f)
	_, err = f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "  "})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	f.repo.carts[buyer.UserID][1].ProductActive = false
	_, err = f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	assert.ErrorIs(t, err, httpx.ErrValidation, "inactive product")

	f.repo.carts[buyer.UserID][1].ProductActive = true
	f.repo.carts[buyer.UserID][1].Currency = "EUR"
	_, err = f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	assert.ErrorIs(t, err, httpx.ErrValidation, "mixed currencies")
	assert.Len(t, f.repo.carts[buyer.UserID], 2)
}

func TestCheckoutRollsBackAndReleasesKey(t *testing.T) {
	f := newFixture()
	stockCart(f)
	ctx := context.Background()

	f.repo.failItem = true
	_, err := f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St", IdempotencyKey: "k1"})
	require.Error(t, err)
	assert.Empty(t, f.repo.orders)
	assert.Len(t, f.repo.carts[buyer.UserID], 2)
	assert.Empty(t, f.idem.keys)

	f.repo.failItem = false
	_, err = f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St", IdempotencyKey: "k1"})
	require.NoError(t, err)

	stockCart(f)
	_, err = f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St", IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	other := &shared.Principal{UserID: 6}
	f.repo.carts[other.UserID] = f.repo.carts[buyer.UserID]
	_, err = f.svc.Checkout(ctx, other, orders.CheckoutInput{ShippingAddress: "2 Side St", IdempotencyKey: "k1"})
	assert.NoError(t, err, "keys are scoped per buyer")
}

func TestCheckoutSurvivesMailFailure(t *testing.T) {
	f := newFixture()
	stockCart(f)
	f.mail.err = errors.New("redis down")
	_, err := f.svc.Checkout(context.Background(), buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	assert.NoError(t, err)
}

func TestStatusWorkflow(t *testing.T) {
	f := newFixture()
	stockCart(f)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, 1, o.ID, orders.StatusShipped)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	_, err = f.svc.UpdateStatus(ctx, 1, o.ID, "lost")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	for _, next := range []orders.Status{orders.StatusPaid, orders.StatusShipped, orders.StatusDelivered} {
		o, err = f.svc.UpdateStatus(ctx, 1, o.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, o.Status)
	}
	_, err = f.svc.UpdateStatus(ctx, 1, o.ID, orders.StatusCancelled)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, f.audit.logs, 3)
	assert.Equal(t, "order.status", f.audit.logs[0].Action)
	assert.Equal(t, "pending", f.audit.logs[0].Meta["from"])
}

func TestCancel(t *testing.T) {
	f := newFixture()
	stockCart(f)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, 99, o.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	cancelled, err := f.svc.Cancel(ctx, buyer.UserID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	_, err = f.svc.Cancel(ctx, buyer.UserID, o.ID)
	assert.ErrorIs(t, err, httpx.ErrConflict)

	stockCart(f)
	paid, err := f.svc.Checkout(ctx, buyer, orders.CheckoutInput{ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, 1, paid.ID, orders.StatusPaid)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, buyer.UserID, paid.ID)
	assert.ErrorIs(t, err, httpx.ErrConflict, "buyers cancel pending orders only")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, orders.CanTransition(orders.StatusPending, orders.StatusPaid))
	assert.True(t, orders.CanTransition(orders.StatusPaid, orders.StatusCancelled))
	assert.False(t, orders.CanTransition(orders.StatusShipped, orders.StatusCancelled))
	assert.False(t, orders.CanTransition(orders.StatusDelivered, orders.StatusPending))
	assert.False(t, orders.CanTransition(orders.StatusCancelled, orders.StatusPaid))
}

func TestOrderRoutes(t *testing.T) {
	f := newFixture()
	stockCart(f)
	r := chi.NewRouter()
	r.Route("/orders", orders.NewHandler(nil, f.svc, rbac.Middleware{}).MountRoutes)

	as := func(id int64, mask permissions.Permission) *shared.Principal {
		return &shared.Principal{UserID: id, Email: "u@example.com", PermissionClaim: permissions.FormatClaim(mask), HasPermissionClaim: true}
	}
	shopper := as(buyer.UserID, permissions.UserPermissions)
	stranger := as(77, permissions.UserPermissions)
	moderator := as(2, permissions.ModeratorPermissions)
	admin := as(1, permissions.AdminPermissions)

	call := func(method, path, body string, p *shared.Principal, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		if p != nil {
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
		}
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res
	}

	assert.Equal(t, http.StatusUnauthorized, call(http.MethodPost, "/orders/checkout", `{"shipping_address":"x"}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/orders/checkout", `{}`, shopper).Code)
	res := call(http.MethodPost, "/orders/checkout", `{"shipping_address":"1 Main St"}`, shopper, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	stockCart(f)
	assert.Equal(t, http.StatusConflict, call(http.MethodPost, "/orders/checkout", `{"shipping_address":"1 Main St"}`, shopper, "Idempotency-Key", "abc").Code)

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/orders/mine", "", shopper).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/orders/1", "", shopper).Code)
	assert.Equal(t, http.StatusNotFound, call(http.MethodGet, "/orders/1", "", stranger).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/orders/1", "", moderator).Code)

	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, "/orders", "", shopper).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/orders?status=pending", "", moderator).Code)
	assert.Equal(t, http.StatusBadRequest, call(http.MethodGet, "/orders?status=lost", "", moderator).Code)

	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/orders/1/status", `{"status":"paid"}`, moderator).Code)
	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/orders/1/status", `{"status":"lost"}`, admin).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/orders/1/status", `{"status":"paid"}`, admin).Code)
	assert.Equal(t, http.StatusConflict, call(http.MethodPost, "/orders/1/cancel", "", shopper).Code)
}
