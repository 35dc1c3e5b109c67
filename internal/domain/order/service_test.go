package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/kv"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]Order
	userCopy  map[string][]string
	createErr error
	copyErr   error
	updateErr error
	updates   []StatusUpdate
	mirrored  []string
	// beforeUpdate runs once, ahead of the next UpdateStatus.
	beforeUpdate func()
	// onCommit runs after every applied status update.
	onCommit func()
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders:   make(map[string]Order),
		userCopy: make(map[string][]string),
	}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) CreateUserCopy(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return m.copyErr
	}
	m.userCopy[o.UserID] = append(m.userCopy[o.UserID], o.ID)
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, id := range m.userCopy[userID] {
		out = append(out, m.orders[id])
	}
	return out, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, upd StatusUpdate) error {
	m.mu.Lock()
	before := m.beforeUpdate
	m.beforeUpdate = nil
	m.mu.Unlock()
	if before != nil {
		before()
	}

	m.mu.Lock()
	if m.updateErr != nil {
		m.mu.Unlock()
		return m.updateErr
	}
	o, ok := m.orders[upd.OrderID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if o.Status != upd.From {
		m.mu.Unlock()
		return ErrStatusChanged
	}
	o.Status = upd.Status
	o.UpdatedAt = &upd.UpdatedAt
	o.ShippedAt = upd.ShippedAt
	o.DeliveredAt = upd.DeliveredAt
	m.orders[upd.OrderID] = o
	m.updates = append(m.updates, upd)
	commit := m.onCommit
	m.mu.Unlock()

	if commit != nil {
		commit()
	}
	return nil
}

func (m *mockOrderRepo) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

// staleRepo serves the snapshot of an order taken before it changed, the way
// a cache does until its entry is dropped.
type staleRepo struct {
	Repository
	snapshot map[string]Order
}

func (r *staleRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := r.snapshot[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) UpdateUserCopyStatus(_ context.Context, userID string, _ StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrored = append(m.mirrored, userID)
	return nil
}

type mockCatalog struct {
	mu   sync.Mutex
	sold map[string]int
	fail map[string]bool
}

func (m *mockCatalog) IncrementSoldCount(_ context.Context, id string, by int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[id] {
		return errors.New("catalog unavailable")
	}
	if m.sold == nil {
		m.sold = make(map[string]int)
	}
	m.sold[id] += by
	return nil
}

type mockSender struct {
	mu   sync.Mutex
	sent []map[string]string
	err  error
}

func (m *mockSender) Send(_ context.Context, _ string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, vars)
	return nil
}

type chanWatcher struct {
	ch chan struct{}
}

func (w *chanWatcher) Subscribe(_ context.Context, _ string) (<-chan struct{}, error) {
	return w.ch, nil
}

// --- Helpers ---

type fixture struct {
	svc     *Service
	repo    *mockOrderRepo
	catalog *mockCatalog
	sender  *mockSender
	watcher *chanWatcher
	device  kv.Store
	cart    *cart.LocalStore
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMockOrderRepo(),
		catalog: &mockCatalog{},
		sender:  &mockSender{},
		watcher: &chanWatcher{ch: make(chan struct{}, 1)},
		device:  kv.NewMemory(),
	}
	f.cart = cart.NewLocalStore(f.device, 0)
	svc, err := NewService(f.repo, f.catalog, f.sender, f.watcher,
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) add(t *testing.T, id string, price, oldPrice int64, qty int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.cart.Add(ctx, cart.Line{
		ProductID:     id,
		Name:          "Product " + id,
		UnitPrice:     decimal.NewFromInt(price),
		OriginalPrice: decimal.NewFromInt(oldPrice),
		Quantity:      1,
	}))
	if qty != 1 {
		require.NoError(t, f.cart.SetQuantity(ctx, id, qty))
	}
}

var opay = Payment{Method: "Opay"}

// --- Tests ---

func TestCreateOrder_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 10000, 12000, 2)
	f.add(t, "B", 5000, 0, 1)

	coupons := coupon.NewSelection(f.device)
	applied, err := coupons.Apply(ctx, coupon.NewResolver(coupon.DefaultRules...), "ZAYA1000",
		decimal.NewFromInt(25000), decimal.NewFromInt(2500))
	require.NoError(t, err)

	o, err := f.svc.CreateOrder(ctx, CreateRequest{
		Cart:     f.cart,
		Payment:  opay,
		Customer: Customer{Identity: &auth.Identity{UserID: "u1", Email: "u1@example.com", DisplayName: "Ada"}},
		Coupon:   applied,
		Coupons:  coupons,
	})
	require.NoError(t, err)

	assert.Len(t, o.Lines, 2)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(25000)))
	assert.True(t, o.ProductDiscount.Equal(decimal.NewFromInt(4000)))
	assert.True(t, o.CouponDiscount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, o.DeliveryFee.Equal(decimal.NewFromInt(2500)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(22500)))
	assert.True(t, o.Reconciles())

	lines, err := f.cart.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	cur, err := coupons.Load(ctx)
	require.NoError(t, err)
	assert.False(t, cur.Active())

	assert.Equal(t, map[string]int{"A": 2, "B": 1}, f.catalog.sold)
	assert.Equal(t, []string{o.ID}, f.repo.userCopy["u1"])
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "u1@example.com", f.sender.sent[0]["to_email"])
	assert.Equal(t, "Ada", f.sender.sent[0]["user_name"])
	assert.Contains(t, f.sender.sent[0]["order_summary"], "Total: ₦22500")
}

func TestCreateOrder_Guest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 60000, 0, 1)

	o, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
	require.NoError(t, err)

	assert.Equal(t, auth.GuestUserID, o.UserID)
	assert.Equal(t, auth.GuestEmail, o.Email)
	assert.True(t, o.DeliveryFee.IsZero())
	assert.Empty(t, f.repo.userCopy)
}

func TestCreateOrder_PersistenceFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 3)
	f.repo.createErr = errors.New("connection refused")

	_, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	lines, err := f.cart.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Empty(t, f.sender.sent)
}

func TestCreateOrder_SideEffectFailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 1)
	f.add(t, "B", 1000, 0, 1)
	f.catalog.fail = map[string]bool{"A": true}
	f.sender.err = errors.New("smtp down")
	f.repo.copyErr = errors.New("history unavailable")

	o, err := f.svc.CreateOrder(ctx, CreateRequest{
		Cart:     f.cart,
		Payment:  opay,
		Customer: Customer{Identity: &auth.Identity{UserID: "u1"}},
	})
	require.NoError(t, err)

	_, err = f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1}, f.catalog.sold)

	lines, err := f.cart.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCreateOrder_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyCart", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
		require.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("BadPayment", func(t *testing.T) {
		f := newFixture(t)
		f.add(t, "A", 1000, 0, 1)
		_, err := f.svc.CreateOrder(ctx, CreateRequest{
			Cart:    f.cart,
			Payment: Payment{Method: "Card", CardNumber: "1234"},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "card number", verr.Field)

		lines, err := f.cart.Lines(ctx)
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})
}

func TestCreateOrder_PricesAreFrozen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 2)

	o, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
	require.NoError(t, err)

	f.add(t, "A", 9999, 0, 1)
	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.Lines[0].LineTotal.Equal(decimal.NewFromInt(2000)))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	admin := Operator{ID: "admin", IsAdmin: true}

	newOrder := func(t *testing.T) (*fixture, *Order) {
		f := newFixture(t)
		f.add(t, "A", 1000, 0, 1)
		o, err := f.svc.CreateOrder(ctx, CreateRequest{
			Cart:     f.cart,
			Payment:  opay,
			Customer: Customer{Identity: &auth.Identity{UserID: "u1"}},
		})
		require.NoError(t, err)
		return f, o
	}

	t.Run("ForwardStampsDates", func(t *testing.T) {
		f, o := newOrder(t)
		got, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, StatusShipped, got.Status)
		require.NotNil(t, got.ShippedAt)
		assert.Nil(t, got.DeliveredAt)
		require.NotNil(t, got.UpdatedAt)
		assert.Equal(t, fixedNow, *got.UpdatedAt)

		got, err = f.svc.UpdateStatus(ctx, admin, o.ID, StatusDelivered)
		require.NoError(t, err)
		require.NotNil(t, got.ShippedAt)
		require.NotNil(t, got.DeliveredAt)
		assert.Equal(t, []string{"u1", "u1"}, f.repo.mirrored)
	})

	t.Run("BackwardRejected", func(t *testing.T) {
		f, o := newOrder(t)
		_, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusDelivered)
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, admin, o.ID, StatusPending)
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusDelivered, terr.From)
		assert.Len(t, f.repo.updates, 1)
	})

	t.Run("SameStatusIsNoop", func(t *testing.T) {
		f, o := newOrder(t)
		got, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusPending)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Empty(t, f.repo.updates)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		f, o := newOrder(t)
		_, err := f.svc.UpdateStatus(ctx, Operator{ID: "u1"}, o.ID, StatusProcessing)
		require.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.ListAll(ctx, Operator{ID: "u1"})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateStatus(ctx, admin, "missing", StatusProcessing)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("StaleWriteRechecked", func(t *testing.T) {
		f, o := newOrder(t)
		// Another operator delivers the order between our read and write.
		f.repo.beforeUpdate = func() {
			_, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusDelivered)
			require.NoError(t, err)
		}

		_, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusProcessing)
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusDelivered, terr.From)
		assert.Equal(t, StatusDelivered, f.repo.status(o.ID))
		assert.Len(t, f.repo.updates, 1)
	})

	t.Run("ForwardWriteRetried", func(t *testing.T) {
		f, o := newOrder(t)
		f.repo.beforeUpdate = func() {
			_, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusProcessing)
			require.NoError(t, err)
		}

		got, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, got.Status)
		require.Len(t, f.repo.updates, 2)
		assert.Equal(t, StatusProcessing, f.repo.updates[1].From)
	})

	t.Run("PersistentConflict", func(t *testing.T) {
		f, o := newOrder(t)
		f.repo.updateErr = ErrStatusChanged
		_, err := f.svc.UpdateStatus(ctx, admin, o.ID, StatusShipped)
		require.ErrorIs(t, err, ErrStatusChanged)
	})
}

func TestUpdateStatus_ConcurrentOperators(t *testing.T) {
	ctx := context.Background()
	admin := Operator{ID: "admin", IsAdmin: true}
	f := newFixture(t)

	var ids []string
	for i := 0; i < 20; i++ {
		f.add(t, "A", 1000, 0, 1)
		o, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	for _, id := range ids {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, status := range []Status{StatusDelivered, StatusProcessing} {
			wg.Add(1)
			go func(status Status) {
				defer wg.Done()
				<-start
				_, err := f.svc.UpdateStatus(ctx, admin, id, status)
				if err != nil {
					var terr *TransitionError
					assert.ErrorAs(t, err, &terr)
				}
			}(status)
		}
		close(start)
		wg.Wait()
		assert.Equal(t, StatusDelivered, f.repo.status(id), "order %s moved backward", id)
	}
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 1)
	o, err := f.svc.CreateOrder(ctx, CreateRequest{
		Cart:     f.cart,
		Payment:  opay,
		Customer: Customer{Identity: &auth.Identity{UserID: "u1"}},
	})
	require.NoError(t, err)

	got, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)

	got, err = f.svc.ListForUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWatch_ReadsCommittedStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 1)
	o, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
	require.NoError(t, err)

	cached := &staleRepo{Repository: f.repo, snapshot: map[string]Order{o.ID: *o}}
	svc, err := NewService(cached, f.catalog, f.sender, f.watcher,
		WithFreshReader(f.repo),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	updates, err := svc.Watch(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, (<-updates).Status)

	// The change notification fires as the write commits, before any cache
	// entry is dropped.
	seen := make(chan Status, 1)
	f.repo.onCommit = func() {
		f.watcher.ch <- struct{}{}
		select {
		case got := <-updates:
			seen <- got.Status
		case <-time.After(time.Second):
			seen <- ""
		}
	}

	_, err = svc.UpdateStatus(ctx, Operator{IsAdmin: true}, o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, <-seen)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.add(t, "A", 1000, 0, 1)
	o, err := f.svc.CreateOrder(ctx, CreateRequest{Cart: f.cart, Payment: opay})
	require.NoError(t, err)

	updates, err := f.svc.Watch(ctx, o.ID)
	require.NoError(t, err)
	first := <-updates
	assert.Equal(t, StatusPending, first.Status)

	_, err = f.svc.UpdateStatus(ctx, Operator{IsAdmin: true}, o.ID, StatusProcessing)
	require.NoError(t, err)
	f.watcher.ch <- struct{}{}

	select {
	case got := <-updates:
		assert.Equal(t, StatusProcessing, got.Status)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}
