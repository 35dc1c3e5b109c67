//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "zaya",
				"POSTGRES_PASSWORD": "zaya",
				"POSTGRES_DB":       "zaya",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://zaya:zaya@%s:%s/zaya?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	return m.Run()
}

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	r := NewProductRepository(testPool)

	require.NoError(t, r.Upsert(ctx, catalog.Product{
		ID: "p1", Name: "Kaftan", Price: d(15000), OriginalPrice: d(18000), Sizes: []string{"M", "L"},
	}))

	p, err := r.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(d(15000)))
	assert.Equal(t, []string{"M", "L"}, p.Sizes)

	require.NoError(t, r.IncrementSoldCount(ctx, "p1", 3))
	require.NoError(t, r.IncrementSoldCount(ctx, "p1", 2))
	p, err = r.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, p.SoldCount)

	require.ErrorIs(t, r.IncrementSoldCount(ctx, "missing", 1), catalog.ErrNotFound)
	_, err = r.GetByID(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepository(testPool)
	hash := auth.HashToken([]byte("pepper"), "token-1")

	require.NoError(t, r.Upsert(ctx, auth.Identity{UserID: "u-auth", Email: "a@zaya.com", IsAdmin: true, TokenHash: hash}))

	authn := auth.NewAuthenticator(r, []byte("pepper"))
	id, err := authn.Authenticate(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "u-auth", id.UserID)
	assert.True(t, id.IsAdmin)

	_, err = authn.Authenticate(ctx, "token-2")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository(testPool)
	l := cart.Line{ProductID: "p1", Name: "Kaftan", UnitPrice: d(15000), Image: "a.jpg", Quantity: 1}

	require.NoError(t, r.AddLine(ctx, "u-cart", l))
	l.Image = "b.jpg"
	require.NoError(t, r.AddLine(ctx, "u-cart", l))

	lines, err := r.ListLines(ctx, "u-cart")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "b.jpg", lines[0].Image)

	require.NoError(t, r.UpdateQuantity(ctx, "u-cart", "p1", 5))
	require.ErrorIs(t, r.UpdateQuantity(ctx, "u-cart", "missing", 1), cart.ErrLineNotFound)

	l.ProductID = "p2"
	l.Quantity = 4
	require.NoError(t, r.PutLine(ctx, "u-cart", l))
	lines, err = r.ListLines(ctx, "u-cart")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 4, lines[1].Quantity)

	require.NoError(t, r.DeleteLine(ctx, "u-cart", "p1"))
	require.NoError(t, r.DeleteAll(ctx, "u-cart"))
	lines, err = r.ListLines(ctx, "u-cart")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartNotifications(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(testPool)
	go func() { _ = l.Run(ctx) }()
	changes, err := l.Carts().Subscribe(ctx, "u-notify")
	require.NoError(t, err)

	r := NewCartRepository(testPool)
	require.Eventually(t, func() bool {
		_ = r.AddLine(ctx, "u-notify", cart.Line{ProductID: "p1", Name: "x", UnitPrice: d(1), Quantity: 1})
		select {
		case <-changes:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 200*time.Millisecond)
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepository(testPool)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	o := &order.Order{
		ID:     "o-1",
		UserID: "u-order",
		Email:  "u@zaya.com",
		Lines: []order.Line{{
			ProductID: "p1", Name: "Kaftan", UnitPrice: d(10000), Quantity: 2, LineTotal: d(20000),
		}},
		Subtotal:        d(20000),
		DeliveryFee:     d(2500),
		ProductDiscount: d(0),
		CouponDiscount:  d(1000),
		Discount:        d(1000),
		Total:           d(21500),
		CouponCode:      "ZAYA1000",
		PaymentMethod:   "Card",
		Status:          order.StatusPending,
		CreatedAt:       created,
	}
	require.NoError(t, r.Create(ctx, o))
	require.NoError(t, r.CreateUserCopy(ctx, o))
	require.NoError(t, r.CreateUserCopy(ctx, o))

	got, err := r.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, got.Reconciles())
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].LineTotal.Equal(d(20000)))
	assert.True(t, got.CreatedAt.Equal(created))

	now := created.Add(time.Hour)
	upd := order.StatusUpdate{
		OrderID: "o-1", From: order.StatusPending, Status: order.StatusShipped, UpdatedAt: now, ShippedAt: &now,
	}
	require.NoError(t, r.UpdateStatus(ctx, upd))
	require.NoError(t, r.UpdateUserCopyStatus(ctx, "u-order", upd))

	// A writer that read Pending before the shipment landed loses.
	stale := order.StatusUpdate{
		OrderID: "o-1", From: order.StatusPending, Status: order.StatusProcessing, UpdatedAt: created.Add(time.Minute),
	}
	require.ErrorIs(t, r.UpdateStatus(ctx, stale), order.ErrStatusChanged)
	require.NoError(t, r.UpdateUserCopyStatus(ctx, "u-order", stale))
	got, err = r.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)

	history, err := r.ListByUser(ctx, "u-order")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.StatusShipped, history[0].Status)
	require.NotNil(t, history[0].ShippedAt)

	missing := order.StatusUpdate{OrderID: "missing", From: order.StatusPending, Status: order.StatusShipped}
	require.ErrorIs(t, r.UpdateStatus(ctx, missing), order.ErrNotFound)
	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestSavedItemRepository(t *testing.T) {
	ctx := context.Background()
	r := NewSavedItemRepository(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, r.Save(ctx, "u-saved", wishlist.Item{ProductID: "p1", Name: "Kaftan", Price: d(1), SavedAt: now}))
	require.NoError(t, r.Save(ctx, "u-saved", wishlist.Item{ProductID: "p2", Name: "Gele", Price: d(2), SavedAt: now.Add(time.Second)}))

	items, err := r.List(ctx, "u-saved")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p2", items[0].ProductID)

	require.NoError(t, r.Remove(ctx, "u-saved", "p2"))
	_, err = r.Get(ctx, "u-saved", "p2")
	require.ErrorIs(t, err, wishlist.ErrNotSaved)
}
