package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Line is a cart line frozen at purchase time. Its prices are never
// recomputed from the catalog.
type Line struct {
	ProductID     string          `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"oldPrice"`
	Quantity      int             `json:"quantity"`
	Size          string          `json:"size,omitempty"`
	Image         string          `json:"image"`
	LineTotal     decimal.Decimal `json:"lineTotal"`
}

// Order is an immutable purchase record. Only Status and the status dates
// change after creation.
type Order struct {
	ID              string
	UserID          string
	Email           string
	Lines           []Line
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	ProductDiscount decimal.Decimal
	CouponDiscount  decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	PaymentMethod   string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
}

// Reconciles reports whether the stored totals agree with each other.
func (o *Order) Reconciles() bool {
	if !o.Discount.Equal(o.ProductDiscount.Add(o.CouponDiscount)) {
		return false
	}
	return o.Total.Equal(o.Subtotal.Add(o.DeliveryFee).Sub(o.Discount))
}

// snapshotLines copies cart lines into order lines.
func snapshotLines(lines []cart.Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{
			ProductID:     l.ProductID,
			Name:          l.Name,
			UnitPrice:     l.UnitPrice,
			OriginalPrice: l.OriginalPrice,
			Quantity:      l.Quantity,
			Size:          l.Size,
			Image:         l.Image,
			LineTotal:     l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
	}
	return out
}

// StatusUpdate is the only mutation an order accepts after creation.
type StatusUpdate struct {
	OrderID     string
	// From is the status the order must still hold for the update to apply.
	From        Status
	Status      Status
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// Repository persists orders. There is deliberately no operation that
// rewrites lines or totals.
type Repository interface {
	// Create persists the canonical order record.
	Create(ctx context.Context, o *Order) error
	// CreateUserCopy writes the order under the owner's private history.
	CreateUserCopy(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the owner's history copies, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every canonical order, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// UpdateStatus applies upd only while the order is in upd.From and
	// returns ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, upd StatusUpdate) error
	UpdateUserCopyStatus(ctx context.Context, userID string, upd StatusUpdate) error
}

// Reader loads an order.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
}

// Watcher signals changes to a single order.
type Watcher interface {
	Subscribe(ctx context.Context, orderID string) (<-chan struct{}, error)
}
