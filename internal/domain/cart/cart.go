// Package cart holds the pre-purchase line items for a guest device or a
// signed-in user.
//
// Two Store implementations share one contract: LocalStore keeps a guest's
// lines in device storage and RemoteStore keeps a user's lines in the
// document store. Provider picks between them based on the caller's identity.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/zaya-storefront/internal/domain/pricing"
	"github.com/xenking/zaya-storefront/internal/kv"
)

var (
	// ErrLineNotFound is returned when a quantity is set on a product that
	// is not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrInvalidLine is returned when a line is added without a product id.
	ErrInvalidLine = errors.New("product id required")
)

// Line is a single product selection. Lines are unique by ProductID within
// a cart.
type Line struct {
	ProductID     string          `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"oldPrice"`
	Image         string          `json:"image"`
	Quantity      int             `json:"quantity"`
	Size          string          `json:"size,omitempty"`
}

// PricingItems converts lines to their pricing view.
func PricingItems(lines []Line) []pricing.Item {
	items := make([]pricing.Item, len(lines))
	for i, l := range lines {
		items[i] = pricing.Item{
			UnitPrice:     l.UnitPrice,
			OriginalPrice: l.OriginalPrice,
			Quantity:      l.Quantity,
		}
	}
	return items
}

// Count returns the total number of units across lines.
func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Store is the mutable cart of one identity.
type Store interface {
	// Lines returns the current lines.
	Lines(ctx context.Context) ([]Line, error)
	// Add inserts line with quantity 1, or increments the quantity of an
	// existing line and refreshes its image and size.
	Add(ctx context.Context, line Line) error
	// SetQuantity sets the quantity of a line. n < 1 removes the line and is
	// a no-op when the line is absent.
	SetQuantity(ctx context.Context, productID string, n int) error
	// Remove deletes a line if present.
	Remove(ctx context.Context, productID string) error
	// Clear deletes every line.
	Clear(ctx context.Context) error
	// Watch delivers the current lines, then every change until ctx ends.
	Watch(ctx context.Context) (<-chan []Line, error)
}

// Repository stores user cart lines in the document store.
type Repository interface {
	ListLines(ctx context.Context, userID string) ([]Line, error)
	// AddLine atomically inserts line with quantity 1 or increments an
	// existing line and refreshes its image and size.
	AddLine(ctx context.Context, userID string, line Line) error
	// PutLine writes line as-is, replacing any existing line.
	PutLine(ctx context.Context, userID string, line Line) error
	// UpdateQuantity returns ErrLineNotFound when the line is absent.
	UpdateQuantity(ctx context.Context, userID, productID string, n int) error
	DeleteLine(ctx context.Context, userID, productID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// Notifier signals changes to a user's cart.
type Notifier interface {
	Subscribe(ctx context.Context, userID string) (<-chan struct{}, error)
}

// Provider selects the Store for an identity.
type Provider struct {
	repo         Repository
	notifier     Notifier
	pollInterval time.Duration
}

// NewProvider creates a Provider. pollInterval governs how often guest carts
// are re-read by Watch.
func NewProvider(repo Repository, notifier Notifier, pollInterval time.Duration) *Provider {
	return &Provider{repo: repo, notifier: notifier, pollInterval: pollInterval}
}

// Guest returns the cart kept in device storage.
func (p *Provider) Guest(device kv.Store) *LocalStore {
	return NewLocalStore(device, p.pollInterval)
}

// User returns the cart of a signed-in user.
func (p *Provider) User(userID string) *RemoteStore {
	return NewRemoteStore(p.repo, p.notifier, userID)
}

// For returns the authoritative cart: the user's when userID is set,
// otherwise the device's guest cart.
func (p *Provider) For(device kv.Store, userID string) Store {
	if userID != "" {
		return p.User(userID)
	}
	return p.Guest(device)
}
