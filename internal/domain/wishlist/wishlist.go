// Package wishlist keeps the products a signed-in user saved for later.
package wishlist

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
)

var (
	// ErrAlreadyInCart is returned by MoveToCart when the product is already
	// in the cart. The cart is left unchanged.
	ErrAlreadyInCart = errors.New("item already in cart")
	// ErrNotSaved is returned when the product is not in the user's saved items.
	ErrNotSaved = errors.New("item not saved")
)

// Item is a saved product.
type Item struct {
	ProductID     string
	Name          string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	Image         string
	SavedAt       time.Time
}

// Repository persists saved items per user.
type Repository interface {
	// Save inserts or refreshes the item.
	Save(ctx context.Context, userID string, item Item) error
	Remove(ctx context.Context, userID, productID string) error
	// List returns saved items, most recent first.
	List(ctx context.Context, userID string) ([]Item, error)
	Get(ctx context.Context, userID, productID string) (*Item, error)
}

// Service manages saved items.
type Service struct {
	items    Repository
	products interface {
		GetByID(ctx context.Context, id string) (*catalog.Product, error)
	}
	now func() time.Time
}

// NewService creates a Service. products is used to snapshot the product
// when it is saved.
func NewService(items Repository, products catalog.Repository) *Service {
	return &Service{items: items, products: products, now: time.Now}
}

// Save adds a product to the user's saved items.
func (s *Service) Save(ctx context.Context, userID, productID string) (*Item, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	item := Item{
		ProductID:     p.ID,
		Name:          p.Name,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.Image,
		SavedAt:       s.now().UTC(),
	}
	if err := s.items.Save(ctx, userID, item); err != nil {
		return nil, errors.Wrap(err, "save item")
	}
	return &item, nil
}

// Remove drops a product from the user's saved items.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	if err := s.items.Remove(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove item")
	}
	return nil
}

// List returns the user's saved items.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.items.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	return items, nil
}

// MoveToCart adds a saved item to c with quantity 1 unless the product is
// already there. The item stays saved either way.
func (s *Service) MoveToCart(ctx context.Context, userID, productID string, c cart.Store) error {
	item, err := s.items.Get(ctx, userID, productID)
	if err != nil {
		return err
	}
	lines, err := c.Lines(ctx)
	if err != nil {
		return errors.Wrap(err, "read cart")
	}
	for _, l := range lines {
		if l.ProductID == productID {
			return ErrAlreadyInCart
		}
	}
	return c.Add(ctx, cart.Line{
		ProductID:     item.ProductID,
		Name:          item.Name,
		UnitPrice:     item.Price,
		OriginalPrice: item.OriginalPrice,
		Image:         item.Image,
		Quantity:      1,
	})
}
