// Package catalog describes the product catalog consumed by the storefront.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// OriginalPrice is the slashed price shown next to Price. Zero when the
	// product is not on markdown.
	OriginalPrice decimal.Decimal
	Category      string
	Image         string
	Sizes         []string
	SoldCount     int64
}

// Repository defines the catalog operations the storefront needs.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// IncrementSoldCount atomically adds by to the product's sold counter.
	IncrementSoldCount(ctx context.Context, id string, by int) error
}
