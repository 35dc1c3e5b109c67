package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
)

const (
	savedItemColumns = `product_id, name, price, original_price, image, saved_at`

	saveItemSQL = `INSERT INTO saved_items (user_id, ` + savedItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			original_price = EXCLUDED.original_price,
			image = EXCLUDED.image,
			saved_at = EXCLUDED.saved_at`

	removeSavedItemSQL = `DELETE FROM saved_items WHERE user_id = $1 AND product_id = $2`

	listSavedItemsSQL = `SELECT ` + savedItemColumns + ` FROM saved_items
		WHERE user_id = $1 ORDER BY saved_at DESC`

	getSavedItemSQL = `SELECT ` + savedItemColumns + ` FROM saved_items
		WHERE user_id = $1 AND product_id = $2`
)

var _ wishlist.Repository = (*SavedItemRepository)(nil)

// SavedItemRepository implements wishlist.Repository backed by PostgreSQL.
type SavedItemRepository struct {
	pool *pgxpool.Pool
}

// NewSavedItemRepository returns a SavedItemRepository that uses the given pool.
func NewSavedItemRepository(pool *pgxpool.Pool) *SavedItemRepository {
	return &SavedItemRepository{pool: pool}
}

func (r *SavedItemRepository) Save(ctx context.Context, userID string, it wishlist.Item) error {
	_, err := r.pool.Exec(ctx, saveItemSQL,
		userID, it.ProductID, it.Name, it.Price, it.OriginalPrice, it.Image, it.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("saving %q for %q: %w", it.ProductID, userID, err)
	}
	return nil
}

func (r *SavedItemRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeSavedItemSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q for %q: %w", productID, userID, err)
	}
	return nil
}

func (r *SavedItemRepository) List(ctx context.Context, userID string) ([]wishlist.Item, error) {
	rows, err := r.pool.Query(ctx, listSavedItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing saved items of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanSavedItem)
}

func (r *SavedItemRepository) Get(ctx context.Context, userID, productID string) (*wishlist.Item, error) {
	rows, err := r.pool.Query(ctx, getSavedItemSQL, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("getting saved item %q: %w", productID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanSavedItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wishlist.ErrNotSaved
		}
		return nil, fmt.Errorf("getting saved item %q: %w", productID, err)
	}
	return &it, nil
}

func scanSavedItem(row pgx.CollectableRow) (wishlist.Item, error) {
	var it wishlist.Item
	err := row.Scan(&it.ProductID, &it.Name, &it.Price, &it.OriginalPrice, &it.Image, &it.SavedAt)
	return it, err
}
