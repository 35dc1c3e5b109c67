package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
)

const (
	listCartLinesSQL = `SELECT product_id, name, price, original_price, image, size, quantity
		FROM cart_lines WHERE user_id = $1 ORDER BY added_at, product_id`

	addCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, name, price, original_price, image, size, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			quantity = cart_lines.quantity + 1,
			image = EXCLUDED.image,
			size = EXCLUDED.size`

	putCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, name, price, original_price, image, size, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			original_price = EXCLUDED.original_price,
			image = EXCLUDED.image,
			size = EXCLUDED.size,
			quantity = EXCLUDED.quantity`

	updateCartQuantitySQL = `UPDATE cart_lines SET quantity = $3 WHERE user_id = $1 AND product_id = $2`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	deleteCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores signed-in users' cart lines. Every write fires the
// cart_changes notification through a table trigger.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListLines returns the user's lines in the order they were added.
func (r *CartRepository) ListLines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Name, &l.UnitPrice, &l.OriginalPrice, &l.Image, &l.Size, &l.Quantity)
		return l, err
	})
}

// AddLine inserts the line or increments the existing one in one statement.
func (r *CartRepository) AddLine(ctx context.Context, userID string, l cart.Line) error {
	if _, err := r.pool.Exec(ctx, addCartLineSQL, lineArgs(userID, l)...); err != nil {
		return fmt.Errorf("adding %q to cart of %q: %w", l.ProductID, userID, err)
	}
	return nil
}

// PutLine writes the line as-is.
func (r *CartRepository) PutLine(ctx context.Context, userID string, l cart.Line) error {
	if _, err := r.pool.Exec(ctx, putCartLineSQL, lineArgs(userID, l)...); err != nil {
		return fmt.Errorf("writing %q to cart of %q: %w", l.ProductID, userID, err)
	}
	return nil
}

// UpdateQuantity sets the quantity of an existing line.
func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, productID string, n int) error {
	tag, err := r.pool.Exec(ctx, updateCartQuantitySQL, userID, productID, n)
	if err != nil {
		return fmt.Errorf("updating %q in cart of %q: %w", productID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// DeleteLine removes a line if present.
func (r *CartRepository) DeleteLine(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartLineSQL, userID, productID); err != nil {
		return fmt.Errorf("deleting %q from cart of %q: %w", productID, userID, err)
	}
	return nil
}

// DeleteAll empties the user's cart.
func (r *CartRepository) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func lineArgs(userID string, l cart.Line) []any {
	return []any{userID, l.ProductID, l.Name, l.UnitPrice, l.OriginalPrice, l.Image, l.Size, l.Quantity}
}
