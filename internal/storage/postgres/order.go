package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/zaya-storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, email, items, subtotal, delivery_fee, product_discount, coupon_discount,
		discount, total, coupon_code, payment_method, status, created_at, updated_at, shipped_at, delivered_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	createUserOrderSQL = `INSERT INTO user_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, id) DO NOTHING`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listUserOrdersSQL = `SELECT ` + orderColumns + ` FROM user_orders WHERE user_id = $1
		ORDER BY created_at DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, updated_at = $3, shipped_at = $4, delivered_at = $5
		WHERE id = $1 AND status = $6`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	// A late mirror never overwrites a newer status.
	updateUserOrderStatusSQL = `UPDATE user_orders
		SET status = $3, updated_at = $4, shipped_at = $5, delivered_at = $6
		WHERE user_id = $1 AND id = $2 AND (updated_at IS NULL OR updated_at <= $4)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Lines
// are stored as JSONB and never rewritten.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the canonical order record.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, createOrderSQL, args...); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// CreateUserCopy writes the order into the owner's history. Writing the same
// order twice is a no-op.
func (r *OrderRepository) CreateUserCopy(ctx context.Context, o *order.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, createUserOrderSQL, args...); err != nil {
		return fmt.Errorf("copying order %q to %q: %w", o.ID, o.UserID, err)
	}
	return nil
}

// Get returns the canonical order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's history, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus writes the status and its dates to the canonical record if
// the order is still in upd.From.
func (r *OrderRepository) UpdateStatus(ctx context.Context, upd order.StatusUpdate) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL,
		upd.OrderID, string(upd.Status), upd.UpdatedAt, upd.ShippedAt, upd.DeliveredAt, string(upd.From),
	)
	if err != nil {
		return fmt.Errorf("updating status of %q: %w", upd.OrderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, upd.OrderID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", upd.OrderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusChanged
}

// UpdateUserCopyStatus mirrors a status update into the owner's history.
func (r *OrderRepository) UpdateUserCopyStatus(ctx context.Context, userID string, upd order.StatusUpdate) error {
	_, err := r.pool.Exec(ctx, updateUserOrderStatusSQL,
		userID, upd.OrderID, string(upd.Status), upd.UpdatedAt, upd.ShippedAt, upd.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("updating status of %q for %q: %w", upd.OrderID, userID, err)
	}
	return nil
}

func orderArgs(o *order.Order) ([]any, error) {
	items, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}
	return []any{
		o.ID, o.UserID, o.Email, items,
		o.Subtotal, o.DeliveryFee, o.ProductDiscount, o.CouponDiscount, o.Discount, o.Total,
		o.CouponCode, o.PaymentMethod, string(o.Status),
		o.CreatedAt, o.UpdatedAt, o.ShippedAt, o.DeliveredAt,
	}, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Email, &items,
		&o.Subtotal, &o.DeliveryFee, &o.ProductDiscount, &o.CouponDiscount, &o.Discount, &o.Total,
		&o.CouponCode, &o.PaymentMethod, &status,
		&o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	return o, nil
}
