// Package cache provides read-through Redis caching in front of the
// PostgreSQL repositories.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository caches canonical orders by id. Status updates invalidate
// the cached entry once the primary write returns, so a reader woken by the
// commit itself must read the primary. Cache failures never fail a call.
type OrderRepository struct {
	order.Repository
	client *redis.Client
	ttl    time.Duration
}

// NewOrderRepository wraps primary with a cache of the given TTL.
func NewOrderRepository(primary order.Repository, client *redis.Client, ttl time.Duration) *OrderRepository {
	return &OrderRepository{Repository: primary, client: client, ttl: ttl}
}

func orderKey(id string) string {
	return "zaya:order:" + id
}

// Get returns the cached order or loads and caches it.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	lg := zctx.From(ctx)

	cached, err := r.client.Get(ctx, orderKey(id)).Bytes()
	if err == nil {
		var o order.Order
		if err := json.Unmarshal(cached, &o); err == nil {
			return &o, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		lg.Warn("Order cache read", zap.String("order_id", id), zap.Error(err))
	}

	o, err := r.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(o)
	if err == nil {
		err = r.client.Set(ctx, orderKey(id), data, r.ttl).Err()
	}
	if err != nil {
		lg.Warn("Order cache write", zap.String("order_id", id), zap.Error(err))
	}
	return o, nil
}

// UpdateStatus updates the primary and drops the cached order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, upd order.StatusUpdate) error {
	defer r.invalidate(ctx, upd.OrderID)
	return r.Repository.UpdateStatus(ctx, upd)
}

func (r *OrderRepository) invalidate(ctx context.Context, id string) {
	if err := r.client.Del(ctx, orderKey(id)).Err(); err != nil {
		zctx.From(ctx).Warn("Order cache invalidate", zap.String("order_id", id), zap.Error(err))
	}
}
