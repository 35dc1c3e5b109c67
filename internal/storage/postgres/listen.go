package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/order"
)

// Notification channels fired by the table triggers.
const (
	CartChannel  = "cart_changes"
	OrderChannel = "order_changes"
)

// Listener holds one LISTEN connection and fans notifications out to
// subscribers keyed by channel and payload.
type Listener struct {
	pool    *pgxpool.Pool
	backoff time.Duration

	mu   sync.Mutex
	subs map[string]map[string]map[chan struct{}]struct{}
}

// NewListener returns a Listener. Call Run to start receiving.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool:    pool,
		backoff: time.Second,
		subs:    make(map[string]map[string]map[chan struct{}]struct{}),
	}
}

// Run listens until ctx is done, reconnecting after connection errors.
func (l *Listener) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		lg.Warn("Notification listener disconnected", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	defer conn.Release()

	for _, ch := range []string{CartChannel, OrderChannel} {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return errors.Wrapf(err, "listen %s", ch)
		}
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait")
		}
		l.dispatch(n.Channel, n.Payload)
	}
}

func (l *Listener) dispatch(channel, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs[channel][key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel signalled on every notification of channel
// carrying key. Signals coalesce while the receiver is busy. The channel is
// closed when ctx ends.
func (l *Listener) Subscribe(ctx context.Context, channel, key string) <-chan struct{} {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	keys, ok := l.subs[channel]
	if !ok {
		keys = make(map[string]map[chan struct{}]struct{})
		l.subs[channel] = keys
	}
	set, ok := keys[key]
	if !ok {
		set = make(map[chan struct{}]struct{})
		keys[key] = set
	}
	set[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(set, ch)
		if len(set) == 0 {
			delete(keys, key)
		}
		close(ch)
	}()
	return ch
}

// Carts returns the cart change feed.
func (l *Listener) Carts() cart.Notifier {
	return feed{l: l, channel: CartChannel}
}

// Orders returns the order change feed.
func (l *Listener) Orders() order.Watcher {
	return feed{l: l, channel: OrderChannel}
}

type feed struct {
	l       *Listener
	channel string
}

func (f feed) Subscribe(ctx context.Context, key string) (<-chan struct{}, error) {
	return f.l.Subscribe(ctx, f.channel, key), nil
}
