package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/pricing"
	"github.com/xenking/zaya-storefront/internal/notify"
	"github.com/xenking/zaya-storefront/internal/workflow"
)

// Checkout step names.
const (
	StepSoldCounts  = "increment_sold_counts"
	StepPersist     = "persist_order"
	StepUserCopy    = "copy_to_user_history"
	StepNotify      = "send_confirmation"
	StepClearCart   = "clear_cart"
	StepClearCoupon = "clear_coupon"
)

// Catalog is the slice of the catalog that checkout mutates.
type Catalog interface {
	IncrementSoldCount(ctx context.Context, productID string, by int) error
}

// Customer identifies who is checking out. A nil Identity is a guest.
type Customer struct {
	Identity *auth.Identity
}

func (c Customer) authenticated() bool {
	return c.Identity != nil
}

func (c Customer) userID() string {
	if c.Identity == nil {
		return auth.GuestUserID
	}
	return c.Identity.UserID
}

func (c Customer) email() string {
	if c.Identity == nil || c.Identity.Email == "" {
		return auth.GuestEmail
	}
	return c.Identity.Email
}

func (c Customer) name() string {
	if c.Identity == nil || c.Identity.DisplayName == "" {
		return auth.GuestName
	}
	return c.Identity.DisplayName
}

// CreateRequest holds the input for checkout.
type CreateRequest struct {
	Cart     cart.Store
	Payment  Payment
	Customer Customer
	// Coupon is the coupon applied to the cart, zero when none.
	Coupon coupon.Applied
	// Coupons, when set, has its applied coupon cleared after checkout.
	Coupons *coupon.Selection
}

// Operator is the caller of an admin operation.
type Operator struct {
	ID      string
	IsAdmin bool
}

// Service implements checkout and order reads.
type Service struct {
	orders   Repository
	fresh    Reader
	catalog  Catalog
	notifier notify.Sender
	watcher  Watcher
	calc     pricing.Calculator
	runner   *workflow.Runner
	now      func() time.Time

	created  metric.Int64Counter
	failures metric.Int64Counter
}

// Option configures a Service.
type Option func(*options)

type options struct {
	meter  metric.Meter
	tracer trace.Tracer
	calc   *pricing.Calculator
	fresh  Reader
	now    func() time.Time
}

// WithMeter records checkout metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer records a span per checkout step.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithCalculator overrides the default delivery policy.
func WithCalculator(c pricing.Calculator) Option {
	return func(o *options) { o.calc = &c }
}

// WithFreshReader sets the uncached reader used by UpdateStatus and Watch.
// It defaults to the Repository itself.
func WithFreshReader(r Reader) Option {
	return func(o *options) { o.fresh = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	catalog Catalog,
	notifier notify.Sender,
	watcher Watcher,
	opts ...Option,
) (*Service, error) {
	o := options{
		meter: noop.NewMeterProvider().Meter(""),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		orders:   orders,
		catalog:  catalog,
		notifier: notifier,
		watcher:  watcher,
		calc:     pricing.NewCalculator(),
		now:      o.now,
	}
	if o.calc != nil {
		s.calc = *o.calc
	}
	s.fresh = orders
	if o.fresh != nil {
		s.fresh = o.fresh
	}

	var err error
	if s.created, err = o.meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted by checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.failures, err = o.meter.Int64Counter("orders.step_failures",
		metric.WithDescription("Non-critical checkout steps that failed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.step_failures counter")
	}

	runnerOpts := []workflow.Option{
		workflow.WithFailureHook(func(ctx context.Context, step string) {
			s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
		}),
	}
	if o.tracer != nil {
		runnerOpts = append(runnerOpts, workflow.WithTracer(o.tracer))
	}
	s.runner = workflow.NewRunner(runnerOpts...)
	return s, nil
}

// Calculator returns the delivery policy used for checkout.
func (s *Service) Calculator() pricing.Calculator {
	return s.calc
}

// CreateOrder checks out the cart. Only a failure to persist the canonical
// order aborts checkout, returned as *PersistenceError with the cart left
// as it was. Every other side effect is best effort, and the cart is cleared
// last so that a failure earlier never empties a cart without an order.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	method, err := req.Payment.Validate()
	if err != nil {
		return nil, err
	}

	lines, err := req.Cart.Lines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.Customer.userID(),
		Email:         req.Customer.email(),
		Lines:         snapshotLines(lines),
		CouponCode:    req.Coupon.Code,
		PaymentMethod: string(method),
		Status:        StatusPending,
	}
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	ctx = zctx.Base(ctx, lg)

	steps := []workflow.Step{
		{Name: StepSoldCounts, Run: func(ctx context.Context) error {
			return s.incrementSoldCounts(ctx, lines)
		}},
		{Name: StepPersist, Critical: true, Run: func(ctx context.Context) error {
			s.price(o, lines, req.Coupon.Amount)
			o.CreatedAt = s.now().UTC()
			return s.orders.Create(ctx, o)
		}},
	}
	if req.Customer.authenticated() {
		steps = append(steps, workflow.Step{Name: StepUserCopy, Run: func(ctx context.Context) error {
			return s.orders.CreateUserCopy(ctx, o)
		}})
	}
	steps = append(steps,
		workflow.Step{Name: StepNotify, Run: func(ctx context.Context) error {
			return s.notifier.Send(ctx, ConfirmationTemplate, confirmationVars(o, req.Customer.name()))
		}},
		workflow.Step{Name: StepClearCart, Run: req.Cart.Clear},
	)
	if req.Coupons != nil {
		steps = append(steps, workflow.Step{Name: StepClearCoupon, Run: req.Coupons.Clear})
	}

	res, err := s.runner.Run(ctx, steps...)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", o.PaymentMethod)))
	lg.Info("Order created",
		zap.String("user_id", o.UserID),
		zap.String("total", o.Total.String()),
		zap.Int("failed_steps", len(res.Failures)),
	)
	return o, nil
}

// incrementSoldCounts bumps every product's counter. One failure does not
// stop the rest.
func (s *Service) incrementSoldCounts(ctx context.Context, lines []cart.Line) error {
	var (
		failed   int
		firstErr error
	)
	for _, l := range lines {
		if err := s.catalog.IncrementSoldCount(ctx, l.ProductID, l.Quantity); err != nil {
			zctx.From(ctx).Warn("Increment sold count",
				zap.String("product_id", l.ProductID),
				zap.Error(err),
			)
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d counters failed: %w", failed, len(lines), firstErr)
	}
	return nil
}

func (s *Service) price(o *Order, lines []cart.Line, couponDiscount decimal.Decimal) {
	sum := s.calc.Summarize(cart.PricingItems(lines), couponDiscount)
	o.Subtotal = sum.Subtotal
	o.ProductDiscount = sum.ProductDiscount
	o.CouponDiscount = sum.CouponDiscount
	o.DeliveryFee = sum.DeliveryFee
	o.Discount = sum.TotalDiscount
	o.Total = sum.Total
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Reconciles() {
		zctx.From(ctx).Warn("Order totals do not reconcile", zap.String("order_id", id))
	}
	return o, nil
}

// ListForUser returns a user's order history, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListAll returns every order for an admin, newest first.
func (s *Service) ListAll(ctx context.Context, op Operator) ([]Order, error) {
	if !op.IsAdmin {
		return nil, ErrForbidden
	}
	return s.orders.ListAll(ctx)
}

// maxStatusAttempts bounds how often UpdateStatus re-reads an order that
// another operator changed underneath it.
const maxStatusAttempts = 3

// UpdateStatus moves an order forward in its lifecycle. Moving to Shipped or
// Delivered stamps the matching date. Setting the current status again is a
// no-op.
func (s *Service) UpdateStatus(ctx context.Context, op Operator, orderID string, status Status) (*Order, error) {
	if !op.IsAdmin {
		return nil, ErrForbidden
	}
	for attempt := 1; ; attempt++ {
		o, err := s.fresh.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status == status {
			return o, nil
		}
		if err := CheckTransition(o.Status, status); err != nil {
			return nil, err
		}

		upd := s.statusUpdate(o, status)
		err = s.orders.UpdateStatus(ctx, upd)
		if errors.Is(err, ErrStatusChanged) && attempt < maxStatusAttempts {
			zctx.From(ctx).Debug("Order status changed, retrying",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "update status")
		}
		s.mirrorStatus(ctx, o.UserID, upd)
		zctx.From(ctx).Info("Order status updated",
			zap.String("order_id", orderID),
			zap.String("operator", op.ID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(status)),
		)

		o.Status = upd.Status
		o.UpdatedAt = &upd.UpdatedAt
		o.ShippedAt = upd.ShippedAt
		o.DeliveredAt = upd.DeliveredAt
		return o, nil
	}
}

func (s *Service) statusUpdate(o *Order, status Status) StatusUpdate {
	now := s.now().UTC()
	upd := StatusUpdate{
		OrderID:     o.ID,
		From:        o.Status,
		Status:      status,
		UpdatedAt:   now,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
	}
	switch status {
	case StatusShipped:
		upd.ShippedAt = &now
	case StatusDelivered:
		upd.DeliveredAt = &now
	}
	return upd
}

func (s *Service) mirrorStatus(ctx context.Context, userID string, upd StatusUpdate) {
	if userID == auth.GuestUserID {
		return
	}
	if err := s.orders.UpdateUserCopyStatus(ctx, userID, upd); err != nil {
		zctx.From(ctx).Warn("Mirror status to user history",
			zap.String("order_id", upd.OrderID),
			zap.Error(err),
		)
	}
}

// Watch delivers the order, then its new state after every change, until
// ctx ends.
func (s *Service) Watch(ctx context.Context, orderID string) (<-chan *Order, error) {
	changes, err := s.watcher.Subscribe(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to order")
	}
	first, err := s.fresh.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	out := make(chan *Order, 1)
	out <- first
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
			o, err := s.fresh.Get(ctx, orderID)
			if err != nil {
				zctx.From(ctx).Warn("Reload order after change", zap.String("order_id", orderID), zap.Error(err))
				continue
			}
			select {
			case out <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
