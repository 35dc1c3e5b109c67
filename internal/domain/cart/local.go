package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/kv"
)

// GuestCartKey is the device storage key holding the guest cart.
const GuestCartKey = "guestCart"

// DefaultPollInterval is how often a guest cart watcher re-reads storage.
const DefaultPollInterval = 300 * time.Millisecond

// LocalStore keeps a guest cart as a JSON line list in device storage. Every
// mutation writes the full list back before returning.
type LocalStore struct {
	store    kv.Store
	interval time.Duration
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore returns a LocalStore over device storage.
func NewLocalStore(store kv.Store, interval time.Duration) *LocalStore {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &LocalStore{store: store, interval: interval}
}

// Lines returns the stored lines. Unparseable storage reads as empty.
func (s *LocalStore) Lines(ctx context.Context) ([]Line, error) {
	raw, ok, err := s.store.Get(ctx, GuestCartKey)
	if err != nil {
		return nil, errors.Wrap(err, "read guest cart")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		zctx.From(ctx).Warn("Discarding unreadable guest cart", zap.Error(err))
		return nil, nil
	}
	return lines, nil
}

func (s *LocalStore) save(ctx context.Context, lines []Line) error {
	if len(lines) == 0 {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return errors.Wrap(err, "encode guest cart")
	}
	if err := s.store.Set(ctx, GuestCartKey, string(data)); err != nil {
		return errors.Wrap(err, "write guest cart")
	}
	return nil
}

func (s *LocalStore) Add(ctx context.Context, line Line) error {
	if line.ProductID == "" {
		return ErrInvalidLine
	}
	lines, err := s.Lines(ctx)
	if err != nil {
		return err
	}
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity++
			lines[i].Image = line.Image
			lines[i].Size = line.Size
			return s.save(ctx, lines)
		}
	}
	line.Quantity = 1
	return s.save(ctx, append(lines, line))
}

func (s *LocalStore) SetQuantity(ctx context.Context, productID string, n int) error {
	if n < 1 {
		return s.Remove(ctx, productID)
	}
	lines, err := s.Lines(ctx)
	if err != nil {
		return err
	}
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = n
			return s.save(ctx, lines)
		}
	}
	return ErrLineNotFound
}

func (s *LocalStore) Remove(ctx context.Context, productID string) error {
	lines, err := s.Lines(ctx)
	if err != nil {
		return err
	}
	kept := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lines) {
		return nil
	}
	return s.save(ctx, kept)
}

func (s *LocalStore) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, GuestCartKey); err != nil {
		return errors.Wrap(err, "clear guest cart")
	}
	return nil
}

// Watch polls device storage at the store's interval and emits whenever the
// stored cart changes. There is no push channel for device storage, so
// changes made by other tabs are picked up on the next tick.
func (s *LocalStore) Watch(ctx context.Context) (<-chan []Line, error) {
	first, err := s.Lines(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []Line, 1)
	out <- first
	last := fingerprint(first)

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			lines, err := s.Lines(ctx)
			if err != nil {
				zctx.From(ctx).Warn("Poll guest cart", zap.Error(err))
				continue
			}
			fp := fingerprint(lines)
			if fp == last {
				continue
			}
			last = fp
			select {
			case out <- lines:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func fingerprint(lines []Line) string {
	data, _ := json.Marshal(lines)
	return string(data)
}
