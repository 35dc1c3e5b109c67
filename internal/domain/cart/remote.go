package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RemoteStore is a signed-in user's cart in the document store. Mutations
// go straight to the repository; failures are returned to the caller
// without any local state to reconcile.
type RemoteStore struct {
	repo     Repository
	notifier Notifier
	userID   string
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore returns the cart of userID.
func NewRemoteStore(repo Repository, notifier Notifier, userID string) *RemoteStore {
	return &RemoteStore{repo: repo, notifier: notifier, userID: userID}
}

// UserID returns the owner of the cart.
func (s *RemoteStore) UserID() string {
	return s.userID
}

func (s *RemoteStore) Lines(ctx context.Context) ([]Line, error) {
	lines, err := s.repo.ListLines(ctx, s.userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return lines, nil
}

func (s *RemoteStore) Add(ctx context.Context, line Line) error {
	if line.ProductID == "" {
		return ErrInvalidLine
	}
	line.Quantity = 1
	if err := s.repo.AddLine(ctx, s.userID, line); err != nil {
		return errors.Wrap(err, "add cart line")
	}
	return nil
}

func (s *RemoteStore) SetQuantity(ctx context.Context, productID string, n int) error {
	if n < 1 {
		return s.Remove(ctx, productID)
	}
	if err := s.repo.UpdateQuantity(ctx, s.userID, productID, n); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return ErrLineNotFound
		}
		return errors.Wrap(err, "update cart line")
	}
	return nil
}

func (s *RemoteStore) Remove(ctx context.Context, productID string) error {
	if err := s.repo.DeleteLine(ctx, s.userID, productID); err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	return nil
}

func (s *RemoteStore) Clear(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx, s.userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Watch subscribes to change notifications for the user's cart and re-reads
// the lines on each one.
func (s *RemoteStore) Watch(ctx context.Context) (<-chan []Line, error) {
	changes, err := s.notifier.Subscribe(ctx, s.userID)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to cart")
	}
	first, err := s.Lines(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []Line, 1)
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
			lines, err := s.Lines(ctx)
			if err != nil {
				zctx.From(ctx).Warn("Reload cart after change", zap.Error(err))
				continue
			}
			select {
			case out <- lines:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
