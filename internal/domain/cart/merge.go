package cart

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/zaya-storefront/internal/kv"
)

// IdentityKey is the device storage key recording which user last signed in
// on the device.
const IdentityKey = "identity"

// mergeConcurrency bounds parallel line writes during a merge.
const mergeConcurrency = 8

// ErrMergeFailed is returned when no guest line could be written to the
// user cart. The guest cart is left in place.
var ErrMergeFailed = errors.New("guest cart merge failed")

// MergeResult reports what a merge did.
type MergeResult struct {
	Copied  int
	Skipped int
	Failed  int
}

// Merger moves a guest cart into a user cart on sign-in.
type Merger struct {
	provider *Provider
}

// NewMerger creates a Merger.
func NewMerger(provider *Provider) *Merger {
	return &Merger{provider: provider}
}

// Merge copies every guest line whose product is not already in the user
// cart, then deletes the guest cart. Lines already in the user cart are left
// untouched; quantities are not combined.
//
// The user cart's product set is read once up front and line writes are
// independent, so a concurrent edit of the user cart may race the merge.
// A failed line write is logged and does not stop the others. The guest cart
// is kept only when every write failed.
func (m *Merger) Merge(ctx context.Context, device kv.Store, userID string) (MergeResult, error) {
	var res MergeResult
	lg := zctx.From(ctx).With(zap.String("user_id", userID))

	guest := m.provider.Guest(device)
	lines, err := guest.Lines(ctx)
	if err != nil {
		return res, err
	}
	if len(lines) == 0 {
		return res, nil
	}

	existing, err := m.provider.repo.ListLines(ctx, userID)
	if err != nil {
		return res, errors.Wrap(err, "list user cart")
	}
	present := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		present[l.ProductID] = struct{}{}
	}

	var copied, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mergeConcurrency)
	for _, line := range lines {
		if _, ok := present[line.ProductID]; ok {
			res.Skipped++
			continue
		}
		g.Go(func() error {
			if err := m.provider.repo.PutLine(gctx, userID, line); err != nil {
				failed.Add(1)
				lg.Warn("Copy guest cart line",
					zap.String("product_id", line.ProductID),
					zap.Error(err),
				)
				return nil
			}
			copied.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Copied = int(copied.Load())
	res.Failed = int(failed.Load())

	if res.Failed > 0 && res.Copied == 0 {
		return res, ErrMergeFailed
	}
	if err := guest.Clear(ctx); err != nil {
		return res, errors.Wrap(err, "delete guest cart")
	}

	lg.Info("Merged guest cart",
		zap.Int("copied", res.Copied),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// OnIdentity runs the merge once per sign-in transition on a device. A
// guest request (empty userID) clears the recorded identity so that the
// next sign-in merges again. A failed merge leaves the marker unset and is
// retried on the next request.
func (m *Merger) OnIdentity(ctx context.Context, device kv.Store, userID string) error {
	last, ok, err := device.Get(ctx, IdentityKey)
	if err != nil {
		return errors.Wrap(err, "read identity marker")
	}

	if userID == "" {
		if ok {
			return device.Remove(ctx, IdentityKey)
		}
		return nil
	}
	if ok && last == userID {
		return nil
	}

	if _, err := m.Merge(ctx, device, userID); err != nil {
		return err
	}
	if err := device.Set(ctx, IdentityKey, userID); err != nil {
		return errors.Wrap(err, "write identity marker")
	}
	return nil
}
