// Package order implements checkout and the order lifecycle.
package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when checking out a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrForbidden is returned when a non-admin attempts an admin operation.
	ErrForbidden = errors.New("operator is not an admin")
	// ErrStatusChanged is returned by Repository.UpdateStatus when the order
	// is no longer in StatusUpdate.From.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// ValidationError reports bad caller input. Nothing is mutated when it is
// returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports that the canonical order record could not be
// written. Checkout is aborted and the cart is left untouched.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist order: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
