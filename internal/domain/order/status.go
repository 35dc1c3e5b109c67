package order

import (
	"fmt"
	"strings"
)

// Status is a point in the order lifecycle.
type Status string

// Lifecycle states, in order.
const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
)

var lifecycle = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered}

// Statuses returns the lifecycle in order.
func Statuses() []Status {
	out := make([]Status, len(lifecycle))
	copy(out, lifecycle)
	return out
}

// ParseStatus matches s against the lifecycle case-insensitively.
func ParseStatus(s string) (Status, error) {
	for _, st := range lifecycle {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

func (s Status) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// TransitionError is returned for a move that is not forward in the lifecycle.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// CheckTransition allows any forward move, including skipping states.
// Delivered is terminal.
func CheckTransition(from, to Status) error {
	if from.rank() < 0 || to.rank() < 0 || to.rank() <= from.rank() {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
