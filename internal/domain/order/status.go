package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/storefront/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderClosed       = errors.New("order is cancelled or refunded")
)

// validTransitions defines allowed state transitions
var validTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:    {model.OrderProcessing, model.OrderCancelled, model.OrderRefunded},
	model.OrderProcessing: {model.OrderShipped, model.OrderCancelled, model.OrderRefunded},
	model.OrderShipped:    {model.OrderDelivered, model.OrderCancelled, model.OrderRefunded},
	model.OrderDelivered:  {model.OrderCancelled, model.OrderRefunded},
	model.OrderCancelled:  {}, // terminal state
	model.OrderRefunded:   {}, // terminal state
}

// ParseStatus matches raw against the known statuses, ignoring case
func ParseStatus(raw string) (model.OrderStatus, bool) {
	candidate := model.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := validTransitions[candidate]
	return candidate, ok
}

// CanTransition checks if an order in from may move to target
func CanTransition(from, target model.OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status
func IsTerminal(status model.OrderStatus) bool {
	allowed, ok := validTransitions[status]
	return ok && len(allowed) == 0
}

// transitionError returns an appropriate error for an invalid transition
func transitionError(from, target model.OrderStatus) error {
	if IsTerminal(from) {
		return ErrOrderClosed
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, target)
}
