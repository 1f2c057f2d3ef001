package sending

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/dormant-leads/internal/domain"
)

// ErrNoDeliverer is returned when no deliverer is registered for a channel.
var ErrNoDeliverer = errors.New("no deliverer for channel")

// Deliverer sends one message. A provider-side rejection is reported through
// DeliveryResult with Delivered=false; the error return is reserved for
// failures to reach the provider at all. Implementations must be safe for
// concurrent use.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message) (*domain.DeliveryResult, error)
}

// Router picks the deliverer for a message's channel.
type Router map[domain.Channel]Deliverer

// Deliver implements Deliverer.
func (r Router) Deliver(ctx context.Context, msg *domain.Message) (*domain.DeliveryResult, error) {
	d, ok := r[msg.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDeliverer, msg.Channel)
	}
	return d.Deliver(ctx, msg)
}
