// Package messaging is the message channel between the event log and its
// consumers. Delivery is at-least-once with no ordering guarantee; ordering
// and idempotency are supplied downstream by order control.
package messaging

import (
	"context"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
)

// Delivery is one received event plus the broker token needed to acknowledge it.
type Delivery struct {
	Event esdomain.Event
	ID    string
}

// Channel is the transport contract. A delivery that is never acknowledged is
// redelivered on a later Receive.
type Channel interface {
	Publish(ctx context.Context, evt esdomain.Event) error
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}
