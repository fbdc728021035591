package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cahyo88/go-tenant-payments/internal/event"
	kafkax "github.com/cahyo88/go-tenant-payments/internal/kafka"
)

type store interface {
	Transition(ctx context.Context, tenantID, orderID string, in TransitionInput) (Order, Status, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service wraps the repo transition with the post-commit status event.
// Publishing is fire-and-forget: a dispatch problem never fails the
// transition that already committed.
type Service struct {
	Store       store
	Events      Publisher
	ServiceName string
}

func (s *Service) Transition(ctx context.Context, tenantID, orderID string, in TransitionInput, traceID string) (Order, error) {
	o, previous, err := s.Store.Transition(ctx, tenantID, orderID, in)
	if err != nil {
		return Order{}, err
	}

	notify := (in.NewStatus == StatusOrdered && o.NotifyOnPlaced) ||
		(in.NewStatus == StatusArrived && o.NotifyOnArrival)

	ev := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(event.OrderStatusChangedPayload{
			TenantID:       tenantID,
			OrderID:        orderID,
			OrderNumber:    o.OrderNumber,
			PreviousStatus: string(previous),
			NewStatus:      string(in.NewStatus),
			CustomerEmail:  o.CustomerEmail,
			NotifyCustomer: notify,
		}),
	}
	s.Events.Publish(event.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(event.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return o, nil
}
