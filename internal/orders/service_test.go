package orders

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cahyo88/go-tenant-payments/internal/event"
)

type fakeStore struct {
	order Order
}

func (f *fakeStore) Transition(_ context.Context, _, _ string, in TransitionInput) (Order, Status, error) {
	prev := f.order.Status
	f.order.Status = in.NewStatus
	return f.order, prev, nil
}

type capturePublisher struct {
	envelopes []event.Envelope
}

func (c *capturePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	var env event.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	c.envelopes = append(c.envelopes, env)
}

func TestTransitionPublishesStatusEvent(t *testing.T) {
	st := &fakeStore{order: Order{
		ID: "o1", TenantID: "t1", OrderNumber: "WO-100",
		Status: StatusNotOrdered, CustomerEmail: "c@example.com",
		NotifyOnPlaced: true,
	}}
	pub := &capturePublisher{}
	svc := &Service{Store: st, Events: pub, ServiceName: "test"}

	if _, err := svc.Transition(context.Background(), "t1", "o1",
		TransitionInput{NewStatus: StatusOrdered, ActorID: "u1"}, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if len(pub.envelopes) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.envelopes))
	}
	p, err := decode[event.OrderStatusChangedPayload](pub.envelopes[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviousStatus != "not_ordered" || p.NewStatus != "ordered" {
		t.Fatalf("unexpected statuses: %+v", p)
	}
	if !p.NotifyCustomer {
		t.Fatal("notify_on_placed is set, event should request notification")
	}
}

func TestTransitionNotifyGating(t *testing.T) {
	cases := []struct {
		name     string
		to       Status
		placed   bool
		arrival  bool
		expected bool
	}{
		{"ordered with flag", StatusOrdered, true, false, true},
		{"ordered without flag", StatusOrdered, false, true, false},
		{"arrived with flag", StatusArrived, false, true, true},
		{"arrived without flag", StatusArrived, true, false, false},
		{"completed never notifies", StatusCompleted, true, true, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := &fakeStore{order: Order{
				ID: "o1", TenantID: "t1", Status: StatusNotOrdered,
				NotifyOnPlaced: c.placed, NotifyOnArrival: c.arrival,
			}}
			pub := &capturePublisher{}
			svc := &Service{Store: st, Events: pub, ServiceName: "test"}
			if _, err := svc.Transition(context.Background(), "t1", "o1",
				TransitionInput{NewStatus: c.to}, ""); err != nil {
				t.Fatalf("Transition: %v", err)
			}
			p, err := decode[event.OrderStatusChangedPayload](pub.envelopes[0].Payload)
			if err != nil {
				t.Fatal(err)
			}
			if p.NotifyCustomer != c.expected {
				t.Fatalf("NotifyCustomer = %v, want %v", p.NotifyCustomer, c.expected)
			}
		})
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var t T
	err := json.Unmarshal(raw, &t)
	return t, err
}
