package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cahyo88/go-tenant-payments/internal/event"
	kafkax "github.com/cahyo88/go-tenant-payments/internal/kafka"
)

type memDedup struct{ seen map[string]bool }

func (d *memDedup) Seen(_ context.Context, id string) (bool, error) { return d.seen[id], nil }
func (d *memDedup) Mark(_ context.Context, id string) error {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[id] = true
	return nil
}

type recordingSender struct {
	sent []Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

func confirmedMessage(eventID, email string) kafkago.Message {
	env := event.Envelope{
		EventID:      eventID,
		EventType:    event.EventPaymentConfirmed,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload: kafkax.MustMarshal(event.PaymentConfirmedPayload{
			TenantID: "t1", PaymentRequestID: "r1", AmountCents: 4999,
			Currency: "GBP", CustomerEmail: email, ReceiptURL: "https://r/1",
		}),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestRedeliveredEventDispatchesOnce(t *testing.T) {
	sender := &recordingSender{}
	svc := &Service{Dedup: &memDedup{}, Sender: sender}

	m := confirmedMessage("evt_1", "jo@example.com")
	for i := 0; i < 4; i++ {
		if err := svc.HandleEvent(context.Background(), m); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("dispatched %d times, want exactly 1", len(sender.sent))
	}
	n := sender.sent[0]
	if n.Kind != "receipt" || n.Recipient != "jo@example.com" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestSendFailureStillCommits(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	svc := &Service{Dedup: &memDedup{}, Sender: sender}

	if err := svc.HandleEvent(context.Background(), confirmedMessage("evt_2", "jo@example.com")); err != nil {
		t.Fatalf("send failure must not fail the handler: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one attempt, got %d", len(sender.sent))
	}
}

func TestMissingRecipientSkipsQuietly(t *testing.T) {
	sender := &recordingSender{}
	svc := &Service{Dedup: &memDedup{}, Sender: sender}

	if err := svc.HandleEvent(context.Background(), confirmedMessage("evt_3", "")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no recipient, nothing should dispatch: %+v", sender.sent)
	}
}

func TestOrderStatusRespectsNotifyFlag(t *testing.T) {
	sender := &recordingSender{}
	svc := &Service{Dedup: &memDedup{}, Sender: sender}

	for i, notify := range []bool{false, true} {
		env := event.Envelope{
			EventID:      "evt_o" + string(rune('0'+i)),
			EventType:    event.EventOrderStatusChanged,
			EventVersion: 1,
			Payload: kafkax.MustMarshal(event.OrderStatusChangedPayload{
				TenantID: "t1", OrderID: "o1", OrderNumber: "WO-9",
				PreviousStatus: "ordered", NewStatus: "arrived",
				CustomerEmail: "jo@example.com", NotifyCustomer: notify,
			}),
		}
		if err := svc.HandleEvent(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)}); err != nil {
			t.Fatal(err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("dispatched %d, want 1 (only the flagged event)", len(sender.sent))
	}
	if sender.sent[0].Kind != "order_status" {
		t.Fatalf("unexpected notification %+v", sender.sent[0])
	}
}
