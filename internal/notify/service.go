// Package notify turns reconciled payment and order events into
// customer/staff notifications. Delivery is best-effort by contract:
// nothing here can unwind a committed ledger transition, and a send
// failure only ever costs the notification itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cahyo88/go-tenant-payments/internal/event"
	kafkax "github.com/cahyo88/go-tenant-payments/internal/kafka"
	"github.com/cahyo88/go-tenant-payments/internal/money"
)

type Notification struct {
	TenantID  string
	Kind      string // receipt | payment_failed | order_status
	Recipient string
	Subject   string
	Body      string
	EntityID  string
}

// Sender is the outbound delivery boundary (email/SMS mechanics live
// outside this system).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dedup guards against redelivered events: at most one dispatch attempt
// per event id.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Dedup  Dedup
	Sender Sender
}

// HandleEvent is the consumer handler for all payment/order topics.
// It returns nil on send failure as well: the offset must commit, the
// failure is logged with enough context for a manual resend.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		return err
	}

	n, ok, err := s.build(env)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.Sender.Send(ctx, n); err != nil {
		log.Printf("notify: send failed tenant=%s kind=%s entity=%s: %v",
			n.TenantID, n.Kind, n.EntityID, err)
	}
	return nil
}

func (s *Service) build(env event.Envelope) (Notification, bool, error) {
	switch env.EventType {
	case event.EventPaymentConfirmed:
		p, err := kafkax.UnwrapPayload[event.PaymentConfirmedPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		if p.CustomerEmail == "" {
			log.Printf("notify: payment %s confirmed but no customer email on record", p.PaymentRequestID)
			return Notification{}, false, nil
		}
		body := fmt.Sprintf("Payment of %.2f %s received.", money.ToDecimal(p.AmountCents), p.Currency)
		if p.ReceiptURL != "" {
			body += " Receipt: " + p.ReceiptURL
		}
		return Notification{
			TenantID:  p.TenantID,
			Kind:      "receipt",
			Recipient: p.CustomerEmail,
			Subject:   "Payment received",
			Body:      body,
			EntityID:  p.PaymentRequestID,
		}, true, nil

	case event.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[event.PaymentFailedPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		if p.CustomerEmail == "" {
			return Notification{}, false, nil
		}
		return Notification{
			TenantID:  p.TenantID,
			Kind:      "payment_failed",
			Recipient: p.CustomerEmail,
			Subject:   "Payment unsuccessful",
			Body:      "Your payment could not be completed. Please try again or pay another way.",
			EntityID:  p.PaymentRequestID,
		}, true, nil

	case event.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[event.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		if !p.NotifyCustomer || p.CustomerEmail == "" {
			return Notification{}, false, nil
		}
		return Notification{
			TenantID:  p.TenantID,
			Kind:      "order_status",
			Recipient: p.CustomerEmail,
			Subject:   fmt.Sprintf("Order %s update", p.OrderNumber),
			Body:      fmt.Sprintf("Your order %s is now %s.", p.OrderNumber, p.NewStatus),
			EntityID:  p.OrderID,
		}, true, nil

	default:
		return Notification{}, false, nil
	}
}

// LogSender is the in-process stand-in for the external delivery
// service: it only records the trigger.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	log.Printf("notify: dispatch kind=%s tenant=%s to=%s subject=%q", n.Kind, n.TenantID, n.Recipient, n.Subject)
	return nil
}
