// Package recon drives payment confirmation to a single outcome from
// two convergent routes: pushed provider events and polled session
// status. Every transition is idempotent, so arrival order and
// repetition do not matter.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/singleflight"

	"github.com/cahyo88/go-tenant-payments/internal/billing"
	"github.com/cahyo88/go-tenant-payments/internal/correlate"
	"github.com/cahyo88/go-tenant-payments/internal/event"
	"github.com/cahyo88/go-tenant-payments/internal/gateway"
	kafkax "github.com/cahyo88/go-tenant-payments/internal/kafka"
)

// Provider event types accepted on the push path.
const (
	EventChargeCompleted  = "charge.completed"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// ProviderEvent is a confirmation event as delivered by the gateway
// webhook, already decoded from the provider payload.
type ProviderEvent struct {
	ID          string
	Type        string
	TenantID    string // from embedded metadata, may be empty on old events
	RequestID   string
	SessionID   string
	Reference   string
	AmountCents int64
	Currency    string
	PaymentRef  string
	ReceiptURL  string
	Reason      string
	TraceID     string
}

type Ledger interface {
	Get(ctx context.Context, tenantID, id string) (billing.PaymentRequest, error)
	MarkPaid(ctx context.Context, tenantID, id string, in billing.PaidInput) (billing.PaymentRequest, bool, error)
	MarkFailed(ctx context.Context, tenantID, id, reason string) (billing.PaymentRequest, bool, error)
	MarkExpired(ctx context.Context, tenantID, id string) (billing.PaymentRequest, bool, error)
	ListPendingWithSession(ctx context.Context, tenantID string) ([]billing.PaymentRequest, error)
	ListPendingForOrder(ctx context.Context, tenantID, orderID string) ([]billing.PaymentRequest, error)
	ListSweepTenants(ctx context.Context) ([]string, error)
}

type Resolver interface {
	Resolve(ctx context.Context, q correlate.Query) (*correlate.Match, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Engine struct {
	Ledger          Ledger
	Resolver        Resolver
	Gateway         gateway.Gateway
	Confirmed       Publisher
	Failed          Publisher
	ServiceName     string
	VerifyPush      bool          // re-check pushed events against the gateway before committing
	ProviderTimeout time.Duration // per-request budget for gateway calls during sweeps

	sweeps singleflight.Group
}

// SweepResult reports what one pull pass did.
type SweepResult struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	Errors    int `json:"errors"`
}

// HandleProviderEvent is the push path. An unresolvable or duplicate
// event returns nil: the webhook must be acknowledged either way, and
// the next sweep covers anything a transient error here leaves behind.
func (e *Engine) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	m, err := e.Resolver.Resolve(ctx, correlate.Query{
		TenantID:  ev.TenantID,
		RequestID: ev.RequestID,
		SessionID: ev.SessionID,
		Reference: ev.Reference,
	})
	if err != nil {
		return fmt.Errorf("correlate event %s: %w", ev.ID, err)
	}
	if m == nil {
		log.Printf("recon: event %s type=%s unresolved, ignoring", ev.ID, ev.Type)
		return nil
	}

	switch ev.Type {
	case EventPaymentFailed:
		_, err := e.fail(ctx, m.TenantID, m.RequestID, ev.Reason, ev.TraceID)
		return err
	case EventChargeCompleted, EventPaymentSucceeded:
		in := billing.PaidInput{
			ProviderReference: ev.PaymentRef,
			ReceiptURL:        ev.ReceiptURL,
			AmountCents:       ev.AmountCents,
		}
		if e.VerifyPush && e.Gateway != nil && ev.SessionID != "" {
			sess, err := e.getSession(ctx, ev.SessionID)
			if err != nil {
				return fmt.Errorf("verify event %s: %w", ev.ID, err)
			}
			if sess.Status != gateway.SessionPaid {
				log.Printf("recon: event %s claims paid but provider reports %s, ignoring", ev.ID, sess.Status)
				return nil
			}
			// the provider's own figures win over the pushed payload
			in.AmountCents = sess.AmountCents
			if sess.PaymentRef != "" {
				in.ProviderReference = sess.PaymentRef
			}
			if sess.ReceiptURL != "" {
				in.ReceiptURL = sess.ReceiptURL
			}
		}
		_, err := e.confirm(ctx, m.TenantID, m.RequestID, in, ev.TraceID)
		return err
	default:
		log.Printf("recon: event %s has unknown type %s, ignoring", ev.ID, ev.Type)
		return nil
	}
}

// SweepTenant is the pull path over one tenant's pending requests.
// Single-flight per tenant: a sweep joining an in-flight one gets that
// sweep's result instead of starting a second pass.
func (e *Engine) SweepTenant(ctx context.Context, tenantID string) (SweepResult, error) {
	v, err, _ := e.sweeps.Do("sweep:"+tenantID, func() (any, error) {
		reqs, err := e.Ledger.ListPendingWithSession(ctx, tenantID)
		if err != nil {
			return SweepResult{}, err
		}
		return e.sweep(ctx, reqs), nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return v.(SweepResult), nil
}

// SweepAll runs SweepTenant for every tenant that has something pending.
func (e *Engine) SweepAll(ctx context.Context) (SweepResult, error) {
	tenants, err := e.Ledger.ListSweepTenants(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	var total SweepResult
	for _, tid := range tenants {
		res, err := e.SweepTenant(ctx, tid)
		if err != nil {
			total.Errors++
			log.Printf("recon: sweep tenant %s: %v", tid, err)
			continue
		}
		total.Checked += res.Checked
		total.Updated += res.Updated
		total.Confirmed += res.Confirmed
		total.Failed += res.Failed
		total.Expired += res.Expired
		total.Errors += res.Errors
	}
	return total, nil
}

// RefreshOrder re-checks the pending requests linked to one order, for
// the user-triggered refresh endpoint. It shares the tenant's
// single-flight key: a refresh racing an in-flight sweep over the same
// tenant joins that sweep instead of double-polling the provider.
func (e *Engine) RefreshOrder(ctx context.Context, tenantID, orderID string) (SweepResult, error) {
	v, err, _ := e.sweeps.Do("sweep:"+tenantID, func() (any, error) {
		reqs, err := e.Ledger.ListPendingForOrder(ctx, tenantID, orderID)
		if err != nil {
			return SweepResult{}, err
		}
		return e.sweep(ctx, reqs), nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return v.(SweepResult), nil
}

func (e *Engine) sweep(ctx context.Context, reqs []billing.PaymentRequest) SweepResult {
	var res SweepResult
	for _, pr := range reqs {
		res.Checked++
		if err := e.refreshOne(ctx, pr, &res); err != nil {
			// one request failing never aborts the rest of the sweep
			res.Errors++
			log.Printf("recon: sweep request %s/%s: %v", pr.TenantID, pr.ID, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return res
}

func (e *Engine) refreshOne(ctx context.Context, pr billing.PaymentRequest, res *SweepResult) error {
	sess, err := e.getSession(ctx, pr.ProviderSessionID)
	if errors.Is(err, gateway.ErrSessionNotFound) {
		if expired(pr) {
			return e.expire(ctx, pr, res)
		}
		return nil
	}
	if err != nil {
		return err
	}

	switch sess.Status {
	case gateway.SessionPaid:
		applied, err := e.confirm(ctx, pr.TenantID, pr.ID, billing.PaidInput{
			ProviderReference: sess.PaymentRef,
			ReceiptURL:        sess.ReceiptURL,
			AmountCents:       sess.AmountCents,
		}, "")
		if err != nil {
			return err
		}
		if applied {
			res.Updated++
			res.Confirmed++
		}
	case gateway.SessionFailed:
		applied, err := e.fail(ctx, pr.TenantID, pr.ID, "provider reported failure", "")
		if err != nil {
			return err
		}
		if applied {
			res.Updated++
			res.Failed++
		}
	case gateway.SessionExpired:
		return e.expire(ctx, pr, res)
	default: // still open
		if expired(pr) {
			return e.expire(ctx, pr, res)
		}
	}
	return nil
}

// confirm applies the paid transition and, only when this call actually
// performed it, publishes the confirmation event. The publish happens
// after the ledger transaction committed and cannot undo it.
func (e *Engine) confirm(ctx context.Context, tenantID, requestID string, in billing.PaidInput, traceID string) (bool, error) {
	pr, applied, err := e.Ledger.MarkPaid(ctx, tenantID, requestID, in)
	if err != nil {
		return false, err
	}
	if !applied {
		switch pr.Status {
		case billing.StatusFailed, billing.StatusExpired:
			// never silently overridden; flagged for manual review
			log.Printf("recon: WARNING provider reports paid but request %s/%s is %s, leaving as-is",
				tenantID, requestID, pr.Status)
		default:
			log.Printf("recon: request %s/%s already paid, duplicate confirmation ignored", tenantID, requestID)
		}
		return false, nil
	}

	amount := in.AmountCents
	if amount == 0 {
		amount = pr.AmountCents
	}
	e.publish(e.Confirmed, event.EventPaymentConfirmed, requestID, traceID, event.PaymentConfirmedPayload{
		TenantID:         tenantID,
		PaymentRequestID: requestID,
		OrderID:          pr.OrderID,
		AmountCents:      amount,
		Currency:         pr.Currency,
		CustomerEmail:    pr.CustomerEmail,
		ProviderRef:      in.ProviderReference,
		ReceiptURL:       in.ReceiptURL,
	})
	return true, nil
}

func (e *Engine) fail(ctx context.Context, tenantID, requestID, reason, traceID string) (bool, error) {
	pr, applied, err := e.Ledger.MarkFailed(ctx, tenantID, requestID, reason)
	if err != nil {
		return false, err
	}
	if !applied {
		if pr.Status == billing.StatusPaid {
			// paid is absorbing; a late failure report never unwinds it
			log.Printf("recon: failure reported for already-paid request %s/%s, ignoring", tenantID, requestID)
		}
		return false, nil
	}
	e.publish(e.Failed, event.EventPaymentFailed, requestID, traceID, event.PaymentFailedPayload{
		TenantID:         tenantID,
		PaymentRequestID: requestID,
		OrderID:          pr.OrderID,
		Reason:           reason,
		CustomerEmail:    pr.CustomerEmail,
	})
	return true, nil
}

func (e *Engine) expire(ctx context.Context, pr billing.PaymentRequest, res *SweepResult) error {
	_, applied, err := e.Ledger.MarkExpired(ctx, pr.TenantID, pr.ID)
	if err != nil {
		return err
	}
	if applied {
		res.Updated++
		res.Expired++
	}
	return nil
}

func (e *Engine) publish(p Publisher, eventType, correlationID, traceID string, payload any) {
	if p == nil {
		return
	}
	ev := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.ServiceName,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(event.PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (e *Engine) getSession(ctx context.Context, sessionID string) (gateway.Session, error) {
	t := e.ProviderTimeout
	if t <= 0 {
		t = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, t)
	defer cancel()
	return e.Gateway.GetSession(sctx, sessionID)
}

func expired(pr billing.PaymentRequest) bool {
	return pr.ExpiresAt != nil && time.Now().After(*pr.ExpiresAt)
}
