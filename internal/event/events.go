package event

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentConfirmed   = "PaymentConfirmed"
	EventPaymentFailed      = "PaymentFailed"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // payment_request_id or order_id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentConfirmedPayload struct {
	TenantID         string `json:"tenant_id"`
	PaymentRequestID string `json:"payment_request_id"`
	OrderID          string `json:"order_id,omitempty"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	CustomerEmail    string `json:"customer_email,omitempty"`
	ProviderRef      string `json:"provider_ref,omitempty"`
	ReceiptURL       string `json:"receipt_url,omitempty"`
}

type PaymentFailedPayload struct {
	TenantID         string `json:"tenant_id"`
	PaymentRequestID string `json:"payment_request_id"`
	OrderID          string `json:"order_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	CustomerEmail    string `json:"customer_email,omitempty"`
}

type OrderStatusChangedPayload struct {
	TenantID       string `json:"tenant_id"`
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	NotifyCustomer bool   `json:"notify_customer"`
}
