package billing

import "time"

type RequestStatus string

const (
	StatusPending RequestStatus = "pending"
	StatusPaid    RequestStatus = "paid"
	StatusFailed  RequestStatus = "failed"
	StatusExpired RequestStatus = "expired"
)

// Terminal reports whether a request has left pending. Terminal states
// are absorbing: transitions out of them are no-ops, never errors.
func (s RequestStatus) Terminal() bool { return s != StatusPending }

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodProvider     PaymentMethod = "provider"
	MethodOther        PaymentMethod = "other"
)

func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodProvider, MethodOther:
		return true
	}
	return false
}

// PaymentRequest is one requested charge. CheckoutReference is unique
// within a tenant only; it is the correlation key recoverable from the
// customer-facing link when provider metadata is missing.
type PaymentRequest struct {
	ID                string
	TenantID          string
	CheckoutReference string
	AmountCents       int64
	Currency          string
	Description       string
	CustomerEmail     string
	OrderID           string // empty when not linked to an order/job
	ProviderSessionID string
	Status            RequestStatus
	PaymentLink       string
	FailureReason     string
	CreatedAt         time.Time
	ExpiresAt         *time.Time
}

// Payment is a confirmed charge, written exactly once per reconciled
// request. Manual (cash/other) payments carry no request id.
type Payment struct {
	ID                string
	TenantID          string
	PaymentRequestID  string
	OrderID           string
	AmountCents       int64
	Method            PaymentMethod
	ProviderReference string
	ReceiptURL        string
	PaidAt            time.Time
	Notes             string
}
