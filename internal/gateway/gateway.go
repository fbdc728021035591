// Package gateway is the adapter boundary toward the external payment
// provider. Only the observable contract lives here; provider internals
// (settlement, payouts) are out of scope.
package gateway

import (
	"context"
	"errors"
)

type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionFailed  SessionStatus = "failed"
	SessionExpired SessionStatus = "expired"
)

var (
	// ErrUnavailable marks provider outages; checkout surfaces these as
	// "pay another way", reconciliation retries on the next sweep.
	ErrUnavailable     = errors.New("payment provider unavailable")
	ErrSessionNotFound = errors.New("checkout session not found")
)

type Session struct {
	ID          string
	Status      SessionStatus
	AmountCents int64
	Currency    string
	PaymentRef  string
	ReceiptURL  string
	PaymentLink string
	ClientToken string
}

type CreateSessionInput struct {
	AccountID     string // tenant's connected sub-account
	Reference     string
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
	FeeCents      int64 // platform fee split, already computed in minor units
	Metadata      map[string]string
}

type AccountStatus struct {
	ChargesEnabled bool
	PayoutsEnabled bool
	DisabledReason string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	AccountStatus(ctx context.Context, accountID string) (AccountStatus, error)
}
