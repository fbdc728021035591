// Package correlate resolves inbound confirmation events to the owning
// tenant and PaymentRequest. Resolution is layered: explicit metadata
// first, then tenant-scoped session lookup, then the checkout
// reference, then the session index. "Not found" is a nil match, never
// an error; the reconciliation engine treats it as a no-op.
package correlate

import (
	"context"
	"errors"

	"github.com/cahyo88/go-tenant-payments/internal/billing"
)

type Query struct {
	TenantID  string // from event metadata, may be empty
	RequestID string // from event metadata, may be empty
	SessionID string // provider session/intent id
	Reference string // bare checkout reference, e.g. from a payment link
}

type Match struct {
	TenantID  string
	RequestID string
}

type Store interface {
	Get(ctx context.Context, tenantID, id string) (billing.PaymentRequest, error)
	FindBySession(ctx context.Context, tenantID, sessionID string) (billing.PaymentRequest, error)
	FindByReferenceInTenant(ctx context.Context, tenantID, reference string) (billing.PaymentRequest, error)
	FindByReference(ctx context.Context, reference string) (billing.PaymentRequest, error)
	FindBySessionAnyTenant(ctx context.Context, sessionID string) (billing.PaymentRequest, error)
}

// SessionIndex is the O(1) provider-session -> request mapping kept in
// redis. It exists so events missing metadata never force a cross-tenant
// database lookup on the hot path.
type SessionIndex interface {
	Put(ctx context.Context, sessionID, tenantID, requestID string) error
	Lookup(ctx context.Context, sessionID string) (tenantID, requestID string, ok bool, err error)
}

type Resolver struct {
	Store Store
	Index SessionIndex // optional
}

// Resolve walks the resolution steps in order, stopping at the first
// hit. Every lookup miss falls through; only infrastructure errors
// propagate.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Match, error) {
	// 1. explicit tenant + request ids
	if q.TenantID != "" && q.RequestID != "" {
		pr, err := r.Store.Get(ctx, q.TenantID, q.RequestID)
		if err == nil {
			return &Match{TenantID: pr.TenantID, RequestID: pr.ID}, nil
		}
		if !errors.Is(err, billing.ErrNotFound) {
			return nil, err
		}
	}

	// 2. explicit tenant + provider session id
	if q.TenantID != "" && q.SessionID != "" {
		pr, err := r.Store.FindBySession(ctx, q.TenantID, q.SessionID)
		if err == nil {
			return &Match{TenantID: pr.TenantID, RequestID: pr.ID}, nil
		}
		if !errors.Is(err, billing.ErrNotFound) {
			return nil, err
		}
	}

	// 3. checkout reference, tolerating client-side formatting drift.
	// Scoped to the tenant when one is known: literal references are
	// only unique per tenant.
	for _, cand := range billing.NormalizeReference(q.Reference) {
		var pr billing.PaymentRequest
		var err error
		if q.TenantID != "" {
			pr, err = r.Store.FindByReferenceInTenant(ctx, q.TenantID, cand)
		} else {
			pr, err = r.Store.FindByReference(ctx, cand)
		}
		if err == nil {
			return &Match{TenantID: pr.TenantID, RequestID: pr.ID}, nil
		}
		if !errors.Is(err, billing.ErrNotFound) {
			return nil, err
		}
	}

	if q.SessionID == "" {
		return nil, nil
	}

	// 4a. session index (written when the session was attached)
	if r.Index != nil {
		tenantID, requestID, ok, err := r.Index.Lookup(ctx, q.SessionID)
		if err == nil && ok {
			pr, err := r.Store.Get(ctx, tenantID, requestID)
			if err == nil {
				return &Match{TenantID: pr.TenantID, RequestID: pr.ID}, nil
			}
			if !errors.Is(err, billing.ErrNotFound) {
				return nil, err
			}
		}
		// index errors are not fatal; fall through to the database
	}

	// 4b. last resort for records that predate the index: indexed
	// cross-tenant lookup by session id
	pr, err := r.Store.FindBySessionAnyTenant(ctx, q.SessionID)
	if err == nil {
		return &Match{TenantID: pr.TenantID, RequestID: pr.ID}, nil
	}
	if !errors.Is(err, billing.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}
