package correlate

import (
	"context"
	"testing"

	"github.com/cahyo88/go-tenant-payments/internal/billing"
)

type fakeStore struct {
	requests []billing.PaymentRequest
}

func (f *fakeStore) Get(_ context.Context, tenantID, id string) (billing.PaymentRequest, error) {
	for _, pr := range f.requests {
		if pr.TenantID == tenantID && pr.ID == id {
			return pr, nil
		}
	}
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeStore) FindBySession(_ context.Context, tenantID, sessionID string) (billing.PaymentRequest, error) {
	for _, pr := range f.requests {
		if pr.TenantID == tenantID && pr.ProviderSessionID == sessionID {
			return pr, nil
		}
	}
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeStore) FindByReferenceInTenant(_ context.Context, tenantID, ref string) (billing.PaymentRequest, error) {
	for _, pr := range f.requests {
		if pr.TenantID == tenantID && pr.CheckoutReference == ref {
			return pr, nil
		}
	}
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeStore) FindByReference(_ context.Context, ref string) (billing.PaymentRequest, error) {
	for _, pr := range f.requests {
		if pr.CheckoutReference == ref {
			return pr, nil
		}
	}
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeStore) FindBySessionAnyTenant(_ context.Context, sessionID string) (billing.PaymentRequest, error) {
	for _, pr := range f.requests {
		if pr.ProviderSessionID == sessionID {
			return pr, nil
		}
	}
	return billing.PaymentRequest{}, billing.ErrNotFound
}

type fakeIndex struct {
	entries map[string][2]string
	hits    int
}

func (f *fakeIndex) Put(_ context.Context, sessionID, tenantID, requestID string) error {
	if f.entries == nil {
		f.entries = map[string][2]string{}
	}
	f.entries[sessionID] = [2]string{tenantID, requestID}
	return nil
}

func (f *fakeIndex) Lookup(_ context.Context, sessionID string) (string, string, bool, error) {
	f.hits++
	e, ok := f.entries[sessionID]
	if !ok {
		return "", "", false, nil
	}
	return e[0], e[1], true, nil
}

func TestResolveByExplicitMetadata(t *testing.T) {
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "r1", TenantID: "tA", CheckoutReference: "PR-AAA", ProviderSessionID: "cs_1"},
	}}
	r := &Resolver{Store: store}

	m, err := r.Resolve(context.Background(), Query{TenantID: "tA", RequestID: "r1"})
	if err != nil || m == nil {
		t.Fatalf("Resolve: m=%v err=%v", m, err)
	}
	if m.TenantID != "tA" || m.RequestID != "r1" {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestResolveFallsThroughStaleMetadata(t *testing.T) {
	// metadata points at a deleted request; the session still matches
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "r2", TenantID: "tA", ProviderSessionID: "cs_2"},
	}}
	r := &Resolver{Store: store}

	m, err := r.Resolve(context.Background(), Query{TenantID: "tA", RequestID: "gone", SessionID: "cs_2"})
	if err != nil || m == nil || m.RequestID != "r2" {
		t.Fatalf("Resolve: m=%v err=%v", m, err)
	}
}

func TestResolveByReferenceNormalization(t *testing.T) {
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "r3", TenantID: "tA", CheckoutReference: "PR-XY12Z"},
	}}
	r := &Resolver{Store: store}

	for _, raw := range []string{"PR-XY12Z", "  pr-xy12z ", "XY12Z"} {
		m, err := r.Resolve(context.Background(), Query{Reference: raw})
		if err != nil || m == nil || m.RequestID != "r3" {
			t.Fatalf("Resolve(%q): m=%v err=%v", raw, m, err)
		}
	}
}

func TestResolveTenantIsolationOnCollidingReferences(t *testing.T) {
	// same literal reference in two tenants; tenant context must win
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "ra", TenantID: "tA", CheckoutReference: "PR-SAME1"},
		{ID: "rb", TenantID: "tB", CheckoutReference: "PR-SAME1"},
	}}
	r := &Resolver{Store: store}

	m, err := r.Resolve(context.Background(), Query{TenantID: "tB", Reference: "PR-SAME1"})
	if err != nil || m == nil {
		t.Fatalf("Resolve: m=%v err=%v", m, err)
	}
	if m.TenantID != "tB" || m.RequestID != "rb" {
		t.Fatalf("reference resolved across tenants: %+v", m)
	}
}

func TestResolveViaSessionIndex(t *testing.T) {
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "r4", TenantID: "tC", ProviderSessionID: "cs_4"},
	}}
	ix := &fakeIndex{}
	_ = ix.Put(context.Background(), "cs_4", "tC", "r4")
	r := &Resolver{Store: store, Index: ix}

	m, err := r.Resolve(context.Background(), Query{SessionID: "cs_4"})
	if err != nil || m == nil || m.RequestID != "r4" {
		t.Fatalf("Resolve: m=%v err=%v", m, err)
	}
	if ix.hits != 1 {
		t.Fatalf("expected index hit, got %d", ix.hits)
	}
}

func TestResolveLastResortBySession(t *testing.T) {
	// no metadata, no index entry: the cross-tenant lookup still finds it
	store := &fakeStore{requests: []billing.PaymentRequest{
		{ID: "r5", TenantID: "tD", ProviderSessionID: "cs_5"},
	}}
	r := &Resolver{Store: store, Index: &fakeIndex{}}

	m, err := r.Resolve(context.Background(), Query{SessionID: "cs_5"})
	if err != nil || m == nil || m.RequestID != "r5" {
		t.Fatalf("Resolve: m=%v err=%v", m, err)
	}
}

func TestResolveNotFoundIsNil(t *testing.T) {
	r := &Resolver{Store: &fakeStore{}}
	m, err := r.Resolve(context.Background(), Query{SessionID: "cs_unknown", Reference: "PR-NOPE"})
	if err != nil {
		t.Fatalf("unresolved lookups must not error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil match, got %+v", m)
	}
}
