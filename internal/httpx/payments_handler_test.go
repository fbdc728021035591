package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cahyo88/go-tenant-payments/internal/billing"
)

// fakeBilling satisfies BillingStore for handler tests. Only the
// methods a test exercises carry behavior; the rest report not-found.
type fakeBilling struct {
	byReference map[string]billing.PaymentRequest
	account     string
	accountErr  error
}

func (f *fakeBilling) Create(_ context.Context, _ billing.CreateRequestInput) (billing.PaymentRequest, error) {
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeBilling) Get(_ context.Context, _, _ string) (billing.PaymentRequest, error) {
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeBilling) FindByReference(_ context.Context, ref string) (billing.PaymentRequest, error) {
	pr, ok := f.byReference[ref]
	if !ok {
		return billing.PaymentRequest{}, billing.ErrNotFound
	}
	return pr, nil
}

func (f *fakeBilling) AttachSession(_ context.Context, _, _, _, _ string) (billing.PaymentRequest, error) {
	return billing.PaymentRequest{}, billing.ErrNotFound
}

func (f *fakeBilling) RecordManualPayment(_ context.Context, _ billing.Payment) (billing.Payment, error) {
	return billing.Payment{}, billing.ErrNotFound
}

func (f *fakeBilling) PaymentForRequest(_ context.Context, _, _ string) (billing.Payment, error) {
	return billing.Payment{}, billing.ErrNotFound
}

func (f *fakeBilling) OutstandingBalance(_ context.Context, _, _ string) (int64, error) {
	return 0, billing.ErrNotFound
}

func (f *fakeBilling) ProviderAccount(_ context.Context, _ string) (string, error) {
	return f.account, f.accountErr
}

func TestCheckoutProviderAccountErrors(t *testing.T) {
	pending := billing.PaymentRequest{
		ID: "r1", TenantID: "t1", CheckoutReference: "PR-AAA111",
		AmountCents: 4999, Currency: "GBP", Status: billing.StatusPending,
	}

	tests := []struct {
		name       string
		account    string
		accountErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "database failure surfaces as server error",
			accountErr: errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "lookup_failed",
		},
		{
			name:       "unknown tenant reads as not connected",
			accountErr: billing.ErrNotFound,
			wantStatus: http.StatusConflict,
			wantCode:   "provider_not_connected",
		},
		{
			name:       "tenant without provider account",
			account:    "",
			wantStatus: http.StatusConflict,
			wantCode:   "provider_not_connected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &PaymentsHandler{Billing: &fakeBilling{
				byReference: map[string]billing.PaymentRequest{"PR-AAA111": pending},
				account:     tt.account,
				accountErr:  tt.accountErr,
			}}
			router := NewRouter()
			h.Register(router)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/PR-AAA111", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if body := rec.Body.String(); !containsCode(body, tt.wantCode) {
				t.Fatalf("body %q missing error code %q", body, tt.wantCode)
			}
		})
	}
}

func TestCheckoutTerminalRequestStatuses(t *testing.T) {
	tests := []struct {
		status     billing.RequestStatus
		wantStatus int
	}{
		{billing.StatusPaid, http.StatusConflict},
		{billing.StatusFailed, http.StatusGone},
		{billing.StatusExpired, http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h := &PaymentsHandler{Billing: &fakeBilling{
				byReference: map[string]billing.PaymentRequest{"PR-AAA111": {
					ID: "r1", TenantID: "t1", CheckoutReference: "PR-AAA111",
					AmountCents: 4999, Currency: "GBP", Status: tt.status,
				}},
			}}
			router := NewRouter()
			h.Register(router)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/PR-AAA111", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// errors are written as {"error":"<code>",...}
func containsCode(body, code string) bool {
	return strings.Contains(body, `"error":"`+code+`"`)
}
