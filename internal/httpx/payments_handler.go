package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/cahyo88/go-tenant-payments/internal/billing"
	"github.com/cahyo88/go-tenant-payments/internal/correlate"
	"github.com/cahyo88/go-tenant-payments/internal/gateway"
	"github.com/cahyo88/go-tenant-payments/internal/money"
	"github.com/cahyo88/go-tenant-payments/internal/recon"
	"github.com/cahyo88/go-tenant-payments/internal/redisx"
)

// BillingStore is the slice of the payment ledger the HTTP layer needs.
// Satisfied by *billing.Repo.
type BillingStore interface {
	Create(ctx context.Context, in billing.CreateRequestInput) (billing.PaymentRequest, error)
	Get(ctx context.Context, tenantID, id string) (billing.PaymentRequest, error)
	FindByReference(ctx context.Context, reference string) (billing.PaymentRequest, error)
	AttachSession(ctx context.Context, tenantID, id, sessionID, paymentLink string) (billing.PaymentRequest, error)
	RecordManualPayment(ctx context.Context, p billing.Payment) (billing.Payment, error)
	PaymentForRequest(ctx context.Context, tenantID, requestID string) (billing.Payment, error)
	OutstandingBalance(ctx context.Context, tenantID, orderID string) (int64, error)
	ProviderAccount(ctx context.Context, tenantID string) (string, error)
}

type PaymentsHandler struct {
	Billing       BillingStore
	Engine        *recon.Engine
	Gateway       gateway.Gateway
	Resolver      *correlate.Resolver
	Index         correlate.SessionIndex
	Redis         *redis.Client
	FeeBps        int64
	WebhookSecret string
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payments", h.webhook)
	r.Get("/checkout/{reference}", h.checkout)
	r.Get("/receipts/{sessionID}", h.receipt)

	r.Group(func(r chi.Router) {
		r.Use(RequireTenant)
		r.Post("/payments/requests", h.createRequest)
		r.Post("/payments/manual", h.manualPayment)
		r.Post("/payments/{orderID}/refresh", h.refresh)
		r.Get("/payments/orders/{orderID}/balance", h.balance)
		r.Get("/admin/payments/account", h.accountStatus)
	})
}

// webhookPayload is the provider's event shape. Metadata carries the
// tenant and request ids the integration embeds at session creation.
type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SessionID   string            `json:"session_id"`
		Reference   string            `json:"reference"`
		AmountCents int64             `json:"amount_cents"`
		Currency    string            `json:"currency"`
		PaymentRef  string            `json:"payment_ref"`
		ReceiptURL  string            `json:"receipt_url"`
		Reason      string            `json:"reason"`
		Metadata    map[string]string `json:"metadata"`
	} `json:"data"`
}

// webhook always acknowledges processable payloads: surfacing internal
// errors as delivery failures would only trigger provider retry storms.
// The poll path covers whatever a lost event leaves behind.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	if h.WebhookSecret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "bad_signature", "payload integrity check failed")
			return
		}
	}

	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "unreadable event payload")
		return
	}

	ev := recon.ProviderEvent{
		ID:          p.ID,
		Type:        p.Type,
		TenantID:    p.Data.Metadata["tenant_id"],
		RequestID:   p.Data.Metadata["payment_request_id"],
		SessionID:   p.Data.SessionID,
		Reference:   p.Data.Reference,
		AmountCents: p.Data.AmountCents,
		Currency:    p.Data.Currency,
		PaymentRef:  p.Data.PaymentRef,
		ReceiptURL:  p.Data.ReceiptURL,
		Reason:      p.Data.Reason,
		TraceID:     r.Header.Get("X-Request-Id"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.Engine.HandleProviderEvent(ctx, ev); err != nil {
		log.Printf("webhook: event %s type=%s: %v", p.ID, p.Type, err)
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"received": true})
}

type createRequestReq struct {
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Description       string  `json:"description"`
	CustomerEmail     string  `json:"customer_email"`
	OrderID           string  `json:"order_id"`
	CheckoutReference string  `json:"checkout_reference"`
}

func (h *PaymentsHandler) createRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "unreadable body")
		return
	}
	minor, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	pr, err := h.Billing.Create(ctx, billing.CreateRequestInput{
		TenantID:          TenantFrom(r),
		CheckoutReference: req.CheckoutReference,
		AmountCents:       minor,
		Currency:          req.Currency,
		Description:       req.Description,
		CustomerEmail:     req.CustomerEmail,
		OrderID:           req.OrderID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, requestView(pr))
}

type manualPaymentReq struct {
	OrderID   string  `json:"order_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
	Notes     string  `json:"notes"`
}

func (h *PaymentsHandler) manualPayment(w http.ResponseWriter, r *http.Request) {
	var req manualPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "unreadable body")
		return
	}
	minor, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p, err := h.Billing.RecordManualPayment(ctx, billing.Payment{
		TenantID:          TenantFrom(r),
		OrderID:           req.OrderID,
		AmountCents:       minor,
		Method:            billing.PaymentMethod(req.Method),
		ProviderReference: req.Reference,
		Notes:             req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "record_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": p.ID, "amount_cents": p.AmountCents, "method": p.Method, "paid_at": p.PaidAt,
	})
}

func (h *PaymentsHandler) refresh(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := h.Engine.RefreshOrder(ctx, TenantFrom(r), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "refresh_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentsHandler) balance(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	outstanding, err := h.Billing.OutstandingBalance(ctx, TenantFrom(r), orderID)
	if errors.Is(err, billing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "balance_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outstanding_cents": outstanding,
		"outstanding":       money.ToDecimal(outstanding),
	})
}

func (h *PaymentsHandler) accountStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	acct, err := h.Billing.ProviderAccount(ctx, TenantFrom(r))
	if errors.Is(err, billing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown tenant")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if acct == "" {
		writeError(w, http.StatusConflict, "provider_not_connected", "tenant has no payment provider connection")
		return
	}

	st, err := h.Gateway.AccountStatus(ctx, acct)
	if errors.Is(err, gateway.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "provider API unreachable")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"charges_enabled": st.ChargesEnabled,
		"payouts_enabled": st.PayoutsEnabled,
		"disabled_reason": st.DisabledReason,
	})
}

// checkout hands the customer-facing page everything it needs to take
// the payment, creating the provider session on first load.
func (h *PaymentsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var pr billing.PaymentRequest
	found := false
	for _, cand := range billing.NormalizeReference(chi.URLParam(r, "reference")) {
		p, err := h.Billing.FindByReference(ctx, cand)
		if err == nil {
			pr, found = p, true
			break
		}
		if !errors.Is(err, billing.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
			return
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown_reference", "no payment request for this reference")
		return
	}

	switch pr.Status {
	case billing.StatusPaid:
		writeError(w, http.StatusConflict, "already_paid", "this payment has already been completed")
		return
	case billing.StatusFailed, billing.StatusExpired:
		writeError(w, http.StatusGone, "no_longer_payable", "this payment request is "+string(pr.Status))
		return
	}

	acct, err := h.Billing.ProviderAccount(ctx, pr.TenantID)
	if err != nil && !errors.Is(err, billing.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if acct == "" {
		writeError(w, http.StatusConflict, "provider_not_connected",
			"online payment is not available, please pay another way")
		return
	}

	var sess gateway.Session
	if pr.ProviderSessionID == "" {
		sess, err = h.Gateway.CreateCheckoutSession(ctx, gateway.CreateSessionInput{
			AccountID:     acct,
			Reference:     pr.CheckoutReference,
			AmountCents:   pr.AmountCents,
			Currency:      pr.Currency,
			Description:   pr.Description,
			CustomerEmail: pr.CustomerEmail,
			FeeCents:      money.ApplyFeeBps(pr.AmountCents, h.FeeBps),
			// embedded so every confirmation event correlates in O(1)
			Metadata: map[string]string{
				"tenant_id":          pr.TenantID,
				"payment_request_id": pr.ID,
			},
		})
		if err == nil {
			pr, err = h.Billing.AttachSession(ctx, pr.TenantID, pr.ID, sess.ID, sess.PaymentLink)
		}
		if err == nil && h.Index != nil {
			if ixErr := h.Index.Put(ctx, sess.ID, pr.TenantID, pr.ID); ixErr != nil {
				log.Printf("checkout: session index write %s: %v", sess.ID, ixErr)
			}
		}
	} else {
		sess, err = h.Gateway.GetSession(ctx, pr.ProviderSessionID)
	}
	if errors.Is(err, gateway.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"online payment is temporarily unavailable, please pay another way")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reference":     pr.CheckoutReference,
		"amount_cents":  pr.AmountCents,
		"amount":        money.ToDecimal(pr.AmountCents),
		"currency":      pr.Currency,
		"description":   pr.Description,
		"session_token": sess.ClientToken,
		"payment_link":  sess.PaymentLink,
		"expires_at":    pr.ExpiresAt,
	})
}

// receipt returns the generated receipt document for a provider
// session. The underlying payment must be resolvable via correlation.
func (h *PaymentsHandler) receipt(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// cache-aside: receipts are immutable once generated
	cacheKey := fmt.Sprintf(redisx.KeyReceiptCache, sessionID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, cacheKey).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	m, err := h.Resolver.Resolve(ctx, correlate.Query{SessionID: sessionID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "not_found", "no payment for this session")
		return
	}

	payment, err := h.Billing.PaymentForRequest(ctx, m.TenantID, m.RequestID)
	if errors.Is(err, billing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_paid", "payment not confirmed yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	pr, err := h.Billing.Get(ctx, m.TenantID, m.RequestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}

	doc := map[string]any{
		"receipt_number":     payment.ID,
		"description":        pr.Description,
		"amount_cents":       payment.AmountCents,
		"amount":             money.ToDecimal(payment.AmountCents),
		"currency":           pr.Currency,
		"method":             payment.Method,
		"provider_reference": payment.ProviderReference,
		"paid_at":            payment.PaidAt,
	}
	body, _ := json.Marshal(doc)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, cacheKey, body, redisx.TTLReceiptCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func requestView(pr billing.PaymentRequest) map[string]any {
	return map[string]any{
		"id":                 pr.ID,
		"checkout_reference": pr.CheckoutReference,
		"amount_cents":       pr.AmountCents,
		"currency":           pr.Currency,
		"status":             pr.Status,
		"order_id":           pr.OrderID,
		"payment_link":       pr.PaymentLink,
		"expires_at":         pr.ExpiresAt,
	}
}
