package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var ErrNotFound = errors.New("payment request not found")

const requestCols = `id, tenant_id, checkout_reference, amount_cents, currency,
	description, customer_email, order_id, provider_session_id, status,
	payment_link, failure_reason, created_at, expires_at`

type CreateRequestInput struct {
	TenantID          string
	CheckoutReference string // generated when empty
	AmountCents       int64
	Currency          string
	Description       string
	CustomerEmail     string
	OrderID           string
}

// Create inserts a pending request. A generated reference that collides
// within the tenant is regenerated once; a supplied one surfaces the
// conflict to the caller.
func (r *Repo) Create(ctx context.Context, in CreateRequestInput) (PaymentRequest, error) {
	if in.AmountCents <= 0 {
		return PaymentRequest{}, fmt.Errorf("amount must be positive, got %d", in.AmountCents)
	}
	if in.Currency == "" {
		return PaymentRequest{}, errors.New("currency is required")
	}

	generated := in.CheckoutReference == ""
	ref := in.CheckoutReference
	if generated {
		ref = NewReference()
	}

	for attempt := 0; ; attempt++ {
		pr, err := r.insert(ctx, in, ref)
		if err == nil {
			return pr, nil
		}
		var pgErr *pgconn.PgError
		if generated && attempt == 0 && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			ref = NewReference()
			continue
		}
		return PaymentRequest{}, err
	}
}

func (r *Repo) insert(ctx context.Context, in CreateRequestInput, ref string) (PaymentRequest, error) {
	id := uuid.NewString()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_requests(id, tenant_id, checkout_reference, amount_cents,
			currency, description, customer_email, order_id, status)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,'')::uuid,'pending')`,
		id, in.TenantID, ref, in.AmountCents, in.Currency, in.Description, in.CustomerEmail, in.OrderID)
	if err != nil {
		return PaymentRequest{}, err
	}
	return r.Get(ctx, in.TenantID, id)
}

func (r *Repo) Get(ctx context.Context, tenantID, id string) (PaymentRequest, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	return scanRequest(row)
}

// FindByReference is tenant-agnostic: the reference arrives from a bare
// payment link before any tenant context exists.
func (r *Repo) FindByReference(ctx context.Context, reference string) (PaymentRequest, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests WHERE checkout_reference=$1`, reference)
	return scanRequest(row)
}

func (r *Repo) FindByReferenceInTenant(ctx context.Context, tenantID, reference string) (PaymentRequest, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests
		 WHERE tenant_id=$1 AND checkout_reference=$2`, tenantID, reference)
	return scanRequest(row)
}

func (r *Repo) FindBySession(ctx context.Context, tenantID, sessionID string) (PaymentRequest, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests
		 WHERE tenant_id=$1 AND provider_session_id=$2`, tenantID, sessionID)
	return scanRequest(row)
}

// FindBySessionAnyTenant backs the last-resort correlation step for old
// events with no embedded metadata. Indexed on provider_session_id, so
// this is a point lookup, not a scan over tenants.
func (r *Repo) FindBySessionAnyTenant(ctx context.Context, sessionID string) (PaymentRequest, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests WHERE provider_session_id=$1`, sessionID)
	return scanRequest(row)
}

// AttachSession stores the provider checkout artifact and starts the
// 24h expiry clock if none was set.
func (r *Repo) AttachSession(ctx context.Context, tenantID, id, sessionID, paymentLink string) (PaymentRequest, error) {
	_, err := r.DB.Exec(ctx, `
		UPDATE payment_requests
		SET provider_session_id=$3, payment_link=NULLIF($4,''),
		    expires_at=COALESCE(expires_at, now() + interval '24 hours')
		WHERE id=$1 AND tenant_id=$2`, id, tenantID, sessionID, paymentLink)
	if err != nil {
		return PaymentRequest{}, err
	}
	return r.Get(ctx, tenantID, id)
}

type PaidInput struct {
	ProviderReference string
	ReceiptURL        string
	AmountCents       int64 // 0 means the requested amount
	PaidAt            time.Time
}

// MarkPaid transitions pending -> paid and writes the single Payment
// ledger row in the same transaction, under a row lock so a concurrent
// push event and poll sweep cannot both confirm. A terminal request is
// returned unchanged with applied=false.
func (r *Repo) MarkPaid(ctx context.Context, tenantID, id string, in PaidInput) (pr PaymentRequest, applied bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PaymentRequest{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pr, err = r.lockRequest(ctx, tx, tenantID, id)
	if err != nil {
		return PaymentRequest{}, false, err
	}
	if pr.Status.Terminal() {
		return pr, false, nil
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	amount := in.AmountCents
	if amount == 0 {
		amount = pr.AmountCents
	}

	if _, err = tx.Exec(ctx,
		`UPDATE payment_requests SET status='paid' WHERE id=$1 AND tenant_id=$2`, id, tenantID); err != nil {
		return PaymentRequest{}, false, err
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO payments(id, tenant_id, payment_request_id, order_id, amount_cents,
			method, provider_reference, receipt_url, paid_at)
		VALUES ($1,$2,$3,NULLIF($4,'')::uuid,$5,'provider',NULLIF($6,''),NULLIF($7,''),$8)`,
		uuid.NewString(), tenantID, id, pr.OrderID, amount, in.ProviderReference, in.ReceiptURL, paidAt); err != nil {
		return PaymentRequest{}, false, err
	}
	if pr.OrderID != "" {
		if _, err = tx.Exec(ctx, `
			UPDATE orders SET paid_cents = paid_cents + $3, updated_at = now()
			WHERE id=$1 AND tenant_id=$2`, pr.OrderID, tenantID, amount); err != nil {
			return PaymentRequest{}, false, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return PaymentRequest{}, false, err
	}
	pr.Status = StatusPaid
	return pr, true, nil
}

func (r *Repo) MarkFailed(ctx context.Context, tenantID, id, reason string) (PaymentRequest, bool, error) {
	return r.markTerminal(ctx, tenantID, id, StatusFailed, reason)
}

func (r *Repo) MarkExpired(ctx context.Context, tenantID, id string) (PaymentRequest, bool, error) {
	return r.markTerminal(ctx, tenantID, id, StatusExpired, "")
}

func (r *Repo) markTerminal(ctx context.Context, tenantID, id string, to RequestStatus, reason string) (pr PaymentRequest, applied bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PaymentRequest{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pr, err = r.lockRequest(ctx, tx, tenantID, id)
	if err != nil {
		return PaymentRequest{}, false, err
	}
	if pr.Status.Terminal() {
		return pr, false, nil
	}
	if _, err = tx.Exec(ctx, `
		UPDATE payment_requests SET status=$3, failure_reason=NULLIF($4,'')
		WHERE id=$1 AND tenant_id=$2`, id, tenantID, string(to), reason); err != nil {
		return PaymentRequest{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return PaymentRequest{}, false, err
	}
	pr.Status = to
	pr.FailureReason = reason
	return pr, true, nil
}

func (r *Repo) lockRequest(ctx context.Context, tx pgx.Tx, tenantID, id string) (PaymentRequest, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+requestCols+` FROM payment_requests WHERE id=$1 AND tenant_id=$2 FOR UPDATE`, id, tenantID)
	return scanRequest(row)
}

func (r *Repo) ListPendingWithSession(ctx context.Context, tenantID string) ([]PaymentRequest, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+requestCols+` FROM payment_requests
		 WHERE tenant_id=$1 AND status='pending' AND provider_session_id IS NOT NULL
		 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *Repo) ListPendingForOrder(ctx context.Context, tenantID, orderID string) ([]PaymentRequest, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+requestCols+` FROM payment_requests
		 WHERE tenant_id=$1 AND order_id=$2 AND status='pending' AND provider_session_id IS NOT NULL
		 ORDER BY created_at`, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

// ListSweepTenants returns tenants that currently have something worth
// polling, so the background sweep skips idle tenants entirely.
func (r *Repo) ListSweepTenants(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT tenant_id FROM payment_requests
		WHERE status='pending' AND provider_session_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordManualPayment writes a ledger entry with no payment request:
// cash, bank transfer, or other out-of-band settlement.
func (r *Repo) RecordManualPayment(ctx context.Context, p Payment) (Payment, error) {
	if !ValidMethod(p.Method) {
		return Payment{}, fmt.Errorf("unknown payment method %q", p.Method)
	}
	if p.AmountCents <= 0 {
		return Payment{}, fmt.Errorf("amount must be positive, got %d", p.AmountCents)
	}
	p.ID = uuid.NewString()
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Payment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments(id, tenant_id, payment_request_id, order_id, amount_cents,
			method, provider_reference, receipt_url, paid_at, notes)
		VALUES ($1,$2,NULL,NULLIF($3,'')::uuid,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,NULLIF($9,''))`,
		p.ID, p.TenantID, p.OrderID, p.AmountCents, string(p.Method),
		p.ProviderReference, p.ReceiptURL, p.PaidAt, p.Notes); err != nil {
		return Payment{}, err
	}
	if p.OrderID != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET paid_cents = paid_cents + $3, updated_at = now()
			WHERE id=$1 AND tenant_id=$2`, p.OrderID, p.TenantID, p.AmountCents); err != nil {
			return Payment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *Repo) PaymentForRequest(ctx context.Context, tenantID, requestID string) (Payment, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, payment_request_id, order_id, amount_cents, method,
		       provider_reference, receipt_url, paid_at, notes
		FROM payments WHERE tenant_id=$1 AND payment_request_id=$2`, tenantID, requestID)
	return scanPayment(row)
}

// OutstandingBalance is the order's actual (or estimated) cost minus
// the sum of its payments, floored at zero.
func (r *Repo) OutstandingBalance(ctx context.Context, tenantID, orderID string) (int64, error) {
	var balance int64
	err := r.DB.QueryRow(ctx, `
		SELECT GREATEST(0,
			GREATEST(o.actual_cost_cents, o.estimated_cost_cents) -
			COALESCE((SELECT SUM(p.amount_cents) FROM payments p
			          WHERE p.tenant_id=o.tenant_id AND p.order_id=o.id), 0))
		FROM orders o WHERE o.id=$2 AND o.tenant_id=$1`, tenantID, orderID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

func (r *Repo) ProviderAccount(ctx context.Context, tenantID string) (string, error) {
	var acct *string
	err := r.DB.QueryRow(ctx,
		`SELECT provider_account_id FROM tenants WHERE id=$1`, tenantID).Scan(&acct)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", nil
	}
	return *acct, nil
}

func scanRequest(row pgx.Row) (PaymentRequest, error) {
	var pr PaymentRequest
	var desc, email, orderID, sess, link, reason *string
	err := row.Scan(&pr.ID, &pr.TenantID, &pr.CheckoutReference, &pr.AmountCents, &pr.Currency,
		&desc, &email, &orderID, &sess, &pr.Status, &link, &reason, &pr.CreatedAt, &pr.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentRequest{}, ErrNotFound
	}
	if err != nil {
		return PaymentRequest{}, err
	}
	pr.Description = deref(desc)
	pr.CustomerEmail = deref(email)
	pr.OrderID = deref(orderID)
	pr.ProviderSessionID = deref(sess)
	pr.PaymentLink = deref(link)
	pr.FailureReason = deref(reason)
	return pr, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var reqID, orderID, provRef, receipt, notes *string
	err := row.Scan(&p.ID, &p.TenantID, &reqID, &orderID, &p.AmountCents, &p.Method,
		&provRef, &receipt, &p.PaidAt, &notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	p.PaymentRequestID = deref(reqID)
	p.OrderID = deref(orderID)
	p.ProviderReference = deref(provRef)
	p.ReceiptURL = deref(receipt)
	p.Notes = deref(notes)
	return p, nil
}

func collectRequests(rows pgx.Rows) ([]PaymentRequest, error) {
	defer rows.Close()
	var out []PaymentRequest
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
