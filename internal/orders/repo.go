package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var ErrNotFound = errors.New("order not found")

const orderCols = `id, tenant_id, order_number, status, customer_email,
	estimated_cost_cents, actual_cost_cents, deposit_cents, paid_cents,
	notify_on_placed, notify_on_arrival, created_at, updated_at`

type CreateInput struct {
	TenantID           string
	OrderNumber        string
	CustomerEmail      string
	EstimatedCostCents int64
	DepositCents       int64
	NotifyOnPlaced     bool
	NotifyOnArrival    bool
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (Order, error) {
	if in.OrderNumber == "" {
		return Order{}, errors.New("order number is required")
	}
	id := uuid.NewString()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, tenant_id, order_number, status, customer_email,
			estimated_cost_cents, deposit_cents, notify_on_placed, notify_on_arrival)
		VALUES ($1,$2,$3,'not_ordered',NULLIF($4,''),$5,$6,$7,$8)`,
		id, in.TenantID, in.OrderNumber, in.CustomerEmail,
		in.EstimatedCostCents, in.DepositCents, in.NotifyOnPlaced, in.NotifyOnArrival)
	if err != nil {
		return Order{}, err
	}
	return r.Get(ctx, in.TenantID, id)
}

func (r *Repo) Get(ctx context.Context, tenantID, id string) (Order, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	return scanOrder(row)
}

type TransitionInput struct {
	NewStatus Status
	ActorID   string
	Reason    string
	Notes     string
}

// Transition appends exactly one history row and updates the cached
// status in a single transaction, returning the updated order plus the
// status it replaced. The row lock keeps history linear: two concurrent
// transitions serialize, and each records the previous status it
// actually observed.
func (r *Repo) Transition(ctx context.Context, tenantID, orderID string, in TransitionInput) (Order, Status, error) {
	if !Valid(in.NewStatus) {
		return Order{}, "", fmt.Errorf("unknown order status %q", in.NewStatus)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 AND tenant_id=$2 FOR UPDATE`, orderID, tenantID)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, "", err
	}
	previous := o.Status

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(order_id, previous_status, new_status, reason, notes, changed_by)
		VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''))`,
		orderID, string(previous), string(in.NewStatus), in.Reason, in.Notes, in.ActorID); err != nil {
		return Order{}, "", err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND tenant_id=$2`,
		orderID, tenantID, string(in.NewStatus)); err != nil {
		return Order{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, "", err
	}
	o.Status = in.NewStatus
	return o, previous, nil
}

func (r *Repo) History(ctx context.Context, tenantID, orderID string) ([]StatusChange, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT h.id, h.order_id, h.previous_status, h.new_status,
		       COALESCE(h.reason,''), COALESCE(h.notes,''), COALESCE(h.changed_by,''), h.changed_at
		FROM order_status_history h
		JOIN orders o ON o.id = h.order_id
		WHERE h.order_id=$2 AND o.tenant_id=$1
		ORDER BY h.changed_at, h.id`, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.ID, &h.OrderID, &h.PreviousStatus, &h.NewStatus,
			&h.Reason, &h.Notes, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var email *string
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.Status, &email,
		&o.EstimatedCostCents, &o.ActualCostCents, &o.DepositCents, &o.PaidCents,
		&o.NotifyOnPlaced, &o.NotifyOnArrival, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if email != nil {
		o.CustomerEmail = *email
	}
	return o, nil
}
