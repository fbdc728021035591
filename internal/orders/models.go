package orders

import "time"

type Order struct {
	ID                 string
	TenantID           string
	OrderNumber        string
	Status             Status
	CustomerEmail      string
	EstimatedCostCents int64
	ActualCostCents    int64
	DepositCents       int64
	PaidCents          int64
	NotifyOnPlaced     bool
	NotifyOnArrival    bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StatusChange is one append-only history row. Rows are never mutated
// or deleted.
type StatusChange struct {
	ID             int64
	OrderID        string
	PreviousStatus Status
	NewStatus      Status
	Reason         string
	Notes          string
	ChangedBy      string
	ChangedAt      time.Time
}
