package orders

type Status string

const (
	StatusNotOrdered Status = "not_ordered"
	StatusOrdered    Status = "ordered"
	StatusArrived    Status = "arrived"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known fulfillment states.
// Transitions between known states are not restricted; every one is
// recorded in the history either way.
func Valid(s Status) bool {
	switch s {
	case StatusNotOrdered, StatusOrdered, StatusArrived, StatusCompleted:
		return true
	}
	return false
}

// Fold replays a status history and returns the resulting status. An
// order's cached status must always equal the fold of its history.
func Fold(initial Status, history []StatusChange) Status {
	cur := initial
	for _, h := range history {
		cur = h.NewStatus
	}
	return cur
}
