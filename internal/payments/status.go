package payments

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusSucceeded: true, StatusFailed: true, StatusCancelled: true},
	StatusSucceeded: {StatusRefunded: true},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether the status has no outgoing transitions.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}

// Known reports whether s is one of the five internal statuses.
func Known(s Status) bool {
	_, ok := validNext[s]
	return ok
}
