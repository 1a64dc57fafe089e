package domain

// Status represents invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusDraft:   {StatusSent, StatusOverdue, StatusPaid, StatusCancelled},
	StatusSent:    {StatusOverdue, StatusPaid, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Payable reports whether a payment may still be collected.
func (s Status) Payable() bool {
	return s.Valid() && !s.IsTerminal()
}

// Transition validates moving an invoice from one status to another.
// Re-applying the current status of an open invoice is a no-op.
func Transition(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidStatus
	}
	if from.IsTerminal() {
		return ErrInvalidTransition
	}
	if from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return ErrInvalidTransition
}
