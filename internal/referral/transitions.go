package referral

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from → to is an edge of the referral state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal is true for REJECTED, COMPLETED and CANCELLED.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// receiverOnly statuses may only be set by the receiving hospital.
func receiverOnly(s Status) bool {
	return s == StatusAccepted || s == StatusRejected
}
