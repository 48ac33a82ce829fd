package dispatch

// forward is the order an active dispatch moves through.
var forward = map[Status]int{
	StatusDispatched: 1,
	StatusEnRoute:    2,
	StatusArrived:    3,
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition allows forward steps between active statuses and any active
// status to COMPLETED or CANCELLED.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to.IsTerminal() {
		return true
	}
	f, okFrom := forward[from]
	t, okTo := forward[to]
	return okFrom && okTo && t > f
}
