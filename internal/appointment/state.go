package appointment

var transitions = map[Status][]Status{
	StatusScheduled:   {StatusConfirmed, StatusInProgress, StatusCancelled, StatusRescheduled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusCancelled},
	StatusRescheduled: {StatusScheduled, StatusCancelled},
}

// CanTransition reports whether an appointment may move between two statuses.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
