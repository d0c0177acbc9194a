package appointments

import "github.com/wolfman30/heydoc-scheduler/internal/heydoc"

// AllowedTransitions lists the structurally valid status changes. Only the
// cancelled transition is ever applied locally; the rest arrive via refresh.
var AllowedTransitions = map[heydoc.Status][]heydoc.Status{
	heydoc.StatusScheduled: {heydoc.StatusConfirmed, heydoc.StatusCancelled, heydoc.StatusNoShow},
	heydoc.StatusConfirmed: {heydoc.StatusCompleted, heydoc.StatusCancelled, heydoc.StatusNoShow},
	heydoc.StatusCompleted: {},
	heydoc.StatusCancelled: {},
	heydoc.StatusNoShow:    {},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[heydoc.Status][]heydoc.Status) map[heydoc.Status]map[heydoc.Status]struct{} {
	set := make(map[heydoc.Status]map[heydoc.Status]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[heydoc.Status]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// CanTransition checks if moving from one status to another is valid.
func CanTransition(from, to heydoc.Status) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
