package drift

// Status is the lifecycle state of a tracked entity.
type Status string

const (
	// StatusDiscovered means the entity was found but not yet reviewed.
	StatusDiscovered Status = "discovered"
	// StatusApproved means a pattern was approved for enforcement.
	StatusApproved Status = "approved"
	// StatusIgnored means the entity was explicitly ignored.
	StatusIgnored Status = "ignored"
	// StatusVerified means a contract was confirmed against both sides.
	StatusVerified Status = "verified"
	// StatusMismatch means a contract's sides disagree.
	StatusMismatch Status = "mismatch"
)

// AllStatuses lists every known status across both lifecycles.
var AllStatuses = []Status{StatusDiscovered, StatusApproved, StatusIgnored, StatusVerified, StatusMismatch}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TransitionTable declares which statuses are reachable from each status.
// An absent target means the move is rejected with InvalidTransitionError.
type TransitionTable map[Status][]Status

// PatternTransitions governs pattern (and constraint) lifecycle moves.
// Every status can be corrected out of, so review decisions are never final.
var PatternTransitions = TransitionTable{
	StatusDiscovered: {StatusApproved, StatusIgnored},
	StatusApproved:   {StatusIgnored},
	StatusIgnored:    {StatusApproved},
}

// ContractTransitions governs contract lifecycle moves.
var ContractTransitions = TransitionTable{
	StatusDiscovered: {StatusVerified, StatusMismatch, StatusIgnored},
	StatusVerified:   {StatusMismatch, StatusIgnored},
	StatusMismatch:   {StatusVerified, StatusIgnored},
	StatusIgnored:    {StatusVerified, StatusMismatch},
}

// Allows reports whether the table permits moving from one status to another.
func (t TransitionTable) Allows(from, to Status) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Statuses returns every status that appears in the table, as source or target.
func (t TransitionTable) Statuses() []Status {
	seen := map[Status]bool{}
	var out []Status
	add := func(s Status) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for from, targets := range t {
		add(from)
		for _, to := range targets {
			add(to)
		}
	}
	return out
}
