package checks

import (
	"sync"
)

// Ledger is an append-only sequence of checks. Appends are safe under
// concurrent invocation; mock server handlers for one scenario may run
// interleaved (overlapping requests during step-up are expected).
type Ledger struct {
	mu      sync.Mutex
	entries []Check
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a check to the ledger.
func (l *Ledger) Append(c Check) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, c)
}

// Snapshot returns a copy of the current ledger contents in append order.
func (l *Ledger) Snapshot() []Check {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Check, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of appended checks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Observed reports whether at least one check with the given ID was appended.
func (l *Ledger) Observed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			return true
		}
	}
	return false
}

// StatusOf returns the worst status recorded for the given check ID.
// Ordering, worst first: FAILURE, WARNING, SKIPPED, INFO, SUCCESS.
// The second return is false when the ID was never observed.
func (l *Ledger) StatusOf(id string) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	worst := StatusSuccess
	for i := range l.entries {
		if l.entries[i].ID != id {
			continue
		}
		if !found || severity(l.entries[i].Status) > severity(worst) {
			worst = l.entries[i].Status
		}
		found = true
	}
	return worst, found
}

// Summary aggregates the ledger by distinct check ID, keeping the worst
// status per ID. A scenario's final report treats this set as the object
// of evaluation.
func (l *Ledger) Summary() map[string]Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Status)
	for i := range l.entries {
		c := l.entries[i]
		prev, ok := out[c.ID]
		if !ok || severity(c.Status) > severity(prev) {
			out[c.ID] = c.Status
		}
	}
	return out
}

func severity(s Status) int {
	switch s {
	case StatusFailure:
		return 4
	case StatusWarning:
		return 3
	case StatusSkipped:
		return 2
	case StatusInfo:
		return 1
	default:
		return 0
	}
}

// CountByStatus tallies checks per status.
func CountByStatus(entries []Check) map[Status]int {
	out := make(map[Status]int)
	for i := range entries {
		out[entries[i].Status]++
	}
	return out
}
