package relay

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the normalized lifecycle state of a generation task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusUnknown   Status = "unknown"
)

// Public statuses returned to HTTP callers.
const (
	PublicProcessing = "processing"
	PublicSucceeded  = "succeeded"
	PublicFailed     = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusCancelled,
	StatusExpired,
	StatusUnknown,
}

// AllStatuses returns every normalized status.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a task in this status can never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusExpired, StatusUnknown:
		return true
	}
	return false
}

// IsFailure reports whether the status is a terminal non-success.
func (s Status) IsFailure() bool {
	return s.IsTerminal() && s != StatusSucceeded
}

// Public collapses the status to processing, succeeded or failed.
func (s Status) Public() string {
	switch {
	case s == StatusSucceeded:
		return PublicSucceeded
	case s.IsFailure():
		return PublicFailed
	default:
		return PublicProcessing
	}
}

// rank orders statuses along queued -> running -> terminal.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// StatusTable maps one provider's raw status strings onto normalized statuses.
type StatusTable struct {
	provider string
	entries  map[string]Status
}

// NewStatusTable builds a table and fails when a documented vendor status has no
// mapping or when a mapping targets an invalid status. Keys are matched
// case-insensitively.
func NewStatusTable(provider string, entries map[string]Status, documented []string) (*StatusTable, error) {
	t := &StatusTable{
		provider: provider,
		entries:  make(map[string]Status, len(entries)),
	}
	for raw, status := range entries {
		if !status.Valid() {
			return nil, fmt.Errorf("%s status table: %q maps to invalid status %q", provider, raw, status)
		}
		t.entries[normalizeRaw(raw)] = status
	}

	var missing []string
	for _, raw := range documented {
		if _, ok := t.entries[normalizeRaw(raw)]; !ok {
			missing = append(missing, raw)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%s status table: unmapped vendor statuses %s", provider, strings.Join(missing, ", "))
	}

	return t, nil
}

// MustStatusTable is NewStatusTable that panics on an incomplete table. Adapters
// call it at package init so a missing mapping fails at startup.
func MustStatusTable(provider string, entries map[string]Status, documented []string) *StatusTable {
	t, err := NewStatusTable(provider, entries, documented)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the normalized status for a raw vendor status.
func (t *StatusTable) Lookup(raw string) (Status, bool) {
	s, ok := t.entries[normalizeRaw(raw)]
	return s, ok
}

func (t *StatusTable) Provider() string {
	return t.provider
}

func normalizeRaw(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
