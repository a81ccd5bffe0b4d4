package querycache

import "time"

// Status is the settlement state of a cache entry.
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// Entry is an immutable snapshot of one key. Data keeps the last successful
// value while a refetch is loading or after it failed.
type Entry struct {
	Key         string
	Data        any
	Status      Status
	Err         error
	FetchedAt   time.Time
	StaleAfter  time.Time
	Invalidated bool
}

// Stale reports whether the entry must be refetched before it is served.
func (e Entry) Stale(now time.Time) bool {
	if e.Status != Success || e.Invalidated {
		return true
	}
	return !now.Before(e.StaleAfter)
}
