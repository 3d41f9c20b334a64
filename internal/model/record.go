package model

import "time"

// Record is implemented by every row kind mirrored into a dashboard snapshot.
type Record interface {
	RecordID() string
	Created() time.Time
	// Version is the row's updated_at; it strictly increases on every mutation.
	Version() time.Time
}

// NextVersion returns a timestamp strictly after prev, normally now.
// Postgres keeps microseconds, so that is the smallest step.
func NextVersion(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
