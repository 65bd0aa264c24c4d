package storage

import "time"

// Outcome is the recorded result of processing one document in one cycle.
type Outcome struct {
	OccurredAt time.Time
	RunID      string

	// Location is the current directory of the tracked location.
	Location    string
	CurrentPath string
	DiffPath    string

	Status string // changed | unchanged | failed
	Stage  string // compare | annotate | commit, set when failed
	Error  string

	Pages   int // pages in the current document
	Dropped int // identical pages left out of the diff
}

// LocationStats aggregates the history of one location.
type LocationStats struct {
	Location  string
	Changed   int
	Unchanged int
	Failed    int
	LastSeen  time.Time
}
