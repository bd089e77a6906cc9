package model

import "time"

type SyncKind string

const (
	PollSync     SyncKind = "poll"
	BackfillSync SyncKind = "backfill"
)

// SyncReport summarizes one poll tick or one backfill run.
type SyncReport struct {
	Kind       SyncKind  `json:"kind"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Requests   int       `json:"requests"`
	Pages      int       `json:"pages"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}
