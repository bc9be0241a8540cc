package models

import "time"

// SourceName identifies one external marketplace.
type SourceName string

const (
	SourceKleinanzeigen SourceName = "kleinanzeigen"
	SourceQuoka         SourceName = "quoka"
	SourceImmowelt      SourceName = "immowelt"
)

// SearchKind selects the ranking policy for a search.
type SearchKind string

const (
	KindGear    SearchKind = "gear"    // top-K cheapest
	KindHousing SearchKind = "housing" // merge with previous pull, flag new entries
)

// SearchRequest is one unit of work for the queue. Term and PostalCode are
// sanitized before a request is constructed; nothing downstream re-validates them.
type SearchRequest struct {
	ID          string       `json:"id"`
	Term        string       `json:"term"`
	PostalCode  string       `json:"postalCode"`
	Kind        SearchKind   `json:"kind"`
	Sources     []SourceName `json:"sources"`
	RequestedAt time.Time    `json:"requestedAt"`
}

// CompletedSearch is a history entry for a finished (or abandoned) job.
type CompletedSearch struct {
	SearchRequest
	CompletedAt   time.Time `json:"completedAt"`
	ResultCount   int       `json:"resultCount"`
	Success       bool      `json:"success"`
	StatusMessage string    `json:"statusMessage,omitempty"`
}

// MaxCompletedSearches bounds the history ring buffer.
const MaxCompletedSearches = 10

// QueueState is the durable snapshot of the queue. Processing is non-nil iff a
// job is actively executing; the field doubles as the single-flight guard.
type QueueState struct {
	Pending         []SearchRequest   `json:"pendingSearches"`
	Processing      *SearchRequest    `json:"processing,omitempty"`
	CurrentProgress int               `json:"currentProgress"`
	StatusMessage   string            `json:"statusMessage"`
	Completed       []CompletedSearch `json:"completedSearches"`
	LastChecked     time.Time         `json:"lastChecked"`
}

// RecordCompleted prepends a history entry, evicting the oldest past the cap.
func (q *QueueState) RecordCompleted(c CompletedSearch) {
	q.Completed = append([]CompletedSearch{c}, q.Completed...)
	if len(q.Completed) > MaxCompletedSearches {
		q.Completed = q.Completed[:MaxCompletedSearches]
	}
}
