package core

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for entry dates.
const DateLayout = "2006-01-02"

// Candidate is a time-entry candidate produced by parsing one input line.
// Date is always populated: lines that omit it get the injected processing
// date, formatted with DateLayout.
type Candidate struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
	Task  string  `json:"task"`
	Notes string  `json:"notes"`
}

// PreviewRow is the per-line unit of a preview report. Line is the 1-based
// position in the original input. Parsed is nil when parsing failed.
type PreviewRow struct {
	Line   int        `json:"line"`
	Valid  bool       `json:"valid"`
	Parsed *Candidate `json:"parsed"`
	Errors []string   `json:"errors"`
}

// PreviewSummary aggregates a preview report. Total == Valid + Invalid always
// holds; the counts are derived from the row sequence, never set independently.
type PreviewSummary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// PreviewReport is the complete result of a dry-run preview. It is a pure
// function of the input text and the processing date.
type PreviewReport struct {
	Rows    []PreviewRow   `json:"rows"`
	Summary PreviewSummary `json:"summary"`
}

// User is an account that can own time entries. Inactive users keep their
// history but may not import new entries.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TimeEntry is a persisted time entry.
type TimeEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Date      string    `json:"date" db:"entry_date"`
	Hours     float64   `json:"hours" db:"hours"`
	Task      string    `json:"task" db:"task"`
	Notes     string    `json:"notes" db:"notes"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ImportStatus is the lifecycle state of an import key.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportCommitted ImportStatus = "committed"
	ImportFailed    ImportStatus = "failed"
)

// ImportRecord is the persisted control record for one idempotency key.
type ImportRecord struct {
	Key         uuid.UUID    `json:"key" db:"key"`
	UserID      uuid.UUID    `json:"userId" db:"user_id"`
	Status      ImportStatus `json:"status" db:"status"`
	EntryCount  int          `json:"entryCount" db:"entry_count"`
	Failure     string       `json:"failure,omitempty" db:"failure"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time   `json:"completedAt,omitempty" db:"completed_at"`
}

// ImportResult is the outcome of a successful (or replayed) import.
type ImportResult struct {
	Key      uuid.UUID   `json:"key"`
	Entries  []TimeEntry `json:"entries"`
	Replayed bool        `json:"replayed"`
}

// RowFailure identifies one row rejected at commit time.
type RowFailure struct {
	Index  int    `json:"index"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}
