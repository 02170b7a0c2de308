package core

// service.go is the facade the HTTP layer talks to. It owns the clock so
// every operation in one request sees a consistent "today".

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service exposes the import pipeline's operations behind one surface.
type Service struct {
	store    Store
	importer *Importer
	period   PeriodConfig
	now      func() time.Time
}

// NewService wires a service. now is injectable for tests; nil means
// time.Now.
func NewService(store Store, limiter *ImportLimiter, period PeriodConfig, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		importer: NewImporter(store, limiter, period, now),
		period:   period,
		now:      now,
	}
}

// Preview dry-runs newline-delimited input against the current date.
func (s *Service) Preview(text string) *PreviewReport {
	return PreviewText(text, s.now())
}

// PreviewCSV dry-runs raw CSV bytes: BOM and invalid UTF-8 are scrubbed
// before parsing, then each record flows through the same pipeline as text
// lines.
func (s *Service) PreviewCSV(data []byte) (*PreviewReport, error) {
	records, err := parseCSV(sanitizeUTF8(stripBOM(data)))
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return PreviewRecords(records, s.now()), nil
}

// ImportLines commits a batch of raw lines under an idempotency key.
func (s *Service) ImportLines(ctx context.Context, userID, key uuid.UUID, lines []string) (*ImportResult, error) {
	return s.importer.ImportLines(ctx, userID, key, lines)
}

// ImportRows commits a batch of already-parsed rows under an idempotency key.
func (s *Service) ImportRows(ctx context.Context, userID, key uuid.UUID, rows []Candidate) (*ImportResult, error) {
	return s.importer.ImportRows(ctx, userID, key, rows)
}

// GetImport returns the control record for one of the user's idempotency
// keys. A key owned by a different user reads as not found, so key existence
// never leaks across accounts.
func (s *Service) GetImport(ctx context.Context, userID, key uuid.UUID) (*ImportRecord, error) {
	rec, err := s.store.GetImport(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrImportNotFound
	}
	return rec, nil
}

// ListImports returns the user's most recent imports, capped at limit.
func (s *Service) ListImports(ctx context.Context, userID uuid.UUID, limit int) ([]ImportRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListImports(ctx, userID, limit)
}

// ListEntries returns the user's entries between two optional date bounds.
func (s *Service) ListEntries(ctx context.Context, userID uuid.UUID, from, to string) ([]TimeEntry, error) {
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, bound); err != nil {
			return nil, fmt.Errorf("date bound %q must use YYYY-MM-DD", bound)
		}
	}
	return s.store.ListEntries(ctx, userID, from, to)
}

// CurrentPeriod returns the billing period containing today, plus whether
// the submission-deadline warning is active.
func (s *Service) CurrentPeriod() (InvoicePeriod, bool) {
	now := s.now()
	p := PeriodFor(now, s.period)
	return p, p.DeadlineWarningActive(now)
}
