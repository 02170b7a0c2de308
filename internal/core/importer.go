package core

// importer.go turns a validated batch into persisted entries, exactly once
// per idempotency key.
//
// The commit path re-runs every business rule even though clients usually
// previewed first: time passes between preview and commit, so the user may
// have been deactivated or the billing window may have closed. The batch is
// atomic. One bad row rejects the whole batch and nothing is written.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence surface the importer depends on. The pgx-backed
// implementation lives in internal/store; tests substitute a fake.
//
// A commit runs in three phases so a pending claim is visible to concurrent
// requests: ClaimImport makes the key visible, FinalizeImport writes the
// entries and flips the claim to committed atomically, ReleaseImport frees
// the key again when finalize fails on a storage error.
type Store interface {
	// GetUser fetches a user by id, or ErrUserNotFound.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// ClaimImport inserts rec if its key is absent. When the key is already
	// taken it writes nothing and returns the prior record with
	// claimed=false.
	ClaimImport(ctx context.Context, rec *ImportRecord) (prior *ImportRecord, claimed bool, err error)

	// FinalizeImport writes the entries and marks the pending claim
	// committed, in one transaction.
	FinalizeImport(ctx context.Context, key uuid.UUID, entries []TimeEntry) (*ImportRecord, error)

	// ReleaseImport deletes a still-pending claim so the same key can be
	// retried after a storage failure.
	ReleaseImport(ctx context.Context, key uuid.UUID) error

	// GetImport fetches the control record for a key, or ErrImportNotFound.
	GetImport(ctx context.Context, key uuid.UUID) (*ImportRecord, error)

	// EntriesForImport returns the entries a committed key produced, in
	// insertion order.
	EntriesForImport(ctx context.Context, key uuid.UUID) ([]TimeEntry, error)

	// ListEntries returns a user's entries with entry_date in [from, to]
	// (DateLayout, empty bound means unbounded), newest date first.
	ListEntries(ctx context.Context, userID uuid.UUID, from, to string) ([]TimeEntry, error)

	// ListImports returns a user's most recent import records.
	ListImports(ctx context.Context, userID uuid.UUID, limit int) ([]ImportRecord, error)
}

// Importer coordinates the exactly-once commit path.
type Importer struct {
	store   Store
	limiter *ImportLimiter
	period  PeriodConfig
	now     func() time.Time
}

// NewImporter wires an importer. now is injectable for tests; nil means
// time.Now.
func NewImporter(store Store, limiter *ImportLimiter, period PeriodConfig, now func() time.Time) *Importer {
	if now == nil {
		now = time.Now
	}
	return &Importer{
		store:   store,
		limiter: limiter,
		period:  period,
		now:     now,
	}
}

// indexedCandidate pairs a candidate with its 1-based input position so
// failure reports point at the row the client sent.
type indexedCandidate struct {
	index int
	cand  *Candidate
}

// ImportLines commits a batch of raw input lines under one idempotency key.
// Blank lines are skipped the same way preview skips them; failure indexes
// refer to the original positions.
func (imp *Importer) ImportLines(ctx context.Context, userID, key uuid.UUID, lines []string) (*ImportResult, error) {
	return imp.run(ctx, userID, key, func(now time.Time) ([]indexedCandidate, []RowFailure) {
		var (
			items    []indexedCandidate
			failures []RowFailure
		)
		for i, line := range lines {
			line = trimLine(line)
			if line == "" {
				continue
			}
			cand, _, err := ParseLine(line, now)
			if err != nil {
				failures = append(failures, RowFailure{Index: i + 1, Reason: err.Error()})
				continue
			}
			items = append(items, indexedCandidate{index: i + 1, cand: cand})
		}
		return items, failures
	})
}

// ImportRows commits a batch of already-parsed rows, e.g. the candidates a
// preview handed back to the client. Rows with an empty date get the current
// processing date.
func (imp *Importer) ImportRows(ctx context.Context, userID, key uuid.UUID, rows []Candidate) (*ImportResult, error) {
	return imp.run(ctx, userID, key, func(now time.Time) ([]indexedCandidate, []RowFailure) {
		items := make([]indexedCandidate, 0, len(rows))
		for i := range rows {
			cand := rows[i]
			if cand.Date == "" {
				cand.Date = now.Format(DateLayout)
			}
			items = append(items, indexedCandidate{index: i + 1, cand: &cand})
		}
		return items, nil
	})
}

// run is the shared commit path.
//
// Replaying a committed key returns the original entries with Replayed set
// and writes nothing. A key whose first attempt is still running returns
// ErrImportInFlight. Any invalid row rejects the entire batch with an
// *ImportError listing every failure.
func (imp *Importer) run(ctx context.Context, userID, key uuid.UUID, build func(time.Time) ([]indexedCandidate, []RowFailure)) (*ImportResult, error) {
	if err := imp.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer imp.limiter.Release()

	now := imp.now()

	if prior, err := imp.store.GetImport(ctx, key); err == nil {
		return imp.replay(ctx, userID, prior)
	} else if !errors.Is(err, ErrImportNotFound) {
		return nil, fmt.Errorf("checking import key: %w", err)
	}

	user, err := imp.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	items, failures := build(now)
	entries, checkFailures := imp.checkAndBuild(userID, items, now)
	failures = append(failures, checkFailures...)
	if len(failures) > 0 {
		importErr := &ImportError{Failures: sortFailures(failures)}
		rec := &ImportRecord{
			Key:       key,
			UserID:    userID,
			Status:    ImportFailed,
			Failure:   importErr.Error(),
			CreatedAt: now,
		}
		// Burn the key so a replay reports the original rejection. A
		// concurrent claim winning instead is fine, the rejection stands.
		if _, _, recErr := imp.store.ClaimImport(ctx, rec); recErr != nil {
			return nil, fmt.Errorf("recording import failure: %w", recErr)
		}
		return nil, importErr
	}

	rec := &ImportRecord{
		Key:        key,
		UserID:     userID,
		Status:     ImportPending,
		EntryCount: len(entries),
		CreatedAt:  now,
	}

	prior, claimed, err := imp.store.ClaimImport(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("claiming import key: %w", err)
	}
	if !claimed {
		return imp.replay(ctx, userID, prior)
	}

	if _, err := imp.store.FinalizeImport(ctx, key, entries); err != nil {
		// Free the key so the client can retry after a transient failure.
		if relErr := imp.store.ReleaseImport(ctx, key); relErr != nil {
			return nil, errors.Join(err, relErr)
		}
		return nil, err
	}

	return &ImportResult{Key: key, Entries: entries}, nil
}

// replay reproduces the outcome of a finished prior attempt without writing
// anything. Keys are scoped to the account that first used them: a prior
// record owned by someone else is a conflict, never a replay, so one user's
// entries cannot leak through another user's key.
func (imp *Importer) replay(ctx context.Context, userID uuid.UUID, prior *ImportRecord) (*ImportResult, error) {
	if prior.UserID != userID {
		return nil, ErrImportKeyConflict
	}

	switch prior.Status {
	case ImportPending:
		return nil, ErrImportInFlight
	case ImportFailed:
		return nil, &ImportError{Failures: []RowFailure{{Reason: prior.Failure}}}
	}

	entries, err := imp.store.EntriesForImport(ctx, prior.Key)
	if err != nil {
		return nil, fmt.Errorf("loading entries for replay: %w", err)
	}
	return &ImportResult{Key: prior.Key, Entries: entries, Replayed: true}, nil
}

// checkAndBuild validates every candidate and re-checks the billing window.
// It returns either a full entry slice or the complete failure list, never a
// partial mix.
func (imp *Importer) checkAndBuild(userID uuid.UUID, items []indexedCandidate, now time.Time) ([]TimeEntry, []RowFailure) {
	var (
		entries  []TimeEntry
		failures []RowFailure
	)

	for _, item := range items {
		cand := item.cand

		if vr := ValidateCandidate(cand); !vr.Valid {
			for _, msg := range vr.Errors {
				failures = append(failures, RowFailure{Index: item.index, Date: cand.Date, Reason: msg})
			}
			continue
		}

		if err := CheckEntryDate(cand.Date, now, imp.period); err != nil {
			failures = append(failures, RowFailure{Index: item.index, Date: cand.Date, Reason: err.Error()})
			continue
		}

		entries = append(entries, TimeEntry{
			ID:        uuid.New(),
			UserID:    userID,
			Date:      cand.Date,
			Hours:     cand.Hours,
			Task:      cand.Task,
			Notes:     cand.Notes,
			CreatedAt: now,
		})
	}

	if len(failures) > 0 {
		return nil, failures
	}
	return entries, nil
}

// sortFailures orders failures by input position; parse and validation
// failures come from separate passes over the same batch.
func sortFailures(failures []RowFailure) []RowFailure {
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].Index < failures[j].Index
	})
	return failures
}
