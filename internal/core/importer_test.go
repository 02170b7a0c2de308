package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store with the same claim semantics as the
// real one: first writer of a key wins, later writers replay.
type fakeStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	imports map[uuid.UUID]*ImportRecord
	entries map[uuid.UUID][]TimeEntry

	commitErr error
	commits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[uuid.UUID]*User),
		imports: make(map[uuid.UUID]*ImportRecord),
		entries: make(map[uuid.UUID][]TimeEntry),
	}
}

func (f *fakeStore) addUser(active bool) uuid.UUID {
	id := uuid.New()
	f.users[id] = &User{ID: id, Name: "test user", Active: active, CreatedAt: testToday}
	return id
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) ClaimImport(_ context.Context, rec *ImportRecord) (*ImportRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prior, ok := f.imports[rec.Key]; ok {
		return prior, false, nil
	}
	stored := *rec
	f.imports[rec.Key] = &stored
	return nil, true, nil
}

func (f *fakeStore) FinalizeImport(_ context.Context, key uuid.UUID, entries []TimeEntry) (*ImportRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	rec, ok := f.imports[key]
	if !ok || rec.Status != ImportPending {
		return nil, ErrImportNotFound
	}
	f.commits++
	done := testToday
	rec.Status = ImportCommitted
	rec.EntryCount = len(entries)
	rec.CompletedAt = &done
	f.entries[key] = append([]TimeEntry(nil), entries...)
	return rec, nil
}

func (f *fakeStore) ReleaseImport(_ context.Context, key uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.imports[key]; ok && rec.Status == ImportPending {
		delete(f.imports, key)
	}
	return nil
}

func (f *fakeStore) GetImport(_ context.Context, key uuid.UUID) (*ImportRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.imports[key]
	if !ok {
		return nil, ErrImportNotFound
	}
	return rec, nil
}

func (f *fakeStore) EntriesForImport(_ context.Context, key uuid.UUID) ([]TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TimeEntry(nil), f.entries[key]...), nil
}

func (f *fakeStore) ListEntries(_ context.Context, userID uuid.UUID, from, to string) ([]TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TimeEntry
	for _, list := range f.entries {
		for _, e := range list {
			if e.UserID != userID {
				continue
			}
			if from != "" && e.Date < from {
				continue
			}
			if to != "" && e.Date > to {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListImports(_ context.Context, userID uuid.UUID, limit int) ([]ImportRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ImportRecord
	for _, rec := range f.imports {
		if rec.UserID == userID && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func testImporter(store Store) *Importer {
	limiter := NewImportLimiter(4, 50*time.Millisecond)
	now := func() time.Time { return testToday }
	return NewImporter(store, limiter, testPeriodConfig(), now)
}

// ===== Happy Path =====

func TestImporter_CommitsValidBatch(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)

	lines := []string{
		"2h, Bug fix, Fixed issue #123",
		"2025-10-03, 1.5, Code review",
		"3 | Meeting | Sprint planning",
	}

	result, err := imp.ImportLines(context.Background(), userID, uuid.New(), lines)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Replayed {
		t.Error("first attempt must not be a replay")
	}
	if len(result.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(result.Entries))
	}

	first := result.Entries[0]
	if first.UserID != userID || first.Date != "2025-10-06" || first.Hours != 2 {
		t.Errorf("entry = %+v", first)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want 1", store.commits)
	}
}

func TestImporter_SkipsBlankLinesKeepsIndexes(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)

	lines := []string{"2h, First", "", "   ", "0h, Broken"}

	_, err := imp.ImportLines(context.Background(), userID, uuid.New(), lines)
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %v", err)
	}
	if len(importErr.Failures) != 1 {
		t.Fatalf("failures = %v", importErr.Failures)
	}
	// The broken row keeps its original 1-based position.
	if importErr.Failures[0].Index != 4 {
		t.Errorf("failure index = %d, want 4", importErr.Failures[0].Index)
	}
}

func TestImporter_ImportRows(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)

	rows := []Candidate{
		{Hours: 2, Task: "Bug fix", Notes: "Fixed issue #123"},
		{Date: "2025-10-03", Hours: 1.5, Task: "Code review"},
	}

	result, err := imp.ImportRows(context.Background(), userID, uuid.New(), rows)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(result.Entries))
	}
	// An omitted date resolves to the processing date.
	if result.Entries[0].Date != "2025-10-06" {
		t.Errorf("date = %q, want today", result.Entries[0].Date)
	}
}

// ===== Idempotency =====

func TestImporter_ReplayReturnsPriorResult(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()
	lines := []string{"2h, Bug fix"}

	first, err := imp.ImportLines(context.Background(), userID, key, lines)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	second, err := imp.ImportLines(context.Background(), userID, key, lines)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed {
		t.Error("second attempt must report Replayed")
	}
	if len(second.Entries) != 1 || second.Entries[0].ID != first.Entries[0].ID {
		t.Errorf("replay entries differ: first=%v second=%v", first.Entries, second.Entries)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want exactly 1", store.commits)
	}
}

func TestImporter_ReplayIgnoresChangedLines(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()

	first, err := imp.ImportLines(context.Background(), userID, key, []string{"2h, Original"})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Same key, different payload: the prior result wins.
	second, err := imp.ImportLines(context.Background(), userID, key, []string{"5h, Changed"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Entries[0].Task != first.Entries[0].Task {
		t.Errorf("replay = %+v, want original task %q", second, first.Entries[0].Task)
	}
}

func TestImporter_KeyScopedToOwningUser(t *testing.T) {
	store := newFakeStore()
	owner := store.addUser(true)
	other := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()

	if _, err := imp.ImportLines(context.Background(), owner, key, []string{"2h, Owner task"}); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Another account reusing the key must hit a conflict, never a replay
	// of the owner's entries.
	result, err := imp.ImportLines(context.Background(), other, key, []string{"3h, Other task"})
	if !errors.Is(err, ErrImportKeyConflict) {
		t.Fatalf("err = %v, want ErrImportKeyConflict", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want exactly 1", store.commits)
	}
}

func TestImporter_PendingKeyConflicts(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()

	store.imports[key] = &ImportRecord{
		Key:       key,
		UserID:    userID,
		Status:    ImportPending,
		CreatedAt: testToday,
	}

	_, err := imp.ImportLines(context.Background(), userID, key, []string{"2h, Task"})
	if !errors.Is(err, ErrImportInFlight) {
		t.Errorf("err = %v, want ErrImportInFlight", err)
	}
}

func TestImporter_FailedKeyReplaysFailure(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()

	if _, err := imp.ImportLines(context.Background(), userID, key, []string{"0h, Task"}); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	// Retrying the same key, even with fixed lines, reports the original
	// rejection; the client must use a fresh key.
	_, err := imp.ImportLines(context.Background(), userID, key, []string{"2h, Task"})
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %v", err)
	}
	if store.commits != 0 {
		t.Errorf("commits = %d, want 0", store.commits)
	}
}

// ===== Atomic Rejection =====

func TestImporter_OneBadRowRejectsWholeBatch(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)

	lines := []string{
		"2h, Fine",
		"25h, Over the cap",
		"2h, Also fine",
		"garbage",
	}

	_, err := imp.ImportLines(context.Background(), userID, uuid.New(), lines)
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %v", err)
	}
	if len(importErr.Failures) != 2 {
		t.Fatalf("failures = %+v, want 2", importErr.Failures)
	}
	if importErr.Failures[0].Index != 2 || importErr.Failures[1].Index != 4 {
		t.Errorf("failure indexes = %+v", importErr.Failures)
	}
	if store.commits != 0 {
		t.Error("nothing may be written when any row fails")
	}

	entries, _ := store.ListEntries(context.Background(), userID, "", "")
	if len(entries) != 0 {
		t.Errorf("entries leaked: %v", entries)
	}
}

func TestImporter_ClosedWindowRejectedAtCommit(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)

	_, err := imp.ImportLines(context.Background(), userID, uuid.New(), []string{"2023-01-01, 2, Ancient work"})
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %v", err)
	}
	if !strings.Contains(importErr.Failures[0].Reason, "closed billing period") {
		t.Errorf("reason = %q", importErr.Failures[0].Reason)
	}
}

// ===== Storage Failure =====

func TestImporter_StorageFailureFreesKey(t *testing.T) {
	store := newFakeStore()
	userID := store.addUser(true)
	imp := testImporter(store)
	key := uuid.New()

	store.commitErr = errors.New("dial tcp: connection refused")
	if _, err := imp.ImportLines(context.Background(), userID, key, []string{"2h, Task"}); err == nil {
		t.Fatal("expected storage error")
	}

	// A transient failure must not burn the key.
	store.commitErr = nil
	result, err := imp.ImportLines(context.Background(), userID, key, []string{"2h, Task"})
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if result.Replayed {
		t.Error("retry should be a fresh commit, not a replay")
	}
}

// ===== Commit-Time User Checks =====

func TestImporter_UserChecks(t *testing.T) {
	store := newFakeStore()
	inactive := store.addUser(false)
	imp := testImporter(store)

	_, err := imp.ImportLines(context.Background(), inactive, uuid.New(), []string{"2h, Task"})
	if !errors.Is(err, ErrUserInactive) {
		t.Errorf("inactive user err = %v, want ErrUserInactive", err)
	}

	_, err = imp.ImportLines(context.Background(), uuid.New(), uuid.New(), []string{"2h, Task"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user err = %v, want ErrUserNotFound", err)
	}
}
