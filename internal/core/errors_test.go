package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ===== Sentinel Mapping =====

func TestMapError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"in flight", ErrImportInFlight, "import_in_flight"},
		{"wrapped in flight", fmt.Errorf("handler: %w", ErrImportInFlight), "import_in_flight"},
		{"too many", ErrTooManyImports, "import_busy"},
		{"key conflict", ErrImportKeyConflict, "import_key_conflict"},
		{"not found", ErrImportNotFound, "import_not_found"},
		{"user missing", ErrUserNotFound, "user_not_found"},
		{"user inactive", ErrUserInactive, "user_inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message == "" || got.Action == "" {
				t.Errorf("message and action must be populated: %+v", got)
			}
		})
	}
}

// ===== Pattern Table =====

func TestMapError_Patterns(t *testing.T) {
	tests := []struct {
		errText  string
		wantCode string
	}{
		{"dial tcp 127.0.0.1:5432: connection refused", "db_unavailable"},
		{"query: context deadline exceeded", "timeout"},
		{"ERROR: duplicate key value violates unique constraint", "conflict"},
		{"ERROR: invalid input syntax for type numeric", "bad_value"},
		{"something nobody anticipated", "internal"},
	}

	for _, tt := range tests {
		got := MapError(errors.New(tt.errText))
		if got.Code != tt.wantCode {
			t.Errorf("MapError(%q).Code = %q, want %q", tt.errText, got.Code, tt.wantCode)
		}
		if strings.Contains(got.Message, "ERROR:") {
			t.Errorf("driver text leaked into message: %q", got.Message)
		}
	}
}

// ===== Batch Rejection =====

func TestMapError_ImportError(t *testing.T) {
	one := &ImportError{Failures: []RowFailure{{Index: 3, Reason: "hours must be greater than 0, got 0"}}}
	got := MapError(one)
	if got.Code != "import_rejected" {
		t.Errorf("code = %q", got.Code)
	}
	if !strings.Contains(got.Message, "row 3") {
		t.Errorf("single failure should name the row: %q", got.Message)
	}

	many := &ImportError{Failures: []RowFailure{{Index: 1, Reason: "a"}, {Index: 2, Reason: "b"}}}
	got = MapError(fmt.Errorf("import: %w", many))
	if got.Code != "import_rejected" {
		t.Errorf("wrapped code = %q", got.Code)
	}
	if !strings.Contains(got.Message, "2 rows") {
		t.Errorf("multi failure should count rows: %q", got.Message)
	}
}
