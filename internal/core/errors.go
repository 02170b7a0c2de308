package core

// errors.go maps technical errors onto stable, user-facing messages.
//
// Handlers should never leak driver or internal error text to clients.
// MapError walks an ordered pattern table and returns a UserMessage with a
// short explanation, a suggested action, and a stable machine code.

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors recognized across package boundaries.
var (
	// ErrImportInFlight means another request holds the same idempotency key
	// and has not finished yet.
	ErrImportInFlight = errors.New("import with this key is already in progress")
	// ErrTooManyImports means the concurrent-import limiter is saturated.
	ErrTooManyImports = errors.New("too many concurrent imports")
	// ErrImportNotFound means no import record exists for the given key.
	ErrImportNotFound = errors.New("import not found")
	// ErrImportKeyConflict means the key is already claimed by a different
	// user; keys are scoped to the account that first used them.
	ErrImportKeyConflict = errors.New("import key belongs to another user")
	// ErrUserNotFound means the acting user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive means the acting user exists but is deactivated.
	ErrUserInactive = errors.New("user is inactive")
)

// ImportError reports an atomic batch rejection: no entries were written and
// Failures explains every offending row.
type ImportError struct {
	Failures []RowFailure
}

func (e *ImportError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("import rejected: row %d: %s", e.Failures[0].Index, e.Failures[0].Reason)
	}
	return fmt.Sprintf("import rejected: %d rows failed validation", len(e.Failures))
}

// UserMessage is the client-safe rendering of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// errorPattern maps a substring of an error's text to a UserMessage.
type errorPattern struct {
	contains string
	msg      UserMessage
}

// errorPatterns is checked in order; first hit wins.
var errorPatterns = []errorPattern{
	{
		contains: "connection refused",
		msg: UserMessage{
			Message: "The database is unreachable.",
			Action:  "Try again in a moment.",
			Code:    "db_unavailable",
		},
	},
	{
		contains: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation took too long and was cancelled.",
			Action:  "Try again with a smaller batch.",
			Code:    "timeout",
		},
	},
	{
		contains: "duplicate key",
		msg: UserMessage{
			Message: "A conflicting record already exists.",
			Action:  "Check for an earlier import with the same key.",
			Code:    "conflict",
		},
	},
	{
		contains: "invalid input syntax",
		msg: UserMessage{
			Message: "A value could not be stored in the expected format.",
			Action:  "Check dates and hours for unusual characters.",
			Code:    "bad_value",
		},
	},
}

// MapError converts any error into a UserMessage. Known sentinels and typed
// errors map to precise messages; everything else falls through the pattern
// table to a generic internal-error message.
func MapError(err error) UserMessage {
	var importErr *ImportError
	switch {
	case errors.As(err, &importErr):
		return UserMessage{
			Message: importErr.Error(),
			Action:  "Fix the listed rows and retry with a new key.",
			Code:    "import_rejected",
		}
	case errors.Is(err, ErrImportInFlight):
		return UserMessage{
			Message: "An import with this key is already being processed.",
			Action:  "Wait for it to finish, then fetch its result.",
			Code:    "import_in_flight",
		}
	case errors.Is(err, ErrTooManyImports):
		return UserMessage{
			Message: "The server is processing too many imports right now.",
			Action:  "Wait a few seconds and retry.",
			Code:    "import_busy",
		}
	case errors.Is(err, ErrImportNotFound):
		return UserMessage{
			Message: "No import exists for that key.",
			Action:  "Check the key and try again.",
			Code:    "import_not_found",
		}
	case errors.Is(err, ErrImportKeyConflict):
		return UserMessage{
			Message: "This import key was already used by a different account.",
			Action:  "Generate a fresh key and retry.",
			Code:    "import_key_conflict",
		}
	case errors.Is(err, ErrUserNotFound):
		return UserMessage{
			Message: "The requesting user does not exist.",
			Action:  "Check your credentials.",
			Code:    "user_not_found",
		}
	case errors.Is(err, ErrUserInactive):
		return UserMessage{
			Message: "This account has been deactivated.",
			Action:  "Contact an administrator to reactivate it.",
			Code:    "user_inactive",
		}
	}

	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.contains) {
			return p.msg
		}
	}

	return UserMessage{
		Message: "Something went wrong while processing the request.",
		Action:  "Try again; contact support if it keeps happening.",
		Code:    "internal",
	}
}
