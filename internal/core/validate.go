package core

// validate.go applies business rules to a parsed candidate.
//
// Rules are checked independently so a preview row reports every violation
// at once instead of failing on the first. The same rule set backs both the
// batch preview path and the commit-time sanity pass, keeping single-entry
// and batch behavior consistent.

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxHoursPerEntry = 24
	MaxTaskLength    = 200
	MaxNotesLength   = 500
)

// ValidationResult contains the outcome of validating one candidate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// rowRule checks one business constraint and returns a human-readable
// violation message, or "" when the rule holds.
type rowRule func(c *Candidate) string

// rowRules are evaluated in declaration order; violation messages appear in
// the result in the same order.
var rowRules = []rowRule{
	checkHours,
	checkTask,
	checkNotes,
	checkDate,
}

// ValidateCandidate runs every rule against the candidate and returns all
// violations.
func ValidateCandidate(c *Candidate) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, rule := range rowRules {
		if msg := rule(c); msg != "" {
			result.Valid = false
			result.Errors = append(result.Errors, msg)
		}
	}

	return result
}

func checkHours(c *Candidate) string {
	if math.IsNaN(c.Hours) || math.IsInf(c.Hours, 0) {
		return "hours must be a finite number"
	}
	if c.Hours <= 0 {
		return fmt.Sprintf("hours must be greater than 0, got %g", c.Hours)
	}
	if c.Hours > MaxHoursPerEntry {
		return fmt.Sprintf("hours must not exceed %d, got %g", MaxHoursPerEntry, c.Hours)
	}
	return ""
}

func checkTask(c *Candidate) string {
	task := strings.TrimSpace(c.Task)
	if task == "" {
		return "task is required"
	}
	if utf8.RuneCountInString(task) > MaxTaskLength {
		return fmt.Sprintf("task must be at most %d characters", MaxTaskLength)
	}
	return ""
}

func checkNotes(c *Candidate) string {
	if utf8.RuneCountInString(c.Notes) > MaxNotesLength {
		return fmt.Sprintf("notes must be at most %d characters", MaxNotesLength)
	}
	return ""
}

func checkDate(c *Candidate) string {
	if c.Date == "" {
		return ""
	}
	if !dateRegex.MatchString(c.Date) {
		return fmt.Sprintf("date must use YYYY-MM-DD, got %q", c.Date)
	}
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return fmt.Sprintf("date %q is not a valid calendar date", c.Date)
	}
	return ""
}
