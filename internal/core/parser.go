package core

// parser.go interprets one raw input line as a time-entry candidate.
//
// The accepted formats form an explicit ordered list of matchers. Each
// matcher first decides whether the line's shape is its own (delimiter
// presence plus a parseable numeric hours token) and only then extracts the
// fields. The first matcher that claims the line wins; matchers are never
// scored against each other. Adding a format means appending one entry to
// lineFormats.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatKind identifies which input format matched a line.
type FormatKind string

const (
	FormatExplicitDateCSV FormatKind = "explicit-date-csv"
	FormatHourSuffixCSV   FormatKind = "hour-suffix-csv"
	FormatPipeDelimited   FormatKind = "pipe-delimited"
)

// dateRegex matches the wire date shape. Calendar validity is checked
// separately with time.Parse so "2025-02-30" is shape-valid but parse-invalid.
var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// formatMatcher binds a FormatKind to its matching function. match returns
// (nil, nil) when the line's shape is not this format's, a candidate on
// success, and a non-nil error when the shape matched but a field is broken.
type formatMatcher struct {
	kind  FormatKind
	match func(line string, today time.Time) (*Candidate, error)
}

// lineFormats is the fixed priority order: explicit-date CSV first, then
// hour-suffix comma style, then pipe style.
var lineFormats = []formatMatcher{
	{FormatExplicitDateCSV, matchExplicitDateCSV},
	{FormatHourSuffixCSV, matchHourSuffixCSV},
	{FormatPipeDelimited, matchPipeDelimited},
}

// ParseLine interprets a single non-blank line as a time-entry candidate.
// It is a pure function of (line, today); today fills in omitted dates.
// The returned FormatKind names the matcher that claimed the line.
func ParseLine(line string, today time.Time) (*Candidate, FormatKind, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, "", fmt.Errorf("blank line")
	}

	for _, f := range lineFormats {
		cand, err := f.match(line, today)
		if err != nil {
			return nil, f.kind, err
		}
		if cand != nil {
			return cand, f.kind, nil
		}
	}

	return nil, "", fmt.Errorf("unrecognized line format: no numeric hours token found")
}

// matchExplicitDateCSV handles "YYYY-MM-DD, <hours>, <task>[, <notes>]".
// The shape is claimed by the leading date token; notes may contain commas,
// so trailing fields are rejoined.
func matchExplicitDateCSV(line string, _ time.Time) (*Candidate, error) {
	fields := splitFields(line, ",")
	if len(fields) < 2 || !dateRegex.MatchString(fields[0]) {
		return nil, nil
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf("expected date, hours, task")
	}

	hours, ok := parseHours(fields[1])
	if !ok {
		return nil, fmt.Errorf("no numeric hours token found in %q", fields[1])
	}

	return &Candidate{
		Date:  fields[0],
		Hours: hours,
		Task:  fields[2],
		Notes: joinTrailing(fields[3:], ", "),
	}, nil
}

// matchHourSuffixCSV handles "<hours>h, <task>[, <notes>]". The shape is
// claimed by the hour-suffixed first token.
func matchHourSuffixCSV(line string, today time.Time) (*Candidate, error) {
	fields := splitFields(line, ",")
	if len(fields) < 2 {
		return nil, nil
	}

	first := fields[0]
	if !strings.HasSuffix(strings.ToLower(first), "h") {
		return nil, nil
	}

	hours, ok := parseHours(first)
	if !ok {
		return nil, fmt.Errorf("no numeric hours token found in %q", first)
	}

	return &Candidate{
		Date:  today.Format(DateLayout),
		Hours: hours,
		Task:  fields[1],
		Notes: joinTrailing(fields[2:], ", "),
	}, nil
}

// matchPipeDelimited handles "<hours> | <task> [| <notes>]".
func matchPipeDelimited(line string, today time.Time) (*Candidate, error) {
	if !strings.Contains(line, "|") {
		return nil, nil
	}

	fields := splitFields(line, "|")
	hours, ok := parseHours(fields[0])
	if !ok {
		return nil, fmt.Errorf("no numeric hours token found in %q", fields[0])
	}

	return &Candidate{
		Date:  today.Format(DateLayout),
		Hours: hours,
		Task:  fields[1],
		Notes: joinTrailing(fields[2:], " | "),
	}, nil
}

// parseHours parses an hours token, accepting an optional trailing "h"
// ("2", "2.5", "2h", "2.5H"). Returns false for anything non-numeric or
// non-finite.
func parseHours(tok string) (float64, bool) {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimSuffix(strings.TrimSuffix(tok, "h"), "H")
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// splitFields splits on sep and trims each field.
func splitFields(line, sep string) []string {
	parts := strings.Split(line, sep)
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = strings.TrimSpace(p)
	}
	return fields
}

// joinTrailing rejoins leftover fields so delimiters inside notes survive.
func joinTrailing(fields []string, sep string) string {
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, sep)
}
