package core

// preview.go produces a complete dry-run report for a multi-line input.
//
// The preview never touches storage or the network: identical input text and
// processing date always yield an identical report, so callers can re-run it
// on every keystroke debounce. Line numbers refer to the caller's original
// input; blank lines are dropped silently (they produce no row at all), so
// reported line numbers can be discontinuous.

import (
	"strings"
	"time"
)

// PreviewText runs the parser and validator over newline-delimited input and
// returns one PreviewRow per non-blank line, in input order. An entirely
// empty input yields an empty row list and a zero summary.
func PreviewText(text string, today time.Time) *PreviewReport {
	report := &PreviewReport{Rows: []PreviewRow{}}

	for i, raw := range strings.Split(text, "\n") {
		line := trimLine(raw)
		if line == "" {
			continue
		}
		report.Rows = append(report.Rows, previewLine(i+1, line, today))
	}

	finishSummary(report)
	return report
}

// Record is one tabular input row together with its 1-based line in the
// original source. The position travels with the cells because tabular
// readers may drop blank source lines, so a record's index says nothing
// about where it came from.
type Record struct {
	Line  int
	Cells []string
}

// PreviewRecords runs the same pipeline over an already-tabular source, e.g.
// parsed CSV rows. Each record's cells are rejoined comma-separated so the
// record flows through the same ordered format matchers as raw text, and its
// row is reported under the record's original line number.
func PreviewRecords(records []Record, today time.Time) *PreviewReport {
	report := &PreviewReport{Rows: []PreviewRow{}}

	for _, record := range records {
		if isEmptyRecord(record.Cells) {
			continue
		}
		line := strings.TrimSpace(strings.Join(record.Cells, ", "))
		report.Rows = append(report.Rows, previewLine(record.Line, line, today))
	}

	finishSummary(report)
	return report
}

// previewLine runs parse then validate for one line. A parse failure
// short-circuits validation and is reported as the row's only error.
func previewLine(lineNum int, line string, today time.Time) PreviewRow {
	cand, _, err := ParseLine(line, today)
	if err != nil {
		return PreviewRow{
			Line:   lineNum,
			Valid:  false,
			Errors: []string{err.Error()},
		}
	}

	vr := ValidateCandidate(cand)
	return PreviewRow{
		Line:   lineNum,
		Valid:  vr.Valid,
		Parsed: cand,
		Errors: vr.Errors,
	}
}

// finishSummary derives the summary from the row sequence.
func finishSummary(report *PreviewReport) {
	report.Summary.Total = len(report.Rows)
	for _, row := range report.Rows {
		if row.Valid {
			report.Summary.Valid++
		} else {
			report.Summary.Invalid++
		}
	}
}

// trimLine drops surrounding whitespace and a trailing carriage return.
func trimLine(raw string) string {
	return strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
