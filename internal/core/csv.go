package core

// csv.go handles the hygiene of user-supplied CSV bytes before they reach
// the preview pipeline: BOM removal (Windows exports), UTF-8 sanitization
// (invalid sequences become the replacement character), and lenient CSV
// reading (variable field counts, lazy quotes).

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"
)

// stripBOM removes a leading UTF-8 byte order mark if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD. Valid input is
// returned unchanged without copying.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// parseCSV reads all records leniently: rows may have differing field counts
// and quoting does not need to be strict. The csv reader swallows fully
// blank lines, so each record carries its 1-based line in the original
// input (via FieldPos) rather than its position in the record sequence.
func parseCSV(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records []Record
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		records = append(records, Record{Line: line, Cells: cells})
	}
	return records, nil
}
