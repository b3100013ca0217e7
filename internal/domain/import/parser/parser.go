// Package parser turns raw statement uploads into a header row and ordered
// data rows. CSV splitting is deliberately simple: a one-level quote toggle
// with no escaped-quote support and no multi-line quoted fields (an embedded
// newline inside quotes splits into two rows). XLSX uploads are flattened
// into the same shape.
package parser

import (
	"strings"
	"time"
)

// Document is the parsed form of one uploaded statement.
type Document struct {
	Headers []string
	Rows    [][]string
}

// RowCount returns the number of data rows.
func (d Document) RowCount() int {
	return len(d.Rows)
}

// Field returns the trimmed value at idx in row, or "" when the row is
// shorter than the header it was matched against.
func (d Document) Field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// HeaderIndex returns the position of header in the document, or -1.
func (d Document) HeaderIndex(header string) int {
	for i, h := range d.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Parse splits raw decoded text into headers and data rows. Blank lines are
// discarded; the first non-blank line is the header row and decides the
// delimiter for the whole file. A blank file yields an empty document, not an
// error.
func Parse(text string) Document {
	var doc Document

	delimiter := sniffDelimiter(firstNonBlankLine(text))

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitFields(line, delimiter)
		if doc.Headers == nil {
			doc.Headers = fields
			continue
		}
		doc.Rows = append(doc.Rows, fields)
	}
	if doc.Headers == nil {
		doc.Headers = []string{}
	}
	if doc.Rows == nil {
		doc.Rows = [][]string{}
	}
	return doc
}

// splitFields scans a line left to right, toggling quote state on each '"'
// and splitting on the delimiter only outside quotes. Quote characters are
// removed from the output and every field is trimmed.
func splitFields(line string, delimiter rune) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delimiter && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// dateFormats are tried in order when interpreting free-text statement dates.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate interprets a free-text statement date. The zero time and false
// are returned when no known format matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
