package parser

import (
	"reflect"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantHeaders []string
		wantRows    [][]string
	}{
		{
			name:        "blank file",
			input:       "",
			wantHeaders: []string{},
			wantRows:    [][]string{},
		},
		{
			name:        "whitespace only",
			input:       "\n   \n\t\n",
			wantHeaders: []string{},
			wantRows:    [][]string{},
		},
		{
			name:        "header only",
			input:       "Date,Amount,Description",
			wantHeaders: []string{"Date", "Amount", "Description"},
			wantRows:    [][]string{},
		},
		{
			name:        "simple rows",
			input:       "Date,Amount,Description\n2024-01-05,-42.50,Coffee Shop\n2024-01-06,100.00,Paycheck",
			wantHeaders: []string{"Date", "Amount", "Description"},
			wantRows: [][]string{
				{"2024-01-05", "-42.50", "Coffee Shop"},
				{"2024-01-06", "100.00", "Paycheck"},
			},
		},
		{
			name:        "blank lines discarded",
			input:       "a,b\n\n1,2\n\n\n3,4\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:        "quoted comma stays in field",
			input:       "Date,Description\n2024-01-05,\"Grocer, Main St\"",
			wantHeaders: []string{"Date", "Description"},
			wantRows:    [][]string{{"2024-01-05", "Grocer, Main St"}},
		},
		{
			name:        "quote characters removed",
			input:       "a\n\"plain\"",
			wantHeaders: []string{"a"},
			wantRows:    [][]string{{"plain"}},
		},
		{
			name:        "fields trimmed",
			input:       " Date , Amount \n  2024-01-05 ,  -1.00  ",
			wantHeaders: []string{"Date", "Amount"},
			wantRows:    [][]string{{"2024-01-05", "-1.00"}},
		},
		{
			name:        "short row keeps missing fields absent",
			input:       "a,b,c\n1,2",
			wantHeaders: []string{"a", "b", "c"},
			wantRows:    [][]string{{"1", "2"}},
		},
		{
			name:        "crlf line endings",
			input:       "a,b\r\n1,2\r\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"1", "2"}},
		},
		{
			// A doubled quote toggles state twice instead of escaping, so
			// the literal quote is lost; the limitation is pinned here,
			// not fixed.
			name:        "doubled quotes stripped not escaped",
			input:       "a,b\n\"say \"\"hi\"\", ok\",2",
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"say hi, ok", "2"}},
		},
		{
			// An embedded newline inside quotes splits into two rows; the
			// second fragment re-enters quote state at its lone quote.
			name:        "embedded newline splits rows",
			input:       "a,b\n\"line one\nline two\",2",
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"line one"}, {"line two,2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if !reflect.DeepEqual(got.Headers, tt.wantHeaders) {
				t.Errorf("Headers = %#v, want %#v", got.Headers, tt.wantHeaders)
			}
			if !reflect.DeepEqual(got.Rows, tt.wantRows) {
				t.Errorf("Rows = %#v, want %#v", got.Rows, tt.wantRows)
			}
		})
	}
}

func TestDocumentField(t *testing.T) {
	doc := Parse("a,b,c\n1,2")
	row := doc.Rows[0]

	if got := doc.Field(row, 0); got != "1" {
		t.Errorf("Field(0) = %q, want %q", got, "1")
	}
	if got := doc.Field(row, 2); got != "" {
		t.Errorf("Field(2) = %q, want empty for missing field", got)
	}
	if got := doc.Field(row, -1); got != "" {
		t.Errorf("Field(-1) = %q, want empty", got)
	}
}

func TestDocumentHeaderIndex(t *testing.T) {
	doc := Parse("Date,Amount,Description\n")

	if got := doc.HeaderIndex("Amount"); got != 1 {
		t.Errorf("HeaderIndex(Amount) = %d, want 1", got)
	}
	if got := doc.HeaderIndex("Missing"); got != -1 {
		t.Errorf("HeaderIndex(Missing) = %d, want -1", got)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"iso", "2024-01-05", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"slash year first", "2024/01/05", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"european", "05/01/2024", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"german dots", "05.01.2024", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"long form", "Jan 5, 2026", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"free text", "last tuesday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
