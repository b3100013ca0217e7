package parser

import "testing"

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		line string
		want rune
	}{
		{"comma", "Date,Amount,Description", ','},
		{"semicolon", "Data Mov.;Descrição;Débito;Crédito;Saldo", ';'},
		{"tab", "Date\tAmount\tDescription", '\t'},
		{"quoted commas ignored", `"Name, full";Amount;Date`, ';'},
		{"empty defaults to comma", "", ','},
		{"single column defaults to comma", "Amount", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffDelimiter(tt.line); got != tt.want {
				t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseSemicolonFile(t *testing.T) {
	doc := Parse("Data;Montante;Descrição\n2024-01-05;-12,50;ALBERT HEIJN\n")

	if len(doc.Headers) != 3 {
		t.Fatalf("headers = %v, want 3 columns", doc.Headers)
	}
	if doc.RowCount() != 1 {
		t.Fatalf("rows = %d, want 1", doc.RowCount())
	}
	if got := doc.Field(doc.Rows[0], 1); got != "-12,50" {
		t.Errorf("amount field = %q, want -12,50", got)
	}
}
