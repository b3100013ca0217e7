package parser

import (
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, cells [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range cells {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Date", "Amount", "Description"},
		{"2024-01-05", "-42.50", "Coffee Shop"},
		{"2024-01-06", "100.00", "Paycheck"},
	})

	doc, err := ParseXLSX(data)
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}

	wantHeaders := []string{"Date", "Amount", "Description"}
	if !reflect.DeepEqual(doc.Headers, wantHeaders) {
		t.Errorf("Headers = %#v, want %#v", doc.Headers, wantHeaders)
	}
	if doc.RowCount() != 2 {
		t.Fatalf("RowCount = %d, want 2", doc.RowCount())
	}
	if doc.Rows[0][2] != "Coffee Shop" {
		t.Errorf("Rows[0][2] = %q, want %q", doc.Rows[0][2], "Coffee Shop")
	}
}

func TestParseXLSXSkipsEmptyRows(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"", ""},
		{"Date", "Amount"},
		{"", ""},
		{"2024-01-05", "-1.00"},
	})

	doc, err := ParseXLSX(data)
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}

	if !reflect.DeepEqual(doc.Headers, []string{"Date", "Amount"}) {
		t.Errorf("Headers = %#v, first non-empty row should be the header", doc.Headers)
	}
	if doc.RowCount() != 1 {
		t.Errorf("RowCount = %d, want 1", doc.RowCount())
	}
}

func TestParseXLSXRejectsGarbage(t *testing.T) {
	if _, err := ParseXLSX([]byte("not a workbook")); err == nil {
		t.Fatal("expected error for non-xlsx bytes")
	}
}
