package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX flattens the first sheet of an XLSX workbook into the same
// Document shape as Parse. The first non-empty row becomes the header row;
// fully empty rows are discarded.
func ParseXLSX(data []byte) (Document, error) {
	var doc Document

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return doc, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		doc.Headers = []string{}
		doc.Rows = [][]string{}
		return doc, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return doc, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	for _, row := range rows {
		fields := make([]string, len(row))
		empty := true
		for i, cell := range row {
			fields[i] = strings.TrimSpace(cell)
			if fields[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
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
	return doc, nil
}
