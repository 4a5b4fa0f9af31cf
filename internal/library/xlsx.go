package library

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads a reading export from an Excel workbook. The loader scans
// sheets for one whose first row looks like the export header (it names the
// required columns) and parses it with the same rules as the CSV loader.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if headerMatches(rows[0]) {
			return buildTable(rows[0], rows[1:])
		}
	}

	return nil, &SchemaError{Missing: requiredColumns}
}

// headerMatches reports whether a row carries every required column name.
func headerMatches(header []string) bool {
	cols := findColumnIndices(header)
	for _, name := range requiredColumns {
		if _, ok := cols[normalizeHeader(name)]; !ok {
			return false
		}
	}
	return true
}
