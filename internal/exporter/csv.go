// Package exporter renders a library table and its computed insights into
// downloadable artifacts: an enriched CSV matching the import layout, and an
// XLSX report workbook.
package exporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"shelfstats/internal/library"
)

// CSVOptions configures table export behavior.
type CSVOptions struct {
	// BOMPrefix adds a UTF-8 BOM so Excel recognizes the encoding.
	BOMPrefix bool
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV streams the table as CSV. The output uses the same column layout
// the importer reads, so an exported file re-imports to an identical table.
func WriteCSV(w io.Writer, t *library.Table, opts CSVOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	return library.Write(w, t)
}

// WriteCSVFile writes the table to a file, creating parent directories as
// needed.
func WriteCSVFile(path string, t *library.Table, opts CSVOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteCSV(file, t, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
