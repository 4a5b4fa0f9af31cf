package library

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical column names of the export format. Matching on load is
// case-insensitive after trimming; export always writes this full set in
// this order.
const (
	ColBookID            = "Book Id"
	ColTitle             = "Title"
	ColAuthor            = "Author"
	ColAdditionalAuthors = "Additional Authors"
	ColMyRating          = "My Rating"
	ColAvgRating         = "Average Rating"
	ColPages             = "Number of Pages"
	ColYearPublished     = "Year Published"
	ColPublisher         = "Publisher"
	ColBinding           = "Binding"
	ColShelf             = "Exclusive Shelf"
	ColDateRead          = "Date Read"
	ColGenres            = "Genres"
)

// requiredColumns must be present in the header for a load to succeed.
var requiredColumns = []string{ColAuthor, ColMyRating, ColAvgRating, ColDateRead}

// exportColumns is the canonical column order written by Write.
var exportColumns = []string{
	ColBookID, ColTitle, ColAuthor, ColAdditionalAuthors,
	ColMyRating, ColAvgRating, ColPages, ColYearPublished,
	ColPublisher, ColBinding, ColShelf, ColDateRead, ColGenres,
}

// dateLayouts are the accepted finish-date formats, tried in order.
var dateLayouts = []string{"2006/01/02", "2006-01-02", "01/02/2006"}

var titleCaser = cases.Title(language.English)

// SchemaError reports required columns missing from an uploaded file.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Parse reads a reading export in CSV form and returns the working table.
// When an Exclusive Shelf column is present only rows shelved as "read" are
// kept; without that column, rows lacking a valid finish date are dropped
// instead. Individual malformed values (bad dates, non-numeric ratings or
// page counts) become absent values, they never fail the load.
func Parse(r io.Reader) (*Table, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	// Strip UTF-8 BOM so header detection sees the first column name.
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		content = content[3:]
	}

	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, &SchemaError{Missing: requiredColumns}
	}

	return buildTable(records[0], records[1:])
}

// buildTable assembles a Table from a header row and data rows. Shared by
// the CSV and XLSX loaders.
func buildTable(header []string, rows [][]string) (*Table, error) {
	cols := findColumnIndices(header)

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[normalizeHeader(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	_, hasShelf := cols[normalizeHeader(ColShelf)]

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := parseRow(row, cols)
		if hasShelf {
			if !strings.EqualFold(rec.Shelf, "read") {
				continue
			}
		} else if !rec.HasDateRead() {
			continue
		}
		out = append(out, rec)
	}

	return NewTable(out), nil
}

// findColumnIndices maps normalized header names to their positions.
func findColumnIndices(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "\uFEFF")
		key := normalizeHeader(name)
		if _, seen := cols[key]; key != "" && !seen {
			cols[key] = i
		}
	}
	return cols
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func parseRow(row []string, cols map[string]int) Record {
	get := func(name string) string {
		idx, ok := cols[normalizeHeader(name)]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rec := Record{
		BookID:    get(ColBookID),
		Title:     get(ColTitle),
		Publisher: titleCasePublisher(get(ColPublisher)),
		Binding:   get(ColBinding),
		Shelf:     get(ColShelf),
	}

	rec.Authors = parseAuthors(get(ColAuthor), get(ColAdditionalAuthors))
	rec.MyRating = parseFloat(get(ColMyRating))
	rec.AvgRating = parseFloat(get(ColAvgRating))
	rec.Pages = parseInt(get(ColPages))
	rec.YearPublished = parseInt(get(ColYearPublished))
	rec.DateRead = parseDate(get(ColDateRead))
	rec.Genres = parseGenres(get(ColGenres))

	return rec
}

// parseAuthors combines the primary author column with the comma-separated
// co-author column. Names keep their original casing with internal
// whitespace collapsed. The list is never empty: a row with no usable
// author falls back to "Unknown".
func parseAuthors(primary, additional string) []string {
	var authors []string
	if name := collapseSpaces(primary); name != "" {
		authors = append(authors, name)
	}
	for _, part := range strings.Split(additional, ",") {
		if name := collapseSpaces(part); name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) == 0 {
		authors = []string{"Unknown"}
	}
	return authors
}

// parseGenres accepts both the pipe-joined form written by Write and the
// bracketed list form some external exports carry.
func parseGenres(value string) []string {
	if value == "" {
		return nil
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
		var genres []string
		for _, part := range strings.Split(value, ",") {
			part = strings.Trim(collapseSpaces(part), `'"`)
			if part != "" {
				genres = append(genres, part)
			}
		}
		return genres
	}
	var genres []string
	for _, part := range strings.Split(value, "|") {
		if g := collapseSpaces(part); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCasePublisher(name string) string {
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseInt(s string) int {
	// Some exports carry integer columns as "123.0".
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Write serializes the table back to the export format, including the Genres
// column, in canonical column order.
func Write(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range t.Rows {
		if err := writer.Write(exportRow(&t.Rows[i])); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func exportRow(r *Record) []string {
	var primary, additional string
	if len(r.Authors) > 0 {
		primary = r.Authors[0]
		additional = strings.Join(r.Authors[1:], ", ")
	}

	var dateRead string
	if r.HasDateRead() {
		dateRead = r.DateRead.Format("2006/01/02")
	}

	return []string{
		r.BookID,
		r.Title,
		primary,
		additional,
		formatFloat(r.MyRating),
		formatFloat(r.AvgRating),
		formatInt(r.Pages),
		formatInt(r.YearPublished),
		r.Publisher,
		r.Binding,
		r.Shelf,
		dateRead,
		strings.Join(r.Genres, " | "),
	}
}

func formatFloat(v float64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatInt(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}
