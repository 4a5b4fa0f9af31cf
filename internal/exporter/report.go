package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"shelfstats/internal/insights"
	"shelfstats/internal/library"
)

const (
	sheetSummary    = "Summary"
	sheetPerYear    = "Books Per Year"
	sheetAuthors    = "Top Authors"
	sheetPublishers = "Top Publishers"
	sheetGenres     = "Top Genres"
	sheetTopRated   = "Top Rated"
	sheetLongest    = "Longest Books"
)

// reportTopN bounds the ranked listings in the workbook.
const reportTopN = 10

// WriteReport renders the table's insights into an XLSX workbook with one
// sheet per view.
func WriteReport(w io.Writer, t *library.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, t); err != nil {
		return err
	}
	writeYearSheet(f, sheetPerYear, insights.BooksPerYear(t))
	writeCountSheet(f, sheetAuthors, "Author", insights.TopAuthors(t, reportTopN))
	writeCountSheet(f, sheetPublishers, "Publisher", insights.TopPublishers(t, reportTopN))
	if t.HasGenres() {
		writeCountSheet(f, sheetGenres, "Genre", insights.TopGenres(t, reportTopN))
	}
	writeRatedSheet(f, sheetTopRated, insights.TopRatedPersonal(t, reportTopN))
	writeLongestSheet(f, insights.LongestBooks(t, reportTopN))

	// The default sheet excelize creates is replaced by Summary.
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, t *library.Table) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	summary := insights.Summarize(t)
	streak := insights.ReadingStreak(t)

	rows := [][2]any{
		{"Total Books", summary.TotalBooks},
		{"Unique Authors", summary.UniqueAuthors},
		{"Average Personal Rating", floatOrDash(summary.AvgPersonalRating)},
		{"Average Community Rating", floatOrDash(summary.AvgCommunityRating)},
		{"Total Pages Read", intOrDash(summary.TotalPagesRead)},
		{"Average Pages Per Month", floatOrDash(summary.AvgPagesPerMonth)},
		{"Average Pages Per Book", floatOrDash(summary.AvgPagesPerBook)},
		{"Longest Reading Streak (days)", streak.LongestStreakDays},
		{"Streak Start", dateOrDash(streak.StreakStart)},
		{"Streak End", dateOrDash(streak.StreakEnd)},
		{"Most Books In One Day", streak.MaxBooksInOneDay},
		{"Busiest Day", dateOrDash(streak.MaxDay)},
	}
	for i, row := range rows {
		f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", i+1), row[0])
		f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", i+1), row[1])
	}
	f.SetColWidth(sheetSummary, "A", "A", 32)
	return nil
}

func writeYearSheet(f *excelize.File, name string, counts []insights.YearCount) {
	f.NewSheet(name)
	f.SetCellValue(name, "A1", "Year")
	f.SetCellValue(name, "B1", "Books")
	for i, c := range counts {
		f.SetCellValue(name, fmt.Sprintf("A%d", i+2), c.Year)
		f.SetCellValue(name, fmt.Sprintf("B%d", i+2), c.Count)
	}
}

func writeCountSheet(f *excelize.File, name, label string, counts []insights.NameCount) {
	f.NewSheet(name)
	f.SetCellValue(name, "A1", label)
	f.SetCellValue(name, "B1", "Books")
	for i, c := range counts {
		f.SetCellValue(name, fmt.Sprintf("A%d", i+2), c.Name)
		f.SetCellValue(name, fmt.Sprintf("B%d", i+2), c.Count)
	}
	f.SetColWidth(name, "A", "A", 28)
}

func writeRatedSheet(f *excelize.File, name string, books []insights.RatedBook) {
	f.NewSheet(name)
	headers := []string{"Title", "Author", "My Rating", "Average Rating", "Date Read"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(name, cell, h)
	}
	for i, b := range books {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), b.Title)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), primaryAuthor(b.Authors))
		f.SetCellValue(name, fmt.Sprintf("C%d", row), b.MyRating)
		f.SetCellValue(name, fmt.Sprintf("D%d", row), b.AvgRating)
		f.SetCellValue(name, fmt.Sprintf("E%d", row), dateOrDash(b.DateRead))
	}
	f.SetColWidth(name, "A", "B", 32)
}

func writeLongestSheet(f *excelize.File, books []insights.BookPages) {
	f.NewSheet(sheetLongest)
	f.SetCellValue(sheetLongest, "A1", "Title")
	f.SetCellValue(sheetLongest, "B1", "Author")
	f.SetCellValue(sheetLongest, "C1", "Pages")
	for i, b := range books {
		row := i + 2
		f.SetCellValue(sheetLongest, fmt.Sprintf("A%d", row), b.Title)
		f.SetCellValue(sheetLongest, fmt.Sprintf("B%d", row), primaryAuthor(b.Authors))
		f.SetCellValue(sheetLongest, fmt.Sprintf("C%d", row), b.Pages)
	}
	f.SetColWidth(sheetLongest, "A", "B", 32)
}

func primaryAuthor(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	return authors[0]
}

func floatOrDash(v *float64) any {
	if v == nil {
		return "-"
	}
	return *v
}

func intOrDash(v *int) any {
	if v == nil {
		return "-"
	}
	return *v
}

func dateOrDash(v *time.Time) any {
	if v == nil {
		return "-"
	}
	return v.Format("2006/01/02")
}
