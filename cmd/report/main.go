// Command report turns a library export into insights from the terminal:
// a JSON summary on stdout, optionally an XLSX workbook and a genre-enriched
// CSV on disk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"shelfstats/internal/config"
	"shelfstats/internal/enrich"
	"shelfstats/internal/exporter"
	"shelfstats/internal/infrastructure"
	"shelfstats/internal/insights"
	"shelfstats/internal/library"
)

func main() {
	inFile := flag.String("in", "", "library export to read (.csv or .xlsx)")
	outCSV := flag.String("out-csv", "", "write the (optionally enriched) table as CSV")
	outXLSX := flag.String("out-xlsx", "", "write the XLSX report workbook")
	doEnrich := flag.Bool("enrich", false, "fetch genre labels before reporting")
	topN := flag.Int("n", 10, "size of ranked listings")
	flag.Parse()

	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "usage: report -in export.csv [-enrich] [-out-csv out.csv] [-out-xlsx report.xlsx]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	table, err := loadTable(*inFile)
	if err != nil {
		logger.Error("failed to load export", "file", *inFile, "error", err)
		os.Exit(1)
	}
	logger.Info("export loaded", "file", *inFile, "rows", table.Len())

	if *doEnrich {
		table = enrichTable(logger, cfg.Enrichment, table)
	}

	report := buildReport(table, *topN)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}

	if *outCSV != "" {
		if err := exporter.WriteCSVFile(*outCSV, table, exporter.CSVOptions{BOMPrefix: true}); err != nil {
			logger.Error("failed to write CSV", "file", *outCSV, "error", err)
			os.Exit(1)
		}
		logger.Info("CSV written", "file", *outCSV)
	}

	if *outXLSX != "" {
		if err := writeWorkbook(*outXLSX, table); err != nil {
			logger.Error("failed to write workbook", "file", *outXLSX, "error", err)
			os.Exit(1)
		}
		logger.Info("workbook written", "file", *outXLSX)
	}
}

func loadTable(path string) (*library.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return library.ParseXLSX(f)
	}
	return library.Parse(f)
}

func enrichTable(logger *slog.Logger, cfg config.EnrichmentConfig, table *library.Table) *library.Table {
	ids := enrich.EligibleIDs(table)
	if len(ids) == 0 {
		logger.Info("nothing to enrich")
		return table
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := enrich.NewFetcher(cfg, logger, nil)
	genres, report := fetcher.FetchGenres(ctx, ids, func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rfetching genres %d/%d", done, total)
	})
	fmt.Fprintln(os.Stderr)

	logger.Info("enrichment finished",
		"found", report.Found,
		"not_found", report.NotFound,
		"failed", report.Failed,
		"elapsed", report.Elapsed)
	return table.WithGenres(genres)
}

// cliReport is the JSON document printed to stdout.
type cliReport struct {
	Summary       insights.Summary     `json:"summary"`
	Streak        insights.Streak      `json:"streak"`
	BooksPerYear  []insights.YearCount `json:"books_per_year"`
	TopAuthors    []insights.NameCount `json:"top_authors"`
	TopPublishers []insights.NameCount `json:"top_publishers"`
	TopGenres     []insights.NameCount `json:"top_genres,omitempty"`
	TopRated      []insights.RatedBook `json:"top_rated"`
	LongestBooks  []insights.BookPages `json:"longest_books"`
	BindingCounts map[string]int       `json:"binding_counts"`
}

func buildReport(table *library.Table, n int) cliReport {
	report := cliReport{
		Summary:       insights.Summarize(table),
		Streak:        insights.ReadingStreak(table),
		BooksPerYear:  insights.BooksPerYear(table),
		TopAuthors:    insights.TopAuthors(table, n),
		TopPublishers: insights.TopPublishers(table, n),
		TopRated:      insights.TopRatedPersonal(table, n),
		LongestBooks:  insights.LongestBooks(table, n),
		BindingCounts: insights.BindingDistribution(table),
	}
	if table.HasGenres() {
		report.TopGenres = insights.TopGenres(table, n)
	}
	return report
}

func writeWorkbook(path string, table *library.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exporter.WriteReport(f, table); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
