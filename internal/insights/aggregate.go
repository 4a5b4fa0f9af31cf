package insights

import (
	"sort"
	"strings"
	"time"

	"shelfstats/internal/library"
)

// TotalBooks returns the number of records in the table.
func TotalBooks(t *library.Table) int {
	return t.Len()
}

// AveragePersonalRating is the mean personal rating over rated records.
// Records with rating 0 are unrated and excluded; ok is false when no rated
// records exist.
func AveragePersonalRating(t *library.Table) (float64, bool) {
	var sum float64
	var n int
	for i := range t.Rows {
		if t.Rows[i].Rated() {
			sum += t.Rows[i].MyRating
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AverageCommunityRating is the mean community rating over records that
// carry one.
func AverageCommunityRating(t *library.Table) (float64, bool) {
	var sum float64
	var n int
	for i := range t.Rows {
		if t.Rows[i].HasAvgRating() {
			sum += t.Rows[i].AvgRating
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// UniqueAuthorCount counts distinct author names across all author lists,
// compared case-insensitively.
func UniqueAuthorCount(t *library.Table) int {
	seen := make(map[string]struct{})
	for i := range t.Rows {
		for _, a := range t.Rows[i].Authors {
			seen[strings.ToLower(a)] = struct{}{}
		}
	}
	return len(seen)
}

// BooksPerYear groups records by the year of their finish date, ascending.
// Records without a valid date are excluded; years with zero books are
// omitted.
func BooksPerYear(t *library.Table) []YearCount {
	counts := make(map[int]int)
	for i := range t.Rows {
		if t.Rows[i].HasDateRead() {
			counts[t.Rows[i].DateRead.Year()]++
		}
	}
	return sortYearCounts(counts)
}

// BooksByPublicationYear groups records by publication year, ascending,
// excluding records with a missing or invalid year.
func BooksByPublicationYear(t *library.Table) []YearCount {
	counts := make(map[int]int)
	for i := range t.Rows {
		if t.Rows[i].YearPublished > 0 {
			counts[t.Rows[i].YearPublished]++
		}
	}
	return sortYearCounts(counts)
}

func sortYearCounts(counts map[int]int) []YearCount {
	out := make([]YearCount, 0, len(counts))
	for year, count := range counts {
		out = append(out, YearCount{Year: year, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// TopAuthors ranks authors by how many records they appear on, counting
// co-authors individually. Descending by count, ties broken by name
// ascending, truncated to n.
func TopAuthors(t *library.Table, n int) []NameCount {
	counts := make(map[string]int)
	display := make(map[string]string)
	for i := range t.Rows {
		for _, a := range t.Rows[i].Authors {
			key := strings.ToLower(a)
			if _, ok := display[key]; !ok {
				display[key] = a
			}
			counts[key]++
		}
	}
	return rankCounts(counts, display, n)
}

// TopPublishers ranks publishers by record count. Publisher names are
// normalized to title case at load time, so grouping is on the normalized
// form. Records without a publisher are excluded.
func TopPublishers(t *library.Table, n int) []NameCount {
	counts := make(map[string]int)
	for i := range t.Rows {
		if p := t.Rows[i].Publisher; p != "" {
			counts[p]++
		}
	}
	return rankCounts(counts, nil, n)
}

// TopGenres ranks genre labels across enriched records. Records without a
// genre label are excluded, so the result is empty before enrichment.
func TopGenres(t *library.Table, n int) []NameCount {
	counts := make(map[string]int)
	for i := range t.Rows {
		for _, g := range t.Rows[i].Genres {
			counts[g]++
		}
	}
	return rankCounts(counts, nil, n)
}

// BindingDistribution maps each binding label to its record count, with no
// truncation. Records without a binding are excluded.
func BindingDistribution(t *library.Table) map[string]int {
	counts := make(map[string]int)
	for i := range t.Rows {
		if b := t.Rows[i].Binding; b != "" {
			counts[b]++
		}
	}
	return counts
}

// rankCounts orders a frequency table descending by count with
// name-ascending tie-break and truncates to n (n <= 0 means no truncation).
func rankCounts(counts map[string]int, display map[string]string, n int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for key, count := range counts {
		name := key
		if display != nil {
			name = display[key]
		}
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopRatedPersonal lists the n highest personally rated books, descending,
// ties broken by title ascending. Unrated records are excluded.
func TopRatedPersonal(t *library.Table, n int) []RatedBook {
	return topRated(t, n, func(r *library.Record) (float64, bool) {
		return r.MyRating, r.Rated()
	})
}

// TopRatedCommunity lists the n highest community-rated books.
func TopRatedCommunity(t *library.Table, n int) []RatedBook {
	return topRated(t, n, func(r *library.Record) (float64, bool) {
		return r.AvgRating, r.HasAvgRating()
	})
}

func topRated(t *library.Table, n int, key func(*library.Record) (float64, bool)) []RatedBook {
	type scored struct {
		book  RatedBook
		score float64
	}
	var books []scored
	for i := range t.Rows {
		r := &t.Rows[i]
		score, ok := key(r)
		if !ok {
			continue
		}
		books = append(books, scored{book: ratedBook(r), score: score})
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].score != books[j].score {
			return books[i].score > books[j].score
		}
		return books[i].book.Title < books[j].book.Title
	})
	if n > 0 && len(books) > n {
		books = books[:n]
	}
	out := make([]RatedBook, len(books))
	for i := range books {
		out[i] = books[i].book
	}
	return out
}

func ratedBook(r *library.Record) RatedBook {
	b := RatedBook{
		Title:     r.Title,
		Authors:   r.Authors,
		MyRating:  r.MyRating,
		AvgRating: r.AvgRating,
	}
	if r.HasDateRead() {
		d := r.DateRead
		b.DateRead = &d
	}
	return b
}

// LongestBooks lists the n longest books by page count descending, ties
// broken by title ascending. Records without a valid page count are
// excluded.
func LongestBooks(t *library.Table, n int) []BookPages {
	return rankByPages(t, n, true)
}

// ShortestBooks lists the n shortest books by page count ascending.
func ShortestBooks(t *library.Table, n int) []BookPages {
	return rankByPages(t, n, false)
}

func rankByPages(t *library.Table, n int, longest bool) []BookPages {
	var books []BookPages
	for i := range t.Rows {
		r := &t.Rows[i]
		if !r.HasPages() {
			continue
		}
		books = append(books, BookPages{Title: r.Title, Authors: r.Authors, Pages: r.Pages})
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].Pages != books[j].Pages {
			if longest {
				return books[i].Pages > books[j].Pages
			}
			return books[i].Pages < books[j].Pages
		}
		return books[i].Title < books[j].Title
	})
	if n > 0 && len(books) > n {
		books = books[:n]
	}
	return books
}

// CumulativePages returns the running sum of pages over records ordered by
// finish date ascending. Records missing a date or page count are excluded
// from the series but never reset it.
func CumulativePages(t *library.Table) []PagePoint {
	type dated struct {
		date  time.Time
		title string
		pages int
	}
	var rows []dated
	for i := range t.Rows {
		r := &t.Rows[i]
		if r.HasDateRead() && r.HasPages() {
			rows = append(rows, dated{date: r.DateRead, title: r.Title, pages: r.Pages})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.Before(rows[j].date)
		}
		return rows[i].title < rows[j].title
	})

	out := make([]PagePoint, 0, len(rows))
	var sum int
	for _, row := range rows {
		sum += row.pages
		out = append(out, PagePoint{Date: row.date, CumulativePages: sum})
	}
	return out
}

// AveragePagesPerMonth divides the pages read across dated records by the
// number of distinct calendar months those dates span. ok is false when no
// record has both a valid date and page count.
func AveragePagesPerMonth(t *library.Table) (float64, bool) {
	months := make(map[int]struct{})
	var total int
	for i := range t.Rows {
		r := &t.Rows[i]
		if r.HasDateRead() && r.HasPages() {
			months[r.DateRead.Year()*12+int(r.DateRead.Month())] = struct{}{}
			total += r.Pages
		}
	}
	if len(months) == 0 {
		return 0, false
	}
	return float64(total) / float64(len(months)), true
}

// TotalPagesRead sums valid page counts over records with a valid finish
// date, so it always equals the final value of the cumulative series.
func TotalPagesRead(t *library.Table) (int, bool) {
	var total int
	var any bool
	for i := range t.Rows {
		r := &t.Rows[i]
		if r.HasDateRead() && r.HasPages() {
			total += r.Pages
			any = true
		}
	}
	return total, any
}

// AveragePagesPerBook divides the valid pages total over all records,
// dated or not, by the total number of records, counting page-less books
// as zero-length, as the reading-pace figure treats them.
func AveragePagesPerBook(t *library.Table) (float64, bool) {
	if t.Len() == 0 {
		return 0, false
	}
	var total int
	var any bool
	for i := range t.Rows {
		if t.Rows[i].HasPages() {
			total += t.Rows[i].Pages
			any = true
		}
	}
	if !any {
		return 0, false
	}
	return float64(total) / float64(t.Len()), true
}

// BooksByAuthor lists records whose author list contains name
// (case-insensitive), ordered by finish date descending with undated records
// last, ties broken by title ascending.
func BooksByAuthor(t *library.Table, name string) []RatedBook {
	var out []RatedBook
	for i := range t.Rows {
		if t.Rows[i].HasAuthor(name) {
			out = append(out, ratedBook(&t.Rows[i]))
		}
	}
	sortByDateDesc(out)
	return out
}

// BooksPublishedIn lists records published in the given year, ordered by
// finish date descending.
func BooksPublishedIn(t *library.Table, year int) []RatedBook {
	var out []RatedBook
	for i := range t.Rows {
		if t.Rows[i].YearPublished == year {
			out = append(out, ratedBook(&t.Rows[i]))
		}
	}
	sortByDateDesc(out)
	return out
}

func sortByDateDesc(books []RatedBook) {
	sort.Slice(books, func(i, j int) bool {
		di, dj := books[i].DateRead, books[j].DateRead
		switch {
		case di == nil && dj == nil:
			return books[i].Title < books[j].Title
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.After(*dj)
		default:
			return books[i].Title < books[j].Title
		}
	})
}

// Summarize assembles the headline metrics for a table.
func Summarize(t *library.Table) Summary {
	s := Summary{
		TotalBooks:    TotalBooks(t),
		UniqueAuthors: UniqueAuthorCount(t),
	}
	if v, ok := AveragePersonalRating(t); ok {
		s.AvgPersonalRating = &v
	}
	if v, ok := AverageCommunityRating(t); ok {
		s.AvgCommunityRating = &v
	}
	if v, ok := TotalPagesRead(t); ok {
		s.TotalPagesRead = &v
	}
	if v, ok := AveragePagesPerMonth(t); ok {
		s.AvgPagesPerMonth = &v
	}
	if v, ok := AveragePagesPerBook(t); ok {
		s.AvgPagesPerBook = &v
	}
	return s
}
