package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfstats/internal/library"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testTable() *library.Table {
	return library.NewTable([]library.Record{
		{
			BookID: "1", Title: "Dune", Authors: []string{"Frank Herbert"},
			MyRating: 5, AvgRating: 4.27, Pages: 412, Publisher: "Chilton Books",
			Binding: "Paperback", YearPublished: 1965, DateRead: day(2023, 6, 10),
		},
		{
			BookID: "2", Title: "Good Omens", Authors: []string{"Terry Pratchett", "Neil Gaiman"},
			MyRating: 4, AvgRating: 4.24, Pages: 288, Publisher: "Workman",
			Binding: "Paperback", YearPublished: 1990, DateRead: day(2023, 6, 11),
		},
		{
			BookID: "3", Title: "American Gods", Authors: []string{"Neil Gaiman"},
			MyRating: 0, AvgRating: 4.11, Pages: 635, Publisher: "Harper",
			Binding: "Hardcover", YearPublished: 2001, DateRead: day(2024, 1, 5),
		},
		{
			BookID: "4", Title: "Mystery Novel", Authors: []string{"Jane Doe"},
			MyRating: 3, AvgRating: 0, Pages: 0, Publisher: "",
			Binding: "Kindle Edition", YearPublished: 0,
		},
	})
}

func TestTotalBooks(t *testing.T) {
	table := testTable()
	assert.Equal(t, table.Len(), TotalBooks(table))
}

func TestAveragePersonalRating(t *testing.T) {
	avg, ok := AveragePersonalRating(testTable())
	require.True(t, ok)
	// Book 3 is unrated (rating 0) and excluded.
	assert.InDelta(t, (5.0+4.0+3.0)/3.0, avg, 1e-9)
}

func TestAveragePersonalRatingNoData(t *testing.T) {
	table := library.NewTable([]library.Record{
		{Title: "Unrated", Authors: []string{"A"}, MyRating: 0},
	})
	_, ok := AveragePersonalRating(table)
	assert.False(t, ok)

	_, ok = AveragePersonalRating(library.NewTable(nil))
	assert.False(t, ok)
}

func TestAverageCommunityRating(t *testing.T) {
	avg, ok := AverageCommunityRating(testTable())
	require.True(t, ok)
	assert.InDelta(t, (4.27+4.24+4.11)/3.0, avg, 1e-9)
}

func TestUniqueAuthorCount(t *testing.T) {
	assert.Equal(t, 4, UniqueAuthorCount(testTable()))

	// Case-insensitive comparison collapses duplicates.
	table := library.NewTable([]library.Record{
		{Title: "A", Authors: []string{"Neil Gaiman"}},
		{Title: "B", Authors: []string{"neil gaiman"}},
	})
	assert.Equal(t, 1, UniqueAuthorCount(table))
}

func TestBooksPerYear(t *testing.T) {
	got := BooksPerYear(testTable())
	// Book 4 has no date and is excluded; years ascend.
	assert.Equal(t, []YearCount{{2023, 2}, {2024, 1}}, got)
}

func TestBooksByPublicationYear(t *testing.T) {
	got := BooksByPublicationYear(testTable())
	assert.Equal(t, []YearCount{{1965, 1}, {1990, 1}, {2001, 1}}, got)
}

func TestTopAuthors(t *testing.T) {
	got := TopAuthors(testTable(), 2)
	require.Len(t, got, 2)
	// Gaiman appears twice (once as co-author); tie between Herbert,
	// Pratchett and Doe broken by name ascending.
	assert.Equal(t, NameCount{"Neil Gaiman", 2}, got[0])
	assert.Equal(t, NameCount{"Frank Herbert", 1}, got[1])
}

func TestTopAuthorsTruncation(t *testing.T) {
	full := TopAuthors(testTable(), 0)
	top := TopAuthors(testTable(), 3)
	require.Len(t, top, 3)
	assert.Equal(t, full[:3], top)
}

func TestTopPublishers(t *testing.T) {
	got := TopPublishers(testTable(), 10)
	// Book 4 has no publisher; counts tie, names ascend.
	assert.Equal(t, []NameCount{{"Chilton Books", 1}, {"Harper", 1}, {"Workman", 1}}, got)
}

func TestBindingDistribution(t *testing.T) {
	got := BindingDistribution(testTable())
	assert.Equal(t, map[string]int{"Paperback": 2, "Hardcover": 1, "Kindle Edition": 1}, got)
}

func TestTopRatedPersonal(t *testing.T) {
	got := TopRatedPersonal(testTable(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Dune", got[0].Title)
	assert.Equal(t, "Good Omens", got[1].Title)
}

func TestTopRatedCommunityExcludesMissing(t *testing.T) {
	got := TopRatedCommunity(testTable(), 10)
	require.Len(t, got, 3)
	for _, b := range got {
		assert.NotEqual(t, "Mystery Novel", b.Title)
	}
}

func TestLongestShortestBooks(t *testing.T) {
	longest := LongestBooks(testTable(), 2)
	require.Len(t, longest, 2)
	assert.Equal(t, "American Gods", longest[0].Title)
	assert.Equal(t, "Dune", longest[1].Title)

	shortest := ShortestBooks(testTable(), 2)
	require.Len(t, shortest, 2)
	assert.Equal(t, "Good Omens", shortest[0].Title)
	assert.Equal(t, "Dune", shortest[1].Title)
}

func TestCumulativePages(t *testing.T) {
	got := CumulativePages(testTable())
	require.Len(t, got, 3)

	// Non-decreasing, final value equals the sum of dated page counts.
	prev := 0
	for _, p := range got {
		assert.GreaterOrEqual(t, p.CumulativePages, prev)
		prev = p.CumulativePages
	}
	assert.Equal(t, 412+288+635, got[len(got)-1].CumulativePages)
	assert.Equal(t, day(2023, 6, 10), got[0].Date)
}

func TestAveragePagesPerMonth(t *testing.T) {
	avg, ok := AveragePagesPerMonth(testTable())
	require.True(t, ok)
	// Two distinct months: 2023-06 (412+288) and 2024-01 (635).
	assert.InDelta(t, float64(412+288+635)/2.0, avg, 1e-9)
}

func TestTotalPagesRead(t *testing.T) {
	total, ok := TotalPagesRead(testTable())
	require.True(t, ok)
	assert.Equal(t, 412+288+635, total)
}

func TestTotalPagesReadExcludesUndatedRows(t *testing.T) {
	table := library.NewTable([]library.Record{
		{Title: "Dated", Authors: []string{"A"}, Pages: 100, DateRead: day(2023, 1, 1)},
		{Title: "Undated", Authors: []string{"B"}, Pages: 999},
	})

	total, ok := TotalPagesRead(table)
	require.True(t, ok)
	assert.Equal(t, 100, total)

	// The total always matches the end of the cumulative series.
	series := CumulativePages(table)
	require.NotEmpty(t, series)
	assert.Equal(t, total, series[len(series)-1].CumulativePages)

	// The per-book average still counts every record.
	avg, ok := AveragePagesPerBook(table)
	require.True(t, ok)
	assert.InDelta(t, float64(100+999)/2.0, avg, 1e-9)
}

func TestTopGenresBeforeAndAfterEnrichment(t *testing.T) {
	table := testTable()
	assert.Empty(t, TopGenres(table, 10))

	enriched := table.WithGenres(map[string][]string{
		"1": {"Science Fiction", "Classics"},
		"2": {"Fantasy"},
		"3": {"Fantasy"},
	})
	got := TopGenres(enriched, 2)
	assert.Equal(t, []NameCount{{"Fantasy", 2}, {"Classics", 1}}, got)
}

func TestBooksByAuthor(t *testing.T) {
	got := BooksByAuthor(testTable(), "neil gaiman")
	require.Len(t, got, 2)
	// Date descending: American Gods (2024) before Good Omens (2023).
	assert.Equal(t, "American Gods", got[0].Title)
	assert.Equal(t, "Good Omens", got[1].Title)
}

func TestBooksPublishedIn(t *testing.T) {
	got := BooksPublishedIn(testTable(), 1965)
	require.Len(t, got, 1)
	assert.Equal(t, "Dune", got[0].Title)
}

func TestSummarizeEmptyTable(t *testing.T) {
	s := Summarize(library.NewTable(nil))
	assert.Equal(t, 0, s.TotalBooks)
	assert.Nil(t, s.AvgPersonalRating)
	assert.Nil(t, s.AvgCommunityRating)
	assert.Nil(t, s.TotalPagesRead)
	assert.Nil(t, s.AvgPagesPerMonth)
	assert.Nil(t, s.AvgPagesPerBook)
}

func TestAggregatorIdempotence(t *testing.T) {
	table := testTable()
	first := Summarize(table)
	second := Summarize(table)
	assert.Equal(t, first, second)
	assert.Equal(t, TopAuthors(table, 5), TopAuthors(table, 5))
	assert.Equal(t, CumulativePages(table), CumulativePages(table))
}
