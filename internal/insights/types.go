// Package insights computes descriptive statistics over a library table.
// Every function here is pure: identical input tables produce identical
// results, so callers may memoize outputs against the table fingerprint.
//
// Aggregates distinguish "no eligible records" from a computed zero: scalar
// results carry an ok bool, ranked results come back empty.
package insights

import "time"

// YearCount is one bucket of a per-year grouping.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// NameCount is one entry of a ranked frequency table (authors, publishers,
// genres).
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RatedBook is a row of a rating-ranked listing.
type RatedBook struct {
	Title     string     `json:"title"`
	Authors   []string   `json:"authors"`
	MyRating  float64    `json:"my_rating,omitempty"`
	AvgRating float64    `json:"avg_rating,omitempty"`
	DateRead  *time.Time `json:"date_read,omitempty"`
}

// BookPages is a row of a length-ranked listing.
type BookPages struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Pages   int      `json:"pages"`
}

// PagePoint is one step of the cumulative pages series.
type PagePoint struct {
	Date            time.Time `json:"date"`
	CumulativePages int       `json:"cumulative_pages"`
}

// Summary bundles the headline metrics. Nil pointers mark no-data results.
type Summary struct {
	TotalBooks         int      `json:"total_books"`
	UniqueAuthors      int      `json:"unique_authors"`
	AvgPersonalRating  *float64 `json:"avg_personal_rating,omitempty"`
	AvgCommunityRating *float64 `json:"avg_community_rating,omitempty"`
	TotalPagesRead     *int     `json:"total_pages_read,omitempty"`
	AvgPagesPerMonth   *float64 `json:"avg_pages_per_month,omitempty"`
	AvgPagesPerBook    *float64 `json:"avg_pages_per_book,omitempty"`
}

// Streak reports the longest run of consecutive reading days and the busiest
// single day. Nil day markers mean no valid dates existed.
type Streak struct {
	LongestStreakDays int        `json:"longest_streak_days"`
	StreakStart       *time.Time `json:"streak_start,omitempty"`
	StreakEnd         *time.Time `json:"streak_end,omitempty"`
	MaxBooksInOneDay  int        `json:"max_books_in_one_day"`
	MaxDay            *time.Time `json:"max_day,omitempty"`
}
