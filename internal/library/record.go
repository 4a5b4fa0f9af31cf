// Package library holds the in-memory model of a reading export: one Record
// per book, collected into an immutable Table for the life of a session.
package library

import (
	"strings"
	"time"
)

// Record is one read book from the export file. Zero values mean "absent":
// a MyRating of 0 is unrated by convention, a zero DateRead is an unknown
// finish date, Pages <= 0 is an unknown page count.
type Record struct {
	BookID        string    `json:"book_id,omitempty"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	MyRating      float64   `json:"my_rating,omitempty"`
	AvgRating     float64   `json:"avg_rating,omitempty"`
	Pages         int       `json:"pages,omitempty"`
	Publisher     string    `json:"publisher,omitempty"`
	Binding       string    `json:"binding,omitempty"`
	YearPublished int       `json:"year_published,omitempty"`
	DateRead      time.Time `json:"date_read,omitempty"`
	Shelf         string    `json:"shelf,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
}

// PrimaryAuthor returns the first author, or empty if none are known.
func (r *Record) PrimaryAuthor() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return r.Authors[0]
}

// Rated reports whether the record carries a personal rating.
// Rating 0 means "unrated", not "rated zero".
func (r *Record) Rated() bool {
	return r.MyRating > 0
}

// HasAvgRating reports whether a community rating is present.
func (r *Record) HasAvgRating() bool {
	return r.AvgRating > 0
}

// HasPages reports whether the page count is usable in length rankings and
// pages-read totals.
func (r *Record) HasPages() bool {
	return r.Pages > 0
}

// HasDateRead reports whether the finish date is known.
func (r *Record) HasDateRead() bool {
	return !r.DateRead.IsZero()
}

// HasAuthor reports whether name appears in the author list,
// compared case-insensitively.
func (r *Record) HasAuthor(name string) bool {
	for _, a := range r.Authors {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}
