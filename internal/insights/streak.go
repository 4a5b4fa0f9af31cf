package insights

import (
	"sort"
	"time"

	"shelfstats/internal/library"
)

// ReadingStreak computes the longest run of consecutive calendar days that
// each saw at least one finished book, and the single day with the most
// finished books. Records without a valid finish date are ignored. On ties
// the earliest occurrence wins. Runs in O(D log D) over distinct days.
func ReadingStreak(t *library.Table) Streak {
	perDay := make(map[time.Time]int)
	for i := range t.Rows {
		if !t.Rows[i].HasDateRead() {
			continue
		}
		perDay[dayOf(t.Rows[i].DateRead)]++
	}
	if len(perDay) == 0 {
		return Streak{}
	}

	days := make([]time.Time, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	// Longest consecutive run. A run extends while the gap between
	// neighbouring distinct days is exactly one calendar day; the first
	// maximal run encountered is kept.
	longest, runLen := 1, 1
	runStart := days[0]
	bestStart, bestEnd := days[0], days[0]
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			runLen++
			if runLen > longest {
				longest = runLen
				bestStart, bestEnd = runStart, days[i]
			}
		} else {
			runLen = 1
			runStart = days[i]
		}
	}

	// Busiest day, chronological first on ties.
	maxBooks := 0
	var maxDay time.Time
	for _, day := range days {
		if perDay[day] > maxBooks {
			maxBooks = perDay[day]
			maxDay = day
		}
	}

	return Streak{
		LongestStreakDays: longest,
		StreakStart:       &bestStart,
		StreakEnd:         &bestEnd,
		MaxBooksInOneDay:  maxBooks,
		MaxDay:            &maxDay,
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
