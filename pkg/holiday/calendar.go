// Package holiday answers whether a calendar day is a public holiday.
package holiday

import (
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar is consulted by session generation for holiday lookups.
type Calendar interface {
	IsHoliday(date time.Time) bool
	NameOf(date time.Time) (string, bool)
}

// Entry is a single holiday row.
type Entry struct {
	Date       string `json:"date"`
	Name       string `json:"name"`
	IsNational bool   `json:"isNational"`
}

// Year returns the entry's year, or 0 when the date is malformed.
func (e Entry) Year() int {
	t, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return 0
	}
	return t.Year()
}

// StaticCalendar is a fixed lookup table. Years outside the table are never holidays.
type StaticCalendar struct {
	byDate map[string][]Entry
}

// NewStaticCalendar loads the built-in table, restricted to years when any are given.
func NewStaticCalendar(years ...int) *StaticCalendar {
	allowed := make(map[int]struct{}, len(years))
	for _, y := range years {
		allowed[y] = struct{}{}
	}
	entries := make([]Entry, 0, len(koreanHolidays))
	for _, entry := range koreanHolidays {
		if len(allowed) > 0 {
			if _, ok := allowed[entry.Year()]; !ok {
				continue
			}
		}
		entries = append(entries, entry)
	}
	return NewCalendarFromEntries(entries)
}

// NewCalendarFromEntries builds a calendar from arbitrary rows.
func NewCalendarFromEntries(entries []Entry) *StaticCalendar {
	c := &StaticCalendar{byDate: make(map[string][]Entry)}
	return c.WithEntries(entries...)
}

// WithEntries adds rows such as school-specific days off.
func (c *StaticCalendar) WithEntries(entries ...Entry) *StaticCalendar {
	for _, entry := range entries {
		if _, err := time.Parse(dateLayout, entry.Date); err != nil {
			continue
		}
		c.byDate[entry.Date] = append(c.byDate[entry.Date], entry)
	}
	return c
}

// IsHoliday matches on the calendar day of date in its own location.
func (c *StaticCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.byDate[date.Format(dateLayout)]
	return ok
}

// NameOf returns the holiday name; coinciding holidays are joined.
func (c *StaticCalendar) NameOf(date time.Time) (string, bool) {
	entries, ok := c.byDate[date.Format(dateLayout)]
	if !ok {
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return strings.Join(names, ", "), true
}

// Entries lists the rows for year in date order.
func (c *StaticCalendar) Entries(year int) []Entry {
	out := make([]Entry, 0)
	for _, entries := range c.byDate {
		for _, entry := range entries {
			if entry.Year() == year {
				out = append(out, entry)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].Name < out[j].Name
		}
		return out[i].Date < out[j].Date
	})
	return out
}
