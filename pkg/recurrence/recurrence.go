// Package recurrence expands weekly class rules into concrete calendar dates.
//
// All helpers operate on calendar days: the time-of-day component of every
// input is ignored and results are midnight values in the location of the
// rule start date.
package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// ErrInvalidClock indicates a time string is not a 24-hour HH:mm value.
var ErrInvalidClock = errors.New("recurrence: time must be HH:mm (24-hour)")

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Window is an inclusive span of calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window contains no days.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	day = DateOnly(day, w.Start.Location())
	return !day.Before(w.Start) && !day.After(w.End)
}

// EffectiveWindow intersects the rule bounds with the semester bounds.
func EffectiveWindow(ruleStart, ruleEnd, semesterStart, semesterEnd time.Time) Window {
	loc := ruleStart.Location()
	start := DateOnly(ruleStart, loc)
	if s := DateOnly(semesterStart, loc); s.After(start) {
		start = s
	}
	end := DateOnly(ruleEnd, loc)
	if e := DateOnly(semesterEnd, loc); e.Before(end) {
		end = e
	}
	return Window{Start: start, End: end}
}

// Expand lists every date inside the effective window whose weekday is in days.
// Duplicate weekdays are ignored and the result is ascending. An inverted
// window yields an empty slice.
func Expand(days []time.Weekday, ruleStart, ruleEnd, semesterStart, semesterEnd time.Time) []time.Time {
	window := EffectiveWindow(ruleStart, ruleEnd, semesterStart, semesterEnd)
	return ExpandWindow(days, window)
}

// ExpandWindow is Expand over an already clipped window.
func ExpandWindow(days []time.Weekday, window Window) []time.Time {
	if window.Empty() {
		return []time.Time{}
	}

	weekdays := uniqueWeekdays(days)
	dates := make([]time.Time, 0)
	// cursor walks the Sundays of every week touching the window
	for cursor := window.Start.AddDate(0, 0, -int(window.Start.Weekday())); !cursor.After(window.End); cursor = cursor.AddDate(0, 0, 7) {
		for _, day := range weekdays {
			candidate := cursor.AddDate(0, 0, int(day))
			if candidate.Before(window.Start) || candidate.After(window.End) {
				continue
			}
			dates = append(dates, candidate)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// AssignWeekNumbers buckets sorted dates by whole weeks elapsed since anchor
// and renumbers the buckets 1..N in order of first appearance.
func AssignWeekNumbers(dates []time.Time, anchor time.Time) []int {
	weeks := make([]int, len(dates))
	buckets := make(map[int]int)
	next := 1
	for i, date := range dates {
		bucket := floorDiv(DaysBetween(anchor, date), 7)
		week, ok := buckets[bucket]
		if !ok {
			week = next
			buckets[bucket] = week
			next++
		}
		weeks[i] = week
	}
	return weeks
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// DateOnly truncates t to midnight of its calendar day in loc.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b share a calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour HH:mm value.
func ParseClock(raw string) (Clock, error) {
	match := clockPattern.FindStringSubmatch(raw)
	if match == nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	return Clock{Hour: hour, Minute: minute}, nil
}

// Before reports whether c is earlier in the day than other.
func (c Clock) Before(other Clock) bool {
	return c.Minutes() < other.Minutes()
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On combines the calendar day of day with the clock in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = day.Location()
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func uniqueWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
