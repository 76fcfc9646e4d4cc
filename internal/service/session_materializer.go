package service

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/holiday"
	"github.com/noah-isme/sma-attendance-api/pkg/recurrence"
)

const dayKeyLayout = "2006-01-02"

type accessCodeGenerator interface {
	Generate() (string, error)
}

// MaterializeOptions supplies collaborators for MaterializeSessions.
type MaterializeOptions struct {
	Calendar holiday.Calendar
	Codes    accessCodeGenerator
	Location *time.Location
}

// MaterializeSessions turns a recurrence rule into dated, numbered candidates.
// Holidays are dropped or tagged per rule; make-up dates inside the window are
// always kept. The result is chronological and may be empty.
func MaterializeSessions(rule models.RecurrenceRule, semesterStart, semesterEnd time.Time, opts MaterializeOptions) ([]models.GeneratedSession, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	startClock, endClock, err := validateRule(rule)
	if err != nil {
		return nil, err
	}

	window := recurrence.EffectiveWindow(
		recurrence.DateOnly(rule.StartDate, loc),
		recurrence.DateOnly(rule.EndDate, loc),
		recurrence.DateOnly(semesterStart, loc),
		recurrence.DateOnly(semesterEnd, loc),
	)
	if window.Empty() {
		return []models.GeneratedSession{}, nil
	}

	byDay := make(map[string]int)
	sessions := make([]models.GeneratedSession, 0)
	for _, date := range recurrence.ExpandWindow(rule.DaysOfWeek, window) {
		candidate := models.GeneratedSession{Date: date}
		tagHoliday(&candidate, opts.Calendar)
		if candidate.IsHoliday && rule.ExcludeHolidays {
			continue
		}
		byDay[date.Format(dayKeyLayout)] = len(sessions)
		sessions = append(sessions, candidate)
	}

	for _, raw := range rule.MakeUpDates {
		date := recurrence.DateOnly(raw, loc)
		if !window.Contains(date) {
			continue
		}
		key := date.Format(dayKeyLayout)
		if _, exists := byDay[key]; exists {
			continue
		}
		candidate := models.GeneratedSession{Date: date, IsMakeUp: true}
		tagHoliday(&candidate, opts.Calendar)
		byDay[key] = len(sessions)
		sessions = append(sessions, candidate)
	}

	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Date.Before(sessions[j].Date) })

	dates := make([]time.Time, len(sessions))
	for i := range sessions {
		dates[i] = sessions[i].Date
	}
	weeks := recurrence.AssignWeekNumbers(dates, window.Start)

	for i := range sessions {
		s := &sessions[i]
		s.WeekNumber = weeks[i]
		s.StartAt = startClock.On(s.Date, loc)
		s.EndAt = endClock.On(s.Date, loc)
		s.Room = rule.Room
		s.CheckInMethod = rule.CheckInMethod
		if rule.CheckInMethod == models.CheckInCode && opts.Codes != nil {
			code, err := newAccessCode(opts.Codes)
			if err != nil {
				return nil, err
			}
			s.AccessCode = &code
		}
	}
	return sessions, nil
}

// FilterNewSessions drops candidates whose calendar day already has a session
// for the course, and collapses same-day duplicates within the batch.
func FilterNewSessions(candidates []models.GeneratedSession, existing []models.ClassSession) ([]models.GeneratedSession, int) {
	taken := make(map[string]struct{}, len(existing))
	for _, session := range existing {
		taken[session.SessionDate.Format(dayKeyLayout)] = struct{}{}
	}
	toCreate := make([]models.GeneratedSession, 0, len(candidates))
	skipped := 0
	for _, candidate := range candidates {
		key := candidate.Date.Format(dayKeyLayout)
		if _, ok := taken[key]; ok {
			skipped++
			continue
		}
		taken[key] = struct{}{}
		toCreate = append(toCreate, candidate)
	}
	return toCreate, skipped
}

func newAccessCode(codes accessCodeGenerator) (string, error) {
	code, err := codes.Generate()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access code")
	}
	return code, nil
}

// weekForDate numbers a single session consistently with the course's
// existing sessions. Weeks are whole-week buckets from anchor; a date sharing
// a bucket with an existing session takes its week, otherwise the week is
// offset from the closest preceding session (or the first one when none
// precedes). Without existing sessions the bucket itself is used.
func weekForDate(date, anchor time.Time, existing []models.ClassSession) int {
	target := floorWeeks(anchor, date)
	var (
		ref       *models.ClassSession
		refBucket int
		preceding bool
	)
	for i := range existing {
		session := &existing[i]
		if session.Week <= 0 {
			continue
		}
		bucket := floorWeeks(anchor, session.SessionDate)
		if bucket == target {
			return session.Week
		}
		before := bucket < target
		switch {
		case ref == nil,
			before && (!preceding || bucket > refBucket),
			!before && !preceding && bucket < refBucket:
			ref, refBucket, preceding = session, bucket, before
		}
	}
	if ref == nil {
		if target < 0 {
			return 1
		}
		return target + 1
	}
	week := ref.Week + target - refBucket
	if week < 1 {
		week = 1
	}
	return week
}

func floorWeeks(anchor, date time.Time) int {
	days := recurrence.DaysBetween(anchor, date)
	weeks := days / 7
	if days%7 != 0 && days < 0 {
		weeks--
	}
	return weeks
}

func validateRule(rule models.RecurrenceRule) (recurrence.Clock, recurrence.Clock, error) {
	if len(rule.DaysOfWeek) == 0 {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Clone(appErrors.ErrValidation, "at least one weekday is required")
	}
	for _, day := range rule.DaysOfWeek {
		if day < time.Sunday || day > time.Saturday {
			return recurrence.Clock{}, recurrence.Clock{}, appErrors.Clone(appErrors.ErrValidation, "weekday must be between 0 (Sunday) and 6 (Saturday)")
		}
	}
	if !rule.StartDate.Before(rule.EndDate) {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Clone(appErrors.ErrValidation, "start date must be before end date")
	}
	if !rule.CheckInMethod.Valid() {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Clone(appErrors.ErrValidation, "unsupported check-in method")
	}
	startClock, endClock, err := parseClockRange(rule.StartTime, rule.EndTime)
	if err != nil {
		return recurrence.Clock{}, recurrence.Clock{}, err
	}
	return startClock, endClock, nil
}

func parseClockRange(start, end string) (recurrence.Clock, recurrence.Clock, error) {
	startClock, err := recurrence.ParseClock(start)
	if err != nil {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start time must be HH:mm")
	}
	endClock, err := recurrence.ParseClock(end)
	if err != nil {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end time must be HH:mm")
	}
	if !startClock.Before(endClock) {
		return recurrence.Clock{}, recurrence.Clock{}, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return startClock, endClock, nil
}

func tagHoliday(candidate *models.GeneratedSession, calendar holiday.Calendar) {
	if calendar == nil || !calendar.IsHoliday(candidate.Date) {
		return
	}
	candidate.IsHoliday = true
	if name, ok := calendar.NameOf(candidate.Date); ok {
		candidate.HolidayName = stringPtr(name)
	}
}
