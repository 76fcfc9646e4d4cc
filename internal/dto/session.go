package dto

import "github.com/noah-isme/sma-attendance-api/internal/models"

// GenerateSessionsRequest is a weekly recurrence rule posted by an instructor.
type GenerateSessionsRequest struct {
	DaysOfWeek      []int    `json:"daysOfWeek" validate:"required,min=1,dive,min=0,max=6"`
	StartDate       string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate         string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	StartTime       string   `json:"startTime" validate:"required,hhmm"`
	EndTime         string   `json:"endTime" validate:"required,hhmm"`
	ExcludeHolidays *bool    `json:"excludeHolidays"`
	Room            *string  `json:"room,omitempty" validate:"omitempty,max=64"`
	CheckInMethod   string   `json:"checkInMethod" validate:"required,checkin_method"`
	MakeUpDates     []string `json:"makeUpDates,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
}

// CreateSessionRequest schedules a single session on an explicit date.
type CreateSessionRequest struct {
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string  `json:"startTime" validate:"required,hhmm"`
	EndTime       string  `json:"endTime" validate:"required,hhmm"`
	Room          *string `json:"room,omitempty" validate:"omitempty,max=64"`
	CheckInMethod string  `json:"checkInMethod" validate:"required,checkin_method"`
	IsMakeUp      bool    `json:"isMakeUp"`
}

// GenerateSessionsResult reports what a generation run produced.
type GenerateSessionsResult struct {
	Preview    bool                      `json:"preview"`
	Total      int                       `json:"total"`
	Skipped    int                       `json:"skipped"`
	Created    []models.ClassSession     `json:"created,omitempty"`
	Candidates []models.GeneratedSession `json:"candidates,omitempty"`
}
