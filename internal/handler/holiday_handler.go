package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/holiday"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type holidayLister interface {
	Entries(year int) []holiday.Entry
}

// HolidayHandler lists the holiday calendar used for session generation.
type HolidayHandler struct {
	calendar holidayLister
	now      func() time.Time
}

// NewHolidayHandler constructs the handler.
func NewHolidayHandler(calendar holidayLister) *HolidayHandler {
	return &HolidayHandler{calendar: calendar, now: time.Now}
}

// List godoc
// @Summary Holidays of a year
// @Tags Holidays
// @Produce json
// @Param year query int false "Year, defaults to the current year"
// @Success 200 {object} response.Envelope
// @Router /holidays [get]
func (h *HolidayHandler) List(c *gin.Context) {
	year := queryInt(c, "year", h.now().Year())
	if year < 1900 || year > 2200 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year out of range"))
		return
	}
	response.JSON(c, http.StatusOK, h.calendar.Entries(year), nil)
}
