package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// Handlers groups every API handler mounted by RegisterRoutes.
type Handlers struct {
	Sessions      *SessionHandler
	Attendance    *AttendanceHandler
	Excuses       *CorrectionHandler
	Appeals       *CorrectionHandler
	Reports       *ReportHandler
	Holidays      *HolidayHandler
	Notifications *NotificationHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the JWT-protected API under api.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, auth gin.HandlerFunc) {
	staff := middleware.RequireStaff()
	student := middleware.RequireRoles(models.RoleStudent)

	api.Use(auth)

	courses := api.Group("/courses/:courseId")
	courses.POST("/sessions/generate", staff, h.Sessions.Generate)
	courses.POST("/sessions", staff, h.Sessions.Create)
	courses.GET("/sessions", h.Sessions.List)
	courses.GET("/report", staff, h.Reports.CourseReport)
	courses.GET("/report/export", staff, h.Reports.Export)
	courses.GET("/students/:studentId/report", h.Reports.StudentReport)
	courses.GET("/policy", h.Reports.Policy)
	courses.PUT("/policy", staff, h.Reports.UpdatePolicy)

	sessions := api.Group("/sessions/:id")
	sessions.POST("/open", staff, h.Attendance.Open)
	sessions.POST("/close", staff, h.Attendance.Close)
	sessions.POST("/code", staff, h.Attendance.RegenerateCode)
	sessions.POST("/check-in", student, h.Attendance.CheckIn)
	sessions.GET("/attendance", staff, h.Attendance.Roster)
	sessions.PUT("/attendance/:studentId", staff, h.Attendance.Override)

	for path, corrections := range map[string]*CorrectionHandler{"/excuses": h.Excuses, "/appeals": h.Appeals} {
		group := api.Group(path)
		group.POST("", student, corrections.Create)
		group.GET("", corrections.List)
		group.GET("/:id", corrections.Get)
		group.POST("/:id/decision", staff, corrections.Decide)
	}

	api.GET("/holidays", h.Holidays.List)
	api.GET("/notifications", h.Notifications.List)
	api.GET("/system/metrics", staff, h.Metrics.Snapshot)
}
