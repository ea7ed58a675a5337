package handlers

import (
	"net/http"
	"time"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// AttendanceHandler handles check-in, check-out and attendance reports
type AttendanceHandler struct {
	attendance *service.AttendanceService
	loc        *time.Location
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(attendance *service.AttendanceService, loc *time.Location) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, loc: loc}
}

// CheckIn records the caller's login of today
// @Summary Check in
// @Description Records the first login of today; later check-ins keep the first time
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Attendance} "Attendance of today"
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	record, err := h.attendance.Login(r.Context(), actor.ID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, record, "checked in")
}

// CheckOut records the caller's logout and hours worked
// @Summary Check out
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Attendance} "Attendance of today"
// @Router /attendance/check-out [post]
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	record, err := h.attendance.Logout(r.Context(), actor.ID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, record, "checked out")
}

// Today returns the caller's attendance of today
// @Summary Today's attendance
// @Description data is null when there is no record yet
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Attendance} "Attendance of today"
// @Router /attendance/today [get]
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	record, err := h.attendance.Today(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, record, "")
}

// Report lists attendance in a date range with totals per status
// @Summary Attendance report
// @Description Employees only see their own records. The range defaults to the last 30 days.
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param user_id query int false "User ID (manager+)"
// @Param department query string false "Department (manager+)"
// @Param status query string false "PRESENT, ABSENT, HALF_DAY or LATE"
// @Success 200 {object} response.Envelope{data=models.AttendanceReport} "Report"
// @Failure 400 {object} response.Envelope "Invalid range"
// @Router /attendance/report [get]
func (h *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	query := service.ReportQuery{
		Department: r.URL.Query().Get("department"),
		Status:     r.URL.Query().Get("status"),
	}
	if query.From, err = queryDate(r, "from", h.loc); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.To, err = queryDate(r, "to", h.loc); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.UserID, err = queryUint(r, "user_id"); err != nil {
		response.Error(w, r, err)
		return
	}

	report, err := h.attendance.Report(r.Context(), actor, query)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, report, "")
}
