package service

import (
	"time"

	"standup-desk/internal/models"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	ID         uint
	Role       models.Role
	Department string
}

// Authorize is the single role policy: it allows roles ranked at or above
// required and denies everything else, naming the required role.
func Authorize(role, required models.Role) error {
	if role.AtLeast(required) {
		return nil
	}
	return &Error{
		Code:    CodeForbidden,
		Message: "insufficient permissions",
		Details: map[string]interface{}{"required_role": required},
	}
}

// IsManager reports whether the actor may act on other users' records
func (a Actor) IsManager() bool {
	return a.Role.AtLeast(models.RoleManager)
}

// scopeDepartment returns the department a listing is limited to: managers
// see their own department, admins see every department
func (a Actor) scopeDepartment() string {
	if a.Role.AtLeast(models.RoleAdmin) {
		return ""
	}
	return a.Department
}

// Clock supplies the current time and the business time zone
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock returns a clock reading the wall time in loc
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Now: time.Now, Location: loc}
}

// now returns the current time in the business time zone
func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// today returns midnight of the current business day
func (c Clock) today() time.Time {
	return startOfDay(c.now())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// LateSubmissionHour is the local hour from which a submission counts as late
const LateSubmissionHour = 19

// IsLateSubmission reports whether a submission at t (business time) is late
func IsLateSubmission(t time.Time) bool {
	return t.Hour() >= LateSubmissionHour
}

// sameDate compares calendar dates. DATE columns come back as UTC midnight,
// so the instants of equal dates differ across locations.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
