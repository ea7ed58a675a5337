package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/lib/pq"
)

// User represents an employee, manager or admin account
type User struct {
	ID           uint       `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Role         Role       `json:"role" db:"role"`
	Department   string     `json:"department" db:"department"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns first and last name joined by a space
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Session represents an issued token (access or refresh) that has not been revoked
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         uint      `json:"user_id" db:"user_id"`
	SessionID      string    `json:"session_id" db:"session_id"` // Groups access and refresh tokens from same login
	JTI            string    `json:"jti" db:"jti"`
	TokenType      string    `json:"token_type" db:"token_type"` // "access" or "refresh"
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	IPAddress      string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      string    `json:"user_agent,omitempty" db:"user_agent"`
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        uint      `json:"id" db:"id"`
	UserID    *uint     `json:"user_id,omitempty" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Details   string    `json:"details,omitempty" db:"details"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Standup status values
const (
	StandupStatusPending        = "PENDING"
	StandupStatusGoalSet        = "GOAL_SET"
	StandupStatusSubmitted      = "SUBMITTED"
	StandupStatusApproved       = "APPROVED"
	StandupStatusNeedsAttention = "NEEDS_ATTENTION"
)

// Goal status values
const (
	GoalAchieved          = "ACHIEVED"
	GoalPartiallyAchieved = "PARTIALLY_ACHIEVED"
	GoalNotAchieved       = "NOT_ACHIEVED"
)

// Review actions
const (
	ReviewApprove        = "approve"
	ReviewFeedback       = "feedback"
	ReviewNeedsAttention = "needs_attention"
)

// Standup is one goal/achievement record of a user for a calendar date.
// Several standups per day are told apart by Sequence (1, 2, ...).
type Standup struct {
	ID                   uint            `json:"id" db:"id"`
	UserID               uint            `json:"user_id" db:"user_id"`
	Date                 time.Time       `json:"date" db:"date"`
	Sequence             int             `json:"sequence" db:"sequence"`
	TodayGoal            *string         `json:"today_goal,omitempty" db:"today_goal"`
	GoalSetTime          *time.Time      `json:"goal_set_time,omitempty" db:"goal_set_time"`
	TaskRefs             pq.StringArray  `json:"task_refs" db:"task_refs"`
	AchievementTitle     *string         `json:"achievement_title,omitempty" db:"achievement_title"`
	AchievementDesc      *string         `json:"achievement_desc,omitempty" db:"achievement_desc"`
	GoalStatus           *string         `json:"goal_status,omitempty" db:"goal_status"`
	CompletionPercentage *int            `json:"completion_percentage,omitempty" db:"completion_percentage"`
	NotAchievedReason    *string         `json:"not_achieved_reason,omitempty" db:"not_achieved_reason"`
	SubmissionTime       *time.Time      `json:"submission_time,omitempty" db:"submission_time"`
	IsLateSubmission     bool            `json:"is_late_submission" db:"is_late_submission"`
	Status               string          `json:"status" db:"status"`
	ReviewedBy           *uint           `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ManagerFeedback      *string         `json:"manager_feedback,omitempty" db:"manager_feedback"`
	AIInsights           json.RawMessage `json:"ai_insights,omitempty" db:"ai_insights"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// StandupWithUser extends Standup with owner details for review listings
type StandupWithUser struct {
	Standup
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	Department string `json:"department"`
}

// Blocker categories
const (
	BlockerCategoryTechnical     = "TECHNICAL"
	BlockerCategoryResource      = "RESOURCE"
	BlockerCategoryCommunication = "COMMUNICATION"
	BlockerCategoryExternal      = "EXTERNAL"
	BlockerCategoryOther         = "OTHER"
)

// Blocker status values
const (
	BlockerStatusOpen       = "OPEN"
	BlockerStatusInProgress = "IN_PROGRESS"
	BlockerStatusEscalated  = "ESCALATED"
	BlockerStatusResolved   = "RESOLVED"
)

// Blocker is an impediment raised by a user and tracked until resolved
type Blocker struct {
	ID                 uint            `json:"id" db:"id"`
	UserID             uint            `json:"user_id" db:"user_id"`
	StandupID          *uint           `json:"standup_id,omitempty" db:"standup_id"`
	Title              string          `json:"title" db:"title"`
	Description        string          `json:"description" db:"description"`
	Category           string          `json:"category" db:"category"`
	Severity           Severity        `json:"severity" db:"severity"`
	SupportRequired    *string         `json:"support_required,omitempty" db:"support_required"`
	Status             string          `json:"status" db:"status"`
	EscalatedTo        *uint           `json:"escalated_to,omitempty" db:"escalated_to"`
	EscalationNotes    *string         `json:"escalation_notes,omitempty" db:"escalation_notes"`
	EscalationDeadline *time.Time      `json:"escalation_deadline,omitempty" db:"escalation_deadline"`
	ResolutionNotes    *string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy         *uint           `json:"resolved_by,omitempty" db:"resolved_by"`
	AIAnalysis         json.RawMessage `json:"ai_analysis,omitempty" db:"ai_analysis"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// BlockerWithUser extends Blocker with owner details
type BlockerWithUser struct {
	Blocker
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	Department string `json:"department"`
}

// BlockerCount is one bucket of a blocker analytics breakdown
type BlockerCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// BlockerAnalytics summarizes blockers by status, severity and category
type BlockerAnalytics struct {
	Total      int            `json:"total"`
	ByStatus   []BlockerCount `json:"by_status"`
	BySeverity []BlockerCount `json:"by_severity"`
	ByCategory []BlockerCount `json:"by_category"`
}

// Attendance status values
const (
	AttendancePresent = "PRESENT"
	AttendanceAbsent  = "ABSENT"
	AttendanceHalfDay = "HALF_DAY"
	AttendanceLate    = "LATE"
)

// Attendance is the presence record of one user for one date
type Attendance struct {
	ID          uint       `json:"id" db:"id"`
	UserID      uint       `json:"user_id" db:"user_id"`
	Date        time.Time  `json:"date" db:"date"`
	LoginTime   *time.Time `json:"login_time,omitempty" db:"login_time"`
	LogoutTime  *time.Time `json:"logout_time,omitempty" db:"logout_time"`
	HoursWorked *float64   `json:"hours_worked" db:"hours_worked"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// AttendanceWithUser extends Attendance with user details for reports
type AttendanceWithUser struct {
	Attendance
	UserName   string `json:"user_name"`
	Department string `json:"department"`
}

// AttendanceReport is a date-range attendance listing with per-status totals
type AttendanceReport struct {
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Records []AttendanceWithUser `json:"records"`
	Totals  map[string]int       `json:"totals"`
}

// File parent types
const (
	FileParentStandup = "standup"
	FileParentBlocker = "blocker"
)

// File is attachment metadata; the bytes live in the configured store under StorageKey
type File struct {
	ID         uint      `json:"id" db:"id"`
	StandupID  *uint     `json:"standup_id,omitempty" db:"standup_id"`
	BlockerID  *uint     `json:"blocker_id,omitempty" db:"blocker_id"`
	UploadedBy uint      `json:"uploaded_by" db:"uploaded_by"`
	Filename   string    `json:"filename" db:"filename"`
	StorageKey string    `json:"-" db:"storage_key"`
	Size       int64     `json:"size" db:"size"`
	MimeType   string    `json:"mime_type" db:"mime_type"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NotificationLog is an append-only record of one outbound notification attempt
type NotificationLog struct {
	ID        uint            `json:"id" db:"id"`
	Type      string          `json:"type" db:"type"`
	Channel   string          `json:"channel" db:"channel"`
	Recipient string          `json:"recipient,omitempty" db:"recipient"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Success   bool            `json:"success" db:"success"`
	Error     *string         `json:"error,omitempty" db:"error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// DepartmentBlockers counts blockers raised by one department
type DepartmentBlockers struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// WeeklyReport is the 7-day team health aggregate sent to admins
type WeeklyReport struct {
	From                 time.Time            `json:"from"`
	To                   time.Time            `json:"to"`
	ActiveEmployees      int                  `json:"active_employees"`
	WorkingDays          int                  `json:"working_days"`
	ExpectedSubmissions  int                  `json:"expected_submissions"`
	Submissions          int                  `json:"submissions"`
	SubmissionRate       float64              `json:"submission_rate"`
	AchievedGoals        int                  `json:"achieved_goals"`
	CompletionRate       float64              `json:"completion_rate"`
	LateSubmissions      int                  `json:"late_submissions"`
	BlockersBySeverity   map[string]int       `json:"blockers_by_severity"`
	BlockersByDepartment []DepartmentBlockers `json:"blockers_by_department"`
	OpenBlockers         int                  `json:"open_blockers"`
	Summary              string               `json:"summary"`
	SummarySource        string               `json:"summary_source"` // "ai" or "fallback"
}

// HoursWorked returns logout minus login in hours rounded to two decimals.
// It is nil when there was no login and never negative.
func HoursWorked(login *time.Time, logout time.Time) *float64 {
	if login == nil {
		return nil
	}
	hours := logout.Sub(*login).Hours()
	if hours < 0 {
		hours = 0
	}
	rounded := math.Round(hours*100) / 100
	return &rounded
}
