package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
)

var berlin = time.FixedZone("CET", 3600)

// fixedClock returns a clock whose time can be moved by the test
func fixedClock(t *time.Time) Clock {
	return Clock{Now: func() time.Time { return *t }, Location: berlin}
}

type published struct {
	taskType string
	payload  interface{}
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []published
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, taskType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, published{taskType, payload})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t.taskType)
	}
	return out
}

// memStandups keeps standups in memory and enforces the same state guards
// as the SQL repository
type memStandups struct {
	mu       sync.Mutex
	nextID   uint
	standups map[uint]*models.Standup
	users    map[uint]models.User
}

func newMemStandups(users ...models.User) *memStandups {
	m := &memStandups{standups: map[uint]*models.Standup{}, users: map[uint]models.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStandups) Create(_ context.Context, userID uint, date time.Time) (*models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := 1
	for _, s := range m.standups {
		if s.UserID == userID && s.Date.Equal(date) && s.Sequence >= seq {
			seq = s.Sequence + 1
		}
	}
	m.nextID++
	s := &models.Standup{ID: m.nextID, UserID: userID, Date: date, Sequence: seq, Status: models.StandupStatusPending}
	m.standups[s.ID] = s
	cp := *s
	return &cp, nil
}

// setDate overwrites the stored date, e.g. to mimic a DATE column scanned as UTC
func (m *memStandups) setDate(id uint, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standups[id].Date = date
}

func (m *memStandups) GetByID(_ context.Context, id uint) (*models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStandups) GetWithUser(ctx context.Context, id uint) (*models.StandupWithUser, error) {
	s, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.withUser(*s), nil
}

func (m *memStandups) withUser(s models.Standup) *models.StandupWithUser {
	u := m.users[s.UserID]
	return &models.StandupWithUser{Standup: s, UserName: u.FirstName, UserEmail: u.Email, Department: u.Department}
}

func (m *memStandups) SetGoal(_ context.Context, id, userID uint, goal string, taskRefs []string, at time.Time) (*models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standups[id]
	if !ok || s.UserID != userID || s.Status != models.StandupStatusPending {
		return nil, repository.ErrConflict
	}
	s.TodayGoal = &goal
	s.TaskRefs = taskRefs
	s.GoalSetTime = &at
	s.Status = models.StandupStatusGoalSet
	cp := *s
	return &cp, nil
}

func (m *memStandups) Submit(_ context.Context, id, userID uint, sub repository.Submission) (*models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standups[id]
	if !ok || s.UserID != userID ||
		(s.Status != models.StandupStatusGoalSet && s.Status != models.StandupStatusNeedsAttention) {
		return nil, repository.ErrConflict
	}
	s.AchievementTitle = &sub.AchievementTitle
	s.AchievementDesc = &sub.AchievementDesc
	s.GoalStatus = &sub.GoalStatus
	s.CompletionPercentage = sub.CompletionPercentage
	s.NotAchievedReason = sub.NotAchievedReason
	s.SubmissionTime = &sub.At
	s.IsLateSubmission = sub.IsLate
	s.Status = models.StandupStatusSubmitted
	cp := *s
	return &cp, nil
}

func (m *memStandups) Review(_ context.Context, id, reviewerID uint, status string, feedback *string, at time.Time) (*models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standups[id]
	if !ok || s.Status != models.StandupStatusSubmitted {
		return nil, repository.ErrConflict
	}
	s.Status = status
	s.ReviewedBy = &reviewerID
	s.ReviewedAt = &at
	if feedback != nil {
		s.ManagerFeedback = feedback
	}
	cp := *s
	return &cp, nil
}

func (m *memStandups) ListByUserAndDate(_ context.Context, userID uint, date time.Time) ([]models.Standup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Standup
	for _, s := range m.standups {
		if s.UserID == userID && s.Date.Equal(date) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *memStandups) History(_ context.Context, f repository.StandupFilters, limit, offset int) ([]models.StandupWithUser, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StandupWithUser
	for _, s := range m.standups {
		if f.UserID != nil && s.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, *m.withUser(*s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStandups) PendingReview(_ context.Context, department string) ([]models.StandupWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StandupWithUser
	for _, s := range m.standups {
		w := m.withUser(*s)
		if s.Status == models.StandupStatusSubmitted && (department == "" || strings.EqualFold(w.Department, department)) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memStandups) Team(_ context.Context, date time.Time, department string) ([]models.StandupWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StandupWithUser
	for _, s := range m.standups {
		w := m.withUser(*s)
		if s.Date.Equal(date) && (department == "" || strings.EqualFold(w.Department, department)) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memStandups) RecentGoals(_ context.Context, userID uint, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := m.nextID; id > 0 && len(out) < limit; id-- {
		if s, ok := m.standups[id]; ok && s.UserID == userID && s.TodayGoal != nil {
			out = append(out, *s.TodayGoal)
		}
	}
	return out, nil
}

func (m *memStandups) SetAIInsights(_ context.Context, id uint, insights []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standups[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.AIInsights = insights
	return nil
}

// logoutRecorder records attendance logouts triggered by submissions
type logoutRecorder struct {
	calls []time.Time
}

func (l *logoutRecorder) RecordLogout(_ context.Context, userID uint, date, at time.Time) (*models.Attendance, error) {
	l.calls = append(l.calls, at)
	return &models.Attendance{UserID: userID, Date: date, LogoutTime: &at}, nil
}

var (
	employee      = Actor{ID: 3, Role: models.RoleEmployee, Department: "engineering"}
	otherEmployee = Actor{ID: 4, Role: models.RoleEmployee, Department: "sales"}
	manager       = Actor{ID: 2, Role: models.RoleManager, Department: "engineering"}
	admin         = Actor{ID: 1, Role: models.RoleAdmin, Department: "engineering"}
)

func testUsers() []models.User {
	return []models.User{
		{ID: 1, Email: "admin@test.com", FirstName: "Ada", Role: models.RoleAdmin, Department: "engineering", IsActive: true},
		{ID: 2, Email: "manager@test.com", FirstName: "Max", Role: models.RoleManager, Department: "engineering", IsActive: true},
		{ID: 3, Email: "employee@test.com", FirstName: "Eve", Role: models.RoleEmployee, Department: "engineering", IsActive: true},
		{ID: 4, Email: "seller@test.com", FirstName: "Sam", Role: models.RoleEmployee, Department: "sales", IsActive: true},
	}
}
