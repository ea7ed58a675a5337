package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/models"
	"standup-desk/internal/tasks"
	"standup-desk/internal/testutil"
)

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "job", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first lock to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "job", time.Minute); ok {
		t.Fatal("Expected second lock to fail while held")
	}
	if _, ok, _ := l.TryLock(ctx, "other", time.Minute); !ok {
		t.Fatal("Expected lock on a different name to succeed")
	}

	release()
	if _, ok, _ := l.TryLock(ctx, "job", time.Minute); !ok {
		t.Fatal("Expected lock to succeed after release")
	}
}

func TestMemoryLocker_ExpiredLockIsTakenOver(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, _, _ := l.TryLock(ctx, "job", time.Minute)
	now = now.Add(2 * time.Minute)

	if _, ok, _ := l.TryLock(ctx, "job", time.Minute); !ok {
		t.Fatal("Expected expired lock to be taken over")
	}

	// the stale holder must not release the new holder's lock
	staleRelease()
	if _, ok, _ := l.TryLock(ctx, "job", time.Minute); ok {
		t.Fatal("Expected lock to stay held after stale release")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(nil, time.Minute, time.UTC)

	var gotNow time.Time
	if err := s.Register("ok", "0 3 * * *", false, func(ctx context.Context, now time.Time) error {
		gotNow = now
		return nil
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := s.RunNow(context.Background(), "ok"); err != nil {
		t.Fatalf("RunNow returned error: %v", err)
	}
	if gotNow.IsZero() || gotNow.Location() != time.UTC {
		t.Errorf("Expected job to receive trigger time in UTC, got %v", gotNow)
	}

	if _, err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Expected ErrUnknownJob, got %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].LastRun == nil || jobs[0].NextRun != nil {
		t.Errorf("Unexpected job info: %+v", jobs)
	}
}

func TestScheduler_RegisterRejectsBadCron(t *testing.T) {
	s := NewScheduler(nil, time.Minute, time.UTC)
	noop := func(context.Context, time.Time) error { return nil }

	if err := s.Register("bad", "every day", true, noop); err == nil {
		t.Error("Expected error for invalid cron")
	}
	if err := s.Register("dup", "* * * * *", true, noop); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := s.Register("dup", "* * * * *", true, noop); err == nil {
		t.Error("Expected error for duplicate job")
	}
}

func TestScheduler_OverlappingRunIsSkipped(t *testing.T) {
	s := NewScheduler(nil, time.Minute, time.UTC)

	started := make(chan struct{})
	finish := make(chan struct{})
	if err := s.Register("slow", "0 9 * * 1", true, func(ctx context.Context, now time.Time) error {
		close(started)
		<-finish
		return nil
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = s.RunNow(context.Background(), "slow")
	}()

	<-started
	if _, err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("Expected ErrJobRunning, got %v", err)
	}

	close(finish)
	wg.Wait()
	if firstErr != nil {
		t.Errorf("First run returned error: %v", firstErr)
	}
}

func TestScheduler_PanicIsRecovered(t *testing.T) {
	s := NewScheduler(nil, time.Minute, time.UTC)
	if err := s.Register("boom", "* * * * *", true, func(ctx context.Context, now time.Time) error {
		panic("nil map")
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	_, err := s.RunNow(context.Background(), "boom")
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("Expected panic error, got %v", err)
	}
	if info := s.Jobs()[0]; info.LastErr == "" {
		t.Error("Expected last error to be recorded")
	}

	// the lock is released after a panic
	if _, err := s.RunNow(context.Background(), "boom"); errors.Is(err, ErrJobRunning) {
		t.Error("Expected lock to be released after panic")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(nil, time.Minute, time.UTC)
	if err := s.Register("tick", "* * * * *", true, func(context.Context, time.Time) error { return nil }); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

type fakeReminders struct {
	users []models.User
	err   error
	date  time.Time
}

func (f *fakeReminders) ListWithoutSubmission(ctx context.Context, date time.Time) ([]models.User, error) {
	f.date = date
	return f.users, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []tasks.ReminderPayload
	failFor  map[uint]bool
}

func (f *fakePublisher) Publish(ctx context.Context, taskType string, payload interface{}) error {
	p := payload.(tasks.ReminderPayload)
	if f.failFor[p.UserID] {
		return errors.New("redis unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return nil
}

func TestDailyReminder_ContinuesAfterFailure(t *testing.T) {
	reminders := &fakeReminders{users: []models.User{{ID: 1}, {ID: 2}, {ID: 3}}}
	pub := &fakePublisher{failFor: map[uint]bool{2: true}}
	job := dailyReminder(Deps{Reminders: reminders, Publisher: pub})

	now := time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC)
	if err := job(context.Background(), now); err != nil {
		t.Fatalf("Expected no error with partial failure, got %v", err)
	}

	if len(pub.payloads) != 2 || pub.payloads[0].UserID != 1 || pub.payloads[1].UserID != 3 {
		t.Errorf("Expected reminders for users 1 and 3, got %+v", pub.payloads)
	}
	wantDate := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if !reminders.date.Equal(wantDate) || !pub.payloads[0].Date.Equal(wantDate) {
		t.Errorf("Expected date %v, got %v", wantDate, reminders.date)
	}
}

func TestDailyReminder_FailsWhenNothingQueued(t *testing.T) {
	reminders := &fakeReminders{users: []models.User{{ID: 1}}}
	pub := &fakePublisher{failFor: map[uint]bool{1: true}}

	err := dailyReminder(Deps{Reminders: reminders, Publisher: pub})(context.Background(), time.Now())
	if err == nil {
		t.Error("Expected error when every reminder failed")
	}
}

type fakeReports struct {
	report *models.WeeklyReport
	err    error
}

func (f *fakeReports) Generate(ctx context.Context) (*models.WeeklyReport, error) {
	return f.report, f.err
}

type fakeSender struct {
	sent []*models.WeeklyReport
}

func (f *fakeSender) WeeklyReport(ctx context.Context, r *models.WeeklyReport) error {
	f.sent = append(f.sent, r)
	return nil
}

func TestWeeklyReport(t *testing.T) {
	report := &models.WeeklyReport{SubmissionRate: 80, SummarySource: "fallback"}
	sender := &fakeSender{}

	job := weeklyReport(Deps{Reports: &fakeReports{report: report}, Sender: sender})
	if err := job(context.Background(), time.Now()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != report {
		t.Errorf("Expected report to be sent once, got %d", len(sender.sent))
	}

	sender.sent = nil
	job = weeklyReport(Deps{Reports: &fakeReports{err: errors.New("db down")}, Sender: sender})
	if err := job(context.Background(), time.Now()); err == nil {
		t.Error("Expected error when aggregation fails")
	}
	if len(sender.sent) != 0 {
		t.Error("Expected nothing sent when aggregation fails")
	}
}

type fakeAttendance struct {
	absent, late []time.Time
	err          error
}

func (f *fakeAttendance) MarkAbsent(ctx context.Context, date time.Time) (int64, error) {
	f.absent = append(f.absent, date)
	return 2, f.err
}

func (f *fakeAttendance) MarkLate(ctx context.Context, date time.Time) (int64, error) {
	f.late = append(f.late, date)
	return 1, f.err
}

type fakeSessions struct{ calls int }

func (f *fakeSessions) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	f.calls++
	return 4, nil
}

func TestRegisterJobs_FaultIsolation(t *testing.T) {
	attendance := &fakeAttendance{err: errors.New("deadlock detected")}
	sessions := &fakeSessions{}
	cfg := config.SchedulerConfig{
		DailyReminderCron:  "0 18 * * 1-5",
		WeeklyReportCron:   "0 9 * * 1",
		MarkAbsentCron:     "0 20 * * 1-5",
		MarkLateCron:       "0 10 * * 1-5",
		SessionCleanupCron: "0 3 * * *",
		EnableAttendance:   true,
	}

	s := NewScheduler(nil, time.Minute, time.UTC)
	err := RegisterJobs(s, cfg, Deps{
		Reminders:  &fakeReminders{},
		Publisher:  &fakePublisher{},
		Attendance: attendance,
		Reports:    &fakeReports{report: &models.WeeklyReport{}},
		Sender:     &fakeSender{},
		Sessions:   sessions,
	})
	if err != nil {
		t.Fatalf("RegisterJobs returned error: %v", err)
	}

	if _, err := s.RunNow(context.Background(), JobMarkAbsent); err == nil {
		t.Error("Expected mark_absent to report its failure")
	}
	if _, err := s.RunNow(context.Background(), JobSessionCleanup); err != nil {
		t.Errorf("Expected session_cleanup to run after another job failed, got %v", err)
	}
	if sessions.calls != 1 {
		t.Errorf("Expected one cleanup call, got %d", sessions.calls)
	}

	infos := s.Jobs()
	if len(infos) != 5 {
		t.Fatalf("Expected 5 jobs, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Name == JobDailyReminder && info.Enabled {
			t.Error("Expected daily_reminder to be disabled")
		}
	}
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis lock test in short mode")
	}

	redisURL := testutil.SetupRedis(t)
	l, err := NewRedisLocker(redisURL)
	if err != nil {
		t.Fatalf("NewRedisLocker returned error: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "weekly_report", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected lock, got ok=%v err=%v", ok, err)
	}

	if _, ok, err := l.TryLock(ctx, "weekly_report", time.Minute); err != nil || ok {
		t.Fatalf("Expected held lock to be refused, got ok=%v err=%v", ok, err)
	}

	release()
	release2, ok, err := l.TryLock(ctx, "weekly_report", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected lock after release, got ok=%v err=%v", ok, err)
	}
	release2()

	// an expired lock can be taken by the next run
	if _, ok, _ := l.TryLock(ctx, "short", 100*time.Millisecond); !ok {
		t.Fatal("Expected short lock")
	}
	time.Sleep(300 * time.Millisecond)
	if _, ok, _ := l.TryLock(ctx, "short", time.Minute); !ok {
		t.Error("Expected expired lock to be free")
	}
}
