package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/internal/storage"
)

type memFiles struct {
	mu        sync.Mutex
	nextID    uint
	files     map[uint]models.File
	failAfter int
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[uint]models.File{}, failAfter: -1}
}

func (m *memFiles) Create(_ context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter == 0 {
		return errors.New("insert failed")
	}
	m.failAfter--
	m.nextID++
	file.ID = m.nextID
	m.files[file.ID] = *file
	return nil
}

func (m *memFiles) GetByID(_ context.Context, id uint) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (m *memFiles) ListByParent(_ context.Context, parentType string, parentID uint) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.File
	for id := uint(1); id <= m.nextID; id++ {
		f, ok := m.files[id]
		if !ok {
			continue
		}
		parent := f.BlockerID
		if parentType == models.FileParentStandup {
			parent = f.StandupID
		}
		if parent != nil && *parent == parentID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFiles) CountByParent(ctx context.Context, parentType string, parentID uint) (int, error) {
	files, err := m.ListByParent(ctx, parentType, parentID)
	return len(files), err
}

func (m *memFiles) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

func upload(name, body string) Upload {
	return Upload{
		Filename:    name,
		Size:        int64(len(body)),
		ContentType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

type fileFixture struct {
	svc      *FileService
	files    *memFiles
	dir      string
	standups *memStandups
	blockers *memBlockers
}

func newFileFixture(t *testing.T) *fileFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	f := &fileFixture{
		files:    newMemFiles(),
		dir:      dir,
		standups: newMemStandups(testUsers()...),
		blockers: newMemBlockers(),
	}
	f.svc = NewFileService(f.files, store, f.standups, f.blockers, FileLimits{
		MaxFileSize:       16,
		MaxFilesPerParent: 3,
		AllowedExtensions: []string{"txt", ".PNG"},
	})
	return f
}

// storedCount counts the files written below dir
func storedCount(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	var walk func(string)
	walk = func(d string) {
		entries, err := os.ReadDir(d)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				walk(d + "/" + e.Name())
				continue
			}
			n++
		}
	}
	walk(dir)
	return n
}

func TestFileUpload(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()

	blocker := &models.Blocker{UserID: employee.ID}
	f.blockers.Create(ctx, blocker)

	stored, err := f.svc.Upload(ctx, employee, models.FileParentBlocker, blocker.ID, []Upload{
		upload("logs/error.txt", "stack trace"),
		upload("screen.png", "png bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(stored) != 2 || stored[0].Filename != "error.txt" || *stored[0].BlockerID != blocker.ID {
		t.Errorf("Unexpected stored files %+v", stored)
	}

	file, rc, err := f.svc.Download(ctx, manager, stored[0].ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "stack trace" || file.MimeType != "text/plain" {
		t.Errorf("Unexpected download %q (%s)", body, file.MimeType)
	}

	if _, _, err := f.svc.Download(ctx, otherEmployee, stored[0].ID); ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND for another employee, got %v", err)
	}

	listed, err := f.svc.List(ctx, manager, models.FileParentBlocker, blocker.ID)
	if err != nil || len(listed) != 2 {
		t.Errorf("Expected two listed files, got %d (%v)", len(listed), err)
	}
}

func TestFileUpload_Limits(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()

	blocker := &models.Blocker{UserID: employee.ID}
	f.blockers.Create(ctx, blocker)
	if _, err := f.svc.Upload(ctx, employee, models.FileParentBlocker, blocker.ID, []Upload{upload("a.txt", "a"), upload("b.txt", "b")}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	tests := []struct {
		name    string
		actor   Actor
		uploads []Upload
		code    string
	}{
		{"no files", employee, nil, CodeValidation},
		{"too many files", employee, []Upload{upload("c.txt", "c"), upload("d.txt", "d")}, CodeValidation},
		{"disallowed extension", employee, []Upload{upload("run.exe", "MZ")}, CodeValidation},
		{"declared size too large", employee, []Upload{upload("big.txt", strings.Repeat("x", 17))}, CodeValidation},
		{"not the owner", manager, []Upload{upload("c.txt", "c")}, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, tt.actor, models.FileParentBlocker, blocker.ID, tt.uploads)
			if ErrorCode(err) != tt.code {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}

	if n := storedCount(t, f.dir); n != 2 {
		t.Errorf("Expected rejected uploads to write nothing, found %d files", n)
	}

	// a body larger than its declared size is caught while streaming
	lying := upload("sneaky.txt", strings.Repeat("x", 40))
	lying.Size = 4
	if _, err := f.svc.Upload(ctx, employee, models.FileParentBlocker, blocker.ID, []Upload{lying}); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for an oversized body, got %v", err)
	}
}

func TestFileUpload_RollsBack(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()

	blocker := &models.Blocker{UserID: employee.ID}
	f.blockers.Create(ctx, blocker)
	f.files.failAfter = 1

	_, err := f.svc.Upload(ctx, employee, models.FileParentBlocker, blocker.ID, []Upload{upload("a.txt", "a"), upload("b.txt", "b")})
	if err == nil {
		t.Fatal("Expected the upload to fail")
	}
	if len(f.files.files) != 0 {
		t.Errorf("Expected metadata to be rolled back, got %d rows", len(f.files.files))
	}
	if n := storedCount(t, f.dir); n != 0 {
		t.Errorf("Expected stored bytes to be removed, found %d files", n)
	}
}

func TestFileUpload_StandupStatus(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, berlin)

	standup, _ := f.standups.Create(ctx, employee.ID, startOfDay(now))
	if _, err := f.svc.Upload(ctx, employee, models.FileParentStandup, standup.ID, []Upload{upload("notes.txt", "notes")}); err != nil {
		t.Fatalf("Expected uploads on a pending standup, got %v", err)
	}

	f.standups.SetGoal(ctx, standup.ID, employee.ID, validGoal, nil, now)
	f.standups.Submit(ctx, standup.ID, employee.ID, repository.Submission{GoalStatus: models.GoalAchieved, At: now})

	if _, err := f.svc.Upload(ctx, employee, models.FileParentStandup, standup.ID, []Upload{upload("late.txt", "late")}); ErrorCode(err) != CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS on a submitted standup, got %v", err)
	}
	if _, err := f.svc.List(ctx, employee, "comment", standup.ID); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for an unknown parent type, got %v", err)
	}
}
