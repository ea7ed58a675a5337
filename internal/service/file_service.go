package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/internal/storage"
)

// FileStore is the attachment metadata persistence
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id uint) (*models.File, error)
	ListByParent(ctx context.Context, parentType string, parentID uint) ([]models.File, error)
	CountByParent(ctx context.Context, parentType string, parentID uint) (int, error)
	Delete(ctx context.Context, id uint) error
}

// BlockerLookup loads blockers by id
type BlockerLookup interface {
	GetByID(ctx context.Context, id uint) (*models.Blocker, error)
}

// FileLimits bounds attachments
type FileLimits struct {
	MaxFileSize       int64
	MaxFilesPerParent int
	AllowedExtensions []string
}

// Upload is one file of a multipart request
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileService attaches files to standups and blockers
type FileService struct {
	files    FileStore
	store    storage.Store
	standups StandupLookup
	blockers BlockerLookup
	limits   FileLimits
	allowed  map[string]bool
}

// NewFileService creates a new file service
func NewFileService(files FileStore, store storage.Store, standups StandupLookup, blockers BlockerLookup, limits FileLimits) *FileService {
	allowed := make(map[string]bool, len(limits.AllowedExtensions))
	for _, ext := range limits.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")] = true
	}
	return &FileService{
		files:    files,
		store:    store,
		standups: standups,
		blockers: blockers,
		limits:   limits,
		allowed:  allowed,
	}
}

// Upload stores files for a parent owned by the actor. All limits are checked
// before anything is written; a failure midway removes what was stored.
func (s *FileService) Upload(ctx context.Context, actor Actor, parentType string, parentID uint, uploads []Upload) ([]models.File, error) {
	if len(uploads) == 0 {
		return nil, invalidField("files", "at least one file is required")
	}
	if err := s.checkParent(ctx, actor, parentType, parentID, true); err != nil {
		return nil, err
	}

	existing, err := s.files.CountByParent(ctx, parentType, parentID)
	if err != nil {
		return nil, err
	}
	if existing+len(uploads) > s.limits.MaxFilesPerParent {
		return nil, invalidField("files", fmt.Sprintf("a %s can have at most %d files (%d already attached)",
			parentType, s.limits.MaxFilesPerParent, existing))
	}

	for _, u := range uploads {
		if !s.allowed[extension(u.Filename)] {
			return nil, invalidField("files", fmt.Sprintf("file type of %q is not allowed", u.Filename))
		}
		if u.Size > s.limits.MaxFileSize {
			return nil, invalidField("files", fmt.Sprintf("%q exceeds the maximum size of %d bytes", u.Filename, s.limits.MaxFileSize))
		}
	}

	stored := make([]models.File, 0, len(uploads))
	for _, u := range uploads {
		file, err := s.storeOne(ctx, actor, parentType, parentID, u)
		if err != nil {
			s.rollback(ctx, stored)
			return nil, err
		}
		stored = append(stored, *file)
	}

	slog.Info("Files uploaded", "parent_type", parentType, "parent_id", parentID, "count", len(stored), "user_id", actor.ID)
	return stored, nil
}

func (s *FileService) storeOne(ctx context.Context, actor Actor, parentType string, parentID uint, u Upload) (*models.File, error) {
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	key, size, err := s.store.Put(ctx, extension(u.Filename), rc, s.limits.MaxFileSize)
	if errors.Is(err, storage.ErrTooLarge) {
		return nil, invalidField("files", fmt.Sprintf("%q exceeds the maximum size of %d bytes", u.Filename, s.limits.MaxFileSize))
	}
	if err != nil {
		return nil, err
	}

	file := &models.File{
		UploadedBy: actor.ID,
		Filename:   filepath.Base(u.Filename),
		StorageKey: key,
		Size:       size,
		MimeType:   u.ContentType,
	}
	if file.MimeType == "" {
		file.MimeType = "application/octet-stream"
	}
	id := parentID
	if parentType == models.FileParentStandup {
		file.StandupID = &id
	} else {
		file.BlockerID = &id
	}

	if err := s.files.Create(ctx, file); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Error("Failed to remove orphaned upload", "key", key, "error", delErr)
		}
		return nil, err
	}
	return file, nil
}

func (s *FileService) rollback(ctx context.Context, files []models.File) {
	for _, f := range files {
		if err := s.files.Delete(ctx, f.ID); err != nil {
			slog.Error("Failed to roll back file metadata", "file_id", f.ID, "error", err)
		}
		if err := s.store.Delete(ctx, f.StorageKey); err != nil {
			slog.Error("Failed to roll back stored file", "file_id", f.ID, "error", err)
		}
	}
}

// List returns the attachments of a parent visible to the actor
func (s *FileService) List(ctx context.Context, actor Actor, parentType string, parentID uint) ([]models.File, error) {
	if err := s.checkParent(ctx, actor, parentType, parentID, false); err != nil {
		return nil, err
	}
	return s.files.ListByParent(ctx, parentType, parentID)
}

// Download opens a stored attachment visible to the actor
func (s *FileService) Download(ctx context.Context, actor Actor, id uint) (*models.File, io.ReadCloser, error) {
	file, err := s.files.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, notFound("file")
	}
	if err != nil {
		return nil, nil, err
	}

	parentType, parentID := models.FileParentBlocker, uint(0)
	if file.StandupID != nil {
		parentType, parentID = models.FileParentStandup, *file.StandupID
	} else if file.BlockerID != nil {
		parentID = *file.BlockerID
	}
	if err := s.checkParent(ctx, actor, parentType, parentID, false); err != nil {
		if ErrorCode(err) == CodeNotFound {
			return nil, nil, notFound("file")
		}
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, file.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notFound("file")
	}
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// checkParent verifies the parent exists and is visible to the actor. For
// writes the actor must own it and a standup must still be open for changes.
func (s *FileService) checkParent(ctx context.Context, actor Actor, parentType string, parentID uint, write bool) error {
	var ownerID uint
	switch parentType {
	case models.FileParentStandup:
		standup, err := s.standups.GetByID(ctx, parentID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("standup")
		}
		if err != nil {
			return err
		}
		ownerID = standup.UserID
		if write && ownerID == actor.ID &&
			(standup.Status == models.StandupStatusSubmitted || standup.Status == models.StandupStatusApproved) {
			return NewError(CodeInvalidStatus, "files cannot be attached to a "+strings.ToLower(standup.Status)+" standup")
		}
	case models.FileParentBlocker:
		blocker, err := s.blockers.GetByID(ctx, parentID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("blocker")
		}
		if err != nil {
			return err
		}
		ownerID = blocker.UserID
	default:
		return invalidField("parent_type", "parent type must be standup or blocker")
	}

	if ownerID == actor.ID || (!write && actor.IsManager()) {
		return nil
	}
	return notFound(parentType)
}

func extension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
