package repository

import (
	"context"
	"database/sql"
	"fmt"

	"standup-desk/internal/models"
)

const fileColumns = `id, standup_id, blocker_id, uploaded_by, filename, storage_key, size, mime_type, created_at`

// FileRepository handles attachment metadata
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row rowScanner, f *models.File) error {
	return row.Scan(
		&f.ID,
		&f.StandupID,
		&f.BlockerID,
		&f.UploadedBy,
		&f.Filename,
		&f.StorageKey,
		&f.Size,
		&f.MimeType,
		&f.CreatedAt,
	)
}

// parentColumn maps a parent type to its foreign key column
func parentColumn(parentType string) (string, error) {
	switch parentType {
	case models.FileParentStandup:
		return "standup_id", nil
	case models.FileParentBlocker:
		return "blocker_id", nil
	default:
		return "", fmt.Errorf("unknown file parent type %q", parentType)
	}
}

// Create stores attachment metadata
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (standup_id, blocker_id, uploaded_by, filename, storage_key, size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		file.StandupID,
		file.BlockerID,
		file.UploadedBy,
		file.Filename,
		file.StorageKey,
		file.Size,
		file.MimeType,
	).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// GetByID retrieves attachment metadata by ID
func (r *FileRepository) GetByID(ctx context.Context, id uint) (*models.File, error) {
	file := &models.File{}
	err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id), file)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

// ListByParent returns the attachments of a standup or blocker, oldest first
func (r *FileRepository) ListByParent(ctx context.Context, parentType string, parentID uint) ([]models.File, error) {
	column, err := parentColumn(parentType)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE `+column+` = $1 ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer closeRows(rows)

	files := []models.File{}
	for rows.Next() {
		var f models.File
		if err := scanFile(rows, &f); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// CountByParent returns how many attachments a standup or blocker has
func (r *FileRepository) CountByParent(ctx context.Context, parentType string, parentID uint) (int, error) {
	column, err := parentColumn(parentType)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE `+column+` = $1`, parentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

// Delete removes attachment metadata
func (r *FileRepository) Delete(ctx context.Context, id uint) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
