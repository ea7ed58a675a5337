package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"standup-desk/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const userColumns = `id, email, password_hash, first_name, last_name, role, department,
	is_active, last_login_at, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Department,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role, department, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Department,
		user.IsActive,
		now,
		now,
	).Scan(&user.ID)

	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, id), user)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, email), user)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// Update updates profile, role and department of a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, role = $4, department = $5, is_active = $6, updated_at = $7
		WHERE id = $8
	`

	user.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx,
		query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Department,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin updates the last login timestamp
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uint) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// UpdateActiveStatus activates or deactivates a user
func (r *UserRepository) UpdateActiveStatus(ctx context.Context, userID uint, isActive bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, isActive, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserFilters narrows a user listing
type UserFilters struct {
	Search     string
	Role       models.Role
	Department string
	IsActive   *bool
}

func (f UserFilters) where(args []interface{}) (string, []interface{}) {
	clause := ` WHERE 1=1`
	argPos := len(args) + 1

	if f.Search != "" {
		clause += fmt.Sprintf(` AND (email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)`, argPos, argPos, argPos)
		args = append(args, "%"+f.Search+"%")
		argPos++
	}
	if f.Role != "" {
		clause += fmt.Sprintf(` AND role = $%d`, argPos)
		args = append(args, f.Role)
		argPos++
	}
	if f.Department != "" {
		clause += fmt.Sprintf(` AND department = $%d`, argPos)
		args = append(args, f.Department)
		argPos++
	}
	if f.IsActive != nil {
		clause += fmt.Sprintf(` AND is_active = $%d`, argPos)
		args = append(args, *f.IsActive)
	}
	return clause, args
}

// List retrieves users with filtering and pagination ordered by name
func (r *UserRepository) List(ctx context.Context, filters UserFilters, limit, offset int) ([]models.User, error) {
	where, args := filters.where(nil)
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY first_name, last_name, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer closeRows(rows)

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Count returns the number of users matching the filters
func (r *UserRepository) Count(ctx context.Context, filters UserFilters) (int, error) {
	where, args := filters.where(nil)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListActiveByRole returns every active user holding exactly the given role
func (r *UserRepository) ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	active := true
	return r.List(ctx, UserFilters{Role: role, IsActive: &active}, 10000, 0)
}

// ListWithoutSubmission returns active employees that have no submitted,
// approved or reviewed standup on the given date
func (r *UserRepository) ListWithoutSubmission(ctx context.Context, date time.Time) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.is_active AND u.role = 'EMPLOYEE'
		  AND NOT EXISTS (
			SELECT 1 FROM standups s
			WHERE s.user_id = u.id AND s.date = $1::date
			  AND s.status IN ('SUBMITTED', 'APPROVED', 'NEEDS_ATTENTION')
		  )
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query, dateParam(date))
	if err != nil {
		return nil, fmt.Errorf("failed to get users without submission: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CountActiveAdmins returns the number of active users with the admin role
func (r *UserRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE is_active AND role = 'ADMIN'`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active admins: %w", err)
	}

	return count, nil
}
