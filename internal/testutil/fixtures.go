package testutil

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"standup-desk/internal/models"
)

// FixturePassword is the password of every fixture user
const FixturePassword = "Password123!"

// Fixtures holds test data
type Fixtures struct {
	DB        *sql.DB
	Admin     *models.User
	Manager   *models.User
	Employee  *models.User
	OtherTeam *models.User
	Inactive  *models.User
	SalesLead *models.User
}

// SetupFixtures creates one user per role in the "engineering" department
// plus an employee and a manager in "sales" and an inactive employee
func SetupFixtures(t *testing.T, db *sql.DB) *Fixtures {
	t.Helper()

	return &Fixtures{
		DB:        db,
		Admin:     CreateUser(t, db, "admin@test.com", "Ada", models.RoleAdmin, "engineering", true),
		Manager:   CreateUser(t, db, "manager@test.com", "Max", models.RoleManager, "engineering", true),
		Employee:  CreateUser(t, db, "employee@test.com", "Eve", models.RoleEmployee, "engineering", true),
		OtherTeam: CreateUser(t, db, "seller@test.com", "Sam", models.RoleEmployee, "sales", true),
		Inactive:  CreateUser(t, db, "former@test.com", "Fay", models.RoleEmployee, "engineering", false),
		SalesLead: CreateUser(t, db, "saleslead@test.com", "Sue", models.RoleManager, "sales", true),
	}
}

// CreateUser inserts a user with FixturePassword
func CreateUser(t *testing.T, db *sql.DB, email, firstName string, role models.Role, department string, active bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(FixturePassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Email:      email,
		FirstName:  firstName,
		LastName:   "Tester",
		Role:       role,
		Department: department,
		IsActive:   active,
	}
	err = db.QueryRow(`
		INSERT INTO users (email, password_hash, first_name, last_name, role, department, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, email, string(hash), firstName, user.LastName, string(role), department, active).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	user.PasswordHash = string(hash)

	return user
}

// Day returns midnight UTC of the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
