package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"standup-desk/internal/auth"
	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/pkg/validator"
)

// UserStore is the user persistence used by authentication and administration
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, userID uint) error
	UpdateActiveStatus(ctx context.Context, userID uint, isActive bool) error
	List(ctx context.Context, filters repository.UserFilters, limit, offset int) ([]models.User, error)
	Count(ctx context.Context, filters repository.UserFilters) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
}

// SessionStore tracks issued tokens by JTI
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByJTI(ctx context.Context, jti string) (*models.Session, error)
	GetByUserID(ctx context.Context, userID uint) ([]models.Session, error)
	UpdateLastActivity(ctx context.Context, id string) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
	DeleteAllUserSessions(ctx context.Context, userID uint) error
}

// TokenIssuer signs and validates tokens
type TokenIssuer interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hashedPassword, password string) error
	GenerateToken(user *models.User, sessionID string) (*auth.IssuedToken, error)
	GenerateRefreshToken(user *models.User, sessionID string) (*auth.IssuedToken, error)
	ValidateToken(tokenString string) (*auth.JWTClaims, error)
	ExtractJTI(tokenString string) (string, error)
}

// PresenceRecorder records logins and logouts for attendance
type PresenceRecorder interface {
	Login(ctx context.Context, userID uint) (*models.Attendance, error)
	Logout(ctx context.Context, userID uint) (*models.Attendance, error)
}

// AuthService handles authentication and user administration
type AuthService struct {
	users      UserStore
	sessions   SessionStore
	tokens     TokenIssuer
	attendance PresenceRecorder
	audit      *AuditService
}

// NewAuthService creates a new authentication service
func NewAuthService(users UserStore, sessions SessionStore, tokens TokenIssuer, attendance PresenceRecorder, audit *AuditService) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		attendance: attendance,
		audit:      audit,
	}
}

// LoginInput is the payload of a login request
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *models.User `json:"user"`
}

// ClientInfo identifies the client a session was opened from
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

var errInvalidCredentials = NewError(CodeUnauthorized, "invalid email or password")

// Login verifies credentials, opens a session and records the attendance login
func (s *AuthService) Login(ctx context.Context, input LoginInput, client ClientInfo) (*TokenPair, error) {
	input.Email = validator.SanitizeEmail(input.Email)
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.tokens.VerifyPassword(user.PasswordHash, input.Password); err != nil {
		s.audit.Log(ctx, &user.ID, "auth.login_failed", "user", "invalid password", client)
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, NewError(CodeUnauthorized, "user account is inactive")
	}

	pair, err := s.openSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Error("Failed to update last login", "user_id", user.ID, "error", err)
	}
	if s.attendance != nil {
		if _, err := s.attendance.Login(ctx, user.ID); err != nil {
			slog.Error("Failed to record attendance login", "user_id", user.ID, "error", err)
		}
	}

	s.audit.Log(ctx, &user.ID, "auth.login", "user", "", client)
	slog.Info("User logged in", "user_id", user.ID, "role", user.Role)
	return pair, nil
}

// openSession issues an access and refresh token sharing one session id and
// stores a session row per token
func (s *AuthService) openSession(ctx context.Context, user *models.User, client ClientInfo) (*TokenPair, error) {
	sessionID := uuid.NewString()

	access, err := s.tokens.GenerateToken(user, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	for _, t := range []struct {
		issued    *auth.IssuedToken
		tokenType string
	}{
		{access, auth.TokenTypeAccess},
		{refresh, auth.TokenTypeRefresh},
	} {
		now := time.Now()
		session := &models.Session{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			SessionID:      sessionID,
			JTI:            t.issued.JTI,
			TokenType:      t.tokenType,
			ExpiresAt:      t.issued.ExpiresAt,
			LastActivityAt: now,
			CreatedAt:      now,
			IPAddress:      client.IPAddress,
			UserAgent:      client.UserAgent,
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, err
		}
	}

	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresAt:    access.ExpiresAt,
		User:         user,
	}, nil
}

// Refresh exchanges a live refresh token for a new token pair. The old
// session is revoked so every refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*TokenPair, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		return nil, NewError(CodeUnauthorized, "not a refresh token")
	}

	session, err := s.sessions.GetByJTI(ctx, claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(CodeUnauthorized, "session has been revoked")
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != claims.UserID || session.TokenType != auth.TokenTypeRefresh {
		return nil, NewError(CodeUnauthorized, "session does not match token")
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.DeleteBySessionID(ctx, session.SessionID); err != nil {
		return nil, err
	}

	return s.openSession(ctx, user, client)
}

// Logout revokes the session of the presented token and records the
// attendance logout of the caller
func (s *AuthService) Logout(ctx context.Context, actor Actor, token string, client ClientInfo) error {
	jti, err := s.tokens.ExtractJTI(token)
	if err != nil {
		return NewError(CodeUnauthorized, "invalid token")
	}

	session, err := s.sessions.GetByJTI(ctx, jti)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// already revoked or expired
	case err != nil:
		return err
	default:
		if err := s.sessions.DeleteBySessionID(ctx, session.SessionID); err != nil {
			return err
		}
	}

	if s.attendance != nil {
		if _, err := s.attendance.Logout(ctx, actor.ID); err != nil {
			slog.Error("Failed to record attendance logout", "user_id", actor.ID, "error", err)
		}
	}

	s.audit.Log(ctx, &actor.ID, "auth.logout", "user", "", client)
	return nil
}

// Authenticate resolves an access token into the calling actor. The user is
// reloaded so role changes and deactivation apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Actor, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return Actor{}, tokenError(err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return Actor{}, NewError(CodeUnauthorized, "not an access token")
	}

	session, err := s.sessions.GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Actor{}, NewError(CodeUnauthorized, "session has been revoked")
		}
		return Actor{}, err
	}
	if err := s.sessions.UpdateLastActivity(ctx, session.ID); err != nil {
		slog.Warn("Failed to update session activity", "session_id", session.SessionID, "error", err)
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return Actor{}, err
	}

	return Actor{ID: user.ID, Role: user.Role, Department: user.Department}, nil
}

func (s *AuthService) activeUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, NewError(CodeUnauthorized, "user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, NewError(CodeUnauthorized, "user account is inactive")
	}
	return user, nil
}

func tokenError(err error) error {
	if errors.Is(err, auth.ErrExpiredToken) {
		return NewError(CodeTokenExpired, "token has expired")
	}
	return NewError(CodeUnauthorized, "invalid token")
}

// Me returns the profile of the caller
func (s *AuthService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.users.GetByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, notFound("user")
	}
	return user, err
}

// CreateUserInput is the payload of an admin user creation
type CreateUserInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	Role       string `json:"role" validate:"required,oneof=EMPLOYEE MANAGER ADMIN"`
	Department string `json:"department" validate:"max=100"`
}

// CreateUser adds an account (admin only)
func (s *AuthService) CreateUser(ctx context.Context, actor Actor, input CreateUserInput) (*models.User, error) {
	if err := Authorize(actor.Role, models.RoleAdmin); err != nil {
		return nil, err
	}

	input.Email = validator.SanitizeEmail(input.Email)
	input.FirstName = validator.SanitizeString(input.FirstName)
	input.LastName = validator.SanitizeString(input.LastName)
	input.Department = validator.SanitizeString(input.Department)
	input.Role = strings.ToUpper(strings.TrimSpace(input.Role))
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}
	if err := validator.ValidatePassword(input.Password); err != nil {
		return nil, invalidField("password", err.Error())
	}

	hash, err := s.tokens.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         models.Role(input.Role),
		Department:   input.Department,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, invalidField("email", "a user with this email already exists")
		}
		return nil, err
	}

	s.audit.Log(ctx, &actor.ID, "user.create", fmt.Sprintf("user:%d", user.ID), string(user.Role), ClientInfo{})
	slog.Info("User created", "user_id", user.ID, "role", user.Role, "created_by", actor.ID)
	return user, nil
}

// UpdateUserInput changes role, department or names; nil fields stay unchanged
type UpdateUserInput struct {
	FirstName  *string `json:"first_name" validate:"max=100"`
	LastName   *string `json:"last_name" validate:"max=100"`
	Role       *string `json:"role" validate:"oneof=EMPLOYEE MANAGER ADMIN"`
	Department *string `json:"department" validate:"max=100"`
}

// UpdateUser edits an account (admin only)
func (s *AuthService) UpdateUser(ctx context.Context, actor Actor, id uint, input UpdateUserInput) (*models.User, error) {
	if err := Authorize(actor.Role, models.RoleAdmin); err != nil {
		return nil, err
	}
	if input.Role != nil {
		role := strings.ToUpper(strings.TrimSpace(*input.Role))
		input.Role = &role
	}
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, err
	}

	if input.FirstName != nil {
		user.FirstName = validator.SanitizeString(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = validator.SanitizeString(*input.LastName)
	}
	if input.Department != nil {
		user.Department = validator.SanitizeString(*input.Department)
	}
	if input.Role != nil && models.Role(*input.Role) != user.Role {
		if user.Role == models.RoleAdmin {
			if err := s.ensureOtherAdmin(ctx); err != nil {
				return nil, err
			}
		}
		user.Role = models.Role(*input.Role)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, &actor.ID, "user.update", fmt.Sprintf("user:%d", user.ID), string(user.Role), ClientInfo{})
	return user, nil
}

// DeactivateUser disables an account and revokes its sessions (admin only)
func (s *AuthService) DeactivateUser(ctx context.Context, actor Actor, id uint) error {
	if err := Authorize(actor.Role, models.RoleAdmin); err != nil {
		return err
	}
	if id == actor.ID {
		return NewError(CodeInvalidStatus, "you cannot deactivate your own account")
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return notFound("user")
	}
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin && user.IsActive {
		if err := s.ensureOtherAdmin(ctx); err != nil {
			return err
		}
	}

	if err := s.users.UpdateActiveStatus(ctx, id, false); err != nil {
		return err
	}
	if err := s.sessions.DeleteAllUserSessions(ctx, id); err != nil {
		slog.Error("Failed to revoke sessions of deactivated user", "user_id", id, "error", err)
	}

	s.audit.Log(ctx, &actor.ID, "user.deactivate", fmt.Sprintf("user:%d", id), "", ClientInfo{})
	return nil
}

func (s *AuthService) ensureOtherAdmin(ctx context.Context) error {
	admins, err := s.users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return NewError(CodeInvalidStatus, "the last active admin cannot be demoted or deactivated")
	}
	return nil
}

// UserQuery filters the admin user listing
type UserQuery struct {
	Search     string
	Role       string
	Department string
	IsActive   *bool
	Page       int
	PageSize   int
}

// ListUsers lists accounts (admin only)
func (s *AuthService) ListUsers(ctx context.Context, actor Actor, q UserQuery) (*Page[models.User], error) {
	if err := Authorize(actor.Role, models.RoleAdmin); err != nil {
		return nil, err
	}

	filters := repository.UserFilters{
		Search:     strings.TrimSpace(q.Search),
		Department: q.Department,
		IsActive:   q.IsActive,
	}
	if q.Role != "" {
		role, ok := models.ParseRole(q.Role)
		if !ok {
			return nil, invalidField("role", "role must be one of EMPLOYEE, MANAGER, ADMIN")
		}
		filters.Role = role
	}

	page, size := normalizePage(q.Page, q.PageSize)
	users, err := s.users.List(ctx, filters, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	total, err := s.users.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &Page[models.User]{Items: users, Total: total, Page: page, PageSize: size}, nil
}

// SessionInfo is one login of a user; its access and refresh tokens share the session id
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Current        bool      `json:"current"`
}

// Sessions lists the caller's live sessions, most recently active first.
// token marks the session the request was made with.
func (s *AuthService) Sessions(ctx context.Context, actor Actor, token string) ([]SessionInfo, error) {
	sessions, err := s.sessions.GetByUserID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	current := s.currentSessionID(ctx, token)

	byID := make(map[string]*SessionInfo)
	order := make([]string, 0, len(sessions))
	for _, session := range sessions {
		info, ok := byID[session.SessionID]
		if !ok {
			info = &SessionInfo{
				SessionID:      session.SessionID,
				CreatedAt:      session.CreatedAt,
				LastActivityAt: session.LastActivityAt,
				ExpiresAt:      session.ExpiresAt,
				IPAddress:      session.IPAddress,
				UserAgent:      session.UserAgent,
				Current:        session.SessionID == current,
			}
			byID[session.SessionID] = info
			order = append(order, session.SessionID)
			continue
		}
		if session.LastActivityAt.After(info.LastActivityAt) {
			info.LastActivityAt = session.LastActivityAt
		}
		if session.ExpiresAt.After(info.ExpiresAt) {
			info.ExpiresAt = session.ExpiresAt
		}
	}

	result := make([]SessionInfo, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})
	return result, nil
}

// RevokeSession ends one of the caller's sessions
func (s *AuthService) RevokeSession(ctx context.Context, actor Actor, sessionID string, client ClientInfo) error {
	sessions, err := s.sessions.GetByUserID(ctx, actor.ID)
	if err != nil {
		return err
	}

	found := false
	for _, session := range sessions {
		if session.SessionID == sessionID {
			found = true
			break
		}
	}
	if !found {
		return notFound("session")
	}

	if err := s.sessions.DeleteBySessionID(ctx, sessionID); err != nil {
		return err
	}

	s.audit.Log(ctx, &actor.ID, "session.revoke", "session:"+sessionID, "", client)
	return nil
}

func (s *AuthService) currentSessionID(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	jti, err := s.tokens.ExtractJTI(token)
	if err != nil {
		return ""
	}
	session, err := s.sessions.GetByJTI(ctx, jti)
	if err != nil {
		return ""
	}
	return session.SessionID
}
