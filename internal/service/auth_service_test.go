package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"standup-desk/internal/auth"
	"standup-desk/internal/config"
	"standup-desk/internal/models"
	"standup-desk/internal/repository"
)

type memUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User
}

func newMemUserStore(users ...models.User) *memUserStore {
	m := &memUserStore{users: map[uint]*models.User{}}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
	return m
}

func (m *memUserStore) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrUserExists
		}
	}
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUserStore) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserStore) UpdateLastLogin(context.Context, uint) error { return nil }

func (m *memUserStore) UpdateActiveStatus(_ context.Context, userID uint, isActive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].IsActive = isActive
	return nil
}

func (m *memUserStore) matching(f repository.UserFilters) []models.User {
	var out []models.User
	for id := uint(1); id <= m.nextID; id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *u)
	}
	return out
}

func (m *memUserStore) List(_ context.Context, f repository.UserFilters, limit, offset int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matching(f)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memUserStore) Count(_ context.Context, f repository.UserFilters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

func (m *memUserStore) CountActiveAdmins(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Role == models.RoleAdmin && u.IsActive {
			n++
		}
	}
	return n, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions []models.Session
}

func (m *memSessions) Create(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *memSessions) GetByJTI(_ context.Context, jti string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.JTI == jti {
			cp := s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memSessions) GetByUserID(_ context.Context, userID uint) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) UpdateLastActivity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].LastActivityAt = time.Now()
		}
	}
	return nil
}

func (m *memSessions) remove(keep func(models.Session) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if keep(s) {
			kept = append(kept, s)
		}
	}
	m.sessions = kept
}

func (m *memSessions) DeleteBySessionID(_ context.Context, sessionID string) error {
	m.remove(func(s models.Session) bool { return s.SessionID != sessionID })
	return nil
}

func (m *memSessions) DeleteAllUserSessions(_ context.Context, userID uint) error {
	m.remove(func(s models.Session) bool { return s.UserID != userID })
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	actions []string
}

func (m *memAudit) Create(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, log.Action)
	return nil
}

type presenceRecorder struct {
	logins, logouts int
}

func (p *presenceRecorder) Login(_ context.Context, userID uint) (*models.Attendance, error) {
	p.logins++
	return &models.Attendance{UserID: userID, Status: models.AttendancePresent}, nil
}

func (p *presenceRecorder) Logout(_ context.Context, userID uint) (*models.Attendance, error) {
	p.logouts++
	return &models.Attendance{UserID: userID}, nil
}

const testPassword = "correct-horse-battery"

type authFixture struct {
	svc      *AuthService
	users    *memUserStore
	sessions *memSessions
	audit    *memAudit
	presence *presenceRecorder
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	tokens := auth.NewService(&config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	})
	hash, err := tokens.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	users := testUsers()
	for i := range users {
		users[i].PasswordHash = hash
	}
	f := &authFixture{
		users:    newMemUserStore(users...),
		sessions: &memSessions{},
		audit:    &memAudit{},
		presence: &presenceRecorder{},
	}
	f.svc = NewAuthService(f.users, f.sessions, tokens, f.presence, NewAuditService(f.audit))
	return f
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, LoginInput{Email: "  Employee@Test.com ", Password: testPassword}, ClientInfo{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.User.ID != employee.ID {
		t.Errorf("Unexpected token pair %+v", pair)
	}
	if len(f.sessions.sessions) != 2 || f.sessions.sessions[0].SessionID != f.sessions.sessions[1].SessionID {
		t.Errorf("Expected one access and one refresh session sharing an id, got %+v", f.sessions.sessions)
	}
	if f.presence.logins != 1 {
		t.Errorf("Expected an attendance login, got %d", f.presence.logins)
	}

	actor, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if actor != employee {
		t.Errorf("Expected actor %+v, got %+v", employee, actor)
	}

	if _, err := f.svc.Authenticate(ctx, pair.RefreshToken); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected a refresh token to be rejected as access token, got %v", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.users[otherEmployee.ID].IsActive = false

	tests := []struct {
		name  string
		input LoginInput
		code  string
	}{
		{"malformed email", LoginInput{Email: "nope", Password: testPassword}, CodeValidation},
		{"unknown email", LoginInput{Email: "ghost@test.com", Password: testPassword}, CodeUnauthorized},
		{"wrong password", LoginInput{Email: "employee@test.com", Password: "wrong-password"}, CodeUnauthorized},
		{"inactive user", LoginInput{Email: "seller@test.com", Password: testPassword}, CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.input, ClientInfo{})
			if ErrorCode(err) != tt.code {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}

	if len(f.sessions.sessions) != 0 {
		t.Errorf("Expected no sessions after failed logins, got %d", len(f.sessions.sessions))
	}
	if f.audit.actions[0] != "auth.login_failed" {
		t.Errorf("Expected the wrong password to be audited, got %v", f.audit.actions)
	}
}

func TestRefresh_RotatesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, LoginInput{Email: "employee@test.com", Password: testPassword}, ClientInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, pair.AccessToken, ClientInfo{}); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected an access token to be refused, got %v", err)
	}

	next, err := f.svc.Refresh(ctx, pair.RefreshToken, ClientInfo{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("Expected a new refresh token")
	}

	if _, err := f.svc.Refresh(ctx, pair.RefreshToken, ClientInfo{}); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected the old refresh token to be revoked, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, pair.AccessToken); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected the old access token to be revoked, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, next.AccessToken); err != nil {
		t.Errorf("Expected the new access token to work, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, _ := f.svc.Login(ctx, LoginInput{Email: "employee@test.com", Password: testPassword}, ClientInfo{})
	if err := f.svc.Logout(ctx, employee, pair.AccessToken, ClientInfo{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Errorf("Expected both tokens revoked, got %d sessions", len(f.sessions.sessions))
	}
	if f.presence.logouts != 1 {
		t.Errorf("Expected an attendance logout, got %d", f.presence.logouts)
	}

	// a second logout with the same token is harmless
	if err := f.svc.Logout(ctx, employee, pair.AccessToken, ClientInfo{}); err != nil {
		t.Errorf("Expected repeated logout to succeed, got %v", err)
	}
	if err := f.svc.Logout(ctx, employee, "garbage", ClientInfo{}); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected UNAUTHORIZED for a garbage token, got %v", err)
	}
}

func TestAuthenticate_Deactivated(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, _ := f.svc.Login(ctx, LoginInput{Email: "employee@test.com", Password: testPassword}, ClientInfo{})
	if err := f.svc.DeactivateUser(ctx, admin, employee.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, pair.AccessToken); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected a deactivated user to be rejected, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, _ := f.svc.Login(ctx, LoginInput{Email: "employee@test.com", Password: testPassword}, ClientInfo{UserAgent: "laptop"})
	second, _ := f.svc.Login(ctx, LoginInput{Email: "employee@test.com", Password: testPassword}, ClientInfo{UserAgent: "phone"})

	sessions, err := f.svc.Sessions(ctx, employee, second.AccessToken)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected two sessions, got %d", len(sessions))
	}
	current := 0
	var laptop string
	for _, s := range sessions {
		if s.Current {
			current++
			if s.UserAgent != "phone" {
				t.Errorf("Expected the phone session to be current, got %s", s.UserAgent)
			}
		}
		if s.UserAgent == "laptop" {
			laptop = s.SessionID
		}
	}
	if current != 1 {
		t.Errorf("Expected exactly one current session, got %d", current)
	}

	if err := f.svc.RevokeSession(ctx, otherEmployee, laptop, ClientInfo{}); ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND when revoking someone else's session, got %v", err)
	}
	if err := f.svc.RevokeSession(ctx, employee, laptop, ClientInfo{}); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, first.AccessToken); ErrorCode(err) != CodeUnauthorized {
		t.Errorf("Expected the revoked session to stop working, got %v", err)
	}
}

func TestUserAdministration(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	input := CreateUserInput{Email: "New@Test.com", Password: "long-enough", FirstName: "Nia", Role: "manager", Department: "ops"}
	if _, err := f.svc.CreateUser(ctx, manager, input); ErrorCode(err) != CodeForbidden {
		t.Errorf("Expected FORBIDDEN for a manager, got %v", err)
	}

	created, err := f.svc.CreateUser(ctx, admin, input)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.Email != "new@test.com" || created.Role != models.RoleManager || !created.IsActive {
		t.Errorf("Unexpected user %+v", created)
	}
	if created.PasswordHash == input.Password {
		t.Error("Expected the password to be hashed")
	}

	if _, err := f.svc.CreateUser(ctx, admin, input); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for a duplicate email, got %v", err)
	}

	role := "admin"
	dept := " platform "
	updated, err := f.svc.UpdateUser(ctx, admin, created.ID, UpdateUserInput{Role: &role, Department: &dept})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Role != models.RoleAdmin || updated.Department != "platform" {
		t.Errorf("Unexpected update %+v", updated)
	}

	bad := "owner"
	if _, err := f.svc.UpdateUser(ctx, admin, created.ID, UpdateUserInput{Role: &bad}); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for an unknown role, got %v", err)
	}
	if _, err := f.svc.UpdateUser(ctx, admin, 404, UpdateUserInput{}); ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}

	active := true
	page, err := f.svc.ListUsers(ctx, admin, UserQuery{Role: "ADMIN", IsActive: &active})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Expected two active admins, got %d", page.Total)
	}
	if _, err := f.svc.ListUsers(ctx, admin, UserQuery{Role: "owner"}); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for an unknown role filter, got %v", err)
	}
}

func TestLastAdminIsProtected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.DeactivateUser(ctx, admin, admin.ID); ErrorCode(err) != CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS for self deactivation, got %v", err)
	}

	// a second admin may act but not remove the only other admin
	second := models.User{ID: 10, Email: "second@test.com", Role: models.RoleAdmin, IsActive: false}
	f.users.users[second.ID] = &second
	other := Actor{ID: second.ID, Role: models.RoleAdmin}

	if err := f.svc.DeactivateUser(ctx, other, admin.ID); ErrorCode(err) != CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS when deactivating the last active admin, got %v", err)
	}

	demote := "MANAGER"
	if _, err := f.svc.UpdateUser(ctx, other, admin.ID, UpdateUserInput{Role: &demote}); ErrorCode(err) != CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS when demoting the last active admin, got %v", err)
	}

	if err := f.svc.DeactivateUser(ctx, admin, manager.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	u, _ := f.users.GetByID(ctx, manager.ID)
	if u.IsActive {
		t.Error("Expected the manager to be inactive")
	}
}
