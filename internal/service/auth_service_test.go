package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]models.User
	lastLogin map[string]time.Time
	passwords map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:     make(map[string]models.User),
		lastLogin: make(map[string]time.Time),
		passwords: make(map[string]string),
	}
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	m.passwords[id] = passwordHash
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}
}

func seedUser(t *testing.T, repo *mockUserRepo, id, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users[id] = models.User{
		ID:           id,
		Email:        email,
		FullName:     "Test User",
		Role:         models.RoleTeacher,
		PasswordHash: string(hash),
		Active:       active,
	}
}

func TestLoginIssuesToken(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "teacher@university.test", "correct-horse", true)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "teacher@university.test",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.NotEmpty(t, resp.Token)
	assert.Contains(t, repo.lastLogin, "user-1")

	claims := &models.JWTClaims{}
	_, err = jwt.ParseWithClaims(resp.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "teacher@university.test", "correct-horse", true)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "teacher@university.test",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "nobody@university.test",
		Password: "irrelevant",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "former@university.test", "correct-horse", false)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "former@university.test",
		Password: "correct-horse",
	})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestChangePassword(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "teacher@university.test", "old-password", true)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	err := svc.ChangePassword(context.Background(), "user-1", dto.ChangePasswordRequest{
		CurrentPassword: "old-password",
		NewPassword:     "new-password-123",
	})
	require.NoError(t, err)
	require.Contains(t, repo.passwords, "user-1")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords["user-1"]), []byte("new-password-123")))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "teacher@university.test", "old-password", true)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	err := svc.ChangePassword(context.Background(), "user-1", dto.ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "new-password-123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.NotContains(t, repo.passwords, "user-1")
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "user-1", "teacher@university.test", "correct-horse", true)
	svc := NewAuthService(repo, testJWTConfig(), nil, nil)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "teacher@university.test",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = svc.ValidateToken(resp.Token + "tampered")
	require.Error(t, err)
}

func TestProfileUnknownUser(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), testJWTConfig(), nil, nil)

	_, err := svc.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
