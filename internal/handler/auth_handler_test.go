package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/middleware"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/service"
	"github.com/noah-isme/face-attendance-api/pkg/config"
)

type userRepoStub struct {
	users     map[string]models.User
	passwords map[string]string
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]models.User), passwords: make(map[string]string)}
}

func (m *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *userRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *userRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	return nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func newAuthHandler(repo *userRepoStub) *AuthHandler {
	cfg := config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}
	return NewAuthHandler(service.NewAuthService(repo, cfg, nil, nil))
}

func seedAuthUser(t *testing.T, repo *userRepoStub, id, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users[id] = models.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test Teacher",
		Role:         models.RoleTeacher,
		Active:       true,
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newUserRepoStub()
	seedAuthUser(t, repo, "user-1", "teacher@university.test", "correct-horse")
	handler := newAuthHandler(repo)

	payload, _ := json.Marshal(dto.LoginRequest{Email: "teacher@university.test", Password: "correct-horse"})
	c, w := newGinContext(http.MethodPost, "/auth/login", payload)

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.Token)
	require.Equal(t, "user-1", envelope.Data.User.ID)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newUserRepoStub()
	seedAuthUser(t, repo, "user-1", "teacher@university.test", "correct-horse")
	handler := newAuthHandler(repo)

	payload, _ := json.Marshal(dto.LoginRequest{Email: "teacher@university.test", Password: "wrong-password"})
	c, w := newGinContext(http.MethodPost, "/auth/login", payload)

	handler.Login(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerProfileWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandler(newUserRepoStub())

	c, w := newGinContext(http.MethodGet, "/auth/profile", nil)

	handler.Profile(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerChangePassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newUserRepoStub()
	seedAuthUser(t, repo, "user-1", "teacher@university.test", "old-password")
	handler := newAuthHandler(repo)

	payload, _ := json.Marshal(dto.ChangePasswordRequest{CurrentPassword: "old-password", NewPassword: "new-password-123"})
	c, w := newGinContext(http.MethodPut, "/auth/password", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})

	handler.ChangePassword(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Contains(t, repo.passwords, "user-1")
}
