package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/r3hensler/base-client-server/internal/config"
	"github.com/r3hensler/base-client-server/internal/db"
	"github.com/r3hensler/base-client-server/internal/model"
	"github.com/r3hensler/base-client-server/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory store/ledger fakes ---

type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]*model.User{}}
}

func (m *memStore) CreateUser(_ context.Context, email, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, db.ErrDuplicate
		}
	}
	user := &model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, userID uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) deactivate(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].IsActive = false
}

type memLedger struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.RefreshToken
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[uuid.UUID]*model.RefreshToken{}}
}

func (m *memLedger) InsertRefreshToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	m.rows[row.ID] = row
	return nil
}

func (m *memLedger) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == tokenHash {
			copied := *row
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memLedger) RotateRefreshToken(_ context.Context, oldTokenID, userID uuid.UUID, newTokenHash string, newExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[oldTokenID]
	if !ok || old.RevokedAt != nil {
		return db.ErrAlreadyConsumed
	}
	now := time.Now()
	old.RevokedAt = &now
	row := &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: newTokenHash,
		ExpiresAt: newExpiresAt,
		CreatedAt: now,
	}
	m.rows[row.ID] = row
	return nil
}

func (m *memLedger) RevokeRefreshTokenByHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == tokenHash && row.RevokedAt == nil {
			now := time.Now()
			row.RevokedAt = &now
		}
	}
	return nil
}

func (m *memLedger) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revoked int64
	for _, row := range m.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			now := time.Now()
			row.RevokedAt = &now
			revoked++
		}
	}
	return revoked, nil
}

// --- harness ---

type testEnv struct {
	router *gin.Engine
	store  *memStore
}

func newTestEnv(t *testing.T, limiter *service.RateLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Env: "development",
		Auth: config.AuthConfig{
			JWTSecret:         "0f8fad5bd9cb469fa165408799f49bce",
			JWTAccessTTL:      "15m",
			JWTRefreshTTL:     "168h",
			Issuer:            "base-client-server",
			Audience:          "base-client-server-api",
			MinPasswordLength: "8",
			RequireComplexity: "true",
			RevokeOnReuse:     "false",
		},
		Cookie: config.CookieConfig{Secure: "false", SameSite: "lax"},
		CORS:   config.CORSConfig{AllowedOrigins: "http://localhost:5173"},
	}

	store := newMemStore()
	svc, err := service.NewAuthService(store, newMemLedger(), cfg.Env, cfg.Auth, cfg.Cookie, zerolog.Nop())
	require.NoError(t, err)

	return &testEnv{
		router: NewRouter(cfg, svc, limiter),
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func findCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- tests ---

func TestRegisterLoginRefreshLogoutFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	// Register returns the sanitized user and no cookies.
	w := env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var registered model.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.Equal(t, "a@x.com", registered.Email)
	assert.True(t, registered.IsActive)
	assert.Empty(t, w.Result().Cookies())
	assert.NotContains(t, w.Body.String(), "password")

	// Login sets both cookies.
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusOK, w.Code)
	access := findCookie(t, w, "access_token")
	refresh := findCookie(t, w, "refresh_token")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, "/api/v1/auth", refresh.Path)
	assert.Equal(t, 15*60, access.MaxAge)
	assert.Equal(t, 168*3600, refresh.MaxAge)

	// Refresh rotates: new cookies, old refresh token dead.
	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, w.Code)
	newRefresh := findCookie(t, w, "refresh_token")
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, refresh.Value, newRefresh.Value)

	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout, then the rotated token is dead too.
	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", "", newRefresh)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := findCookie(t, w, "refresh_token")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", newRefresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout with the stale cookie still succeeds.
	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", "", newRefresh)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"not-an-email","password":"Sup3r!password"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"weakpass"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate registration conflicts, case-insensitively.
	w = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"A@X.com","password":"Sup3r!password"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginFailureStatuses(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"nobody@x.com","password":"Sup3r!password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Wr0ng!password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var userID uuid.UUID
	for id := range env.store.users {
		userID = id
	}
	env.store.deactivate(userID)
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Sup3r!password"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Sup3r!password"}`)
	require.Equal(t, http.StatusOK, w.Code)
	access := findCookie(t, w, "access_token")
	require.NotNil(t, access)

	// Cookie auth.
	w = env.do(t, http.MethodGet, "/api/v1/auth/me", "", access)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "a@x.com", me.Email)

	// Bearer fallback for non-browser clients.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Garbage token.
	w = env.do(t, http.MethodGet, "/api/v1/auth/me", "", &http.Cookie{Name: "access_token", Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := service.NewRateLimiter(config.RedisConfig{
		Addr:        mr.Addr(),
		LoginLimit:  "5",
		SignupLimit: "3",
	}, zerolog.Nop())
	require.NoError(t, err)
	env := newTestEnv(t, limiter)

	for i := 0; i < 5; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Wr0ng!password"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"Wr0ng!password"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSecurityHeadersApplied(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Referrer-Policy"))
	// No HSTS in development; TLS terminates at the proxy in prod only.
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestClientIPTrustsRealIPOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.5:1234"

	assert.Equal(t, "10.0.0.5", ClientIP(c))

	c.Request.Header.Set("X-Forwarded-For", "spoofed-ip")
	assert.Equal(t, "10.0.0.5", ClientIP(c))

	c.Request.Header.Set("X-Real-IP", "  203.0.113.1  ")
	assert.Equal(t, "203.0.113.1", ClientIP(c))
}
