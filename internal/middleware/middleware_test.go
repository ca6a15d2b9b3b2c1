package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// Auth
// ============================================================================

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	jwtService, err := auth.NewJWTService("secret", "", time.Minute)
	require.NoError(t, err)

	m := NewAuthMiddleware(jwtService)
	r := gin.New()
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextStudentID))
	})
	r.GET("/admin", m.RequireAuth(), m.AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, jwtService
}

func bearer(t *testing.T, s *auth.JWTService, studentID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := s.GenerateToken(&auth.JWTCustomClaims{
		StudentID: studentID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRequireAuth(t *testing.T) {
	r, s := newAuthRouter(t)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, "token_missing"},
		{"bad format", "Token abc", http.StatusUnauthorized, "token_format"},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, "token_invalid"},
		{"expired", bearer(t, s, "stu-1", auth.RoleStudent, -time.Minute), http.StatusUnauthorized, "token_expired"},
		{"valid", bearer(t, s, "stu-1", auth.RoleStudent, time.Hour), http.StatusOK, "stu-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	r, s := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, s, "stu-1", auth.RoleStudent, time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, s, "adm-1", auth.RoleAdmin, time.Hour))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// ============================================================================
// Params
// ============================================================================

func TestExtractUintParam(t *testing.T) {
	r := gin.New()
	r.GET("/tests/:id", ExtractUintParam("id", "testID"), func(c *gin.Context) {
		assert.Equal(t, uint(42), c.MustGet("testID").(uint))
		c.Status(http.StatusOK)
	})

	for path, want := range map[string]int{
		"/tests/42":  http.StatusOK,
		"/tests/0":   http.StatusBadRequest,
		"/tests/-1":  http.StatusBadRequest,
		"/tests/abc": http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

// ============================================================================
// Rate limit
// ============================================================================

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], window, nil
}

func newLimitedRouter(counter RateCounter, studentID string) *gin.Engine {
	rl := NewRateLimiter(counter, zap.NewNop())
	r := gin.New()
	r.POST("/submit", func(c *gin.Context) {
		c.Set(ContextStudentID, studentID)
		c.Next()
	}, rl.LimitByStudent(SubmitRateLimitConfig(2, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestLimitByStudent(t *testing.T) {
	counter := &fakeCounter{}
	r := newLimitedRouter(counter, "stu-1")

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// another student has its own budget
	other := newLimitedRouter(counter, "stu-2")
	w := httptest.NewRecorder()
	other.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimitByStudent_FailsOpen(t *testing.T) {
	r := newLimitedRouter(&fakeCounter{err: errors.New("redis down")}, "stu-1")

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestLimitByStudent_NilCounterDisables(t *testing.T) {
	r := newLimitedRouter(nil, "stu-1")

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/submit", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// ============================================================================
// Request ID
// ============================================================================

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
