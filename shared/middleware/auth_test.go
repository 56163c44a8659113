package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/session"
	"github.com/bizworx/bizworx-api/shared/testutil"
)

// stubResolver accepts exactly one key
type stubResolver struct {
	key      string
	business *models.Business
}

func (s *stubResolver) ResolveAPIKey(_ context.Context, key string) (*models.Business, error) {
	if key == s.key {
		return s.business, nil
	}
	return nil, auth.ErrUnauthorized
}

type fixture struct {
	router   *gin.Engine
	sessions *session.Manager
	key      string
	keyBiz   *models.Business
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, _ := testutil.NewRedis(t)
	sessions := session.NewManager(session.NewRedisStore(client), session.Config{CookieName: "sid", TTL: time.Hour})

	key, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	keyBiz := &models.Business{ID: uuid.New(), Name: "Key Holder"}

	am := middleware.NewAuthMiddleware(sessions, &stubResolver{key: key, business: keyBiz}, testutil.NewLogger())

	r := gin.New()
	r.Use(middleware.RequestLogger(testutil.NewLogger()))
	echo := func(c *gin.Context) {
		tc, ok := middleware.GetTenantFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, tc)
	}
	r.POST("/login/:biz", func(c *gin.Context) {
		id := uuid.MustParse(c.Param("biz"))
		role := models.UserRole(c.Query("role"))
		var userID *uuid.UUID
		if c.Query("user") != "" {
			u := uuid.New()
			userID = &u
		}
		_, err := sessions.Start(c, session.Identity{BusinessID: id, BusinessName: "Cookie Biz", Role: role, UserID: userID})
		require.NoError(t, err)
		c.Status(http.StatusNoContent)
	})
	r.GET("/session", am.RequireSession(), echo)
	r.GET("/gpt", am.RequireAPIKey(), echo)
	r.GET("/admin", am.RequireSession(), am.RequireRole(models.RoleOwner, models.RoleAdmin), echo)
	r.GET("/team", am.RequireSession(), am.RequireTeamMember(), echo)
	r.GET("/double", am.RequireSession(), am.RequireAPIKey(), echo)

	return &fixture{router: r, sessions: sessions, key: key, keyBiz: keyBiz}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, biz uuid.UUID, query string) *http.Cookie {
	t.Helper()
	w := f.do(httptest.NewRequest(http.MethodPost, "/login/"+biz.String()+"?"+query, nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestRequireSession(t *testing.T) {
	f := newFixture(t)
	biz := uuid.New()

	w := f.do(httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(f.login(t, biz, "role=owner"))
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), biz.String())
	assert.Contains(t, w.Body.String(), `"auth_method":"session"`)

	// an API key does not stand in for a session
	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set(middleware.APIKeyHeader, f.key)
	w = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAPIKeyUsesOnlyTheHeader(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(t, uuid.New(), "role=owner")

	req := httptest.NewRequest(http.MethodGet, "/gpt", nil)
	req.Header.Set("X-API-Key", f.key)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), f.keyBiz.ID.String())
	assert.Contains(t, w.Body.String(), `"auth_method":"api_key"`)

	// header names are case-insensitive in HTTP
	req = httptest.NewRequest(http.MethodGet, "/gpt", nil)
	req.Header.Set("x-api-key", f.key)
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	rejected := map[string]func(r *http.Request){
		"no credentials":   func(r *http.Request) {},
		"session cookie":   func(r *http.Request) { r.AddCookie(cookie) },
		"bearer token":     func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+f.key) },
		"alternate header": func(r *http.Request) { r.Header.Set("X-GPT-API-Key", f.key) },
		"query parameter":  func(r *http.Request) { r.URL.RawQuery = "api_key=" + f.key },
		"wrong key":        func(r *http.Request) { r.Header.Set("X-API-Key", f.key+"x") },
	}
	for name, prepare := range rejected {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/gpt", nil)
			prepare(req)
			assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)

	for role, want := range map[string]int{
		"owner":  http.StatusOK,
		"admin":  http.StatusOK,
		"member": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(f.login(t, uuid.New(), "role="+role))
		assert.Equal(t, want, f.do(req).Code, role)
	}
}

func TestRequireTeamMember(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/team", nil)
	req.AddCookie(f.login(t, uuid.New(), "role=owner"))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/team", nil)
	req.AddCookie(f.login(t, uuid.New(), "role=member&user=1"))
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestTenantIsNeverResolvedTwice(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/double", nil)
	req.AddCookie(f.login(t, uuid.New(), "role=owner"))
	req.Header.Set(middleware.APIKeyHeader, f.key)

	assert.Equal(t, http.StatusInternalServerError, f.do(req).Code)
}
