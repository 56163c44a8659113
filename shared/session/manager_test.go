package session_test

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

	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/session"
	"github.com/bizworx/bizworx-api/shared/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager(t *testing.T, ttl time.Duration) *session.Manager {
	t.Helper()
	client, _ := testutil.NewRedis(t)
	return session.NewManager(session.NewRedisStore(client), session.Config{CookieName: "sid", TTL: ttl})
}

// request builds a gin context whose request carries cookie (when non-empty)
func request(cookie *http.Cookie) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		c.Request.AddCookie(cookie)
	}
	return c, w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "sid" {
			return ck
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestStartSetsHardenedCookie(t *testing.T) {
	m := newManager(t, time.Hour)
	c, w := request(nil)

	data, err := m.Start(c, session.Identity{BusinessID: uuid.New(), BusinessName: "Acme", Role: models.RoleOwner})
	require.NoError(t, err)
	assert.NotEmpty(t, data.Handle)

	ck := sessionCookie(t, w)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.NotContains(t, ck.Value, data.Handle)

	c2, _ := request(ck)
	loaded, err := m.Load(c2)
	require.NoError(t, err)
	assert.Equal(t, data.BusinessID, loaded.BusinessID)
	assert.Equal(t, "Acme", loaded.BusinessName)
	assert.Nil(t, loaded.UserID)
}

func TestStartRegeneratesAndDropsOldSession(t *testing.T) {
	m := newManager(t, time.Hour)
	first, second := uuid.New(), uuid.New()

	c, w := request(nil)
	_, err := m.Start(c, session.Identity{BusinessID: first, Role: models.RoleOwner})
	require.NoError(t, err)
	oldCookie := sessionCookie(t, w)

	// a new login on the same browser
	c, w = request(oldCookie)
	_, err = m.Start(c, session.Identity{BusinessID: second, Role: models.RoleOwner})
	require.NoError(t, err)
	newCookie := sessionCookie(t, w)
	assert.NotEqual(t, oldCookie.Value, newCookie.Value)

	c, _ = request(oldCookie)
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)

	c, _ = request(newCookie)
	data, err := m.Load(c)
	require.NoError(t, err)
	assert.Equal(t, second, data.BusinessID)
}

func TestLoadWithoutCookie(t *testing.T) {
	m := newManager(t, time.Hour)

	c, _ := request(nil)
	_, err := m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)

	c, _ = request(&http.Cookie{Name: "sid", Value: "made-up"})
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestDestroy(t *testing.T) {
	m := newManager(t, time.Hour)

	c, w := request(nil)
	_, err := m.Start(c, session.Identity{BusinessID: uuid.New(), Role: models.RoleOwner})
	require.NoError(t, err)
	ck := sessionCookie(t, w)

	c, w = request(ck)
	require.NoError(t, m.Destroy(c))
	cleared := sessionCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.MaxAge < 0)

	c, _ = request(ck)
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestSessionExpires(t *testing.T) {
	client, mr := testutil.NewRedis(t)
	m := session.NewManager(session.NewRedisStore(client), session.Config{CookieName: "sid", TTL: time.Minute})

	c, w := request(nil)
	_, err := m.Start(c, session.Identity{BusinessID: uuid.New(), Role: models.RoleOwner})
	require.NoError(t, err)
	ck := sessionCookie(t, w)

	mr.FastForward(2 * time.Minute)

	c, _ = request(ck)
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

// interleavedStore runs afterGet between reading a session and returning it, which is
// where a concurrent request can log the browser in or out
type interleavedStore struct {
	*session.RedisStore
	afterGet func()
}

func (s *interleavedStore) Get(ctx context.Context, token string) (*session.Data, error) {
	data, err := s.RedisStore.Get(ctx, token)
	if s.afterGet != nil {
		hook := s.afterGet
		s.afterGet = nil
		hook()
	}
	return data, err
}

// seedStale stores a session that is due for a sliding refresh
func seedStale(t *testing.T, store session.Store, token string, businessID uuid.UUID) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.Save(context.Background(), token, &session.Data{
		Handle:     uuid.NewString(),
		BusinessID: businessID,
		Role:       models.RoleOwner,
		CreatedAt:  now.Add(-2 * time.Hour),
		LastUsedAt: now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(time.Hour),
	}, time.Hour))
}

func TestLoadRefreshesStaleSession(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	store := session.NewRedisStore(client)
	m := session.NewManager(store, session.Config{CookieName: "sid", TTL: 2 * time.Hour})
	businessID := uuid.New()
	seedStale(t, store, "stale-token", businessID)

	c, _ := request(&http.Cookie{Name: "sid", Value: "stale-token"})
	data, err := m.Load(c)
	require.NoError(t, err)
	assert.Equal(t, businessID, data.BusinessID)
	assert.WithinDuration(t, time.Now(), data.LastUsedAt, 5*time.Second)

	stored, err := store.Get(context.Background(), "stale-token")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), stored.ExpiresAt, 5*time.Second)
}

func TestRefreshDoesNotResurrectDestroyedSession(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	store := &interleavedStore{RedisStore: session.NewRedisStore(client)}
	m := session.NewManager(store, session.Config{CookieName: "sid", TTL: time.Hour})
	cookie := &http.Cookie{Name: "sid", Value: "old-token"}
	seedStale(t, store, cookie.Value, uuid.New())

	// logout lands after the in-flight request read the record
	store.afterGet = func() {
		c, _ := request(cookie)
		require.NoError(t, m.Destroy(c))
	}

	c, _ := request(cookie)
	_, err := m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = store.RedisStore.Get(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, session.ErrNoSession)

	c, _ = request(cookie)
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestRefreshDoesNotResurrectReplacedSession(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	store := &interleavedStore{RedisStore: session.NewRedisStore(client)}
	m := session.NewManager(store, session.Config{CookieName: "sid", TTL: time.Hour})
	oldBusiness, newBusiness := uuid.New(), uuid.New()
	cookie := &http.Cookie{Name: "sid", Value: "old-token"}
	seedStale(t, store, cookie.Value, oldBusiness)

	// another business logs in on the same browser mid-request
	var newCookie *http.Cookie
	store.afterGet = func() {
		c, w := request(cookie)
		_, err := m.Start(c, session.Identity{BusinessID: newBusiness, Role: models.RoleOwner})
		require.NoError(t, err)
		newCookie = sessionCookie(t, w)
	}

	c, _ := request(cookie)
	_, err := m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)

	c, _ = request(cookie)
	_, err = m.Load(c)
	assert.ErrorIs(t, err, session.ErrNoSession)

	c, _ = request(newCookie)
	data, err := m.Load(c)
	require.NoError(t, err)
	assert.Equal(t, newBusiness, data.BusinessID)
}

func TestRename(t *testing.T) {
	m := newManager(t, time.Hour)

	c, w := request(nil)
	_, err := m.Start(c, session.Identity{BusinessID: uuid.New(), BusinessName: "Acme", Role: models.RoleOwner})
	require.NoError(t, err)
	ck := sessionCookie(t, w)

	c, _ = request(ck)
	data, err := m.Rename(c, "Acme Lawn")
	require.NoError(t, err)
	assert.Equal(t, "Acme Lawn", data.BusinessName)

	c, _ = request(ck)
	loaded, err := m.Load(c)
	require.NoError(t, err)
	assert.Equal(t, "Acme Lawn", loaded.BusinessName)

	c, _ = request(ck)
	require.NoError(t, m.Destroy(c))
	c, _ = request(ck)
	_, err = m.Rename(c, "Ghost")
	assert.ErrorIs(t, err, session.ErrNoSession)
}
