package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
)

// Identity is who a new session belongs to
type Identity struct {
	BusinessID   uuid.UUID
	BusinessName string
	UserID       *uuid.UUID
	Role         models.UserRole
}

// Config controls the session cookie
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager issues, loads and destroys cookie sessions
type Manager struct {
	store  Store
	cookie string
	ttl    time.Duration
	secure bool
}

func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "bizworx_session"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &Manager{store: store, cookie: cfg.CookieName, ttl: cfg.TTL, secure: cfg.Secure}
}

// Start replaces whatever session the request presented with a brand new one for id.
// The old record is deleted and a new token is minted, so nothing carries over.
func (m *Manager) Start(c *gin.Context, id Identity) (*Data, error) {
	ctx := c.Request.Context()
	if old, err := c.Cookie(m.cookie); err == nil && old != "" {
		if err := m.store.Delete(ctx, old); err != nil {
			return nil, err
		}
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	data := &Data{
		Handle:       uuid.NewString(),
		BusinessID:   id.BusinessID,
		BusinessName: id.BusinessName,
		UserID:       id.UserID,
		Role:         id.Role,
		CreatedAt:    now,
		LastUsedAt:   now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, token, data, m.ttl); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.setCookie(c, token, int(m.ttl.Seconds()))
	return data, nil
}

// Load returns the session of the request and extends its lifetime
func (m *Manager) Load(c *gin.Context) (*Data, error) {
	token, err := c.Cookie(m.cookie)
	if err != nil || token == "" {
		return nil, ErrNoSession
	}

	ctx := c.Request.Context()
	data, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	// refresh at most once a minute, and only while the record is still there: a
	// login or logout that deleted it in the meantime wins
	now := time.Now()
	if now.Sub(data.LastUsedAt) > time.Minute {
		data.LastUsedAt = now
		data.ExpiresAt = now.Add(m.ttl)
		if err := m.store.Touch(ctx, token, data, m.ttl); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Rename updates the business name recorded in the request's session. A session that is
// already gone stays gone.
func (m *Manager) Rename(c *gin.Context, businessName string) (*Data, error) {
	token, err := c.Cookie(m.cookie)
	if err != nil || token == "" {
		return nil, ErrNoSession
	}
	ctx := c.Request.Context()
	data, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		return nil, ErrNoSession
	}
	data.BusinessName = businessName
	if err := m.store.Touch(ctx, token, data, ttl); err != nil {
		return nil, err
	}
	return data, nil
}

// Destroy ends the session of the request and clears the cookie
func (m *Manager) Destroy(c *gin.Context) error {
	token, err := c.Cookie(m.cookie)
	m.setCookie(c, "", -1)
	if err != nil || token == "" {
		return nil
	}
	return m.store.Delete(c.Request.Context(), token)
}

// CookieName is the name of the session cookie
func (m *Manager) CookieName() string {
	return m.cookie
}

func (m *Manager) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookie, value, maxAge, "/", "", m.secure, true)
}
