package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/session"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// APIKeyHeader is the only place an API key is read from
const APIKeyHeader = "X-API-Key"

const tenantKey = "tenant_context"

// APIKeyResolver maps a presented key to its business
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*models.Business, error)
}

// AuthMiddleware resolves the tenant of a request from a session or an API key
type AuthMiddleware struct {
	sessions *session.Manager
	keys     APIKeyResolver
	log      *logrus.Logger
}

func NewAuthMiddleware(sessions *session.Manager, keys APIKeyResolver, log *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, keys: keys, log: log}
}

// RequireSession resolves the tenant from the session cookie only
func (am *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := am.sessions.Load(c)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				am.log.WithError(err).Error("session lookup failed")
			}
			metrics.AuthFailure("session")
			utils.UnauthorizedResponse(c, "Authentication required")
			c.Abort()
			return
		}

		am.setTenant(c, &models.TenantContext{
			BusinessID:    data.BusinessID,
			BusinessName:  data.BusinessName,
			UserID:        data.UserID,
			Role:          data.Role,
			Method:        models.AuthMethodSession,
			SessionHandle: data.Handle,
		})
	}
}

// RequireAPIKey resolves the tenant from the X-API-Key header only. Cookies and the
// Authorization header are never consulted.
func (am *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			metrics.AuthFailure("api_key")
			utils.UnauthorizedResponse(c, "API key required")
			c.Abort()
			return
		}

		business, err := am.keys.ResolveAPIKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				metrics.AuthFailure("api_key")
				utils.UnauthorizedResponse(c, "Invalid API key")
			} else {
				am.log.WithError(err).Error("api key lookup failed")
				utils.InternalServerErrorResponse(c, "Failed to verify API key")
			}
			c.Abort()
			return
		}

		am.setTenant(c, &models.TenantContext{
			BusinessID:   business.ID,
			BusinessName: business.Name,
			Method:       models.AuthMethodAPIKey,
		})
	}
}

// setTenant stores the request identity. A request has exactly one; a second
// resolution is a routing bug and fails the request.
func (am *AuthMiddleware) setTenant(c *gin.Context, tc *models.TenantContext) {
	if _, exists := c.Get(tenantKey); exists {
		am.log.WithField("path", c.FullPath()).Error("tenant resolved twice for one request")
		utils.InternalServerErrorResponse(c, "Internal server error")
		c.Abort()
		return
	}
	c.Set(tenantKey, tc)
	c.Next()
}

// RequireRole allows only the listed roles
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := GetTenantFromContext(c)
		if !ok {
			utils.UnauthorizedResponse(c, "Authentication required")
			c.Abort()
			return
		}
		for _, r := range roles {
			if tc.Role == r {
				c.Next()
				return
			}
		}
		am.log.WithFields(logrus.Fields{
			"business_id": tc.BusinessID,
			"role":        tc.Role,
			"path":        c.FullPath(),
		}).Info("insufficient role")
		utils.ForbiddenResponse(c, "Insufficient permissions")
		c.Abort()
	}
}

// RequireTeamMember requires a session opened with a user PIN
func (am *AuthMiddleware) RequireTeamMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := GetTenantFromContext(c)
		if !ok {
			utils.UnauthorizedResponse(c, "Authentication required")
			c.Abort()
			return
		}
		if !tc.IsTeamMember() {
			utils.ForbiddenResponse(c, "Team member login required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetTenantFromContext returns the identity resolved for the request
func GetTenantFromContext(c *gin.Context) (*models.TenantContext, bool) {
	v, exists := c.Get(tenantKey)
	if !exists {
		return nil, false
	}
	tc, ok := v.(*models.TenantContext)
	return tc, ok
}

// MustScope returns a data-access scope for the request's business. When there is no
// tenant it writes a 401 and returns false.
func MustScope(c *gin.Context, db *gorm.DB) (*tenancy.Scope, *models.TenantContext, bool) {
	tc, ok := GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return nil, nil, false
	}
	scope, err := tenancy.New(db, tc.BusinessID)
	if err != nil {
		utils.UnauthorizedResponse(c, "Authentication required")
		return nil, nil, false
	}
	return scope, tc, true
}
