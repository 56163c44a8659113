package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/config"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/ratelimit"
	"github.com/bizworx/bizworx-api/shared/session"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// Server holds the dependencies shared by the API handlers
type Server struct {
	cfg       *config.AppConfig
	db        *gorm.DB
	redis     *redis.Client
	auth      *auth.Service
	sessions  *session.Manager
	authMW    *middleware.AuthMiddleware
	pinLimits *ratelimit.Limiter
	links     *auth.LinkSigner
	events    events.Publisher
	log       *logrus.Logger
	now       func() time.Time
}

// NewServer wires the API from its infrastructure
func NewServer(cfg *config.AppConfig, db *gorm.DB, rdb *redis.Client, publisher events.Publisher, log *logrus.Logger) *Server {
	authService := auth.NewService(db, auth.Options{
		Cache:    rdb,
		CacheTTL: cfg.APIKeyCacheTTL,
		HashCost: cfg.BcryptCost,
		Logger:   log,
	})
	sessions := session.NewManager(session.NewRedisStore(rdb), session.Config{
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.SessionSecure,
	})

	return &Server{
		cfg:       cfg,
		db:        db,
		redis:     rdb,
		auth:      authService,
		sessions:  sessions,
		authMW:    middleware.NewAuthMiddleware(sessions, authService, log),
		pinLimits: ratelimit.NewLimiter(rdb, "bizworx:pin:", cfg.PinMaxAttempts, cfg.PinWindow),
		links:     auth.NewLinkSigner(cfg.LinkSecret, cfg.LinkTTL),
		events:    publisher,
		log:       log,
		now:       time.Now,
	}
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(s.log))
	router.Use(metrics.GinMiddleware())
	if len(s.cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.APIKeyHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")

	public := api.Group("/auth")
	{
		public.POST("/business/register", s.handleRegisterBusiness)
		public.POST("/business/login", s.handleBusinessLogin)
	}

	shared := api.Group("/public/estimates")
	{
		shared.GET("/:token", s.handleGetSharedEstimate)
		shared.POST("/:token/approve", s.handleDecideSharedEstimate(models.EstimateApproved))
		shared.POST("/:token/reject", s.handleDecideSharedEstimate(models.EstimateRejected))
	}

	authed := api.Group("")
	authed.Use(s.authMW.RequireSession())
	manage := s.authMW.RequireRole(models.RoleOwner, models.RoleAdmin)
	{
		authed.POST("/auth/user/login", s.handlePinLogin)
		authed.POST("/auth/user/logout", s.handleUserLogout)
		authed.POST("/auth/logout", s.handleLogout)
		authed.GET("/auth/session", s.handleGetSession)

		authed.GET("/business", s.handleGetBusiness)
		authed.PUT("/business", manage, s.handleUpdateBusiness)
		authed.GET("/business/api-key", manage, s.handleGetAPIKeyStatus)
		authed.POST("/business/api-key", manage, s.handleIssueAPIKey)
		authed.DELETE("/business/api-key", manage, s.handleRevokeAPIKey)

		authed.GET("/users", manage, s.handleListUsers)
		authed.POST("/users", manage, s.handleCreateUser)
		authed.PUT("/users/:id", manage, s.handleUpdateUser)
		authed.DELETE("/users/:id", manage, s.handleDeactivateUser)

		authed.GET("/clients", s.handleListClients)
		authed.POST("/clients", s.handleCreateClient)
		authed.GET("/clients/:id", s.handleGetClient)
		authed.PUT("/clients/:id", s.handleUpdateClient)
		authed.DELETE("/clients/:id", s.handleDeleteClient)

		authed.GET("/services", s.handleListServices)
		authed.POST("/services", s.handleCreateService)
		authed.GET("/services/:id", s.handleGetService)
		authed.PUT("/services/:id", s.handleUpdateService)
		authed.DELETE("/services/:id", s.handleDeleteService)

		authed.GET("/jobs", s.handleListJobs)
		authed.POST("/jobs", s.handleCreateJob)
		authed.GET("/jobs/:id", s.handleGetJob)
		authed.PUT("/jobs/:id", s.handleUpdateJob)
		authed.DELETE("/jobs/:id", s.handleDeleteJob)

		authed.GET("/estimates", s.handleListEstimates)
		authed.POST("/estimates", s.handleCreateEstimate)
		authed.GET("/estimates/:id", s.handleGetEstimate)
		authed.PUT("/estimates/:id", s.handleUpdateEstimate)
		authed.DELETE("/estimates/:id", s.handleDeleteEstimate)
		authed.POST("/estimates/:id/share", s.handleShareEstimate)
		authed.POST("/estimates/:id/convert", s.handleConvertEstimate)

		authed.GET("/invoices", s.handleListInvoices)
		authed.POST("/invoices", s.handleCreateInvoice)
		authed.GET("/invoices/:id", s.handleGetInvoice)
		authed.PUT("/invoices/:id", s.handleUpdateInvoice)
		authed.DELETE("/invoices/:id", s.handleDeleteInvoice)
		authed.POST("/invoices/:id/send", s.handleSendInvoice)
		authed.POST("/invoices/:id/pay", s.handlePayInvoice)

		team := s.authMW.RequireTeamMember()
		authed.POST("/time/clock-in", team, s.handleClockIn)
		authed.POST("/time/clock-out", team, s.handleClockOut)
		authed.GET("/time/active", team, s.handleActiveEntry)
		authed.GET("/time/entries", s.handleListTimeEntries)

		authed.GET("/activity", s.handleListActivity)
		authed.GET("/dashboard", s.handleDashboard)
	}

	gpt := api.Group("/gpt")
	gpt.Use(s.authMW.RequireAPIKey())
	{
		gpt.GET("/business", s.handleGPTBusiness)
		gpt.GET("/clients", s.handleGPTListClients)
		gpt.POST("/clients", s.handleGPTCreateClient)
		gpt.GET("/clients/:id", s.handleGPTGetClient)
		gpt.GET("/jobs", s.handleGPTListJobs)
		gpt.POST("/jobs", s.handleGPTCreateJob)
		gpt.GET("/estimates", s.handleGPTListEstimates)
		gpt.GET("/invoices", s.handleGPTListInvoices)
		gpt.GET("/services", s.handleGPTListServices)
		gpt.GET("/dashboard", s.handleGPTDashboard)
	}

	router.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "Route not found")
	})

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err == nil {
		err = s.redis.Ping(c.Request.Context()).Err()
	}
	if err != nil {
		s.log.WithError(err).Error("health check failed")
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "BizWorx API is degraded")
		return
	}
	utils.OKResponse(c, "BizWorx API is healthy", nil)
}
