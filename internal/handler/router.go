package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalhub/invitehub/internal/config"
	"signalhub/invitehub/internal/handler/middleware"
	jwtpkg "signalhub/invitehub/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	invitationHandler *InvitationHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Admin routes (JWT + admin check)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(jwtManager))
	admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs))
	{
		admin.POST("/invitations", invitationHandler.Invite)
		admin.GET("/invitations/history", invitationHandler.History)
		admin.GET("/invitations/archive", invitationHandler.Archive)
		admin.GET("/invitations/stats", invitationHandler.Stats)
		admin.GET("/ratelimits", invitationHandler.RateLimit)
	}

	return r
}
