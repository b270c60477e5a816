package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voltgate/ev-session-service/internal/config"
)

// actorKey is the gin context key carrying the authenticated admin username.
const actorKey = "actor"

func NewRouter(cfg *config.SessionConfig, sessions *SessionHandler, admins *AdminHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/start", sessions.Start)
	router.POST("/submit_payment", sessions.SubmitPayment)
	router.GET("/session/:token", sessions.GetSession)

	if cfg.Admin.Enabled {
		group := router.Group("/admin", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}), func(c *gin.Context) {
			c.Set(actorKey, c.MustGet(gin.AuthUserKey).(string))
		})

		group.GET("/sessions", admins.ListSessions)
		group.GET("/sessions/:key", admins.GetSession)
		group.POST("/sessions/:key/capture", admins.Capture)
		group.POST("/sessions/:key/void", admins.Void)
		group.POST("/sessions/:key/refund", admins.Refund)
		group.POST("/sessions/:key/reauthorize", admins.Reauthorize)
		group.POST("/sessions/:key/note", admins.AddNote)
		group.POST("/sessions/:key/soft_delete", admins.SoftDelete)
	}

	return router
}
