package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kseverny/interview-platform/internal/common"
	"github.com/kseverny/interview-platform/internal/config"
	"github.com/kseverny/interview-platform/internal/httpapi/handlers"
	"github.com/kseverny/interview-platform/internal/httpapi/middleware"
	"github.com/kseverny/interview-platform/internal/models"
	"github.com/kseverny/interview-platform/internal/store/rabbitmq"
	"github.com/kseverny/interview-platform/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	corsCfg := cors.DefaultConfig()
	if cfg.CORSOrigins == "" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSOrigins, ",")
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID")
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/ping", h.Ping)

	// registration and auth
	r.POST("/captcha", h.SendCaptcha)
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)
	r.POST("/anonymous", h.Anonymous)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(cfg.JWTSecret))
	authed.GET("/me", h.Me)

	authed.GET("/chats", h.ListChats)
	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats/:chat_id", h.GetChat)
	authed.DELETE("/chats/:chat_id", h.ArchiveChat)
	authed.PUT("/chats/:chat_id/messages", h.SendMessage)

	admin := authed.Group("/")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/events", h.ListEvents)
	admin.POST("/events", h.CreateEvent)
	admin.GET("/admins", h.ListUsers)
	admin.POST("/admins/:id", h.PromoteAdmin)
	admin.DELETE("/admins/:id", h.DemoteAdmin)

	return r
}
