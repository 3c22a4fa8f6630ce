package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/projectlens/backend/config"
	"github.com/projectlens/backend/internal/embed"
	"github.com/projectlens/backend/internal/handler"
)

func Setup(
	cfg *config.Config,
	auditHandler *handler.AuditHandler,
	usageHandler *handler.UsageHandler,
	configHandler *handler.ConfigHandler,
) (*gin.Engine, error) {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	r.GET("/healthz", handler.Health)

	api := r.Group("/api")
	{
		auditHandler.RegisterRoutes(api)
		usageHandler.RegisterRoutes(api)
		configHandler.RegisterRoutes(api)
	}

	// 模板和静态资源，NoRoute 也在这里注册
	if err := embed.SetupRouter(r); err != nil {
		return nil, err
	}
	auditHandler.RegisterPageRoutes(r)

	return r, nil
}
