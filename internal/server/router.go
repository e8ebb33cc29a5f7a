package server

import (
	"net/http"
	"sync"

	"crm-backend/internal/apperror"
	"crm-backend/internal/config"
	"crm-backend/internal/handler"
	"crm-backend/internal/metrics"
	"crm-backend/internal/middleware"
	"crm-backend/internal/websocket"
	"crm-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

var registerValidator sync.Once

// NewRouter mounts the public endpoints and every API route. hub may be nil, in which
// case /ws is not served.
func NewRouter(app *App, cfg *config.Config, hub *websocket.Hub) *gin.Engine {
	registerValidator.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(apperror.JSONFieldName)
		}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(), metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", logger.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{logger.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := app.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Error("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	if hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(hub, c, auth)
		})
	}

	opts := handler.Options{HideInternalErrors: cfg.IsProduction()}
	api := router.Group("")
	handler.NewInvoiceHandler(app.Invoices, app.Payments, auth, opts).RegisterRoutes(api)
	handler.NewPaymentHandler(app.Payments, app.Invoices, auth, opts).RegisterRoutes(api)
	handler.NewGatewayHandler(app.Gateways, auth, opts).RegisterRoutes(api)
	handler.NewProjectHandler(app.Projects, auth, opts).RegisterRoutes(api)
	handler.NewAuditHandler(app.Audit, auth, opts).RegisterRoutes(api)

	return router
}
