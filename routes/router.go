package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/odokhq/odok/config"
	"github.com/odokhq/odok/controllers"
	"github.com/odokhq/odok/ledger"
	"github.com/odokhq/odok/middleware"
	"github.com/odokhq/odok/publish"
	"github.com/odokhq/odok/slots"
	"github.com/odokhq/odok/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access and recovery logs go to a rolling file through zap, replacing
	// the default console logger.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	loc := cfg.Location()
	inkLedger := ledger.New(db, loc)
	allocator := slots.NewAllocator(db)
	generator := publish.NewHTTPGenerator(cfg.GeneratorBaseURL, cfg.GeneratorTimeout())
	workflow := publish.NewWorkflow(db, inkLedger, allocator, generator, utils.NewInflightStore(), loc, utils.Sugar)

	authController := controllers.NewAuthController(db)
	bookController := controllers.NewBookController(db, inkLedger, workflow, allocator)
	inkController := controllers.NewInkController(db, inkLedger)
	slotController := controllers.NewSlotController(db)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	api.GET("/books", bookController.List)
	api.GET("/slots/today", slotController.Today)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimit())
	protected.GET("/books/quota", bookController.Quota)
	protected.POST("/books", bookController.Publish)
	protected.GET("/books/:id", bookController.Get)
	protected.POST("/books/:id/episodes", bookController.AddEpisode)
	protected.POST("/books/:id/engage/:action", bookController.Engage)
	protected.POST("/ink/attendance", inkController.Attendance)
	protected.POST("/ink/transfer", inkController.Transfer)
	protected.GET("/ink/status", inkController.Status)
	protected.GET("/ink/transactions", inkController.Transactions)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
