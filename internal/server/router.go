package server

import (
	"context"
	"time"

	"tasks-api/internal/config"
	"tasks-api/internal/handlers"
	"tasks-api/internal/middleware"
	"tasks-api/internal/monitoring"
	"tasks-api/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Config *config.Config
	Tasks  services.TaskService
	Logs   handlers.LogRecorder

	// Database and Cache feed /health and /metrics. Cache may be nil.
	Database HealthSource
	Cache    HealthSource
}

// HealthSource is satisfied by database.DatabasePool and cache.RedisCache.
type HealthSource interface {
	Ping(ctx context.Context) error
	Stats() map[string]interface{}
}

func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RecoveryWithLog(),
		middleware.RequestLogger(),
		monitoring.MetricsMiddleware(),
		cors.New(corsConfig(deps.Config.CORS)),
	)

	if rl := deps.Config.RateLimit; rl.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.BurstSize,
		}))
	}

	registerComponents(deps)

	router.GET("/health", monitoring.HealthHandler())
	router.GET("/health/live", monitoring.LivenessHandler())
	router.GET("/health/ready", monitoring.ReadinessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())

	taskHandler := handlers.NewTaskHandler(deps.Tasks, deps.Logs)
	tasks := router.Group("/tasks")
	{
		tasks.GET("", taskHandler.GetTasks)
		tasks.GET("/:id", taskHandler.GetTaskByID)
		tasks.POST("", taskHandler.CreateTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}

	return router
}

func registerComponents(deps Dependencies) {
	if deps.Database != nil {
		monitoring.RegisterHealthCheck("database", true, deps.Database.Ping)
		monitoring.RegisterStats("database", deps.Database.Stats)
	}
	if deps.Cache != nil {
		monitoring.RegisterHealthCheck("cache", false, deps.Cache.Ping)
		stats := deps.Cache.Stats
		if cached, ok := deps.Tasks.(cacheStatser); ok {
			stats = cached.CacheStats
		}
		monitoring.RegisterStats("cache", stats)
	}
}

// cacheStatser is implemented by services.CachedTaskService.
type cacheStatser interface {
	CacheStats() map[string]interface{}
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = cfg.AllowedOrigins
	if len(c.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	}
	return c
}
