package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/api/middleware"
	"github.com/taoyao-code/isp-ops/internal/config"
)

// RegisterRoutes mounts the admin API under /api.
func RegisterRoutes(r gin.IRouter, h *Handler, authCfg config.APIAuthConfig, logger *zap.Logger) {
	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/resolve", h.Resolve)

	devices := api.Group("/devices/:id")
	devices.GET("/summary", h.Summary)
	devices.POST("/reboot", h.Reboot)
	devices.POST("/refresh", h.Refresh)
	devices.POST("/parameters", h.SetParameters)
	devices.POST("/tags", h.AddTag)
	devices.PUT("/tags", h.ReplaceTags)
	devices.DELETE("/tags/:tag", h.RemoveTag)

	api.POST("/cache/invalidate", h.InvalidateCache)
	api.GET("/cache/stats", h.CacheStats)
}
