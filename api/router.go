// Package api exposes the console over a local HTTP control surface.
package api

import (
	"github.com/aluiziolira/go-admin-console/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter wires every route. history and registry may be nil.
func SetupRouter(svc Service, history History, registry *prometheus.Registry, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())
	h := NewHandler(svc, history, cfg)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/console")
	v1.Use(AuthMiddleware(cfg.ConsoleToken))
	{
		v1.GET("/state", h.handleState)
		v1.GET("/targets", h.handleTargets)
		v1.GET("/journal", h.handleJournal)

		v1.POST("/scraping/start", h.handleStart)
		v1.POST("/scraping/refresh", h.handleRefresh)
		v1.POST("/scraping/stop/:taskId", h.handleStop)
		v1.GET("/scraping/tasks/:taskId", h.handleTaskDetail)
		v1.DELETE("/scraping/tasks/:taskId", h.handleDeleteTask)
		v1.GET("/scraping/logs/:taskId", h.handleTaskLogs)

		v1.GET("/llm/status", h.handleLLMStatus)
		v1.POST("/llm/download", h.handleDownload)
		v1.POST("/llm/run", h.handleRunPipeline)
	}
	return r
}
