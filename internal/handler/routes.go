package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every ops endpoint.
type Handlers struct {
	Metrics      *MetricsHandler
	Tournaments  *TournamentOpsHandler
	Reservations *ReservationHandler
}

// RegisterRoutes mounts the ops surface on r.
func RegisterRoutes(r gin.IRouter, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	internal := r.Group("/internal")
	internal.GET("/summary", h.Metrics.Summary)

	tournaments := internal.Group("/tournaments/:id")
	tournaments.POST("/automation-checks", h.Tournaments.RunAutomation)
	tournaments.POST("/completion-check", h.Tournaments.CheckCompletion)
	tournaments.POST("/stats", h.Tournaments.RebuildStats)

	internal.GET("/reservations/:type/:id", h.Reservations.Get)
}
