package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	pingDB    func() error
	pingRedis func() error
}

func NewHealthHandler(pingDB, pingRedis func() error) *HealthHandler {
	return &HealthHandler{pingDB: pingDB, pingRedis: pingRedis}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports not-ready while a dependency is unreachable so the load
// balancer can hold traffic back.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.pingDB != nil {
		if err := h.pingDB(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "database"})
			return
		}
	}
	if h.pingRedis != nil {
		if err := h.pingRedis(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "redis"})
			return
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
