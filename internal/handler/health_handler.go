package handler

import (
	"net/http"

	"MedSol-RAG/internal/service"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	svc *service.HealthService
}

func NewHealthHandler(svc *service.HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := h.svc.Health(c.Request.Context())
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// VectorStatus GET /vector-store/status
func (h *HealthHandler) VectorStatus(c *gin.Context) {
	stats, err := h.svc.VectorStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
