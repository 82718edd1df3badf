package handler

import (
	"MedSol-RAG/internal/apperr"

	"github.com/gin-gonic/gin"
)

// respondError 错误类型 → HTTP 状态码的统一出口
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(apperr.HTTPStatus(kind), gin.H{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
