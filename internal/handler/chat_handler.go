package handler

import (
	"net/http"

	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	svc *service.ChatService
}

func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// HandleChat POST /chat
// Body: {query, max_results?, filters?, include_sources?}
func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req dto.ChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Chat(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSearch GET /search?query=&max_results=
func (h *ChatHandler) HandleSearch(c *gin.Context) {
	var req dto.SearchReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hits, err := h.svc.Search(c.Request.Context(), req.Query, req.MaxResults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}
