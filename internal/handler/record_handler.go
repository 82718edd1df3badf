package handler

import (
	"net/http"
	"strconv"
	"time"

	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/model"
	"MedSol-RAG/internal/repository"
	"MedSol-RAG/internal/service"

	"github.com/gin-gonic/gin"
)

type RecordHandler struct {
	recordings repository.RecordingRepository
	documents  repository.DocumentRepository
	ingest     *service.IngestService
	chat       *service.ChatService
}

func NewRecordHandler(recordings repository.RecordingRepository, documents repository.DocumentRepository, ingest *service.IngestService, chat *service.ChatService) *RecordHandler {
	return &RecordHandler{
		recordings: recordings,
		documents:  documents,
		ingest:     ingest,
		chat:       chat,
	}
}

// GetRecording GET /transcriptions/:id
func (h *RecordHandler) GetRecording(c *gin.Context) {
	rec, err := h.recordings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListRecordings GET /transcriptions?status=&from=&to=&page=&size=
func (h *RecordHandler) ListRecordings(c *gin.Context) {
	filter := repository.RecordingFilter{
		Status:  c.Query("status"),
		Patient: c.Query("patient"),
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	recs, total, err := h.recordings.List(c.Request.Context(), filter, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResp[model.Recording]{
		Items: recs,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// DeleteRecording DELETE /transcriptions/:id (级联删除向量)
func (h *RecordHandler) DeleteRecording(c *gin.Context) {
	if err := h.ingest.DeleteRecording(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDocument GET /documents/:id
func (h *RecordHandler) GetDocument(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ListDocuments GET /documents?status=&patient=&page=&size=
func (h *RecordHandler) ListDocuments(c *gin.Context) {
	filter := repository.DocumentFilter{
		Status:  c.Query("status"),
		Patient: c.Query("patient"),
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	docs, total, err := h.documents.List(c.Request.Context(), filter, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResp[model.Document]{
		Items: docs,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// DeleteDocument DELETE /documents/:id
func (h *RecordHandler) DeleteDocument(c *gin.Context) {
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SearchDocuments GET /documents/search?query=&max_results=
func (h *RecordHandler) SearchDocuments(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "falta el parámetro query"})
		return
	}
	maxResults, _ := strconv.Atoi(c.DefaultQuery("max_results", "5"))

	hits, err := h.chat.Search(c.Request.Context(), query, maxResults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}
