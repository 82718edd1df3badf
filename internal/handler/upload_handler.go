package handler

import (
	"net/http"

	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/service"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	svc *service.IngestService
}

func NewUploadHandler(svc *service.IngestService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// UploadAudio 上传音频
// POST /upload-audio  Form-Data: file=BINARY
func (h *UploadHandler) UploadAudio(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "falta el archivo"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archivo inválido"})
		return
	}
	defer src.Close()

	rec, err := h.svc.SubmitAudio(c.Request.Context(), fileHeader.Filename, fileHeader.Size, src)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.UploadResp{
		ID:       rec.ID,
		Filename: rec.Filename,
		Status:   rec.Status,
	})
}

// UploadDocument 上传文档 (PDF/图片)
// POST /upload-document  Form-Data: file=BINARY, patient_name?, document_type?, description?
func (h *UploadHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "falta el archivo"})
		return
	}

	meta := dto.DocumentMeta{
		PatientName:  c.PostForm("patient_name"),
		DocumentType: c.PostForm("document_type"),
		Description:  c.PostForm("description"),
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archivo inválido"})
		return
	}
	defer src.Close()

	doc, err := h.svc.SubmitDocument(c.Request.Context(), fileHeader.Filename, fileHeader.Size, src, meta)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.UploadResp{
		ID:       doc.ID,
		Filename: doc.Filename,
		Status:   doc.Status,
	})
}
