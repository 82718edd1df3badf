package model

import (
	"time"

	"gorm.io/datatypes"
)

// 文档类型
const (
	FileKindPdf   = "pdf"
	FileKindImage = "image"
)

var documentOrder = map[string]int{
	StatusPending:    0,
	StatusExtracting: 1,
	StatusIndexing:   2,
	StatusCompleted:  3,
}

// ValidDocumentTransition 文档状态机：pending→extracting→indexing→completed
func ValidDocumentTransition(from, to string) bool {
	if to == StatusFailed {
		return from != StatusFailed && from != StatusCompleted
	}
	fo, ok1 := documentOrder[from]
	no, ok2 := documentOrder[to]
	return ok1 && ok2 && no > fo
}

// Document PDF/图片文档记录
type Document struct {
	ID string `gorm:"primaryKey;size:64" json:"id"`

	Filename    string `gorm:"size:255;not null" json:"filename"`
	FileSize    int64  `gorm:"not null" json:"file_size"`
	MimeType    string `gorm:"size:50" json:"mime_type"`
	FileKind    string `gorm:"size:10;not null" json:"file_kind"` // pdf / image
	StoragePath string `gorm:"size:500" json:"storage_path"`

	Status    string `gorm:"size:20;default:'pending';index" json:"status"`
	ErrorKind string `gorm:"size:30" json:"error_kind,omitempty"`
	ErrorMsg  string `gorm:"type:text" json:"error_msg,omitempty"`

	// OCR / PDF 提取结果
	ExtractedText string  `gorm:"type:text" json:"extracted_text,omitempty"`
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`
	PageCount     int     `json:"page_count,omitempty"`
	Language      string  `gorm:"size:10" json:"language,omitempty"`

	// AI 提取的医疗元数据
	PatientName  string         `gorm:"size:100;index" json:"patient_name,omitempty"`
	DocumentDate string         `gorm:"size:20" json:"document_date,omitempty"`
	DocumentType string         `gorm:"size:50" json:"document_type,omitempty"`
	Conditions   datatypes.JSON `json:"conditions,omitempty"`
	Medications  datatypes.JSON `json:"medications,omitempty"`
	Procedures   datatypes.JSON `json:"procedures,omitempty"`

	// 关联到已有录音 (模糊匹配 patient_name ≥ 0.85)
	RecordingID *string `gorm:"size:64;index" json:"recording_id,omitempty"`

	VectorStored string `gorm:"size:10;default:'false'" json:"vector_stored"`
	VectorID     string `gorm:"size:100" json:"vector_id,omitempty"`

	ProcessingMS int64 `json:"processing_ms,omitempty"`

	CreatedAt   time.Time  `gorm:"index:idx_documents_created,sort:desc" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func (Document) TableName() string { return "documents" }
