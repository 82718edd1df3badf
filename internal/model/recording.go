package model

import (
	"time"

	"gorm.io/datatypes"
)

// 录音记录状态机，只允许向前推进或跳到 failed
const (
	StatusPending      = "pending"
	StatusTranscribing = "transcribing"
	StatusExtracting   = "extracting"
	StatusDiarizing    = "diarizing"
	StatusIndexing     = "indexing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// 软失败标记 (vector_stored / diarization_processed)
const (
	FlagFalse  = "false"
	FlagTrue   = "true"
	FlagFailed = "failed"
)

var recordingOrder = map[string]int{
	StatusPending:      0,
	StatusTranscribing: 1,
	StatusExtracting:   2,
	StatusDiarizing:    3,
	StatusIndexing:     4,
	StatusCompleted:    5,
}

// ValidTransition 校验状态只能向前推进，failed 终态随时可达
func ValidTransition(from, to string) bool {
	if to == StatusFailed {
		return from != StatusFailed && from != StatusCompleted
	}
	fo, ok1 := recordingOrder[from]
	no, ok2 := recordingOrder[to]
	return ok1 && ok2 && no > fo
}

// Recording 音频转写记录
type Recording struct {
	ID string `gorm:"primaryKey;size:64" json:"id"`

	// 文件信息
	Filename    string `gorm:"size:255;not null" json:"filename"`
	FileSize    int64  `gorm:"not null" json:"file_size"`
	MimeType    string `gorm:"size:50" json:"mime_type"`
	StoragePath string `gorm:"size:500" json:"storage_path"` // minio://bucket/path

	// 状态机
	Status    string `gorm:"size:20;default:'pending';index" json:"status"`
	ErrorKind string `gorm:"size:30" json:"error_kind,omitempty"`
	ErrorMsg  string `gorm:"type:text" json:"error_msg,omitempty"`

	// 转写结果
	Transcript string  `gorm:"type:text" json:"transcript,omitempty"`
	Language   string  `gorm:"size:10" json:"language,omitempty"`
	DurationS  float64 `json:"duration_s,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	ModelUsed  string  `gorm:"size:50" json:"model_used,omitempty"`

	// 提取结果 (JSON 列)
	Structured   datatypes.JSON `json:"structured,omitempty"`
	Unstructured datatypes.JSON `json:"unstructured,omitempty"`

	// 说话人分离
	SpeakerSegments      datatypes.JSON `json:"speaker_segments,omitempty"`
	SpeakerStats         datatypes.JSON `json:"speaker_stats,omitempty"`
	DiarizationProcessed string         `gorm:"size:10;default:'false'" json:"diarization_processed"`

	// 向量库
	VectorStored string `gorm:"size:10;default:'false'" json:"vector_stored"`
	VectorID     string `gorm:"size:100" json:"vector_id,omitempty"`

	ProcessingMS int64 `json:"processing_ms,omitempty"`

	CreatedAt   time.Time  `gorm:"index:idx_recordings_created,sort:desc" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func (Recording) TableName() string { return "recordings" }
