package vector

import (
	"context"
	"errors"
)

// 来源类型
const (
	SourceRecording = "recording"
	SourceDocument  = "document"
)

// ErrDimensionMismatch 向量维度与集合维度不一致
var ErrDimensionMismatch = errors.New("dimensión del vector no coincide con la colección")

// Metadata 向量条目的元数据，键集合是闭集
type Metadata struct {
	PatientName string `json:"patient_name,omitempty"`
	Diagnosis   string `json:"diagnosis,omitempty"`
	Symptoms    string `json:"symptoms,omitempty"`
	Conditions  string `json:"conditions,omitempty"`
	Date        string `json:"date,omitempty"` // YYYY-MM-DD
	SpeakerMix  string `json:"speaker_mix,omitempty"`
	DocType     string `json:"doc_type,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
}

// Entry 一条向量库记录
type Entry struct {
	VectorID    string
	SourceKind  string // recording / document
	SourceID    string
	Embedding   []float32
	PayloadText string
	Metadata    Metadata
}

// SearchResult 检索命中
type SearchResult struct {
	Entry
	Score float64
}

// MatchStrategy 按字段检索的匹配策略
type MatchStrategy int

const (
	MatchExact MatchStrategy = iota
	MatchFuzzy
)

// Filters 元数据过滤，键必须属于闭集
type Filters map[string]string

var allowedFilterKeys = map[string]bool{
	"patient_name": true,
	"diagnosis":    true,
	"symptoms":     true,
	"conditions":   true,
	"date":         true,
	"speaker_mix":  true,
	"doc_type":     true,
	"urgency":      true,
}

// ValidateFilters 拒绝闭集之外的键
func ValidateFilters(f Filters) error {
	for k := range f {
		if !allowedFilterKeys[k] {
			return errors.New("filtro no soportado: " + k)
		}
	}
	return nil
}

type Stats struct {
	Count      int64  `json:"count"`
	Dimensions int    `json:"dimensions"`
	ModelID    string `json:"model_id"`
	Collection string `json:"collection"`
}

// Index 向量库能力抽象。实现必须是并发安全的
type Index interface {
	// Upsert 同 vector_id 覆盖写，返回 vector_id
	Upsert(ctx context.Context, entry Entry) (string, error)
	Delete(ctx context.Context, vectorID string) error
	DeleteBySource(ctx context.Context, sourceKind, sourceID string) error
	// Search 余弦相似度 top-k，先应用过滤再按 score desc、date desc、source_id asc 排序
	Search(ctx context.Context, queryVector []float32, k int, filters Filters, minScore float64) ([]SearchResult, error)
	// SearchByField 目前仅支持 patient_name 查找
	SearchByField(ctx context.Context, field, value string, strategy MatchStrategy, k int) ([]SearchResult, error)
	Stats(ctx context.Context) (Stats, error)
}

// matchesFilters 元数据等值过滤 (内存实现和 fuzzy 路径共用)
func matchesFilters(m Metadata, f Filters) bool {
	for k, want := range f {
		var got string
		switch k {
		case "patient_name":
			got = m.PatientName
		case "diagnosis":
			got = m.Diagnosis
		case "symptoms":
			got = m.Symptoms
		case "conditions":
			got = m.Conditions
		case "date":
			got = m.Date
		case "speaker_mix":
			got = m.SpeakerMix
		case "doc_type":
			got = m.DocType
		case "urgency":
			got = m.Urgency
		}
		if got != want {
			return false
		}
	}
	return true
}
