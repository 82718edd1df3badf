package dto

// ChatReq 聊天请求
type ChatReq struct {
	Query      string            `json:"query" binding:"required"`
	MaxResults int               `json:"max_results"`
	Filters    map[string]string `json:"filters"`

	// 默认返回来源，显式传 false 才省略
	IncludeSources *bool `json:"include_sources"`
}

// ChatSource 回答引用的来源
type ChatSource struct {
	SourceID       string  `json:"source_id"`
	SourceKind     string  `json:"source_kind"`
	Filename       string  `json:"filename,omitempty"`
	PatientName    string  `json:"patient_name,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
	Date           string  `json:"date,omitempty"`
}

// ChatResp 聊天回复
type ChatResp struct {
	Answer              string       `json:"answer"`
	Sources             []ChatSource `json:"sources,omitempty"`
	Confidence          float64      `json:"confidence"`
	Intent              string       `json:"intent"`
	FollowUpSuggestions []string     `json:"follow_up_suggestions,omitempty"`
	ProcessingTimeMS    int64        `json:"processing_time_ms"`
}

// SearchReq 语义检索请求
type SearchReq struct {
	Query      string `json:"query" form:"query" binding:"required"`
	MaxResults int    `json:"max_results" form:"max_results"`
}

// SearchHit 检索命中
type SearchHit struct {
	SourceID    string  `json:"source_id"`
	SourceKind  string  `json:"source_kind"`
	PatientName string  `json:"patient_name,omitempty"`
	Score       float64 `json:"score"`
	Excerpt     string  `json:"excerpt"`
	Date        string  `json:"date,omitempty"`
}
