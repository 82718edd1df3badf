package dto

// UploadResp 上传接受后的回执 (202)
type UploadResp struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// DocumentMeta 上传文档时的可选表单元数据
type DocumentMeta struct {
	PatientName  string `form:"patient_name"`
	DocumentType string `form:"document_type"`
	Description  string `form:"description"`
}

// ListResp 分页列表
type ListResp[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// HealthResp 各组件健康状态
type HealthResp struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}
