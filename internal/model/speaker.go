package model

// 说话人角色
const (
	SpeakerPromotor = "promotor"
	SpeakerPaciente = "paciente"
	SpeakerUnknown  = "unknown"
	SpeakerMultiple = "multiple"
)

// SpeakerSegment 单个说话人片段，按时间有序且不重叠
type SpeakerSegment struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
	WordCount  int     `json:"word_count"`
}

// SpeakerStats 按说话人聚合的统计
type SpeakerStats struct {
	TotalSpeakers        int     `json:"total_speakers"`
	PromotorTime         float64 `json:"promotor_time"`
	PacienteTime         float64 `json:"paciente_time"`
	UnknownTime          float64 `json:"unknown_time"`
	TotalDuration        float64 `json:"total_duration"`
	SpeakerChanges       int     `json:"speaker_changes"`
	AverageSegmentLength float64 `json:"average_segment_length"`
}
