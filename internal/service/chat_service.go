package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/provider"
	"MedSol-RAG/internal/vector"
)

const (
	maxContextChars = 4000
	maxAnswerChars  = 2000
	topKConfidence  = 3
)

// ChatService RAG 问答 (C7 → C8 → C9 的组合)
type ChatService struct {
	analyzer   *QueryAnalyzer
	retriever  *Retriever
	llm        provider.LLM
	llmTimeout time.Duration
	maxResults int
}

func NewChatService(analyzer *QueryAnalyzer, retriever *Retriever, llm provider.LLM, llmTimeout time.Duration, maxResults int) *ChatService {
	if maxResults <= 0 {
		maxResults = 5
	}
	if llmTimeout <= 0 {
		llmTimeout = 60 * time.Second
	}
	return &ChatService{
		analyzer:   analyzer,
		retriever:  retriever,
		llm:        llm,
		llmTimeout: llmTimeout,
		maxResults: maxResults,
	}
}

// Chat 完整 RAG 流程: 分析 → 检索 → 排序 → 生成 → 校验
func (s *ChatService) Chat(ctx context.Context, req dto.ChatReq) (*dto.ChatResp, error) {
	start := time.Now()

	// 1. 分析查询
	plan := s.analyzer.Analyze(req.Query)

	// 2. 检索上下文
	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > 20 {
		maxResults = s.maxResults
	}
	userFilters := vector.Filters{}
	for k, v := range req.Filters {
		userFilters[k] = v
	}
	if err := vector.ValidateFilters(userFilters); err != nil {
		return nil, err
	}

	contexts, err := s.retriever.Retrieve(ctx, plan, maxResults, userFilters)
	if err != nil {
		log.Printf("❌ recuperación de contexto falló: %v", err)
		contexts = nil
	}

	// 3. 上下文为空 → 固定回复，置信度 ≤ 0.3，sin fuentes
	if len(contexts) == 0 {
		return &dto.ChatResp{
			Answer:              FallbackAnswer,
			Confidence:          0.1,
			Intent:              string(plan.Intent),
			FollowUpSuggestions: followUpSuggestions(plan),
			ProcessingTimeMS:    time.Since(start).Milliseconds(),
		}, nil
	}

	// 4. 生成回答
	answer := s.generateAnswer(ctx, plan, contexts)
	answer = validateAnswer(answer)

	// 5. 置信度 + 来源
	resp := &dto.ChatResp{
		Answer:              answer,
		Confidence:          calcConfidence(contexts, plan, answer),
		Intent:              string(plan.Intent),
		FollowUpSuggestions: followUpSuggestions(plan),
		ProcessingTimeMS:    time.Since(start).Milliseconds(),
	}
	if req.IncludeSources == nil || *req.IncludeSources {
		resp.Sources = buildSources(contexts)
	}
	return resp, nil
}

func (s *ChatService) generateAnswer(ctx context.Context, plan *QueryPlan, contexts []RetrievedContext) string {
	finalContext := buildFinalContext(contexts)
	prompt := selectPrompt(plan, finalContext)

	llmCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	answer, err := s.llm.Complete(llmCtx, []provider.Message{
		{Role: "system", Content: chatSystemPrompt},
		{Role: "user", Content: prompt},
	}, provider.CompleteParams{
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		log.Printf("❌ generación de respuesta falló: %v", err)
		return ""
	}
	return answer
}

func selectPrompt(plan *QueryPlan, context string) string {
	switch plan.Intent {
	case IntentPatientInfo:
		return fmt.Sprintf(patientInfoTemplate, context, plan.RawQuery)
	case IntentConditionList:
		return fmt.Sprintf(conditionListTemplate, context, plan.RawQuery)
	default:
		return fmt.Sprintf(generalQueryTemplate, context, plan.RawQuery, formatEntities(plan.Entities))
	}
}

func formatEntities(e Entities) string {
	var parts []string
	if len(e.Patients) > 0 {
		parts = append(parts, "pacientes: "+strings.Join(e.Patients, ", "))
	}
	if len(e.Conditions) > 0 {
		parts = append(parts, "condiciones: "+strings.Join(e.Conditions, ", "))
	}
	if len(e.Symptoms) > 0 {
		parts = append(parts, "síntomas: "+strings.Join(e.Symptoms, ", "))
	}
	if len(e.Medications) > 0 {
		parts = append(parts, "medicamentos: "+strings.Join(e.Medications, ", "))
	}
	if len(e.Dates) > 0 {
		parts = append(parts, "fechas: "+strings.Join(e.Dates, ", "))
	}
	if len(parts) == 0 {
		return "ninguna"
	}
	return strings.Join(parts, "; ")
}

// buildFinalContext 有序摘录 + 顶部上下文的结构化字段，上限 4000 字符
func buildFinalContext(contexts []RetrievedContext) string {
	var sb strings.Builder
	for i, c := range contexts {
		if i >= 5 {
			break
		}
		patient := c.Metadata.PatientName
		if patient == "" {
			patient = "Paciente no identificado"
		}
		date := c.Metadata.Date
		if date == "" {
			date = "Fecha no disponible"
		}

		fmt.Fprintf(&sb, "\nCONVERSACIÓN %d:\nPaciente: %s\nFecha: %s\nRelevancia: %.2f\n", i+1, patient, date, c.FinalScore)
		if c.Metadata.Diagnosis != "" {
			fmt.Fprintf(&sb, "Diagnóstico: %s\n", c.Metadata.Diagnosis)
		}
		if c.Metadata.Symptoms != "" {
			fmt.Fprintf(&sb, "Síntomas: %s\n", c.Metadata.Symptoms)
		}
		fmt.Fprintf(&sb, "Contenido: %s\n", c.Excerpt)
	}

	final := sb.String()
	if len(final) > maxContextChars {
		final = vector.TruncateUTF8(final, maxContextChars) + "\n\n[Contexto truncado...]"
	}
	return final
}

// validateAnswer 截断 ≤ 2000、追加免责声明、空回答退回固定回复
func validateAnswer(answer string) string {
	cleaned := strings.TrimSpace(answer)
	if cleaned == "" {
		return FallbackAnswer
	}

	if len(cleaned) > maxAnswerChars {
		cleaned = vector.TruncateUTF8(cleaned, maxAnswerChars) + "..."
	}

	lower := strings.ToLower(cleaned)
	for _, kw := range []string{"diagnóstico", "diagnostico", "medicamento", "tratamiento", "enfermedad"} {
		if strings.Contains(lower, kw) {
			cleaned += medicalDisclaimer
			break
		}
	}
	return cleaned
}

// calcConfidence 0.60·sim + 0.20·entidades + 0.15·fuentes − 0.05·incompleto, clamp [0.1, 0.95]
func calcConfidence(contexts []RetrievedContext, plan *QueryPlan, answer string) float64 {
	k := len(contexts)
	if k > topKConfidence {
		k = topKConfidence
	}
	var simSum float64
	for i := 0; i < k; i++ {
		simSum += contexts[i].FinalScore
	}
	meanSim := simSum / float64(k)

	// 实体命中率: 查询实体在检索内容中出现的比例
	var entityTotal, entityHits int
	var allContent strings.Builder
	for _, c := range contexts {
		allContent.WriteString(NormalizeQuery(c.PayloadText))
		allContent.WriteString(" ")
	}
	content := allContent.String()
	for _, lists := range [][]string{plan.Entities.Patients, plan.Entities.Conditions, plan.Entities.Symptoms, plan.Entities.Medications} {
		for _, e := range lists {
			entityTotal++
			if strings.Contains(content, NormalizeQuery(e)) {
				entityHits++
			}
		}
	}
	entityRatio := 0.0
	if entityTotal > 0 {
		entityRatio = float64(entityHits) / float64(entityTotal)
	}

	sourceFactor := float64(len(contexts)) / 3.0
	if sourceFactor > 1 {
		sourceFactor = 1
	}

	incomplete := 0.0
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "no hay información suficiente") || strings.Contains(lower, "insuficiente") {
		incomplete = 1.0
	}

	conf := 0.60*meanSim + 0.20*entityRatio + 0.15*sourceFactor - 0.05*incomplete
	if conf < 0.1 {
		conf = 0.1
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func buildSources(contexts []RetrievedContext) []dto.ChatSource {
	var sources []dto.ChatSource
	for i, c := range contexts {
		if i >= 5 {
			break
		}
		sources = append(sources, dto.ChatSource{
			SourceID:       c.SourceID,
			SourceKind:     c.SourceKind,
			PatientName:    c.Metadata.PatientName,
			RelevanceScore: c.FinalScore,
			Excerpt:        c.Excerpt,
			Date:           c.Metadata.Date,
		})
	}
	return sources
}

// followUpSuggestions 按意图给最多 3 条参数化的跟进建议
func followUpSuggestions(plan *QueryPlan) []string {
	switch {
	case plan.Intent == IntentPatientInfo && len(plan.Entities.Patients) > 0:
		p := plan.Entities.Patients[0]
		return []string{
			fmt.Sprintf("¿Qué tratamiento se recomendó para %s?", p),
			fmt.Sprintf("¿Cuándo fue la última consulta de %s?", p),
			fmt.Sprintf("¿Qué síntomas reportó %s?", p),
		}
	case plan.Intent == IntentConditionList && len(plan.Entities.Conditions) > 0:
		c := plan.Entities.Conditions[0]
		return []string{
			fmt.Sprintf("¿Qué tratamientos hay para %s?", c),
			fmt.Sprintf("¿Cuántos pacientes nuevos con %s hay este mes?", c),
			fmt.Sprintf("¿Qué síntomas son más comunes en %s?", c),
		}
	default:
		return []string{
			"¿Puedes mostrarme información de un paciente específico?",
			"¿Qué pacientes tienen una condición particular?",
			"¿Cuáles son los síntomas más reportados?",
		}
	}
}

// Search 语义检索 (façade 的 /documents/search 与 /search 用)
func (s *ChatService) Search(ctx context.Context, query string, maxResults int) ([]dto.SearchHit, error) {
	plan := s.analyzer.Analyze(query)
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	contexts, err := s.retriever.Retrieve(ctx, plan, maxResults, nil)
	if err != nil {
		return nil, err
	}
	var hits []dto.SearchHit
	for _, c := range contexts {
		hits = append(hits, dto.SearchHit{
			SourceID:    c.SourceID,
			SourceKind:  c.SourceKind,
			PatientName: c.Metadata.PatientName,
			Score:       c.FinalScore,
			Excerpt:     c.Excerpt,
			Date:        c.Metadata.Date,
		})
	}
	return hits, nil
}
