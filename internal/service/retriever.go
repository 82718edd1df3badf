package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"MedSol-RAG/internal/provider"
	"MedSol-RAG/internal/vector"
)

const (
	generalMinScore = 0.6
	excerptLength   = 300
)

// 排序加成权重
const (
	patientHitBonus   = 0.10
	conditionHitBonus = 0.15
	symptomHitBonus   = 0.05
	recencyBonus      = 0.02
)

// RetrievedContext 一条检索上下文及其最终得分
type RetrievedContext struct {
	vector.SearchResult
	FinalScore float64
	Excerpt    string
}

// Retriever 策略检索器 (C8): 按意图分发 → 排序 → 提取摘录
type Retriever struct {
	index    vector.Index
	embedder provider.Embedder
}

func NewRetriever(index vector.Index, embedder provider.Embedder) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// Retrieve 按查询计划检索并排序
func (r *Retriever) Retrieve(ctx context.Context, plan *QueryPlan, maxResults int, userFilters vector.Filters) ([]RetrievedContext, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	var results []vector.SearchResult
	var err error

	switch {
	case plan.Intent == IntentPatientInfo && len(plan.Entities.Patients) > 0:
		// 按病人姓名模糊查找
		results, err = r.index.SearchByField(ctx, "patient_name", plan.Entities.Patients[0], vector.MatchFuzzy, maxResults)

	case plan.Intent == IntentConditionList && len(plan.Entities.Conditions) > 0:
		results, err = r.searchByCondition(ctx, plan.Entities.Conditions[0], maxResults)

	default:
		results, err = r.semanticSearch(ctx, plan, maxResults, userFilters)
	}
	if err != nil {
		return nil, err
	}

	ranked := r.rank(results, plan)
	for i := range ranked {
		ranked[i].Excerpt = buildExcerpt(ranked[i].PayloadText, plan, excerptLength)
	}
	return ranked, nil
}

func (r *Retriever) semanticSearch(ctx context.Context, plan *QueryPlan, maxResults int, userFilters vector.Filters) ([]vector.SearchResult, error) {
	terms := plan.SearchTerms
	if len(terms) > 3 {
		terms = terms[:3]
	}
	query := strings.Join(terms, " ")
	if query == "" {
		query = plan.Normalized
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	filters := vector.Filters{}
	for k, v := range plan.Filters {
		filters[k] = v
	}
	for k, v := range userFilters {
		filters[k] = v
	}
	return r.index.Search(ctx, vec, maxResults, filters, generalMinScore)
}

// searchByCondition 语义查询捕捉条件的变体，再用条件 token 做后过滤并按病人去重
func (r *Retriever) searchByCondition(ctx context.Context, condition string, maxResults int) ([]vector.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, fmt.Sprintf("diagnóstico %s enfermedad", condition))
	if err != nil {
		return nil, err
	}

	// 先多取一些，后过滤会丢掉不相关的
	results, err := r.index.Search(ctx, vec, maxResults*2, nil, generalMinScore)
	if err != nil {
		return nil, err
	}

	cond := NormalizeQuery(condition)
	byPatient := map[string]vector.SearchResult{}
	var order []string
	for _, res := range results {
		hay := NormalizeQuery(res.Metadata.Diagnosis + " " + res.Metadata.Symptoms + " " + res.Metadata.Conditions + " " + res.PayloadText)
		if !strings.Contains(hay, cond) {
			continue
		}
		patient := res.Metadata.PatientName
		if patient == "" {
			patient = res.SourceID
		}
		if _, seen := byPatient[patient]; !seen {
			byPatient[patient] = res
			order = append(order, patient)
		}
	}

	var out []vector.SearchResult
	for _, p := range order {
		out = append(out, byPatient[p])
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

// rank 统一排序: final = base + bonos de entidad + recencia, clamp [0,1]
func (r *Retriever) rank(results []vector.SearchResult, plan *QueryPlan) []RetrievedContext {
	ranked := make([]RetrievedContext, 0, len(results))
	for _, res := range results {
		content := NormalizeQuery(res.PayloadText)

		score := res.Score
		for _, p := range plan.Entities.Patients {
			if strings.Contains(content, NormalizeQuery(p)) {
				score += patientHitBonus
				break
			}
		}
		for _, c := range plan.Entities.Conditions {
			if strings.Contains(content, NormalizeQuery(c)) {
				score += conditionHitBonus
				break
			}
		}
		for _, s := range plan.Entities.Symptoms {
			if strings.Contains(content, NormalizeQuery(s)) {
				score += symptomHitBonus
				break
			}
		}
		score += recencyBonus * recencyFactor(res.Metadata.Date)

		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		ranked = append(ranked, RetrievedContext{SearchResult: res, FinalScore: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].Metadata.Date != ranked[j].Metadata.Date {
			return ranked[i].Metadata.Date > ranked[j].Metadata.Date
		}
		return ranked[i].SourceID < ranked[j].SourceID
	})
	return ranked
}

// recencyFactor 30 天内 1.0，有日期 0.5，无日期 0
func recencyFactor(date string) float64 {
	if date == "" {
		return 0
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0.5
	}
	if time.Since(t) <= 30*24*time.Hour {
		return 1.0
	}
	return 0.5
}

// buildExcerpt 以第一个实体 token 命中处为中心截取 ~300 字符的窗口
func buildExcerpt(text string, plan *QueryPlan, maxLen int) string {
	if text == "" {
		return ""
	}
	if len(text) <= maxLen {
		return text
	}

	normalized := NormalizeQuery(text)
	hit := -1
	var tokens []string
	for _, p := range plan.Entities.Patients {
		tokens = append(tokens, NormalizeQuery(p))
	}
	tokens = append(tokens, plan.Entities.Conditions...)
	tokens = append(tokens, plan.Entities.Symptoms...)
	tokens = append(tokens, plan.SearchTerms...)

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if idx := strings.Index(normalized, tok); idx >= 0 {
			hit = idx
			break
		}
	}

	start := 0
	if hit > maxLen/2 {
		start = hit - maxLen/2
	}
	// 归一化不改变长度假设不成立 (重音去除等长替换除外)，用安全夹取
	if start > len(text)-maxLen {
		start = len(text) - maxLen
	}
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(text) {
		end = len(text)
	}

	// 对齐 UTF-8 边界
	for start > 0 && (text[start]&0xC0) == 0x80 {
		start--
	}
	for end < len(text) && (text[end]&0xC0) == 0x80 {
		end++
	}

	excerpt := strings.TrimSpace(text[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(text) {
		excerpt += "..."
	}
	return excerpt
}
