package service

import (
	"regexp"
	"strings"

	"MedSol-RAG/internal/vector"
)

// Intent 查询意图闭集
type Intent string

const (
	IntentPatientInfo    Intent = "patient_info"
	IntentConditionList  Intent = "condition_list"
	IntentSymptomSearch  Intent = "symptom_search"
	IntentMedicationInfo Intent = "medication_info"
	IntentTemporalQuery  Intent = "temporal_query"
	IntentGeneralQuery   Intent = "general_query"
	IntentUnknown        Intent = "unknown"
)

// Entities 识别出的实体
type Entities struct {
	Patients    []string `json:"patients"`
	Conditions  []string `json:"conditions"`
	Symptoms    []string `json:"symptoms"`
	Medications []string `json:"medications"`
	Dates       []string `json:"dates"`
}

// QueryPlan 查询分析结果 (请求生命周期内有效)
type QueryPlan struct {
	RawQuery    string         `json:"raw_query"`
	Normalized  string         `json:"normalized"`
	Intent      Intent         `json:"intent"`
	Entities    Entities       `json:"entities"`
	Filters     vector.Filters `json:"filters"`
	SearchTerms []string       `json:"search_terms"`
}

// 意图检测: 规则有序，第一个命中即返回。模式作用在归一化后的查询上
var intentRules = []struct {
	intent   Intent
	patterns []*regexp.Regexp
}{
	{IntentPatientInfo, []*regexp.Regexp{
		regexp.MustCompile(`que.*(enfermedad|tiene|diagnostico)`),
		regexp.MustCompile(`informacion.*(paciente|de)`),
		regexp.MustCompile(`que.*(le pasa|padece)`),
	}},
	{IntentConditionList, []*regexp.Regexp{
		regexp.MustCompile(`lista\w*.*pacientes`),
		regexp.MustCompile(`quienes.*(tienen|padecen)`),
		regexp.MustCompile(`cuantos.*pacientes`),
		regexp.MustCompile(`pacientes.*(con|que tienen)`),
	}},
	{IntentSymptomSearch, []*regexp.Regexp{
		regexp.MustCompile(`quien.*(dolor|sintoma|molestia)`),
		regexp.MustCompile(`(dolor|sintoma|molestia).*pacientes`),
	}},
	{IntentMedicationInfo, []*regexp.Regexp{
		regexp.MustCompile(`que.*(medicamento|medicina|tratamiento).*toma`),
		regexp.MustCompile(`medicamentos.*para`),
		regexp.MustCompile(`tratamiento.*de`),
	}},
	{IntentTemporalQuery, []*regexp.Regexp{
		regexp.MustCompile(`(ayer|hoy|semana pasada|mes pasado).*(paciente|consulta)`),
		regexp.MustCompile(`ultima.*consulta`),
		regexp.MustCompile(`cuando.*fue`),
	}},
}

// 常见病症的同义词扩展表 (检索词扩展 + 条件实体检测)
var medicalTerms = map[string][]string{
	"diabetes":     {"diabetes", "diabetico", "glucosa", "azucar", "insulina"},
	"hipertension": {"hipertension", "presion alta", "presion arterial", "hipertenso"},
	"asma":         {"asma", "asmatico", "bronquial", "respiratorio"},
	"migraña":      {"migraña", "jaqueca", "dolor de cabeza", "cefalea"},
	"covid":        {"covid", "coronavirus", "sars-cov-2"},
	"gripe":        {"gripe", "influenza", "resfriado", "catarro"},
}

var symptomKeywords = []string{
	"dolor de cabeza", "dolor", "fiebre", "tos", "mareos", "nausea", "vomito",
	"diarrea", "fatiga", "cansancio", "debilidad",
}

var medicationKeywords = []string{
	"paracetamol", "ibuprofeno", "insulina", "metformina", "amoxicilina",
	"omeprazol", "losartan", "aspirina",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(ayer|hoy|manana)\b`),
	regexp.MustCompile(`(semana|mes|año)\s+(pasada?|anterior|ultimo)`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
}

// 大写开头的词序列 → 候选病人姓名 (作用在原始查询上)
var patientNamePattern = regexp.MustCompile(`\b([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)+|[A-ZÁÉÍÓÚÑ][a-záéíóúñ]{2,})\b`)

var stopwords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
	"de": true, "del": true, "en": true, "con": true, "por": true, "para": true,
	"que": true, "quien": true, "quienes": true, "cual": true, "cuales": true,
	"cuando": true, "cuantos": true, "como": true, "donde": true,
	"es": true, "son": true, "esta": true, "estan": true, "hay": true,
	"tiene": true, "tienen": true, "listame": true, "lista": true, "dame": true,
	"informacion": true, "paciente": true, "pacientes": true, "enfermedad": true,
	"y": true, "o": true, "a": true, "al": true, "se": true, "su": true, "sus": true,
	"me": true, "mi": true, "le": true, "lo": true, "les": true,
}

// QueryAnalyzer 查询分析器 (C7)
type QueryAnalyzer struct{}

func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Analyze 归一化 → 意图检测 → 实体提取 → 检索词生成
func (a *QueryAnalyzer) Analyze(raw string) *QueryPlan {
	normalized := NormalizeQuery(raw)

	plan := &QueryPlan{
		RawQuery:   raw,
		Normalized: normalized,
		Intent:     detectIntent(normalized),
		Filters:    vector.Filters{},
	}

	plan.Entities = extractEntities(raw, normalized)
	plan.SearchTerms = buildSearchTerms(normalized, plan.Entities)

	// 自动过滤: 单个病人的 patient_info 查询按名字过滤
	if plan.Intent == IntentPatientInfo && len(plan.Entities.Patients) == 1 {
		plan.Filters["patient_name"] = plan.Entities.Patients[0]
	}

	return plan
}

var queryAccentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"¿", "", "¡", "", "?", "", "!", "",
)

// NormalizeQuery 小写、去重音、去标点、压缩空格
func NormalizeQuery(q string) string {
	n := strings.ToLower(strings.TrimSpace(q))
	n = queryAccentReplacer.Replace(n)
	return strings.Join(strings.Fields(n), " ")
}

func detectIntent(normalized string) Intent {
	if normalized == "" {
		return IntentUnknown
	}
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(normalized) {
				return rule.intent
			}
		}
	}
	return IntentGeneralQuery
}

func extractEntities(raw, normalized string) Entities {
	var e Entities

	// 病人姓名: 原始查询中的大写词序列，过滤问句首词等噪音
	for _, m := range patientNamePattern.FindAllString(raw, -1) {
		if stopwords[NormalizeQuery(m)] {
			continue
		}
		// 单个词只有在不是句首时才可信，要求多词或长度足够
		if !strings.Contains(m, " ") && len([]rune(m)) < 4 {
			continue
		}
		if !containsString(e.Patients, m) {
			e.Patients = append(e.Patients, m)
		}
	}

	// 条件: 同义词表
	for condition, synonyms := range medicalTerms {
		for _, syn := range synonyms {
			if strings.Contains(normalized, syn) {
				if !containsString(e.Conditions, condition) {
					e.Conditions = append(e.Conditions, condition)
				}
				break
			}
		}
	}

	// 症状
	for _, symptom := range symptomKeywords {
		if strings.Contains(normalized, symptom) && !containsString(e.Symptoms, symptom) {
			e.Symptoms = append(e.Symptoms, symptom)
		}
	}

	// 药物
	for _, med := range medicationKeywords {
		if strings.Contains(normalized, med) && !containsString(e.Medications, med) {
			e.Medications = append(e.Medications, med)
		}
	}

	// 时间表达
	for _, p := range datePatterns {
		for _, m := range p.FindAllString(normalized, -1) {
			if m != "" && !containsString(e.Dates, m) {
				e.Dates = append(e.Dates, m)
			}
		}
	}

	return e
}

// buildSearchTerms 实体 ∪ 剩余非停用词 token，上限 10
func buildSearchTerms(normalized string, e Entities) []string {
	var terms []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if len(t) > 2 && !containsString(terms, t) && len(terms) < 10 {
			terms = append(terms, t)
		}
	}

	for _, p := range e.Patients {
		add(NormalizeQuery(p))
	}
	for _, c := range e.Conditions {
		add(c)
		// 同义词扩展 (top 3)
		if syns, ok := medicalTerms[c]; ok {
			for i, s := range syns {
				if i >= 3 {
					break
				}
				add(s)
			}
		}
	}
	for _, s := range e.Symptoms {
		add(s)
	}
	for _, m := range e.Medications {
		add(m)
	}
	for _, tok := range strings.Fields(normalized) {
		if !stopwords[tok] {
			add(tok)
		}
	}
	return terms
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
