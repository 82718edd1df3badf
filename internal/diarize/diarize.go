package diarize

import (
	"log"
	"regexp"
	"strings"

	"MedSol-RAG/internal/model"
	"MedSol-RAG/internal/provider"
)

// 混合打分的权重与判定带
const (
	audioWeight    = 0.3
	textWeight     = 0.7
	decisionBand   = 0.2
	patternBonus   = 0.2
	textOnlyCap    = 0.8 // 无音频证据时的置信度上限
	secondsPerWord = 0.6
)

// Result 分离结果
type Result struct {
	Segments []model.SpeakerSegment
	Stats    model.SpeakerStats
}

// Service 说话人分离服务 (promotor vs paciente 的双假设分类器)
type Service struct {
	minSegmentS float64
}

func NewService(minSegmentS float64) *Service {
	if minSegmentS <= 0 {
		minSegmentS = 1.0
	}
	return &Service{minSegmentS: minSegmentS}
}

// Diarize 混合分离：有音频+ASR 段落时用 音频聚类(0.3) + 文本(0.7)，
// 否则退回纯文本。分离失败对上层流水线不是致命错误。
func (s *Service) Diarize(transcript string, asrSegments []provider.ASRSegment, audio []byte) (*Result, error) {
	var segments []model.SpeakerSegment

	switch {
	case len(asrSegments) > 0 && len(audio) > 0:
		segments = s.diarizeHybrid(asrSegments, audio)
	case len(asrSegments) > 0:
		segments = s.classifySegmentsTextOnly(asrSegments)
	default:
		segments = s.diarizeTextOnly(transcript)
	}

	if len(segments) == 0 {
		// 无法切分时退化为单个 unknown 段
		words := len(strings.Fields(transcript))
		duration := float64(words) * secondsPerWord
		if duration <= 0 {
			duration = 1.0
		}
		segments = []model.SpeakerSegment{{
			Speaker:    model.SpeakerUnknown,
			Text:       transcript,
			StartTime:  0,
			EndTime:    duration,
			Confidence: 0.1,
			WordCount:  words,
		}}
	}

	segments = s.mergeShortSegments(segments)
	enforceOrdering(segments)

	return &Result{
		Segments: segments,
		Stats:    calcStats(segments),
	}, nil
}

// diarizeHybrid 音频特征聚类 + 文本证据
func (s *Service) diarizeHybrid(asrSegments []provider.ASRSegment, audio []byte) []model.SpeakerSegment {
	wav, err := decodeWav(audio)
	if err != nil {
		log.Printf("⚠️ audio no decodificable (%v), usando solo texto", err)
		return s.classifySegmentsTextOnly(asrSegments)
	}

	// 1. 每段提取 6 维特征并归一化
	features := make([][]float64, len(asrSegments))
	for i, seg := range asrSegments {
		features[i] = extractFeatures(wav.slice(seg.Start, seg.End), wav.sampleRate)
	}
	normalized := normalizeFeatures(features)

	// 2. k-means k=2 (种子确定，可复现)
	clusters := kmeans2(normalized)

	// 3. 每段文本打分
	textScores := make([]float64, len(asrSegments))
	for i, seg := range asrSegments {
		textScores[i] = textScore(seg.Text)
	}

	// 4. 解析 簇→角色 映射: 选与文本证据一致性最高的那个
	clusterOneIsPromotor := resolveClusterMapping(clusters, textScores)

	// 5. 混合判定
	out := make([]model.SpeakerSegment, 0, len(asrSegments))
	for i, seg := range asrSegments {
		audioScore := -1.0
		if (clusters[i] == 1) == clusterOneIsPromotor {
			audioScore = 1.0
		}
		combined := audioWeight*audioScore + textWeight*textScores[i]
		speaker, conf := decide(combined, seg.Text, 1.0)
		out = append(out, newSegment(speaker, seg, conf))
	}
	return out
}

func (s *Service) classifySegmentsTextOnly(asrSegments []provider.ASRSegment) []model.SpeakerSegment {
	out := make([]model.SpeakerSegment, 0, len(asrSegments))
	for _, seg := range asrSegments {
		combined := textScore(seg.Text)
		speaker, conf := decide(combined, seg.Text, textOnlyCap)
		out = append(out, newSegment(speaker, seg, conf))
	}
	return out
}

// diarizeTextOnly 纯文本：按说话人切换模式切分，时长按 ~0.6s/palabra 估算
func (s *Service) diarizeTextOnly(transcript string) []model.SpeakerSegment {
	parts := segmentTranscript(transcript)
	out := make([]model.SpeakerSegment, 0, len(parts))

	currentTime := 0.0
	for _, text := range parts {
		words := len(strings.Fields(text))
		duration := float64(words) * secondsPerWord
		combined := textScore(text)
		speaker, conf := decide(combined, text, textOnlyCap)

		out = append(out, model.SpeakerSegment{
			Speaker:    speaker,
			Text:       strings.TrimSpace(text),
			StartTime:  currentTime,
			EndTime:    currentTime + duration,
			Confidence: conf,
			WordCount:  words,
		})
		currentTime += duration
	}
	return out
}

func newSegment(speaker string, seg provider.ASRSegment, conf float64) model.SpeakerSegment {
	return model.SpeakerSegment{
		Speaker:    speaker,
		Text:       strings.TrimSpace(seg.Text),
		StartTime:  seg.Start,
		EndTime:    seg.End,
		Confidence: conf,
		WordCount:  len(strings.Fields(seg.Text)),
	}
}

// textScore 文本证据打分 ∈ [-1,+1]: 正 = promotor, 负 = paciente
func textScore(text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)

	var promotorScore, pacienteScore float64
	for _, p := range promotorPatterns {
		if p.MatchString(lower) {
			promotorScore += 1
		}
	}
	for _, p := range pacientePatterns {
		if p.MatchString(lower) {
			pacienteScore += 1
		}
	}
	for _, kw := range medicalProfessionalKeywords {
		if strings.Contains(lower, kw) {
			promotorScore += 0.5
		}
	}
	for _, kw := range patientKeywords {
		if strings.Contains(lower, kw) {
			pacienteScore += 0.5
		}
	}

	total := promotorScore + pacienteScore
	if total == 0 {
		return 0
	}
	return (promotorScore - pacienteScore) / total
}

// hasUnambiguousPattern 前三个模式视为明确证据
func hasUnambiguousPattern(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range promotorPatterns[:3] {
		if p.MatchString(lower) {
			return true
		}
	}
	for _, p := range pacientePatterns[:3] {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// decide 判定带 ±0.2；confidence = min(maxConf, |combined| + bonus)，unknown 的置信度另封顶 0.4
func decide(combined float64, text string, maxConf float64) (string, float64) {
	bonus := 0.0
	if hasUnambiguousPattern(text) {
		bonus = patternBonus
	}

	conf := abs(combined) + bonus
	if conf > 1 {
		conf = 1
	}
	if conf > maxConf {
		conf = maxConf
	}

	switch {
	case combined > decisionBand:
		return model.SpeakerPromotor, conf
	case combined < -decisionBand:
		return model.SpeakerPaciente, conf
	default:
		if conf > 0.4 {
			conf = 0.4
		}
		return model.SpeakerUnknown, conf
	}
}

// resolveClusterMapping 不假设音高低的是 promotor：
// 两种映射里选与文本打分符号一致次数最多的
func resolveClusterMapping(clusters []int, textScores []float64) bool {
	agreeOneIsPromotor := 0
	agreeZeroIsPromotor := 0
	for i, c := range clusters {
		t := textScores[i]
		if t == 0 {
			continue
		}
		if (c == 1 && t > 0) || (c == 0 && t < 0) {
			agreeOneIsPromotor++
		}
		if (c == 0 && t > 0) || (c == 1 && t < 0) {
			agreeZeroIsPromotor++
		}
	}
	return agreeOneIsPromotor >= agreeZeroIsPromotor
}

// segmentTranscript 按模式切分纯文本转写
func segmentTranscript(transcript string) []string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil
	}

	segments := []string{transcript}
	for _, pattern := range splitPatterns {
		var next []string
		for _, seg := range segments {
			next = append(next, splitKeepingDelimiter(seg, pattern)...)
		}
		segments = nil
		for _, s := range next {
			if len(strings.TrimSpace(s)) > 10 {
				segments = append(segments, strings.TrimSpace(s))
			}
		}
		if len(segments) == 0 {
			segments = []string{transcript}
		}
	}

	// 没切出来就按句子切
	if len(segments) == 1 && len(transcript) > 200 {
		var out []string
		for _, s := range strings.FieldsFunc(transcript, func(r rune) bool {
			return r == '.' || r == '!' || r == '?'
		}) {
			if len(strings.TrimSpace(s)) > 20 {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return segments
}

// splitKeepingDelimiter 在模式命中处切开，命中的首字符留给下一段
func splitKeepingDelimiter(s string, pattern *regexp.Regexp) []string {
	locs := pattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}
	var parts []string
	prev := 0
	for _, loc := range locs {
		// 切点放在标点之后 (loc[0]+1)，大写字母归下一段
		cut := loc[0] + 1
		if cut > prev {
			parts = append(parts, s[prev:cut])
			prev = cut
		}
	}
	parts = append(parts, s[prev:])
	return parts
}

// mergeShortSegments 短于 minSegmentS 的段并入相邻同角色段
func (s *Service) mergeShortSegments(segments []model.SpeakerSegment) []model.SpeakerSegment {
	if len(segments) < 2 {
		return segments
	}

	var out []model.SpeakerSegment
	for _, seg := range segments {
		dur := seg.EndTime - seg.StartTime
		if len(out) > 0 && dur < s.minSegmentS && out[len(out)-1].Speaker == seg.Speaker {
			prev := &out[len(out)-1]
			prev.Text = strings.TrimSpace(prev.Text + " " + seg.Text)
			prev.EndTime = seg.EndTime
			prev.WordCount += seg.WordCount
			if seg.Confidence < prev.Confidence {
				prev.Confidence = seg.Confidence
			}
			continue
		}
		out = append(out, seg)
	}
	return out
}

// enforceOrdering 保证有序且不重叠
func enforceOrdering(segments []model.SpeakerSegment) {
	for i := 1; i < len(segments); i++ {
		if segments[i].StartTime < segments[i-1].EndTime {
			segments[i].StartTime = segments[i-1].EndTime
		}
		if segments[i].EndTime < segments[i].StartTime {
			segments[i].EndTime = segments[i].StartTime
		}
	}
}

func calcStats(segments []model.SpeakerSegment) model.SpeakerStats {
	if len(segments) == 0 {
		return model.SpeakerStats{}
	}

	var stats model.SpeakerStats
	seen := map[string]bool{}
	prev := ""
	var durSum float64

	for _, seg := range segments {
		dur := seg.EndTime - seg.StartTime
		durSum += dur
		switch seg.Speaker {
		case model.SpeakerPromotor:
			stats.PromotorTime += dur
		case model.SpeakerPaciente:
			stats.PacienteTime += dur
		default:
			stats.UnknownTime += dur
		}
		if seg.Speaker != model.SpeakerUnknown {
			seen[seg.Speaker] = true
		}
		if prev != "" && prev != seg.Speaker {
			stats.SpeakerChanges++
		}
		prev = seg.Speaker
		if seg.EndTime > stats.TotalDuration {
			stats.TotalDuration = seg.EndTime
		}
	}

	stats.TotalSpeakers = len(seen)
	stats.AverageSegmentLength = durSum / float64(len(segments))
	return stats
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
