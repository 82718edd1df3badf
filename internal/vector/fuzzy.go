package vector

import "strings"

// FuzzyThreshold 模糊姓名匹配的默认阈值
const FuzzyThreshold = 0.55

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// NormalizeName 小写、去重音、压缩空格
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = accentReplacer.Replace(n)
	return strings.Join(strings.Fields(n), " ")
}

// FuzzyNameScore 归一化加权 Jaccard：
// 完全一致 1.0；否则 token 交并比 + 顺序一致与完整性加成 − 多余 token 惩罚。
func FuzzyNameScore(a, b string) float64 {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	ta := strings.Fields(na)
	tb := strings.Fields(nb)

	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}
	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}

	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}
	union := len(setA) + len(setB) - inter
	score := float64(inter) / float64(union)

	// 顺序一致加成: 共有 token 在两边保持相对顺序
	if tokensInOrder(ta, tb) {
		score += 0.10
	}

	// 完整性加成: 查询侧 token 全部命中
	if inter == len(setA) || inter == len(setB) {
		score += 0.15
	}

	// 多余 token 惩罚
	extra := union - inter
	score -= 0.05 * float64(extra)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// tokensInOrder 共有 token 在 b 中的出现顺序与 a 一致
func tokensInOrder(a, b []string) bool {
	pos := make(map[string]int, len(b))
	for i, t := range b {
		if _, seen := pos[t]; !seen {
			pos[t] = i
		}
	}
	last := -1
	found := 0
	for _, t := range a {
		p, ok := pos[t]
		if !ok {
			continue
		}
		found++
		if p < last {
			return false
		}
		last = p
	}
	return found >= 2
}
